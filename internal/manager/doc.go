/*
Package manager is the entry point for session lifecycle operations.

A Manager owns a sharded session.Registry, an inference.Engine bound to a
provider.Backend, and a worker.Pool on which per-session pipelines run.
StartSession launches a pipeline only when the start actually changed the
session's state; starting an Active session refreshes its heartbeat and
nothing else.

	m := manager.New(manager.Options{Backend: backend})
	_, receipt, _ := m.CreateSession(session.CreateRequest{})
	_ = m.SetSessionModel(receipt.SessionID, "llama3.2")
	_, _ = m.StartSession(receipt.SessionID)
	defer m.Shutdown(ctx)

Every mutation is published on the configured event.Bus.
*/
package manager
