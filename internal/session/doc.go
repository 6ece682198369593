// Package session implements the agent session entity, its state machine and
// the concurrent registry that owns every live session.
//
// # Architecture Overview
//
// The package is built around four pieces:
//
//   - Session: one conversation's state, limits, prompt seed and usage counters
//   - Transitions: Start, Pause, Suspend and End, the only code that changes State
//   - Handle: the shared reference to a registered session, guarding it with a RWMutex
//   - Registry: a sharded id -> Handle map with per-shard locking
//
// # Lifecycle
//
// Sessions move through a bounded state machine:
//
//	Pending -> Active -> {Paused, Suspended} -> Active -> Ended
//
// Ended is terminal. Start is idempotent on an Active session: it refreshes
// the heartbeat and reports WasNoop=true, which tells the caller not to launch
// a second inference pipeline.
//
//	sess, receipt := session.New(session.CreateRequest{})
//	handle, err := registry.Insert(sess)
//
//	err = handle.Update(func(s *session.Session) error {
//		r, err := session.Start(s, time.Now())
//		if err != nil {
//			return err
//		}
//		launch = !r.WasNoop
//		return nil
//	})
//
// # Liveness
//
// UpdatedAt doubles as the liveness heartbeat. Every observable mutation
// refreshes it through Touch, which never lets it move backwards and always
// advances it by at least one nanosecond.
//
// # Concurrency
//
// The Registry is the sole long-lived owner of each session. Other components
// look a Handle up and use Read for shared access or Update for exclusive
// access; nobody keeps a private copy for mutation. Callers must not block on
// I/O inside Read or Update.
//
// A panic inside Update poisons the handle. The panicking call and every later
// access return ErrPoisoned, because the session's invariants can no longer be
// trusted. Callers decide whether to remove and recreate the session.
//
// Removing an id from the Registry detaches it from future lookups only.
// Handles already checked out keep working, and the id is never reused.
package session
