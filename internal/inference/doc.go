// Package inference drives model inference for sessions.
//
// Engine answers one-off requests (InferOnce, InferStream and their
// WithInput variants) against the session's configured model. Pipeline is the
// background task launched when a session starts: it streams one response,
// refreshes the session heartbeat for every token, and then reaps the session
// once it has been idle for the configured timeout.
//
// When the backend cannot be reached the pipeline emits a short run of
// synthetic placeholder tokens so the session still shows activity. The
// placeholders refresh the heartbeat but are not counted as output.
package inference
