// Package provider abstracts the language-model servers that sessions run
// inference against.
//
// # Backends
//
// Backend is the single interface the inference engine depends on. Two
// families implement it:
//
//   - OllamaBackend: a local Ollama server reached through internal/ollama,
//     with true NDJSON token streaming piped into an Eino stream reader.
//   - ChatModelBackend: any Eino chat model. NewOpenAIBackend, NewClaudeBackend
//     and NewArkBackend build one from eino-ext components.
//
// Streamed output is always a *TokenStream, a thin wrapper over
// schema.StreamReader[string]. Recv returns io.EOF at the end of the stream.
//
//	stream, err := backend.GenerateStream(ctx, "llama3.2", prompt)
//	if err != nil {
//		return err
//	}
//	defer stream.Close()
//	for {
//		tok, err := stream.Recv()
//		if errors.Is(err, io.EOF) {
//			break
//		}
//		...
//	}
//
// # Routing
//
// Registry holds several backends and implements Backend itself. Model names
// of the form "openai/gpt-4o" go to the named backend; anything else goes to
// the default backend unchanged.
//
// # Errors
//
// Failures that reach the model server are returned as *BackendError with a
// Kind of network, status or decode. ChatModelBackend cannot pull models and
// returns ErrUnsupported.
package provider
