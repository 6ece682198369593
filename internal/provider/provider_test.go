package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashosive/agent-runtime/internal/ollama"
)

func TestParseModelString(t *testing.T) {
	tests := []struct {
		input       string
		wantBackend string
		wantModel   string
	}{
		{"openai/gpt-4o", "openai", "gpt-4o"},
		{"claude/claude-sonnet-4-20250514", "claude", "claude-sonnet-4-20250514"},
		{"llama3.2", "", "llama3.2"},
		{"", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			backend, model := ParseModelString(tt.input)
			assert.Equal(t, tt.wantBackend, backend)
			assert.Equal(t, tt.wantModel, model)
		})
	}
}

func TestStaticTokenStream(t *testing.T) {
	s := StaticTokenStream("a", "b", "c")

	var got []string
	for {
		tok, err := s.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		got = append(got, tok)
	}
	s.Close()
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestTokenStream_Collect(t *testing.T) {
	out, err := StaticTokenStream("Hel", "lo").Collect()
	require.NoError(t, err)
	assert.Equal(t, "Hello", out)
}

func TestWrapError(t *testing.T) {
	assert.Nil(t, wrapError("ollama", "generate", nil))

	status := wrapError("ollama", "generate", &ollama.StatusError{StatusCode: 404, Body: "model not found"})
	var be *BackendError
	require.True(t, errors.As(status, &be))
	assert.Equal(t, KindStatus, be.Kind)
	assert.Equal(t, 404, be.StatusCode)
	assert.Contains(t, be.Error(), "status 404")

	decode := wrapError("ollama", "list models", fmt.Errorf("%w: tags: bad", ollama.ErrDecode))
	require.True(t, errors.As(decode, &be))
	assert.Equal(t, KindDecode, be.Kind)

	network := wrapError("ollama", "health", errors.New("connection refused"))
	require.True(t, errors.As(network, &be))
	assert.Equal(t, KindNetwork, be.Kind)

	assert.Same(t, network, wrapError("registry", "generate", network))
	assert.True(t, IsBackendError(network))
	assert.False(t, IsBackendError(errors.New("plain")))
}

func newOllamaServer(t *testing.T, handler http.HandlerFunc) *OllamaBackend {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewOllamaBackend(ollama.NewClient(srv.URL,
		ollama.WithBackoff(time.Millisecond, time.Millisecond),
		ollama.WithMaxRetries(1),
	))
}

func TestOllamaBackend_GenerateStream(t *testing.T) {
	b := newOllamaServer(t, func(w http.ResponseWriter, r *http.Request) {
		for _, tok := range []string{"one", "", "two"} {
			fmt.Fprintf(w, `{"response":%q,"done":false}`+"\n", tok)
		}
		fmt.Fprint(w, `{"response":"","done":true}`+"\n")
	})

	stream, err := b.GenerateStream(context.Background(), "m", "p")
	require.NoError(t, err)

	var got []string
	for {
		tok, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		got = append(got, tok)
	}
	stream.Close()
	assert.Equal(t, []string{"one", "two"}, got)
}

func TestOllamaBackend_StreamOpenFails(t *testing.T) {
	b := newOllamaServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such model", http.StatusNotFound)
	})

	_, err := b.GenerateStream(context.Background(), "m", "p")
	var be *BackendError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, KindStatus, be.Kind)
	assert.Equal(t, "ollama", be.Backend)
}

func TestOllamaBackend_MidStreamError(t *testing.T) {
	b := newOllamaServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"response":"x","done":false}`+"\n")
		fmt.Fprint(w, "{broken\n")
	})

	stream, err := b.GenerateStream(context.Background(), "m", "p")
	require.NoError(t, err)
	defer stream.Close()

	tok, err := stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, "x", tok)

	_, err = stream.Recv()
	var be *BackendError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, KindDecode, be.Kind)
}

func TestOllamaBackend_ListModels(t *testing.T) {
	b := newOllamaServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"models":[{"name":"llama3.2:latest","details":{"family":"llama"}},{"name":"qwen2.5:7b"}]}`))
	})

	models, err := b.ListModels(context.Background())
	require.NoError(t, err)
	require.Len(t, models, 2)
	assert.Equal(t, "llama3.2:latest", models[0].Name)
	assert.Equal(t, "ollama", models[0].Backend)
	require.NotNil(t, models[0].Family)
	assert.Equal(t, "llama", *models[0].Family)
	assert.Nil(t, models[1].Family)
}

func TestSuggestModel(t *testing.T) {
	candidates := []string{"llama3.2:latest", "qwen2.5:7b", "mistral:latest"}

	got, ok := SuggestModel("llama3.1:latest", candidates)
	require.True(t, ok)
	assert.Equal(t, "llama3.2:latest", got)

	got, ok = SuggestModel("MISTRAL:latest", candidates)
	require.True(t, ok)
	assert.Equal(t, "mistral:latest", got)

	_, ok = SuggestModel("something-else-entirely", candidates)
	assert.False(t, ok)

	_, ok = SuggestModel("llama", nil)
	assert.False(t, ok)
}

func TestCheckModel(t *testing.T) {
	b := &fakeBackend{name: "ollama", models: []string{"llama3.2:latest", "qwen2.5:7b"}}
	ctx := context.Background()

	assert.NoError(t, CheckModel(ctx, b, "llama3.2:latest"))
	assert.NoError(t, CheckModel(ctx, b, "llama3.2"))

	err := CheckModel(ctx, b, "llama3.1")
	var unknown *UnknownModelError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "llama3.2:latest", unknown.Suggestion)
	assert.Contains(t, err.Error(), "did you mean")
}
