package ollama

// TagsResponse is the body of GET /api/tags.
type TagsResponse struct {
	Models []ModelTag `json:"models"`
}

// ModelTag describes one locally available model.
type ModelTag struct {
	Name       string        `json:"name"`
	ModifiedAt *string       `json:"modified_at,omitempty"`
	Size       *uint64       `json:"size,omitempty"`
	Digest     *string       `json:"digest,omitempty"`
	Details    *ModelDetails `json:"details,omitempty"`
}

// ModelDetails holds the optional model metadata reported by the server.
type ModelDetails struct {
	ParentModel       *string  `json:"parent_model,omitempty"`
	Format            *string  `json:"format,omitempty"`
	Family            *string  `json:"family,omitempty"`
	Families          []string `json:"families,omitempty"`
	ParameterSize     *string  `json:"parameter_size,omitempty"`
	QuantizationLevel *string  `json:"quantization_level,omitempty"`
}

// PullRequest is the body of POST /api/pull.
type PullRequest struct {
	Name   string `json:"name"`
	Stream bool   `json:"stream"`
}

// PullProgress is one NDJSON line of a streamed pull.
type PullProgress struct {
	Status    string `json:"status"`
	Digest    string `json:"digest,omitempty"`
	Total     int64  `json:"total,omitempty"`
	Completed int64  `json:"completed,omitempty"`
	Error     string `json:"error,omitempty"`
}

// GenerateRequest is the body of POST /api/generate.
type GenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

// GenerateResponse is the body of a non-streamed POST /api/generate.
type GenerateResponse struct {
	Model     string `json:"model"`
	CreatedAt string `json:"created_at,omitempty"`
	Response  string `json:"response"`
	Done      bool   `json:"done"`
}

// GenerateStreamChunk is one NDJSON line of a streamed POST /api/generate.
type GenerateStreamChunk struct {
	Model     *string `json:"model,omitempty"`
	CreatedAt *string `json:"created_at,omitempty"`
	Response  *string `json:"response,omitempty"`
	Done      *bool   `json:"done,omitempty"`
	Error     string  `json:"error,omitempty"`
}

// Text returns the chunk's response fragment, or "".
func (c GenerateStreamChunk) Text() string {
	if c.Response == nil {
		return ""
	}
	return *c.Response
}

// IsDone reports whether the chunk is the last one of the stream.
func (c GenerateStreamChunk) IsDone() bool {
	return c.Done != nil && *c.Done
}
