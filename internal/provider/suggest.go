package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/agnivade/levenshtein"
)

// UnknownModelError is returned by CheckModel when a backend does not list
// the requested model.
type UnknownModelError struct {
	Model      string
	Suggestion string
}

func (e *UnknownModelError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("unknown model %q, did you mean %q?", e.Model, e.Suggestion)
	}
	return fmt.Sprintf("unknown model %q", e.Model)
}

// SuggestModel returns the candidate closest to name by edit distance. No
// suggestion is made when the closest candidate differs in more than half of
// its characters.
func SuggestModel(name string, candidates []string) (string, bool) {
	best := ""
	bestDist := -1
	for _, c := range candidates {
		d := levenshtein.ComputeDistance(strings.ToLower(name), strings.ToLower(c))
		if bestDist < 0 || d < bestDist {
			best, bestDist = c, d
		}
	}
	if bestDist < 0 {
		return "", false
	}
	limit := len(best) / 2
	if len(name) > len(best) {
		limit = len(name) / 2
	}
	if bestDist > limit {
		return "", false
	}
	return best, true
}

// CheckModel verifies that b lists model. Ollama tags without an explicit
// version match their ":latest" form.
func CheckModel(ctx context.Context, b Backend, model string) error {
	models, err := b.ListModels(ctx)
	if err != nil {
		return err
	}

	untagged := !strings.Contains(model, ":")
	names := make([]string, 0, len(models))
	byName := make(map[string]string, len(models))
	for _, m := range models {
		if m.Name == model || m.Name == model+":latest" {
			return nil
		}
		key := m.Name
		if untagged {
			key = strings.TrimSuffix(key, ":latest")
		}
		names = append(names, key)
		byName[key] = m.Name
	}

	unknown := &UnknownModelError{Model: model}
	if suggestion, ok := SuggestModel(model, names); ok {
		unknown.Suggestion = byName[suggestion]
	}
	return unknown
}
