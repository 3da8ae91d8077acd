package models

import (
	"fmt"
	"strings"
)

// ModelRef identifies a backend model in provider/model form.
type ModelRef struct {
	ProviderID string `json:"providerID"`
	ModelID    string `json:"modelID"`
}

// ParseModelRef parses a "provider/model" string. The model segment may
// itself contain slashes (openrouter-style paths).
func ParseModelRef(s string) (ModelRef, error) {
	provider, model, ok := strings.Cut(s, "/")
	if !ok || provider == "" || model == "" {
		return ModelRef{}, fmt.Errorf("invalid model reference %q: want provider/model", s)
	}
	return ModelRef{ProviderID: provider, ModelID: model}, nil
}

// String returns the provider/model form.
func (m ModelRef) String() string {
	return m.ProviderID + "/" + m.ModelID
}

// PromptPart is a backend-agnostic request fragment.
type PromptPart struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Mime     string `json:"mime,omitempty"`
	Filename string `json:"filename,omitempty"`
	URL      string `json:"url,omitempty"`
	Name     string `json:"name,omitempty"`
}

// PromptPayload is the replacement request submitted to the host after a
// fallback triggers. It must carry at least one part.
type PromptPayload struct {
	Model ModelRef     `json:"model"`
	Agent string       `json:"agent,omitempty"`
	Parts []PromptPart `json:"parts"`
}
