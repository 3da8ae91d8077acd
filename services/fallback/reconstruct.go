package fallback

import "github.com/llmops/session-fallback/models"

// Reconstruct converts a user message's parts into backend-agnostic
// prompt parts. Synthetic parts and parts missing required fields are
// dropped silently; source order is preserved. Callers treat an empty
// result as failure.
func Reconstruct(parts []models.MessagePart) []models.PromptPart {
	out := make([]models.PromptPart, 0, len(parts))
	for _, p := range parts {
		if p.Synthetic {
			continue
		}

		switch p.Type {
		case models.PartText:
			if p.Text == "" {
				continue
			}
			out = append(out, models.PromptPart{
				Type: models.PartText,
				Text: p.Text,
			})
		case models.PartFile:
			if p.URL == "" || p.Mime == "" {
				continue
			}
			out = append(out, models.PromptPart{
				Type:     models.PartFile,
				Mime:     p.Mime,
				Filename: p.Filename,
				URL:      p.URL,
			})
		case models.PartAgent:
			if p.Name == "" {
				continue
			}
			out = append(out, models.PromptPart{
				Type: models.PartAgent,
				Name: p.Name,
			})
		}
	}
	return out
}
