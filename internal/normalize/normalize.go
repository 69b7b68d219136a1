// Package normalize converts raw model output into the structured answer
// contract. Normalization is total: every raw row yields a normalized row,
// with parse problems recorded in the status rather than returned as errors.
package normalize

import (
	"encoding/json"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/voxmetrics/sentinel/internal/model"
)

// contract is the JSON shape models are prompted to answer with.
type contract struct {
	Answer     string   `json:"answer"`
	Confidence *float64 `json:"confidence"`
	Citations  []string `json:"citations"`
}

// Normalize maps a raw response to its normalized form. Non-success rows
// and blank payloads come out empty, unparseable JSON comes out malformed,
// and anything else falls back to treating the whole payload as the answer.
func Normalize(raw model.ResponseRaw) model.ResponseNormalized {
	out := model.ResponseNormalized{
		ID:       raw.ID,
		Subject:  raw.Subject,
		PromptID: raw.PromptID,
		Model:    raw.Model,
		TS:       raw.TS,
		Status:   model.NormalizedValid,
		RawRef:   raw.ID,
	}

	payload := strings.TrimSpace(raw.Raw)
	if raw.Status != model.ResponseSuccess || payload == "" {
		out.Status = model.NormalizedEmpty
		return out
	}

	var c contract
	if err := json.Unmarshal([]byte(payload), &c); err == nil {
		out.Answer = cleanText(c.Answer)
		if c.Confidence != nil {
			v := clamp01(*c.Confidence)
			out.Confidence = &v
		}
		out.Citations = dedupeCitations(c.Citations)
		if out.Answer == "" {
			out.Status = model.NormalizedEmpty
		}
	} else if strings.HasPrefix(payload, "{") {
		// Looks like JSON but is not. Keep the raw text around for
		// inspection, but flag it so drift treats it as a contract break.
		out.Status = model.NormalizedMalformed
		out.Answer = cleanText(payload)
	} else {
		// Plain prose answer. Models that ignore the JSON contract still
		// produce a usable row.
		out.Answer = cleanText(payload)
		if out.Answer == "" {
			out.Status = model.NormalizedEmpty
		}
	}

	return out
}

// cleanText applies NFC so byte-level comparisons are not fooled by
// equivalent Unicode sequences.
func cleanText(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func dedupeCitations(citations []string) []string {
	if len(citations) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(citations))
	out := make([]string, 0, len(citations))
	for _, c := range citations {
		c = cleanText(c)
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
