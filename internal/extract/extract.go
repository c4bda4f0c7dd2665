// Package extract pulls structured records out of free text with the LLM.
package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNoJSON is returned when the model reply holds no JSON object.
var ErrNoJSON = errors.New("extract: no JSON object in model reply")

// Completer answers a single prompt. *llm.Client implements it.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// Resume is the structured form of a resume.
type Resume struct {
	Name       string   `json:"name"`
	Email      string   `json:"email"`
	Experience []string `json:"experience"`
	Skills     []string `json:"skills"`
}

const resumeSystem = "You extract structured data from resumes. " +
	"Reply with a single JSON object and nothing else."

const resumePrompt = `Extract the following fields from the resume below:
  "name": string
  "email": string
  "experience": array of strings, one per position
  "skills": array of strings

Resume:
---
%s
---

JSON:`

// ExtractResume asks the model for the resume fields of text.
func ExtractResume(ctx context.Context, c Completer, text string) (*Resume, error) {
	reply, err := c.Complete(ctx, resumeSystem, fmt.Sprintf(resumePrompt, strings.TrimSpace(text)))
	if err != nil {
		return nil, fmt.Errorf("extract resume: %w", err)
	}

	var r Resume
	if err := firstObject(reply, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// firstObject decodes the first JSON object in s into v. Text around the
// object, such as a code fence, is ignored.
func firstObject(s string, v any) error {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ErrNoJSON
	}
	if err := json.NewDecoder(strings.NewReader(s[start:])).Decode(v); err != nil {
		return fmt.Errorf("extract: decode model reply: %w", err)
	}
	return nil
}
