package ingest

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Validate checks that a document is non-empty and plausibly of its
// declared type.
func Validate(doc RawDocument) error {
	if len(doc.Content) == 0 {
		return fmt.Errorf("%w: empty document", ErrValidation)
	}

	content := string(doc.Content)
	switch doc.Metadata.DocType {
	case TypeSolidity:
		return validateSolidity(content)
	case TypeMarkdown:
		return validateMarkdown(content)
	case TypeJSON:
		return validateJSON(doc.Content)
	default:
		return nil
	}
}

func validateSolidity(content string) error {
	if !strings.Contains(content, "pragma solidity") &&
		!strings.Contains(content, "contract ") &&
		!strings.Contains(content, "interface ") {
		return fmt.Errorf("%w: not a valid Solidity file", ErrValidation)
	}
	if !strings.Contains(content, "{") || !strings.Contains(content, "}") {
		return fmt.Errorf("%w: invalid Solidity structure", ErrValidation)
	}
	return nil
}

func validateMarkdown(content string) error {
	if strings.ContainsAny(content, "#-*[|") || strings.Contains(content, "```") {
		return nil
	}
	return fmt.Errorf("%w: invalid markdown structure", ErrValidation)
}

func validateJSON(content []byte) error {
	if !json.Valid(content) {
		return fmt.Errorf("%w: invalid JSON", ErrValidation)
	}
	return nil
}
