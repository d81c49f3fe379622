// Package models - Recipe input validation.
// Recipe names are both the routing key and the storage key, so the proxy and
// the shard store must run exactly the same sanitization defined here.
package models

import (
	"encoding/json"
	"strings"
	"unicode/utf8"
)

const (
	MaxRecipeNameLength = 100
	MaxIngredients      = 50
	MaxIngredientLength = 100
)

// Validation messages returned to clients in the error field.
const (
	MsgRecipeNameRequired  = "Recipe name is required"
	MsgRecipeNameTooLong   = "Recipe name too long (max 100 characters)"
	MsgIngredientsNotArray = "Ingredients must be an array"
	MsgIngredientsEmpty    = "At least one ingredient is required"
	MsgTooManyIngredients  = "Too many ingredients (max 50)"
)

// ValidationError is a client-fault rejection of recipe input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

func newValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// RecipeRequest is the body of POST /recipe/{name}. Ingredients is kept raw
// so that a non-array value can be told apart from a missing one.
type RecipeRequest struct {
	Ingredients json.RawMessage `json:"ingredients"`
}

// Recipe is the shard store representation returned by GET /recipe/{name}.
type Recipe struct {
	Name        string   `json:"name"`
	Ingredients []string `json:"ingredients"`
}

// ValidateRecipeName rejects blank or oversized names and returns the
// sanitized routing key. The length limit applies to the raw value; an input
// is never truncated to fit.
func ValidateRecipeName(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", newValidationError("name", MsgRecipeNameRequired)
	}

	if utf8.RuneCountInString(raw) > MaxRecipeNameLength {
		return "", newValidationError("name", MsgRecipeNameTooLong)
	}

	name := SanitizeRecipeName(raw)
	if name == "" {
		return "", newValidationError("name", MsgRecipeNameRequired)
	}

	return name, nil
}

// SanitizeRecipeName trims surrounding whitespace and drops every character
// outside the canonical class: ASCII letters, ASCII digits, ASCII whitespace
// (space, \t, \n, \v, \f, \r), hyphen and underscore.
func SanitizeRecipeName(name string) string {
	trimmed := strings.TrimSpace(name)

	var b strings.Builder
	b.Grow(len(trimmed))
	for _, r := range trimmed {
		if isNameRune(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isNameRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '-', r == '_':
		return true
	case r == ' ', r == '\t', r == '\n', r == '\v', r == '\f', r == '\r':
		return true
	}
	return false
}

// ValidateIngredients checks the raw ingredients value and returns the
// sequence to forward. The count limit is checked on the original length.
// Non-string and blank elements are dropped, each survivor is trimmed and cut
// to MaxIngredientLength runes. Order and duplicates are preserved.
func ValidateIngredients(raw json.RawMessage) ([]string, error) {
	var values []any
	if len(raw) == 0 || string(raw) == "null" {
		return nil, newValidationError("ingredients", MsgIngredientsNotArray)
	}
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, newValidationError("ingredients", MsgIngredientsNotArray)
	}

	if len(values) == 0 {
		return nil, newValidationError("ingredients", MsgIngredientsEmpty)
	}

	if len(values) > MaxIngredients {
		return nil, newValidationError("ingredients", MsgTooManyIngredients)
	}

	return SanitizeIngredients(values), nil
}

// SanitizeIngredients filters and normalizes already-decoded values.
func SanitizeIngredients(values []any) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		out = append(out, truncateRunes(s, MaxIngredientLength))
		if len(out) == MaxIngredients {
			break
		}
	}
	return out
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit])
}
