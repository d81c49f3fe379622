package models

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateRecipeName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
		message  string
	}{
		{name: "plain name", input: "Pancakes", expected: "Pancakes"},
		{name: "trimmed", input: "  Apple Pie  ", expected: "Apple Pie"},
		{name: "diacritics and punctuation stripped", input: "  Café!!  ", expected: "Caf"},
		{name: "hyphen underscore digits kept", input: "7-Up_float 2", expected: "7-Up_float 2"},
		{name: "empty", input: "", message: MsgRecipeNameRequired},
		{name: "whitespace only", input: " \t ", message: MsgRecipeNameRequired},
		{name: "nothing left after stripping", input: "!!!", message: MsgRecipeNameRequired},
		{name: "too long", input: strings.Repeat("a", 101), message: MsgRecipeNameTooLong},
		{name: "exactly at limit", input: strings.Repeat("b", 100), expected: strings.Repeat("b", 100)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateRecipeName(tt.input)
			if tt.message != "" {
				require.Error(t, err)
				var verr *ValidationError
				require.True(t, errors.As(err, &verr))
				assert.Equal(t, "name", verr.Field)
				assert.Equal(t, tt.message, verr.Message)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestValidateRecipeName_LengthCheckedBeforeTrim(t *testing.T) {
	// 98 letters padded with spaces is 102 characters on the wire
	_, err := ValidateRecipeName(" " + strings.Repeat("x", 98) + "   ")
	require.Error(t, err)
	assert.Contains(t, err.Error(), MsgRecipeNameTooLong)
}

func TestSanitizeRecipeName_Idempotent(t *testing.T) {
	inputs := []string{"Honey Cake", " Rice & Beans ", "Zest<script>", "Crème brûlée"}
	for _, in := range inputs {
		once := SanitizeRecipeName(in)
		assert.Equal(t, once, SanitizeRecipeName(once), "input %q", in)
	}
}

func TestValidateIngredients(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected []string
		message  string
	}{
		{
			name:     "order and duplicates preserved",
			raw:      `["Flour", "", "  Sugar  ", "Flour"]`,
			expected: []string{"Flour", "Sugar", "Flour"},
		},
		{
			name:     "non-string elements dropped",
			raw:      `["Egg", 42, null, {"a": 1}, "Milk"]`,
			expected: []string{"Egg", "Milk"},
		},
		{name: "missing", raw: ``, message: MsgIngredientsNotArray},
		{name: "null", raw: `null`, message: MsgIngredientsNotArray},
		{name: "string", raw: `"Egg"`, message: MsgIngredientsNotArray},
		{name: "object", raw: `{"0": "Egg"}`, message: MsgIngredientsNotArray},
		{name: "empty array", raw: `[]`, message: MsgIngredientsEmpty},
		{name: "all blank is accepted but empty", raw: `["", "  "]`, expected: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateIngredients(json.RawMessage(tt.raw))
			if tt.message != "" {
				require.Error(t, err)
				var verr *ValidationError
				require.True(t, errors.As(err, &verr))
				assert.Equal(t, "ingredients", verr.Field)
				assert.Equal(t, tt.message, verr.Message)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestValidateIngredients_TooManyCheckedOnOriginalLength(t *testing.T) {
	values := make([]string, 51)
	for i := range values {
		values[i] = "" // would all be filtered out
	}
	raw, err := json.Marshal(values)
	require.NoError(t, err)

	_, err = ValidateIngredients(raw)
	require.Error(t, err)
	assert.Contains(t, err.Error(), MsgTooManyIngredients)
}

func TestValidateIngredients_Truncates(t *testing.T) {
	long := strings.Repeat("é", 150)
	raw, err := json.Marshal([]string{long})
	require.NoError(t, err)

	got, err := ValidateIngredients(raw)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, strings.Repeat("é", MaxIngredientLength), got[0])
}

func TestSanitizeIngredients_CapsResult(t *testing.T) {
	values := make([]any, 60)
	for i := range values {
		values[i] = "salt"
	}
	assert.Len(t, SanitizeIngredients(values), MaxIngredients)
}
