package ai

import (
	"testing"

	"github.com/mbolis/form-forge/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleSpec = `{
	"title": "Event Signup",
	"description": "Register for the meetup",
	"fields": [
		{"type": "text", "label": "Name", "required": true},
		{"type": "email", "label": "Email", "required": true},
		{"type": "select", "label": "T-shirt size", "options": ["S", "M", "L"]}
	]
}`

func TestParseSpec(t *testing.T) {
	spec, err := ParseSpec(sampleSpec)
	require.NoError(t, err)
	assert.Equal(t, "Event Signup", spec.Title)
	require.Len(t, spec.Fields, 3)
	assert.Equal(t, model.FieldEmail, spec.Fields[1].Type)
	assert.True(t, spec.Fields[1].Required)
	assert.Equal(t, []string{"S", "M", "L"}, spec.Fields[2].Options)
}

func TestParseSpecStripsCodeFences(t *testing.T) {
	spec, err := ParseSpec("```json\n" + sampleSpec + "\n```")
	require.NoError(t, err)
	assert.Equal(t, "Event Signup", spec.Title)

	spec, err = ParseSpec("```\n" + sampleSpec + "\n```  ")
	require.NoError(t, err)
	assert.Equal(t, "Event Signup", spec.Title)
}

func TestParseSpecInvalidJSON(t *testing.T) {
	_, err := ParseSpec("The form should have a name field and an email field.")
	assert.ErrorContains(t, err, "invalid generator response")
}

func TestParseSpecRejectsInvalidFields(t *testing.T) {
	_, err := ParseSpec(`{"title": "X", "fields": [{"type": "hologram", "label": "L"}]}`)
	assert.ErrorContains(t, err, "generator output failed validation")

	_, err = ParseSpec(`{"fields": []}`)
	assert.ErrorContains(t, err, "title is required")
}
