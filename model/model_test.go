package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFieldTypeValid(t *testing.T) {
	assert.True(t, FieldText.Valid())
	assert.True(t, FieldFile.Valid())
	assert.False(t, FieldType("").Valid())
	assert.False(t, FieldType("dropdown").Valid())
}

func TestFieldTypeNames(t *testing.T) {
	names := FieldTypeNames()
	assert.Len(t, names, len(fieldTypes))
	assert.Contains(t, names, "text")
	assert.Contains(t, names, "checkbox")
}

func TestFormSpecValidate(t *testing.T) {
	spec := FormSpec{
		Title: "Feedback",
		Fields: []FieldSpec{
			{Type: FieldText, Label: "Name"},
			{Type: FieldEmail, Label: "Email", Required: true},
		},
	}
	assert.NoError(t, spec.Validate())

	spec.Title = ""
	assert.EqualError(t, spec.Validate(), "title is required")

	spec.Title = "Feedback"
	spec.Fields[1].Label = ""
	assert.EqualError(t, spec.Validate(), "fields[1]: label is required")

	spec.Fields[1].Label = "Email"
	spec.Fields[0].Type = "dropdown"
	assert.EqualError(t, spec.Validate(), `fields[0]: unknown type "dropdown"`)
}
