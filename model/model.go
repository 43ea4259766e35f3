package model

import (
	"errors"
	"fmt"
	"time"
)

type FormStatus string

const (
	FormStatusDraft     FormStatus = "draft"
	FormStatusPublished FormStatus = "published"
)

type Plan string

const (
	PlanFree Plan = "free"
	PlanPro  Plan = "pro"
)

// FieldType is the closed enumeration of input kinds a form may contain.
type FieldType string

const (
	FieldText     FieldType = "text"
	FieldTextarea FieldType = "textarea"
	FieldEmail    FieldType = "email"
	FieldNumber   FieldType = "number"
	FieldPhone    FieldType = "phone"
	FieldURL      FieldType = "url"
	FieldSelect   FieldType = "select"
	FieldRadio    FieldType = "radio"
	FieldCheckbox FieldType = "checkbox"
	FieldDate     FieldType = "date"
	FieldTime     FieldType = "time"
	FieldRating   FieldType = "rating"
	FieldAddress  FieldType = "address"
	FieldFile     FieldType = "file"
	FieldColor    FieldType = "color"
)

var fieldTypes = []FieldType{
	FieldText, FieldTextarea, FieldEmail, FieldNumber, FieldPhone,
	FieldURL, FieldSelect, FieldRadio, FieldCheckbox, FieldDate,
	FieldTime, FieldRating, FieldAddress, FieldFile, FieldColor,
}

func (t FieldType) Valid() bool {
	for _, known := range fieldTypes {
		if t == known {
			return true
		}
	}
	return false
}

// FieldTypeNames lists every valid field type as plain strings.
func FieldTypeNames() []string {
	names := make([]string, len(fieldTypes))
	for i, t := range fieldTypes {
		names[i] = string(t)
	}
	return names
}

type Form struct {
	ID                     string     `json:"id"`
	UserID                 string     `json:"-"`
	Title                  string     `json:"title"`
	Description            string     `json:"description,omitempty"`
	Status                 FormStatus `json:"status"`
	Slug                   string     `json:"slug,omitempty"`
	AllowMultipleResponses bool       `json:"allow_multiple_responses"`
	CreatedAt              time.Time  `json:"created_at"`
}

type FormField struct {
	ID          string         `json:"id"`
	FormID      string         `json:"-"`
	Type        FieldType      `json:"type"`
	Label       string         `json:"label"`
	Placeholder string         `json:"placeholder,omitempty"`
	Required    bool           `json:"required"`
	Options     []string       `json:"options,omitempty"`
	Validation  map[string]any `json:"validation,omitempty"`
	Position    int            `json:"position"`
}

// FieldSpec is a client-supplied field definition. ID may be empty (or a
// temporary client id unknown to storage) to signal a not-yet-persisted field.
// Position, when present and non-negative, overrides the array index.
type FieldSpec struct {
	ID          string         `json:"id,omitempty"`
	Type        FieldType      `json:"type"`
	Label       string         `json:"label"`
	Placeholder string         `json:"placeholder,omitempty"`
	Required    bool           `json:"required"`
	Options     []string       `json:"options,omitempty"`
	Validation  map[string]any `json:"validation,omitempty"`
	Position    *int           `json:"position,omitempty"`
}

// FormSpec is the shape shared by form creation and AI generation output.
type FormSpec struct {
	Title       string      `json:"title"`
	Description string      `json:"description,omitempty"`
	Fields      []FieldSpec `json:"fields"`
}

func (s FormSpec) Validate() error {
	if s.Title == "" {
		return errors.New("title is required")
	}
	for i, f := range s.Fields {
		if f.Label == "" {
			return fmt.Errorf("fields[%d]: label is required", i)
		}
		if !f.Type.Valid() {
			return fmt.Errorf("fields[%d]: unknown type %q", i, f.Type)
		}
	}
	return nil
}

type Submission struct {
	ID           string         `json:"id"`
	FormID       string         `json:"form_id"`
	Data         map[string]any `json:"data"`
	UserID       string         `json:"user_id,omitempty"`
	VisitorToken string         `json:"-"`
	CreatedAt    time.Time      `json:"created_at"`
}

// FileValue is the structured descriptor stored in place of an uploaded file.
type FileValue struct {
	URL  string `json:"url"`
	Path string `json:"path"`
	Name string `json:"name"`
	Type string `json:"type"`
	Size int64  `json:"size"`
}
