// Package testutil spins up throwaway databases and seeds domain rows for
// tests.
package testutil

import (
	"database/sql"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofrs/uuid"
	"github.com/mbolis/form-forge/config"
	"github.com/mbolis/form-forge/database"
	"github.com/mbolis/form-forge/model"
)

// TestConfig returns a config pointing at a fresh sqlite file under the
// test's temp dir, with migrations applied on open.
func TestConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		Addr:        "localhost:0",
		DBUrl:       filepath.Join(t.TempDir(), "test.sqlite"),
		TokenSecret: "test-token-secret",
		TokenTTL:    2 * time.Minute,
	}
}

func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := database.Open(TestConfig(t))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return db
}

// CreateTestUser inserts an account with the given plan and returns its id.
func CreateTestUser(t *testing.T, db *sql.DB, username string, plan model.Plan) string {
	t.Helper()

	userId := newId(t)
	_, err := db.Exec(`
		INSERT INTO user (id, username, password_hash, created_at)
		VALUES (?, ?, 'x', ?)`,
		userId, username, time.Now().UTC())
	if err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	_, err = db.Exec(`INSERT INTO profile (user_id, plan) VALUES (?, ?)`, userId, plan)
	if err != nil {
		t.Fatalf("failed to create test profile: %v", err)
	}
	return userId
}

// CreateTestForm inserts a form and returns its id. Slug may be empty for
// drafts.
func CreateTestForm(t *testing.T, db *sql.DB, userId string, status model.FormStatus, formSlug string, allowMultiple bool) string {
	t.Helper()

	formId := newId(t)
	var slugValue any
	if formSlug != "" {
		slugValue = formSlug
	}
	_, err := db.Exec(`
		INSERT INTO form (id, user_id, title, description, status, slug, allow_multiple_responses, created_at)
		VALUES (?, ?, 'Test Form', '', ?, ?, ?, ?)`,
		formId, userId, status, slugValue, allowMultiple, time.Now().UTC())
	if err != nil {
		t.Fatalf("failed to create test form: %v", err)
	}
	return formId
}

// AddTestField inserts one field definition and returns its id.
func AddTestField(t *testing.T, db *sql.DB, formId string, typ model.FieldType, label string, required bool, position int) string {
	t.Helper()

	fieldId := newId(t)
	_, err := db.Exec(`
		INSERT INTO form_field (id, form_id, type, label, required, position)
		VALUES (?, ?, ?, ?, ?, ?)`,
		fieldId, formId, typ, label, required, position)
	if err != nil {
		t.Fatalf("failed to create test field: %v", err)
	}
	return fieldId
}

// InsertTestSubmission inserts a submission row directly, bypassing intake.
func InsertTestSubmission(t *testing.T, db *sql.DB, formId, visitorToken string, createdAt time.Time, data map[string]any) string {
	t.Helper()

	if data == nil {
		data = map[string]any{}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("failed to marshal submission data: %v", err)
	}

	submissionId := newId(t)
	_, err = db.Exec(`
		INSERT INTO submission (id, form_id, data, visitor_token, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		submissionId, formId, string(raw), visitorToken, createdAt.UTC())
	if err != nil {
		t.Fatalf("failed to create test submission: %v", err)
	}
	return submissionId
}

// CountRows counts rows in a table matching a single-column predicate.
func CountRows(t *testing.T, db *sql.DB, table, column string, value any) int {
	t.Helper()

	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM `+table+` WHERE `+column+` = ?`, value).Scan(&count)
	if err != nil {
		t.Fatalf("failed to count %s rows: %v", table, err)
	}
	return count
}

func newId(t *testing.T) string {
	t.Helper()

	id, err := uuid.NewV4()
	if err != nil {
		t.Fatalf("failed to generate id: %v", err)
	}
	return id.String()
}
