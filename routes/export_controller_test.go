package routes

import (
	"encoding/csv"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mbolis/form-forge/model"
	"github.com/mbolis/form-forge/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportSubmissionsCSV(t *testing.T) {
	a := newTestApp(t)
	userId := testutil.CreateTestUser(t, a.DB, "owner", model.PlanFree)
	formId := testutil.CreateTestForm(t, a.DB, userId, model.FormStatusPublished, "contact", true)
	nameId := testutil.AddTestField(t, a.DB, formId, model.FieldText, "Name", true, 0)
	colorsId := testutil.AddTestField(t, a.DB, formId, model.FieldCheckbox, "Colors", false, 1)
	cvId := testutil.AddTestField(t, a.DB, formId, model.FieldFile, "CV", false, 2)

	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	first := testutil.InsertTestSubmission(t, a.DB, formId, "v1", base, map[string]any{
		nameId:   "Ada",
		colorsId: []any{"red", "green"},
	})
	second := testutil.InsertTestSubmission(t, a.DB, formId, "v2", base.Add(time.Hour), map[string]any{
		nameId: "Grace",
		cvId:   map[string]any{"url": "http://files.test/cv.pdf", "name": "cv.pdf"},
	})

	w := httptest.NewRecorder()
	ExportSubmissionsCSV(a)(w, authRequest(t, "GET", "/api/export?formId="+formId, nil, userId))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "text/csv; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment")

	records, err := csv.NewReader(strings.NewReader(w.Body.String())).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3, "header plus one row per submission")

	headers := records[0]
	require.Equal(t, []string{"Form Title", "Submission ID", "Submitted At"}, headers[:3])
	col := map[string]int{}
	for i, h := range headers {
		col[h] = i
	}
	require.Contains(t, col, "Name")
	require.Contains(t, col, "Colors")
	require.Contains(t, col, "CV")

	row := records[1]
	assert.Equal(t, "Test Form", row[0])
	assert.Equal(t, first, row[1])
	assert.Equal(t, base.Format(time.RFC3339), row[2])
	assert.Equal(t, "Ada", row[col["Name"]])
	assert.Equal(t, "red; green", row[col["Colors"]])
	assert.Equal(t, "", row[col["CV"]])

	row = records[2]
	assert.Equal(t, second, row[1])
	assert.Equal(t, "Grace", row[col["Name"]])
	assert.Equal(t, "http://files.test/cv.pdf", row[col["CV"]], "file answers export the public URL")
}

func TestExportAllOwnedForms(t *testing.T) {
	a := newTestApp(t)
	userId := testutil.CreateTestUser(t, a.DB, "owner", model.PlanFree)
	otherId := testutil.CreateTestUser(t, a.DB, "other", model.PlanFree)
	firstForm := testutil.CreateTestForm(t, a.DB, userId, model.FormStatusPublished, "one", true)
	secondForm := testutil.CreateTestForm(t, a.DB, userId, model.FormStatusPublished, "two", true)
	otherForm := testutil.CreateTestForm(t, a.DB, otherId, model.FormStatusPublished, "theirs", true)

	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	testutil.InsertTestSubmission(t, a.DB, firstForm, "v1", base, nil)
	testutil.InsertTestSubmission(t, a.DB, secondForm, "v2", base.Add(time.Minute), nil)
	testutil.InsertTestSubmission(t, a.DB, otherForm, "v3", base.Add(2*time.Minute), nil)

	w := httptest.NewRecorder()
	ExportSubmissionsCSV(a)(w, authRequest(t, "GET", "/api/export", nil, userId))
	require.Equal(t, http.StatusOK, w.Code)

	records, err := csv.NewReader(strings.NewReader(w.Body.String())).ReadAll()
	require.NoError(t, err)
	assert.Len(t, records, 3, "another account's submissions are never included")
}

func TestExportUnownedFormRejected(t *testing.T) {
	a := newTestApp(t)
	userId := testutil.CreateTestUser(t, a.DB, "owner", model.PlanFree)
	otherId := testutil.CreateTestUser(t, a.DB, "other", model.PlanFree)
	otherForm := testutil.CreateTestForm(t, a.DB, otherId, model.FormStatusPublished, "theirs", true)

	w := httptest.NewRecorder()
	ExportSubmissionsCSV(a)(w, authRequest(t, "GET", "/api/export?formId="+otherForm, nil, userId))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
