package routes

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/mbolis/form-forge/model"
	"github.com/mbolis/form-forge/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func postForm(handler http.Handler, target string, values url.Values, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	r := httptest.NewRequest("POST", target, strings.NewReader(values.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for _, c := range cookies {
		r.AddCookie(c)
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	return w
}

func visitorCookie(t *testing.T, w *httptest.ResponseRecorder, formId string) *http.Cookie {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == "v_"+formId {
			return c
		}
	}
	t.Fatalf("no visitor cookie for form %s", formId)
	return nil
}

func TestPublicSubmitFlow(t *testing.T) {
	a := newTestApp(t)
	handler := Wire(a)

	userId := testutil.CreateTestUser(t, a.DB, "owner", model.PlanFree)
	formId := testutil.CreateTestForm(t, a.DB, userId, model.FormStatusPublished, "contact", false)
	nameId := testutil.AddTestField(t, a.DB, formId, model.FieldText, "Name", true, 0)

	w := postForm(handler, "/api/forms/"+formId+"/submit", url.Values{nameId: {"Ada"}})
	require.Equal(t, http.StatusSeeOther, w.Code, w.Body.String())
	assert.Equal(t, "/f/contact?submitted=1", w.Header().Get("Location"))

	cookie := visitorCookie(t, w, formId)
	assert.NotEmpty(t, cookie.Value)
	assert.Equal(t, 60*60*24*365, cookie.MaxAge)

	// same visitor again: suppressed
	w = postForm(handler, "/api/forms/"+formId+"/submit", url.Values{nameId: {"Ada"}}, cookie)
	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/f/contact?error=already_submitted", w.Header().Get("Location"))
	assert.Equal(t, 1, testutil.CountRows(t, a.DB, "submission", "form_id", formId))
}

func TestPublicSubmitValidationFailureRedirects(t *testing.T) {
	a := newTestApp(t)
	handler := Wire(a)

	userId := testutil.CreateTestUser(t, a.DB, "owner", model.PlanFree)
	formId := testutil.CreateTestForm(t, a.DB, userId, model.FormStatusPublished, "contact", true)
	testutil.AddTestField(t, a.DB, formId, model.FieldText, "Name", true, 0)

	w := postForm(handler, "/api/forms/"+formId+"/submit", url.Values{})
	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/f/contact?error=failed", w.Header().Get("Location"))
	assert.Empty(t, w.Result().Cookies(), "no visitor cookie on rejection")
}

func TestPublicSubmitUnknownForm(t *testing.T) {
	a := newTestApp(t)
	handler := Wire(a)

	w := postForm(handler, "/api/forms/missing/submit", url.Values{})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPublicGetFormBySlug(t *testing.T) {
	a := newTestApp(t)
	handler := Wire(a)

	userId := testutil.CreateTestUser(t, a.DB, "owner", model.PlanFree)
	formId := testutil.CreateTestForm(t, a.DB, userId, model.FormStatusPublished, "contact", true)
	testutil.AddTestField(t, a.DB, formId, model.FieldText, "Name", true, 0)
	testutil.AddTestField(t, a.DB, formId, model.FieldEmail, "Email", false, 1)

	r := httptest.NewRequest("GET", "/api/f/contact", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	form := body["form"].(map[string]any)
	assert.Equal(t, formId, form["id"])
	assert.Equal(t, "contact", form["slug"])
	assert.Len(t, body["fields"].([]any), 2)
	assert.Equal(t, false, body["submitted"])
}

func TestPublicGetFormDraftHidden(t *testing.T) {
	a := newTestApp(t)
	handler := Wire(a)

	userId := testutil.CreateTestUser(t, a.DB, "owner", model.PlanFree)
	testutil.CreateTestForm(t, a.DB, userId, model.FormStatusDraft, "sneak-peek", true)

	r := httptest.NewRequest("GET", "/api/f/sneak-peek", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPublicGetFormSubmittedFlag(t *testing.T) {
	a := newTestApp(t)
	handler := Wire(a)

	userId := testutil.CreateTestUser(t, a.DB, "owner", model.PlanFree)
	formId := testutil.CreateTestForm(t, a.DB, userId, model.FormStatusPublished, "once", false)
	testutil.InsertTestSubmission(t, a.DB, formId, "returning-visitor", timeNowUTC(), nil)

	r := httptest.NewRequest("GET", "/api/f/once", nil)
	r.AddCookie(&http.Cookie{Name: "v_" + formId, Value: "returning-visitor"})
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, true, decodeBody(t, w)["submitted"])
}

func TestPublicRecordView(t *testing.T) {
	a := newTestApp(t)
	handler := Wire(a)

	userId := testutil.CreateTestUser(t, a.DB, "owner", model.PlanFree)
	formId := testutil.CreateTestForm(t, a.DB, userId, model.FormStatusPublished, "contact", true)

	w := postForm(handler, "/api/forms/"+formId+"/view", url.Values{})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, testutil.CountRows(t, a.DB, "form_view", "form_id", formId))

	// repeat views from the same visitor are all recorded
	cookie := visitorCookie(t, w, formId)
	w = postForm(handler, "/api/forms/"+formId+"/view", url.Values{}, cookie)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, testutil.CountRows(t, a.DB, "form_view", "form_id", formId))
	assert.Equal(t, cookie.Value, visitorCookie(t, w, formId).Value, "visitor token is stable")
}

func TestSignup(t *testing.T) {
	a := newTestApp(t)

	req := map[string]any{"username": "ada@example.com", "password": "s3cret-pass"}
	w := httptest.NewRecorder()
	Signup(a)(w, authRequest(t, "POST", "/api/signup", req, ""))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	userId := decodeBody(t, w)["id"].(string)
	assert.Equal(t, 1, testutil.CountRows(t, a.DB, "profile", "user_id", userId))

	// duplicate username
	w = httptest.NewRecorder()
	Signup(a)(w, authRequest(t, "POST", "/api/signup", req, ""))
	assert.Equal(t, http.StatusConflict, w.Code)

	// short password
	w = httptest.NewRecorder()
	Signup(a)(w, authRequest(t, "POST", "/api/signup", map[string]any{"username": "bob", "password": "short"}, ""))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
