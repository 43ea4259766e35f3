package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mbolis/form-forge/app"
	"github.com/mbolis/form-forge/database"
	"github.com/mbolis/form-forge/routes/middlewares"
	"github.com/mbolis/form-forge/testutil"
	"github.com/stretchr/testify/require"
)

func newTestApp(t *testing.T) app.App {
	t.Helper()

	cfg := testutil.TestConfig(t)
	db, err := database.Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return app.App{
		DB:     db,
		Config: cfg,
	}
}

// authRequest builds a request that already passed the auth middleware, with
// optional chi URL params as alternating key/value pairs.
func authRequest(t *testing.T, method, target string, body any, userId string, params ...string) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	r := httptest.NewRequest(method, target, &buf)
	r.Header.Set("Content-Type", "application/json")

	ctx := middlewares.WithUserID(r.Context(), userId)
	rctx := chi.NewRouteContext()
	for i := 0; i+1 < len(params); i += 2 {
		rctx.URLParams.Add(params[i], params[i+1])
	}
	ctx = context.WithValue(ctx, chi.RouteCtxKey, rctx)

	return r.WithContext(ctx)
}

func timeNowUTC() time.Time {
	return time.Now().UTC()
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}
