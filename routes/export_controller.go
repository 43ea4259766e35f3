package routes

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mbolis/form-forge/app"
	"github.com/mbolis/form-forge/httpx"
	"github.com/mbolis/form-forge/log"
	"github.com/mbolis/form-forge/routes/middlewares"
)

// ExportSubmissionsCSV streams the caller's submissions as CSV. Scope is one
// form (?formId=), a list (?formIds=a,b,c) or every owned form; columns are
// the static headers plus the union of field labels across the scope.
func ExportSubmissionsCSV(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userId := middlewares.UserID(r)

		var scope []string
		if id := r.URL.Query().Get("formId"); id != "" {
			scope = []string{id}
		} else if ids := r.URL.Query().Get("formIds"); ids != "" {
			for _, id := range strings.Split(ids, ",") {
				if id = strings.TrimSpace(id); id != "" {
					scope = append(scope, id)
				}
			}
		}

		// resolve titles, dropping ids the caller does not own
		query := `SELECT id, title FROM form WHERE user_id = ?`
		args := []any{userId}
		if len(scope) > 0 {
			query += ` AND id IN (` + placeholders(len(scope)) + `)`
			for _, id := range scope {
				args = append(args, id)
			}
		}
		rows, err := app.QueryContext(r.Context(), query, args...)
		if err != nil {
			httpx.LogInternalError(w, "db.export.forms", err)
			return
		}
		defer rows.Close()

		titles := map[string]string{}
		formIds := []string{}
		for rows.Next() {
			var id, title string
			if err = rows.Scan(&id, &title); err != nil {
				httpx.LogInternalError(w, "db.export.forms.scan", err)
				return
			}
			titles[id] = title
			formIds = append(formIds, id)
		}
		if len(formIds) == 0 {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "export.no_forms")
			return
		}

		inForms := placeholders(len(formIds))
		formArgs := make([]any, len(formIds))
		for i, id := range formIds {
			formArgs[i] = id
		}

		labels := map[string]string{}
		rows, err = app.QueryContext(r.Context(),
			`SELECT id, label FROM form_field WHERE form_id IN (`+inForms+`)`, formArgs...)
		if err != nil {
			httpx.LogInternalError(w, "db.export.fields", err)
			return
		}
		defer rows.Close()
		for rows.Next() {
			var id, label string
			if err = rows.Scan(&id, &label); err != nil {
				httpx.LogInternalError(w, "db.export.fields.scan", err)
				return
			}
			labels[id] = label
		}

		type exportRow struct {
			formId    string
			id        string
			createdAt time.Time
			data      map[string]any
		}
		rows, err = app.QueryContext(r.Context(), `
			SELECT id, form_id, created_at, data
			FROM submission
			WHERE form_id IN (`+inForms+`)
			ORDER BY created_at`,
			formArgs...,
		)
		if err != nil {
			httpx.LogInternalError(w, "db.export.submissions", err)
			return
		}
		defer rows.Close()

		var exportRows []exportRow
		for rows.Next() {
			row := exportRow{}
			var data string
			if err = rows.Scan(&row.id, &row.formId, &row.createdAt, &data); err != nil {
				httpx.LogInternalError(w, "db.export.submissions.scan", err)
				return
			}
			if err = json.Unmarshal([]byte(data), &row.data); err != nil {
				httpx.LogInternalError(w, "db.export.submissions.parse_data", err)
				return
			}
			exportRows = append(exportRows, row)
		}

		// union of labels actually answered, in first-seen order
		var labelHeaders []string
		seen := map[string]bool{}
		for _, row := range exportRows {
			for key := range row.data {
				label := labels[key]
				if label == "" {
					label = key
				}
				if !seen[label] {
					seen[label] = true
					labelHeaders = append(labelHeaders, label)
				}
			}
		}
		headers := append([]string{"Form Title", "Submission ID", "Submitted At"}, labelHeaders...)

		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="submissions.csv"`)

		out := csv.NewWriter(w)
		if err = out.Write(headers); err != nil {
			log.Errorf("export.write_header: %s", err)
			return
		}
		for _, row := range exportRows {
			record := make([]string, 0, len(headers))
			record = append(record, titles[row.formId], row.id, row.createdAt.UTC().Format(time.RFC3339))
			for _, label := range labelHeaders {
				record = append(record, cellValue(row.data, labels, label))
			}
			if err = out.Write(record); err != nil {
				log.Errorf("export.write_row: %s", err)
				return
			}
		}
		out.Flush()
	}
}

func cellValue(data map[string]any, labels map[string]string, label string) string {
	for key, value := range data {
		keyLabel := labels[key]
		if keyLabel == "" {
			keyLabel = key
		}
		if keyLabel != label {
			continue
		}

		switch v := value.(type) {
		case string:
			return v
		case []any:
			parts := make([]string, len(v))
			for i, item := range v {
				parts[i] = fmt.Sprint(item)
			}
			return strings.Join(parts, "; ")
		case map[string]any:
			// uploaded file descriptor: export the public URL
			if url, ok := v["url"].(string); ok {
				return url
			}
			return fmt.Sprint(v)
		default:
			return fmt.Sprint(v)
		}
	}
	return ""
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
