// Package intake accepts and validates public form submissions.
package intake

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/uuid"
	"github.com/mbolis/form-forge/log"
	"github.com/mbolis/form-forge/model"
	"github.com/mbolis/form-forge/storage"
)

// FreeMonthlySubmissions caps submissions per calendar month (UTC) across all
// forms owned by a free-plan account.
const FreeMonthlySubmissions = 100

const maxMultipartMemory = 32 << 20

var ErrFormNotFound = errors.New("form not found")

var reEmail = regexp.MustCompile(`.+@.+\..+`)

type Reason string

const (
	ReasonFailed           Reason = "failed"
	ReasonAlreadySubmitted Reason = "already_submitted"
)

// Result is the terminal state of one intake run. Accepted and Reason are
// mutually exclusive; Slug is set whenever the form was found.
type Result struct {
	Slug     string
	Accepted bool
	Reason   Reason
}

// Caller carries the explicit request identity: the authenticated account (if
// any) and the per-form anonymous visitor token.
type Caller struct {
	UserID       string
	VisitorToken string
}

type Pipeline struct {
	DB    *sql.DB
	Files storage.Store

	// Now allows tests to pin the clock; nil means time.Now.
	Now func() time.Time
}

// Submit runs one submission through the linear intake flow: look up the
// form, gate on published status, parse the multipart body, relocate file
// uploads, validate required/typed fields, enforce the free-plan quota,
// suppress duplicates, persist.
//
// Validation failures come back as a rejected Result, never an error. Errors
// are reserved for collaborator failures. Files are relocated before
// validation, so a rejected submission may leave uploaded objects behind.
func (p *Pipeline) Submit(ctx context.Context, formID string, r *http.Request, caller Caller) (Result, error) {
	var (
		status        model.FormStatus
		slug          sql.NullString
		ownerID       string
		allowMultiple bool
	)
	err := p.DB.QueryRowContext(ctx, `
		SELECT status, slug, user_id, allow_multiple_responses
		FROM form
		WHERE id = ?`,
		formID,
	).Scan(&status, &slug, &ownerID, &allowMultiple)
	if errors.Is(err, sql.ErrNoRows) {
		return Result{}, ErrFormNotFound
	}
	if err != nil {
		return Result{}, fmt.Errorf("lookup form: %w", err)
	}

	res := Result{Slug: slug.String}
	if status != model.FormStatusPublished {
		res.Reason = ReasonFailed
		return res, nil
	}

	entries, uploads, err := parseEntries(r)
	if err != nil {
		return res, fmt.Errorf("parse body: %w", err)
	}

	err = p.relocateFiles(ctx, formID, entries, uploads)
	if err != nil {
		return res, fmt.Errorf("relocate files: %w", err)
	}

	ok, err := p.validateFields(ctx, formID, entries)
	if err != nil {
		return res, fmt.Errorf("validate fields: %w", err)
	}
	if !ok {
		res.Reason = ReasonFailed
		return res, nil
	}

	if p.quotaExceeded(ctx, ownerID) {
		res.Reason = ReasonFailed
		return res, nil
	}

	if !allowMultiple {
		dup, err := p.alreadySubmitted(ctx, formID, caller)
		if err != nil {
			return res, fmt.Errorf("check duplicate: %w", err)
		}
		if dup {
			res.Reason = ReasonAlreadySubmitted
			return res, nil
		}
	}

	err = p.persist(ctx, formID, entries, caller)
	if err != nil {
		return res, fmt.Errorf("insert submission: %w", err)
	}

	res.Accepted = true
	return res, nil
}

type upload struct {
	fieldID string
	header  *multipart.FileHeader
}

// parseEntries decodes the body into a field-id keyed value map. A field-id
// repeated across entries accumulates into a list; binary parts with content
// are returned separately for relocation.
func parseEntries(r *http.Request) (map[string]any, []upload, error) {
	err := r.ParseMultipartForm(maxMultipartMemory)
	if err != nil {
		if !errors.Is(err, http.ErrNotMultipart) {
			return nil, nil, err
		}
		if err := r.ParseForm(); err != nil {
			return nil, nil, err
		}
	}

	entries := make(map[string]any, len(r.PostForm))
	for key, values := range r.PostForm {
		if len(values) == 1 {
			entries[key] = values[0]
		} else {
			entries[key] = append([]string(nil), values...)
		}
	}

	var uploads []upload
	if r.MultipartForm != nil {
		for key, headers := range r.MultipartForm.File {
			for _, h := range headers {
				if h.Size > 0 {
					uploads = append(uploads, upload{fieldID: key, header: h})
				}
			}
		}
	}

	return entries, uploads, nil
}

// relocateFiles uploads each binary entry under a unique object name scoped
// by form id and replaces the raw value with a structured descriptor.
func (p *Pipeline) relocateFiles(ctx context.Context, formID string, entries map[string]any, uploads []upload) error {
	if len(uploads) == 0 {
		return nil
	}
	if p.Files == nil {
		return errors.New("file storage not configured")
	}

	for _, u := range uploads {
		object := fmt.Sprintf("%s/%s-%s", formID, uuid.Must(uuid.NewV4()), u.header.Filename)

		file, err := u.header.Open()
		if err != nil {
			return err
		}
		contentType := u.header.Header.Get("Content-Type")
		err = p.Files.Upload(ctx, object, contentType, file, u.header.Size)
		file.Close()
		if err != nil {
			return err
		}

		entries[u.fieldID] = model.FileValue{
			URL:  p.Files.PublicURL(object),
			Path: object,
			Name: u.header.Filename,
			Type: contentType,
			Size: u.header.Size,
		}
	}
	return nil
}

// validateFields checks every required field is present and non-empty, and
// that number/email values parse. Missing required fields accumulate across
// the whole scan; the first number/email miss rejects immediately.
func (p *Pipeline) validateFields(ctx context.Context, formID string, entries map[string]any) (bool, error) {
	rows, err := p.DB.QueryContext(ctx, `
		SELECT id, type, label, required
		FROM form_field
		WHERE form_id = ?
		ORDER BY position`,
		formID,
	)
	if err != nil {
		return false, err
	}
	defer rows.Close()

	var missing []string
	for rows.Next() {
		var (
			id, label string
			typ       model.FieldType
			required  bool
		)
		err = rows.Scan(&id, &typ, &label, &required)
		if err != nil {
			return false, err
		}

		value, present := entries[id]
		if required && isEmpty(value, present) {
			missing = append(missing, label)
		}
		if !present || value == nil {
			continue
		}

		first := strings.TrimSpace(firstString(value))
		if first == "" {
			continue
		}
		switch typ {
		case model.FieldNumber:
			if _, err := strconv.ParseFloat(first, 64); err != nil {
				log.Debugf("intake.validate: field %s is not a number", id)
				return false, nil
			}
		case model.FieldEmail:
			if !reEmail.MatchString(first) {
				log.Debugf("intake.validate: field %s is not an email", id)
				return false, nil
			}
		}
	}
	if err = rows.Err(); err != nil {
		return false, err
	}

	if len(missing) > 0 {
		log.Debugf("intake.validate: missing required fields %v", missing)
		return false, nil
	}
	return true, nil
}

// quotaExceeded counts this month's submissions across all forms owned by a
// free-plan account. Any failure while checking fails open: an infrastructure
// hiccup must not block legitimate submissions.
func (p *Pipeline) quotaExceeded(ctx context.Context, ownerID string) bool {
	var plan model.Plan
	err := p.DB.QueryRowContext(ctx, `SELECT plan FROM profile WHERE user_id = ?`, ownerID).Scan(&plan)
	if errors.Is(err, sql.ErrNoRows) {
		plan = model.PlanFree
	} else if err != nil {
		log.Warnf("intake.quota: %s", err)
		return false
	}
	if plan != model.PlanFree {
		return false
	}

	now := p.now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	var count int
	err = p.DB.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM submission s
		INNER JOIN form f ON (s.form_id = f.id)
		WHERE f.user_id = ?
			AND s.created_at >= ?`,
		ownerID,
		monthStart,
	).Scan(&count)
	if err != nil {
		log.Warnf("intake.quota: %s", err)
		return false
	}

	return count >= FreeMonthlySubmissions
}

// alreadySubmitted matches prior submissions against the union of the
// authenticated account and the anonymous visitor token. This is a plain
// read-then-write check; two racing submissions from the same visitor can
// both land, which is accepted.
func (p *Pipeline) alreadySubmitted(ctx context.Context, formID string, caller Caller) (bool, error) {
	var count int
	err := p.DB.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM submission
		WHERE form_id = ?
			AND (visitor_token = ?
				OR (user_id IS NOT NULL AND user_id = ?))`,
		formID,
		caller.VisitorToken,
		caller.UserID,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (p *Pipeline) persist(ctx context.Context, formID string, entries map[string]any, caller Caller) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return err
	}

	var userID any
	if caller.UserID != "" {
		userID = caller.UserID
	}

	_, err = p.DB.ExecContext(ctx, `
		INSERT INTO submission (id, form_id, data, user_id, visitor_token, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.Must(uuid.NewV4()).String(),
		formID,
		string(data),
		userID,
		caller.VisitorToken,
		p.now().UTC(),
	)
	return err
}

func (p *Pipeline) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

// isEmpty treats absent values, blank strings and empty lists as missing.
func isEmpty(v any, present bool) bool {
	if !present || v == nil {
		return true
	}
	switch v := v.(type) {
	case string:
		return strings.TrimSpace(v) == ""
	case []string:
		return len(v) == 0
	}
	return false
}

func firstString(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case []string:
		if len(v) > 0 {
			return v[0]
		}
	}
	return ""
}
