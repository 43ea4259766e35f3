// Package fields synchronizes a form's persisted field set with a
// client-submitted target list.
package fields

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/gofrs/uuid"
	"github.com/mbolis/form-forge/model"
)

// Plan is the minimal change set bringing storage in line with a target list.
// A field id never appears in more than one of the three buckets.
type Plan struct {
	Insert []model.FormField
	Update []model.FormField
	Delete []string
}

// BuildPlan partitions submitted fields against the currently persisted ids.
// A field with no id, or an id storage does not know (temporary client ids),
// becomes an insert; a known id becomes an update; every persisted id missing
// from the submission is deleted. Position is the array index unless the
// caller supplied an explicit non-negative one.
func BuildPlan(existingIDs []string, submitted []model.FieldSpec) Plan {
	existing := make(map[string]bool, len(existingIDs))
	for _, id := range existingIDs {
		existing[id] = true
	}

	var plan Plan
	submittedIDs := make(map[string]bool, len(submitted))
	for i, f := range submitted {
		if f.ID != "" {
			submittedIDs[f.ID] = true
		}

		position := i
		if f.Position != nil && *f.Position >= 0 {
			position = *f.Position
		}
		row := model.FormField{
			ID:          f.ID,
			Type:        f.Type,
			Label:       f.Label,
			Placeholder: f.Placeholder,
			Required:    f.Required,
			Options:     f.Options,
			Validation:  f.Validation,
			Position:    position,
		}

		if f.ID != "" && existing[f.ID] {
			plan.Update = append(plan.Update, row)
		} else {
			row.ID = "" // a fresh id is assigned at write time
			plan.Insert = append(plan.Insert, row)
		}
	}

	for _, id := range existingIDs {
		if !submittedIDs[id] {
			plan.Delete = append(plan.Delete, id)
		}
	}

	return plan
}

type Applied struct {
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	Deleted  int `json:"deleted"`
}

type Reconciler struct {
	DB *sql.DB
}

// Apply writes the plan: batch insert, one update per field, batch delete.
// The three sub-steps are not wrapped in a transaction; a failure may leave
// the set partially applied. BuildPlan is idempotent over the result, so the
// caller recovers by resubmitting the same target list.
func (rec Reconciler) Apply(ctx context.Context, formID string, plan Plan) (applied Applied, err error) {
	if len(plan.Insert) > 0 {
		var stmt *sql.Stmt
		stmt, err = rec.DB.PrepareContext(ctx, `
			INSERT INTO form_field (id, form_id, type, label, placeholder, required, options, validation, position)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return
		}
		defer stmt.Close()

		for _, f := range plan.Insert {
			var options, validation any
			options, err = jsonOrNull(f.Options, len(f.Options) > 0)
			if err != nil {
				return
			}
			validation, err = jsonOrNull(f.Validation, len(f.Validation) > 0)
			if err != nil {
				return
			}

			id := uuid.Must(uuid.NewV4()).String()
			_, err = stmt.ExecContext(ctx, id, formID, f.Type, f.Label, f.Placeholder, f.Required, options, validation, f.Position)
			if err != nil {
				return
			}
			applied.Inserted++
		}
	}

	for _, f := range plan.Update {
		var options, validation any
		options, err = jsonOrNull(f.Options, len(f.Options) > 0)
		if err != nil {
			return
		}
		validation, err = jsonOrNull(f.Validation, len(f.Validation) > 0)
		if err != nil {
			return
		}

		_, err = rec.DB.ExecContext(ctx, `
			UPDATE form_field
			SET
				type = ?,
				label = ?,
				placeholder = ?,
				required = ?,
				options = ?,
				validation = ?,
				position = ?
			WHERE id = ?
				AND form_id = ?`,
			f.Type, f.Label, f.Placeholder, f.Required, options, validation, f.Position,
			f.ID, formID,
		)
		if err != nil {
			return
		}
		applied.Updated++
	}

	if len(plan.Delete) > 0 {
		args := make([]any, 0, len(plan.Delete)+1)
		args = append(args, formID)
		for _, id := range plan.Delete {
			args = append(args, id)
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(plan.Delete)), ", ")

		_, err = rec.DB.ExecContext(ctx, `
			DELETE FROM form_field
			WHERE form_id = ?
				AND id IN (`+placeholders+`)`,
			args...,
		)
		if err != nil {
			return
		}
		applied.Deleted = len(plan.Delete)
	}

	return
}

// ExistingIDs loads the persisted field ids for a form.
func ExistingIDs(ctx context.Context, db *sql.DB, formID string) ([]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT id FROM form_field WHERE form_id = ?`, formID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func jsonOrNull(v any, ok bool) (any, error) {
	if !ok {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}
