package fields

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"

	"github.com/mbolis/form-forge/model"
	"github.com/mbolis/form-forge/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intp(i int) *int { return &i }

func TestBuildPlanPartition(t *testing.T) {
	existing := []string{"aaa", "bbb"}
	submitted := []model.FieldSpec{
		{ID: "aaa", Type: model.FieldText, Label: "Kept"},
		{ID: "tmp-123", Type: model.FieldEmail, Label: "Client temp id"},
		{Type: model.FieldNumber, Label: "Brand new"},
	}

	plan := BuildPlan(existing, submitted)

	require.Len(t, plan.Update, 1)
	assert.Equal(t, "aaa", plan.Update[0].ID)

	// a temporary client id counts as an insert, and is not preserved
	require.Len(t, plan.Insert, 2)
	assert.Empty(t, plan.Insert[0].ID)
	assert.Empty(t, plan.Insert[1].ID)

	assert.Equal(t, []string{"bbb"}, plan.Delete)
}

func TestBuildPlanNoBucketOverlap(t *testing.T) {
	existing := []string{"a", "b", "c"}
	submitted := []model.FieldSpec{
		{ID: "b", Type: model.FieldText, Label: "B"},
		{Type: model.FieldText, Label: "New"},
	}

	plan := BuildPlan(existing, submitted)

	ids := map[string]int{}
	for _, f := range plan.Update {
		ids[f.ID]++
	}
	for _, id := range plan.Delete {
		ids[id]++
	}
	for id, n := range ids {
		assert.Equal(t, 1, n, "field %s appears in more than one bucket", id)
	}
	assert.ElementsMatch(t, []string{"a", "c"}, plan.Delete)
}

func TestBuildPlanPositions(t *testing.T) {
	submitted := []model.FieldSpec{
		{Type: model.FieldText, Label: "A"},
		{Type: model.FieldText, Label: "B", Position: intp(7)},
		{Type: model.FieldText, Label: "C", Position: intp(-1)},
	}

	plan := BuildPlan(nil, submitted)

	require.Len(t, plan.Insert, 3)
	assert.Equal(t, 0, plan.Insert[0].Position, "defaults to array index")
	assert.Equal(t, 7, plan.Insert[1].Position, "explicit position wins")
	assert.Equal(t, 2, plan.Insert[2].Position, "negative positions are ignored")
}

func TestApplyAndResubmitIsIdempotent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	userId := testutil.CreateTestUser(t, db, "owner@example.com", model.PlanFree)
	formId := testutil.CreateTestForm(t, db, userId, model.FormStatusDraft, "", false)
	ctx := context.Background()

	specs := []model.FieldSpec{
		{Type: model.FieldText, Label: "Name", Required: true},
		{Type: model.FieldEmail, Label: "Email"},
		{Type: model.FieldSelect, Label: "Color", Options: []string{"red", "green"}},
	}

	applied, err := Reconciler{DB: db}.Apply(ctx, formId, BuildPlan(nil, specs))
	require.NoError(t, err)
	assert.Equal(t, Applied{Inserted: 3}, applied)

	persisted := loadPersisted(t, db, formId)
	require.Len(t, persisted, 3)

	// resubmit the same target list, now with persisted ids
	existing := make([]string, len(persisted))
	for i, f := range persisted {
		existing[i] = f.ID
		specs[i].ID = f.ID
	}

	applied, err = Reconciler{DB: db}.Apply(ctx, formId, BuildPlan(existing, specs))
	require.NoError(t, err)
	assert.Equal(t, Applied{Updated: 3}, applied, "second pass must not insert or delete")

	assert.Equal(t, persisted, loadPersisted(t, db, formId), "second pass must not change stored state")
}

func TestApplyReorderAndDelete(t *testing.T) {
	db := testutil.SetupTestDB(t)
	userId := testutil.CreateTestUser(t, db, "owner@example.com", model.PlanFree)
	formId := testutil.CreateTestForm(t, db, userId, model.FormStatusDraft, "", false)
	ctx := context.Background()

	a := testutil.AddTestField(t, db, formId, model.FieldText, "A", false, 0)
	b := testutil.AddTestField(t, db, formId, model.FieldText, "B", false, 1)
	c := testutil.AddTestField(t, db, formId, model.FieldText, "C", false, 2)

	// drop B, swap A and C
	plan := BuildPlan([]string{a, b, c}, []model.FieldSpec{
		{ID: c, Type: model.FieldText, Label: "C"},
		{ID: a, Type: model.FieldText, Label: "A"},
	})
	applied, err := Reconciler{DB: db}.Apply(ctx, formId, plan)
	require.NoError(t, err)
	assert.Equal(t, Applied{Updated: 2, Deleted: 1}, applied)

	persisted := loadPersisted(t, db, formId)
	require.Len(t, persisted, 2)
	assert.Equal(t, c, persisted[0].ID)
	assert.Equal(t, 0, persisted[0].Position)
	assert.Equal(t, a, persisted[1].ID)
	assert.Equal(t, 1, persisted[1].Position)
}

func loadPersisted(t *testing.T, db *sql.DB, formId string) []model.FormField {
	t.Helper()

	rows, err := db.Query(`
		SELECT id, type, label, required, COALESCE(options, ''), position
		FROM form_field
		WHERE form_id = ?
		ORDER BY position`,
		formId)
	require.NoError(t, err)
	defer rows.Close()

	var persisted []model.FormField
	for rows.Next() {
		f := model.FormField{}
		var options string
		require.NoError(t, rows.Scan(&f.ID, &f.Type, &f.Label, &f.Required, &options, &f.Position))
		if options != "" {
			require.NoError(t, json.Unmarshal([]byte(options), &f.Options))
		}
		persisted = append(persisted, f)
	}
	require.NoError(t, rows.Err())
	return persisted
}
