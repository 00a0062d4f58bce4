package diagnosis

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emhr/emhr/pkg/civil"
)

func strPtr(s string) *string { return &s }

func int64Ptr(n int64) *int64 { return &n }

func row(id int64, code, status string) *Diagnosis {
	return &Diagnosis{ID: id, ClientID: 1, Code: code, Status: status, Description: strPtr(code + " desc"), SourceNoteID: int64Ptr(1)}
}

func TestBuildPlan_Actions(t *testing.T) {
	existing := []*Diagnosis{
		row(1, "F32.1", StatusActive),
		row(2, "F41.1", StatusActive),
		row(3, "F43.10", StatusResolved),
	}
	incoming := []Entry{
		{Code: "f32.1", Description: "Major depressive disorder, moderate", IsPrimary: true},
		{Code: " F43.10 ", Description: "PTSD"},
		{Code: "Z63.0"},
	}

	plan := BuildPlan(incoming, existing, 7)
	res := plan.Result()
	assert.Equal(t, []string{"F32.1"}, res.Updated)
	assert.Equal(t, []string{"F43.10"}, res.Reactivated)
	assert.Equal(t, []string{"Z63.0"}, res.Added)
	assert.Equal(t, []string{"F41.1"}, res.Retired)
	assert.Empty(t, res.Unchanged)

	// Inputs are left alone.
	assert.Equal(t, "f32.1", incoming[0].Code)
	assert.Equal(t, "F32.1 desc", *existing[0].Description)
}

func TestBuildPlan_DuplicatesAndEmptyCodes(t *testing.T) {
	incoming := []Entry{
		{Code: "F32.1", Description: "first"},
		{Code: ""},
		{Code: "   "},
		{Code: "f32.1", Description: "second", IsPrimary: true},
	}
	plan := BuildPlan(incoming, nil, 7)
	require.Len(t, plan.Add, 1)
	assert.Equal(t, "F32.1", plan.Add[0].Code)
	assert.Equal(t, "first", plan.Add[0].Description)
	assert.True(t, plan.Add[0].IsPrimary)
}

func TestBuildPlan_ReactivatesNewestResolvedRow(t *testing.T) {
	existing := []*Diagnosis{
		row(4, "F41.1", StatusResolved),
		row(9, "F41.1", StatusResolved),
		row(6, "F41.1", StatusResolved),
	}
	plan := BuildPlan([]Entry{{Code: "F41.1"}}, existing, 7)
	require.Len(t, plan.Reactivate, 1)
	assert.Equal(t, int64(9), plan.Reactivate[0].Row.ID)
}

func TestBuildPlan_ActiveWinsOverResolved(t *testing.T) {
	existing := []*Diagnosis{row(1, "F41.1", StatusResolved), row(2, "F41.1", StatusActive)}
	plan := BuildPlan([]Entry{{Code: "F41.1"}}, existing, 1)
	assert.Empty(t, plan.Reactivate)
	assert.Empty(t, plan.Add)
	assert.Equal(t, []string{"F41.1"}, plan.Unchanged)
}

func TestBuildPlan_EmptyIncomingRetiresAll(t *testing.T) {
	existing := []*Diagnosis{row(2, "F41.1", StatusActive), row(1, "F32.1", StatusActive)}
	plan := BuildPlan(nil, existing, 1)
	require.Len(t, plan.Retire, 2)
	assert.Equal(t, "F32.1", plan.Retire[0].Code)
	assert.Equal(t, "F41.1", plan.Retire[1].Code)
}

func TestBuildPlan_Idempotent(t *testing.T) {
	onset := civil.NewDate(2023, 5, 1)
	incoming := []Entry{
		{Code: "F32.1", Description: "MDD", IsPrimary: true, OnsetDate: &onset},
		{Code: "F41.1"},
	}
	repo := newMockRepo()
	svc := newTestService(repo)
	_, err := svc.Sync(ctxBG, 1, 7, 2, incoming)
	require.NoError(t, err)

	existing, _ := repo.LockClient(ctxBG, 1)
	plan := BuildPlan(incoming, existing, 7)
	assert.True(t, plan.Empty(), "second plan should be empty: %+v", plan.Result())
	assert.ElementsMatch(t, []string{"F32.1", "F41.1"}, plan.Unchanged)
}

func TestEntriesFromContent(t *testing.T) {
	entries, err := EntriesFromContent(json.RawMessage(`{"assessment":"x","diagnoses":[{"code":"F32.1","is_primary":true,"onset_date":"2023-05-01"}]}`))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].IsPrimary)
	assert.Equal(t, "2023-05-01", entries[0].OnsetDate.String())

	entries, err = EntriesFromContent(nil)
	assert.NoError(t, err)
	assert.Nil(t, entries)

	_, err = EntriesFromContent(json.RawMessage(`{"diagnoses":"F32.1"}`))
	assert.Error(t, err)
}
