package diagnosis

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emhr/emhr/internal/domain/careteam"
	"github.com/emhr/emhr/internal/platform/apperr"
	"github.com/emhr/emhr/internal/platform/auth"
	"github.com/emhr/emhr/internal/platform/db"
	"github.com/emhr/emhr/internal/platform/metrics"
	"github.com/emhr/emhr/pkg/civil"
)

var ctxBG = context.Background()

// -- Mock Diagnosis Repository --

type mockRepo struct {
	rows   map[int64]*Diagnosis
	nextID int64
}

func newMockRepo() *mockRepo {
	return &mockRepo{rows: make(map[int64]*Diagnosis)}
}

func (m *mockRepo) activeConflict(d *Diagnosis) bool {
	if d.Status != StatusActive {
		return false
	}
	for _, r := range m.rows {
		if r.ID != d.ID && r.ClientID == d.ClientID && r.Code == d.Code && r.Status == StatusActive {
			return true
		}
	}
	return false
}

func (m *mockRepo) Create(_ context.Context, d *Diagnosis) error {
	if m.activeConflict(d) {
		return apperr.Conflict("active diagnosis %s already exists", d.Code)
	}
	m.nextID++
	d.ID = m.nextID
	cp := *d
	m.rows[d.ID] = &cp
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id int64) (*Diagnosis, error) {
	d, ok := m.rows[id]
	if !ok {
		return nil, apperr.NotFound("diagnosis")
	}
	cp := *d
	return &cp, nil
}

func (m *mockRepo) Update(_ context.Context, d *Diagnosis) error {
	if _, ok := m.rows[d.ID]; !ok {
		return apperr.NotFound("diagnosis")
	}
	if m.activeConflict(d) {
		return apperr.Conflict("active diagnosis %s already exists", d.Code)
	}
	cp := *d
	m.rows[d.ID] = &cp
	return nil
}

func (m *mockRepo) Resolve(_ context.Context, id int64, date civil.Date) error {
	d, ok := m.rows[id]
	if !ok || d.Status != StatusActive {
		return apperr.NotFound("active diagnosis")
	}
	d.Status = StatusResolved
	d.ResolvedDate = &date
	d.IsPrimary = false
	return nil
}

func (m *mockRepo) ListByClient(_ context.Context, clientID int64, status string) ([]*Diagnosis, error) {
	var out []*Diagnosis
	for _, d := range m.rows {
		if d.ClientID == clientID && (status == "" || d.Status == status) {
			cp := *d
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (m *mockRepo) LockClient(ctx context.Context, clientID int64) ([]*Diagnosis, error) {
	return m.ListByClient(ctx, clientID, "")
}

func (m *mockRepo) byCode(code, status string) *Diagnosis {
	for _, d := range m.rows {
		if d.Code == code && d.Status == status {
			return d
		}
	}
	return nil
}

type fakeChecker struct{}

func (fakeChecker) CanAccess(_ context.Context, p *auth.Principal, clientID int64) (bool, error) {
	return careteam.SeesAllClients(p) || (p != nil && p.UserID == 2 && clientID == 1), nil
}

var (
	clinicianP = &auth.Principal{UserID: 2, Role: auth.RoleClinician}
	outsiderP  = &auth.Principal{UserID: 3, Role: auth.RoleClinician}
)

var testToday = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

func newTestService(repo *mockRepo) *Service {
	svc := NewService(repo, fakeChecker{}, db.NoopTxRunner{}, nil, zerolog.Nop())
	svc.now = func() time.Time { return testToday }
	return svc
}

func TestSync_AppliesPlan(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)
	repo.Create(ctxBG, &Diagnosis{ClientID: 1, Code: "F41.1", Status: StatusActive})
	repo.Create(ctxBG, &Diagnosis{ClientID: 1, Code: "F43.10", Status: StatusResolved, ResolvedDate: &civil.Date{Time: testToday.AddDate(-1, 0, 0)}})
	repo.Create(ctxBG, &Diagnosis{ClientID: 1, Code: "F32.1", Status: StatusActive, Description: strPtr("old")})
	repo.Create(ctxBG, &Diagnosis{ClientID: 99, Code: "F99", Status: StatusActive})

	res, err := svc.Sync(ctxBG, 1, 50, 2, []Entry{
		{Code: "F32.1", Description: "MDD, moderate", IsPrimary: true},
		{Code: "F43.10"},
		{Code: "z63.0", Description: "Relationship distress"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Z63.0"}, res.Added)
	assert.Equal(t, []string{"F32.1"}, res.Updated)
	assert.Equal(t, []string{"F43.10"}, res.Reactivated)
	assert.Equal(t, []string{"F41.1"}, res.Retired)

	retired := repo.byCode("F41.1", StatusResolved)
	require.NotNil(t, retired)
	assert.Equal(t, "2024-03-15", retired.ResolvedDate.String())

	updated := repo.byCode("F32.1", StatusActive)
	assert.Equal(t, "MDD, moderate", *updated.Description)
	assert.True(t, updated.IsPrimary)
	assert.Equal(t, int64(50), *updated.SourceNoteID)

	reactivated := repo.byCode("F43.10", StatusActive)
	require.NotNil(t, reactivated)
	assert.Nil(t, reactivated.ResolvedDate)

	added := repo.byCode("Z63.0", StatusActive)
	require.NotNil(t, added)
	assert.Equal(t, int64(2), *added.CreatedBy)

	assert.Equal(t, StatusActive, repo.byCode("F99", StatusActive).Status, "other clients are untouched")

	again, err := svc.Sync(ctxBG, 1, 50, 2, []Entry{
		{Code: "F32.1", Description: "MDD, moderate", IsPrimary: true},
		{Code: "F43.10"},
		{Code: "z63.0", Description: "Relationship distress"},
	})
	require.NoError(t, err)
	assert.Empty(t, again.Added)
	assert.Empty(t, again.Updated)
	assert.Empty(t, again.Reactivated)
	assert.Empty(t, again.Retired)
	assert.Len(t, again.Unchanged, 3)
}

func TestSync_MetricsWaitForRecord(t *testing.T) {
	m := metrics.New()
	svc := NewService(newMockRepo(), fakeChecker{}, db.NoopTxRunner{}, m, zerolog.Nop())
	svc.now = func() time.Time { return testToday }

	res, err := svc.Sync(ctxBG, 1, 50, 2, []Entry{{Code: "F41.1"}, {Code: "F32.1"}})
	require.NoError(t, err)
	n, err := testutil.GatherAndCount(m.Registry(), "emhr_diagnoses_synced_total")
	require.NoError(t, err)
	assert.Zero(t, n, "sync alone must not count")

	svc.Record(1, 50, res)
	n, err = testutil.GatherAndCount(m.Registry(), "emhr_diagnoses_synced_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NotPanics(t, func() { svc.Record(1, 50, nil) })
}

func TestSync_RejectsInvalidCode(t *testing.T) {
	svc := newTestService(newMockRepo())
	_, err := svc.Sync(ctxBG, 1, 50, 2, []Entry{{Code: "depression"}})
	assert.True(t, errors.Is(err, apperr.ErrValidation))
}

func TestCreateDiagnosis(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)

	d := &Diagnosis{ClientID: 1, Code: " f32.1 ", Description: strPtr("  MDD  ")}
	require.NoError(t, svc.CreateDiagnosis(ctxBG, clinicianP, d))
	assert.Equal(t, "F32.1", d.Code)
	assert.Equal(t, "MDD", *d.Description)
	assert.Equal(t, StatusActive, d.Status)
	assert.Equal(t, int64(2), *d.CreatedBy)

	err := svc.CreateDiagnosis(ctxBG, clinicianP, &Diagnosis{ClientID: 1, Code: "F32.1"})
	assert.True(t, errors.Is(err, apperr.ErrConflict), "got %v", err)

	err = svc.CreateDiagnosis(ctxBG, outsiderP, &Diagnosis{ClientID: 1, Code: "F41.1"})
	assert.True(t, errors.Is(err, apperr.ErrForbidden), "got %v", err)

	err = svc.CreateDiagnosis(ctxBG, clinicianP, &Diagnosis{ClientID: 1, Code: "123"})
	assert.True(t, errors.Is(err, apperr.ErrValidation), "got %v", err)
}

func TestResolveDiagnosis(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)
	onset := civil.NewDate(2024, 3, 1)
	d := &Diagnosis{ClientID: 1, Code: "F32.1", IsPrimary: true, OnsetDate: &onset}
	require.NoError(t, svc.CreateDiagnosis(ctxBG, clinicianP, d))

	early := civil.NewDate(2024, 2, 1)
	_, err := svc.ResolveDiagnosis(ctxBG, clinicianP, d.ID, &early)
	assert.True(t, errors.Is(err, apperr.ErrValidation), "got %v", err)

	got, err := svc.ResolveDiagnosis(ctxBG, clinicianP, d.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusResolved, got.Status)
	assert.Equal(t, "2024-03-15", got.ResolvedDate.String())
	assert.False(t, got.IsPrimary)

	_, err = svc.ResolveDiagnosis(ctxBG, clinicianP, d.ID, nil)
	assert.True(t, errors.Is(err, apperr.ErrConflict), "got %v", err)
}

func TestUpdateDiagnosis(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)
	d := &Diagnosis{ClientID: 1, Code: "F32.1"}
	require.NoError(t, svc.CreateDiagnosis(ctxBG, clinicianP, d))

	got, err := svc.UpdateDiagnosis(ctxBG, clinicianP, &Diagnosis{ID: d.ID, Code: "ignored", Description: strPtr("new"), IsPrimary: true})
	require.NoError(t, err)
	assert.Equal(t, "F32.1", got.Code)
	assert.Equal(t, "new", *got.Description)
	assert.True(t, got.IsPrimary)

	_, err = svc.UpdateDiagnosis(ctxBG, clinicianP, &Diagnosis{ID: 404})
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestListDiagnoses(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)
	repo.Create(ctxBG, &Diagnosis{ClientID: 1, Code: "F32.1", Status: StatusActive})
	repo.Create(ctxBG, &Diagnosis{ClientID: 1, Code: "F41.1", Status: StatusResolved})

	all, err := svc.ListDiagnoses(ctxBG, clinicianP, 1, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	active, err := svc.ListDiagnoses(ctxBG, clinicianP, 1, StatusActive)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "F32.1", active[0].Code)

	_, err = svc.ListDiagnoses(ctxBG, clinicianP, 1, "pending")
	assert.True(t, errors.Is(err, apperr.ErrValidation))
}
