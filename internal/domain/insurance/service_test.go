package insurance

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/emhr/emhr/internal/domain/careteam"
	"github.com/emhr/emhr/internal/platform/apperr"
	"github.com/emhr/emhr/internal/platform/auth"
	"github.com/emhr/emhr/internal/platform/db"
	"github.com/emhr/emhr/pkg/civil"
)

// -- Mock Repository --

type mockRepo struct {
	items  map[int64]*Insurance
	nextID int64
}

func newMockRepo() *mockRepo {
	return &mockRepo{items: make(map[int64]*Insurance)}
}

// checkUnique mirrors the partial unique index on active policies.
func (m *mockRepo) checkUnique(i *Insurance) error {
	if !i.IsActive {
		return nil
	}
	for _, other := range m.items {
		if other.ID != i.ID && other.IsActive && other.ClientID == i.ClientID && other.Priority == i.Priority {
			return apperr.Conflict("active %s insurance already exists", i.Priority)
		}
	}
	return nil
}

func (m *mockRepo) Create(_ context.Context, i *Insurance) error {
	if err := m.checkUnique(i); err != nil {
		return err
	}
	m.nextID++
	i.ID = m.nextID
	cp := *i
	m.items[i.ID] = &cp
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id int64) (*Insurance, error) {
	i, ok := m.items[id]
	if !ok {
		return nil, apperr.NotFound("insurance")
	}
	cp := *i
	return &cp, nil
}

func (m *mockRepo) Update(_ context.Context, i *Insurance) error {
	if _, ok := m.items[i.ID]; !ok {
		return apperr.NotFound("insurance")
	}
	if err := m.checkUnique(i); err != nil {
		return err
	}
	cp := *i
	m.items[i.ID] = &cp
	return nil
}

func (m *mockRepo) ListByClient(_ context.Context, clientID int64, activeOnly bool) ([]*Insurance, error) {
	var out []*Insurance
	for _, i := range m.items {
		if i.ClientID == clientID && (!activeOnly || i.IsActive) {
			cp := *i
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockRepo) GetActive(_ context.Context, clientID int64, priority string) (*Insurance, error) {
	for _, i := range m.items {
		if i.ClientID == clientID && i.Priority == priority && i.IsActive {
			cp := *i
			return &cp, nil
		}
	}
	return nil, apperr.NotFound("insurance")
}

func (m *mockRepo) DeactivatePriority(_ context.Context, clientID int64, priority string, exceptID int64) error {
	for _, i := range m.items {
		if i.ClientID == clientID && i.Priority == priority && i.ID != exceptID {
			i.IsActive = false
		}
	}
	return nil
}

type fakeChecker struct{}

func (fakeChecker) CanAccess(_ context.Context, p *auth.Principal, clientID int64) (bool, error) {
	return careteam.SeesAllClients(p) || (p.UserID == 2 && clientID == 10), nil
}

var (
	billerP    = &auth.Principal{UserID: 4, Role: auth.RoleBiller}
	clinicianP = &auth.Principal{UserID: 2, Role: auth.RoleClinician}
	outsiderP  = &auth.Principal{UserID: 3, Role: auth.RoleClinician}
)

func newTestService() (*Service, *mockRepo) {
	repo := newMockRepo()
	return NewService(repo, fakeChecker{}, db.NoopTxRunner{}, zerolog.Nop()), repo
}

func policy(priority, payer string) *Insurance {
	return &Insurance{ClientID: 10, Priority: priority, PayerName: payer, PolicyNumber: "P-" + payer}
}

func TestCreateInsurance_ReplacesActiveAtPriority(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	first := policy(PriorityPrimary, "Aetna")
	if err := svc.CreateInsurance(ctx, billerP, first); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !first.IsActive {
		t.Fatal("new policy should be active")
	}
	secondary := policy(PrioritySecondary, "Medicaid")
	if err := svc.CreateInsurance(ctx, billerP, secondary); err != nil {
		t.Fatal(err)
	}

	second := policy(PriorityPrimary, "Cigna")
	if err := svc.CreateInsurance(ctx, billerP, second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.items[first.ID].IsActive {
		t.Error("previous primary policy should be deactivated")
	}
	if !repo.items[secondary.ID].IsActive {
		t.Error("secondary policy should be untouched")
	}

	primary, err := svc.ActivePrimary(ctx, 10)
	if err != nil || primary == nil || primary.ID != second.ID {
		t.Errorf("expected active primary %d, got %v %v", second.ID, primary, err)
	}
}

func TestCreateInsurance_Validation(t *testing.T) {
	svc, _ := newTestService()
	rel := "cousin"
	neg := -5.0
	eff := civil.NewDate(2024, 6, 1)
	term := civil.NewDate(2024, 1, 1)
	tests := []struct {
		name string
		ins  *Insurance
	}{
		{"missing payer", &Insurance{ClientID: 10, PolicyNumber: "1"}},
		{"missing policy", &Insurance{ClientID: 10, PayerName: "Aetna"}},
		{"bad priority", &Insurance{ClientID: 10, PayerName: "Aetna", PolicyNumber: "1", Priority: "quaternary"}},
		{"bad relationship", &Insurance{ClientID: 10, PayerName: "Aetna", PolicyNumber: "1", Relationship: &rel}},
		{"negative copay", &Insurance{ClientID: 10, PayerName: "Aetna", PolicyNumber: "1", Copay: &neg}},
		{"terminates before effective", &Insurance{ClientID: 10, PayerName: "Aetna", PolicyNumber: "1", EffectiveDate: &eff, TerminationDate: &term}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := svc.CreateInsurance(context.Background(), billerP, tt.ins); !errors.Is(err, apperr.ErrValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestCreateInsurance_DefaultsToPrimary(t *testing.T) {
	svc, _ := newTestService()
	ins := &Insurance{ClientID: 10, PayerName: " Aetna ", PolicyNumber: "X1"}
	if err := svc.CreateInsurance(context.Background(), billerP, ins); err != nil {
		t.Fatal(err)
	}
	if ins.Priority != PriorityPrimary || ins.PayerName != "Aetna" {
		t.Errorf("unexpected policy %+v", ins)
	}
}

func TestInsurance_Access(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	ins := policy(PriorityPrimary, "Aetna")
	svc.CreateInsurance(ctx, billerP, ins)

	if _, err := svc.GetInsurance(ctx, clinicianP, ins.ID); err != nil {
		t.Errorf("care team member should read policy: %v", err)
	}
	if _, err := svc.GetInsurance(ctx, outsiderP, ins.ID); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("expected forbidden, got %v", err)
	}
	if _, err := svc.ListByClient(ctx, outsiderP, 10, false); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("expected forbidden, got %v", err)
	}
}

func TestUpdateInsurance_Reactivation(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()
	old := policy(PriorityPrimary, "Aetna")
	svc.CreateInsurance(ctx, billerP, old)
	current := policy(PriorityPrimary, "Cigna")
	svc.CreateInsurance(ctx, billerP, current)

	update := policy(PriorityPrimary, "Aetna")
	update.ID = old.ID
	update.ClientID = 99
	update.IsActive = true
	got, err := svc.UpdateInsurance(ctx, billerP, update)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ClientID != 10 {
		t.Error("client_id must not change on update")
	}
	if repo.items[current.ID].IsActive || !repo.items[old.ID].IsActive {
		t.Error("reactivating a policy should retire the current one at that priority")
	}
}

func TestDeactivateInsurance(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()
	ins := policy(PriorityPrimary, "Aetna")
	svc.CreateInsurance(ctx, billerP, ins)

	if err := svc.DeactivateInsurance(ctx, billerP, ins.ID); err != nil {
		t.Fatal(err)
	}
	if repo.items[ins.ID].IsActive {
		t.Error("policy should be inactive")
	}
	if err := svc.DeactivateInsurance(ctx, billerP, ins.ID); err != nil {
		t.Errorf("deactivating twice should be a no-op, got %v", err)
	}
	primary, err := svc.ActivePrimary(ctx, 10)
	if err != nil || primary != nil {
		t.Errorf("expected no active primary, got %v %v", primary, err)
	}

	active, _ := svc.ListByClient(ctx, billerP, 10, true)
	if len(active) != 0 {
		t.Errorf("expected no active policies, got %d", len(active))
	}
}
