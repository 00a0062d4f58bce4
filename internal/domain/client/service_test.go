package client

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/emhr/emhr/internal/domain/careteam"
	"github.com/emhr/emhr/internal/platform/apperr"
	"github.com/emhr/emhr/internal/platform/auth"
	"github.com/emhr/emhr/internal/platform/db"
	"github.com/emhr/emhr/internal/platform/phi"
	"github.com/emhr/emhr/pkg/civil"
)

// -- Mock Client Repository --

type mockClientRepo struct {
	clients map[int64]*Client
	nextID  int64
}

func newMockClientRepo() *mockClientRepo {
	return &mockClientRepo{clients: make(map[int64]*Client)}
}

func (m *mockClientRepo) Create(_ context.Context, c *Client) error {
	m.nextID++
	c.ID = m.nextID
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	cp := *c
	m.clients[c.ID] = &cp
	return nil
}

func (m *mockClientRepo) GetByID(_ context.Context, id int64) (*Client, error) {
	c, ok := m.clients[id]
	if !ok || c.IsDeleted {
		return nil, apperr.NotFound("client")
	}
	cp := *c
	return &cp, nil
}

func (m *mockClientRepo) Update(_ context.Context, c *Client) error {
	existing, ok := m.clients[c.ID]
	if !ok || existing.IsDeleted {
		return apperr.NotFound("client")
	}
	cp := *c
	m.clients[c.ID] = &cp
	return nil
}

func (m *mockClientRepo) SetMRN(_ context.Context, id int64, mrn string) error {
	m.clients[id].MRN = mrn
	return nil
}

func (m *mockClientRepo) SoftDelete(_ context.Context, id int64) error {
	c, ok := m.clients[id]
	if !ok || c.IsDeleted {
		return apperr.NotFound("client")
	}
	c.IsDeleted = true
	return nil
}

func (m *mockClientRepo) Discharge(_ context.Context, id int64, date civil.Date) error {
	c, ok := m.clients[id]
	if !ok {
		return apperr.NotFound("client")
	}
	c.Status = StatusDischarged
	c.DischargeDate = &date
	return nil
}

func (m *mockClientRepo) Search(_ context.Context, filter SearchFilter, limit, offset int) ([]*Client, int, error) {
	var out []*Client
	for _, c := range m.clients {
		if c.IsDeleted {
			continue
		}
		if filter.Status != "" && c.Status != filter.Status {
			continue
		}
		if filter.Query != "" && !strings.Contains(strings.ToLower(c.FirstName+" "+c.LastName+" "+c.MRN), strings.ToLower(filter.Query)) {
			continue
		}
		if filter.VisibleTo != nil && !visibleTo[*filter.VisibleTo][c.ID] {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	return out, len(out), nil
}

// visibleTo mirrors fakeTeam membership for Search; reset by newTestService.
var visibleTo map[int64]map[int64]bool

// -- Fake Care Team --

type fakeTeam struct {
	added []*careteam.Member
}

func (f *fakeTeam) AddMember(_ context.Context, m *careteam.Member) error {
	f.added = append(f.added, m)
	if visibleTo[m.UserID] == nil {
		visibleTo[m.UserID] = make(map[int64]bool)
	}
	visibleTo[m.UserID][m.ClientID] = true
	return nil
}

func (f *fakeTeam) CanAccess(_ context.Context, p *auth.Principal, clientID int64) (bool, error) {
	if careteam.SeesAllClients(p) {
		return true, nil
	}
	return p != nil && visibleTo[p.UserID][clientID], nil
}

var (
	adminP     = &auth.Principal{UserID: 1, Role: auth.RoleAdmin}
	clinicianP = &auth.Principal{UserID: 2, Role: auth.RoleClinician}
	outsiderP  = &auth.Principal{UserID: 3, Role: auth.RoleClinician}
)

func newTestService(t *testing.T) (*Service, *mockClientRepo, *fakeTeam) {
	t.Helper()
	visibleTo = make(map[int64]map[int64]bool)
	enc, err := phi.NewEncryptor(phi.DevKey("client-test"))
	if err != nil {
		t.Fatalf("encryptor: %v", err)
	}
	repo := newMockClientRepo()
	team := &fakeTeam{}
	s := NewService(repo, enc, team, db.NoopTxRunner{}, zerolog.Nop())
	s.now = func() time.Time { return time.Date(2024, 4, 10, 9, 0, 0, 0, time.UTC) }
	return s, repo, team
}

func newClient() *Client {
	return &Client{FirstName: "Ada", LastName: "Lovelace", DateOfBirth: civil.NewDate(1990, time.December, 10)}
}

func TestService_CreateClient(t *testing.T) {
	s, repo, team := newTestService(t)
	c := newClient()
	c.SSN = "123-45-6789"
	provider := int64(7)
	c.PrimaryProviderID = &provider

	if err := s.CreateClient(context.Background(), clinicianP, c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.MRN != "C0000001" {
		t.Errorf("expected generated MRN C0000001, got %s", c.MRN)
	}
	if c.Status != StatusActive {
		t.Errorf("expected default status active, got %s", c.Status)
	}
	if c.IntakeDate == nil || c.IntakeDate.String() != "2024-04-10" {
		t.Errorf("expected intake date to default to today, got %v", c.IntakeDate)
	}
	if c.SSN != "" {
		t.Error("expected plaintext SSN to be cleared")
	}
	if c.SSNMasked != "***-**-6789" {
		t.Errorf("expected masked SSN, got %q", c.SSNMasked)
	}

	stored := repo.clients[c.ID]
	if stored.SSNEncrypted == nil || strings.Contains(*stored.SSNEncrypted, "6789") {
		t.Error("expected SSN to be encrypted at rest")
	}
	if len(team.added) != 2 {
		t.Fatalf("expected provider and creator on care team, got %d", len(team.added))
	}
	if team.added[0].Role != careteam.RolePrimaryClinician || team.added[0].UserID != 7 {
		t.Errorf("unexpected primary member %+v", team.added[0])
	}
}

func TestService_CreateClient_KeepsSuppliedMRN(t *testing.T) {
	s, _, _ := newTestService(t)
	c := newClient()
	c.MRN = "LEGACY-42"
	if err := s.CreateClient(context.Background(), adminP, c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.MRN != "LEGACY-42" {
		t.Errorf("expected MRN to be kept, got %s", c.MRN)
	}
}

func TestService_CreateClient_RejectsGeneratedMRNFormat(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx := context.Background()

	for _, mrn := range []string{"C0000002", " c0000002 ", "C12345678"} {
		c := newClient()
		c.MRN = mrn
		if err := s.CreateClient(ctx, adminP, c); !errors.Is(err, apperr.ErrValidation) {
			t.Errorf("mrn %q: expected validation error, got %v", mrn, err)
		}
	}

	first := newClient()
	if err := s.CreateClient(ctx, adminP, first); err != nil {
		t.Fatalf("create: %v", err)
	}
	second := newClient()
	if err := s.CreateClient(ctx, adminP, second); err != nil {
		t.Fatalf("generated mrn collided: %v", err)
	}
	if second.MRN != "C0000002" {
		t.Errorf("expected C0000002, got %s", second.MRN)
	}

	upd := newClient()
	upd.ID = first.ID
	upd.MRN = second.MRN
	if err := s.UpdateClient(ctx, adminP, upd); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected update to another generated mrn to fail, got %v", err)
	}
	upd.MRN = first.MRN
	if err := s.UpdateClient(ctx, adminP, upd); err != nil {
		t.Errorf("keeping the generated mrn should pass: %v", err)
	}
}

func TestService_CreateClient_Validation(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx := context.Background()
	bad := "robot"

	tests := []struct {
		name   string
		mutate func(c *Client)
	}{
		{"missing first name", func(c *Client) { c.FirstName = " " }},
		{"missing last name", func(c *Client) { c.LastName = "" }},
		{"missing dob", func(c *Client) { c.DateOfBirth = civil.Date{} }},
		{"future dob", func(c *Client) { c.DateOfBirth = civil.NewDate(2030, 1, 1) }},
		{"bad status", func(c *Client) { c.Status = "archived" }},
		{"bad sex", func(c *Client) { c.Sex = &bad }},
		{"short ssn", func(c *Client) { c.SSN = "1234" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newClient()
			tt.mutate(c)
			if err := s.CreateClient(ctx, adminP, c); !errors.Is(err, apperr.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestService_GetClient_CareTeamOnly(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx := context.Background()
	c := newClient()
	if err := s.CreateClient(ctx, clinicianP, c); err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := s.GetClient(ctx, clinicianP, c.ID); err != nil {
		t.Errorf("expected creator to have access: %v", err)
	}
	if _, err := s.GetClient(ctx, adminP, c.ID); err != nil {
		t.Errorf("expected admin to have access: %v", err)
	}
	if _, err := s.GetClient(ctx, outsiderP, c.ID); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("expected forbidden for outsider, got %v", err)
	}
}

func TestService_UpdateClient_PreservesSSNAndMRN(t *testing.T) {
	s, repo, _ := newTestService(t)
	ctx := context.Background()
	c := newClient()
	c.SSN = "123456789"
	if err := s.CreateClient(ctx, adminP, c); err != nil {
		t.Fatalf("create: %v", err)
	}
	enc := *repo.clients[c.ID].SSNEncrypted

	upd := newClient()
	upd.ID = c.ID
	upd.LastName = "King"
	if err := s.UpdateClient(ctx, adminP, upd); err != nil {
		t.Fatalf("update: %v", err)
	}
	stored := repo.clients[c.ID]
	if stored.LastName != "King" {
		t.Errorf("expected last name King, got %s", stored.LastName)
	}
	if stored.MRN != c.MRN {
		t.Errorf("expected MRN %s to be kept, got %s", c.MRN, stored.MRN)
	}
	if stored.SSNEncrypted == nil || *stored.SSNEncrypted != enc {
		t.Error("expected encrypted SSN to be kept")
	}

	upd.SSN = "987-65-4321"
	if err := s.UpdateClient(ctx, adminP, upd); err != nil {
		t.Fatalf("update ssn: %v", err)
	}
	if *repo.clients[c.ID].SSNLastFour != "4321" {
		t.Errorf("expected new last four, got %s", *repo.clients[c.ID].SSNLastFour)
	}
}

func TestService_DischargeClient(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx := context.Background()
	c := newClient()
	if err := s.CreateClient(ctx, adminP, c); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := s.DischargeClient(ctx, adminP, c.ID, nil)
	if err != nil {
		t.Fatalf("discharge: %v", err)
	}
	if got.Status != StatusDischarged || got.DischargeDate.String() != "2024-04-10" {
		t.Errorf("unexpected discharge result %s %v", got.Status, got.DischargeDate)
	}
	if _, err := s.DischargeClient(ctx, adminP, c.ID, nil); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("expected conflict on second discharge, got %v", err)
	}
}

func TestService_DischargeClient_BeforeIntake(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx := context.Background()
	c := newClient()
	if err := s.CreateClient(ctx, adminP, c); err != nil {
		t.Fatalf("create: %v", err)
	}
	early := civil.NewDate(2020, 1, 1)
	if _, err := s.DischargeClient(ctx, adminP, c.ID, &early); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestService_SearchClients_ScopedToCareTeam(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx := context.Background()
	mine := newClient()
	if err := s.CreateClient(ctx, clinicianP, mine); err != nil {
		t.Fatalf("create: %v", err)
	}
	other := newClient()
	other.FirstName = "Grace"
	if err := s.CreateClient(ctx, adminP, other); err != nil {
		t.Fatalf("create: %v", err)
	}

	_, total, err := s.SearchClients(ctx, clinicianP, SearchFilter{}, 25, 0)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if total != 1 {
		t.Errorf("expected clinician to see 1 client, got %d", total)
	}

	_, total, _ = s.SearchClients(ctx, adminP, SearchFilter{}, 25, 0)
	if total != 2 {
		t.Errorf("expected admin to see 2 clients, got %d", total)
	}

	if _, _, err := s.SearchClients(ctx, adminP, SearchFilter{Status: "gone"}, 25, 0); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error for bad status, got %v", err)
	}
}

func TestService_DeleteClient(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx := context.Background()
	c := newClient()
	if err := s.CreateClient(ctx, adminP, c); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.DeleteClient(ctx, c.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.GetClient(ctx, adminP, c.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not found after delete, got %v", err)
	}
}

func TestFormatMRN(t *testing.T) {
	if got := FormatMRN(42); got != "C0000042" {
		t.Errorf("expected C0000042, got %s", got)
	}
}
