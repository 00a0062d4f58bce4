package scheduling

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/emhr/emhr/internal/domain/careteam"
	"github.com/emhr/emhr/internal/domain/client"
	"github.com/emhr/emhr/internal/domain/identity"
	"github.com/emhr/emhr/internal/platform/apperr"
	"github.com/emhr/emhr/internal/platform/auth"
	"github.com/emhr/emhr/internal/platform/db"
	"github.com/emhr/emhr/internal/platform/notification"
)

// -- Mock Appointment Repository --

type mockApptRepo struct {
	appts  map[int64]*Appointment
	nextID int64
	locks  int
}

func newMockApptRepo() *mockApptRepo {
	return &mockApptRepo{appts: make(map[int64]*Appointment)}
}

func (m *mockApptRepo) Create(_ context.Context, a *Appointment) error {
	m.nextID++
	a.ID = m.nextID
	cp := *a
	m.appts[a.ID] = &cp
	return nil
}

func (m *mockApptRepo) GetByID(_ context.Context, id int64) (*Appointment, error) {
	a, ok := m.appts[id]
	if !ok || a.IsDeleted {
		return nil, apperr.NotFound("appointment")
	}
	cp := *a
	return &cp, nil
}

func (m *mockApptRepo) Update(_ context.Context, a *Appointment) error {
	if _, ok := m.appts[a.ID]; !ok {
		return apperr.NotFound("appointment")
	}
	cp := *a
	m.appts[a.ID] = &cp
	return nil
}

func (m *mockApptRepo) SetStatus(_ context.Context, id int64, status string) error {
	a, ok := m.appts[id]
	if !ok {
		return apperr.NotFound("appointment")
	}
	a.Status = status
	return nil
}

func (m *mockApptRepo) Cancel(_ context.Context, ids []int64, reason string) error {
	for _, id := range ids {
		if a, ok := m.appts[id]; ok && isOpen(a.Status) {
			a.Status = StatusCancelled
			r := reason
			a.CancellationReason = &r
		}
	}
	return nil
}

func (m *mockApptRepo) sorted() []*Appointment {
	var out []*Appointment
	for _, a := range m.appts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out
}

func (m *mockApptRepo) List(_ context.Context, f ListFilter, limit, offset int) ([]*Appointment, int, error) {
	var out []*Appointment
	for _, a := range m.sorted() {
		if f.ProviderID != nil && a.ProviderID != *f.ProviderID {
			continue
		}
		if f.ClientID != nil && a.ClientID != *f.ClientID {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		if f.From != nil && a.StartTime.Before(*f.From) {
			continue
		}
		if f.To != nil && !a.StartTime.Before(*f.To) {
			continue
		}
		if f.VisibleTo != nil && a.ProviderID != *f.VisibleTo && !teamOf[*f.VisibleTo][a.ClientID] {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	return out, len(out), nil
}

func (m *mockApptRepo) ListSeries(_ context.Context, seriesID uuid.UUID, from time.Time) ([]*Appointment, error) {
	var out []*Appointment
	for _, a := range m.sorted() {
		if a.SeriesID != nil && *a.SeriesID == seriesID && !a.StartTime.Before(from) && isOpen(a.Status) {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockApptRepo) FindOverlap(_ context.Context, providerID int64, start, end time.Time, exclude []int64) (*Appointment, error) {
	skip := make(map[int64]bool)
	for _, id := range exclude {
		skip[id] = true
	}
	for _, a := range m.sorted() {
		if skip[a.ID] || a.ProviderID != providerID {
			continue
		}
		if a.Status == StatusCancelled || a.Status == StatusCompleted || a.Status == StatusNoShow {
			continue
		}
		if a.StartTime.Before(end) && a.EndTime.After(start) {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *mockApptRepo) LockProvider(_ context.Context, _ int64) error {
	m.locks++
	return nil
}

// teamOf maps user -> clients on their care team.
var teamOf map[int64]map[int64]bool

type fakeChecker struct{}

func (fakeChecker) CanAccess(_ context.Context, p *auth.Principal, clientID int64) (bool, error) {
	if careteam.SeesAllClients(p) {
		return true, nil
	}
	return p != nil && teamOf[p.UserID][clientID], nil
}

type fakeClients struct {
	clients map[int64]*client.Client
}

func (f *fakeClients) GetClient(_ context.Context, _ *auth.Principal, id int64) (*client.Client, error) {
	c, ok := f.clients[id]
	if !ok {
		return nil, apperr.NotFound("client")
	}
	return c, nil
}

type fakeUsers struct{}

func (fakeUsers) GetUser(_ context.Context, id int64) (*identity.User, error) {
	return &identity.User{ID: id, FirstName: "Grace", LastName: "Hopper"}, nil
}

type sentMessage struct {
	templateID string
	to         string
	data       map[string]string
}

type fakeNotifier struct {
	sent []sentMessage
	err  error
}

func (f *fakeNotifier) Notify(_ context.Context, templateID, to string, data map[string]string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMessage{templateID, to, data})
	return nil
}

var (
	adminP     = &auth.Principal{UserID: 1, Role: auth.RoleAdmin}
	clinicianP = &auth.Principal{UserID: 2, Role: auth.RoleClinician}
	outsiderP  = &auth.Principal{UserID: 3, Role: auth.RoleClinician}
	frontDeskP = &auth.Principal{UserID: 4, Role: auth.RoleFrontDesk}
)

const testClientID = 10

var testNow = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *mockApptRepo, *fakeNotifier) {
	t.Helper()
	teamOf = map[int64]map[int64]bool{clinicianP.UserID: {testClientID: true}}
	email := "ada@example.com"
	clients := &fakeClients{clients: map[int64]*client.Client{
		testClientID: {ID: testClientID, FirstName: "Ada", LastName: "Lovelace", Email: &email},
		11:           {ID: 11, FirstName: "No", LastName: "Email"},
	}}
	repo := newMockApptRepo()
	notifier := &fakeNotifier{}
	svc := NewService(repo, fakeChecker{}, clients, fakeUsers{}, notifier, db.NoopTxRunner{}, nil, zerolog.Nop())
	svc.now = func() time.Time { return testNow }
	return svc, repo, notifier
}

func therapyAt(start time.Time) *CreateRequest {
	return &CreateRequest{Appointment: Appointment{
		ClientID:        testClientID,
		ProviderID:      clinicianP.UserID,
		AppointmentType: TypeTherapy,
		StartTime:       start,
		EndTime:         start.Add(50 * time.Minute),
	}}
}

func mustCreate(t *testing.T, svc *Service, req *CreateRequest) []*Appointment {
	t.Helper()
	created, err := svc.CreateAppointment(context.Background(), clinicianP, req)
	if err != nil {
		t.Fatalf("create appointment: %v", err)
	}
	return created
}

func TestCreateAppointment_Single(t *testing.T) {
	svc, repo, _ := newTestService(t)

	created := mustCreate(t, svc, therapyAt(seriesStart))
	if len(created) != 1 {
		t.Fatalf("expected 1 appointment, got %d", len(created))
	}
	a := created[0]
	if a.ID == 0 || a.Status != StatusScheduled {
		t.Errorf("unexpected appointment %+v", a)
	}
	if a.SeriesID != nil {
		t.Error("single appointment must not get a series id")
	}
	if a.CreatedBy == nil || *a.CreatedBy != clinicianP.UserID {
		t.Errorf("expected created_by %d, got %v", clinicianP.UserID, a.CreatedBy)
	}
	if repo.locks != 1 {
		t.Errorf("expected provider lock, got %d", repo.locks)
	}
}

func TestCreateAppointment_Series(t *testing.T) {
	svc, repo, _ := newTestService(t)

	req := therapyAt(seriesStart)
	req.Recurrence = &RecurrenceRule{Frequency: FrequencyWeekly, Count: 4}
	created := mustCreate(t, svc, req)
	if len(created) != 4 || len(repo.appts) != 4 {
		t.Fatalf("expected 4 occurrences, got %d", len(created))
	}
	sid := created[0].SeriesID
	if sid == nil {
		t.Fatal("expected series id")
	}
	for i, a := range created {
		if a.SeriesID == nil || *a.SeriesID != *sid {
			t.Errorf("occurrence %d has series %v", i, a.SeriesID)
		}
		want := seriesStart.AddDate(0, 0, 7*i)
		if !a.StartTime.Equal(want) {
			t.Errorf("occurrence %d starts %s, want %s", i, a.StartTime, want)
		}
	}
}

func TestCreateAppointment_Validation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(r *CreateRequest)
	}{
		{"missing client", func(r *CreateRequest) { r.ClientID = 0 }},
		{"missing provider", func(r *CreateRequest) { r.ProviderID = 0 }},
		{"bad type", func(r *CreateRequest) { r.AppointmentType = "massage" }},
		{"end before start", func(r *CreateRequest) { r.EndTime = r.StartTime.Add(-time.Minute) }},
		{"too long", func(r *CreateRequest) { r.EndTime = r.StartTime.Add(13 * time.Hour) }},
		{"created completed", func(r *CreateRequest) { r.Status = StatusCompleted }},
		{"telehealth without url", func(r *CreateRequest) { r.AppointmentType = TypeTelehealth }},
		{"bad recurrence", func(r *CreateRequest) { r.Recurrence = &RecurrenceRule{Frequency: FrequencyDaily} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := therapyAt(seriesStart)
			tt.mutate(req)
			_, err := svc.CreateAppointment(ctx, clinicianP, req)
			if !errors.Is(err, apperr.ErrValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestCreateAppointment_DoubleBooking(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	mustCreate(t, svc, therapyAt(seriesStart))

	_, err := svc.CreateAppointment(ctx, clinicianP, therapyAt(seriesStart.Add(30*time.Minute)))
	if !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	// Back-to-back is fine.
	mustCreate(t, svc, therapyAt(seriesEnd))

	req := therapyAt(seriesStart.Add(30 * time.Minute))
	req.AllowOverlap = true
	mustCreate(t, svc, req)
	if len(repo.appts) != 3 {
		t.Errorf("expected 3 appointments, got %d", len(repo.appts))
	}
}

func TestCreateAppointment_SeriesConflictInsertsNothing(t *testing.T) {
	svc, _, _ := newTestService(t)
	mustCreate(t, svc, therapyAt(seriesStart.AddDate(0, 0, 14)))

	req := therapyAt(seriesStart)
	req.Recurrence = &RecurrenceRule{Frequency: FrequencyWeekly, Count: 4}
	_, err := svc.CreateAppointment(context.Background(), clinicianP, req)
	if !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected conflict on the third occurrence, got %v", err)
	}
}

func TestCreateAppointment_Forbidden(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.CreateAppointment(context.Background(), outsiderP, therapyAt(seriesStart))
	if !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}

	if _, err := svc.CreateAppointment(context.Background(), frontDeskP, therapyAt(seriesStart)); err != nil {
		t.Fatalf("front desk should book for any client: %v", err)
	}
}

func TestGetAppointment_ProviderSeesOwn(t *testing.T) {
	svc, _, _ := newTestService(t)
	req := therapyAt(seriesStart)
	req.ProviderID = outsiderP.UserID
	a := mustCreate(t, svc, req)[0]

	if _, err := svc.GetAppointment(context.Background(), outsiderP, a.ID); err != nil {
		t.Fatalf("provider should see own appointment: %v", err)
	}
	if _, err := svc.GetAppointment(context.Background(), &auth.Principal{UserID: 99, Role: auth.RoleIntern}, a.ID); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestUpdateAppointment_This(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	req := therapyAt(seriesStart)
	req.Recurrence = &RecurrenceRule{Frequency: FrequencyWeekly, Count: 3}
	created := mustCreate(t, svc, req)

	newStart := created[1].StartTime.Add(2 * time.Hour)
	loc := "Room 4"
	updated, err := svc.UpdateAppointment(ctx, clinicianP, created[1].ID, &UpdateRequest{StartTime: &newStart, Location: &loc})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(updated) != 1 {
		t.Fatalf("expected 1 updated, got %d", len(updated))
	}
	got, _ := svc.GetAppointment(ctx, clinicianP, created[1].ID)
	if !got.StartTime.Equal(newStart) || got.Duration() != 50*time.Minute {
		t.Errorf("unexpected times %s-%s", got.StartTime, got.EndTime)
	}
	if got.Location == nil || *got.Location != "Room 4" {
		t.Errorf("expected location, got %v", got.Location)
	}
	if got.SeriesID == nil || *got.SeriesID != *created[0].SeriesID {
		t.Error("scope this keeps the series")
	}
	other, _ := svc.GetAppointment(ctx, clinicianP, created[2].ID)
	if !other.StartTime.Equal(created[2].StartTime) {
		t.Error("later occurrence should not move")
	}
}

func TestUpdateAppointment_FollowingSplitsSeries(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	req := therapyAt(seriesStart)
	req.Recurrence = &RecurrenceRule{Frequency: FrequencyWeekly, Count: 4}
	created := mustCreate(t, svc, req)

	newStart := created[1].StartTime.Add(time.Hour)
	updated, err := svc.UpdateAppointment(ctx, clinicianP, created[1].ID, &UpdateRequest{Scope: ScopeFollowing, StartTime: &newStart})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(updated) != 3 {
		t.Fatalf("expected 3 updated, got %d", len(updated))
	}
	first, _ := svc.GetAppointment(ctx, clinicianP, created[0].ID)
	if !first.StartTime.Equal(created[0].StartTime) || *first.SeriesID != *created[0].SeriesID {
		t.Error("earlier occurrence should be untouched")
	}
	for i, a := range updated {
		want := created[i+1].StartTime.Add(time.Hour)
		if !a.StartTime.Equal(want) {
			t.Errorf("occurrence %d starts %s, want %s", i+1, a.StartTime, want)
		}
		if *a.SeriesID == *created[0].SeriesID {
			t.Error("following occurrences should move to a new series")
		}
	}
}

func TestUpdateAppointment_Rules(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	single := mustCreate(t, svc, therapyAt(seriesStart))[0]

	if _, err := svc.UpdateAppointment(ctx, clinicianP, single.ID, &UpdateRequest{Scope: ScopeFollowing}); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error for following on a single, got %v", err)
	}
	if _, err := svc.UpdateAppointment(ctx, clinicianP, single.ID, &UpdateRequest{Scope: ScopeSeries}); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error for scope series, got %v", err)
	}

	other := mustCreate(t, svc, therapyAt(seriesStart.Add(2*time.Hour)))[0]
	clash := seriesStart.Add(2*time.Hour + 10*time.Minute)
	if _, err := svc.UpdateAppointment(ctx, clinicianP, single.ID, &UpdateRequest{StartTime: &clash}); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("expected overlap conflict, got %v", err)
	}

	if _, err := svc.SetStatus(ctx, clinicianP, other.ID, StatusCompleted); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.UpdateAppointment(ctx, clinicianP, other.ID, &UpdateRequest{}); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("expected conflict editing a completed appointment, got %v", err)
	}
}

func TestCancelAppointment_Scopes(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	req := therapyAt(seriesStart)
	req.Recurrence = &RecurrenceRule{Frequency: FrequencyWeekly, Count: 5}
	created := mustCreate(t, svc, req)

	if _, err := svc.CancelAppointment(ctx, clinicianP, created[0].ID, &CancelRequest{Reason: "  "}); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected reason required, got %v", err)
	}

	ids, err := svc.CancelAppointment(ctx, clinicianP, created[0].ID, &CancelRequest{Reason: "sick"})
	if err != nil || len(ids) != 1 {
		t.Fatalf("cancel this: %v %v", ids, err)
	}
	if repo.appts[created[0].ID].Status != StatusCancelled || *repo.appts[created[0].ID].CancellationReason != "sick" {
		t.Error("expected cancelled with reason")
	}
	if _, err := svc.CancelAppointment(ctx, clinicianP, created[0].ID, &CancelRequest{Reason: "again"}); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("expected conflict cancelling twice, got %v", err)
	}

	ids, err = svc.CancelAppointment(ctx, clinicianP, created[3].ID, &CancelRequest{Scope: ScopeFollowing, Reason: "moving"})
	if err != nil || len(ids) != 2 {
		t.Fatalf("cancel following: %v %v", ids, err)
	}

	ids, err = svc.CancelAppointment(ctx, clinicianP, created[2].ID, &CancelRequest{Scope: ScopeSeries, Reason: "ended care"})
	if err != nil || len(ids) != 2 {
		t.Fatalf("cancel series: %v %v", ids, err)
	}
	for _, a := range repo.appts {
		if a.Status != StatusCancelled {
			t.Errorf("appointment %d is %s", a.ID, a.Status)
		}
	}
}

func TestSetStatus_Transitions(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	a := mustCreate(t, svc, therapyAt(seriesStart))[0]

	if _, err := svc.SetStatus(ctx, clinicianP, a.ID, StatusCancelled); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected cancel via status to be rejected, got %v", err)
	}
	if _, err := svc.SetStatus(ctx, clinicianP, a.ID, "gone"); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected invalid status, got %v", err)
	}
	for _, s := range []string{StatusConfirmed, StatusArrived, StatusCompleted} {
		got, err := svc.SetStatus(ctx, clinicianP, a.ID, s)
		if err != nil || got.Status != s {
			t.Fatalf("set %s: %v", s, err)
		}
	}
	if _, err := svc.SetStatus(ctx, clinicianP, a.ID, StatusScheduled); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("expected conflict reopening a completed appointment, got %v", err)
	}
}

func TestListAppointments_Visibility(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	mustCreate(t, svc, therapyAt(seriesStart))
	other := therapyAt(seriesStart)
	other.ClientID = 11
	other.ProviderID = 7
	if _, err := svc.CreateAppointment(ctx, adminP, other); err != nil {
		t.Fatal(err)
	}

	all, total, err := svc.ListAppointments(ctx, frontDeskP, ListFilter{}, 20, 0)
	if err != nil || total != 2 || len(all) != 2 {
		t.Fatalf("front desk sees all: %d %v", total, err)
	}
	mine, total, err := svc.ListAppointments(ctx, clinicianP, ListFilter{}, 20, 0)
	if err != nil || total != 1 || mine[0].ClientID != testClientID {
		t.Fatalf("clinician sees own clients: %d %v", total, err)
	}
	cid := int64(11)
	if _, _, err := svc.ListAppointments(ctx, clinicianP, ListFilter{ClientID: &cid}, 20, 0); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("expected forbidden for another client, got %v", err)
	}
	from, to := seriesEnd, seriesStart
	if _, _, err := svc.ListAppointments(ctx, adminP, ListFilter{From: &from, To: &to}, 20, 0); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error for inverted range, got %v", err)
	}
}

func TestSendReminder(t *testing.T) {
	svc, _, notifier := newTestService(t)
	ctx := context.Background()
	req := therapyAt(seriesStart)
	room := "Room 2"
	req.Location = &room
	a := mustCreate(t, svc, req)[0]

	if err := svc.SendReminder(ctx, clinicianP, a.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(notifier.sent) != 1 {
		t.Fatalf("expected 1 message, got %d", len(notifier.sent))
	}
	msg := notifier.sent[0]
	if msg.templateID != notification.TemplateAppointmentReminder || msg.to != "ada@example.com" {
		t.Errorf("unexpected message %+v", msg)
	}
	if msg.data["client_name"] != "Ada Lovelace" || msg.data["provider"] != "Grace Hopper" || msg.data["location"] != "Room 2" {
		t.Errorf("unexpected data %v", msg.data)
	}
	if msg.data["date"] != "Wednesday, January 10, 2024" {
		t.Errorf("unexpected date %q", msg.data["date"])
	}

	notifier.err = notification.ErrQueueFull
	if err := svc.SendReminder(ctx, clinicianP, a.ID); !errors.Is(err, notification.ErrQueueFull) {
		t.Errorf("expected queue full, got %v", err)
	}
}

func TestSendReminder_Rejections(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	noEmail := therapyAt(seriesStart)
	noEmail.ClientID = 11
	a, err := svc.CreateAppointment(ctx, adminP, noEmail)
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.SendReminder(ctx, adminP, a[0].ID); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error without email, got %v", err)
	}

	past := mustCreate(t, svc, therapyAt(testNow.Add(-2*time.Hour)))[0]
	if err := svc.SendReminder(ctx, clinicianP, past.ID); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("expected conflict for a past appointment, got %v", err)
	}
}
