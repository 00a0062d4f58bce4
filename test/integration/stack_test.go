//go:build integration

package integration

import (
	"context"
	"testing"

	"github.com/emhr/emhr/internal/domain/admin"
	"github.com/emhr/emhr/internal/domain/billing"
	"github.com/emhr/emhr/internal/domain/careteam"
	"github.com/emhr/emhr/internal/domain/client"
	"github.com/emhr/emhr/internal/domain/diagnosis"
	"github.com/emhr/emhr/internal/domain/identity"
	"github.com/emhr/emhr/internal/domain/insurance"
	"github.com/emhr/emhr/internal/domain/notes"
	"github.com/emhr/emhr/internal/domain/scheduling"
	"github.com/emhr/emhr/internal/platform/cache"
	"github.com/emhr/emhr/internal/platform/db"
	"github.com/emhr/emhr/internal/platform/phi"
)

// stack wires the services the way the server does, against the shared pool.
type stack struct {
	users      *identity.Service
	careTeam   *careteam.Service
	clients    *client.Service
	scheduling *scheduling.Service
	diagnoses  *diagnosis.Service
	notes      *notes.Service
	insurance  *insurance.Service
	billing    *billing.Service
	settings   *admin.Settings
	accessLog  *admin.AccessLog
}

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, string, string, map[string]string) error { return nil }

func newStack(t *testing.T) *stack {
	t.Helper()
	pool := globalPool
	logger := testLogger()
	tx := db.NewTxRunner(pool)

	cipher, err := phi.NewEncryptor(phi.DevKey("integration"))
	if err != nil {
		t.Fatalf("phi cipher: %v", err)
	}

	s := &stack{}
	s.users = identity.NewService(identity.NewUserRepoPG(pool), logger)
	s.careTeam = careteam.NewService(careteam.NewMemberRepoPG(pool))
	s.clients = client.NewService(client.NewClientRepoPG(pool), cipher, s.careTeam, tx, logger)
	s.scheduling = scheduling.NewService(scheduling.NewAppointmentRepoPG(pool), s.careTeam, s.clients, s.users, noopNotifier{}, tx, nil, logger)
	s.diagnoses = diagnosis.NewService(diagnosis.NewDiagnosisRepoPG(pool), s.careTeam, tx, nil, logger)
	s.notes = notes.NewService(notes.NewNoteRepoPG(pool), notes.NewDraftRepoPG(pool), s.careTeam, s.users, s.diagnoses, noopNotifier{}, tx, nil, logger)
	s.insurance = insurance.NewService(insurance.NewRepoPG(pool), s.careTeam, tx, logger)
	s.billing = billing.NewService(billing.NewChargeRepoPG(pool), s.notes, s.insurance, tx, logger)
	s.settings = admin.NewSettings(admin.NewSettingRepoPG(pool), cache.New(0, nil, "", logger), logger)
	s.accessLog = admin.NewAccessLog(admin.NewAccessLogRepoPG(pool), "default", logger)
	return s
}
