package careteam

import (
	"context"
	"time"
)

type MemberRepository interface {
	// Upsert inserts the membership or reactivates an ended one.
	Upsert(ctx context.Context, m *Member) error
	End(ctx context.Context, clientID, userID int64, endDate time.Time) error
	ListByClient(ctx context.Context, clientID int64, activeOnly bool) ([]*Member, error)
	ListClientIDsForUser(ctx context.Context, userID int64) ([]int64, error)
	IsActiveMember(ctx context.Context, clientID, userID int64) (bool, error)
}
