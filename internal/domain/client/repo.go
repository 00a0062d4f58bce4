package client

import (
	"context"

	"github.com/emhr/emhr/pkg/civil"
)

type ClientRepository interface {
	Create(ctx context.Context, c *Client) error
	GetByID(ctx context.Context, id int64) (*Client, error)
	Update(ctx context.Context, c *Client) error
	SetMRN(ctx context.Context, id int64, mrn string) error
	SoftDelete(ctx context.Context, id int64) error
	Discharge(ctx context.Context, id int64, date civil.Date) error
	Search(ctx context.Context, filter SearchFilter, limit, offset int) ([]*Client, int, error)
}
