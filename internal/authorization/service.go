package authorization

import "context"

// Actor is an authenticated account as seen by the enforcer.
type Actor struct {
	AccountID string
	Role      string
}

type Service interface {
	Authorize(ctx context.Context, actor Actor, object string, action string) error
}
