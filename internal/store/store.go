package store

import (
	"context"

	"github.com/pliu/socialsync/internal/models"
)

// Store is the entity store adapter the synchronization core depends on.
// Put and List fail with errors.ErrStoreUnavailable when the transport is
// unreachable; nothing is retried on the caller's behalf.
type Store interface {
	Put(ctx context.Context, record models.Record) error
	List(ctx context.Context, collection models.Collection) ([]models.Record, error)
}

// Subscriber is implemented by stores that can push committed changes.
// Stores without it are observed by polling List.
type Subscriber interface {
	// Subscribe invokes handler at least once per committed change to the
	// collection until the subscription is closed or dropped.
	Subscribe(ctx context.Context, collection models.Collection, handler func(models.Record)) (Subscription, error)
}

type Subscription interface {
	Close()
	// Done is closed when the subscription ends for any reason.
	Done() <-chan struct{}
	// Err reports why the subscription ended, nil after Close.
	Err() error
}

// Accounts holds store server credentials. It sits beside the record
// store because registration writes both an account and a User record.
type Accounts interface {
	CreateAccount(ctx context.Context, account *models.Account) error
	GetAccountByUsername(ctx context.Context, username string) (*models.Account, error)
	// UpdateAccount keeps the login name and email in step with the user's
	// record. A name or email held by another account is DUPLICATE.
	UpdateAccount(ctx context.Context, userID, username, email string) error
}

// Authenticator is implemented by stores that send a session token with
// each call.
type Authenticator interface {
	SetToken(token string)
}
