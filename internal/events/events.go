// Package events publishes session lifecycle events (login, logout, refresh)
// to Kafka and to an Elasticsearch audit index.
package events

import (
	"context"
	"errors"
	"time"
)

const (
	TypeLogin          = "session.login"
	TypeLoginFailed    = "session.login_failed"
	TypeLogout         = "session.logout"
	TypeRefreshed      = "session.refreshed"
	TypeRefreshDenied  = "session.refresh_denied"
	TypeRefreshRotated = "session.refresh_rotated"
)

type Event struct {
	Type     string    `json:"type"`
	UserID   string    `json:"user_id,omitempty"`
	Username string    `json:"username,omitempty"`
	Role     string    `json:"role,omitempty"`
	Reason   string    `json:"reason,omitempty"`
	At       time.Time `json:"at"`
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Multi fans an event out to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
