// Package notify hands temporary credentials to an out-of-band delivery
// channel so they never travel back in an API response.
package notify

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"estatehub.org/internal/obs"
)

// ErrDisabled is returned by dispatchers that have no delivery channel configured.
var ErrDisabled = errors.New("credential delivery disabled")

// Credential is one temporary login secret awaiting delivery.
type Credential struct {
	AccountID         string    `json:"account_id"`
	Email             string    `json:"email"`
	TenantID          string    `json:"tenant_id"`
	Role              string    `json:"role"`
	TemporaryPassword string    `json:"temporary_password"`
	IssuedAt          time.Time `json:"issued_at"`
}

// Dispatcher queues a credential for delivery.
type Dispatcher interface {
	Dispatch(ctx context.Context, c Credential) error
}

// Sender performs the final delivery of a dequeued credential.
type Sender interface {
	Send(ctx context.Context, c Credential) error
}

// LogSender records deliveries in the service log with the secret redacted.
type LogSender struct{}

func (LogSender) Send(_ context.Context, c Credential) error {
	obs.Logger().Info("temporary credential delivered",
		zap.String("account_id", c.AccountID),
		zap.String("email", c.Email),
		zap.String("tenant_id", c.TenantID),
		zap.Time("issued_at", c.IssuedAt),
	)
	return nil
}

// Disabled rejects every dispatch. Provisioning still succeeds and reports
// the credential as not dispatched.
type Disabled struct{}

func (Disabled) Dispatch(context.Context, Credential) error { return ErrDisabled }
