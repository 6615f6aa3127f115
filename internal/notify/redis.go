package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"estatehub.org/internal/obs"
)

const DefaultOutboxKey = "estatehub:credentials:outbox"

// NewRedisClient parses a redis:// or rediss:// URL and verifies the connection.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// Outbox is a redis list used as a delivery queue. Dispatch pushes on the
// left, Relay pops from the right.
type Outbox struct {
	client redis.Cmdable
	key    string
}

func NewOutbox(client redis.Cmdable, key string) *Outbox {
	if key == "" {
		key = DefaultOutboxKey
	}
	return &Outbox{client: client, key: key}
}

func (o *Outbox) Dispatch(ctx context.Context, c Credential) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode credential: %w", err)
	}
	if err := o.client.LPush(ctx, o.key, payload).Err(); err != nil {
		return fmt.Errorf("enqueue credential: %w", err)
	}
	return nil
}

// Len reports the number of queued credentials.
func (o *Outbox) Len(ctx context.Context) (int64, error) {
	return o.client.LLen(ctx, o.key).Result()
}

// Relay drains the outbox into a Sender.
type Relay struct {
	outbox *Outbox
	sender Sender
	wait   time.Duration
}

func NewRelay(outbox *Outbox, sender Sender) *Relay {
	return &Relay{outbox: outbox, sender: sender, wait: 2 * time.Second}
}

// Run blocks until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		if _, err := r.Step(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			obs.Logger().Warn("credential relay step failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(r.wait):
			}
		}
	}
}

// Step waits up to the relay timeout for one credential and delivers it.
// It reports whether a credential was handled.
func (r *Relay) Step(ctx context.Context) (bool, error) {
	res, err := r.outbox.client.BRPop(ctx, r.wait, r.outbox.key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if len(res) != 2 {
		return false, fmt.Errorf("unexpected brpop reply of %d items", len(res))
	}
	var c Credential
	if err := json.Unmarshal([]byte(res[1]), &c); err != nil {
		obs.CredentialsDispatched.WithLabelValues("malformed").Inc()
		return true, fmt.Errorf("decode credential: %w", err)
	}
	if err := r.sender.Send(ctx, c); err != nil {
		obs.CredentialsDispatched.WithLabelValues("failed").Inc()
		// Requeue so the credential is not lost.
		if perr := r.outbox.client.RPush(ctx, r.outbox.key, res[1]).Err(); perr != nil {
			return true, errors.Join(err, perr)
		}
		return true, err
	}
	obs.CredentialsDispatched.WithLabelValues("delivered").Inc()
	return true, nil
}
