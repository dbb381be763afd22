package cache

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrLeaseHeld is returned by Acquire when another process owns the lease.
var ErrLeaseHeld = errors.New("cache: lease held by another owner")

// ErrLeaseLost is returned by Refresh when the lease expired or was taken.
var ErrLeaseLost = errors.New("cache: lease lost")

// Lease is a TTL lock keyed on the pet, so two daemons sharing one Redis
// never drive the same pet.
type Lease struct {
	store Store
	key   string
	owner string
	ttl   time.Duration
}

func NewLease(store Store, key, owner string, ttl time.Duration) *Lease {
	return &Lease{store: store, key: key, owner: owner, ttl: ttl}
}

func (l *Lease) Key() string   { return l.key }
func (l *Lease) Owner() string { return l.owner }

// Acquire takes the lease. Re-acquiring a lease this owner already holds
// succeeds and extends it.
func (l *Lease) Acquire(ctx context.Context) error {
	ok, err := l.store.SetNX(ctx, l.key, l.owner, l.ttl)
	if err != nil {
		return fmt.Errorf("cache: acquire %s: %w", l.key, err)
	}
	if ok {
		return nil
	}
	if err := l.Refresh(ctx); err != nil {
		if errors.Is(err, ErrLeaseLost) {
			return ErrLeaseHeld
		}
		return err
	}
	return nil
}

// Refresh extends the lease if this owner still holds it.
func (l *Lease) Refresh(ctx context.Context) error {
	holder, err := l.store.Get(ctx, l.key)
	if IsNotFound(err) {
		return ErrLeaseLost
	}
	if err != nil {
		return fmt.Errorf("cache: refresh %s: %w", l.key, err)
	}
	if holder != l.owner {
		return ErrLeaseLost
	}
	return l.store.Expire(ctx, l.key, l.ttl)
}

// Release drops the lease if this owner holds it.
func (l *Lease) Release(ctx context.Context) error {
	holder, err := l.store.Get(ctx, l.key)
	if IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if holder != l.owner {
		return nil
	}
	return l.store.Del(ctx, l.key)
}
