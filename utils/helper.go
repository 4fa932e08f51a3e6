package utils

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/mmdatafocus/warehouse_backend/config"
	"github.com/shopspring/decimal"
)

// ConvertToDate truncates t to midnight in the given timezone.
func ConvertToDate(t time.Time, timezone string) (time.Time, error) {
	if timezone == "" {
		timezone = "UTC"
	}

	location, err := time.LoadLocation(timezone)
	if err != nil {
		return t, err
	}
	localTime := t.In(location)

	dateOnly := time.Date(localTime.Year(), localTime.Month(), localTime.Day(), 0, 0, 0, 0, location)
	return dateOnly, nil
}

// ParseDecimal converts a string to a decimal.Decimal value.
func ParseDecimal(value string) (decimal.Decimal, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return decimal.Zero, errors.New("empty decimal string")
	}

	dec, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, err
	}

	return dec, nil
}

func DereferencePtr[T any](ptr *T) T {
	var zero T
	if ptr == nil {
		return zero
	}
	return *ptr
}

// ErrScopeLocked is returned when another request already holds the scope lock.
var ErrScopeLocked = errors.New("scope is locked by another recompute")

// scopeGroup tracks which scopes of one lock group are held in this process.
// The "all" scope is coarse: its write set covers every scoped run of the
// group, so the two must conflict in both directions. Redis is a best-effort
// cross-instance layer on top; it must not be the only line of defense because
// tests and single-node deployments run without Redis.
type scopeGroup struct {
	all  bool
	held map[string]bool
}

var (
	scopeMu     sync.Mutex
	scopeGroups = make(map[string]*scopeGroup)
)

// ObtainScopeLock acquires an exclusive advisory lock for a recompute scope
// within a group (e.g. group "balance-recompute", scope "3" or "all"). An
// empty scope means "all". The returned release func must be called on
// completion or failure. Returns ErrScopeLocked when the scope, or an
// overlapping one, is already held.
func ObtainScopeLock(ctx context.Context, group, scope string, ttl time.Duration) (func(), error) {
	if scope == "" {
		scope = "all"
	}
	coarse := scope == "all"

	scopeMu.Lock()
	g, ok := scopeGroups[group]
	if !ok {
		g = &scopeGroup{held: make(map[string]bool)}
		scopeGroups[group] = g
	}
	if g.all || (coarse && len(g.held) > 0) || (!coarse && g.held[scope]) {
		scopeMu.Unlock()
		return nil, ErrScopeLocked
	}
	if coarse {
		g.all = true
	} else {
		g.held[scope] = true
	}
	scopeMu.Unlock()

	localRelease := func() {
		scopeMu.Lock()
		if coarse {
			g.all = false
		} else {
			delete(g.held, scope)
		}
		scopeMu.Unlock()
	}

	locker := config.GetRedisLock()
	if locker == nil {
		return localRelease, nil
	}

	key := group + ":" + scope
	lock, err := locker.Obtain(ctx, "scopelock:"+key, ttl, nil)
	if err == redislock.ErrNotObtained {
		localRelease()
		return nil, ErrScopeLocked
	} else if err != nil {
		localRelease()
		return nil, fmt.Errorf("obtain scope lock %q: %w", key, err)
	}

	release := func() {
		if releaseErr := lock.Release(ctx); releaseErr != nil && releaseErr != redislock.ErrLockNotHeld {
			logger := config.GetLogger()
			config.LogError(logger, "utils", "ObtainScopeLock", "release", key, releaseErr)
		}
		localRelease()
	}
	return release, nil
}
