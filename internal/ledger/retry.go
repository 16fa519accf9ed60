package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	pkgerrors "github.com/angelmondragon/inventory-backend/pkg/errors"
)

// ErrVersionConflict is returned by an attempt whose conditional write matched
// no row because another writer bumped the version first.
var ErrVersionConflict = errors.New("stock ledger version conflict")

const (
	DefaultMaxAttempts  = 3
	DefaultRetryBackoff = 100 * time.Millisecond
)

// RetryPolicy bounds the compare-and-retry loop shared by every ledger writer.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: DefaultMaxAttempts, Backoff: DefaultRetryBackoff}
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.Backoff < 0 {
		p.Backoff = 0
	}
	return p
}

// ConflictObserver is told about every lost version race.
type ConflictObserver interface {
	IncConflict(operation string)
}

// RetryConditional runs attempt until it stops returning ErrVersionConflict or
// the policy is exhausted. Each attempt must re-read the ledger. Exhaustion
// yields a CONCURRENCY_CONFLICT error; any other error is returned as is.
func RetryConditional(ctx context.Context, policy RetryPolicy, operation string, observer ConflictObserver, attempt func(ctx context.Context) error) error {
	policy = policy.normalized()
	for i := 1; ; i++ {
		err := attempt(ctx)
		if !errors.Is(err, ErrVersionConflict) {
			return err
		}
		if observer != nil {
			observer.IncConflict(operation)
		}
		if i >= policy.MaxAttempts {
			return pkgerrors.Wrap(pkgerrors.CodeConcurrencyConflict, err,
				fmt.Sprintf("%s: gave up after %d attempts", operation, policy.MaxAttempts))
		}
		if err := sleep(ctx, policy.Backoff); err != nil {
			return err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
