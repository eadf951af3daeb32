// Package retry implements the pure retry classifier and retry policy
// from spec.md §4.9, grounded in the teacher's
// internal/storage/dolt/store.go isRetryableError/withRetry pattern: a
// pure string/code classification function wrapped by
// github.com/cenkalti/backoff/v4.
package retry

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/stanstork/stratum/internal/plan"
)

// Decision is the classifier's verdict on one error.
type Decision int

const (
	Stop Decision = iota
	Retry
)

// DbError is the minimal shape the classifier needs from a driver error:
// an optional SQL state / vendor code plus the textual message. Adapters
// populate this from whatever error type their driver returns.
type DbError struct {
	SQLState   string // Postgres SQLSTATE, if any
	VendorCode int    // MySQL error number, if any
	Message    string
	IsIOError  bool
}

var postgresTransientStates = map[string]bool{
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
	"55P03": true, // lock_not_available
	"53300": true, // too_many_connections
	"57P01": true, // admin_shutdown
	"57P02": true, // crash_shutdown
	"57P03": true, // cannot_connect_now
	"08006": true, // connection_failure
	"08001": true, // sqlclient_unable_to_establish_sqlconnection
	"57014": true, // query_canceled
	"57P04": true, // database_dropped (operator intervention family)
	"08004": true, // sqlserver_rejected_establishment_of_sqlconnection (FDW connect failure family)
}

var mysqlTransientCodes = map[int]bool{
	1040: true, // too many connections
	1042: true, // unable to connect to host
	1205: true, // lock wait timeout
	1213: true, // deadlock
	2002: true, // connection refused
	2003: true, // can't connect to server
	2006: true, // server has gone away
	2013: true, // lost connection during query
}

var mysqlTransientStates = map[string]bool{
	"40001": true,
	"HYT00": true,
	"08S01": true,
}

// Classify is a pure function: DbError -> {Retry, Stop}. Identical inputs
// always produce identical decisions (spec.md §8 "retry purity").
func Classify(e DbError) Decision {
	if e.IsIOError {
		return Retry
	}
	if e.SQLState != "" {
		state := strings.ToUpper(e.SQLState)
		if postgresTransientStates[state] || mysqlTransientStates[state] {
			return Retry
		}
	}
	if e.VendorCode != 0 && mysqlTransientCodes[e.VendorCode] {
		return Retry
	}
	return Stop
}

// Policy wraps an operation with bounded attempts and the configured
// backoff schedule (spec.md §4.9). On Stop, the error propagates
// immediately without further attempts — mirrors the teacher's
// withRetry: the op's error is classified, and a Stop decision becomes a
// backoff.Permanent wrapper so backoff.Retry halts right away.
type Policy struct {
	Backoff     backoff.BackOff
	Classify    func(error) Decision
	MaxAttempts int
}

// NewPolicy builds a Policy from a pipeline's ErrorHandling settings.
// classify maps an opaque error (as returned by an adapter) to a
// Decision; callers normally close over Classify plus their adapter's
// DbError extraction.
func NewPolicy(eh plan.ErrorHandling, classify func(error) Decision) Policy {
	var bo backoff.BackOff
	switch eh.Backoff {
	case plan.BackoffFixed:
		bo = backoff.NewConstantBackOff(backoffBaseInterval)
	case plan.BackoffLinear:
		bo = &linearBackOff{interval: backoffBaseInterval}
	default:
		eb := backoff.NewExponentialBackOff()
		bo = eb
	}
	if eh.MaxAttempts > 0 {
		bo = backoff.WithMaxRetries(bo, uint64(eh.MaxAttempts-1))
	}
	return Policy{Backoff: bo, Classify: classify, MaxAttempts: eh.MaxAttempts}
}

// Run executes op, retrying on Retry decisions per the policy's backoff
// schedule and propagating immediately on a Stop decision.
func (p Policy) Run(ctx context.Context, op func(ctx context.Context) error) error {
	attempts := 0
	err := backoff.Retry(func() error {
		attempts++
		err := op(ctx)
		if err == nil {
			return nil
		}
		if p.Classify(err) == Retry {
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(p.Backoff, ctx))

	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		return permanent.Unwrap()
	}
	return err
}

const backoffBaseInterval = 500 * time.Millisecond

// linearBackOff grows its interval linearly (n * base) rather than
// exponentially; backoff/v4 has no built-in linear schedule.
type linearBackOff struct {
	interval time.Duration
	n        int
}

func (l *linearBackOff) NextBackOff() time.Duration {
	l.n++
	return l.interval * time.Duration(l.n)
}

func (l *linearBackOff) Reset() { l.n = 0 }

var _ backoff.BackOff = (*linearBackOff)(nil)
