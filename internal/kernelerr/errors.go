// Package kernelerr implements the typed error taxonomy from spec.md §7.
// Every public fallible operation in the kernel returns one of these types
// (or wraps one with %w) rather than an opaque error, so callers can
// switch on Kind without string matching.
package kernelerr

import "fmt"

// Kind identifies a top-level error category.
type Kind string

const (
	KindInitialization    Kind = "initialization"
	KindAdapter           Kind = "adapter"
	KindDb                Kind = "db"
	KindSink              Kind = "sink"
	KindSettings          Kind = "settings"
	KindTransform         Kind = "transform"
	KindConsumer          Kind = "consumer"
	KindProducer          Kind = "producer"
	KindShutdownRequested Kind = "shutdown_requested"
)

// Error is the common shape for all kernel errors: a Kind, an optional
// sub-reason, and a wrapped cause.
type Error struct {
	Kind   Kind
	Reason string
	Cause  error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *Error) Unwrap() error { return e.Cause }

func new_(kind Kind, reason string, cause error) *Error {
	return &Error{Kind: kind, Reason: reason, Cause: cause}
}

// Initialization wraps an error encountered opening the state store,
// resolving $HOME, or parsing the execution plan.
func Initialization(reason string, cause error) *Error { return new_(KindInitialization, reason, cause) }

// Adapter wraps a connect failure, an unsupported driver/format, or a
// missing connection property.
func Adapter(reason string, cause error) *Error { return new_(KindAdapter, reason, cause) }

// Db subsumes IO errors, driver errors, query-build errors, UTF-8 decode
// errors, circular-reference detection, and unknown database errors.
type DbSubKind string

const (
	DbIO             DbSubKind = "io"
	DbDriver         DbSubKind = "driver"
	DbQueryBuild     DbSubKind = "query_build"
	DbUTF8Decode     DbSubKind = "utf8_decode"
	DbCircularRef    DbSubKind = "circular_reference"
	DbUnknown        DbSubKind = "unknown"
)

func Db(sub DbSubKind, reason string, cause error) *Error {
	return new_(KindDb, string(sub)+": "+reason, cause)
}

// Sink subsumes IO, protocol, closed, capability-unsupported, and
// fast-path-not-supported destination errors.
type SinkSubKind string

const (
	SinkIO                  SinkSubKind = "io"
	SinkProtocol            SinkSubKind = "protocol"
	SinkClosed              SinkSubKind = "closed"
	SinkCapabilityUnsupported SinkSubKind = "capability_unsupported"
	SinkFastPathUnsupported SinkSubKind = "fast_path_not_supported"
)

func Sink(sub SinkSubKind, reason string, cause error) *Error {
	return new_(KindSink, string(sub)+": "+reason, cause)
}

// Settings carries a list of validation failures rather than a single
// cause, matching spec.md's "validation failure (list of strings)".
type SettingsError struct {
	Failures []string
}

func (e *SettingsError) Error() string {
	if len(e.Failures) == 1 {
		return "settings: " + e.Failures[0]
	}
	return fmt.Sprintf("settings: %d validation failures: %v", len(e.Failures), e.Failures)
}

func Settings(failures ...string) *SettingsError { return &SettingsError{Failures: failures} }

// Transform distinguishes validation-fatal (stops the migration) from
// data-transform (routed to the DLQ, migration continues) errors.
type TransformSubKind string

const (
	TransformValidationFatal TransformSubKind = "validation_fatal"
	TransformDataTransform   TransformSubKind = "data_transform"
)

type TransformError struct {
	Sub    TransformSubKind
	Entity string
	Cause  error
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("transform[%s] entity=%s: %v", e.Sub, e.Entity, e.Cause)
}
func (e *TransformError) Unwrap() error { return e.Cause }

func Transform(sub TransformSubKind, entity string, cause error) *TransformError {
	return &TransformError{Sub: sub, Entity: entity, Cause: cause}
}

func (e *TransformError) IsFatal() bool { return e.Sub == TransformValidationFatal }

// Consumer wraps a write, checkpoint, or state-load failure.
type ConsumerSubKind string

const (
	ConsumerWrite      ConsumerSubKind = "write"
	ConsumerCheckpoint ConsumerSubKind = "checkpoint"
	ConsumerStateLoad  ConsumerSubKind = "state_load"
)

func Consumer(sub ConsumerSubKind, cause error) *Error {
	return new_(KindConsumer, string(sub), cause)
}

// Producer wraps a fetch failure (itself wrapping the underlying adapter
// error) or any other producer-stage failure.
type ProducerSubKind string

const (
	ProducerFetch ProducerSubKind = "fetch"
	ProducerOther ProducerSubKind = "other"
)

func Producer(sub ProducerSubKind, cause error) *Error {
	return new_(KindProducer, string(sub), cause)
}

// ShutdownRequested signals cooperative cancellation — not a true failure,
// but returned through the same error channel so callers can distinguish
// it from a real migration error (exit code 2 vs 1, per spec.md §6).
func ShutdownRequested() *Error {
	return new_(KindShutdownRequested, "cancellation requested", nil)
}

// IsShutdownRequested reports whether err (or anything it wraps) is a
// ShutdownRequested sentinel.
func IsShutdownRequested(err error) bool {
	var e *Error
	return asError(err, &e) && e.Kind == KindShutdownRequested
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
