// Package plan models the immutable, DSL-compiled ExecutionPlan the
// kernel consumes (spec.md §3/§6). The DSL grammar, lexer, parser, and
// semantic validation that produce an ExecutionPlan are out of scope
// (spec.md §1) — this package only defines the plan shape and the
// deterministic hashing used to derive run and item ids.
package plan

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// OffsetStrategyKind selects one of the three pagination strategies from
// spec.md §4.3.
type OffsetStrategyKind string

const (
	StrategyPkOffset        OffsetStrategyKind = "pk_offset"
	StrategyNumericOffset   OffsetStrategyKind = "numeric_offset"
	StrategyTimestampOffset OffsetStrategyKind = "timestamp_offset"
)

// Paginate configures the cursor strategy for one pipeline.
type Paginate struct {
	Strategy  OffsetStrategyKind `json:"strategy"`
	PkColumn  string             `json:"pk_column"`
	OrderCol  string             `json:"order_column,omitempty"` // numeric/timestamp strategies
	Timezone  string             `json:"timezone,omitempty"`     // timestamp strategy
	BatchSize int                `json:"batch_size"`
}

// CopyColumnsPolicy controls column pruning (transform step 4).
type CopyColumnsPolicy string

const (
	CopyColumnsAll    CopyColumnsPolicy = "all"
	CopyColumnsMapOnly CopyColumnsPolicy = "map_only"
)

// BackoffKind selects the retry policy's backoff schedule (spec.md §4.9).
type BackoffKind string

const (
	BackoffFixed       BackoffKind = "fixed"
	BackoffLinear      BackoffKind = "linear"
	BackoffExponential BackoffKind = "exponential"
)

// ErrorHandling configures retry attempts, backoff, and DLQ routing.
type ErrorHandling struct {
	MaxAttempts int         `json:"max_attempts"`
	Backoff     BackoffKind `json:"backoff"`
	DLQTable    string      `json:"dlq_table,omitempty"`
	DLQFile     string      `json:"dlq_file,omitempty"`
}

// Settings configures schema inference, table/column creation, cascade,
// batch size, and copy-columns policy for one pipeline.
type Settings struct {
	InferSchema       bool              `json:"infer_schema"`
	CreateTables       bool              `json:"create_tables"`
	CreateColumns      bool              `json:"create_columns"`
	Cascade            bool              `json:"cascade"`
	BatchSize          int               `json:"batch_size"`
	CopyColumns        CopyColumnsPolicy `json:"copy_columns"`
	IgnoreConstraints  bool              `json:"ignore_constraints"`
	MappedColumnsOnly  bool              `json:"mapped_columns_only"`
}

// ValidationAction is the action taken on a failing validation rule.
type ValidationAction string

const (
	ActionSkip     ValidationAction = "skip"
	ActionFail     ValidationAction = "fail"
	ActionWarn     ValidationAction = "warn"
	ActionContinue ValidationAction = "continue"
)

// ValidationRule is one assert/warn rule applied during transformation
// step 5.
type ValidationRule struct {
	Name       string           `json:"name"`
	Expression string           `json:"expression"` // serialized CompiledExpression, must evaluate to bool
	Action     ValidationAction `json:"action"`
	Message    string           `json:"message,omitempty"`
}

// Lifecycle configures trigger toggling and graceful-shutdown timeout.
type Lifecycle struct {
	ToggleTriggers         bool `json:"toggle_triggers"`
	ShutdownTimeoutSeconds int  `json:"shutdown_timeout_seconds"`
}

func (l Lifecycle) ShutdownTimeoutOrDefault() int {
	if l.ShutdownTimeoutSeconds <= 0 {
		return 30
	}
	return l.ShutdownTimeoutSeconds
}

// Endpoint names a connection plus the table/file within it.
type Endpoint struct {
	Connection string `json:"connection"`
	Table      string `json:"table,omitempty"`
	Path       string `json:"path,omitempty"` // file sources (CSV)
	Format     string `json:"format,omitempty"`
}

// TransformStep is one step in the ordered transformation pipeline
// (spec.md §4.5). Kind selects which of the standard steps this is;
// unused fields are zero.
type TransformStepKind string

const (
	StepEntityRename    TransformStepKind = "entity_rename"
	StepFieldRename     TransformStepKind = "field_rename"
	StepComputedField   TransformStepKind = "computed_field"
	StepColumnPruning   TransformStepKind = "column_pruning"
	StepValidation      TransformStepKind = "validation"
	StepFilter          TransformStepKind = "filter"
)

type TransformStep struct {
	Kind       TransformStepKind `json:"kind"`
	Expression string            `json:"expression,omitempty"`
}

// Pipeline is one migrate item: one source, one destination, and the
// transformation/validation/error-handling/settings configuration that
// governs it.
type Pipeline struct {
	Name            string           `json:"name"`
	Source          Endpoint         `json:"source"`
	Destination     Endpoint         `json:"destination"`
	Mapping         *EntityMapping   `json:"mapping,omitempty"`
	Transformations []TransformStep  `json:"transformations"`
	Validations     []ValidationRule `json:"validations"`
	ErrorHandling    ErrorHandling    `json:"error_handling"`
	Settings        Settings         `json:"settings"`
	Lifecycle       Lifecycle        `json:"lifecycle"`
	Paginate        Paginate         `json:"paginate"`
}

// Connection names a driver and its connection properties. Nested
// key/value config (TLS options, pool sizing, …) lives in Properties.
type Connection struct {
	Name       string            `json:"name"`
	Driver     string            `json:"driver"`
	Properties map[string]string `json:"properties"`
}

// ExecutionPlan is the immutable, content-addressed migration plan the
// kernel consumes. Definitions hold named constants referenceable from
// computed-field expressions.
type ExecutionPlan struct {
	Definitions map[string]string `json:"definitions"`
	Connections []Connection      `json:"connections"`
	Pipelines   []Pipeline        `json:"pipelines"`
}

// ParsePlan decodes the on-disk JSON form of an ExecutionPlan.
func ParsePlan(data []byte) (*ExecutionPlan, error) {
	var p ExecutionPlan
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse execution plan: %w", err)
	}
	return &p, nil
}

// Connection looks up a named connection.
func (p *ExecutionPlan) Connection(name string) (Connection, bool) {
	for _, c := range p.Connections {
		if c.Name == name {
			return c, true
		}
	}
	return Connection{}, false
}

// Hash returns the plan's canonical SHA-256 digest. The plan is
// re-serialized to a stable JSON form (sorted map keys, via
// encoding/json's default map marshaling, which already sorts string map
// keys) so re-running an unmodified plan always yields the same digest.
func (p *ExecutionPlan) Hash() ([32]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return [32]byte{}, fmt.Errorf("hash execution plan: %w", err)
	}
	return sha256.Sum256(data), nil
}

// RunID derives the deterministic run_id from a plan hash: re-running the
// same plan resumes the same run (spec.md §3).
func RunID(hash [32]byte) string {
	return "run-" + hex.EncodeToString(hash[:])[:16]
}

// ItemID derives a per-pipeline item id from the plan hash, the
// pipeline's index, and its destination connection name, using a
// BLAKE2b-256 digest in place of the source implementation's BLAKE3 (no
// BLAKE3 library is available in this project's dependency pack; BLAKE2b
// is the nearest pack-adjacent hash family — see DESIGN.md).
func ItemID(planHash [32]byte, idx int, destConnName string) string {
	h, _ := blake2b.New256(nil)
	h.Write(planHash[:])
	h.Write([]byte(":"))
	fmt.Fprintf(h, "%d", idx)
	h.Write([]byte(":"))
	h.Write([]byte(destConnName))
	sum := h.Sum(nil)
	return "itm-" + hex.EncodeToString(sum)[:16]
}
