// Package report builds the stable JSON dry-run report the validate
// command prints (spec.md §6): a snapshot of what a migration plan
// would do without writing anything, covering mapping, the rendered
// schema DDL, and a sample of rows pushed through the transformation
// pipeline.
//
// Grounded on the teacher's internal/rpc server_spec.go response shapes
// (a struct tree marshaled straight to JSON for a CLI/HTTP consumer) and
// schema.Plan's own SqlStatement/SchemaAction types, which this package
// reshapes into the report's stable field names rather than exposing the
// planner's internal types directly.
package report

import (
	"encoding/json"
	"time"

	"github.com/stanstork/stratum/internal/plan"
	"github.com/stanstork/stratum/internal/schema"
	"github.com/stanstork/stratum/internal/transform"
	"github.com/stanstork/stratum/internal/value"
)

// Severity mirrors spec.md §6's Finding.severity enum.
type Severity string

const (
	SeverityInfo    Severity = "Info"
	SeverityWarning Severity = "Warning"
	SeverityError   Severity = "Error"
)

// Finding is one diagnostic surfaced by validation or schema planning.
type Finding struct {
	Code       string   `json:"code"`
	Message    string   `json:"message"`
	Severity   Severity `json:"severity"`
	Kind       string   `json:"kind"`
	Suggestion string   `json:"suggestion,omitempty"`
}

// Summary is the report's top-level status block.
type Summary struct {
	Status         string    `json:"status"`
	Timestamp      time.Time `json:"timestamp"`
	Source         string    `json:"source"`
	Destination    string    `json:"destination"`
	RecordsSampled int       `json:"records_sampled"`
	Errors         []Finding `json:"errors"`
}

// SchemaSection lists the planned schema actions, independent of their
// rendered SQL text.
type SchemaSection struct {
	Actions []SchemaActionView `json:"actions"`
}

type SchemaActionView struct {
	Kind   string `json:"kind"`
	Target string `json:"target"`
}

// GeneratedSQL carries the planner's rendered DDL statements.
type GeneratedSQL struct {
	Statements []SqlStatementView `json:"statements"`
}

type SqlStatementView struct {
	Dialect string `json:"dialect"`
	Kind    string `json:"kind"`
	SQL     string `json:"sql"`
	Params  []any  `json:"params,omitempty"`
}

// TransformSample is one sampled row from running the transformation
// pipeline over a sample batch: the output of a row that passed, or the
// input and error of a row that failed.
type TransformSample struct {
	Input  map[string]string `json:"input"`
	Output map[string]string `json:"output,omitempty"`
	Error  string            `json:"error,omitempty"`
}

// TransformSection summarizes a sampled run of the transformation
// pipeline: how many rows would survive, how many would be routed to the
// DLQ, and a bounded sample of both for human inspection.
type TransformSection struct {
	OK     int               `json:"ok"`
	Failed int               `json:"failed"`
	Sample []TransformSample `json:"sample"`
}

// Report is the stable JSON shape from spec.md §6.
type Report struct {
	RunID            string            `json:"run_id"`
	EngineVersion    string            `json:"engine_version"`
	ConfigHash       string            `json:"config_hash"`
	Summary          Summary           `json:"summary"`
	Mapping          *plan.EntityMapping `json:"mapping,omitempty"`
	Schema           SchemaSection     `json:"schema"`
	GeneratedSQL     GeneratedSQL      `json:"generated_sql"`
	Transform        TransformSection  `json:"transform"`
	SchemaValidation []Finding         `json:"schema_validation"`
}

// maxSampleRows bounds how many transform samples the report embeds;
// every sampled row still counts toward OK/Failed, only the rendering is
// capped.
const maxSampleRows = 20

// Build assembles a Report for one pipeline. schemaPlan and sampled may
// be nil when the corresponding stage didn't run (e.g. a source-only
// `source info` preview); runID/configHash/engineVersion identify the
// plan and binary that produced the report.
func Build(runID, configHash, engineVersion string, pl *plan.Pipeline, schemaPlan *schema.Plan, sampled *transform.Result, schemaValidation []Finding) *Report {
	r := &Report{
		RunID:         runID,
		EngineVersion: engineVersion,
		ConfigHash:    configHash,
		Summary: Summary{
			Status:      "ok",
			Timestamp:   time.Now().UTC(),
			Source:      pl.Source.Table,
			Destination: pl.Destination.Table,
		},
		Mapping:          pl.Mapping,
		SchemaValidation: schemaValidation,
	}
	for _, f := range schemaValidation {
		if f.Severity == SeverityError {
			r.Summary.Status = "failed"
		}
	}

	if schemaPlan != nil {
		for _, a := range schemaPlan.Actions() {
			r.Schema.Actions = append(r.Schema.Actions, SchemaActionView{Kind: a.Kind, Target: a.Target})
		}
		for _, s := range schemaPlan.Statements() {
			r.GeneratedSQL.Statements = append(r.GeneratedSQL.Statements, SqlStatementView{
				Dialect: string(s.Dialect), Kind: s.Kind, SQL: s.SQL, Params: s.Params,
			})
		}
	}

	if sampled != nil {
		r.Summary.RecordsSampled = len(sampled.Rows) + len(sampled.Failed)
		r.Transform.OK = len(sampled.Rows)
		r.Transform.Failed = len(sampled.Failed)
		r.Transform.Sample = buildSample(sampled)
		if sampled.Fatal != nil {
			r.Summary.Status = "failed"
			r.Summary.Errors = append(r.Summary.Errors, Finding{
				Code: "transform.fatal", Message: sampled.Fatal.Error(),
				Severity: SeverityError, Kind: "validation",
			})
		}
	}

	return r
}

func buildSample(sampled *transform.Result) []TransformSample {
	var out []TransformSample
	for _, row := range sampled.Rows {
		if len(out) >= maxSampleRows {
			break
		}
		out = append(out, TransformSample{Output: rowToMap(row)})
	}
	for _, fr := range sampled.Failed {
		if len(out) >= maxSampleRows {
			break
		}
		out = append(out, TransformSample{Input: rowToMap(fr.Row), Error: fr.Error.Error()})
	}
	return out
}

func rowToMap(row value.RowData) map[string]string {
	m := make(map[string]string, len(row.FieldValues))
	for _, fv := range row.FieldValues {
		if fv.IsNull() {
			m[fv.Name] = "NULL"
			continue
		}
		m[fv.Name] = fv.Value.Text()
	}
	return m
}

// MarshalIndent renders the report as pretty-printed JSON for `validate
// --output <file>` and stdout fallback.
func MarshalIndent(r *Report) ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}
