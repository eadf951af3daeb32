package report

import (
	"strings"
	"testing"

	"github.com/stanstork/stratum/internal/plan"
	"github.com/stanstork/stratum/internal/schema"
	"github.com/stanstork/stratum/internal/transform"
	"github.com/stanstork/stratum/internal/value"
)

func samplePipeline() *plan.Pipeline {
	return &plan.Pipeline{
		Name:        "customers",
		Source:      plan.Endpoint{Connection: "src", Table: "customers"},
		Destination: plan.Endpoint{Connection: "dst", Table: "customers"},
		Mapping:     plan.NewEntityMapping(),
	}
}

func TestBuild_NoSchemaNoSample(t *testing.T) {
	r := Build("run-abc", "cfg-hash", "1.0.0", samplePipeline(), nil, nil, nil)

	if r.RunID != "run-abc" || r.ConfigHash != "cfg-hash" || r.EngineVersion != "1.0.0" {
		t.Fatalf("identifying fields not set: %+v", r)
	}
	if r.Summary.Status != "ok" {
		t.Errorf("Summary.Status = %q, want ok", r.Summary.Status)
	}
	if r.Summary.Source != "customers" || r.Summary.Destination != "customers" {
		t.Errorf("Summary source/destination = %q/%q", r.Summary.Source, r.Summary.Destination)
	}
	if len(r.Schema.Actions) != 0 || len(r.GeneratedSQL.Statements) != 0 {
		t.Error("expected empty schema/generated_sql when schemaPlan is nil")
	}
}

func TestBuild_WithSchemaPlan(t *testing.T) {
	p := schema.New(schema.DialectPostgres)
	p.AddTableDef(schema.TableDef{Name: "customers", Columns: []schema.ColumnDef{
		{Name: "id", Type: value.Of(value.Int), IsPrimary: true},
	}})

	r := Build("run-abc", "cfg-hash", "1.0.0", samplePipeline(), p, nil, nil)

	if len(r.Schema.Actions) != 1 || r.Schema.Actions[0].Kind != "table" {
		t.Fatalf("expected one table action, got %+v", r.Schema.Actions)
	}
	if len(r.GeneratedSQL.Statements) == 0 {
		t.Fatal("expected rendered DDL statements")
	}
	if r.GeneratedSQL.Statements[0].Dialect != "postgres" {
		t.Errorf("Dialect = %q, want postgres", r.GeneratedSQL.Statements[0].Dialect)
	}
}

func TestBuild_WithTransformSample(t *testing.T) {
	row := value.RowData{Entity: "customers", FieldValues: []value.FieldValue{
		value.NewField("id", value.Int64(1), value.Of(value.Int)),
	}}
	result := &transform.Result{
		Rows: []value.RowData{row},
		Failed: []transform.FailedRow{
			{Row: row, Error: errString("bad row")},
		},
	}

	r := Build("run-abc", "cfg-hash", "1.0.0", samplePipeline(), nil, result, nil)

	if r.Summary.RecordsSampled != 2 {
		t.Errorf("RecordsSampled = %d, want 2", r.Summary.RecordsSampled)
	}
	if r.Transform.OK != 1 || r.Transform.Failed != 1 {
		t.Errorf("Transform = %+v, want OK=1 Failed=1", r.Transform)
	}
	if len(r.Transform.Sample) != 2 {
		t.Fatalf("expected 2 sample rows, got %d", len(r.Transform.Sample))
	}
}

func TestBuild_FatalTransformMarksFailed(t *testing.T) {
	result := &transform.Result{Fatal: errString("validation-fatal rule tripped")}

	r := Build("run-abc", "cfg-hash", "1.0.0", samplePipeline(), nil, result, nil)

	if r.Summary.Status != "failed" {
		t.Errorf("Summary.Status = %q, want failed", r.Summary.Status)
	}
	if len(r.Summary.Errors) != 1 {
		t.Fatalf("expected one summary error, got %d", len(r.Summary.Errors))
	}
}

func TestBuild_SchemaValidationErrorMarksFailed(t *testing.T) {
	findings := []Finding{{Code: "schema.missing_pk", Message: "no primary key", Severity: SeverityError, Kind: "schema"}}

	r := Build("run-abc", "cfg-hash", "1.0.0", samplePipeline(), nil, nil, findings)

	if r.Summary.Status != "failed" {
		t.Errorf("Summary.Status = %q, want failed", r.Summary.Status)
	}
	if len(r.SchemaValidation) != 1 {
		t.Fatalf("expected schema_validation to carry the finding")
	}
}

func TestMarshalIndent(t *testing.T) {
	r := Build("run-abc", "cfg-hash", "1.0.0", samplePipeline(), nil, nil, nil)
	data, err := MarshalIndent(r)
	if err != nil {
		t.Fatalf("MarshalIndent failed: %v", err)
	}
	if !strings.Contains(string(data), `"run_id": "run-abc"`) {
		t.Errorf("expected run_id in output, got:\n%s", data)
	}
	if !strings.Contains(string(data), `"engine_version": "1.0.0"`) {
		t.Errorf("expected engine_version in output, got:\n%s", data)
	}
}

type errString string

func (e errString) Error() string { return string(e) }
