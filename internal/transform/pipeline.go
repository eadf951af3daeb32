package transform

import (
	"fmt"

	"github.com/stanstork/stratum/internal/kernelerr"
	"github.com/stanstork/stratum/internal/plan"
	"github.com/stanstork/stratum/internal/value"
)

// FailedRow is one row that failed a pipeline step, routed to the DLQ
// (spec.md §4.5).
type FailedRow struct {
	Row   value.RowData
	Error error
}

// Result is the outcome of running the pipeline over one batch: rows
// that survived every step, rows routed to the DLQ, and a non-nil Fatal
// if any row hit a validation-fatal rule (spec.md §4.5 "a batch
// producing even one validation-fatal row aborts the migration").
type Result struct {
	Rows   []value.RowData
	Failed []FailedRow
	Fatal  error
}

// rowLookup adapts one RowData (plus a related-row resolver) to the
// Lookup interface computed-field expressions evaluate against.
type rowLookup struct {
	row     value.RowData
	related func(path []string) (value.FieldValue, bool)
}

func (l rowLookup) Field(name string) (value.FieldValue, bool) { return l.row.Get(name) }
func (l rowLookup) Related(path []string) (value.FieldValue, bool) {
	if l.related == nil {
		return value.FieldValue{}, false
	}
	return l.related(path)
}

// RelatedResolver looks up a cross-entity field for computed-field
// DotPath expressions (e.g. "customer.name"), given the current row.
// Producers that don't join related entities may pass nil.
type RelatedResolver func(row value.RowData, path []string) (value.FieldValue, bool)

// ValidationAction mirrors plan.ValidationAction for readability within
// this package.
type ValidationAction = plan.ValidationAction

// Pipeline runs the ordered transformation steps from spec.md §4.5 over
// one batch of rows, given the compiled mapping and validation rules
// from the pipeline's ExecutionPlan entry.
type Pipeline struct {
	Mapping     *plan.EntityMapping
	Validations []plan.ValidationRule
	CopyColumns plan.CopyColumnsPolicy
	Related     RelatedResolver

	// compiledValidations and compiledComputed are not populated: Run
	// parses every expression through its parse argument for each row.
	compiledValidations []Expr
	compiledComputed    map[string][]compiledComputedField
}

type compiledComputedField struct {
	name string
	expr Expr
}

// Run applies every step to each row in entity-rename -> field-rename ->
// computed-fields -> column-pruning -> validation order, splitting the
// batch into survivors and DLQ-routed failures. A single validation-
// fatal row sets Result.Fatal and stops processing the remaining rows
// in the batch (spec.md §4.5).
func (p *Pipeline) Run(rows []value.RowData, parse func(expr string) (Expr, error)) Result {
	var res Result
	for _, row := range rows {
		out, failure, fatal := p.runOne(row, parse)
		if fatal != nil {
			res.Fatal = fatal
			return res
		}
		if failure != nil {
			res.Failed = append(res.Failed, *failure)
			continue
		}
		res.Rows = append(res.Rows, out)
	}
	return res
}

func (p *Pipeline) runOne(row value.RowData, parse func(string) (Expr, error)) (value.RowData, *FailedRow, error) {
	// 1. Entity rename.
	row = row.WithEntity(p.Mapping.ResolveEntity(row.Entity))

	// 2. Field rename.
	renamed := value.RowData{Entity: row.Entity}
	for _, fv := range row.FieldValues {
		fv.Name = p.Mapping.Resolve(row.Entity, fv.Name)
		renamed.FieldValues = append(renamed.FieldValues, fv)
	}
	row = renamed

	// 3. Computed-field evaluation.
	for _, cf := range p.Mapping.ComputedFields(row.Entity) {
		expr, err := parse(cf.Expression)
		if err != nil {
			return value.RowData{}, &FailedRow{Row: row, Error: kernelerr.Transform(kernelerr.TransformDataTransform, row.Entity, err)}, nil
		}
		lookup := rowLookup{row: row, related: func(path []string) (value.FieldValue, bool) {
			if p.Related == nil {
				return value.FieldValue{}, false
			}
			return p.Related(row, path)
		}}
		v, err := Eval(expr, lookup)
		if err != nil {
			return value.RowData{}, &FailedRow{Row: row, Error: kernelerr.Transform(kernelerr.TransformDataTransform, row.Entity, err)}, nil
		}
		row = row.With(value.NewField(cf.Name, v, value.Of(value.Unknown)))
	}

	// 4. Column pruning (copy_columns = MapOnly).
	if p.CopyColumns == plan.CopyColumnsMapOnly {
		target := p.Mapping.TargetFieldNames(row.Entity)
		pruned := value.RowData{Entity: row.Entity}
		for _, fv := range row.FieldValues {
			if target[fv.Name] {
				pruned.FieldValues = append(pruned.FieldValues, fv)
			}
		}
		row = pruned
	}

	// 5. Validation rules.
	for _, rule := range p.Validations {
		expr, err := parse(rule.Expression)
		if err != nil {
			return value.RowData{}, nil, kernelerr.Transform(kernelerr.TransformValidationFatal, row.Entity, err)
		}
		v, err := Eval(expr, rowLookup{row: row})
		if err != nil {
			return value.RowData{}, nil, kernelerr.Transform(kernelerr.TransformValidationFatal, row.Entity, err)
		}
		ok, _ := v.AsBool()
		if ok {
			continue
		}
		switch rule.Action {
		case plan.ActionSkip:
			return value.RowData{}, &FailedRow{Row: row, Error: validationErr(rule)}, nil
		case plan.ActionWarn, plan.ActionContinue:
			continue
		case plan.ActionFail:
			return value.RowData{}, nil, kernelerr.Transform(kernelerr.TransformValidationFatal, row.Entity, validationErr(rule))
		}
	}

	return row, nil, nil
}

func validationErr(rule plan.ValidationRule) error {
	if rule.Message != "" {
		return fmt.Errorf("validation %q failed: %s", rule.Name, rule.Message)
	}
	return fmt.Errorf("validation %q failed", rule.Name)
}
