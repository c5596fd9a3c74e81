package converters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/richinex/transmute/converter"
	"github.com/richinex/transmute/evaluation"
	"github.com/richinex/transmute/internal/textenc"
	"github.com/richinex/transmute/model"
)

// CSV→JSON issue codes.
const (
	CodeRowCountMismatch = "ROW_COUNT_MISMATCH"
	CodeMixedColumnTypes = "MIXED_COLUMN_TYPES"
)

// maxSafeInteger is the largest integer a JSON reader can hold exactly in a double.
const maxSafeInteger = 1<<53 - 1

var (
	integerPattern = regexp.MustCompile(`^-?\d+$`)
	decimalPattern = regexp.MustCompile(`^-?\d+\.\d+$`)
)

// CSVJSON converts delimited text into a JSON array of records.
func CSVJSON(kit Kit) converter.Spec {
	return converter.Spec{
		Descriptor: model.NewDescriptor(model.DescriptorSpec{
			ID:          "csv-to-json",
			Name:        "CSV to JSON",
			Description: "Parses CSV into JSON records with optional type inference",
			Category:    "spreadsheet",
			From:        []string{"csv", "tsv", "txt"},
			To:          []string{"json"},
			Strategies: []model.Strategy{
				{ID: "auto-type", Description: "Infer null, boolean, integer and decimal values", When: "columns hold typed data",
					Engine: "rfc4180", Mode: model.ModeSymbolic, Speed: model.SpeedFast, Quality: model.QualityHigh},
				{ID: "string-only", Description: "Keep every value as a string", When: "identifiers with leading zeros or mixed columns",
					Engine: "rfc4180", Mode: model.ModeSymbolic, Speed: model.SpeedFast, Quality: model.QualityMedium},
				{ID: "nested", Description: "Group records under the value of the first column", When: "the first column is a grouping key",
					Engine: "rfc4180", Mode: model.ModeSymbolic, Speed: model.SpeedFast, Quality: model.QualityMedium},
			},
		}),
		Execute: func(_ context.Context, _ *converter.Workspace, input model.Artifact, strategy string, opts converter.Options) (model.ExecuteResult, error) {
			return convertCSV(input, strategy, opts)
		},
		Checks: csvChecks,
		Describe: func(input model.Artifact, _ map[string]any) string {
			table, _, err := readTable(input, "")
			if err != nil {
				return fmt.Sprintf("csv input, %d bytes", input.Size())
			}
			return fmt.Sprintf("csv with %d columns and %d data rows; header: %s",
				len(table.header), len(table.rows), strings.Join(table.header, ", "))
		},
	}
}

type csvTable struct {
	header []string
	rows   [][]string
}

func readTable(input model.Artifact, delimiter string) (csvTable, string, error) {
	data, err := input.Bytes()
	if err != nil {
		return csvTable{}, "", converter.InvalidInput("read csv: %v", err)
	}
	text, encoding, err := textenc.ToUTF8(data, "text/csv")
	if err != nil {
		return csvTable{}, "", converter.InvalidInput("decode csv: %v", err)
	}
	delim := SniffDelimiter(string(text))
	if input.Format == "tsv" {
		delim = '\t'
	}
	if r, size := utf8.DecodeRuneInString(delimiter); size > 0 && size == len(delimiter) {
		delim = r
	}
	rows := ParseCSV(string(text), delim)
	if len(rows) == 0 {
		return csvTable{}, encoding, nil
	}
	return csvTable{header: dedupeHeaders(rows[0]), rows: rows[1:]}, encoding, nil
}

func convertCSV(input model.Artifact, strategy string, opts converter.Options) (model.ExecuteResult, error) {
	table, encoding, err := readTable(input, opts.String("delimiter", ""))
	if err != nil {
		return model.ExecuteResult{}, err
	}

	var doc any
	switch strategy {
	case "auto-type":
		doc = records(table, true)
	case "string-only":
		doc = records(table, false)
	case "nested":
		doc = nestRecords(table)
	default:
		return model.ExecuteResult{}, converter.InvalidInput("unknown csv strategy %q", strategy)
	}

	var out []byte
	if opts.Bool("pretty", true) {
		out, err = json.MarshalIndent(doc, "", "  ")
	} else {
		out, err = json.Marshal(doc)
	}
	if err != nil {
		return model.ExecuteResult{}, converter.Crash(CodeInvalidOutput, err)
	}
	return model.ExecuteResult{
		Output: model.BytesArtifact(out, opts.Target),
		Metadata: map[string]any{
			"columns":  len(table.header),
			"rows":     len(table.rows),
			"encoding": encoding,
		},
	}, nil
}

func records(table csvTable, infer bool) []*object {
	out := make([]*object, 0, len(table.rows))
	for _, row := range table.rows {
		out = append(out, record(table.header, row, infer))
	}
	return out
}

func record(header, row []string, infer bool) *object {
	obj := &object{}
	for i, key := range header {
		var v any
		if i < len(row) {
			if infer {
				v = InferValue(row[i])
			} else {
				v = row[i]
			}
		}
		obj.set(key, v)
	}
	return obj
}

// nestRecords groups typed records by the first column, in first-seen order.
func nestRecords(table csvTable) *object {
	groups := &object{}
	if len(table.header) == 0 {
		return groups
	}
	for _, row := range table.rows {
		key := ""
		if len(row) > 0 {
			key = row[0]
		}
		rest := record(table.header[1:], tail(row), true)
		if existing, ok := groups.get(key); ok {
			groups.set(key, append(existing.([]*object), rest))
			continue
		}
		groups.set(key, []*object{rest})
	}
	return groups
}

func tail(row []string) []string {
	if len(row) == 0 {
		return nil
	}
	return row[1:]
}

// InferValue types a CSV field: empty, null and none become nil; true and
// false are booleans; safe integers and plain decimals are numbers.
func InferValue(s string) any {
	switch strings.ToLower(s) {
	case "":
		return nil
	case "true":
		return true
	case "false":
		return false
	case "null", "none":
		return nil
	}
	if integerPattern.MatchString(s) {
		if n, err := strconv.ParseInt(s, 10, 64); err == nil && n <= maxSafeInteger && n >= -maxSafeInteger {
			return n
		}
		return s
	}
	if decimalPattern.MatchString(s) {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	return s
}

// dedupeHeaders names blank columns and suffixes repeated names.
func dedupeHeaders(header []string) []string {
	seen := make(map[string]int, len(header))
	out := make([]string, len(header))
	for i, h := range header {
		if h == "" {
			h = fmt.Sprintf("column_%d", i+1)
		}
		seen[h]++
		if n := seen[h]; n > 1 {
			h = fmt.Sprintf("%s_%d", h, n)
		}
		out[i] = h
	}
	return out
}

// object is a JSON object that keeps insertion order.
type object struct {
	keys   []string
	values map[string]any
}

func (o *object) set(key string, v any) {
	if o.values == nil {
		o.values = make(map[string]any)
	}
	if _, ok := o.values[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.values[key] = v
}

func (o *object) get(key string) (any, bool) {
	v, ok := o.values[key]
	return v, ok
}

func (o *object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range o.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(o.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func csvChecks(input, output model.Artifact, strategy string) []model.Issue {
	issues, ok := evaluation.CheckNonEmpty(output, 0)
	if !ok {
		return issues
	}
	data, err := output.Bytes()
	if err != nil || !json.Valid(data) {
		return append(issues, evaluation.Error(CodeInvalidOutput, "output is not valid JSON", true))
	}
	if strategy == "nested" {
		return issues
	}

	var rows []map[string]any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&rows); err != nil {
		return append(issues, evaluation.Error(CodeInvalidOutput, "output is not a JSON array of records", true))
	}
	if table, _, err := readTable(input, ""); err == nil && len(table.rows) != len(rows) {
		issues = append(issues, evaluation.Warning(CodeRowCountMismatch,
			fmt.Sprintf("input has %d data rows, output has %d records", len(table.rows), len(rows)), true))
	}
	if strategy == "auto-type" {
		if col := mixedColumn(rows); col != "" {
			issues = append(issues, evaluation.Suggest(evaluation.Warning(CodeMixedColumnTypes,
				fmt.Sprintf("column %q mixes value types", col), true), "string-only"))
		}
	}
	return issues
}

// mixedColumn returns the first column, by name, whose non-null values
// have different JSON types, or "" when every column is consistent.
func mixedColumn(rows []map[string]any) string {
	kinds := make(map[string]string)
	var mixed []string
	for _, row := range rows {
		for k, v := range row {
			if v == nil {
				continue
			}
			kind := fmt.Sprintf("%T", v)
			prev, ok := kinds[k]
			switch {
			case !ok:
				kinds[k] = kind
			case prev != kind && !slices.Contains(mixed, k):
				mixed = append(mixed, k)
			}
		}
	}
	if len(mixed) == 0 {
		return ""
	}
	slices.Sort(mixed)
	return mixed[0]
}
