package bqetl

import (
	"cloud.google.com/go/bigquery"

	ijson "go.nownabe.dev/bqetl/internal/json"
)

// ProjectedRecord is a record reduced to allow-listed fields whose values
// are either null or text.
type ProjectedRecord map[string]bigquery.NullString

var _ bigquery.ValueSaver = ProjectedRecord(nil)

// Save implements bigquery.ValueSaver. The insert ID is left empty so the
// client generates one per attempt.
func (r ProjectedRecord) Save() (map[string]bigquery.Value, string, error) {
	row := make(map[string]bigquery.Value, len(r))
	for k, v := range r {
		if v.Valid {
			row[k] = v.StringVal
		} else {
			row[k] = nil
		}
	}
	return row, "", nil
}

// Fields returns the record as plain values, nil for null.
func (r ProjectedRecord) Fields() map[string]any {
	m := make(map[string]any, len(r))
	for k, v := range r {
		if v.Valid {
			m[k] = v.StringVal
		} else {
			m[k] = nil
		}
	}
	return m
}

// String renders the record as JSON with sorted keys.
func (r ProjectedRecord) String() string {
	b, err := ijson.Marshal(r.Fields())
	if err != nil {
		return "{}"
	}
	return string(b)
}

// AllowList is a fixed set of field names kept by the transformer.
type AllowList map[string]struct{}

// NewAllowList builds an AllowList from field names.
func NewAllowList(fields ...string) AllowList {
	a := make(AllowList, len(fields))
	for _, f := range fields {
		a[f] = struct{}{}
	}
	return a
}

// Has reports whether field is allowed.
func (a AllowList) Has(field string) bool {
	_, ok := a[field]
	return ok
}

// Project projects every record onto allow. The result has the same length
// and order as records.
func Project(records []RawRecord, allow AllowList) []ProjectedRecord {
	out := make([]ProjectedRecord, len(records))
	for i, r := range records {
		out[i] = ProjectRecord(r, allow)
	}
	return out
}

// ProjectRecord keeps the fields of r present in allow and converts their
// values to text. Allowed fields missing from r are omitted.
func ProjectRecord(r RawRecord, allow AllowList) ProjectedRecord {
	p := make(ProjectedRecord, len(allow))
	for k, v := range r {
		if !allow.Has(k) {
			continue
		}
		s, ok := v.Text()
		p[k] = bigquery.NullString{StringVal: s, Valid: ok}
	}
	return p
}
