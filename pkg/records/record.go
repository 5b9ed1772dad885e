package records

// Record is one flattened row: column name to scalar value. Values are nil,
// bool, int64, float64, string or time.Time. Column order is owned by the
// stream's Schema, not by the Record.
type Record map[string]any

// Clone returns a shallow copy of r.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Row projects r onto columns, filling missing columns with nil.
func (r Record) Row(columns []string) []any {
	row := make([]any, len(columns))
	for i, c := range columns {
		row[i] = r[c]
	}
	return row
}
