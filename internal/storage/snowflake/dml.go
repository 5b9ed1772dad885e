package snowflake

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	gddl "target-snowflake/internal/ddl"
	sfddl "target-snowflake/internal/storage/snowflake/ddl"
)

const (
	// maxBindVars bounds the placeholders of one INSERT.
	maxBindVars = 16384
	// maxRowsPerInsert is Snowflake's limit on rows in one VALUES clause.
	maxRowsPerInsert = 16384
)

var quote sfddl.Quoter

// buildInsertSQL renders a multi-row INSERT with one placeholder per value.
func buildInsertSQL(t gddl.Table, columns []string, rows int) string {
	cols := make([]string, len(columns))
	for i, c := range columns {
		cols[i] = quote.Ident(c)
	}
	tuple := "(" + strings.TrimSuffix(strings.Repeat("?,", len(columns)), ",") + ")"

	var sb strings.Builder
	fmt.Fprintf(&sb, "INSERT INTO %s (%s) VALUES ", quote.Table(t), strings.Join(cols, ", "))
	for i := 0; i < rows; i++ {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(tuple)
	}
	return sb.String()
}

// stagingTable returns a session-unique staging table next to t.
func stagingTable(t gddl.Table) gddl.Table {
	id := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return gddl.Table{Schema: t.Schema, Name: "TMP_" + t.Name + "_" + id}
}

func buildCreateStagingSQL(staging, target gddl.Table) string {
	return fmt.Sprintf("CREATE TEMPORARY TABLE %s LIKE %s", quote.Table(staging), quote.Table(target))
}

func buildDropSQL(t gddl.Table) string {
	return "DROP TABLE IF EXISTS " + quote.Table(t)
}

// buildMergeSQL merges staging into target on keys. Matched rows get every
// non-key column updated; new keys are inserted.
func buildMergeSQL(target, staging gddl.Table, columns, keys []string) string {
	isKey := make(map[string]bool, len(keys))
	on := make([]string, len(keys))
	for i, k := range keys {
		isKey[k] = true
		on[i] = fmt.Sprintf("t.%s = s.%s", quote.Ident(k), quote.Ident(k))
	}

	var sets, cols, vals []string
	for _, c := range columns {
		id := quote.Ident(c)
		cols = append(cols, id)
		vals = append(vals, "s."+id)
		if !isKey[c] {
			sets = append(sets, fmt.Sprintf("t.%s = s.%s", id, id))
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "MERGE INTO %s AS t USING %s AS s ON %s",
		quote.Table(target), quote.Table(staging), strings.Join(on, " AND "))
	if len(sets) > 0 {
		fmt.Fprintf(&sb, " WHEN MATCHED THEN UPDATE SET %s", strings.Join(sets, ", "))
	}
	fmt.Fprintf(&sb, " WHEN NOT MATCHED THEN INSERT (%s) VALUES (%s)",
		strings.Join(cols, ", "), strings.Join(vals, ", "))
	return sb.String()
}

// flatArgs lays rows out as one argument list for buildInsertSQL.
func flatArgs(rows [][]any) []any {
	if len(rows) == 0 {
		return nil
	}
	args := make([]any, 0, len(rows)*len(rows[0]))
	for _, r := range rows {
		args = append(args, r...)
	}
	return args
}
