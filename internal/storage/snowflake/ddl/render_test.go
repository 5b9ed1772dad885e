package ddl

import (
	"reflect"
	"strings"
	"testing"

	gddl "target-snowflake/internal/ddl"
	"target-snowflake/internal/typemap"
)

var users = gddl.Table{Schema: "analytics", Name: "USERS"}

func TestQuoter(t *testing.T) {
	t.Parallel()

	var q Quoter
	tests := []struct{ in, want string }{
		{"first_name", `"FIRST_NAME"`},
		{`we"ird`, `"WE""IRD"`},
		{"__loaded_at", `"__LOADED_AT"`},
	}
	for _, tt := range tests {
		if got := q.Ident(tt.in); got != tt.want {
			t.Errorf("Ident(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
	if got := q.Table(users); got != `"ANALYTICS"."USERS"` {
		t.Errorf("Table = %s", got)
	}
}

func TestRender_CreateTable(t *testing.T) {
	t.Parallel()

	a := gddl.Action{Kind: gddl.CreateTable, Def: gddl.TableDef{Table: users, Columns: []gddl.ColumnDef{
		{Name: "id", Type: typemap.Number(38, 0), PrimaryKey: true},
		{Name: "city", Type: typemap.Text(typemap.MaxVarcharLength), Nullable: true},
	}}}

	got, err := Render(a, "reporter")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		`CREATE SCHEMA IF NOT EXISTS "ANALYTICS"`,
		"CREATE TABLE IF NOT EXISTS \"ANALYTICS\".\"USERS\" (\n  \"ID\" NUMBER(38,0) NOT NULL,\n  \"CITY\" VARCHAR(16777216),\n  PRIMARY KEY (\"ID\")\n)",
		`GRANT USAGE ON SCHEMA "ANALYTICS" TO ROLE "REPORTER"`,
		`GRANT SELECT ON ALL TABLES IN SCHEMA "ANALYTICS" TO ROLE "REPORTER"`,
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Render =\n%s\nwant\n%s", strings.Join(got, "\n"), strings.Join(want, "\n"))
	}

	noRole, err := Render(a, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(noRole) != 2 {
		t.Fatalf("without a role only schema and table are created, got %v", noRole)
	}
}

func TestRender_AddAndAlter(t *testing.T) {
	t.Parallel()

	add, err := Render(gddl.Action{Kind: gddl.AddColumn, Def: gddl.TableDef{Table: users},
		Column: gddl.ColumnDef{Name: "email", Type: typemap.Text(40), Nullable: true}}, "")
	if err != nil {
		t.Fatal(err)
	}
	if want := `ALTER TABLE "ANALYTICS"."USERS" ADD COLUMN "EMAIL" VARCHAR(40)`; len(add) != 1 || add[0] != want {
		t.Fatalf("add = %v, want %s", add, want)
	}

	alter, err := Render(gddl.Action{Kind: gddl.AlterColumnType, Def: gddl.TableDef{Table: users},
		Column: gddl.ColumnDef{Name: "email", Type: typemap.Text(80)}, From: typemap.Text(40)}, "")
	if err != nil {
		t.Fatal(err)
	}
	if want := `ALTER TABLE "ANALYTICS"."USERS" ALTER COLUMN "EMAIL" SET DATA TYPE VARCHAR(80)`; len(alter) != 1 || alter[0] != want {
		t.Fatalf("alter = %v, want %s", alter, want)
	}
}

func TestRender_Invalid(t *testing.T) {
	t.Parallel()

	if _, err := Render(gddl.Action{Kind: gddl.ActionKind(99)}, ""); err == nil {
		t.Fatal("want error for unknown action")
	}
	if _, err := Render(gddl.Action{Kind: gddl.CreateTable, Def: gddl.TableDef{Table: users}}, ""); err == nil {
		t.Fatal("want error for a table without columns")
	}
}
