package codegen

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-contentpack/internal/schema"
)

// Dialect selects SQL flavour differences.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// SQLType maps a column kind onto its storage type.
func SQLType(kind schema.Kind) string {
	switch kind {
	case schema.KindInteger, schema.KindBoolean:
		return "INTEGER"
	case schema.KindReal:
		return "REAL"
	default:
		return "TEXT"
	}
}

// SQL renders the DDL for every table of c, parents before children.
func SQL(c *schema.Collection, dialect Dialect) string {
	return strings.Join(Statements(c, dialect), "\n\n") + "\n"
}

// Statements returns the DDL statements for c in execution order.
func Statements(c *schema.Collection, dialect Dialect) []string {
	var out []string
	for _, t := range c.Tables {
		out = append(out, createTable(c, t))
		out = append(out, createIndexes(t, dialect)...)
	}
	return out
}

func createTable(c *schema.Collection, t *schema.Table) string {
	var lines []string
	for _, col := range t.Columns() {
		line := fmt.Sprintf("  %s %s", col.Name, SQLType(col.Kind))
		if col.NonNull {
			line += " NOT NULL"
		}
		lines = append(lines, line)
	}
	lines = append(lines, fmt.Sprintf("  PRIMARY KEY (%s)", strings.Join(t.PrimaryKey(), ", ")))
	if parent := c.Parent(t); parent != nil {
		lines = append(lines, fmt.Sprintf("  FOREIGN KEY (%s) REFERENCES %s (%s) ON DELETE CASCADE",
			strings.Join(t.InheritIDs, ", "), parent.Name, strings.Join(parent.PrimaryKey(), ", ")))
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n%s\n);", t.Name, strings.Join(lines, ",\n"))
}

func createIndexes(t *schema.Table, dialect Dialect) []string {
	var out []string
	for _, col := range t.Columns() {
		if !col.Indexed {
			continue
		}
		out = append(out, fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_%s_idx ON %s (%s);",
			t.Name, col.Name, t.Name, indexExpr(col, dialect)))
	}
	return out
}

func indexExpr(col schema.Column, dialect Dialect) string {
	if dialect != DialectSQLite {
		return col.Name
	}
	switch col.Kind {
	case schema.KindDate:
		return "date(" + col.Name + ")"
	case schema.KindDatetime:
		return "datetime(" + col.Name + ")"
	default:
		return col.Name
	}
}
