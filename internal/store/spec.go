package store

import "fmt"

// Field types accepted by CacheSpec declarations.
const (
	FieldString   = "string"
	FieldInt      = "int"
	FieldBool     = "bool"
	FieldFloat    = "float"
	FieldDatetime = "datetime"
)

// sqliteTypes maps declared field types to SQLite column types.
var sqliteTypes = map[string]string{
	FieldString:   "TEXT",
	FieldInt:      "INTEGER",
	FieldBool:     "INTEGER",
	FieldFloat:    "REAL",
	FieldDatetime: "TEXT",
}

// FieldSpec declares one cache column. Source names the canonical field the
// value is taken from when it differs from the column name.
type FieldSpec struct {
	Name     string
	Type     string
	Nullable bool
	Source   string
}

// CacheSpec declares the storage shape for one dataset: table name, columns,
// primary key, and indexes. The schema is declared once and used both to
// generate DDL and to validate required fields before every write.
type CacheSpec struct {
	Dataset       string
	Table         string
	PrimaryKey    []string
	Fields        []FieldSpec
	UniqueIndexes [][]string
	Indexes       [][]string
}

// Validate checks internal consistency of the spec.
func (c CacheSpec) Validate() error {
	if c.Dataset == "" || c.Table == "" {
		return fmt.Errorf("cache spec requires dataset and table names")
	}
	if len(c.PrimaryKey) == 0 {
		return fmt.Errorf("cache spec for %s requires a primary key", c.Dataset)
	}
	names := make(map[string]bool, len(c.Fields))
	for _, f := range c.Fields {
		if _, ok := sqliteTypes[f.Type]; !ok {
			return fmt.Errorf("unsupported cache field type %q (field %s)", f.Type, f.Name)
		}
		names[f.Name] = true
	}
	for _, key := range c.PrimaryKey {
		if !names[key] {
			return fmt.Errorf("primary key field %q is missing in cache spec for %s", key, c.Dataset)
		}
	}
	return nil
}

// fieldMap maps both column names and source names to column names, for
// filter validation in Find.
func (c CacheSpec) fieldMap() map[string]string {
	m := make(map[string]string, len(c.Fields))
	for _, f := range c.Fields {
		m[f.Name] = f.Name
		if f.Source != "" {
			m[f.Source] = f.Name
		}
	}
	return m
}

// hasField reports whether the spec declares a column with the given name.
func (c CacheSpec) hasField(name string) bool {
	for _, f := range c.Fields {
		if f.Name == name {
			return true
		}
	}
	return false
}
