// Package schema describes the shape of records flowing into a MemTable: the
// column set and which column is the primary key. A schema is immutable once
// constructed; the MemTable keeps a reference for the whole buffer lifetime so
// every record in one segment was serialized under the same column order.
package schema

import (
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrNoColumns reports a schema with an empty column set.
	ErrNoColumns = errors.New("schema: no columns")
	// ErrPrimaryKeyNotInColumns reports a primary key that is not a column.
	ErrPrimaryKeyNotInColumns = errors.New("schema: primary key is not a column")
	// ErrDuplicateColumn reports a column name listed twice.
	ErrDuplicateColumn = errors.New("schema: duplicate column")
)

// Schema is an immutable column set with a designated primary-key column.
type Schema struct {
	primaryKey    string
	sortedColumns []string
}

// New builds a schema. The column order given by the caller is irrelevant:
// serialization always uses the sorted column order, so two records with
// identical field values produce identical bytes regardless of how their
// producers ordered the fields.
func New(primaryKey string, columns []string) (*Schema, error) {
	if len(columns) == 0 {
		return nil, ErrNoColumns
	}

	sorted := make([]string, len(columns))
	copy(sorted, columns)
	sort.Strings(sorted)

	for i := 1; i < len(sorted); i++ {
		if sorted[i] == sorted[i-1] {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateColumn, sorted[i])
		}
	}

	found := false
	for _, c := range sorted {
		if c == primaryKey {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("%w: %q", ErrPrimaryKeyNotInColumns, primaryKey)
	}

	return &Schema{primaryKey: primaryKey, sortedColumns: sorted}, nil
}

// PrimaryKey returns the name of the primary-key column.
func (s *Schema) PrimaryKey() string { return s.primaryKey }

// SortedColumns returns the column names in sorted order. Callers must not
// mutate the returned slice.
func (s *Schema) SortedColumns() []string { return s.sortedColumns }

// NumColumns returns the column count.
func (s *Schema) NumColumns() int { return len(s.sortedColumns) }

// HasColumn reports whether name is a column of the schema.
func (s *Schema) HasColumn(name string) bool {
	i := sort.SearchStrings(s.sortedColumns, name)
	return i < len(s.sortedColumns) && s.sortedColumns[i] == name
}
