package result

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/skymond-software/mariadb-client/internal/dberrors"
)

// Updater is the narrow back-reference a DbResult needs to propagate
// Update() calls to the database that produced it. Per Design Note ("weak
// back-reference from DbResult to Database"), this is a non-owning handle —
// an interface, not a concrete *Database — so the result package has no
// dependency on the façade package, avoiding an import cycle, and so the
// façade can report "parent closed" through IsLive without the result
// package knowing anything about connections.
type Updater interface {
	IsLive() bool
	UpdateRow(dbName, tableName string, primaryKey []FieldValue, set []FieldValue) error
}

// DbResult is the canonical typed tabular result carrier (§3, §4.6).
//
// Rows[0] always holds the field names as byte-strings; Rows[1:] hold typed
// cells. A DbResult is safe for concurrent read-only access after
// construction but is not safe for concurrent mutation — it is owned by the
// goroutine that created it (§5).
type DbResult struct {
	FieldTypes  []TypeDescriptor
	Rows        [][]any
	NameToIndex map[string]int
	DBName      string
	TableName   string
	Successful  bool
	PrimaryKey  []string // field names forming the primary key, for Update()

	db  Updater
	err error
}

// New builds a DbResult from field names, their types, and the already
// decoded data rows (not including the header). It builds NameToIndex once
// and enforces the §3 invariant that string/byte-string cells are never nil.
func New(dbName, tableName string, fieldNames []string, fieldTypes []TypeDescriptor, rows [][]any) *DbResult {
	nameRow := make([]any, len(fieldNames))
	for i, n := range fieldNames {
		nameRow[i] = []byte(n)
	}

	allRows := make([][]any, 0, len(rows)+1)
	allRows = append(allRows, nameRow)
	for _, row := range rows {
		fixed := make([]any, len(row))
		for i, v := range row {
			if v == nil {
				if zv := fieldTypes[i].zeroValue(); zv != nil {
					fixed[i] = zv
					continue
				}
			}
			fixed[i] = v
		}
		allRows = append(allRows, fixed)
	}

	idx := make(map[string]int, len(fieldNames))
	for i, n := range fieldNames {
		idx[n] = i
	}

	return &DbResult{
		FieldTypes:  fieldTypes,
		Rows:        allRows,
		NameToIndex: idx,
		DBName:      dbName,
		TableName:   tableName,
		Successful:  true,
	}
}

// Failed builds an unsuccessful DbResult carrying the error detail
// retrievable via Err(), per §7's "user-visible failure behavior".
func Failed(err error) *DbResult {
	return &DbResult{Successful: false, err: err}
}

// Err returns the error detail for a failed result, or nil.
func (r *DbResult) Err() error { return r.err }

// SetDatabase installs the non-owning back-reference used by Update.
func (r *DbResult) SetDatabase(db Updater) { r.db = db }

// FieldCount returns the number of columns.
func (r *DbResult) FieldCount() int { return len(r.FieldTypes) }

// RowCount returns the total row count, including the header row.
func (r *DbResult) RowCount() int { return len(r.Rows) }

// RecordCount returns the data row count (RowCount - 1, or 0 if no rows).
func (r *DbResult) RecordCount() int {
	if len(r.Rows) == 0 {
		return 0
	}
	return len(r.Rows) - 1
}

// FieldNames returns the header row's names as strings.
func (r *DbResult) FieldNames() []string {
	if len(r.Rows) == 0 {
		return nil
	}
	out := make([]string, len(r.Rows[0]))
	for i, v := range r.Rows[0] {
		out[i] = string(v.([]byte))
	}
	return out
}

// Get returns the cell at (rowIndex, colIndex), or nil if it does not match
// expectedType. rowIndex is 1-based relative to the first data row (row 0 is
// the header); callers pass the data-row index directly, i.e. 1 for the
// first record, matching §4.6's "(row >= 1, col)" convention.
func (r *DbResult) Get(rowIndex, colIndex int, expectedType TypeDescriptor) any {
	if rowIndex < 1 || rowIndex >= len(r.Rows) {
		return nil
	}
	if colIndex < 0 || colIndex >= len(r.FieldTypes) {
		return nil
	}
	if r.FieldTypes[colIndex] != expectedType {
		return nil
	}
	return r.Rows[rowIndex][colIndex]
}

// GetByName is Get addressed by field name.
func (r *DbResult) GetByName(rowIndex int, fieldName string, expectedType TypeDescriptor) any {
	col, ok := r.NameToIndex[fieldName]
	if !ok {
		return nil
	}
	return r.Get(rowIndex, col, expectedType)
}

// LookupIndex returns the (1-based) row index of the first data row whose
// named columns all equal the given values, or (-1, false).
func (r *DbResult) LookupIndex(criteria []FieldValue) (int, bool) {
	for row := 1; row < len(r.Rows); row++ {
		match := true
		for _, c := range criteria {
			col, ok := r.NameToIndex[c.Name]
			if !ok || !valueEqual(r.Rows[row][col], c.Value) {
				match = false
				break
			}
		}
		if match {
			return row, true
		}
	}
	return -1, false
}

// Set mutates a cell in place. It returns false if colIndex is out of range
// or newValue's dynamic type does not match the column's TypeDescriptor.
func (r *DbResult) Set(rowIndex, colIndex int, newValue any) bool {
	if rowIndex < 1 || rowIndex >= len(r.Rows) || colIndex < 0 || colIndex >= len(r.FieldTypes) {
		return false
	}
	if !r.FieldTypes[colIndex].matches(newValue) {
		return false
	}
	r.Rows[rowIndex][colIndex] = newValue
	return true
}

// Update mutates the given row in place and propagates the change to the
// database via the back-reference, building an UPDATE whose WHERE clause is
// the row's primary-key column(s) (§4.6). It fails with an error if the
// parent database is no longer live — the Go re-expression of "forbid
// result mutation after the parent Database is destroyed".
func (r *DbResult) Update(rowIndex int, fields ...FieldValue) error {
	if r.db == nil || !r.db.IsLive() {
		return dberrors.NewInvalidArgument("result: update: parent database is not live")
	}
	if len(r.PrimaryKey) == 0 {
		return fmt.Errorf("result: update: no primary key known for %s.%s", r.DBName, r.TableName)
	}

	pk := make([]FieldValue, 0, len(r.PrimaryKey))
	for _, name := range r.PrimaryKey {
		col, ok := r.NameToIndex[name]
		if !ok {
			return fmt.Errorf("result: update: primary key field %q not present", name)
		}
		pk = append(pk, FieldValue{Name: name, Value: r.Rows[rowIndex][col]})
	}

	for _, f := range fields {
		col, ok := r.NameToIndex[f.Name]
		if !ok {
			return fmt.Errorf("result: update: unknown field %q", f.Name)
		}
		if !r.Set(rowIndex, col, f.Value) {
			return fmt.Errorf("result: update: value for %q has wrong type", f.Name)
		}
	}

	return r.db.UpdateRow(r.DBName, r.TableName, pk, fields)
}

// Range returns a new DbResult sharing field types and names, with data
// rows restricted to the half-open interval [start, end) (1-based, relative
// to data rows).
func (r *DbResult) Range(start, end int) *DbResult {
	if start < 1 {
		start = 1
	}
	if end > len(r.Rows) {
		end = len(r.Rows)
	}
	out := &DbResult{
		FieldTypes:  r.FieldTypes,
		NameToIndex: r.NameToIndex,
		DBName:      r.DBName,
		TableName:   r.TableName,
		PrimaryKey:  r.PrimaryKey,
		Successful:  true,
		db:          r.db,
	}
	out.Rows = append(out.Rows, r.Rows[0])
	if start < end {
		out.Rows = append(out.Rows, r.Rows[start:end]...)
	}
	return out
}

// AppendRecords inserts other's data rows as new records, assuming schema
// compatibility (§4.6).
func (r *DbResult) AppendRecords(other *DbResult) {
	if other == nil {
		return
	}
	for i := 1; i < len(other.Rows); i++ {
		row := append([]any(nil), other.Rows[i]...)
		r.Rows = append(r.Rows, row)
	}
}

// ToCSV renders every row (including the header) as CRLF-terminated,
// double-quoted comma-separated fields, with `"` doubled per field (§4.6).
func (r *DbResult) ToCSV() string {
	var buf strings.Builder
	for _, row := range r.Rows {
		for i, v := range row {
			if i > 0 {
				buf.WriteByte(',')
			}
			buf.WriteByte('"')
			buf.WriteString(strings.ReplaceAll(cellString(v), `"`, `""`))
			buf.WriteByte('"')
		}
		buf.WriteString("\r\n")
	}
	return buf.String()
}

// ToBytes renders every row with caller-supplied delimiters and no quoting.
func (r *DbResult) ToBytes(recordDelim, fieldDelim byte) []byte {
	var buf bytes.Buffer
	for _, row := range r.Rows {
		for i, v := range row {
			if i > 0 {
				buf.WriteByte(fieldDelim)
			}
			buf.WriteString(cellString(v))
		}
		buf.WriteByte(recordDelim)
	}
	return buf.Bytes()
}

// Equal reports whether r and other hold the same field types and the same
// cells, compared row by row and then column by column (§4.6). It reports
// equality only; it does not order results.
func (r *DbResult) Equal(other *DbResult) bool {
	if other == nil {
		return false
	}
	if len(r.FieldTypes) != len(other.FieldTypes) {
		return false
	}
	for i := range r.FieldTypes {
		if r.FieldTypes[i] != other.FieldTypes[i] {
			return false
		}
	}
	if len(r.Rows) != len(other.Rows) {
		return false
	}
	for i := range r.Rows {
		if len(r.Rows[i]) != len(other.Rows[i]) {
			return false
		}
		for j := range r.Rows[i] {
			if !valueEqual(r.Rows[i][j], other.Rows[i][j]) {
				return false
			}
		}
	}
	return true
}

func valueEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ab, aIsBytes := a.([]byte)
	bb, bIsBytes := b.([]byte)
	if aIsBytes && bIsBytes {
		return bytes.Equal(ab, bb)
	}
	return a == b
}

func cellString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(t)
	case string:
		return t
	default:
		return fmt.Sprintf("%v", t)
	}
}
