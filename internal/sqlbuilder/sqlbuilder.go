// Package sqlbuilder assembles the raw SQL text the façade sends over the
// wire (§4.5). There are no prepared statements: every literal is quoted and
// escaped here, and every identifier is validated before being emitted
// verbatim.
package sqlbuilder

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/skymond-software/mariadb-client/internal/dberrors"
	"github.com/skymond-software/mariadb-client/internal/result"
)

// Builder renders query text for one logical server, applying a global
// "instance suffix" to database names for multi-tenant isolation within
// that one server, rather than routing by a per-tenant pool key.
type Builder struct {
	instanceSuffix string
}

// New builds a Builder. instanceSuffix may be empty.
func New(instanceSuffix string) *Builder {
	return &Builder{instanceSuffix: instanceSuffix}
}

// FieldSpec names a column and its SQL type, used by AddTable/AddField/
// ChangeFieldType.
type FieldSpec struct {
	Name    string
	SQLType string
}

// isValidFieldName reports whether s is non-empty, contains only letters,
// digits, and underscore, and does not start with a digit (§4.5).
func isValidFieldName(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func validateIdent(kind, s string) error {
	if !isValidFieldName(s) {
		return dberrors.NewInvalidArgument("invalid %s %q", kind, s)
	}
	return nil
}

// qualifiedTable renders "db<suffix>.table" after validating both parts.
func (b *Builder) qualifiedTable(db, table string) (string, error) {
	if err := validateIdent("database name", db); err != nil {
		return "", err
	}
	if err := validateIdent("table name", table); err != nil {
		return "", err
	}
	return db + b.instanceSuffix + "." + table, nil
}

func (b *Builder) qualifiedDB(db string) (string, error) {
	if err := validateIdent("database name", db); err != nil {
		return "", err
	}
	return db + b.instanceSuffix, nil
}

// QuoteLiteral renders v as a SQL literal: nil becomes the unquoted token
// NULL; strings and byte-strings are wrapped in single quotes with `'`, `\`,
// and `"` escaped by a leading backslash, and byte-strings additionally
// escape embedded NUL bytes as `\0`; every other type is formatted with its
// natural decimal/float representation, which needs no quoting (§4.5).
func QuoteLiteral(v any) string {
	switch t := v.(type) {
	case nil:
		return "NULL"
	case string:
		return quoteTextLiteral(t, false)
	case []byte:
		return quoteTextLiteral(string(t), true)
	case bool:
		if t {
			return "1"
		}
		return "0"
	case int8:
		return strconv.FormatInt(int64(t), 10)
	case int16:
		return strconv.FormatInt(int64(t), 10)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.FormatInt(int64(t), 10)
	case uint8:
		return strconv.FormatUint(uint64(t), 10)
	case uint16:
		return strconv.FormatUint(uint64(t), 10)
	case uint32:
		return strconv.FormatUint(uint64(t), 10)
	case uint64:
		return strconv.FormatUint(t, 10)
	case float32:
		return strconv.FormatFloat(float64(t), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	default:
		return quoteTextLiteral(fmt.Sprintf("%v", t), false)
	}
}

// quoteTextLiteral wraps s in single quotes, escaping `'`, `\`, and `"` with
// a leading backslash. When binary is true (byte-string literals), an
// embedded NUL byte is additionally escaped as the two-character sequence
// `\0` instead of being passed through raw.
func quoteTextLiteral(s string, binary bool) string {
	var buf strings.Builder
	buf.WriteByte('\'')
	if binary {
		// Byte-string literals carry arbitrary, possibly non-UTF-8 payloads
		// (§4.5): escape byte-for-byte so a stray high-bit byte survives
		// unchanged instead of being rune-decoded into U+FFFD.
		for i := 0; i < len(s); i++ {
			b := s[i]
			if b == 0 {
				buf.WriteString(`\0`)
				continue
			}
			switch b {
			case '\'', '\\', '"':
				buf.WriteByte('\\')
			}
			buf.WriteByte(b)
		}
		buf.WriteByte('\'')
		return buf.String()
	}
	for _, r := range s {
		switch r {
		case '\'', '\\', '"':
			buf.WriteByte('\\')
		}
		buf.WriteRune(r)
	}
	buf.WriteByte('\'')
	return buf.String()
}

func equalityClause(criteria []result.FieldValue, op string) (string, error) {
	parts := make([]string, 0, len(criteria))
	for _, c := range criteria {
		if err := validateIdent("field name", c.Name); err != nil {
			return "", err
		}
		parts = append(parts, fmt.Sprintf("%s=%s", c.Name, QuoteLiteral(c.Value)))
	}
	return strings.Join(parts, " "+op+" "), nil
}

func likeClause(criteria []result.FieldValue) (string, error) {
	parts := make([]string, 0, len(criteria))
	for _, c := range criteria {
		if err := validateIdent("field name", c.Name); err != nil {
			return "", err
		}
		parts = append(parts, fmt.Sprintf("%s LIKE %s", c.Name, QuoteLiteral(c.Value)))
	}
	return strings.Join(parts, " AND "), nil
}

func selectList(fields []string) (string, error) {
	if len(fields) == 0 {
		return "*", nil
	}
	for _, f := range fields {
		if err := validateIdent("field name", f); err != nil {
			return "", err
		}
	}
	return strings.Join(fields, ", "), nil
}

func orderByClause(orderBy string) (string, error) {
	if orderBy == "" {
		return "", nil
	}
	if err := validateIdent("order-by field", orderBy); err != nil {
		return "", err
	}
	return " ORDER BY " + orderBy, nil
}

// SelectEquality renders "SELECT <select> FROM db.table WHERE f1=v1 AND
// f2=v2 [ORDER BY ...]". With no criteria, the WHERE clause is omitted.
func (b *Builder) SelectEquality(db, table string, selectFields []string, orderBy string, criteria []result.FieldValue) (string, error) {
	return b.selectWith(db, table, selectFields, orderBy, criteria, equalityClause, "AND")
}

// SelectLike renders the same shape with LIKE comparisons.
func (b *Builder) SelectLike(db, table string, selectFields []string, orderBy string, criteria []result.FieldValue) (string, error) {
	tbl, err := b.qualifiedTable(db, table)
	if err != nil {
		return "", err
	}
	sel, err := selectList(selectFields)
	if err != nil {
		return "", err
	}
	where, err := likeClause(criteria)
	if err != nil {
		return "", err
	}
	ob, err := orderByClause(orderBy)
	if err != nil {
		return "", err
	}
	q := fmt.Sprintf("SELECT %s FROM %s", sel, tbl)
	if where != "" {
		q += " WHERE " + where
	}
	return q + ob, nil
}

// SelectOr renders "SELECT … WHERE f1=v1 OR f2=v2 …", used by
// GetOrValuesDict.
func (b *Builder) SelectOr(db, table string, selectFields []string, orderBy string, criteria []result.FieldValue) (string, error) {
	return b.selectWith(db, table, selectFields, orderBy, criteria, equalityClause, "OR")
}

func (b *Builder) selectWith(db, table string, selectFields []string, orderBy string, criteria []result.FieldValue,
	clause func([]result.FieldValue, string) (string, error), op string) (string, error) {
	tbl, err := b.qualifiedTable(db, table)
	if err != nil {
		return "", err
	}
	sel, err := selectList(selectFields)
	if err != nil {
		return "", err
	}
	where, err := clause(criteria, op)
	if err != nil {
		return "", err
	}
	ob, err := orderByClause(orderBy)
	if err != nil {
		return "", err
	}
	q := fmt.Sprintf("SELECT %s FROM %s", sel, tbl)
	if where != "" {
		q += " WHERE " + where
	}
	return q + ob, nil
}

// Insert renders "INSERT INTO db.table (f1,…) VALUES (v1,…)".
func (b *Builder) Insert(db, table string, fields []result.FieldValue) (string, error) {
	tbl, err := b.qualifiedTable(db, table)
	if err != nil {
		return "", err
	}
	names := make([]string, len(fields))
	values := make([]string, len(fields))
	for i, f := range fields {
		if err := validateIdent("field name", f.Name); err != nil {
			return "", err
		}
		names[i] = f.Name
		values[i] = QuoteLiteral(f.Value)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", tbl, strings.Join(names, ","), strings.Join(values, ",")), nil
}

// Update renders "UPDATE db.table SET f=v [,…] WHERE pk=… [AND …]". When
// invoked from a result-row cursor, where holds that row's primary-key
// column(s) (§4.5).
func (b *Builder) Update(db, table string, set []result.FieldValue, where []result.FieldValue) (string, error) {
	tbl, err := b.qualifiedTable(db, table)
	if err != nil {
		return "", err
	}
	if len(set) == 0 {
		return "", dberrors.NewInvalidArgument("update requires at least one field to set")
	}
	if len(where) == 0 {
		return "", dberrors.NewInvalidArgument("update requires a WHERE clause")
	}
	assigns := make([]string, len(set))
	for i, f := range set {
		if err := validateIdent("field name", f.Name); err != nil {
			return "", err
		}
		assigns[i] = fmt.Sprintf("%s=%s", f.Name, QuoteLiteral(f.Value))
	}
	whereClause, err := equalityClause(where, "AND")
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("UPDATE %s SET %s WHERE %s", tbl, strings.Join(assigns, ","), whereClause), nil
}

// Delete renders "DELETE FROM db.table WHERE f1=v1 AND …". With no
// criteria, every row is deleted.
func (b *Builder) Delete(db, table string, criteria []result.FieldValue) (string, error) {
	tbl, err := b.qualifiedTable(db, table)
	if err != nil {
		return "", err
	}
	where, err := equalityClause(criteria, "AND")
	if err != nil {
		return "", err
	}
	q := "DELETE FROM " + tbl
	if where != "" {
		q += " WHERE " + where
	}
	return q, nil
}

// DeleteLike is Delete with LIKE comparisons.
func (b *Builder) DeleteLike(db, table string, criteria []result.FieldValue) (string, error) {
	tbl, err := b.qualifiedTable(db, table)
	if err != nil {
		return "", err
	}
	where, err := likeClause(criteria)
	if err != nil {
		return "", err
	}
	q := "DELETE FROM " + tbl
	if where != "" {
		q += " WHERE " + where
	}
	return q, nil
}

// AddTable renders "CREATE TABLE db.table (f1 type1, …, PRIMARY KEY (pk))".
func (b *Builder) AddTable(db, table, primaryKey string, fields []FieldSpec) (string, error) {
	tbl, err := b.qualifiedTable(db, table)
	if err != nil {
		return "", err
	}
	if err := validateIdent("primary key field", primaryKey); err != nil {
		return "", err
	}
	defs := make([]string, 0, len(fields)+1)
	havePK := false
	for _, f := range fields {
		if err := validateIdent("field name", f.Name); err != nil {
			return "", err
		}
		defs = append(defs, fmt.Sprintf("%s %s", f.Name, f.SQLType))
		if f.Name == primaryKey {
			havePK = true
		}
	}
	if !havePK {
		return "", dberrors.NewInvalidArgument("primary key field %q not present in field list", primaryKey)
	}
	defs = append(defs, fmt.Sprintf("PRIMARY KEY (%s)", primaryKey))
	return fmt.Sprintf("CREATE TABLE %s (%s)", tbl, strings.Join(defs, ", ")), nil
}

// DeleteTable renders "DROP TABLE db.table".
func (b *Builder) DeleteTable(db, table string) (string, error) {
	tbl, err := b.qualifiedTable(db, table)
	if err != nil {
		return "", err
	}
	return "DROP TABLE " + tbl, nil
}

// RenameTable renders "RENAME TABLE db.table TO db.newName".
func (b *Builder) RenameTable(db, table, newName string) (string, error) {
	tbl, err := b.qualifiedTable(db, table)
	if err != nil {
		return "", err
	}
	dbQ, err := b.qualifiedDB(db)
	if err != nil {
		return "", err
	}
	if err := validateIdent("table name", newName); err != nil {
		return "", err
	}
	return fmt.Sprintf("RENAME TABLE %s TO %s.%s", tbl, dbQ, newName), nil
}

// DescribeTable renders "DESCRIBE db.table".
func (b *Builder) DescribeTable(db, table string) (string, error) {
	tbl, err := b.qualifiedTable(db, table)
	if err != nil {
		return "", err
	}
	return "DESCRIBE " + tbl, nil
}

// AddField renders "ALTER TABLE db.table ADD COLUMN f type".
func (b *Builder) AddField(db, table string, f FieldSpec) (string, error) {
	tbl, err := b.qualifiedTable(db, table)
	if err != nil {
		return "", err
	}
	if err := validateIdent("field name", f.Name); err != nil {
		return "", err
	}
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", tbl, f.Name, f.SQLType), nil
}

// DeleteField renders "ALTER TABLE db.table DROP COLUMN f".
func (b *Builder) DeleteField(db, table, field string) (string, error) {
	tbl, err := b.qualifiedTable(db, table)
	if err != nil {
		return "", err
	}
	if err := validateIdent("field name", field); err != nil {
		return "", err
	}
	return fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", tbl, field), nil
}

// ChangeFieldType renders "ALTER TABLE db.table MODIFY COLUMN f newType".
func (b *Builder) ChangeFieldType(db, table, field, newType string) (string, error) {
	tbl, err := b.qualifiedTable(db, table)
	if err != nil {
		return "", err
	}
	if err := validateIdent("field name", field); err != nil {
		return "", err
	}
	return fmt.Sprintf("ALTER TABLE %s MODIFY COLUMN %s %s", tbl, field, newType), nil
}

// ChangeFieldName renders "ALTER TABLE db.table CHANGE old new oldType",
// keeping the prior type fixed (the façade looks it up via the description
// cache before calling this).
func (b *Builder) ChangeFieldName(db, table, oldName, newName, sqlType string) (string, error) {
	tbl, err := b.qualifiedTable(db, table)
	if err != nil {
		return "", err
	}
	if err := validateIdent("field name", oldName); err != nil {
		return "", err
	}
	if err := validateIdent("field name", newName); err != nil {
		return "", err
	}
	return fmt.Sprintf("ALTER TABLE %s CHANGE %s %s %s", tbl, oldName, newName, sqlType), nil
}

// AddDatabase renders "CREATE DATABASE db".
func (b *Builder) AddDatabase(db string) (string, error) {
	dbQ, err := b.qualifiedDB(db)
	if err != nil {
		return "", err
	}
	return "CREATE DATABASE " + dbQ, nil
}

// DeleteDatabase renders "DROP DATABASE db".
func (b *Builder) DeleteDatabase(db string) (string, error) {
	dbQ, err := b.qualifiedDB(db)
	if err != nil {
		return "", err
	}
	return "DROP DATABASE " + dbQ, nil
}

// RenameDatabaseSQL renders the single ALTER statement some MariaDB builds
// still accept for database rename. Per the Open Question on this
// operation, the façade does not rely on this alone: MariaDB has no
// universally supported single-statement database rename, so
// Database.RenameDatabase composes AddDatabase + per-table RenameTable +
// DeleteDatabase when this statement fails.
func (b *Builder) RenameDatabaseSQL(db, newName string) (string, error) {
	dbQ, err := b.qualifiedDB(db)
	if err != nil {
		return "", err
	}
	newQ, err := b.qualifiedDB(newName)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("ALTER DATABASE %s RENAME TO %s", dbQ, newQ), nil
}

// RenameAcrossDatabases renders "RENAME TABLE fromDB.fromTable TO
// toDB.toTable", moving a table into another database.
func (b *Builder) RenameAcrossDatabases(fromDB, fromTable, toDB, toTable string) (string, error) {
	from, err := b.qualifiedTable(fromDB, fromTable)
	if err != nil {
		return "", err
	}
	to, err := b.qualifiedTable(toDB, toTable)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("RENAME TABLE %s TO %s", from, to), nil
}

// GetDatabaseNames renders "SHOW DATABASES".
func (b *Builder) GetDatabaseNames() string {
	return "SHOW DATABASES"
}

// GetTableNames renders "SHOW TABLES FROM db".
func (b *Builder) GetTableNames(db string) (string, error) {
	dbQ, err := b.qualifiedDB(db)
	if err != nil {
		return "", err
	}
	return "SHOW TABLES FROM " + dbQ, nil
}

// GetNumRecords renders "SELECT COUNT(*) FROM db.table".
func (b *Builder) GetNumRecords(db, table string) (string, error) {
	tbl, err := b.qualifiedTable(db, table)
	if err != nil {
		return "", err
	}
	return "SELECT COUNT(*) FROM " + tbl, nil
}

// GetSize renders an information_schema query summing data and index
// length for every table in db, in bytes.
func (b *Builder) GetSize(db string) (string, error) {
	dbQ, err := b.qualifiedDB(db)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(
		"SELECT SUM(data_length+index_length) FROM information_schema.TABLES WHERE table_schema=%s",
		QuoteLiteral(dbQ)), nil
}

// EnsureFieldIndexed renders "CREATE INDEX idx_f ON db.table (f)", the
// no-op-if-exists semantics left to the façade, which treats MariaDB's
// duplicate-index-name error as success.
func (b *Builder) EnsureFieldIndexed(db, table, field string) (string, error) {
	tbl, err := b.qualifiedTable(db, table)
	if err != nil {
		return "", err
	}
	if err := validateIdent("field name", field); err != nil {
		return "", err
	}
	return fmt.Sprintf("CREATE INDEX idx_%s ON %s (%s)", field, tbl, field), nil
}
