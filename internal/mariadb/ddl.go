package mariadb

import (
	"context"
	"errors"

	"github.com/skymond-software/mariadb-client/internal/dberrors"
	"github.com/skymond-software/mariadb-client/internal/result"
	"github.com/skymond-software/mariadb-client/internal/sqlbuilder"
)

// AddTable creates a table with the given primary key and field list.
func (d *MariaDBDatabase) AddTable(ctx context.Context, db, table, primaryKey string, fields []sqlbuilder.FieldSpec) error {
	q, err := d.sql.AddTable(db, table, primaryKey, fields)
	if err != nil {
		return err
	}
	if _, err := d.dispatch(ctx, q); err != nil {
		return err
	}
	d.invalidateDescribe(db, table)
	return nil
}

// AddTableList creates the table, then inserts the given rows, pairing a
// constructor with an initial-population helper.
func (d *MariaDBDatabase) AddTableList(ctx context.Context, db, table, primaryKey string, fields []sqlbuilder.FieldSpec, rows [][]result.FieldValue) error {
	if err := d.AddTable(ctx, db, table, primaryKey, fields); err != nil {
		return err
	}
	return d.AddRecords(ctx, db, table, rows)
}

// DeleteTable drops a table and invalidates its cached description.
func (d *MariaDBDatabase) DeleteTable(ctx context.Context, db, table string) error {
	q, err := d.sql.DeleteTable(db, table)
	if err != nil {
		return err
	}
	if _, err := d.dispatch(ctx, q); err != nil {
		return err
	}
	d.invalidateDescribe(db, table)
	return nil
}

// RenameTable renames a table and invalidates the cached description under
// both the old and the new name.
func (d *MariaDBDatabase) RenameTable(ctx context.Context, db, table, newName string) error {
	q, err := d.sql.RenameTable(db, table, newName)
	if err != nil {
		return err
	}
	if _, err := d.dispatch(ctx, q); err != nil {
		return err
	}
	d.invalidateDescribe(db, table)
	d.invalidateDescribe(db, newName)
	return nil
}

// DescribeTable returns the field/type/primary-key-flag layout, memoized in
// the description cache until the next DDL operation on the same table
// (§4.8).
func (d *MariaDBDatabase) DescribeTable(ctx context.Context, db, table string) (*result.DbResult, error) {
	key := db + "." + table

	d.descMu.RLock()
	if cached, ok := d.descCache[key]; ok {
		d.descMu.RUnlock()
		return cached, nil
	}
	d.descMu.RUnlock()

	q, err := d.sql.DescribeTable(db, table)
	if err != nil {
		return nil, err
	}
	reply, err := d.dispatch(ctx, q)
	if err != nil {
		return nil, err
	}
	r := reply.Result.Result
	r.SetDatabase(d)

	d.descMu.Lock()
	d.descCache[key] = r
	d.descMu.Unlock()
	return r, nil
}

// primaryKeyOf returns the field names DESCRIBE marks with Key="PRI",
// suppressing any error (an unknown table simply yields no primary key,
// which only matters if the caller later tries DbResult.Update).
func (d *MariaDBDatabase) primaryKeyOf(ctx context.Context, db, table string) []string {
	desc, err := d.DescribeTable(ctx, db, table)
	if err != nil {
		return nil
	}
	fieldCol, ok := desc.NameToIndex["Field"]
	if !ok {
		return nil
	}
	keyCol, ok := desc.NameToIndex["Key"]
	if !ok {
		return nil
	}
	var pk []string
	for row := 1; row < len(desc.Rows); row++ {
		if cellString(desc.Rows[row][keyCol]) == "PRI" {
			pk = append(pk, cellString(desc.Rows[row][fieldCol]))
		}
	}
	return pk
}

// AddField adds a column and invalidates the table's cached description.
func (d *MariaDBDatabase) AddField(ctx context.Context, db, table string, field sqlbuilder.FieldSpec) error {
	q, err := d.sql.AddField(db, table, field)
	if err != nil {
		return err
	}
	if _, err := d.dispatch(ctx, q); err != nil {
		return err
	}
	d.invalidateDescribe(db, table)
	return nil
}

// DeleteField drops a column and invalidates the table's cached
// description.
func (d *MariaDBDatabase) DeleteField(ctx context.Context, db, table, field string) error {
	q, err := d.sql.DeleteField(db, table, field)
	if err != nil {
		return err
	}
	if _, err := d.dispatch(ctx, q); err != nil {
		return err
	}
	d.invalidateDescribe(db, table)
	return nil
}

// ChangeFieldType alters a column's type and invalidates the cache.
func (d *MariaDBDatabase) ChangeFieldType(ctx context.Context, db, table, field, newType string) error {
	q, err := d.sql.ChangeFieldType(db, table, field, newType)
	if err != nil {
		return err
	}
	if _, err := d.dispatch(ctx, q); err != nil {
		return err
	}
	d.invalidateDescribe(db, table)
	return nil
}

// ChangeFieldName renames a column, looking its current SQL type up via the
// description cache first since MariaDB's CHANGE syntax requires repeating
// the type.
func (d *MariaDBDatabase) ChangeFieldName(ctx context.Context, db, table, oldName, newName string) error {
	desc, err := d.DescribeTable(ctx, db, table)
	if err != nil {
		return err
	}
	fieldCol, hasField := desc.NameToIndex["Field"]
	typeCol, hasType := desc.NameToIndex["Type"]
	sqlType := ""
	if hasField && hasType {
		for row := 1; row < len(desc.Rows); row++ {
			if cellString(desc.Rows[row][fieldCol]) == oldName {
				sqlType = cellString(desc.Rows[row][typeCol])
				break
			}
		}
	}

	q, err := d.sql.ChangeFieldName(db, table, oldName, newName, sqlType)
	if err != nil {
		return err
	}
	if _, err := d.dispatch(ctx, q); err != nil {
		return err
	}
	d.invalidateDescribe(db, table)
	return nil
}

// AddDatabase creates a database.
func (d *MariaDBDatabase) AddDatabase(ctx context.Context, db string) error {
	q, err := d.sql.AddDatabase(db)
	if err != nil {
		return err
	}
	_, err = d.dispatch(ctx, q)
	return err
}

// DeleteDatabase drops a database.
func (d *MariaDBDatabase) DeleteDatabase(ctx context.Context, db string) error {
	q, err := d.sql.DeleteDatabase(db)
	if err != nil {
		return err
	}
	_, err = d.dispatch(ctx, q)
	return err
}

// RenameDatabase renames a database. MariaDB has no universally supported
// single-statement rename, so this first tries the ALTER DATABASE form and,
// on any server error, falls back to the create-move-drop composition: a
// new database, RENAME TABLE for every table the old one holds, then drop
// the now-empty old database (the Open Question resolution documented
// alongside sqlbuilder.RenameDatabaseSQL).
func (d *MariaDBDatabase) RenameDatabase(ctx context.Context, db, newName string) error {
	q, err := d.sql.RenameDatabaseSQL(db, newName)
	if err != nil {
		return err
	}
	if _, err := d.dispatch(ctx, q); err == nil {
		return nil
	}

	if err := d.AddDatabase(ctx, newName); err != nil {
		return err
	}
	tables, err := d.GetTableNames(ctx, db)
	if err != nil {
		return err
	}
	for row := 1; row < len(tables.Rows); row++ {
		name := cellString(tables.Rows[row][0])
		if err := d.renameTableAcrossDatabases(ctx, db, name, newName, name); err != nil {
			return err
		}
	}
	return d.DeleteDatabase(ctx, db)
}

// renameTableAcrossDatabases issues "RENAME TABLE fromDB.fromTable TO
// toDB.toTable" directly, since sqlbuilder.RenameTable only targets the
// same database.
func (d *MariaDBDatabase) renameTableAcrossDatabases(ctx context.Context, fromDB, fromTable, toDB, toTable string) error {
	q, err := d.sql.RenameAcrossDatabases(fromDB, fromTable, toDB, toTable)
	if err != nil {
		return err
	}
	_, err = d.dispatch(ctx, q)
	return err
}

// GetDatabaseNames lists every database on the server.
func (d *MariaDBDatabase) GetDatabaseNames(ctx context.Context) (*result.DbResult, error) {
	reply, err := d.dispatch(ctx, d.sql.GetDatabaseNames())
	if err != nil {
		return nil, err
	}
	return reply.Result.Result, nil
}

// GetTableNames lists every table in db.
func (d *MariaDBDatabase) GetTableNames(ctx context.Context, db string) (*result.DbResult, error) {
	q, err := d.sql.GetTableNames(db)
	if err != nil {
		return nil, err
	}
	reply, err := d.dispatch(ctx, q)
	if err != nil {
		return nil, err
	}
	return reply.Result.Result, nil
}

// GetNumRecords returns the row count of a table.
func (d *MariaDBDatabase) GetNumRecords(ctx context.Context, db, table string) (int64, error) {
	q, err := d.sql.GetNumRecords(db, table)
	if err != nil {
		return 0, err
	}
	return d.runScalarInt(ctx, q)
}

// GetSize returns the total on-disk size in bytes of every table in db.
func (d *MariaDBDatabase) GetSize(ctx context.Context, db string) (int64, error) {
	q, err := d.sql.GetSize(db)
	if err != nil {
		return 0, err
	}
	return d.runScalarInt(ctx, q)
}

// EnsureFieldIndexed creates the index idx_<field> on field (§4.5). It does
// not consult the description cache; the server's duplicate-key-name error
// (1061), returned when that index already exists, is treated as success.
func (d *MariaDBDatabase) EnsureFieldIndexed(ctx context.Context, db, table, field string) error {
	q, err := d.sql.EnsureFieldIndexed(db, table, field)
	if err != nil {
		return err
	}
	_, err = d.dispatch(ctx, q)
	var srvErr *dberrors.ServerError
	if errors.As(err, &srvErr) && srvErr.Code == 1061 {
		return nil
	}
	return err
}

func (d *MariaDBDatabase) runScalarInt(ctx context.Context, query string) (int64, error) {
	reply, err := d.dispatch(ctx, query)
	if err != nil {
		return 0, err
	}
	r := reply.Result.Result
	if len(r.Rows) < 2 {
		return 0, nil
	}
	return parseInt64(cellString(r.Rows[1][0])), nil
}
