package mariadb

import (
	"context"

	"github.com/skymond-software/mariadb-client/internal/dberrors"
	"github.com/skymond-software/mariadb-client/internal/protocol"
	"github.com/skymond-software/mariadb-client/internal/result"
)

// runSelect dispatches query, expecting a result set, and attaches this
// Database as the row's update back-reference plus its known primary key
// (from the description cache) so DbResult.Update works out of the box.
func (d *MariaDBDatabase) runSelect(ctx context.Context, db, table, query string) (*result.DbResult, error) {
	reply, err := d.dispatch(ctx, query)
	if err != nil {
		return nil, err
	}
	if reply.Kind != protocol.ReplyResultSet {
		return result.New(db, table, nil, nil, nil), nil
	}
	r := reply.Result.Result
	r.SetDatabase(d)
	r.PrimaryKey = d.primaryKeyOf(ctx, db, table)
	return r, nil
}

// GetValues renders and runs an equality-filtered, column-projected SELECT.
func (d *MariaDBDatabase) GetValues(ctx context.Context, db, table string, fields []string, orderBy string, criteria ...result.FieldValue) (*result.DbResult, error) {
	q, err := d.sql.SelectEquality(db, table, fields, orderBy, criteria)
	if err != nil {
		return nil, err
	}
	return d.runSelect(ctx, db, table, q)
}

// GetValuesLike is GetValues with LIKE comparisons.
func (d *MariaDBDatabase) GetValuesLike(ctx context.Context, db, table string, fields []string, orderBy string, criteria ...result.FieldValue) (*result.DbResult, error) {
	q, err := d.sql.SelectLike(db, table, fields, orderBy, criteria)
	if err != nil {
		return nil, err
	}
	return d.runSelect(ctx, db, table, q)
}

// GetOrValuesDict renders an OR-joined equality SELECT from an OrderedMap
// of criteria, preserving the caller's field order.
func (d *MariaDBDatabase) GetOrValuesDict(ctx context.Context, db, table string, fields []string, orderBy string, criteria *result.OrderedMap) (*result.DbResult, error) {
	q, err := d.sql.SelectOr(db, table, fields, orderBy, pairsOf(criteria))
	if err != nil {
		return nil, err
	}
	return d.runSelect(ctx, db, table, q)
}

// GetRecords is GetValues with every column selected.
func (d *MariaDBDatabase) GetRecords(ctx context.Context, db, table string, orderBy string, criteria ...result.FieldValue) (*result.DbResult, error) {
	return d.GetValues(ctx, db, table, nil, orderBy, criteria...)
}

// GetRecordsLike is GetValuesLike with every column selected.
func (d *MariaDBDatabase) GetRecordsLike(ctx context.Context, db, table string, orderBy string, criteria ...result.FieldValue) (*result.DbResult, error) {
	return d.GetValuesLike(ctx, db, table, nil, orderBy, criteria...)
}

// GetValuesDict is GetValues with an OrderedMap (AND-joined) criteria set.
func (d *MariaDBDatabase) GetValuesDict(ctx context.Context, db, table string, fields []string, orderBy string, criteria *result.OrderedMap) (*result.DbResult, error) {
	return d.GetValues(ctx, db, table, fields, orderBy, pairsOf(criteria)...)
}

// AddRecord inserts one row built from explicit (name, value) pairs.
func (d *MariaDBDatabase) AddRecord(ctx context.Context, db, table string, fields ...result.FieldValue) error {
	q, err := d.sql.Insert(db, table, fields)
	if err != nil {
		return err
	}
	_, err = d.dispatch(ctx, q)
	return err
}

// AddRecordDict is AddRecord from an OrderedMap.
func (d *MariaDBDatabase) AddRecordDict(ctx context.Context, db, table string, fields *result.OrderedMap) error {
	return d.AddRecord(ctx, db, table, pairsOf(fields)...)
}

// AddRecords inserts each row in turn. There is no multi-row VALUES batching
// here: each row is validated and quoted independently, matching the
// per-call validation the rest of the façade does (§4.8).
func (d *MariaDBDatabase) AddRecords(ctx context.Context, db, table string, rows [][]result.FieldValue) error {
	for _, row := range rows {
		if err := d.AddRecord(ctx, db, table, row...); err != nil {
			return err
		}
	}
	return nil
}

// DeleteRecords deletes every row matching the equality criteria, returning
// the affected-row count from the server's OK packet.
func (d *MariaDBDatabase) DeleteRecords(ctx context.Context, db, table string, criteria ...result.FieldValue) (int64, error) {
	q, err := d.sql.Delete(db, table, criteria)
	if err != nil {
		return 0, err
	}
	return d.runAffecting(ctx, q)
}

// DeleteRecordsLike is DeleteRecords with LIKE comparisons.
func (d *MariaDBDatabase) DeleteRecordsLike(ctx context.Context, db, table string, criteria ...result.FieldValue) (int64, error) {
	q, err := d.sql.DeleteLike(db, table, criteria)
	if err != nil {
		return 0, err
	}
	return d.runAffecting(ctx, q)
}

// UpdateField sets one field across every row matching where, returning the
// affected-row count.
func (d *MariaDBDatabase) UpdateField(ctx context.Context, db, table string, set result.FieldValue, where ...result.FieldValue) (int64, error) {
	q, err := d.sql.Update(db, table, []result.FieldValue{set}, where)
	if err != nil {
		return 0, err
	}
	return d.runAffecting(ctx, q)
}

// UpdateRecordDict is UpdateField generalized to several fields at once
// from an OrderedMap.
func (d *MariaDBDatabase) UpdateRecordDict(ctx context.Context, db, table string, set *result.OrderedMap, where ...result.FieldValue) (int64, error) {
	q, err := d.sql.Update(db, table, pairsOf(set), where)
	if err != nil {
		return 0, err
	}
	return d.runAffecting(ctx, q)
}

// UpdateResult is the explicit-Database-call form of *DbResult.Update: it
// exists on the operation surface (§6) for callers that hold a Database
// reference but not the row's own back-reference handy. r must already
// carry a PrimaryKey (set by runSelect/DescribeTable).
func (d *MariaDBDatabase) UpdateResult(ctx context.Context, r *result.DbResult) error {
	r.SetDatabase(d)
	for row := 1; row < len(r.Rows); row++ {
		if err := r.Update(row); err != nil {
			return err
		}
	}
	return nil
}

func (d *MariaDBDatabase) runAffecting(ctx context.Context, query string) (int64, error) {
	reply, err := d.dispatch(ctx, query)
	if err != nil {
		return 0, err
	}
	if reply.Kind != protocol.ReplyOK {
		return 0, dberrors.NewInvalidArgument("expected OK reply, got result set")
	}
	return int64(reply.OK.AffectedRows), nil
}

func pairsOf(m *result.OrderedMap) []result.FieldValue {
	if m == nil {
		return nil
	}
	return m.Pairs()
}
