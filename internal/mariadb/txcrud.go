package mariadb

import (
	"context"

	"github.com/skymond-software/mariadb-client/internal/dberrors"
	"github.com/skymond-software/mariadb-client/internal/protocol"
	"github.com/skymond-software/mariadb-client/internal/result"
)

// This file gives Tx its own CRUD operation surface, mirroring crud.go but
// routed through tx.exec rather than *MariaDBDatabase.dispatch. Without it a
// data operation issued "inside" a transaction would be built against the
// same SQL builder but sent over a session pool.Acquire hands out fresh —
// not the session BeginTransaction/LockTables pinned — so it would run in
// autocommit on a different connection and never see the transaction's own
// writes (§5, §8 scenario 3). Schema lookups (DescribeTable, used here only
// to learn a table's primary key for the DbResult back-reference) still go
// through the Database's describe cache on a pooled session: DDL is not
// transactional in MariaDB's default storage engine and the cache is shared
// across the whole Database, not scoped to one Tx.

// runSelect is Tx's analogue of MariaDBDatabase.runSelect: the query itself
// runs on tx's pinned session so a SELECT observes this transaction's own
// uncommitted writes.
func (tx *Tx) runSelect(ctx context.Context, db, table, query string) (*result.DbResult, error) {
	reply, err := tx.exec(query)
	if err != nil {
		return nil, err
	}
	if reply.Kind != protocol.ReplyResultSet {
		return result.New(db, table, nil, nil, nil), nil
	}
	r := reply.Result.Result
	r.SetDatabase(tx.db)
	r.PrimaryKey = tx.db.primaryKeyOf(ctx, db, table)
	return r, nil
}

// GetValues is GetValues run on this Tx's pinned session.
func (tx *Tx) GetValues(ctx context.Context, db, table string, fields []string, orderBy string, criteria ...result.FieldValue) (*result.DbResult, error) {
	q, err := tx.db.sql.SelectEquality(db, table, fields, orderBy, criteria)
	if err != nil {
		return nil, err
	}
	return tx.runSelect(ctx, db, table, q)
}

// GetValuesLike is GetValuesLike run on this Tx's pinned session.
func (tx *Tx) GetValuesLike(ctx context.Context, db, table string, fields []string, orderBy string, criteria ...result.FieldValue) (*result.DbResult, error) {
	q, err := tx.db.sql.SelectLike(db, table, fields, orderBy, criteria)
	if err != nil {
		return nil, err
	}
	return tx.runSelect(ctx, db, table, q)
}

// GetOrValuesDict is GetOrValuesDict run on this Tx's pinned session.
func (tx *Tx) GetOrValuesDict(ctx context.Context, db, table string, fields []string, orderBy string, criteria *result.OrderedMap) (*result.DbResult, error) {
	q, err := tx.db.sql.SelectOr(db, table, fields, orderBy, pairsOf(criteria))
	if err != nil {
		return nil, err
	}
	return tx.runSelect(ctx, db, table, q)
}

// GetRecords is GetValues with every column selected.
func (tx *Tx) GetRecords(ctx context.Context, db, table string, orderBy string, criteria ...result.FieldValue) (*result.DbResult, error) {
	return tx.GetValues(ctx, db, table, nil, orderBy, criteria...)
}

// GetRecordsLike is GetValuesLike with every column selected.
func (tx *Tx) GetRecordsLike(ctx context.Context, db, table string, orderBy string, criteria ...result.FieldValue) (*result.DbResult, error) {
	return tx.GetValuesLike(ctx, db, table, nil, orderBy, criteria...)
}

// GetValuesDict is GetValues with an OrderedMap (AND-joined) criteria set.
func (tx *Tx) GetValuesDict(ctx context.Context, db, table string, fields []string, orderBy string, criteria *result.OrderedMap) (*result.DbResult, error) {
	return tx.GetValues(ctx, db, table, fields, orderBy, pairsOf(criteria)...)
}

// AddRecord inserts one row on this Tx's pinned session.
func (tx *Tx) AddRecord(ctx context.Context, db, table string, fields ...result.FieldValue) error {
	q, err := tx.db.sql.Insert(db, table, fields)
	if err != nil {
		return err
	}
	_, err = tx.exec(q)
	return err
}

// AddRecordDict is AddRecord from an OrderedMap.
func (tx *Tx) AddRecordDict(ctx context.Context, db, table string, fields *result.OrderedMap) error {
	return tx.AddRecord(ctx, db, table, pairsOf(fields)...)
}

// AddRecords inserts each row in turn on this Tx's pinned session.
func (tx *Tx) AddRecords(ctx context.Context, db, table string, rows [][]result.FieldValue) error {
	for _, row := range rows {
		if err := tx.AddRecord(ctx, db, table, row...); err != nil {
			return err
		}
	}
	return nil
}

// DeleteRecords deletes every row matching the equality criteria on this
// Tx's pinned session, returning the affected-row count.
func (tx *Tx) DeleteRecords(ctx context.Context, db, table string, criteria ...result.FieldValue) (int64, error) {
	q, err := tx.db.sql.Delete(db, table, criteria)
	if err != nil {
		return 0, err
	}
	return tx.runAffecting(q)
}

// DeleteRecordsLike is DeleteRecords with LIKE comparisons.
func (tx *Tx) DeleteRecordsLike(ctx context.Context, db, table string, criteria ...result.FieldValue) (int64, error) {
	q, err := tx.db.sql.DeleteLike(db, table, criteria)
	if err != nil {
		return 0, err
	}
	return tx.runAffecting(q)
}

// UpdateField sets one field across every row matching where, on this Tx's
// pinned session.
func (tx *Tx) UpdateField(ctx context.Context, db, table string, set result.FieldValue, where ...result.FieldValue) (int64, error) {
	q, err := tx.db.sql.Update(db, table, []result.FieldValue{set}, where)
	if err != nil {
		return 0, err
	}
	return tx.runAffecting(q)
}

// UpdateRecordDict is UpdateField generalized to several fields at once from
// an OrderedMap, on this Tx's pinned session.
func (tx *Tx) UpdateRecordDict(ctx context.Context, db, table string, set *result.OrderedMap, where ...result.FieldValue) (int64, error) {
	q, err := tx.db.sql.Update(db, table, pairsOf(set), where)
	if err != nil {
		return 0, err
	}
	return tx.runAffecting(q)
}

func (tx *Tx) runAffecting(query string) (int64, error) {
	reply, err := tx.exec(query)
	if err != nil {
		return 0, err
	}
	if reply.Kind != protocol.ReplyOK {
		return 0, dberrors.NewInvalidArgument("expected OK reply, got result set")
	}
	return int64(reply.OK.AffectedRows), nil
}
