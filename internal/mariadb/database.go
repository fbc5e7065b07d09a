// Package mariadb is the database-agnostic façade: a single Database handle
// dispatching validated, hand-built SQL across a pooled set of authenticated
// sessions (§4.8), backed by internal/pool, internal/sqlbuilder,
// internal/lock, and internal/protocol.
package mariadb

import (
	"context"
	"errors"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/skymond-software/mariadb-client/internal/dberrors"
	"github.com/skymond-software/mariadb-client/internal/handshake"
	"github.com/skymond-software/mariadb-client/internal/lock"
	"github.com/skymond-software/mariadb-client/internal/metrics"
	"github.com/skymond-software/mariadb-client/internal/pool"
	"github.com/skymond-software/mariadb-client/internal/protocol"
	"github.com/skymond-software/mariadb-client/internal/result"
	"github.com/skymond-software/mariadb-client/internal/sqlbuilder"
)

// Config configures a Database: everything pool.Config needs plus the
// instance suffix sqlbuilder applies to database names (§4.5).
type Config struct {
	Address        string
	DialTimeout    time.Duration
	Login          handshake.Config
	MinSessions    int
	MaxSessions    int
	IdleTimeout    time.Duration
	MaxLifetime    time.Duration
	AcquireTimeout time.Duration
	InstanceSuffix string

	// Metrics is optional; nil disables the Prometheus observability
	// surface (§4.10) without changing any behavior.
	Metrics *metrics.Collector
}

func (c Config) poolConfig() pool.Config {
	return pool.Config{
		Address:        c.Address,
		DialTimeout:    c.DialTimeout,
		Login:          c.Login,
		MinSessions:    c.MinSessions,
		MaxSessions:    c.MaxSessions,
		IdleTimeout:    c.IdleTimeout,
		MaxLifetime:    c.MaxLifetime,
		AcquireTimeout: c.AcquireTimeout,
		Metrics:        c.Metrics,
	}
}

// Database is the operation surface the rest of an application uses (§6).
// Every method validates its arguments, builds SQL via sqlbuilder, acquires
// a session from the pool, dispatches it, and releases the session —
// exactly once, except for the transaction- and table-lock-scoped methods
// on Tx which reuse one pinned session across calls (§4.8).
type Database interface {
	GetValues(ctx context.Context, db, table string, fields []string, orderBy string, criteria ...result.FieldValue) (*result.DbResult, error)
	GetValuesLike(ctx context.Context, db, table string, fields []string, orderBy string, criteria ...result.FieldValue) (*result.DbResult, error)
	GetOrValuesDict(ctx context.Context, db, table string, fields []string, orderBy string, criteria *result.OrderedMap) (*result.DbResult, error)
	GetRecords(ctx context.Context, db, table string, orderBy string, criteria ...result.FieldValue) (*result.DbResult, error)
	GetRecordsLike(ctx context.Context, db, table string, orderBy string, criteria ...result.FieldValue) (*result.DbResult, error)
	GetValuesDict(ctx context.Context, db, table string, fields []string, orderBy string, criteria *result.OrderedMap) (*result.DbResult, error)

	AddRecord(ctx context.Context, db, table string, fields ...result.FieldValue) error
	AddRecordDict(ctx context.Context, db, table string, fields *result.OrderedMap) error
	AddRecords(ctx context.Context, db, table string, rows [][]result.FieldValue) error

	DeleteRecords(ctx context.Context, db, table string, criteria ...result.FieldValue) (int64, error)
	DeleteRecordsLike(ctx context.Context, db, table string, criteria ...result.FieldValue) (int64, error)

	UpdateField(ctx context.Context, db, table string, set result.FieldValue, where ...result.FieldValue) (int64, error)
	UpdateRecordDict(ctx context.Context, db, table string, set *result.OrderedMap, where ...result.FieldValue) (int64, error)
	UpdateResult(ctx context.Context, r *result.DbResult) error

	AddTable(ctx context.Context, db, table, primaryKey string, fields []sqlbuilder.FieldSpec) error
	AddTableList(ctx context.Context, db, table, primaryKey string, fields []sqlbuilder.FieldSpec, rows [][]result.FieldValue) error
	DeleteTable(ctx context.Context, db, table string) error
	RenameTable(ctx context.Context, db, table, newName string) error
	DescribeTable(ctx context.Context, db, table string) (*result.DbResult, error)

	AddField(ctx context.Context, db, table string, field sqlbuilder.FieldSpec) error
	DeleteField(ctx context.Context, db, table, field string) error
	ChangeFieldType(ctx context.Context, db, table, field, newType string) error
	ChangeFieldName(ctx context.Context, db, table, oldName, newName string) error

	AddDatabase(ctx context.Context, db string) error
	DeleteDatabase(ctx context.Context, db string) error
	RenameDatabase(ctx context.Context, db, newName string) error
	GetDatabaseNames(ctx context.Context) (*result.DbResult, error)
	GetTableNames(ctx context.Context, db string) (*result.DbResult, error)

	GetNumRecords(ctx context.Context, db, table string) (int64, error)
	GetSize(ctx context.Context, db string) (int64, error)
	EnsureFieldIndexed(ctx context.Context, db, table, field string) error

	BeginTransaction(ctx context.Context) (*Tx, error)
	LockTables(ctx context.Context, tables map[string][]string) (*Tx, error)
	LockRecords(ctx context.Context, db, table string, criteria ...result.FieldValue) (*RecordLock, error)
	UnlockRecords(lk *RecordLock)

	Stats() pool.Stats
	Close() error
}

// MariaDBDatabase is the concrete Database implementation.
type MariaDBDatabase struct {
	pool    *pool.Pool
	sql     *sqlbuilder.Builder
	locks   *lock.Manager
	metrics *metrics.Collector
	closed  bool
	closeMu sync.Mutex

	descMu    sync.RWMutex
	descCache map[string]*result.DbResult
}

// NewDatabase dials nothing up front beyond what Config.MinSessions warms;
// the pool lazily dials on first Acquire.
func NewDatabase(cfg Config) *MariaDBDatabase {
	return &MariaDBDatabase{
		pool:      pool.New(cfg.poolConfig()),
		sql:       sqlbuilder.New(cfg.InstanceSuffix),
		locks:     lock.NewManager().WithMetrics(cfg.Metrics),
		metrics:   cfg.Metrics,
		descCache: make(map[string]*result.DbResult),
	}
}

// IsLive implements result.Updater: a DbResult produced by this Database can
// still be Update()d as long as the Database itself has not been closed.
func (d *MariaDBDatabase) IsLive() bool {
	d.closeMu.Lock()
	defer d.closeMu.Unlock()
	return !d.closed
}

// UpdateRow implements result.Updater, used by DbResult.Update to push a
// row-level change back to the server.
func (d *MariaDBDatabase) UpdateRow(dbName, tableName string, primaryKey, set []result.FieldValue) error {
	if !d.IsLive() {
		return dberrors.NewInvalidArgument("database is closed")
	}
	query, err := d.sql.Update(dbName, tableName, set, primaryKey)
	if err != nil {
		return err
	}
	_, err = d.dispatch(context.Background(), query)
	return err
}

// Close shuts down the underlying pool. Outstanding Tx/RecordLock handles
// become invalid; a careful caller commits or rolls back before closing.
func (d *MariaDBDatabase) Close() error {
	d.closeMu.Lock()
	d.closed = true
	d.closeMu.Unlock()
	d.pool.Close()
	return nil
}

// Stats exposes pool occupancy for the admin surface (§4.10).
func (d *MariaDBDatabase) Stats() pool.Stats { return d.pool.Stats() }

// LockSnapshot exposes the table/record lock registries for the admin
// surface (§4.10), delegating to lock.Manager.Snapshot.
func (d *MariaDBDatabase) LockSnapshot() (tables, records []string) { return d.locks.Snapshot() }

// DescribeCacheSnapshot exposes the memoized "db.table" keys currently held
// in the description cache, for the admin surface (§4.10).
func (d *MariaDBDatabase) DescribeCacheSnapshot() []string {
	d.descMu.RLock()
	defer d.descMu.RUnlock()
	keys := make([]string, 0, len(d.descCache))
	for k := range d.descCache {
		keys = append(keys, k)
	}
	return keys
}

// invalidateDescribe drops a table's memoized DESCRIBE result, called by
// every DDL operation that could change it (§4.8 description cache).
func (d *MariaDBDatabase) invalidateDescribe(db, table string) {
	d.descMu.Lock()
	defer d.descMu.Unlock()
	delete(d.descCache, db+"."+table)
}

// operationName resolves the public façade method that called dispatch, for
// per-operation metrics labeling (§4.10), by walking up the stack from
// dispatch's caller to the first exported function name.
func operationName() string {
	for skip := 2; skip < 8; skip++ {
		pc, _, _, ok := runtime.Caller(skip)
		if !ok {
			break
		}
		name := runtime.FuncForPC(pc).Name()
		if idx := strings.LastIndex(name, "."); idx >= 0 {
			name = name[idx+1:]
		}
		if name != "" && name[0] >= 'A' && name[0] <= 'Z' {
			return name
		}
	}
	return "unknown"
}

// dispatch acquires a session, sends query, reads the reply, and releases
// the session — retrying exactly once against a freshly dialed session on
// ConnectionLost or ProtocolError (§4.8, §7). It never retries ServerError.
func (d *MariaDBDatabase) dispatch(ctx context.Context, query string) (*protocol.Reply, error) {
	if !d.IsLive() {
		return nil, dberrors.NewInvalidArgument("database is closed")
	}
	op := operationName()
	start := time.Now()
	defer func() { d.metrics.QueryDuration(op, time.Since(start).Seconds()) }()

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			d.metrics.OperationRetried(op)
		}

		s, err := d.pool.Acquire(ctx)
		if err != nil {
			return nil, err
		}

		reply, err := sendAndRead(s, query)
		if err == nil {
			s.Release()
			return reply, nil
		}

		var srvErr *dberrors.ServerError
		if errors.As(err, &srvErr) {
			// A well-formed Error packet leaves the session usable.
			s.Release()
			return nil, err
		}
		s.Destroy()
		lastErr = err
		if !retryable(err) {
			return nil, err
		}
	}
	return nil, lastErr
}

// sendAndRead performs one COM_QUERY exchange on an already-acquired
// session.
func sendAndRead(s *pool.Session, query string) (*protocol.Reply, error) {
	if err := protocol.SendQuery(s.Conn(), query); err != nil {
		return nil, err
	}
	reply, err := protocol.ReadReply(s.Conn())
	if err != nil {
		return nil, err
	}
	if reply.Kind == protocol.ReplyError {
		return nil, reply.Err
	}
	return reply, nil
}

// retryable reports whether err is the kind of transient failure §7 allows
// exactly one automatic retry for.
func retryable(err error) bool {
	var connLost *dberrors.ConnectionLost
	var protoErr *dberrors.ProtocolError
	return errors.As(err, &connLost) || errors.As(err, &protoErr)
}
