package mariadb

import (
	"bytes"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/skymond-software/mariadb-client/internal/handshake"
	"github.com/skymond-software/mariadb-client/internal/protocol"
	"github.com/skymond-software/mariadb-client/internal/result"
	"github.com/skymond-software/mariadb-client/internal/sqlbuilder"
	"github.com/skymond-software/mariadb-client/internal/wire"
)

// fakeServer accepts one MariaDB-style handshake per connection, then
// answers every subsequent COM_QUERY by matching the query's leading
// keyword, mirroring the fake-server style of internal/pool's tests and
// internal/protocol's command_test.go.
func fakeServer(t *testing.T) (addr string, stop func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	done := make(chan struct{})
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go serveConn(conn)
		}
	}()
	go func() { <-done; ln.Close() }()
	return ln.Addr().String(), func() { close(done) }
}

func serveConn(conn net.Conn) {
	defer func() { recover() }()
	scramble := bytes.Repeat([]byte{0x03}, 20)
	writePacket(conn, 0, fakeGreeting(scramble))
	readPacket(conn) // login packet
	writePacket(conn, 2, okPacket(0, 0))

	seq := byte(0)
	for {
		payload := readPacket(conn)
		if payload == nil {
			return
		}
		if len(payload) == 0 || payload[0] != 0x03 { // COM_QUERY
			return
		}
		query := string(payload[1:])
		seq = 0
		writeReply(conn, &seq, query)
	}
}

func writeReply(conn net.Conn, seq *byte, query string) {
	upper := strings.ToUpper(strings.TrimSpace(query))
	switch {
	case strings.HasPrefix(upper, "SELECT COUNT"):
		writeCountReply(conn, seq)
	case strings.HasPrefix(upper, "SELECT") || strings.HasPrefix(upper, "SHOW"):
		writeSelectUsersReply(conn, seq)
	case strings.HasPrefix(upper, "DESCRIBE"):
		writeDescribeReply(conn, seq)
	default:
		*seq++
		writePacket(conn, *seq, okPacket(1, 0))
	}
}

func writeSelectUsersReply(conn net.Conn, seq *byte) {
	*seq++
	writePacket(conn, *seq, wire.EncodeLEI(2))
	*seq++
	writePacket(conn, *seq, fakeColumnDef("app", "users", "id", protocol.ColTypeLong))
	*seq++
	writePacket(conn, *seq, fakeColumnDef("app", "users", "name", protocol.ColTypeVarchar))
	*seq++
	writePacket(conn, *seq, []byte{0xFE, 0, 0, 2, 0})
	row := append(lenencStr("1"), lenencStr("alice")...)
	*seq++
	writePacket(conn, *seq, row)
	*seq++
	writePacket(conn, *seq, []byte{0xFE, 0, 0, 2, 0})
}

func writeDescribeReply(conn net.Conn, seq *byte) {
	cols := []string{"Field", "Type", "Null", "Key", "Default", "Extra"}
	*seq++
	writePacket(conn, *seq, wire.EncodeLEI(uint64(len(cols))))
	for _, c := range cols {
		*seq++
		writePacket(conn, *seq, fakeColumnDef("app", "users", c, protocol.ColTypeVarchar))
	}
	*seq++
	writePacket(conn, *seq, []byte{0xFE, 0, 0, 2, 0})

	row := lenencStr("id")
	row = append(row, lenencStr("int(11)")...)
	row = append(row, lenencStr("NO")...)
	row = append(row, lenencStr("PRI")...)
	row = append(row, 0xFB) // NULL default
	row = append(row, lenencStr("auto_increment")...)
	*seq++
	writePacket(conn, *seq, row)
	*seq++
	writePacket(conn, *seq, []byte{0xFE, 0, 0, 2, 0})
}

func writeCountReply(conn net.Conn, seq *byte) {
	*seq++
	writePacket(conn, *seq, wire.EncodeLEI(1))
	*seq++
	writePacket(conn, *seq, fakeColumnDef("app", "users", "COUNT(*)", protocol.ColTypeLongLong))
	*seq++
	writePacket(conn, *seq, []byte{0xFE, 0, 0, 2, 0})
	*seq++
	writePacket(conn, *seq, lenencStr("3"))
	*seq++
	writePacket(conn, *seq, []byte{0xFE, 0, 0, 2, 0})
}

func okPacket(affectedRows, lastInsertID uint64) []byte {
	ok := []byte{0x00}
	ok = append(ok, wire.EncodeLEI(affectedRows)...)
	ok = append(ok, wire.EncodeLEI(lastInsertID)...)
	ok = append(ok, 2, 0)
	ok = append(ok, 0, 0)
	return ok
}

func lenencStr(s string) []byte { return wire.EncodeLenencString([]byte(s)) }

func fakeColumnDef(schema, table, name string, colType protocol.ColumnType) []byte {
	var buf []byte
	buf = append(buf, lenencStr("def")...)
	buf = append(buf, lenencStr(schema)...)
	buf = append(buf, lenencStr(table)...)
	buf = append(buf, lenencStr(table)...)
	buf = append(buf, lenencStr(name)...)
	buf = append(buf, lenencStr(name)...)
	buf = append(buf, wire.EncodeLEI(12)...)
	buf = append(buf, 0x21, 0x00)
	buf = append(buf, 0, 0, 0, 0)
	buf = append(buf, byte(colType))
	buf = append(buf, 0, 0)
	buf = append(buf, 0)
	buf = append(buf, 0, 0)
	return buf
}

func fakeGreeting(scramble []byte) []byte {
	var buf []byte
	buf = append(buf, 10)
	buf = append(buf, []byte("5.5.5-MariaDB")...)
	buf = append(buf, 0)
	buf = append(buf, 1, 0, 0, 0)
	buf = append(buf, scramble[:8]...)
	buf = append(buf, 0)
	caps := uint64(1<<9 | 1<<13 | 1<<19)
	buf = append(buf, byte(caps), byte(caps>>8))
	buf = append(buf, 0x21)
	buf = append(buf, 2, 0)
	buf = append(buf, byte(caps>>16), byte(caps>>24))
	buf = append(buf, byte(len(scramble)+1))
	buf = append(buf, make([]byte, 6)...)
	buf = append(buf, 0, 0, 0, 0)
	buf = append(buf, scramble[8:]...)
	buf = append(buf, 0)
	buf = append(buf, []byte("mysql_native_password")...)
	buf = append(buf, 0)
	return buf
}

func writePacket(conn net.Conn, seq byte, payload []byte) {
	hdr := []byte{byte(len(payload)), byte(len(payload) >> 8), byte(len(payload) >> 16), seq}
	conn.Write(hdr)
	if len(payload) > 0 {
		conn.Write(payload)
	}
}

func readPacket(conn net.Conn) []byte {
	hdr := make([]byte, 4)
	if _, err := readFullConn(conn, hdr); err != nil {
		return nil
	}
	n := int(hdr[0]) | int(hdr[1])<<8 | int(hdr[2])<<16
	buf := make([]byte, n)
	if n > 0 {
		if _, err := readFullConn(conn, buf); err != nil {
			return nil
		}
	}
	return buf
}

func readFullConn(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func newTestDatabase(t *testing.T, addr string) *MariaDBDatabase {
	t.Helper()
	return NewDatabase(Config{
		Address:        addr,
		DialTimeout:    time.Second,
		Login:          handshake.Config{Username: "root", Password: "secret"},
		MaxSessions:    4,
		IdleTimeout:    time.Minute,
		MaxLifetime:    time.Hour,
		AcquireTimeout: time.Second,
	})
}

func TestGetValuesReturnsRowsAndSetsPrimaryKey(t *testing.T) {
	addr, stop := fakeServer(t)
	defer stop()
	db := newTestDatabase(t, addr)
	defer db.Close()

	r, err := db.GetValues(context.Background(), "app", "users", nil, "")
	if err != nil {
		t.Fatalf("GetValues: %v", err)
	}
	if r.RecordCount() != 1 {
		t.Fatalf("RecordCount = %d, want 1", r.RecordCount())
	}
	if got := r.GetByName(1, "name", result.TypeString); got != "alice" {
		t.Fatalf("name = %v, want alice", got)
	}
	if len(r.PrimaryKey) != 1 || r.PrimaryKey[0] != "id" {
		t.Fatalf("PrimaryKey = %v, want [id]", r.PrimaryKey)
	}
}

func TestAddRecordSendsInsert(t *testing.T) {
	addr, stop := fakeServer(t)
	defer stop()
	db := newTestDatabase(t, addr)
	defer db.Close()

	err := db.AddRecord(context.Background(), "app", "users",
		result.FieldValue{Name: "name", Value: "bob"})
	if err != nil {
		t.Fatalf("AddRecord: %v", err)
	}
}

func TestDescribeTableIsCachedUntilInvalidated(t *testing.T) {
	addr, stop := fakeServer(t)
	defer stop()
	db := newTestDatabase(t, addr)
	defer db.Close()
	ctx := context.Background()

	first, err := db.DescribeTable(ctx, "app", "users")
	if err != nil {
		t.Fatalf("DescribeTable: %v", err)
	}
	second, err := db.DescribeTable(ctx, "app", "users")
	if err != nil {
		t.Fatalf("DescribeTable (cached): %v", err)
	}
	if first != second {
		t.Fatalf("expected the cached DescribeTable result to be reused")
	}

	if err := db.AddField(ctx, "app", "users", sqlbuilder.FieldSpec{Name: "age", SQLType: "INT"}); err != nil {
		t.Fatalf("AddField: %v", err)
	}
	third, err := db.DescribeTable(ctx, "app", "users")
	if err != nil {
		t.Fatalf("DescribeTable (post-invalidate): %v", err)
	}
	if first == third {
		t.Fatalf("expected a fresh DescribeTable result after AddField invalidated the cache")
	}
}

func TestBeginTransactionCommit(t *testing.T) {
	addr, stop := fakeServer(t)
	defer stop()
	db := newTestDatabase(t, addr)
	defer db.Close()

	tx, err := db.BeginTransaction(context.Background())
	if err != nil {
		t.Fatalf("BeginTransaction: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := tx.Commit(); err == nil {
		t.Fatalf("expected error committing an already-closed Tx")
	}
}

func TestTransactionDataOperationsUseThePinnedSession(t *testing.T) {
	addr, stop := fakeServer(t)
	defer stop()
	db := newTestDatabase(t, addr)
	defer db.Close()
	ctx := context.Background()

	tx, err := db.BeginTransaction(ctx)
	if err != nil {
		t.Fatalf("BeginTransaction: %v", err)
	}
	sessionsAfterBegin := db.Stats().Total

	if err := tx.AddRecord(ctx, "app", "users", result.FieldValue{Name: "name", Value: "carol"}); err != nil {
		t.Fatalf("tx.AddRecord: %v", err)
	}
	if _, err := tx.GetValues(ctx, "app", "users", nil, ""); err != nil {
		t.Fatalf("tx.GetValues: %v", err)
	}
	if _, err := tx.DeleteRecords(ctx, "app", "users", result.FieldValue{Name: "id", Value: int64(42)}); err != nil {
		t.Fatalf("tx.DeleteRecords: %v", err)
	}

	if got := db.Stats().Total; got != sessionsAfterBegin {
		t.Fatalf("data operations inside the transaction dialed a new session: Total = %d, want %d", got, sessionsAfterBegin)
	}
	if got := db.Stats().Active; got != 1 {
		t.Fatalf("expected the transaction's session to still be pinned active, got Active = %d", got)
	}

	if err := tx.Rollback(); err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	if got := db.Stats().Active; got != 0 {
		t.Fatalf("expected the session released after Rollback, got Active = %d", got)
	}
}

func TestLockTablesThenUnlock(t *testing.T) {
	addr, stop := fakeServer(t)
	defer stop()
	db := newTestDatabase(t, addr)
	defer db.Close()

	tx, err := db.LockTables(context.Background(), map[string][]string{"app": {"users"}})
	if err != nil {
		t.Fatalf("LockTables: %v", err)
	}
	if !db.locks.HoldsAny(tx.lockOwner) {
		t.Fatalf("expected the lock manager to record this owner as holding a lock")
	}
	if err := tx.UnlockTables(); err != nil {
		t.Fatalf("UnlockTables: %v", err)
	}
	if db.locks.HoldsAny(tx.lockOwner) {
		t.Fatalf("expected locks released after UnlockTables")
	}
}

func TestStatsReflectsPoolOccupancy(t *testing.T) {
	addr, stop := fakeServer(t)
	defer stop()
	db := newTestDatabase(t, addr)
	defer db.Close()

	if _, err := db.GetDatabaseNames(context.Background()); err != nil {
		t.Fatalf("GetDatabaseNames: %v", err)
	}
	if stats := db.Stats(); stats.Total == 0 {
		t.Fatalf("expected at least one session dialed, got Stats=%+v", stats)
	}
}

func TestOperationsFailAfterClose(t *testing.T) {
	addr, stop := fakeServer(t)
	defer stop()
	db := newTestDatabase(t, addr)
	db.Close()

	if _, err := db.GetValues(context.Background(), "app", "users", nil, ""); err == nil {
		t.Fatalf("expected an error dispatching against a closed Database")
	}
}
