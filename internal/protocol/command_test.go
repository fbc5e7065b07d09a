package protocol

import (
	"net"
	"testing"

	"github.com/skymond-software/mariadb-client/internal/result"
	"github.com/skymond-software/mariadb-client/internal/wire"
)

func writeTestPacket(t *testing.T, conn net.Conn, seq byte, payload []byte) {
	t.Helper()
	hdr := []byte{byte(len(payload)), byte(len(payload) >> 8), byte(len(payload) >> 16), seq}
	if _, err := conn.Write(hdr); err != nil {
		t.Fatalf("write header: %v", err)
	}
	if len(payload) > 0 {
		if _, err := conn.Write(payload); err != nil {
			t.Fatalf("write payload: %v", err)
		}
	}
}

func lenencStr(s string) []byte {
	return wire.EncodeLenencString([]byte(s))
}

func fakeColumnDef(schema, table, name string, colType ColumnType) []byte {
	var buf []byte
	buf = append(buf, lenencStr("def")...)
	buf = append(buf, lenencStr(schema)...)
	buf = append(buf, lenencStr(table)...)
	buf = append(buf, lenencStr(table)...) // org-table
	buf = append(buf, lenencStr(name)...)
	buf = append(buf, lenencStr(name)...) // org-name
	buf = append(buf, wire.EncodeLEI(12)...)
	buf = append(buf, 0x21, 0x00) // charset
	buf = append(buf, 0, 0, 0, 0) // column length
	buf = append(buf, byte(colType))
	buf = append(buf, 0, 0) // flags
	buf = append(buf, 0)    // decimals
	buf = append(buf, 0, 0) // filler
	return buf
}

func TestReadReplyOK(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		readPacketTest(t, server) // query
		ok := []byte{0x00}
		ok = append(ok, wire.EncodeLEI(3)...) // affected rows
		ok = append(ok, wire.EncodeLEI(7)...) // last insert id
		ok = append(ok, 2, 0)                 // status flags
		ok = append(ok, 0, 0)                 // warnings
		writeTestPacket(t, server, 1, ok)
	}()

	cc := wire.NewConn(client)
	if err := SendQuery(cc, "INSERT INTO t VALUES (1)"); err != nil {
		t.Fatalf("SendQuery: %v", err)
	}
	reply, err := ReadReply(cc)
	if err != nil {
		t.Fatalf("ReadReply: %v", err)
	}
	if reply.Kind != ReplyOK {
		t.Fatalf("Kind = %v, want ReplyOK", reply.Kind)
	}
	if reply.OK.AffectedRows != 3 || reply.OK.LastInsertID != 7 {
		t.Fatalf("OK = %+v, want AffectedRows=3 LastInsertID=7", reply.OK)
	}
}

func TestReadReplyError(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		readPacketTest(t, server)
		errPkt := append([]byte{0xff, 0x2a, 0x04, '#'}, []byte("42S02Unknown table")...)
		writeTestPacket(t, server, 1, errPkt)
	}()

	cc := wire.NewConn(client)
	SendQuery(cc, "SELECT * FROM missing")
	reply, err := ReadReply(cc)
	if err != nil {
		t.Fatalf("ReadReply: %v", err)
	}
	if reply.Kind != ReplyError {
		t.Fatalf("Kind = %v, want ReplyError", reply.Kind)
	}
	if reply.Err.SQLState != "42S02" || reply.Err.Code != 0x042a {
		t.Fatalf("Err = %+v", reply.Err)
	}
}

func TestReadReplyResultSet(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		readPacketTest(t, server)

		colCountPkt := wire.EncodeLEI(2)
		writeTestPacket(t, server, 1, colCountPkt)
		writeTestPacket(t, server, 2, fakeColumnDef("app", "users", "id", ColTypeLong))
		writeTestPacket(t, server, 3, fakeColumnDef("app", "users", "name", ColTypeVarString))
		writeTestPacket(t, server, 4, []byte{0xFE, 0, 0, 2, 0}) // EOF after column defs

		row1 := append(lenencStr("1"), lenencStr("alice")...)
		writeTestPacket(t, server, 5, row1)
		writeTestPacket(t, server, 6, []byte{0xFE, 0, 0, 2, 0}) // trailing EOF
	}()

	cc := wire.NewConn(client)
	SendQuery(cc, "SELECT id, name FROM users")
	reply, err := ReadReply(cc)
	if err != nil {
		t.Fatalf("ReadReply: %v", err)
	}
	if reply.Kind != ReplyResultSet {
		t.Fatalf("Kind = %v, want ReplyResultSet", reply.Kind)
	}
	r := reply.Result.Result
	if r.RecordCount() != 1 {
		t.Fatalf("RecordCount = %d, want 1", r.RecordCount())
	}
	if got := r.GetByName(1, "id", result.TypeInt32); got != int32(1) {
		t.Fatalf("id = %v, want 1", got)
	}
	if got := r.GetByName(1, "name", result.TypeString); got != "alice" {
		t.Fatalf("name = %v, want alice", got)
	}
	if reply.Result.Columns[0].schema != "app" || reply.Result.Columns[0].table != "users" {
		t.Fatalf("columns = %+v", reply.Result.Columns)
	}
}

func readPacketTest(t *testing.T, conn net.Conn) []byte {
	t.Helper()
	hdr := make([]byte, 4)
	readFullTest(t, conn, hdr)
	n := int(hdr[0]) | int(hdr[1])<<8 | int(hdr[2])<<16
	buf := make([]byte, n)
	if n > 0 {
		readFullTest(t, conn, buf)
	}
	return buf
}

func readFullTest(t *testing.T, conn net.Conn, buf []byte) {
	t.Helper()
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			t.Fatalf("read: %v", err)
		}
	}
}
