package pool

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/skymond-software/mariadb-client/internal/handshake"
)

// fakeServer accepts connections on loopback and completes a trivial
// successful MariaDB handshake on each, mirroring the style of
// handshake_test.go's fakeGreeting helper.
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
			go serveOneHandshake(t, conn)
		}
	}()
	go func() {
		<-done
		ln.Close()
	}()

	return ln.Addr().String(), func() { close(done) }
}

func serveOneHandshake(t *testing.T, conn net.Conn) {
	defer func() { recover() }()
	scramble := bytes.Repeat([]byte{0x03}, 20)
	writeTestPacket(conn, 0, fakeHandshakeGreeting(scramble))
	readOnePacket(conn) // login packet
	writeTestPacket(conn, 2, []byte{0x00, 0, 0, 2, 0, 0})

	// Keep the connection open, idly, so Ping's deadline-read sees a
	// timeout (alive) rather than EOF, matching a real idle server link.
	buf := make([]byte, 1)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	conn.Read(buf)
}

func fakeHandshakeGreeting(scramble []byte) []byte {
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

func writeTestPacket(conn net.Conn, seq byte, payload []byte) {
	hdr := []byte{byte(len(payload)), byte(len(payload) >> 8), byte(len(payload) >> 16), seq}
	conn.Write(hdr)
	if len(payload) > 0 {
		conn.Write(payload)
	}
}

func readOnePacket(conn net.Conn) []byte {
	hdr := make([]byte, 4)
	if _, err := readFullConn(conn, hdr); err != nil {
		return nil
	}
	n := int(hdr[0]) | int(hdr[1])<<8 | int(hdr[2])<<16
	buf := make([]byte, n)
	if n > 0 {
		readFullConn(conn, buf)
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

func testConfig(addr string, maxSessions int) Config {
	return Config{
		Address:        addr,
		DialTimeout:    time.Second,
		Login:          handshake.Config{Username: "root", Password: "secret"},
		MinSessions:    0,
		MaxSessions:    maxSessions,
		IdleTimeout:    time.Minute,
		MaxLifetime:    time.Hour,
		AcquireTimeout: 500 * time.Millisecond,
	}
}

func TestAcquireReleaseReusesSession(t *testing.T) {
	addr, stop := fakeServer(t)
	defer stop()

	p := New(testConfig(addr, 2))
	defer p.Close()

	ctx := context.Background()
	s1, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	s1.Release()

	s2, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if s1 != s2 {
		t.Fatalf("expected session reuse after release")
	}
	stats := p.Stats()
	if stats.Total != 1 {
		t.Fatalf("Total = %d, want 1", stats.Total)
	}
}

func TestAcquireExhaustionTimesOut(t *testing.T) {
	addr, stop := fakeServer(t)
	defer stop()

	cfg := testConfig(addr, 1)
	cfg.AcquireTimeout = 100 * time.Millisecond
	p := New(cfg)
	defer p.Close()

	ctx := context.Background()
	s1, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer s1.Release()

	_, err = p.Acquire(ctx)
	if err == nil {
		t.Fatalf("expected ResourceExhausted when pool is saturated")
	}
}

func TestDestroyDropsSessionFromCirculation(t *testing.T) {
	addr, stop := fakeServer(t)
	defer stop()

	p := New(testConfig(addr, 1))
	defer p.Close()

	ctx := context.Background()
	s, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	s.Destroy()

	if stats := p.Stats(); stats.Total != 0 {
		t.Fatalf("Total = %d, want 0 after destroy", stats.Total)
	}

	s2, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire after destroy: %v", err)
	}
	s2.Release()
}

func TestCloseRejectsFurtherAcquire(t *testing.T) {
	addr, stop := fakeServer(t)
	defer stop()

	p := New(testConfig(addr, 1))
	p.Close()

	_, err := p.Acquire(context.Background())
	if err == nil {
		t.Fatalf("expected error acquiring from a closed pool")
	}
}
