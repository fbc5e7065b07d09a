package handshake

import (
	"bytes"
	"crypto/sha1" //nolint:gosec
	"net"
	"testing"

	"github.com/skymond-software/mariadb-client/internal/wire"
)

// fakeGreeting builds a minimal, wire-correct Protocol::HandshakeV10 packet
// carrying a 20-byte scramble, mirroring what a real mariadbd sends.
func fakeGreeting(scramble []byte) []byte {
	var buf []byte
	buf = append(buf, 10)                    // protocol version
	buf = append(buf, []byte("5.5.5-MariaDB")...)
	buf = append(buf, 0)
	buf = append(buf, 1, 0, 0, 0) // connection id
	buf = append(buf, scramble[:8]...)
	buf = append(buf, 0) // reserved
	caps := uint64(ClientProtocol41 | ClientSecureConnection | ClientPluginAuth)
	buf = append(buf, byte(caps), byte(caps>>8))
	buf = append(buf, 0x21)    // collation
	buf = append(buf, 2, 0)    // status flags
	buf = append(buf, byte(caps>>16), byte(caps>>24))
	buf = append(buf, byte(len(scramble)+1))
	buf = append(buf, make([]byte, 6)...)  // reserved
	buf = append(buf, 0, 0, 0, 0)          // extended capabilities
	buf = append(buf, scramble[8:]...)
	buf = append(buf, 0) // trailing NUL after scramble part 2
	buf = append(buf, []byte("mysql_native_password")...)
	buf = append(buf, 0)
	return buf
}

func writePacket(t *testing.T, conn net.Conn, seq byte, payload []byte) {
	t.Helper()
	hdr := []byte{byte(len(payload)), byte(len(payload) >> 8), byte(len(payload) >> 16), seq}
	if _, err := conn.Write(hdr); err != nil {
		t.Fatalf("write header: %v", err)
	}
	if _, err := conn.Write(payload); err != nil {
		t.Fatalf("write payload: %v", err)
	}
}

func readPacket(t *testing.T, conn net.Conn) (seq byte, payload []byte) {
	t.Helper()
	hdr := make([]byte, 4)
	if _, err := readFull(conn, hdr); err != nil {
		t.Fatalf("read header: %v", err)
	}
	n := int(hdr[0]) | int(hdr[1])<<8 | int(hdr[2])<<16
	seq = hdr[3]
	payload = make([]byte, n)
	if n > 0 {
		if _, err := readFull(conn, payload); err != nil {
			t.Fatalf("read payload: %v", err)
		}
	}
	return seq, payload
}

func readFull(conn net.Conn, buf []byte) (int, error) {
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

func TestPerformSuccessfulLogin(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	scramble := bytes.Repeat([]byte{0x01}, 20)
	done := make(chan error, 1)
	go func() {
		writePacket(t, server, 0, fakeGreeting(scramble))
		_, loginPkt := readPacket(t, server)

		h1 := sha1.Sum([]byte("secret")) //nolint:gosec
		h2 := sha1.Sum(h1[:])            //nolint:gosec
		h := sha1.New()                  //nolint:gosec
		h.Write(scramble)
		h.Write(h2[:])
		want := make([]byte, 20)
		h3 := h.Sum(nil)
		for i := range want {
			want[i] = h1[i] ^ h3[i]
		}
		if !bytes.Contains(loginPkt, want) {
			done <- errAssertion("login packet did not contain expected auth response")
			return
		}
		writePacket(t, server, 2, []byte{0x00, 0, 0, 2, 0, 0}) // OK packet
		done <- nil
	}()

	cc := wire.NewConn(client)
	res, err := Perform(cc, Config{Username: "root", Password: "secret"})
	if err != nil {
		t.Fatalf("Perform: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("server goroutine: %v", err)
	}
	if res.ConnectionID != 1 {
		t.Fatalf("ConnectionID = %d, want 1", res.ConnectionID)
	}
}

func TestPerformServerError(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	scramble := bytes.Repeat([]byte{0x02}, 20)
	go func() {
		writePacket(t, server, 0, fakeGreeting(scramble))
		readPacket(t, server)
		errPkt := append([]byte{0xff, 0x15, 0x04, '#'}, []byte("28000Access denied")...)
		writePacket(t, server, 2, errPkt)
	}()

	cc := wire.NewConn(client)
	_, err := Perform(cc, Config{Username: "root", Password: "wrong"})
	if err == nil {
		t.Fatalf("expected error")
	}
}

type errAssertion string

func (e errAssertion) Error() string { return string(e) }
