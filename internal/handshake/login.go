package handshake

import (
	"crypto/tls"
	"fmt"

	"github.com/skymond-software/mariadb-client/internal/dberrors"
	"github.com/skymond-software/mariadb-client/internal/wire"
)

// defaultCollation is utf8_general_ci.
const defaultCollation = 0x21

// Config carries what Perform needs to complete one login: the credentials
// (§6 Credentials) and an optional TLS config that, when non-nil and the
// server advertises CLIENT_SSL, triggers the SSLRequest upgrade.
type Config struct {
	Username  string
	Password  string
	HashKind  HashKind
	Database  string
	Collation byte
	TLSConfig *tls.Config
}

// Result is what a completed handshake yields: the capability bits actually
// negotiated and the server's self-reported identity.
type Result struct {
	Capabilities  uint64
	ConnectionID  uint32
	ServerVersion string
}

// Perform runs the full connection phase on conn: reads the server
// greeting, optionally upgrades to TLS, sends the login packet, and follows
// any AuthSwitchRequest re-challenges until the server replies OK or Error
// (§4.2). conn must be a freshly dialed, unauthenticated connection.
func Perform(conn *wire.Conn, cfg Config) (*Result, error) {
	conn.ResetSequence()

	greetPkt, err := conn.ReadPacket()
	if err != nil {
		return nil, &dberrors.ConnectionLost{Cause: err}
	}
	greeting, err := parseGreeting(greetPkt)
	if err != nil {
		return nil, err
	}

	collation := cfg.Collation
	if collation == 0 {
		collation = defaultCollation
	}

	clientCaps := requiredClientCaps
	if cfg.Database != "" {
		clientCaps |= ClientConnectWithDB
	}

	if cfg.TLSConfig != nil && greeting.Capabilities&ClientSSL != 0 {
		clientCaps |= ClientSSL
		if err := conn.WritePacket(buildSSLRequest(clientCaps, collation)); err != nil {
			return nil, &dberrors.ConnectionLost{Cause: err}
		}
		tlsConn := tls.Client(conn.Raw(), cfg.TLSConfig)
		if err := tlsConn.Handshake(); err != nil {
			return nil, &dberrors.ConnectionLost{Cause: fmt.Errorf("TLS upgrade: %w", err)}
		}
		conn.Upgrade(tlsConn)
	}

	authResp := nativePasswordResponse([]byte(cfg.Password), cfg.HashKind, greeting.AuthData)
	loginPkt := buildLoginPacket(clientCaps, collation, cfg.Username, cfg.Database, greeting.AuthPluginName, authResp)
	if err := conn.WritePacket(loginPkt); err != nil {
		return nil, &dberrors.ConnectionLost{Cause: err}
	}

	for {
		reply, err := conn.ReadPacket()
		if err != nil {
			return nil, &dberrors.ConnectionLost{Cause: err}
		}
		if len(reply) == 0 {
			return nil, &dberrors.ProtocolError{Reason: "empty auth reply"}
		}

		switch reply[0] {
		case 0x00: // OK
			return &Result{
				Capabilities:  clientCaps,
				ConnectionID:  greeting.ConnectionID,
				ServerVersion: greeting.ServerVersion,
			}, nil

		case 0xff: // Error
			return nil, decodeErrorPacket(reply)

		case 0xfe: // AuthSwitchRequest — re-challenge with a (possibly new) plugin
			plugin, scramble, err := parseAuthSwitch(reply)
			if err != nil {
				return nil, err
			}
			if plugin != "mysql_native_password" {
				return nil, &dberrors.HandshakeFailed{Message: "unsupported auth plugin: " + plugin}
			}
			resp := nativePasswordResponse([]byte(cfg.Password), cfg.HashKind, scramble)
			if err := conn.WritePacket(resp); err != nil {
				return nil, &dberrors.ConnectionLost{Cause: err}
			}
			continue

		default:
			return nil, &dberrors.ProtocolError{Reason: fmt.Sprintf("unexpected auth reply byte 0x%02x", reply[0])}
		}
	}
}

// loginHeader builds the 36-byte field prefix shared by SSLRequest and
// HandshakeResponse41 (§4.2): capability bits, max packet size, collation,
// 23 reserved zero bytes, then the high 4 bytes of the capability set. This
// client's own bits never go past bit 21 (capabilities.go), so that last
// field is zero in practice, but it is still emitted so a future bit above
// 31 — or a server that rejects a short SSLRequest — is not silently
// truncated to 32 bytes.
func loginHeader(caps uint64, collation byte) []byte {
	head := make([]byte, 36)
	putU32(head[0:4], uint32(caps))
	putU32(head[4:8], MaxPacketSize)
	head[8] = collation
	putU32(head[32:36], uint32(caps>>32))
	return head
}

// buildSSLRequest builds the SSLRequest payload: capability bits, max packet
// size, collation, 23 reserved zero bytes, and the high 4 bytes of the
// capability set (§4.2).
func buildSSLRequest(caps uint64, collation byte) []byte {
	return loginHeader(caps, collation)
}

// buildLoginPacket builds the HandshakeResponse41 payload (§4.2): the shared
// loginHeader, then the rest of the fields.
func buildLoginPacket(caps uint64, collation byte, username, database, pluginName string, authResp []byte) []byte {
	var buf []byte
	buf = append(buf, loginHeader(caps, collation)...)
	buf = append(buf, []byte(username)...)
	buf = append(buf, 0)
	buf = append(buf, byte(len(authResp)))
	buf = append(buf, authResp...)
	if caps&ClientConnectWithDB != 0 {
		buf = append(buf, []byte(database)...)
		buf = append(buf, 0)
	}
	buf = append(buf, []byte(pluginName)...)
	buf = append(buf, 0)
	buf = append(buf, 0) // connection-attributes length (zero, none sent)
	return buf
}

// parseAuthSwitch parses an AuthSwitchRequest: 0xFE(1) + plugin(NUL-term) +
// scramble data (trailing NUL trimmed).
func parseAuthSwitch(pkt []byte) (plugin string, scramble []byte, err error) {
	if len(pkt) < 2 {
		return "", nil, &dberrors.ProtocolError{Reason: "malformed AuthSwitchRequest"}
	}
	c := wire.NewCursor(pkt[1:])
	plugin, err = c.ReadNulString()
	if err != nil {
		return "", nil, &dberrors.ProtocolError{Reason: "malformed AuthSwitchRequest plugin name", Cause: err}
	}
	scramble = pkt[1+c.Pos():]
	if n := len(scramble); n > 0 && scramble[n-1] == 0 {
		scramble = scramble[:n-1]
	}
	return plugin, scramble, nil
}

func putU32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}
