package handshake

import (
	"github.com/skymond-software/mariadb-client/internal/dberrors"
	"github.com/skymond-software/mariadb-client/internal/wire"
)

// decodeErrorPacket decodes an Error packet: 0xFF(1) + code(2) +
// optional '#'(1) + sqlstate(5) + message. The '#'/sqlstate pair is only
// present on protocol 4.1+ servers, which is the only dialect this client
// speaks, but a defensive check keeps older/malformed replies from panicking.
// Every Error packet this package sees arrives before login completes, so it
// is returned as HandshakeFailed.
func decodeErrorPacket(pkt []byte) *dberrors.HandshakeFailed {
	c := wire.NewCursor(pkt)
	if _, err := c.ReadU8(); err != nil { // 0xFF sentinel
		return &dberrors.HandshakeFailed{Message: "malformed error packet"}
	}
	code, err := c.ReadU16()
	if err != nil {
		return &dberrors.HandshakeFailed{Message: "malformed error packet"}
	}

	var sqlState string
	rest := pkt[c.Pos():]
	if len(rest) >= 6 && rest[0] == '#' {
		sqlState = string(rest[1:6])
		rest = rest[6:]
	}

	return &dberrors.HandshakeFailed{Code: code, SQLState: sqlState, Message: string(rest)}
}
