package handshake

import (
	"github.com/skymond-software/mariadb-client/internal/dberrors"
	"github.com/skymond-software/mariadb-client/internal/wire"
)

// Greeting is the parsed Protocol::HandshakeV10 packet the server sends on
// a fresh connection (§4.2).
type Greeting struct {
	ProtocolVersion byte
	ServerVersion   string
	ConnectionID    uint32
	Capabilities    uint64
	Collation       byte
	StatusFlags     uint16
	AuthPluginName  string
	AuthData        []byte // scramble part 1 (8 bytes) || part 2, NUL trimmed
}

// parseGreeting parses the server's initial handshake packet in the exact
// field order specified in §4.2, mirroring original_source/src/MariaDbLib.c.
func parseGreeting(pkt []byte) (*Greeting, error) {
	if len(pkt) < 1 {
		return nil, &dberrors.ProtocolError{Reason: "empty server greeting"}
	}
	if pkt[0] == 0xff {
		return nil, decodeErrorPacket(pkt)
	}

	c := wire.NewCursor(pkt)
	g := &Greeting{}

	pv, err := c.ReadU8()
	if err != nil {
		return nil, shortGreeting(err)
	}
	g.ProtocolVersion = pv

	ver, err := c.ReadNulString()
	if err != nil {
		return nil, shortGreeting(err)
	}
	g.ServerVersion = ver

	connID, err := c.ReadU32()
	if err != nil {
		return nil, shortGreeting(err)
	}
	g.ConnectionID = connID

	scramble1, err := c.ReadFixed(8)
	if err != nil {
		return nil, shortGreeting(err)
	}
	authData := append([]byte{}, scramble1...)

	if err := c.Skip(1); err != nil { // reserved
		return nil, shortGreeting(err)
	}

	capLow, err := c.ReadU16()
	if err != nil {
		return nil, shortGreeting(err)
	}

	collation, err := c.ReadU8()
	if err != nil {
		return nil, shortGreeting(err)
	}
	g.Collation = collation

	statusFlags, err := c.ReadU16()
	if err != nil {
		return nil, shortGreeting(err)
	}
	g.StatusFlags = statusFlags

	capHigh, err := c.ReadU16()
	if err != nil {
		return nil, shortGreeting(err)
	}

	var pluginDataLen byte
	if c.Remaining() > 0 {
		pluginDataLen, err = c.ReadU8()
		if err != nil {
			return nil, shortGreeting(err)
		}
	}

	if err := c.Skip(6); err != nil { // reserved
		return nil, shortGreeting(err)
	}

	capExtra, err := c.ReadU32()
	if err != nil {
		return nil, shortGreeting(err)
	}
	g.Capabilities = uint64(capLow) | uint64(capHigh)<<16 | uint64(capExtra)<<32

	part2Len := int(pluginDataLen) - 9
	if part2Len < 12 {
		part2Len = 12
	}
	if part2Len > c.Remaining() {
		part2Len = c.Remaining()
	}
	if part2Len > 0 {
		part2, err := c.ReadFixed(part2Len)
		if err != nil {
			return nil, shortGreeting(err)
		}
		authData = append(authData, part2...)
	}
	if err := c.Skip(1); err != nil { // reserved trailing byte after scramble part 2
		// Some servers omit the final reserved byte when the remaining
		// buffer is exactly the plugin name; treat as non-fatal here and
		// fall through to reading whatever is left as the plugin name.
	}

	if g.Capabilities&ClientPluginAuth != 0 && c.Remaining() > 0 {
		name, err := c.ReadNulString()
		if err == nil {
			g.AuthPluginName = name
		}
	}
	if g.AuthPluginName == "" {
		g.AuthPluginName = "mysql_native_password"
	}
	// Trim a trailing NUL some servers include in the final scramble chunk.
	if n := len(authData); n > 0 && authData[n-1] == 0 {
		authData = authData[:n-1]
	}
	g.AuthData = authData

	return g, nil
}

func shortGreeting(err error) error {
	return &dberrors.ProtocolError{Reason: "malformed server greeting", Cause: err}
}
