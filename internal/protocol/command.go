package protocol

import (
	"errors"
	"fmt"

	"github.com/skymond-software/mariadb-client/internal/dberrors"
	"github.com/skymond-software/mariadb-client/internal/wire"
)

// Command codes (§4.4).
const (
	ComQuery      byte = 0x03
	ComStatistics byte = 0x09
)

// ReplyKind classifies the server's first reply packet to a command.
type ReplyKind int

const (
	ReplyOK ReplyKind = iota
	ReplyError
	ReplyResultSet
)

// OK carries the fields of an OK packet (§4.4).
type OK struct {
	AffectedRows uint64
	LastInsertID uint64
	StatusFlags  uint16
	Warnings     uint16
}

// Reply is the classified result of one command exchange. Exactly one of
// OK, Err, or Result is meaningful, selected by Kind.
type Reply struct {
	Kind   ReplyKind
	OK     OK
	Err    *dberrors.ServerError
	Result *Decoded
}

// SendQuery writes a COM_QUERY command, resetting the sequence counter as
// required at the start of every client-initiated command (§4.4).
func SendQuery(conn *wire.Conn, query string) error {
	conn.ResetSequence()
	payload := make([]byte, 0, len(query)+1)
	payload = append(payload, ComQuery)
	payload = append(payload, query...)
	if err := conn.WritePacket(payload); err != nil {
		return &dberrors.ConnectionLost{Cause: err}
	}
	return nil
}

// SendStatistics writes a COM_STATISTICS command.
func SendStatistics(conn *wire.Conn) error {
	conn.ResetSequence()
	if err := conn.WritePacket([]byte{ComStatistics}); err != nil {
		return &dberrors.ConnectionLost{Cause: err}
	}
	return nil
}

// ReadReply reads and classifies the server's response to a command
// already sent, decoding a full result set (column definitions, EOF, rows,
// trailing EOF) when present (§4.4).
func ReadReply(conn *wire.Conn) (*Reply, error) {
	pkt, err := conn.ReadPacket()
	if err != nil {
		var seqErr *wire.SequenceError
		if errors.As(err, &seqErr) {
			return nil, &dberrors.ProtocolError{Reason: "out-of-sequence reply", Cause: err}
		}
		return nil, &dberrors.ConnectionLost{Cause: err}
	}
	if len(pkt) == 0 {
		return nil, &dberrors.ProtocolError{Reason: "empty reply packet"}
	}

	switch pkt[0] {
	case 0x00:
		ok, err := decodeOK(pkt)
		if err != nil {
			return nil, err
		}
		return &Reply{Kind: ReplyOK, OK: *ok}, nil

	case 0xFB:
		// LOCAL INFILE request: not implemented. Treated as a successful,
		// empty result per the open question on this behavior.
		return &Reply{Kind: ReplyOK, OK: OK{}}, nil

	case 0xFF:
		return &Reply{Kind: ReplyError, Err: decodeErrorPacket(pkt)}, nil

	default:
		decoded, err := decodeResultSet(conn, pkt)
		if err != nil {
			return nil, err
		}
		return &Reply{Kind: ReplyResultSet, Result: decoded}, nil
	}
}

func decodeOK(pkt []byte) (*OK, error) {
	c := wire.NewCursor(pkt)
	if _, err := c.ReadU8(); err != nil {
		return nil, &dberrors.ProtocolError{Reason: "malformed OK packet", Cause: err}
	}
	affected, _, err := c.ReadLEI()
	if err != nil {
		return nil, &dberrors.ProtocolError{Reason: "malformed OK packet: affected rows", Cause: err}
	}
	lastID, _, err := c.ReadLEI()
	if err != nil {
		return nil, &dberrors.ProtocolError{Reason: "malformed OK packet: last insert id", Cause: err}
	}
	status, err := c.ReadU16()
	if err != nil {
		return nil, &dberrors.ProtocolError{Reason: "malformed OK packet: status flags", Cause: err}
	}
	warnings, err := c.ReadU16()
	if err != nil {
		return nil, &dberrors.ProtocolError{Reason: "malformed OK packet: warnings", Cause: err}
	}
	return &OK{AffectedRows: affected, LastInsertID: lastID, StatusFlags: status, Warnings: warnings}, nil
}

// decodeErrorPacket decodes an Error packet. Duplicated in small form from
// the handshake package's unexported decoder of the same shape — kept
// unexported and package-local on each side to avoid a cross-package
// dependency for four lines of cursor code.
func decodeErrorPacket(pkt []byte) *dberrors.ServerError {
	c := wire.NewCursor(pkt)
	if _, err := c.ReadU8(); err != nil {
		return &dberrors.ServerError{Message: "malformed error packet"}
	}
	code, err := c.ReadU16()
	if err != nil {
		return &dberrors.ServerError{Message: "malformed error packet"}
	}
	var sqlState string
	rest := pkt[c.Pos():]
	if len(rest) >= 6 && rest[0] == '#' {
		sqlState = string(rest[1:6])
		rest = rest[6:]
	}
	return &dberrors.ServerError{Code: code, SQLState: sqlState, Message: string(rest)}
}

func errShortResultSet(stage string, err error) error {
	return &dberrors.ProtocolError{Reason: fmt.Sprintf("result set: %s", stage), Cause: err}
}
