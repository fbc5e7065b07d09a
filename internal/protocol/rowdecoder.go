package protocol

import (
	"strconv"

	"github.com/skymond-software/mariadb-client/internal/dberrors"
	"github.com/skymond-software/mariadb-client/internal/result"
	"github.com/skymond-software/mariadb-client/internal/wire"
)

// columnDef holds the fields of a column-definition packet (§4.4). Catalog,
// org-table, and org-column-name are decoded to stay wire-correct and keep
// the cursor advancing, then deliberately discarded — they never surface on
// DbResult, matching the source library's decode-then-discard behavior.
type columnDef struct {
	schema string
	table  string
	name   string
	typ    ColumnType
}

// Decoded is a fully read result set, still carrying column metadata
// separately from the result.DbResult it is assembled into, so the caller
// (the façade) can attach DBName/TableName/PrimaryKey before handing the
// DbResult to the application.
type Decoded struct {
	Columns []columnDef
	Result  *result.DbResult
}

// decodeResultSet reads a column-count LEI, that many column-definition
// packets, an EOF, the data rows, and the trailing EOF, per §4.4. firstPkt
// is the column-count packet already read by ReadReply.
func decodeResultSet(conn *wire.Conn, firstPkt []byte) (*Decoded, error) {
	c := wire.NewCursor(firstPkt)
	colCount, ok, err := c.ReadLEI()
	if err != nil || !ok {
		return nil, errShortResultSet("column count", err)
	}

	cols := make([]columnDef, 0, colCount)
	for i := uint64(0); i < colCount; i++ {
		pkt, err := conn.ReadPacket()
		if err != nil {
			return nil, &dberrors.ConnectionLost{Cause: err}
		}
		cd, err := decodeColumnDef(pkt)
		if err != nil {
			return nil, err
		}
		cols = append(cols, *cd)
	}

	// EOF packet after the column definitions.
	if _, err := conn.ReadPacket(); err != nil {
		return nil, &dberrors.ConnectionLost{Cause: err}
	}

	fieldNames := make([]string, len(cols))
	fieldTypes := make([]result.TypeDescriptor, len(cols))
	for i, cd := range cols {
		fieldNames[i] = cd.name
		fieldTypes[i] = descriptorFor(cd.typ)
	}

	var rows [][]any
	for {
		pkt, err := conn.ReadPacket()
		if err != nil {
			return nil, &dberrors.ConnectionLost{Cause: err}
		}
		if len(pkt) > 0 && pkt[0] == 0xFE && len(pkt) < 9 {
			// Trailing EOF: a real row can legally start with 0xFE only if
			// it is long enough to be a length-encoded string of 8+ bytes,
			// which this short-packet check excludes, matching the
			// wire-protocol convention for distinguishing the two.
			break
		}
		row, err := decodeRow(pkt, fieldTypes)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}

	dbName, tableName := "", ""
	if len(cols) > 0 {
		dbName, tableName = cols[0].schema, cols[0].table
	}

	return &Decoded{
		Columns: cols,
		Result:  result.New(dbName, tableName, fieldNames, fieldTypes, rows),
	}, nil
}

func decodeColumnDef(pkt []byte) (*columnDef, error) {
	c := wire.NewCursor(pkt)

	if _, _, err := c.ReadLenencString(); err != nil { // catalog
		return nil, errShortResultSet("column def: catalog", err)
	}
	schema, _, err := c.ReadLenencString()
	if err != nil {
		return nil, errShortResultSet("column def: schema", err)
	}
	table, _, err := c.ReadLenencString()
	if err != nil {
		return nil, errShortResultSet("column def: table", err)
	}
	if _, _, err := c.ReadLenencString(); err != nil { // org-table
		return nil, errShortResultSet("column def: org-table", err)
	}
	name, _, err := c.ReadLenencString()
	if err != nil {
		return nil, errShortResultSet("column def: name", err)
	}
	if _, _, err := c.ReadLenencString(); err != nil { // org-column-name
		return nil, errShortResultSet("column def: org-name", err)
	}

	filler, ok, err := c.ReadLEI()
	if err != nil || !ok || filler != 12 {
		return nil, &dberrors.ProtocolError{Reason: "column def: expected fixed-length marker of 12"}
	}

	if _, err := c.ReadU16(); err != nil { // character set
		return nil, errShortResultSet("column def: charset", err)
	}
	if _, err := c.ReadU32(); err != nil { // column length
		return nil, errShortResultSet("column def: length", err)
	}
	typByte, err := c.ReadU8()
	if err != nil {
		return nil, errShortResultSet("column def: type", err)
	}
	if _, err := c.ReadU16(); err != nil { // flags
		return nil, errShortResultSet("column def: flags", err)
	}
	if _, err := c.ReadU8(); err != nil { // decimals
		return nil, errShortResultSet("column def: decimals", err)
	}
	if _, err := c.ReadU16(); err != nil { // filler
		return nil, errShortResultSet("column def: trailing filler", err)
	}

	return &columnDef{
		schema: string(schema),
		table:  string(table),
		name:   string(name),
		typ:    ColumnType(typByte),
	}, nil
}

func decodeRow(pkt []byte, fieldTypes []result.TypeDescriptor) ([]any, error) {
	c := wire.NewCursor(pkt)
	row := make([]any, len(fieldTypes))
	for i, ft := range fieldTypes {
		raw, ok, err := c.ReadLenencString()
		if err != nil {
			return nil, errShortResultSet("row cell", err)
		}
		if !ok {
			row[i] = nil
			continue
		}
		v, err := decodeCell(raw, ft)
		if err != nil {
			return nil, &dberrors.ProtocolError{Reason: "row cell value", Cause: err}
		}
		row[i] = v
	}
	return row, nil
}

// decodeCell converts the raw text-protocol bytes for one cell into the Go
// value its TypeDescriptor requires, per the §4.1 typed-decoder mapping.
func decodeCell(raw []byte, ft result.TypeDescriptor) (any, error) {
	s := string(raw)
	switch ft {
	case result.TypeInt8:
		n, err := strconv.ParseInt(s, 10, 8)
		return int8(n), err
	case result.TypeInt16:
		n, err := strconv.ParseInt(s, 10, 16)
		return int16(n), err
	case result.TypeInt24, result.TypeInt32:
		n, err := strconv.ParseInt(s, 10, 32)
		return int32(n), err
	case result.TypeInt64:
		n, err := strconv.ParseInt(s, 10, 64)
		return n, err
	case result.TypeFloat32:
		n, err := strconv.ParseFloat(s, 32)
		return float32(n), err
	case result.TypeFloat64:
		n, err := strconv.ParseFloat(s, 64)
		return n, err
	case result.TypeString:
		return s, nil
	case result.TypeBytes:
		out := make([]byte, len(raw))
		copy(out, raw)
		return out, nil
	default:
		return raw, nil
	}
}
