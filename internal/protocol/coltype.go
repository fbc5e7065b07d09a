// Package protocol implements command framing and the column/row decoder
// that turns a MariaDB result-set reply into typed cells (§4.1, §4.4).
package protocol

import "github.com/skymond-software/mariadb-client/internal/result"

// ColumnType is the MariaDB wire column-type byte (§4.1).
type ColumnType byte

const (
	ColTypeDecimal    ColumnType = 0x00
	ColTypeTiny       ColumnType = 0x01
	ColTypeShort      ColumnType = 0x02
	ColTypeLong       ColumnType = 0x03
	ColTypeFloat      ColumnType = 0x04
	ColTypeDouble     ColumnType = 0x05
	ColTypeNull       ColumnType = 0x06
	ColTypeTimestamp  ColumnType = 0x07
	ColTypeLongLong   ColumnType = 0x08
	ColTypeInt24      ColumnType = 0x09
	ColTypeDate       ColumnType = 0x0a
	ColTypeTime       ColumnType = 0x0b
	ColTypeDateTime   ColumnType = 0x0c
	ColTypeYear       ColumnType = 0x0d
	ColTypeNewDate    ColumnType = 0x0e
	ColTypeVarchar    ColumnType = 0x0f
	ColTypeBit        ColumnType = 0x10
	ColTypeJSON       ColumnType = 0xf5
	ColTypeNewDecimal ColumnType = 0xf6
	ColTypeEnum       ColumnType = 0xf7
	ColTypeSet        ColumnType = 0xf8
	ColTypeTinyBlob   ColumnType = 0xf9
	ColTypeMediumBlob ColumnType = 0xfa
	ColTypeLongBlob   ColumnType = 0xfb
	ColTypeBlob       ColumnType = 0xfc
	ColTypeVarString  ColumnType = 0xfd
	ColTypeString     ColumnType = 0xfe
	ColTypeGeometry   ColumnType = 0xff
)

// descriptorFor maps a wire column type to the TypeDescriptor it decodes
// into, per the mapping table in §4.1. Types not named there (date/time
// family, NULL) surface as raw byte-strings.
func descriptorFor(ct ColumnType) result.TypeDescriptor {
	switch ct {
	case ColTypeTiny:
		return result.TypeInt8
	case ColTypeShort:
		return result.TypeInt16
	case ColTypeLong:
		return result.TypeInt32
	case ColTypeInt24:
		// §4.1: INT24 is surfaced as the distinct TypeInt24 descriptor, even
		// though its Go-side cell value is still an int32 (§3's "stored as
		// i32" — result.TypeInt24.matches accepts int32 for exactly this
		// reason).
		return result.TypeInt24
	case ColTypeYear:
		return result.TypeInt32
	case ColTypeLongLong:
		return result.TypeInt64
	case ColTypeFloat:
		return result.TypeFloat32
	case ColTypeDouble:
		return result.TypeFloat64
	case ColTypeVarchar, ColTypeVarString, ColTypeString:
		return result.TypeString
	default:
		// DECIMAL / NEWDECIMAL / BIT / JSON / ENUM / SET / *BLOB / GEOMETRY,
		// NULL, and the date/time family all surface as raw byte-strings.
		return result.TypeBytes
	}
}
