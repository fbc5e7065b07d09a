// Package result implements the canonical typed tabular result carrier
// (DbResult in §3/§4.6) and the ordered-map argument carrier used by the
// façade's *Dict operations.
package result

import "fmt"

// TypeDescriptor tags the Go value stored in a cell. Per Design Note
// ("opaque void * vtables" / copy-destroy descriptors), Go's native value
// semantics replace the source's explicit copy/destroy function pointers —
// this is a closed enum used for runtime type checks, not a vtable. Only
// the 14 types the wire-protocol core actually produces are modeled; the
// source's broader list/queue/stack/tree/hash-table/vector/opaque-pointer
// catalog belongs to the out-of-scope string/bytes utility layer (§3).
type TypeDescriptor int

const (
	TypeBool TypeDescriptor = iota
	TypeInt8
	TypeInt16
	TypeInt24
	TypeInt32
	TypeInt64
	TypeUint8
	TypeUint16
	TypeUint32
	TypeUint64
	TypeFloat32
	TypeFloat64
	TypeString
	TypeBytes
)

// Name reports the descriptor's display name, e.g. for DESCRIBE output.
func (t TypeDescriptor) Name() string {
	switch t {
	case TypeBool:
		return "bool"
	case TypeInt8:
		return "int8"
	case TypeInt16:
		return "int16"
	case TypeInt24:
		return "int24"
	case TypeInt32:
		return "int32"
	case TypeInt64:
		return "int64"
	case TypeUint8:
		return "uint8"
	case TypeUint16:
		return "uint16"
	case TypeUint32:
		return "uint32"
	case TypeUint64:
		return "uint64"
	case TypeFloat32:
		return "float32"
	case TypeFloat64:
		return "float64"
	case TypeString:
		return "string"
	case TypeBytes:
		return "bytes"
	default:
		return "unknown"
	}
}

// matches reports whether v's dynamic Go type is the one TypeDescriptor t
// tags, per the §3 cell-type invariant.
func (t TypeDescriptor) matches(v any) bool {
	switch t {
	case TypeBool:
		_, ok := v.(bool)
		return ok
	case TypeInt8:
		_, ok := v.(int8)
		return ok
	case TypeInt16:
		_, ok := v.(int16)
		return ok
	case TypeInt24, TypeInt32:
		_, ok := v.(int32)
		return ok
	case TypeInt64:
		_, ok := v.(int64)
		return ok
	case TypeUint8:
		_, ok := v.(uint8)
		return ok
	case TypeUint16:
		_, ok := v.(uint16)
		return ok
	case TypeUint32:
		_, ok := v.(uint32)
		return ok
	case TypeUint64:
		_, ok := v.(uint64)
		return ok
	case TypeFloat32:
		_, ok := v.(float32)
		return ok
	case TypeFloat64:
		_, ok := v.(float64)
		return ok
	case TypeString:
		_, ok := v.(string)
		return ok
	case TypeBytes:
		_, ok := v.([]byte)
		return ok
	default:
		return false
	}
}

// zeroValue returns the empty-value substitute used in place of a forbidden
// nil for string/byte-string columns (§3 invariant).
func (t TypeDescriptor) zeroValue() any {
	switch t {
	case TypeString:
		return ""
	case TypeBytes:
		return []byte{}
	default:
		return nil
	}
}

// FieldValue is a (name, value) pair: the Design-Note replacement for
// variadic "(name, value, ..., NULL)" argument lists.
type FieldValue struct {
	Name  string
	Value any
}

// F is shorthand for constructing a FieldValue.
func F(name string, value any) FieldValue { return FieldValue{Name: name, Value: value} }

func (fv FieldValue) String() string { return fmt.Sprintf("%s=%v", fv.Name, fv.Value) }
