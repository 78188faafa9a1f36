package tlv

import (
	"encoding/binary"
	"fmt"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// FieldID identifies a field within one message.
type FieldID uint32

// InetAddress is the value of an InetAddress field.
type InetAddress struct {
	Addr      netip.Addr
	PrefixLen uint8
}

// Field is one typed value of a field-list message.
//
// Type selects which value is authoritative on the wire. Int, Real and Text
// are coerced views filled in by the constructors so callers can read any
// field as any of the three without failing.
type Field struct {
	ID     FieldID
	Type   Type
	Signed bool

	Int   int64
	Real  float64
	Text  string
	Bytes []byte
	Addr  InetAddress
}

// ParseInt converts text to an integer, yielding 0 when it is not a number.
func ParseInt(s string) int64 {
	s = strings.TrimSpace(s)
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v
	}
	if v, err := strconv.ParseUint(s, 10, 64); err == nil {
		return int64(v)
	}
	return 0
}

// ParseReal converts text to a float, yielding 0 when it is not a number.
func ParseReal(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}

func signedInt(id FieldID, t Type, v int64) Field {
	return Field{ID: id, Type: t, Signed: true, Int: v, Real: float64(v), Text: strconv.FormatInt(v, 10)}
}

func unsignedInt(id FieldID, t Type, v uint64) Field {
	return Field{ID: id, Type: t, Int: int64(v), Real: float64(v), Text: strconv.FormatUint(v, 10)}
}

// NewInt16 creates a signed int16 field.
func NewInt16(id FieldID, v int16) Field { return signedInt(id, TypeInt16, int64(v)) }

// NewUint16 creates an unsigned int16 field.
func NewUint16(id FieldID, v uint16) Field { return unsignedInt(id, TypeInt16, uint64(v)) }

// NewInt32 creates a signed int32 field.
func NewInt32(id FieldID, v int32) Field { return signedInt(id, TypeInt32, int64(v)) }

// NewUint32 creates an unsigned int32 field.
func NewUint32(id FieldID, v uint32) Field { return unsignedInt(id, TypeInt32, uint64(v)) }

// NewInt64 creates a signed int64 field.
func NewInt64(id FieldID, v int64) Field { return signedInt(id, TypeInt64, v) }

// NewUint64 creates an unsigned int64 field.
func NewUint64(id FieldID, v uint64) Field { return unsignedInt(id, TypeInt64, v) }

// NewFloat creates a float field.
func NewFloat(id FieldID, v float64) Field {
	return Field{ID: id, Type: TypeFloat, Int: int64(v), Real: v, Text: strconv.FormatFloat(v, 'g', -1, 64)}
}

// NewString creates a string field. Numeric views are parsed from v and fall
// back to zero.
func NewString(id FieldID, v string) Field {
	return Field{ID: id, Type: TypeString, Int: ParseInt(v), Real: ParseReal(v), Text: v}
}

// NewBinary creates a binary field holding a copy of v.
func NewBinary(id FieldID, v []byte) Field {
	buf := make([]byte, len(v))
	copy(buf, v)
	return Field{ID: id, Type: TypeBinary, Bytes: buf}
}

// NewInetAddress creates an address field.
func NewInetAddress(id FieldID, v InetAddress) Field {
	f := Field{ID: id, Type: TypeInetAddress, Addr: v}
	if v.Addr.IsValid() {
		f.Text = v.Addr.String()
	}
	return f
}

// NewPrefix creates an address field from a network prefix.
func NewPrefix(id FieldID, p netip.Prefix) Field {
	return NewInetAddress(id, InetAddress{Addr: p.Addr(), PrefixLen: uint8(p.Bits())})
}

// NewBool creates an int16 field holding 1 or 0.
func NewBool(id FieldID, v bool) Field {
	if v {
		return NewInt16(id, 1)
	}
	return NewInt16(id, 0)
}

// NewTime creates an int64 field holding unix seconds.
func NewTime(id FieldID, v time.Time) Field {
	return NewInt64(id, v.Unix())
}

// NewUUID creates a 16-byte binary field.
func NewUUID(id FieldID, v uuid.UUID) Field {
	return NewBinary(id, v[:])
}

// NewUint32Array creates a binary field of big-endian uint32 elements.
func NewUint32Array(id FieldID, v []uint32) Field {
	buf := make([]byte, 0, 4*len(v))
	for _, e := range v {
		buf = binary.BigEndian.AppendUint32(buf, e)
	}
	return Field{ID: id, Type: TypeBinary, Bytes: buf}
}

// Bool reports whether the integer view is non-zero.
func (f Field) Bool() bool {
	return f.Int != 0
}

// Uint64 returns the integer view reinterpreted as unsigned.
func (f Field) Uint64() uint64 {
	return uint64(f.Int)
}

// Time interprets the integer view as unix seconds.
func (f Field) Time() time.Time {
	return time.Unix(f.Int, 0)
}

// UUID returns the binary value as a UUID, or uuid.Nil when it is not 16 bytes.
func (f Field) UUID() uuid.UUID {
	if f.Type != TypeBinary {
		return uuid.Nil
	}
	u, err := uuid.FromBytes(f.Bytes)
	if err != nil {
		return uuid.Nil
	}
	return u
}

// Uint32Array decodes a binary value of big-endian uint32 elements. Trailing
// bytes that do not form a full element are ignored.
func (f Field) Uint32Array() []uint32 {
	if f.Type != TypeBinary {
		return nil
	}
	out := make([]uint32, len(f.Bytes)/4)
	for i := range out {
		out[i] = binary.BigEndian.Uint32(f.Bytes[4*i:])
	}
	return out
}

// Prefix returns the address value as a network prefix.
func (f Field) Prefix() netip.Prefix {
	if !f.Addr.Addr.IsValid() {
		return netip.Prefix{}
	}
	return netip.PrefixFrom(f.Addr.Addr, int(f.Addr.PrefixLen))
}

// String renders the field for message dumps.
func (f Field) String() string {
	switch f.Type {
	case TypeInt16, TypeInt32, TypeInt64, TypeFloat:
		return fmt.Sprintf("[%d] %s: %s", f.ID, f.Type, f.Text)
	case TypeString:
		return fmt.Sprintf("[%d] %s: %q", f.ID, f.Type, f.Text)
	case TypeBinary:
		return fmt.Sprintf("[%d] %s: %d bytes %x", f.ID, f.Type, len(f.Bytes), f.Bytes)
	case TypeInetAddress:
		if !f.Addr.Addr.IsValid() {
			return fmt.Sprintf("[%d] %s: unspecified/%d", f.ID, f.Type, f.Addr.PrefixLen)
		}
		return fmt.Sprintf("[%d] %s: %s/%d", f.ID, f.Type, f.Addr.Addr, f.Addr.PrefixLen)
	default:
		return fmt.Sprintf("[%d] %s", f.ID, f.Type)
	}
}
