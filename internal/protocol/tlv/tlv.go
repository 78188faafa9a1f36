package tlv

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"net/netip"

	"github.com/danmuck/nxcp/internal/protocol/frame"
	"golang.org/x/text/encoding/unicode"
)

// HeaderLen is the fixed prefix of every encoded field: id, type, flags and
// either the int16 value or two padding bytes.
const HeaderLen = 8

const (
	lengthLen   = 4
	inetAddrLen = 32
)

// FlagSigned marks integer fields carrying signed values.
const FlagSigned uint8 = 0x01

var (
	ErrShortField    = errors.New("tlv: short field")
	ErrInvalidLength = errors.New("tlv: invalid length")
	ErrUnknownType   = errors.New("tlv: unknown field type")
	ErrUnknownFamily = errors.New("tlv: unknown address family")
	ErrInvalidString = errors.New("tlv: invalid string")
)

// Type IDs from the NXCP field contract.
type Type uint8

const (
	TypeInt32       Type = 0
	TypeString      Type = 1
	TypeInt64       Type = 2
	TypeInt16       Type = 3
	TypeBinary      Type = 4
	TypeFloat       Type = 5
	TypeInetAddress Type = 6
)

func (t Type) String() string {
	switch t {
	case TypeInt32:
		return "INT32"
	case TypeString:
		return "STRING"
	case TypeInt64:
		return "INT64"
	case TypeInt16:
		return "INT16"
	case TypeBinary:
		return "BINARY"
	case TypeFloat:
		return "FLOAT"
	case TypeInetAddress:
		return "INETADDR"
	default:
		return fmt.Sprintf("TYPE(%d)", uint8(t))
	}
}

// Address family codes used by InetAddress fields.
const (
	FamilyIPv4   uint8 = 0
	FamilyIPv6   uint8 = 1
	FamilyUnspec uint8 = 255
)

var utf16be = unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)

// EncodedLen returns the aligned wire size of f.
func EncodedLen(f Field) int {
	switch f.Type {
	case TypeInt16:
		return HeaderLen
	case TypeInt32:
		return frame.Align(HeaderLen + 4)
	case TypeInt64, TypeFloat:
		return HeaderLen + 8
	case TypeBinary:
		return frame.Align(HeaderLen + lengthLen + len(f.Bytes))
	case TypeString:
		return frame.Align(HeaderLen + lengthLen + utf16Len(f.Text))
	case TypeInetAddress:
		return inetAddrLen
	default:
		return 0
	}
}

// EncodeField returns the wire form of f, zero padded to the field alignment.
func EncodeField(f Field) ([]byte, error) {
	return AppendField(make([]byte, 0, EncodedLen(f)), f)
}

// AppendField appends the aligned wire form of f to dst.
func AppendField(dst []byte, f Field) ([]byte, error) {
	var head [HeaderLen]byte
	binary.BigEndian.PutUint32(head[0:4], uint32(f.ID))
	head[4] = byte(f.Type)
	if f.Signed {
		head[5] = FlagSigned
	}

	start := len(dst)
	switch f.Type {
	case TypeInt16:
		binary.BigEndian.PutUint16(head[6:8], uint16(f.Int))
		dst = append(dst, head[:]...)
	case TypeInt32:
		dst = append(dst, head[:]...)
		dst = binary.BigEndian.AppendUint32(dst, uint32(f.Int))
	case TypeInt64:
		dst = append(dst, head[:]...)
		dst = binary.BigEndian.AppendUint64(dst, uint64(f.Int))
	case TypeFloat:
		dst = append(dst, head[:]...)
		dst = binary.BigEndian.AppendUint64(dst, math.Float64bits(f.Real))
	case TypeString:
		text, err := utf16be.NewEncoder().Bytes([]byte(f.Text))
		if err != nil {
			return nil, fmt.Errorf("%w: field %d: %v", ErrInvalidString, f.ID, err)
		}
		if len(text) > math.MaxInt32 {
			return nil, fmt.Errorf("%w: field %d string too long", ErrInvalidLength, f.ID)
		}
		dst = append(dst, head[:]...)
		dst = binary.BigEndian.AppendUint32(dst, uint32(len(text)))
		dst = append(dst, text...)
	case TypeBinary:
		if len(f.Bytes) > math.MaxInt32 {
			return nil, fmt.Errorf("%w: field %d binary too long", ErrInvalidLength, f.ID)
		}
		dst = append(dst, head[:]...)
		dst = binary.BigEndian.AppendUint32(dst, uint32(len(f.Bytes)))
		dst = append(dst, f.Bytes...)
	case TypeInetAddress:
		dst = append(dst, head[:]...)
		dst = appendInetAddress(dst, f.Addr)
	default:
		return nil, fmt.Errorf("%w: field %d type %d", ErrUnknownType, f.ID, uint8(f.Type))
	}

	for pad := frame.Padding(len(dst) - start); pad > 0; pad-- {
		dst = append(dst, 0)
	}
	return dst, nil
}

func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		if r >= 0x10000 {
			n += 4
		} else {
			n += 2
		}
	}
	return n
}

func appendInetAddress(dst []byte, a InetAddress) []byte {
	var raw [16]byte
	family := FamilyUnspec
	switch {
	case a.Addr.Is4():
		v4 := a.Addr.As4()
		copy(raw[:], v4[:])
		family = FamilyIPv4
	case a.Addr.Is6():
		raw = a.Addr.As16()
		family = FamilyIPv6
	}
	dst = append(dst, raw[:]...)
	dst = append(dst, family, a.PrefixLen)
	return append(dst, 0, 0, 0, 0, 0, 0)
}

// EncodeFields concatenates the aligned wire form of every field.
func EncodeFields(fields []Field) ([]byte, error) {
	size := 0
	for _, f := range fields {
		size += EncodedLen(f)
	}
	out := make([]byte, 0, size)
	for _, f := range fields {
		var err error
		out, err = AppendField(out, f)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// DecodeField decodes one field from the start of b. It returns the number of
// bytes the field occupies before alignment padding.
func DecodeField(b []byte) (Field, int, error) {
	if len(b) < HeaderLen {
		return Field{}, 0, fmt.Errorf("%w: %d bytes left for header", ErrShortField, len(b))
	}
	id := FieldID(binary.BigEndian.Uint32(b[0:4]))
	typ := Type(b[4])
	signed := b[5]&FlagSigned != 0

	switch typ {
	case TypeInt16:
		v := binary.BigEndian.Uint16(b[6:8])
		if signed {
			return NewInt16(id, int16(v)), HeaderLen, nil
		}
		return NewUint16(id, v), HeaderLen, nil

	case TypeInt32:
		if err := need(b, HeaderLen+4, id); err != nil {
			return Field{}, 0, err
		}
		v := binary.BigEndian.Uint32(b[8:12])
		if signed {
			return NewInt32(id, int32(v)), HeaderLen + 4, nil
		}
		return NewUint32(id, v), HeaderLen + 4, nil

	case TypeInt64:
		if err := need(b, HeaderLen+8, id); err != nil {
			return Field{}, 0, err
		}
		v := binary.BigEndian.Uint64(b[8:16])
		if signed {
			return NewInt64(id, int64(v)), HeaderLen + 8, nil
		}
		return NewUint64(id, v), HeaderLen + 8, nil

	case TypeFloat:
		if err := need(b, HeaderLen+8, id); err != nil {
			return Field{}, 0, err
		}
		return NewFloat(id, math.Float64frombits(binary.BigEndian.Uint64(b[8:16]))), HeaderLen + 8, nil

	case TypeString, TypeBinary:
		if err := need(b, HeaderLen+lengthLen, id); err != nil {
			return Field{}, 0, err
		}
		l := binary.BigEndian.Uint32(b[8:12])
		if l > math.MaxInt32 {
			return Field{}, 0, fmt.Errorf("%w: field %d length %d is negative", ErrInvalidLength, id, int32(l))
		}
		start := HeaderLen + lengthLen
		if int(l) > len(b)-start {
			return Field{}, 0, fmt.Errorf("%w: field %d length %d exceeds %d remaining", ErrInvalidLength, id, l, len(b)-start)
		}
		raw := b[start : start+int(l)]
		if typ == TypeBinary {
			return NewBinary(id, raw), start + int(l), nil
		}
		if l%2 != 0 {
			return Field{}, 0, fmt.Errorf("%w: field %d odd utf-16 length %d", ErrInvalidLength, id, l)
		}
		text, err := utf16be.NewDecoder().Bytes(raw)
		if err != nil {
			return Field{}, 0, fmt.Errorf("%w: field %d: %v", ErrInvalidString, id, err)
		}
		return NewString(id, string(text)), start + int(l), nil

	case TypeInetAddress:
		if err := need(b, inetAddrLen, id); err != nil {
			return Field{}, 0, err
		}
		addr, err := decodeInetAddress(b[8:inetAddrLen], id)
		if err != nil {
			return Field{}, 0, err
		}
		return NewInetAddress(id, addr), inetAddrLen, nil

	default:
		return Field{}, 0, fmt.Errorf("%w: field %d type %d", ErrUnknownType, id, uint8(typ))
	}
}

func decodeInetAddress(b []byte, id FieldID) (InetAddress, error) {
	family, prefixLen := b[16], b[17]
	switch family {
	case FamilyIPv4:
		return InetAddress{Addr: netip.AddrFrom4([4]byte(b[0:4])), PrefixLen: prefixLen}, nil
	case FamilyIPv6:
		return InetAddress{Addr: netip.AddrFrom16([16]byte(b[0:16])), PrefixLen: prefixLen}, nil
	case FamilyUnspec:
		return InetAddress{PrefixLen: prefixLen}, nil
	default:
		return InetAddress{}, fmt.Errorf("%w: field %d family %d", ErrUnknownFamily, id, family)
	}
}

func need(b []byte, n int, id FieldID) error {
	if len(b) < n {
		return fmt.Errorf("%w: field %d needs %d bytes, have %d", ErrShortField, id, n, len(b))
	}
	return nil
}

// DecodeFields decodes exactly count fields from payload, skipping the
// alignment padding after each one.
func DecodeFields(payload []byte, count int) ([]Field, error) {
	if count < 0 || count > len(payload)/HeaderLen {
		return nil, fmt.Errorf("%w: %d fields cannot fit in %d bytes", ErrInvalidLength, count, len(payload))
	}
	fields := make([]Field, 0, count)
	offset := 0
	for i := 0; i < count; i++ {
		if offset >= len(payload) {
			return nil, fmt.Errorf("%w: field %d of %d missing", ErrShortField, i+1, count)
		}
		f, n, err := DecodeField(payload[offset:])
		if err != nil {
			return nil, err
		}
		fields = append(fields, f)
		offset = min(frame.Align(offset+n), len(payload))
	}
	return fields, nil
}

// GetField returns the last field with the given id.
func GetField(fields []Field, id FieldID) (Field, bool) {
	for i := len(fields) - 1; i >= 0; i-- {
		if fields[i].ID == id {
			return fields[i], true
		}
	}
	return Field{}, false
}

func MustType(f Field, expected Type) error {
	if f.Type != expected {
		return fmt.Errorf("tlv: field %d type mismatch: got %s want %s", f.ID, f.Type, expected)
	}
	return nil
}
