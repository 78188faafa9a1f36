package protocol

import (
	"net/netip"
	"sort"
	"time"

	"github.com/danmuck/nxcp/internal/protocol/frame"
	"github.com/danmuck/nxcp/internal/protocol/tlv"
	"github.com/google/uuid"
)

// Message is one NXCP protocol unit.
//
// Flags select the payload shape: Control for CONTROL, Binary for BINARY,
// Fields otherwise. The other two are ignored by Encode.
type Message struct {
	Code  uint16
	Flags uint16
	ID    uint32

	Fields  map[tlv.FieldID]tlv.Field
	Binary  []byte
	Control uint32
}

// NewMessage creates an empty field-list message.
func NewMessage(code uint16, id uint32) *Message {
	return &Message{Code: code, ID: id, Fields: make(map[tlv.FieldID]tlv.Field)}
}

// NewBinaryMessage creates a raw message holding a copy of data.
func NewBinaryMessage(code uint16, id uint32, data []byte) *Message {
	buf := make([]byte, len(data))
	copy(buf, data)
	return &Message{Code: code, ID: id, Flags: frame.FlagBinary, Binary: buf}
}

// NewControlMessage creates a control message carrying value.
func NewControlMessage(code uint16, id uint32, value uint32) *Message {
	return &Message{Code: code, ID: id, Flags: frame.FlagControl, Control: value}
}

func (m *Message) IsBinary() bool        { return m.Flags&frame.FlagBinary != 0 }
func (m *Message) IsControl() bool       { return m.Flags&frame.FlagControl != 0 }
func (m *Message) IsEndOfFile() bool     { return m.Flags&frame.FlagEndOfFile != 0 }
func (m *Message) IsEndOfSequence() bool { return m.Flags&frame.FlagEndOfSequence != 0 }
func (m *Message) IsReverseOrder() bool  { return m.Flags&frame.FlagReverseOrder != 0 }
func (m *Message) IsStream() bool        { return m.Flags&frame.FlagStream != 0 }
func (m *Message) DontEncrypt() bool     { return m.Flags&frame.FlagDontEncrypt != 0 }

// SetFlag sets or clears flag bits.
func (m *Message) SetFlag(flag uint16, on bool) {
	if on {
		m.Flags |= flag
	} else {
		m.Flags &^= flag
	}
}

// SetField stores f, replacing any field with the same id.
func (m *Message) SetField(f tlv.Field) {
	if m.Fields == nil {
		m.Fields = make(map[tlv.FieldID]tlv.Field)
	}
	m.Fields[f.ID] = f
}

func (m *Message) Field(id tlv.FieldID) (tlv.Field, bool) {
	f, ok := m.Fields[id]
	return f, ok
}

func (m *Message) HasField(id tlv.FieldID) bool {
	_, ok := m.Fields[id]
	return ok
}

func (m *Message) DeleteField(id tlv.FieldID) {
	delete(m.Fields, id)
}

// FieldIDs returns the field ids in ascending order, which is also the
// encode order.
func (m *Message) FieldIDs() []tlv.FieldID {
	ids := make([]tlv.FieldID, 0, len(m.Fields))
	for id := range m.Fields {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (m *Message) SetInt16(id tlv.FieldID, v int16)    { m.SetField(tlv.NewInt16(id, v)) }
func (m *Message) SetUint16(id tlv.FieldID, v uint16)  { m.SetField(tlv.NewUint16(id, v)) }
func (m *Message) SetInt32(id tlv.FieldID, v int32)    { m.SetField(tlv.NewInt32(id, v)) }
func (m *Message) SetUint32(id tlv.FieldID, v uint32)  { m.SetField(tlv.NewUint32(id, v)) }
func (m *Message) SetInt64(id tlv.FieldID, v int64)    { m.SetField(tlv.NewInt64(id, v)) }
func (m *Message) SetUint64(id tlv.FieldID, v uint64)  { m.SetField(tlv.NewUint64(id, v)) }
func (m *Message) SetFloat(id tlv.FieldID, v float64)  { m.SetField(tlv.NewFloat(id, v)) }
func (m *Message) SetString(id tlv.FieldID, v string)  { m.SetField(tlv.NewString(id, v)) }
func (m *Message) SetBinary(id tlv.FieldID, v []byte)  { m.SetField(tlv.NewBinary(id, v)) }
func (m *Message) SetBool(id tlv.FieldID, v bool)      { m.SetField(tlv.NewBool(id, v)) }
func (m *Message) SetTime(id tlv.FieldID, v time.Time) { m.SetField(tlv.NewTime(id, v)) }
func (m *Message) SetUUID(id tlv.FieldID, v uuid.UUID) { m.SetField(tlv.NewUUID(id, v)) }
func (m *Message) SetUint32Array(id tlv.FieldID, v []uint32) {
	m.SetField(tlv.NewUint32Array(id, v))
}

func (m *Message) SetInetAddress(id tlv.FieldID, addr netip.Addr, prefixLen uint8) {
	m.SetField(tlv.NewInetAddress(id, tlv.InetAddress{Addr: addr, PrefixLen: prefixLen}))
}

// Getters below return the zero value for absent fields.

func (m *Message) FieldAsInt64(id tlv.FieldID) int64 {
	return m.Fields[id].Int
}

func (m *Message) FieldAsUint32(id tlv.FieldID) uint32 {
	return uint32(m.Fields[id].Int)
}

func (m *Message) FieldAsReal(id tlv.FieldID) float64 {
	return m.Fields[id].Real
}

func (m *Message) FieldAsString(id tlv.FieldID) string {
	return m.Fields[id].Text
}

func (m *Message) FieldAsBool(id tlv.FieldID) bool {
	return m.Fields[id].Bool()
}

func (m *Message) FieldAsBinary(id tlv.FieldID) []byte {
	return m.Fields[id].Bytes
}

func (m *Message) FieldAsTime(id tlv.FieldID) time.Time {
	f, ok := m.Fields[id]
	if !ok {
		return time.Time{}
	}
	return f.Time()
}

func (m *Message) FieldAsUUID(id tlv.FieldID) uuid.UUID {
	return m.Fields[id].UUID()
}

func (m *Message) FieldAsUint32Array(id tlv.FieldID) []uint32 {
	return m.Fields[id].Uint32Array()
}

func (m *Message) FieldAsInetAddress(id tlv.FieldID) netip.Prefix {
	return m.Fields[id].Prefix()
}
