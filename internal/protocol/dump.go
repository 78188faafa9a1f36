package protocol

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/danmuck/nxcp/internal/protocol/frame"
)

var flagNames = []struct {
	bit  uint16
	name string
}{
	{frame.FlagBinary, "BINARY"},
	{frame.FlagEndOfFile, "EOF"},
	{frame.FlagDontEncrypt, "DONT_ENCRYPT"},
	{frame.FlagEndOfSequence, "END_OF_SEQUENCE"},
	{frame.FlagReverseOrder, "REVERSE_ORDER"},
	{frame.FlagControl, "CONTROL"},
	{frame.FlagCompressed, "COMPRESSED"},
	{frame.FlagStream, "STREAM"},
}

// FlagString renders flag bits as a |-separated list.
func FlagString(flags uint16) string {
	var parts []string
	for _, f := range flagNames {
		if flags&f.bit != 0 {
			parts = append(parts, f.name)
			flags &^= f.bit
		}
	}
	if flags != 0 {
		parts = append(parts, fmt.Sprintf("0x%04X", flags))
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, "|")
}

// Dump renders msg as human readable text, one field per line.
func (m *Message) Dump() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "code=%s id=%d flags=%s", CodeName(m.Code), m.ID, FlagString(m.Flags))
	switch {
	case m.IsControl():
		fmt.Fprintf(&sb, " control=0x%08X\n", m.Control)
	case m.IsBinary():
		fmt.Fprintf(&sb, " binary=%d bytes\n", len(m.Binary))
		sb.WriteString(hex.Dump(m.Binary))
	default:
		fmt.Fprintf(&sb, " fields=%d\n", len(m.Fields))
		for _, id := range m.FieldIDs() {
			sb.WriteString("  ")
			sb.WriteString(m.Fields[id].String())
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}
