package protocol

import (
	"fmt"

	"github.com/danmuck/nxcp/internal/protocol/tlv"
)

// FieldSpec declares a known field within a message code.
type FieldSpec struct {
	ID       tlv.FieldID
	Type     tlv.Type
	Required bool
}

// Schema defines required and known fields for a message code.
type Schema struct {
	Code   uint16
	Fields []FieldSpec
}

// MissingFieldError indicates a required field was not present.
type MissingFieldError struct {
	Code    uint16
	FieldID tlv.FieldID
}

func (e MissingFieldError) Error() string {
	return fmt.Sprintf("protocol: %s missing required field %d", CodeName(e.Code), e.FieldID)
}

// FieldTypeError indicates a known field arrived with another type.
type FieldTypeError struct {
	FieldID tlv.FieldID
	Got     tlv.Type
	Want    tlv.Type
}

func (e FieldTypeError) Error() string {
	return fmt.Sprintf("protocol: field %d type %s, want %s", e.FieldID, e.Got, e.Want)
}

// Validate checks msg against schema and returns the ids of fields the
// schema does not know, in ascending order. Unknown fields are not an error.
func Validate(msg *Message, schema Schema) ([]tlv.FieldID, error) {
	if msg == nil {
		return nil, fmt.Errorf("%w: nil message", ErrInvalidMessage)
	}
	if msg.Code != schema.Code {
		return nil, fmt.Errorf("%w: code %s, schema is for %s", ErrInvalidMessage, CodeName(msg.Code), CodeName(schema.Code))
	}
	if msg.IsBinary() || msg.IsControl() {
		return nil, fmt.Errorf("%w: schema applies to field-list messages", ErrInvalidMessage)
	}

	known := make(map[tlv.FieldID]FieldSpec, len(schema.Fields))
	for _, spec := range schema.Fields {
		known[spec.ID] = spec
	}
	for _, spec := range schema.Fields {
		f, ok := msg.Fields[spec.ID]
		if !ok {
			if spec.Required {
				return nil, MissingFieldError{Code: msg.Code, FieldID: spec.ID}
			}
			continue
		}
		if f.Type != spec.Type {
			return nil, FieldTypeError{FieldID: spec.ID, Got: f.Type, Want: spec.Type}
		}
	}

	var unknown []tlv.FieldID
	for _, id := range msg.FieldIDs() {
		if _, ok := known[id]; !ok {
			unknown = append(unknown, id)
		}
	}
	return unknown, nil
}
