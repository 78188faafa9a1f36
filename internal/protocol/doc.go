// Package protocol owns the NXCP message model and its wire codec.
//
// Ownership boundary:
// - Message value and field accessors
// - envelope encode/decode (control, binary, field-list)
// - dispatch to frame, tlv, compress and encryption primitives
// - error taxonomy shared by the receiver
package protocol
