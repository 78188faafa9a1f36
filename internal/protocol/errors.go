package protocol

import "errors"

var (
	ErrMessageTooLarge = errors.New("protocol: message too large")
	ErrSessionClosed   = errors.New("protocol: session closed")
	ErrNoCipher        = errors.New("protocol: encrypted message without cipher")
	ErrDecryption      = errors.New("protocol: decryption error")
	ErrStructural      = errors.New("protocol: malformed message")
	ErrCompression     = errors.New("protocol: compression error")
	ErrInvalidMessage  = errors.New("protocol: invalid message")
)
