// Package session turns a byte stream into NXCP messages and back.
//
// A Receiver owns one growable buffer per connection and must be driven by a
// single reader. A Sender encodes and writes whole messages and must be
// driven by a single writer. Neither adds locking, dispatch, request
// correlation or reconnection; those belong to the transport that owns the
// connection.
package session
