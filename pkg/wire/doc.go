// Package wire defines the CBOR wire format of the management protocol
// spoken between an endpoint and its management server.
//
// Every frame carries one Message. Messages use CBOR (RFC 8949) with integer
// keys; the operation-specific body travels as an embedded raw CBOR item so
// the envelope can be decoded before the payload type is known.
//
// # Operations
//
// Endpoint to server:
//   - Register: create a registration (returns a location)
//   - Update: renew a registration with a new lifetime
//   - Deregister: remove the registration
//   - Notify: report a changed resource value
//
// Server to endpoint:
//   - Read: read a resource value, optionally one block at a time
//   - Write: write a resource value, optionally one block at a time
//   - Execute: trigger an executable resource
//
// # Block Options
//
// Values larger than one message are moved with a BlockOption attached to
// Read responses and Write requests. Block numbers start at 0, every block
// except the last carries exactly Size bytes, and Total declares the full
// value length.
package wire
