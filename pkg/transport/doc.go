// Package transport carries management messages between an endpoint and
// its management server.
//
// Every message travels as one length-prefixed frame:
//
//	┌──────────────────┬────────────────────────┐
//	│ length (4B, BE)  │ CBOR message (length)  │
//	└──────────────────┴────────────────────────┘
//
// Frames run over plain TCP, or over TLS 1.3 when the security context
// selects certificate mode. Each connection gets a UUID that tags the
// frame and state events it emits to a protocol logger.
//
// The endpoint side dials with Dial; the management server side accepts
// with Server.
package transport
