// Package blockwise reassembles and serves resource values that are too
// large for a single protocol message.
//
// Inbound values arrive as ordered blocks. Block 0 allocates a buffer of
// the declared total size and fixes the block size; every later block but
// the last must carry exactly that many bytes and lands at
// index*blockSize. A block that would write past the declared total size is
// rejected, never clamped. A second block 0 for the same resource discards
// the partial buffer and starts a new generation.
//
// Outbound values are handed out whole by the Fragmenter; Window and Split
// carve them into blocks for the transport.
package blockwise
