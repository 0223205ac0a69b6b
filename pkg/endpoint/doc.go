// Package endpoint wires a registration session, block-wise transfer and
// the resource store into one device-side client.
//
// Client implements Observer, the callback surface the management
// protocol layer drives: registration outcomes go to the session, block
// deliveries to the assembler, block requests to the fragmenter and
// reads, writes and executes to the resource registry.
//
// Every client exposes the device object (3/0) and the Test object
// (Test/0) with a dynamic resource D, reported periodically and
// accepting block-wise writes, and a static resource S.
package endpoint
