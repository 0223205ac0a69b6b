// Package interaction runs the management protocol over a transport
// connection.
//
// Both sides share one correlation scheme: requests carry a non-zero
// message ID, and responses echo it.
//
// The endpoint side is Client. It implements session.Registrar, so a
// session drives Register, Update and Deregister through it. Responses are
// turned into endpoint.Observer callbacks. The server's Read, Write and
// Execute requests are dispatched to the same observer, including
// block-wise transfers. Inbound callbacks run on the connection's single
// read goroutine, one at a time.
//
//	reg := interaction.NewClient(interaction.Config{Observer: ep})
//	sess := session.NewSession(session.Config{Registrar: reg})
//
// The management side is Server. It keeps the registration directory,
// answers lifecycle requests, and issues reads, writes and executes
// toward connected endpoints:
//
//	srv := interaction.NewServer(interaction.ServerConfig{State: store})
//	ts := transport.NewServer(transport.ServerConfig{
//	    OnMessage:    srv.HandleMessage,
//	    OnDisconnect: srv.HandleDisconnect,
//	})
//	err := srv.WriteBlocks(ctx, "node-1", "/Test/0/D", value, 16)
package interaction
