// Package transport establishes authenticated, encrypted sessions over raw
// byte-oriented connections and exposes them as duplex streams of opaque
// message payloads.
//
// # Architecture
//
// Two layers sit between the transport and the caller:
//
//   - FramedConn adapts "byte duplex + codec" into a duplex of typed protocol
//     values, tolerating partial and fragmented reads and buffering writes
//     until an explicit flush.
//   - Session orchestrates the Auth/Ack handshake over a FramedConn, records
//     the negotiated remote identity, and re-exposes the connection as a
//     stream and sink of message payloads. Handshake values never reach the
//     caller.
//
// Any io.ReadWriteCloser works as the underlying transport; net.Conn
// implementations additionally get context cancellation on blocked reads and
// peer-address diagnostics.
//
// # Establishing a session
//
// The initiator must know the responder's identity up front:
//
//	session, err := transport.Connect(ctx, conn, keys.Private, serverID)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer session.Close()
//
//	session.WriteMessage([]byte("hello"))
//	session.Flush()
//
// The responder discovers the initiator's identity during the handshake:
//
//	session, err := transport.Incoming(ctx, conn, keys.Private)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println("peer:", session.RemoteID())
//
//	payload, err := session.ReadMessage(ctx)
//
// # Concurrency
//
// A session supports the classic duplex split: one goroutine may drive the
// read path while another drives the write path. Neither path retries,
// reorders, or times out internally; callers compose deadlines through the
// context passed to each blocking operation.
package transport
