// Package ws streams tournament events over WebSocket.
//
// A client connects to /tournaments/:id/stream and receives a snapshot of
// the run followed by its live events until the run ends.
//
// Message Types (Server → Client):
//   - snapshot: the run as it is when the stream opens
//   - progress: throttled overall progress
//   - game: one finished game
//   - finished: the final run, the stream closes after it
//   - pong: reply to a client ping
//   - error: the stream could not continue
//
// Message Types (Client → Server):
//   - ping: keep-alive ping
//
// Example Usage:
//
//	handler := ws.NewHandler(manager, metrics, logger)
//	router.GET("/tournaments/:id/stream", handler.HandleStream)
package ws
