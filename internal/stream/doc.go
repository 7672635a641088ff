// Package stream delivers a turn's events to the client.
//
// A Publisher is the one ordered output channel of a turn. Publish never
// blocks: events go into a bounded buffer, and a consumer that falls behind
// breaks the stream rather than stalling the orchestrator. Terminal events
// close the publisher after the completion marker. Anything published after
// that returns ErrClosed and belongs in the session outbox.
//
// The Registry lets background workers find and wake the turn that is
// awaiting their result. WriteSSE renders a publisher as text/event-stream.
package stream
