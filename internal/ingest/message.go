package ingest

import "context"

// Message is an inbound bus message independent of the transport it came from.
type Message struct {
	ID         string
	Route      string
	Key        string
	Data       []byte
	Attributes map[string]string
}

// Handler applies one message to local state. Returning an error tagged
// DESERIALIZATION_ERROR, UNKNOWN_ROUTE, VALIDATION_ERROR or NOT_FOUND drops
// the message; any other error asks the source to redeliver it.
type Handler interface {
	Handle(ctx context.Context, msg Message) error
}

type HandlerFunc func(ctx context.Context, msg Message) error

func (f HandlerFunc) Handle(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}
