package sqlite

import (
	"context"

	"github.com/wysRocket/dao-copilot-sub005/internal/events"
)

// Sink writes completed analyses to the audit log.
type Sink struct {
	client *Client
}

func NewSink(client *Client) *Sink {
	return &Sink{client: client}
}

func (s *Sink) Name() string {
	return "sqlite"
}

func (s *Sink) Publish(ctx context.Context, e events.Event) error {
	rec, ok := RecordFromEvent(e)
	if !ok {
		return nil
	}
	return s.client.InsertAnalysis(ctx, rec)
}

func (s *Sink) Close() error {
	return s.client.Close()
}

var _ events.Sink = (*Sink)(nil)
