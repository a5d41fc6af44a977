package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/NordCoder/Feedwatch/internal/domain/events"
	"google.golang.org/protobuf/types/known/structpb"
)

// WatchEvents publishes endpoint events keyed by tag, so events of one
// endpoint stay ordered within a partition.
type WatchEvents struct {
	p *Producer
}

func NewWatchEvents(p *Producer) *WatchEvents { return &WatchEvents{p: p} }

var _ events.Publisher = (*WatchEvents)(nil)

func (e *WatchEvents) Publish(ctx context.Context, ev events.Event) error {
	msg, err := EventToProto(ev)
	if err != nil {
		return err
	}
	return e.p.PublishProto(ctx, []byte(ev.Tag), msg)
}

// EventToProto encodes ev as a protobuf Struct:
// {id, kind, tag, at (RFC3339 UTC), attributes}.
func EventToProto(ev events.Event) (*structpb.Struct, error) {
	attrs := ev.Attributes
	if attrs == nil {
		attrs = map[string]any{}
	}
	s, err := structpb.NewStruct(map[string]any{
		"id":         ev.ID,
		"kind":       string(ev.Kind),
		"tag":        ev.Tag,
		"at":         ev.At.UTC().Format(time.RFC3339Nano),
		"attributes": attrs,
	})
	if err != nil {
		return nil, fmt.Errorf("encode event %s: %w", ev.Kind, err)
	}
	return s, nil
}

func EventFromProto(s *structpb.Struct) (events.Event, error) {
	m := s.AsMap()
	ev := events.Event{
		ID:   str(m["id"]),
		Kind: events.Kind(str(m["kind"])),
		Tag:  str(m["tag"]),
	}
	if at := str(m["at"]); at != "" {
		t, err := time.Parse(time.RFC3339Nano, at)
		if err != nil {
			return ev, fmt.Errorf("decode event time: %w", err)
		}
		ev.At = t
	}
	if a, ok := m["attributes"].(map[string]any); ok && len(a) > 0 {
		ev.Attributes = a
	}
	return ev, nil
}

func str(v any) string {
	s, _ := v.(string)
	return s
}
