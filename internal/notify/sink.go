package notify

import (
	"context"
	"time"

	"slaengine/internal/model"
)

const (
	ChannelTriggered    = "escalation.triggered"
	ChannelAdvanced     = "escalation.advanced"
	ChannelAcknowledged = "escalation.acknowledged"
)

// Event is the payload carried on every escalation channel: the full attempt
// record plus the emission timestamp.
type Event struct {
	Channel   string                  `json:"channel"`
	Timestamp time.Time               `json:"timestamp"`
	Attempt   model.EscalationAttempt `json:"attempt"`
}

type Sink interface {
	Publish(ctx context.Context, channel string, ev Event) error
}

// Fanout publishes to every sink; the first error is returned after all
// sinks have been tried.
type Fanout struct {
	sinks []Sink
}

func NewFanout(sinks ...Sink) *Fanout {
	out := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return &Fanout{sinks: out}
}

func (f *Fanout) Publish(ctx context.Context, channel string, ev Event) error {
	var first error
	for _, s := range f.sinks {
		if err := s.Publish(ctx, channel, ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}
