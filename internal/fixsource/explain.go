package fixsource

import (
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Event is one structured lookup diagnostic. Providers emit events through
// an explicitly injected Sink instead of writing to a global error stream.
type Event struct {
	ID      string
	Ref     string
	Level   string
	Message string
}

// Sink receives lookup diagnostics.
type Sink interface {
	Explain(ev Event)
}

// NopSink discards all events.
type NopSink struct{}

// Explain implements Sink.
func (NopSink) Explain(Event) {}

// ZapSink forwards lookup diagnostics to a zap logger at debug level.
type ZapSink struct {
	log *zap.Logger
}

// NewZapSink wraps logger in a Sink.
func NewZapSink(logger *zap.Logger) *ZapSink {
	return &ZapSink{log: logger.Named("explain")}
}

// Explain implements Sink.
func (s *ZapSink) Explain(ev Event) {
	s.log.Debug(ev.Message,
		zap.String("event_id", ev.ID),
		zap.String("issue", ev.Ref),
		zap.String("level", ev.Level),
	)
}

func newEvent(ref, level, message string) Event {
	return Event{
		ID:      uuid.NewString(),
		Ref:     ref,
		Level:   level,
		Message: message,
	}
}
