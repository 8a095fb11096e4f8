package capture

import (
	"time"

	"github.com/charmbracelet/log"
)

// Line is one attributed transcript emission. Text and Err can both be set:
// a degraded backend still produces a line so readers know speech happened.
type Line struct {
	SpeakerID string
	Label     string
	Text      string
	Err       error
	Duration  time.Duration
	Timestamp time.Time
}

// Emitter is the external sink for completed transcript lines. Emission is
// fire-and-forget; nothing here retries or replays.
type Emitter interface {
	Emit(Line)
}

// Emitters fans one line out to several sinks in order.
type Emitters []Emitter

func (es Emitters) Emit(l Line) {
	for _, e := range es {
		e.Emit(l)
	}
}

type LogEmitter struct {
	Log *log.Logger
}

func (e *LogEmitter) Emit(l Line) {
	if l.Err != nil {
		e.Log.Warn("say",
			"who", l.Label,
			"txt", l.Text,
			"dur", l.Duration,
			"error", l.Err,
		)
		return
	}
	e.Log.Info("say", "who", l.Label, "txt", l.Text, "dur", l.Duration)
}
