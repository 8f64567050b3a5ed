package clock

import (
	"time"

	"go.uber.org/fx"
)

// Clock abstracts wall time so purchase timestamps and month keys are testable.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

func New() Clock {
	return systemClock{}
}

var Module = fx.Module("clock",
	fx.Provide(New),
)

// MonthKey formats t as the yyyy-mm key used for monthly emissions documents.
func MonthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}
