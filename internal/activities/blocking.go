package activities

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rendis/flowgraph/pkg/schema"
)

// TimerSignalKey is the signal key of every timer bookmark.
const TimerSignalKey = "timer"

// SignalTask suspends the workflow until a signal named by property Signal
// arrives. The signal payload becomes the last result.
type SignalTask struct{}

func (a *SignalTask) Type() string { return TypeSignal }

func (a *SignalTask) Outcomes(*Input) []string {
	return []string{schema.OutcomeDone}
}

func (a *SignalTask) SignalKey(input *Input) string {
	return input.String("Signal")
}

func (a *SignalTask) Execute(_ context.Context, input *Input, _ Context) (Result, error) {
	if a.SignalKey(input) == "" {
		return Result{}, fmt.Errorf("property Signal is required")
	}
	return Halt(), nil
}

func (a *SignalTask) Resume(_ context.Context, _ *Input, wctx Context, payload map[string]any) (Result, error) {
	if err := wctx.SetLastResult(payload); err != nil {
		return Result{}, err
	}
	return Outcomes(schema.OutcomeDone), nil
}

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// TimerTask suspends the workflow until a point in time, given either as a Go
// duration in property Duration ("90s", "2h") or as the next firing of the
// cron expression in property Cron ("*/5 * * * *", "@daily"). The scheduler
// resumes it once due.
type TimerTask struct {
	now func() time.Time
}

func (a *TimerTask) Type() string { return TypeTimer }

func (a *TimerTask) Outcomes(*Input) []string {
	return []string{schema.OutcomeDone}
}

func (a *TimerTask) SignalKey(*Input) string { return TimerSignalKey }

func (a *TimerTask) Execute(_ context.Context, input *Input, _ Context) (Result, error) {
	due, err := a.dueAt(input)
	if err != nil {
		return Result{}, err
	}
	return HaltUntil(due), nil
}

func (a *TimerTask) Resume(_ context.Context, _ *Input, _ Context, _ map[string]any) (Result, error) {
	return Outcomes(schema.OutcomeDone), nil
}

func (a *TimerTask) dueAt(input *Input) (time.Time, error) {
	now := time.Now
	if a.now != nil {
		now = a.now
	}
	if d := input.String("Duration"); d != "" {
		dur, err := time.ParseDuration(d)
		if err != nil {
			return time.Time{}, fmt.Errorf("duration %q: %w", d, err)
		}
		return now().Add(dur).UTC(), nil
	}
	if expr := input.String("Cron"); expr != "" {
		sched, err := cronParser.Parse(expr)
		if err != nil {
			return time.Time{}, fmt.Errorf("cron %q: %w", expr, err)
		}
		return sched.Next(now()).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("one of Duration or Cron is required")
}
