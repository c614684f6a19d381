package activities

import (
	"context"
	"fmt"
	"slices"

	"github.com/rendis/flowgraph/pkg/schema"
)

// IfElseTask fires True or False from the truthiness of property Condition.
type IfElseTask struct{}

func (a *IfElseTask) Type() string { return TypeIfElse }

func (a *IfElseTask) Outcomes(*Input) []string {
	return []string{schema.OutcomeTrue, schema.OutcomeFalse}
}

func (a *IfElseTask) Execute(_ context.Context, input *Input, _ Context) (Result, error) {
	ok, err := input.Bool("Condition")
	if err != nil {
		return Result{}, fmt.Errorf("condition: %w", err)
	}
	if ok {
		return Outcomes(schema.OutcomeTrue), nil
	}
	return Outcomes(schema.OutcomeFalse), nil
}

// ForkTask fires every outcome listed in property Forks, in order.
type ForkTask struct{}

func (a *ForkTask) Type() string { return TypeFork }

func (a *ForkTask) Outcomes(input *Input) []string {
	forks, _ := input.Strings("Forks")
	return forks
}

func (a *ForkTask) Execute(_ context.Context, input *Input, _ Context) (Result, error) {
	forks, err := input.Strings("Forks")
	if err != nil {
		return Result{}, fmt.Errorf("forks: %w", err)
	}
	if len(forks) == 0 {
		return Result{}, fmt.Errorf("property Forks is empty")
	}
	return Outcomes(forks...), nil
}

// Join modes.
const (
	JoinWaitAll = "WaitAll"
	JoinWaitAny = "WaitAny"
)

// joinStateVar is the variable prefix that tracks arrivals per join activity.
const joinStateVar = "$join:"

// JoinTask merges incoming branches. With Mode WaitAll (default) it fires
// Joined once every incoming activity has arrived. With WaitAny it fires on
// the first arrival and absorbs the rest until every branch has arrived,
// after which it is armed again.
type JoinTask struct{}

func (a *JoinTask) Type() string { return TypeJoin }

func (a *JoinTask) Outcomes(*Input) []string {
	return []string{schema.OutcomeJoined}
}

func (a *JoinTask) Execute(_ context.Context, input *Input, wctx Context) (Result, error) {
	mode := input.String("Mode")
	if mode == "" {
		mode = JoinWaitAll
	}
	if mode != JoinWaitAll && mode != JoinWaitAny {
		return Result{}, fmt.Errorf("unknown join mode %q", mode)
	}
	if input.Source == "" || len(input.Incoming) < 2 {
		return Outcomes(schema.OutcomeJoined), nil
	}

	key := joinStateVar + input.ActivityID
	arrived := arrivals(wctx, key)
	first := len(arrived) == 0
	if !slices.Contains(arrived, input.Source) {
		arrived = append(arrived, input.Source)
	}

	complete := true
	for _, src := range input.Incoming {
		if !slices.Contains(arrived, src) {
			complete = false
			break
		}
	}

	if complete {
		wctx.ClearState(key)
	} else if err := wctx.SetState(key, arrived); err != nil {
		return Result{}, err
	}

	switch {
	case mode == JoinWaitAll && complete:
		return Outcomes(schema.OutcomeJoined), nil
	case mode == JoinWaitAny && first:
		return Outcomes(schema.OutcomeJoined), nil
	default:
		return Result{}, nil
	}
}

func arrivals(wctx Context, key string) []string {
	v, ok := wctx.GetVariable(key)
	if !ok || v == nil {
		return nil
	}
	var out []string
	switch list := v.(type) {
	case []string:
		out = append(out, list...)
	case []any:
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
	}
	return out
}
