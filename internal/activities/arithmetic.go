package activities

import (
	"context"
	"fmt"
	"math"

	"github.com/spf13/cast"

	"github.com/rendis/flowgraph/pkg/schema"
)

// AddTask adds properties A and B and stores the sum as the last result.
// Integral operands produce an int64, anything else a float64. Non-numeric
// operands and evaluation failures fire Error.
type AddTask struct{}

func (a *AddTask) Type() string { return TypeAdd }

func (a *AddTask) Outcomes(*Input) []string {
	return []string{schema.OutcomeDone, schema.OutcomeError}
}

func (a *AddTask) EvaluationErrorOutcome() string { return schema.OutcomeError }

func (a *AddTask) Execute(_ context.Context, input *Input, wctx Context) (Result, error) {
	av, _ := input.Value("A")
	bv, _ := input.Value("B")

	sum, err := addNumbers(av, bv)
	if err != nil {
		if setErr := wctx.SetLastResult(err.Error()); setErr != nil {
			return Result{}, setErr
		}
		return Outcomes(schema.OutcomeError), nil
	}
	if err := wctx.SetLastResult(sum); err != nil {
		return Result{}, err
	}
	return Outcomes(schema.OutcomeDone), nil
}

func addNumbers(a, b any) (any, error) {
	af, aInt, err := toNumber(a)
	if err != nil {
		return nil, fmt.Errorf("A: %w", err)
	}
	bf, bInt, err := toNumber(b)
	if err != nil {
		return nil, fmt.Errorf("B: %w", err)
	}
	sum := af + bf
	if aInt && bInt && math.Abs(sum) < 1<<53 {
		return int64(sum), nil
	}
	return sum, nil
}

// toNumber converts v to float64 and reports whether it holds an integral value.
func toNumber(v any) (float64, bool, error) {
	if v == nil {
		return 0, false, fmt.Errorf("value is missing")
	}
	if _, isBool := v.(bool); isBool {
		return 0, false, fmt.Errorf("%v is not a number", v)
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return 0, false, fmt.Errorf("%v is not a number", v)
	}
	return f, f == math.Trunc(f) && !math.IsInf(f, 0), nil
}
