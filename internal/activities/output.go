package activities

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/rendis/flowgraph/internal/expressions"
	"github.com/rendis/flowgraph/pkg/schema"
)

// lineWriter serialises writes from instances running in parallel.
type lineWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lineWriter) writeLine(text string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, err := fmt.Fprintln(l.w, text)
	return err
}

// WriteLineTask writes property Text followed by a newline and keeps the text
// as the last result.
type WriteLineTask struct {
	out *lineWriter
}

func (a *WriteLineTask) Type() string { return TypeWriteLine }

func (a *WriteLineTask) Outcomes(*Input) []string {
	return []string{schema.OutcomeDone}
}

func (a *WriteLineTask) Execute(_ context.Context, input *Input, wctx Context) (Result, error) {
	v, _ := input.Value("Text")
	text := expressions.FormatText(v)

	if err := a.out.writeLine(text); err != nil {
		return Result{}, fmt.Errorf("write line: %w", err)
	}
	if err := wctx.SetLastResult(text); err != nil {
		return Result{}, err
	}
	return Outcomes(schema.OutcomeDone), nil
}
