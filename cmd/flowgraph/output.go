package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/rendis/flowgraph/internal/engine"
	"github.com/rendis/flowgraph/pkg/schema"
)

// statusColor picks the display color for an instance status.
func statusColor(status schema.WorkflowStatus) *color.Color {
	switch status {
	case schema.WorkflowStatusFinished:
		return color.New(color.FgGreen, color.Bold)
	case schema.WorkflowStatusSuspended:
		return color.New(color.FgYellow, color.Bold)
	case schema.WorkflowStatusFaulted:
		return color.New(color.FgRed, color.Bold)
	default:
		return color.New(color.FgCyan)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printResult renders an execution result as a short report.
func printResult(w io.Writer, res *engine.ExecutionResult) {
	fmt.Fprintf(w, "Instance:   %s\n", res.CorrelationID)
	fmt.Fprintf(w, "Definition: %s\n", res.DefinitionID)
	fmt.Fprint(w, "Status:     ")
	statusColor(res.Status).Fprintln(w, res.Status)
	if len(res.BlockingActivityIDs) > 0 {
		fmt.Fprintf(w, "Blocking:   %s\n", strings.Join(res.BlockingActivityIDs, ", "))
	}
	if res.LastResult != nil {
		fmt.Fprintf(w, "Result:     %v\n", res.LastResult)
	}
	if res.Error != nil {
		color.New(color.FgRed).Fprintf(w, "Error:      %s\n", res.Error.Error())
	}
	if len(res.ExecutionLog) == 0 {
		return
	}
	fmt.Fprintln(w, "Log:")
	for _, entry := range res.ExecutionLog {
		line := fmt.Sprintf("  %s  %-20s %s", entry.Timestamp.Format("15:04:05.000"), entry.ActivityID, entry.Outcome)
		if entry.Error != "" {
			color.New(color.FgRed).Fprintf(w, "%s  %s\n", line, entry.Error)
			continue
		}
		fmt.Fprintln(w, line)
	}
}

// printInstance renders a persisted instance.
func printInstance(w io.Writer, inst *schema.WorkflowInstance) {
	fmt.Fprintf(w, "Instance:   %s\n", inst.CorrelationID)
	fmt.Fprintf(w, "Definition: %s\n", inst.DefinitionID)
	fmt.Fprint(w, "Status:     ")
	statusColor(inst.Status).Fprintln(w, inst.Status)
	for _, id := range inst.BlockingActivityIDs {
		b := inst.Bookmarks[id]
		switch {
		case b.DueAt != nil:
			fmt.Fprintf(w, "  waiting %-20s timer due %s\n", id, b.DueAt.Format("2006-01-02 15:04:05"))
		case b.SignalKey != "":
			fmt.Fprintf(w, "  waiting %-20s signal %q\n", id, b.SignalKey)
		default:
			fmt.Fprintf(w, "  waiting %s\n", id)
		}
	}
	if inst.FaultMessage != "" {
		color.New(color.FgRed).Fprintf(w, "Fault:      %s at %s\n", inst.FaultMessage, inst.FaultedActivityID)
	}
	fmt.Fprintf(w, "Updated:    %s\n", inst.UpdatedAt.Format("2006-01-02 15:04:05"))
}

func success(w io.Writer, format string, args ...any) {
	color.New(color.FgGreen, color.Bold).Fprintf(w, format+"\n", args...)
}
