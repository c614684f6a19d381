package schema

import "fmt"

// IssueSeverity separates blocking problems from advisory ones.
type IssueSeverity string

const (
	SeverityError   IssueSeverity = "error"
	SeverityWarning IssueSeverity = "warning"
)

// DefinitionIssue is a single problem found in a workflow definition.
type DefinitionIssue struct {
	Path       string        `json:"path"`
	ActivityID string        `json:"activityId,omitempty"`
	Message    string        `json:"message"`
	Severity   IssueSeverity `json:"severity"`
}

// DefinitionReport collects the issues of one definition check.
// Warnings (e.g. unreachable activities) never reject a definition.
type DefinitionReport struct {
	Errors   []DefinitionIssue `json:"errors,omitempty"`
	Warnings []DefinitionIssue `json:"warnings,omitempty"`
}

// Valid returns true if there are no errors.
func (r *DefinitionReport) Valid() bool {
	return len(r.Errors) == 0
}

// Fail records an error-severity issue.
func (r *DefinitionReport) Fail(path, activityID, format string, args ...any) {
	r.Errors = append(r.Errors, DefinitionIssue{
		Path: path, ActivityID: activityID, Message: fmt.Sprintf(format, args...), Severity: SeverityError,
	})
}

// Warn records a warning-severity issue.
func (r *DefinitionReport) Warn(path, activityID, format string, args ...any) {
	r.Warnings = append(r.Warnings, DefinitionIssue{
		Path: path, ActivityID: activityID, Message: fmt.Sprintf(format, args...), Severity: SeverityWarning,
	})
}

// Merge appends other's issues.
func (r *DefinitionReport) Merge(other *DefinitionReport) {
	if other == nil {
		return
	}
	r.Errors = append(r.Errors, other.Errors...)
	r.Warnings = append(r.Warnings, other.Warnings...)
}

// Err returns a DEFINITION_INVALID error describing the report, or nil if valid.
func (r *DefinitionReport) Err() error {
	if r.Valid() {
		return nil
	}
	first := r.Errors[0]
	msg := first.Message
	if first.Path != "" {
		msg = first.Path + ": " + msg
	}
	if len(r.Errors) > 1 {
		msg = fmt.Sprintf("%s (and %d more)", msg, len(r.Errors)-1)
	}
	return NewError(ErrCodeDefinitionInvalid, msg).
		WithActivity(first.ActivityID).
		WithDetails(map[string]any{
			"errors":   r.Errors,
			"warnings": r.Warnings,
		})
}
