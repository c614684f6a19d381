package validation

import (
	"fmt"

	"github.com/rendis/flowgraph/pkg/schema"
)

// validateSemantic checks what the JSON Schema cannot express: unique ids,
// transition endpoints, start activities, expression syntaxes and activity
// types. Unknown activity types only warn since they run as Missing.
func validateSemantic(def *schema.WorkflowType, types, syntaxes Lookup) *schema.DefinitionReport {
	report := &schema.DefinitionReport{}

	ids := make(map[string]bool, len(def.Activities))
	for i, a := range def.Activities {
		path := fmt.Sprintf("activities[%d]", i)
		if a.ID == "" {
			report.Fail(path+".id", "", "activity id is required")
			continue
		}
		if ids[a.ID] {
			report.Fail(path+".id", a.ID, "duplicate activity id %q", a.ID)
		}
		ids[a.ID] = true

		if a.Type == "" {
			report.Fail(path+".type", a.ID, "activity type is required")
		} else if types != nil && !types.Has(a.Type) {
			report.Warn(path+".type", a.ID, "activity type %q is not registered", a.Type)
		}

		if a.StartWhen != nil {
			if !a.IsStart {
				report.Warn(path+".startWhen", a.ID, "startWhen is ignored on a non-start activity")
			}
			checkSyntax(report, path+".startWhen", a.ID, *a.StartWhen, syntaxes)
		}
		for name, p := range a.Properties {
			checkSyntax(report, fmt.Sprintf("%s.properties.%s", path, name), a.ID, p, syntaxes)
		}
	}

	if len(def.StartActivities()) == 0 {
		report.Fail("activities", "", "definition has no start activity")
	}

	for i, t := range def.Transitions {
		path := fmt.Sprintf("transitions[%d]", i)
		if !ids[t.SourceActivityID] {
			report.Fail(path+".sourceActivityId", t.SourceActivityID,
				"references non-existent activity %q", t.SourceActivityID)
		}
		if !ids[t.DestinationActivityID] {
			report.Fail(path+".destinationActivityId", t.DestinationActivityID,
				"references non-existent activity %q", t.DestinationActivityID)
		}
		if t.SourceOutcome == "" {
			report.Fail(path+".sourceOutcome", t.SourceActivityID, "outcome is required")
		}
	}

	return report
}

func checkSyntax(report *schema.DefinitionReport, path, activityID string, p schema.Property, syntaxes Lookup) {
	if p.IsLiteral() {
		if p.Expression != "" {
			report.Fail(path, activityID, "expression %q has no syntax", p.Expression)
		}
		return
	}
	if syntaxes != nil && !syntaxes.Has(p.Syntax) {
		report.Fail(path+".syntax", activityID, "unknown expression syntax %q", p.Syntax)
	}
}
