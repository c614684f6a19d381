package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/flowgraph/internal/definitions"
	"github.com/rendis/flowgraph/internal/diagram"
	"github.com/rendis/flowgraph/internal/engine"
	"github.com/rendis/flowgraph/internal/store"
	"github.com/rendis/flowgraph/pkg/schema"
)

// handleDefine validates and stores a definition.
func (s *FlowgraphServer) handleDefine(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw := mcp.ParseStringMap(req, "definition", nil)
	if raw == nil {
		return mcp.NewToolResultError("definition is required"), nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid definition: %v", err)), nil
	}
	def, err := definitions.Parse(data, definitions.FormatJSON)
	if err != nil {
		return toolError(err), nil
	}
	if err := definitions.Publish(ctx, s.definitions, s.validator, def); err != nil {
		return toolError(err), nil
	}
	return marshalResult(map[string]any{
		"ok":            true,
		"definition_id": def.ID,
		"activities":    len(def.Activities),
		"transitions":   len(def.Transitions),
	})
}

// handleStart starts an instance of a stored definition.
func (s *FlowgraphServer) handleStart(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	definitionID, err := req.RequireString("definition_id")
	if err != nil {
		return mcp.NewToolResultError("definition_id is required"), nil
	}
	input := mcp.ParseStringMap(req, "input", nil)

	res, err := s.engine.StartWorkflowByID(ctx, definitionID, input)
	if res != nil {
		s.captureSession(ctx, res.CorrelationID)
	}
	return executionResult(res, err)
}

// handleResume resumes one blocking activity of an instance.
func (s *FlowgraphServer) handleResume(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	instanceID, err := req.RequireString("instance_id")
	if err != nil {
		return mcp.NewToolResultError("instance_id is required"), nil
	}
	activityID, err := req.RequireString("activity_id")
	if err != nil {
		return mcp.NewToolResultError("activity_id is required"), nil
	}
	input := mcp.ParseStringMap(req, "input", nil)

	s.captureSession(ctx, instanceID)
	res, err := s.engine.ResumeWorkflow(ctx, instanceID, activityID, input)
	return executionResult(res, err)
}

// handleSignal resumes every instance waiting on a signal key.
func (s *FlowgraphServer) handleSignal(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	key, err := req.RequireString("signal_key")
	if err != nil {
		return mcp.NewToolResultError("signal_key is required"), nil
	}
	input := mcp.ParseStringMap(req, "input", nil)

	results, err := s.engine.TriggerSignal(ctx, key, input)
	if err != nil && len(results) == 0 {
		return toolError(err), nil
	}
	out := map[string]any{
		"signal_key": key,
		"resumed":    len(results),
		"results":    results,
	}
	if err != nil {
		out["error"] = err.Error()
	}
	return marshalResult(out)
}

// handleStatus returns the persisted instance.
func (s *FlowgraphServer) handleStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	instanceID, err := req.RequireString("instance_id")
	if err != nil {
		return mcp.NewToolResultError("instance_id is required"), nil
	}
	inst, err := s.engine.GetInstance(ctx, instanceID)
	if err != nil {
		return toolError(err), nil
	}
	return marshalResult(inst)
}

// handleDiagram draws a definition, overlaid with an instance's progress
// when instance_id is given.
func (s *FlowgraphServer) handleDiagram(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	format, err := req.RequireString("format")
	if err != nil {
		return mcp.NewToolResultError("format is required"), nil
	}
	if format != "ascii" && format != "mermaid" {
		return mcp.NewToolResultError("format must be ascii or mermaid"), nil
	}

	definitionID := req.GetString("definition_id", "")
	instanceID := req.GetString("instance_id", "")
	if definitionID == "" && instanceID == "" {
		return mcp.NewToolResultError("at least one of definition_id or instance_id is required"), nil
	}

	var inst *schema.WorkflowInstance
	if instanceID != "" {
		inst, err = s.engine.GetInstance(ctx, instanceID)
		if err != nil {
			return toolError(err), nil
		}
		if definitionID == "" {
			definitionID = inst.DefinitionID
		}
		if !req.GetBool("include_status", true) {
			inst = nil
		}
	}
	def, err := s.definitions.GetDefinition(ctx, definitionID)
	if err != nil {
		return toolError(err), nil
	}

	model, err := diagram.Build(def, inst)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("diagram build failed: %v", err)), nil
	}
	if format == "ascii" {
		return mcp.NewToolResultText(diagram.RenderASCII(model)), nil
	}
	return mcp.NewToolResultText(diagram.RenderMermaid(model)), nil
}

// handleQuery lists one kind of resource.
func (s *FlowgraphServer) handleQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	resource, err := req.RequireString("resource")
	if err != nil {
		return mcp.NewToolResultError("resource is required"), nil
	}
	filter := mcp.ParseStringMap(req, "filter", map[string]any{})

	switch resource {
	case "definitions":
		return s.queryDefinitions(ctx)
	case "instances":
		return s.queryInstances(ctx, filter)
	case "events":
		return s.queryEvents(ctx, filter)
	case "activity_types":
		return s.queryActivityTypes()
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown resource: %s", resource)), nil
	}
}

func (s *FlowgraphServer) queryDefinitions(ctx context.Context) (*mcp.CallToolResult, error) {
	defs, err := s.definitions.ListDefinitions(ctx)
	if err != nil {
		return toolError(err), nil
	}
	type summary struct {
		ID         string `json:"id"`
		Name       string `json:"name,omitempty"`
		Activities int    `json:"activities"`
	}
	out := make([]summary, 0, len(defs))
	for _, d := range defs {
		out = append(out, summary{ID: d.ID, Name: d.Name, Activities: len(d.Activities)})
	}
	return marshalResult(map[string]any{"definitions": out})
}

func (s *FlowgraphServer) queryInstances(ctx context.Context, filter map[string]any) (*mcp.CallToolResult, error) {
	f := store.InstanceFilter{Limit: extractInt(filter, "limit", 50)}
	if id, ok := filter["definition_id"].(string); ok {
		f.DefinitionID = id
	}
	if status, ok := filter["status"].(string); ok {
		f.Status = schema.WorkflowStatus(status)
	}
	if key, ok := filter["signal_key"].(string); ok {
		f.SignalKey = key
	}

	instances, err := s.instances.ListInstances(ctx, f)
	if err != nil {
		return toolError(err), nil
	}
	type summary struct {
		CorrelationID       string                `json:"correlation_id"`
		DefinitionID        string                `json:"definition_id"`
		Status              schema.WorkflowStatus `json:"status"`
		BlockingActivityIDs []string              `json:"blocking_activity_ids,omitempty"`
	}
	out := make([]summary, 0, len(instances))
	for _, inst := range instances {
		out = append(out, summary{
			CorrelationID:       inst.CorrelationID,
			DefinitionID:        inst.DefinitionID,
			Status:              inst.Status,
			BlockingActivityIDs: inst.BlockingActivityIDs,
		})
	}
	return marshalResult(map[string]any{"instances": out})
}

func (s *FlowgraphServer) queryEvents(ctx context.Context, filter map[string]any) (*mcp.CallToolResult, error) {
	if s.events == nil {
		return mcp.NewToolResultError("event log is not configured"), nil
	}
	instanceID, _ := filter["instance_id"].(string)
	if instanceID == "" {
		return mcp.NewToolResultError("filter.instance_id is required for events"), nil
	}
	since := int64(extractInt(filter, "since", 0))

	events, err := s.events.GetEvents(ctx, instanceID, since)
	if err != nil {
		return toolError(err), nil
	}
	if limit := extractInt(filter, "limit", 0); limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	return marshalResult(map[string]any{"events": events})
}

func (s *FlowgraphServer) queryActivityTypes() (*mcp.CallToolResult, error) {
	if s.types == nil {
		return mcp.NewToolResultError("activity catalog is not configured"), nil
	}
	return marshalResult(map[string]any{"activity_types": s.types.List()})
}

// --- Internal helpers ---

// executionResult renders a manager outcome. A faulted run still carries its
// result, so it is returned as data with the error attached.
func executionResult(res *engine.ExecutionResult, err error) (*mcp.CallToolResult, error) {
	if res == nil {
		if err != nil {
			return toolError(err), nil
		}
		return mcp.NewToolResultError("no result"), nil
	}
	return marshalResult(res)
}

// toolError reports err as a tool failure. WorkflowError text already
// carries the error code.
func toolError(err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(err.Error())
}

func extractInt(filter map[string]any, key string, defaultVal int) int {
	v, ok := filter[key]
	if !ok {
		return defaultVal
	}
	switch val := v.(type) {
	case float64:
		return int(val)
	case int:
		return val
	case int64:
		return int(val)
	case string:
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

// captureSession maps the instance to the calling MCP session for notifications.
func (s *FlowgraphServer) captureSession(ctx context.Context, instanceID string) {
	if session := server.ClientSessionFromContext(ctx); session != nil {
		s.sessions.Register(instanceID, session.SessionID())
	}
}

// marshalResult converts a value to a JSON tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
