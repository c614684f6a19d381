package mcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFlowgraphServer(t *testing.T) {
	s := NewFlowgraphServer(ServerDeps{})
	require.NotNil(t, s)
	assert.NotNil(t, s.MCPServer())
	assert.NotNil(t, s.logger)
	assert.NotNil(t, s.Sessions())
}

func TestToolDefinitions(t *testing.T) {
	tests := []struct {
		toolName    string
		description string
	}{
		{"flowgraph.define", "Validate and publish a workflow definition"},
		{"flowgraph.start", "Start a workflow instance from a published definition"},
		{"flowgraph.resume", "Resume a suspended instance at one of its blocking activities"},
		{"flowgraph.signal", "Resume every suspended instance waiting on a signal key"},
		{"flowgraph.status", "Get the persisted state of a workflow instance"},
		{"flowgraph.query", "List definitions, instances, events or activity types"},
		{"flowgraph.diagram", "Draw a workflow definition, or an instance's progress through it, as ASCII art or a Mermaid flowchart"},
	}

	s := NewFlowgraphServer(ServerDeps{})
	require.Len(t, s.MCPServer().ListTools(), len(tests))

	for _, tc := range tests {
		t.Run(tc.toolName, func(t *testing.T) {
			tool := s.MCPServer().GetTool(tc.toolName)
			require.NotNil(t, tool)
			assert.Equal(t, tc.description, tool.Tool.Description)
		})
	}
}
