package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/flowgraph/internal/activities"
	"github.com/rendis/flowgraph/internal/engine"
	"github.com/rendis/flowgraph/internal/store"
	"github.com/rendis/flowgraph/internal/validation"
	"github.com/rendis/flowgraph/pkg/schema"
)

// WorkflowEngine is the part of the workflow manager the tools call.
type WorkflowEngine interface {
	StartWorkflowByID(ctx context.Context, definitionID string, input map[string]any) (*engine.ExecutionResult, error)
	ResumeWorkflow(ctx context.Context, instanceID, activityID string, input map[string]any) (*engine.ExecutionResult, error)
	TriggerSignal(ctx context.Context, signalKey string, input map[string]any) ([]*engine.ExecutionResult, error)
	GetInstance(ctx context.Context, instanceID string) (*schema.WorkflowInstance, error)
}

// TypeLister lists registered activity types.
type TypeLister interface {
	List() []activities.TypeInfo
}

// ServerDeps holds the dependencies of a FlowgraphServer.
type ServerDeps struct {
	Engine      WorkflowEngine
	Definitions store.DefinitionStore
	Instances   store.InstanceStore
	Events      store.EventStore
	Validator   validation.Validator
	Types       TypeLister
	Sessions    *SessionRegistry
	Logger      *slog.Logger
}

// FlowgraphServer exposes the workflow engine as MCP tools.
type FlowgraphServer struct {
	engine      WorkflowEngine
	definitions store.DefinitionStore
	instances   store.InstanceStore
	events      store.EventStore
	validator   validation.Validator
	types       TypeLister
	sessions    *SessionRegistry
	logger      *slog.Logger
	mcpServer   *server.MCPServer
}

// NewFlowgraphServer creates a server with every tool registered.
func NewFlowgraphServer(deps ServerDeps) *FlowgraphServer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	sessions := deps.Sessions
	if sessions == nil {
		sessions = NewSessionRegistry()
	}

	s := &FlowgraphServer{
		engine:      deps.Engine,
		definitions: deps.Definitions,
		instances:   deps.Instances,
		events:      deps.Events,
		validator:   deps.Validator,
		types:       deps.Types,
		sessions:    sessions,
		logger:      logger,
	}

	mcpSrv := server.NewMCPServer(
		"flowgraph",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Flowgraph runs graph workflows built from activities and outcome transitions. "+
			"Use flowgraph.define to publish a definition, flowgraph.start to run it, flowgraph.resume or flowgraph.signal "+
			"to continue suspended instances, flowgraph.status to inspect one, and flowgraph.query to list definitions, "+
			"instances, events or activity types, and flowgraph.diagram to draw a definition or an instance's progress."),
	)
	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s
}

// Serve runs the stdio transport until ctx is cancelled or stdin closes.
func (s *FlowgraphServer) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying server for custom transports.
func (s *FlowgraphServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// Sessions returns the instance-to-session registry used for notifications.
func (s *FlowgraphServer) Sessions() *SessionRegistry {
	return s.sessions
}

func (s *FlowgraphServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: defineTool(), Handler: s.handleDefine},
		{Tool: startTool(), Handler: s.handleStart},
		{Tool: resumeTool(), Handler: s.handleResume},
		{Tool: signalTool(), Handler: s.handleSignal},
		{Tool: statusTool(), Handler: s.handleStatus},
		{Tool: queryTool(), Handler: s.handleQuery},
		{Tool: diagramTool(), Handler: s.handleDiagram},
	}
}

// --- Tool definitions ---

func defineTool() mcp.Tool {
	return mcp.NewTool("flowgraph.define",
		mcp.WithDescription("Validate and publish a workflow definition"),
		mcp.WithObject("definition", mcp.Required(), mcp.Description("Workflow definition: id, activities, transitions, optional inputSchema")),
	)
}

func startTool() mcp.Tool {
	return mcp.NewTool("flowgraph.start",
		mcp.WithDescription("Start a workflow instance from a published definition"),
		mcp.WithString("definition_id", mcp.Required(), mcp.Description("ID of the published definition")),
		mcp.WithObject("input", mcp.Description("Workflow input parameters")),
	)
}

func resumeTool() mcp.Tool {
	return mcp.NewTool("flowgraph.resume",
		mcp.WithDescription("Resume a suspended instance at one of its blocking activities"),
		mcp.WithString("instance_id", mcp.Required(), mcp.Description("Correlation id of the instance")),
		mcp.WithString("activity_id", mcp.Required(), mcp.Description("Blocking activity to resume")),
		mcp.WithObject("input", mcp.Description("Values merged into the instance variables")),
	)
}

func signalTool() mcp.Tool {
	return mcp.NewTool("flowgraph.signal",
		mcp.WithDescription("Resume every suspended instance waiting on a signal key"),
		mcp.WithString("signal_key", mcp.Required(), mcp.Description("Signal key the instances wait on")),
		mcp.WithObject("input", mcp.Description("Values merged into each resumed instance")),
	)
}

func statusTool() mcp.Tool {
	return mcp.NewTool("flowgraph.status",
		mcp.WithDescription("Get the persisted state of a workflow instance"),
		mcp.WithString("instance_id", mcp.Required(), mcp.Description("Correlation id of the instance")),
	)
}

func queryTool() mcp.Tool {
	return mcp.NewTool("flowgraph.query",
		mcp.WithDescription("List definitions, instances, events or activity types"),
		mcp.WithString("resource", mcp.Required(),
			mcp.Enum("definitions", "instances", "events", "activity_types"),
			mcp.Description("Type of resource to query"),
		),
		mcp.WithObject("filter", mcp.Description("Filter criteria (definition_id, status, signal_key, instance_id, since, limit)")),
	)
}

func diagramTool() mcp.Tool {
	return mcp.NewTool("flowgraph.diagram",
		mcp.WithDescription("Draw a workflow definition, or an instance's progress through it, as ASCII art or a Mermaid flowchart"),
		mcp.WithString("definition_id", mcp.Description("Definition to draw")),
		mcp.WithString("instance_id", mcp.Description("Instance to draw with its runtime status overlay")),
		mcp.WithString("format", mcp.Required(),
			mcp.Enum("ascii", "mermaid"),
			mcp.Description("Output format: ascii (text) or mermaid (flowchart syntax)"),
		),
		mcp.WithBoolean("include_status", mcp.Description("Overlay executed, suspended and faulted activities (default: true for instance_id)")),
	)
}
