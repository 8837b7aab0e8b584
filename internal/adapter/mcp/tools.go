package mcp

import (
	"context"
	"encoding/json"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// registerTools registers all MCP tools on the server.
func (s *Server) registerTools() {
	s.mcpServer.AddTools(
		s.submitPlanTool(),
		s.confirmExecutionTool(),
		s.cancelExecutionTool(),
		s.listCapabilitiesTool(),
	)
}

func (s *Server) submitPlanTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("submit_plan",
		mcplib.WithDescription("Submit an action plan for a SAP workspace. Safe plans execute "+
			"immediately; plans with destructive jobs return a confirmation id instead."),
		mcplib.WithString("plan",
			mcplib.Required(),
			mcplib.Description("The plan as a JSON object with target_id, intent, and jobs"),
		),
		mcplib.WithString("conversation_id",
			mcplib.Description("Conversation to attribute the plan to"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleSubmitPlan,
	}
}

func (s *Server) confirmExecutionTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("confirm_execution",
		mcplib.WithDescription("Confirm a pending destructive plan by its confirmation id and run it"),
		mcplib.WithString("confirmation_id",
			mcplib.Required(),
			mcplib.Description("The confirmation id returned by submit_plan"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleConfirmExecution,
	}
}

func (s *Server) cancelExecutionTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("cancel_execution",
		mcplib.WithDescription("Cancel a pending destructive plan by its confirmation id"),
		mcplib.WithString("confirmation_id",
			mcplib.Required(),
			mcplib.Description("The confirmation id returned by submit_plan"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleCancelExecution,
	}
}

func (s *Server) listCapabilitiesTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("list_capabilities",
		mcplib.WithDescription("List the capabilities the SAPGuard orchestrator can route to"),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleListCapabilities,
	}
}

func (s *Server) handleSubmitPlan(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	if s.deps.Plans == nil {
		return mcplib.NewToolResultError("plan service not configured"), nil
	}
	args := req.GetArguments()
	rawPlan, ok := args["plan"].(string)
	if !ok || rawPlan == "" {
		return mcplib.NewToolResultError("plan is required"), nil
	}
	conversationID, _ := args["conversation_id"].(string)

	outcome, err := s.deps.Plans.Submit(ctx, rawPlan, conversationID, "")
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to submit plan", err), nil
	}
	data, err := json.Marshal(outcome)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal outcome", err), nil
	}
	return mcplib.NewToolResultText(string(data)), nil
}

func (s *Server) handleConfirmExecution(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	return s.decideConfirmation(ctx, req, true)
}

func (s *Server) handleCancelExecution(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	return s.decideConfirmation(ctx, req, false)
}

func (s *Server) decideConfirmation(ctx context.Context, req mcplib.CallToolRequest, confirm bool) (*mcplib.CallToolResult, error) {
	if s.deps.Plans == nil {
		return mcplib.NewToolResultError("plan service not configured"), nil
	}
	args := req.GetArguments()
	id, ok := args["confirmation_id"].(string)
	if !ok || id == "" {
		return mcplib.NewToolResultError("confirmation_id is required"), nil
	}

	status, results, err := s.deps.Plans.Decide(ctx, id, confirm)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to resolve confirmation", err), nil
	}
	data, err := json.Marshal(map[string]any{"status": status, "results": results})
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal result", err), nil
	}
	return mcplib.NewToolResultText(string(data)), nil
}

func (s *Server) handleListCapabilities(_ context.Context, _ mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	if s.deps.Registry == nil {
		return mcplib.NewToolResultError("registry not configured"), nil
	}
	data, err := json.Marshal(s.deps.Registry.List())
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal capabilities", err), nil
	}
	return mcplib.NewToolResultText(string(data)), nil
}
