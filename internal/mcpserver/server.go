package mcpserver

import (
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer creates a configured MCP server with all fraudwatch tools registered.
func NewMCPServer(cfg Config) *server.MCPServer {
	s := server.NewMCPServer("fraudwatch", "1.0.0")
	client := NewFraudwatchClient(cfg)
	h := NewHandlers(client)

	s.AddTool(ToolStartSimulation, h.HandleStartSimulation)
	s.AddTool(ToolStopSimulation, h.HandleStopSimulation)
	s.AddTool(ToolGetStatus, h.HandleGetStatus)
	s.AddTool(ToolGetStats, h.HandleGetStats)
	s.AddTool(ToolTriggerIncident, h.HandleTriggerIncident)
	s.AddTool(ToolRecentTransactions, h.HandleRecentTransactions)
	s.AddTool(ToolResetHistory, h.HandleResetHistory)

	return s
}
