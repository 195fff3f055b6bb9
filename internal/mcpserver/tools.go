package mcpserver

import "github.com/mark3labs/mcp-go/mcp"

// Tool definitions for the fraudwatch MCP server.
// Descriptions are what the LLM reads to decide which tool to use.

var ToolStartSimulation = mcp.NewTool("start_simulation",
	mcp.WithDescription(
		"Start the fraudwatch transaction simulation. "+
			"Synthetic transactions are generated on a fixed interval, scored for fraud risk, "+
			"persisted, and streamed to connected dashboards. "+
			"Returns an error if the simulation is already running."),
)

var ToolStopSimulation = mcp.NewTool("stop_simulation",
	mcp.WithDescription(
		"Stop the fraudwatch transaction simulation. "+
			"History and connected dashboards are unaffected. "+
			"Returns an error if the simulation is not running."),
)

var ToolGetStatus = mcp.NewTool("get_simulation_status",
	mcp.WithDescription(
		"Get the current simulation status: whether it is running, when it started, "+
			"tick interval, and counters for ticks, failures, and forced incidents."),
)

var ToolGetStats = mcp.NewTool("get_fraud_stats",
	mcp.WithDescription(
		"Get fraud statistics: how many stored transactions fall into each risk level "+
			"(Low/Medium/High) plus realtime streaming stats."),
)

var ToolTriggerIncident = mcp.NewTool("trigger_incident",
	mcp.WithDescription(
		"Inject a single forced fraud incident: a large transaction from a synthetic "+
			"attacker account, guaranteed to score High risk. Works whether or not the "+
			"simulation loop is running. Use this to exercise alerting end to end."),
)

var ToolRecentTransactions = mcp.NewTool("recent_transactions",
	mcp.WithDescription(
		"List the most recent scored transactions, newest first. "+
			"Each entry includes amount, category, location, device, fraud risk score (0-100), "+
			"risk level, and the classifier's reason."),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of transactions to return (default 10)")),
	mcp.WithString("risk_level",
		mcp.Description("Only show transactions at this risk level"),
		mcp.Enum("Low", "Medium", "High")),
)

var ToolResetHistory = mcp.NewTool("reset_history",
	mcp.WithDescription(
		"Delete all stored transactions and notify connected dashboards to clear their views. "+
			"This cannot be undone."),
)
