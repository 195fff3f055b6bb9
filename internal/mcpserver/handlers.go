package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// Handlers holds the handler functions for each MCP tool.
type Handlers struct {
	client *FraudwatchClient
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(client *FraudwatchClient) *Handlers {
	return &Handlers{client: client}
}

// HandleStartSimulation starts the transaction loop.
func (h *Handlers) HandleStartSimulation(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := h.client.StartSimulation(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to start simulation: %v", err)), nil
	}

	text, err := formatStatusResponse(raw, "Simulation started.")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse response: %v", err)), nil
	}
	return mcp.NewToolResultText(text), nil
}

// HandleStopSimulation stops the transaction loop.
func (h *Handlers) HandleStopSimulation(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := h.client.StopSimulation(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to stop simulation: %v", err)), nil
	}

	text, err := formatStatusResponse(raw, "Simulation stopped.")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse response: %v", err)), nil
	}
	return mcp.NewToolResultText(text), nil
}

// HandleGetStatus returns the current simulation status.
func (h *Handlers) HandleGetStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := h.client.GetStatus(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get status: %v", err)), nil
	}

	text, err := formatStatus(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse status: %v", err)), nil
	}
	return mcp.NewToolResultText(text), nil
}

// HandleGetStats returns the risk level breakdown.
func (h *Handlers) HandleGetStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := h.client.GetStats(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get stats: %v", err)), nil
	}

	text, err := formatStats(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse stats: %v", err)), nil
	}
	return mcp.NewToolResultText(text), nil
}

// HandleTriggerIncident emits a forced fraud incident.
func (h *Handlers) HandleTriggerIncident(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := h.client.TriggerIncident(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to trigger incident: %v", err)), nil
	}

	text, err := formatIncident(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse incident: %v", err)), nil
	}
	return mcp.NewToolResultText(text), nil
}

// HandleRecentTransactions lists recent scored transactions.
func (h *Handlers) HandleRecentTransactions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := req.GetInt("limit", 10)
	riskLevel := req.GetString("risk_level", "")

	raw, err := h.client.RecentTransactions(ctx, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list transactions: %v", err)), nil
	}

	text, err := formatTransactions(raw, riskLevel)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse transactions: %v", err)), nil
	}
	return mcp.NewToolResultText(text), nil
}

// HandleResetHistory deletes all stored transactions.
func (h *Handlers) HandleResetHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	_, err := h.client.ResetHistory(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to reset history: %v", err)), nil
	}

	return mcp.NewToolResultText("Transaction history cleared. Connected dashboards have been notified."), nil
}

// --- Formatting helpers ---

type txInfo struct {
	ID             string `json:"id"`
	UserID         string `json:"userId"`
	Amount         int    `json:"amount"`
	Category       string `json:"category"`
	Location       string `json:"location"`
	Device         string `json:"device"`
	FraudRiskScore int    `json:"fraudRiskScore"`
	RiskLevel      string `json:"riskLevel"`
	Reason         string `json:"reason"`
}

func formatTransactions(raw json.RawMessage, riskLevel string) (string, error) {
	var resp struct {
		Transactions []txInfo `json:"transactions"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", err
	}

	txs := resp.Transactions
	if riskLevel != "" {
		filtered := txs[:0]
		for _, tx := range txs {
			if tx.RiskLevel == riskLevel {
				filtered = append(filtered, tx)
			}
		}
		txs = filtered
	}

	if len(txs) == 0 {
		return "No transactions found.", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d transaction(s), newest first:\n\n", len(txs))
	for i, tx := range txs {
		fmt.Fprintf(&sb, "%d. $%s - %s at %s\n", i+1, formatAmount(tx.Amount), tx.Category, tx.Location)
		fmt.Fprintf(&sb, "   Risk: %s (score %d)\n", tx.RiskLevel, tx.FraudRiskScore)
		fmt.Fprintf(&sb, "   User: %s | Device: %s\n", tx.UserID, tx.Device)
		if tx.Reason != "" {
			fmt.Fprintf(&sb, "   Reason: %s\n", tx.Reason)
		}
		if i < len(txs)-1 {
			sb.WriteString("\n")
		}
	}
	return sb.String(), nil
}

func formatAmount(amount int) string {
	// Group thousands for readability
	s := fmt.Sprintf("%d", amount)
	if len(s) <= 3 {
		return s
	}
	var parts []string
	for len(s) > 3 {
		parts = append([]string{s[len(s)-3:]}, parts...)
		s = s[:len(s)-3]
	}
	parts = append([]string{s}, parts...)
	return strings.Join(parts, ",")
}

func formatStatus(raw json.RawMessage) (string, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return "", err
	}
	return statusText(m), nil
}

// formatStatusResponse handles start/stop responses where the status is
// nested under "status".
func formatStatusResponse(raw json.RawMessage, lead string) (string, error) {
	var resp struct {
		Status map[string]any `json:"status"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", err
	}
	if resp.Status == nil {
		return lead, nil
	}
	return lead + "\n" + statusText(resp.Status), nil
}

func statusText(m map[string]any) string {
	var sb strings.Builder
	sb.WriteString("Simulation status:\n")

	running, _ := m["running"].(bool)
	if running {
		sb.WriteString("  Running: yes\n")
	} else {
		sb.WriteString("  Running: no\n")
	}
	if v, ok := m["tickInterval"].(string); ok && v != "" {
		fmt.Fprintf(&sb, "  Tick interval: %s\n", v)
	}
	if v, ok := m["startedAt"].(string); ok && v != "" {
		fmt.Fprintf(&sb, "  Started at: %s\n", v)
	}
	if v, ok := getNumber(m, "ticks"); ok {
		fmt.Fprintf(&sb, "  Ticks: %.0f\n", v)
	}
	if v, ok := getNumber(m, "tickFailures"); ok && v > 0 {
		fmt.Fprintf(&sb, "  Tick failures: %.0f\n", v)
	}
	if v, ok := getNumber(m, "incidents"); ok && v > 0 {
		fmt.Fprintf(&sb, "  Forced incidents: %.0f\n", v)
	}
	return sb.String()
}

func formatStats(raw json.RawMessage) (string, error) {
	var resp struct {
		ByRiskLevel map[string]float64 `json:"byRiskLevel"`
		Realtime    map[string]any     `json:"realtime"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString("Transactions by risk level:\n")
	total := 0.0
	for _, level := range []string{"Low", "Medium", "High"} {
		count := resp.ByRiskLevel[level]
		fmt.Fprintf(&sb, "  %-6s %.0f\n", level+":", count)
		total += count
	}
	fmt.Fprintf(&sb, "  Total:  %.0f\n", total)

	if resp.Realtime != nil {
		if v, ok := getNumber(resp.Realtime, "activeClients"); ok {
			fmt.Fprintf(&sb, "\nConnected dashboards: %.0f\n", v)
		}
		if v, ok := getNumber(resp.Realtime, "totalAlerts"); ok && v > 0 {
			fmt.Fprintf(&sb, "Fraud alerts sent: %.0f\n", v)
		}
	}
	return sb.String(), nil
}

func formatIncident(raw json.RawMessage) (string, error) {
	var resp struct {
		Transaction txInfo `json:"transaction"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", err
	}
	tx := resp.Transaction
	if tx.ID == "" {
		return "", fmt.Errorf("no transaction in response: %s", string(raw))
	}

	var sb strings.Builder
	sb.WriteString("Forced incident emitted:\n")
	fmt.Fprintf(&sb, "  ID: %s\n", tx.ID)
	fmt.Fprintf(&sb, "  Amount: $%s (%s at %s)\n", formatAmount(tx.Amount), tx.Category, tx.Location)
	fmt.Fprintf(&sb, "  Risk: %s (score %d)\n", tx.RiskLevel, tx.FraudRiskScore)
	fmt.Fprintf(&sb, "  Attacker account: %s\n", tx.UserID)
	if tx.Reason != "" {
		fmt.Fprintf(&sb, "  Reason: %s\n", tx.Reason)
	}
	sb.WriteString("\nConnected dashboards received a fraud alert.")
	return sb.String(), nil
}

func getNumber(m map[string]any, key string) (float64, bool) {
	switch v := m[key].(type) {
	case float64:
		return v, true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	return 0, false
}
