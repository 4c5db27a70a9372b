package mcp

import (
	"context"
	"fmt"
	"time"

	gomcp "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/gateway-fm/batchsender/internal/storage"
)

// RegisterTools registers the batch history tools on the MCP server. All
// tools are read-only views over the dispatch journal.
func RegisterTools(s *server.MCPServer, store storage.Storage) {
	registerHistory(s, store)
	registerRunDetail(s, store)
	registerRunTxs(s, store)
}

func registerHistory(s *server.MCPServer, store storage.Storage) {
	tool := gomcp.NewTool("batch_history",
		gomcp.WithDescription("List completed batch dispatch runs with summary counts (paginated)."),
		gomcp.WithNumber("limit",
			gomcp.Description("Max results to return (default: 10, max: 100)"),
		),
		gomcp.WithNumber("offset",
			gomcp.Description("Results offset for pagination (default: 0)"),
		),
	)
	s.AddTool(tool, func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		limit := req.GetInt("limit", 10)
		if limit > 100 {
			limit = 100
		}
		offset := req.GetInt("offset", 0)

		runs, err := store.ListRuns(ctx, limit, offset)
		if err != nil {
			return gomcp.NewToolResultError(fmt.Sprintf("History failed: %v", err)), nil
		}
		return gomcp.NewToolResultText(formatHistory(runs)), nil
	})
}

func registerRunDetail(s *server.MCPServer, store storage.Storage) {
	tool := gomcp.NewTool("batch_detail",
		gomcp.WithDescription("Get detailed results for a specific batch run by ID."),
		gomcp.WithString("id",
			gomcp.Required(),
			gomcp.Description("Batch run ID"),
		),
	)
	s.AddTool(tool, func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return gomcp.NewToolResultError("id is required"), nil
		}
		run, err := store.GetRun(ctx, id)
		if err != nil {
			return gomcp.NewToolResultError(fmt.Sprintf("Run detail failed: %v", err)), nil
		}
		if run == nil {
			return gomcp.NewToolResultError("Batch run not found: " + id), nil
		}
		return gomcp.NewToolResultText(formatRunDetail(run)), nil
	})
}

func registerRunTxs(s *server.MCPServer, store storage.Storage) {
	tool := gomcp.NewTool("batch_txs",
		gomcp.WithDescription("Get per-account transaction outcomes for a batch run (paginated)."),
		gomcp.WithString("id",
			gomcp.Required(),
			gomcp.Description("Batch run ID"),
		),
		gomcp.WithNumber("limit",
			gomcp.Description("Max transactions to return (default: 50, max: 1000)"),
		),
		gomcp.WithNumber("offset",
			gomcp.Description("Offset for pagination (default: 0)"),
		),
	)
	s.AddTool(tool, func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return gomcp.NewToolResultError("id is required"), nil
		}
		limit := req.GetInt("limit", 50)
		if limit > 1000 {
			limit = 1000
		}
		offset := req.GetInt("offset", 0)

		txs, err := store.ListTxs(ctx, id, limit, offset)
		if err != nil {
			return gomcp.NewToolResultError(fmt.Sprintf("Run transactions failed: %v", err)), nil
		}
		return gomcp.NewToolResultText(formatRunTxs(id, txs)), nil
	})
}

// Response formatting functions

func formatHistory(runs []storage.Run) string {
	lines := joinLines(
		section("Batch History"),
		kv("Runs", formatNumber(len(runs))),
		"",
	)

	if len(runs) == 0 {
		lines += "No batch runs found."
		return lines
	}

	for _, run := range runs {
		lines += fmt.Sprintf("### %s\n", run.ID)
		lines += joinLines(
			kv("Mode", run.Mode),
			kv("Recipient", run.Recipient),
			kv("Accounts", formatNumber(run.Accounts)),
			kv("Confirmed", formatNumber(run.Confirmed)),
			kv("Reverted", formatNumber(run.Reverted)),
			kv("Timed Out", formatNumber(run.TimedOut)),
			kv("Failed", formatNumber(run.Failed)),
			kv("Started", formatTime(run.StartedAt)),
		)
		lines += "\n\n"
	}

	return lines
}

func formatRunDetail(run *storage.Run) string {
	lines := joinLines(
		section("Batch Run: "+run.ID),
		kv("Status", run.Status),
		kv("Mode", run.Mode),
		kv("Recipient", run.Recipient),
		kv("Keys Loaded", formatNumber(run.KeysLoaded)),
		kv("Keys Rejected", formatNumber(run.KeysRejected)),
		kv("Accounts", formatNumber(run.Accounts)),
		kv("Confirmed", formatNumber(run.Confirmed)),
		kv("Reverted", formatNumber(run.Reverted)),
		kv("Timed Out", formatNumber(run.TimedOut)),
		kv("Failed", formatNumber(run.Failed)),
		kv("Started", formatTime(run.StartedAt)),
	)
	if run.CompletedAt != nil {
		lines += "\n" + kv("Completed", formatTime(*run.CompletedAt))
		lines += "\n" + kv("Duration", run.CompletedAt.Sub(run.StartedAt).Round(10 * time.Millisecond))
	}
	return lines
}

func formatRunTxs(runID string, txs []storage.TxRecord) string {
	lines := joinLines(
		section("Transactions: "+runID),
		kv("Returned", formatNumber(len(txs))),
		"",
	)

	if len(txs) == 0 {
		lines += "No transactions found."
		return lines
	}

	for i, tx := range txs {
		line := fmt.Sprintf("  [%d] %s  %s  nonce=%d  attempts=%d", i, tx.Address, tx.Status, tx.Nonce, tx.Attempts)
		if tx.TxHash != "" {
			line += "  " + shortHash(tx.TxHash)
		}
		if tx.Error != "" {
			line += "  - " + tx.Error
		}
		lines += line + "\n"
	}

	return lines
}
