// Batch sender MCP server.
// Exposes batch run history tools over MCP stdio transport.
package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"

	mcptools "github.com/gateway-fm/batchsender/internal/mcp"
	"github.com/gateway-fm/batchsender/internal/storage"
)

func main() {
	dbPath := os.Getenv("BATCHSEND_DB")
	if dbPath == "" {
		dbPath = "data/batchsender.db"
	}

	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open journal %s: %v\n", dbPath, err)
		os.Exit(1)
	}
	defer store.Close()

	s := server.NewMCPServer(
		"batchsender",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	mcptools.RegisterTools(s, store)

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "MCP server error: %v\n", err)
		os.Exit(1)
	}
}
