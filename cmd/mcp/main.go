// Command mcp serves the document catalog to MCP clients over stdio with
// two tools, search_documents and get_document.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Adithya-Monish-Kumar-K/docshelf/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/docshelf/internal/mcptools"
	"github.com/Adithya-Monish-Kumar-K/docshelf/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/docshelf/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to config file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// stdout carries the protocol; logs go to stderr.
	slog.SetDefault(logger.New(os.Stderr, cfg.Logging.Level, cfg.Logging.Format))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cat, _, closeCatalog := catalog.Open(cfg, nil)
	defer closeCatalog()

	server := mcp.NewServer(&mcp.Implementation{Name: "docshelf", Version: "1.0.0"}, nil)
	mcptools.Register(server, cat, cfg.Site.BaseURL)

	if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil {
		// EOF is the normal end when the client closes stdin.
		if errors.Is(err, io.EOF) || strings.Contains(err.Error(), "server is closing") {
			slog.Debug("mcp server stopped", "reason", err)
			return
		}
		slog.Error("mcp server failed", "error", err)
		os.Exit(1)
	}
}
