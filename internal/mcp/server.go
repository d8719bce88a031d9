// Package mcp exposes documentation search over the Model Context Protocol.
// Each registered source (and each group) gets its own search tool so MCP
// clients can discover what documentation is available.
package mcp

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/server"
	"github.com/phuslu/log"

	"github.com/dnys1/mcp-docs/internal/search"
	"github.com/dnys1/mcp-docs/internal/storage"
)

const (
	// ServerName is the MCP server name
	ServerName = "mcp-docs"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp    *server.MCPServer
	store  storage.Store
	search *search.Service
}

// NewServer creates an MCP server and registers one search tool per source
// and per group found in the store.
func NewServer(ctx context.Context, store storage.Store, searchSvc *search.Service) (*Server, error) {
	s := &Server{
		mcp:    server.NewMCPServer(ServerName, ServerVersion),
		store:  store,
		search: searchSvc,
	}
	if err := s.registerTools(ctx); err != nil {
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}
	return s, nil
}

// Serve runs the server on stdio until the client disconnects.
func (s *Server) Serve() error {
	log.Info().Str("server", ServerName).Str("version", ServerVersion).Msg("serving MCP on stdio")
	return server.ServeStdio(s.mcp)
}

// registerTools walks the sources table and adds a tool per source plus one
// per group. Sources shadow groups of the same name, matching resolution in
// the store.
func (s *Server) registerTools(ctx context.Context) error {
	sources, err := s.store.ListSources(ctx)
	if err != nil {
		return err
	}
	if len(sources) == 0 {
		log.Warn().Msg("no sources registered, serving without tools")
		return nil
	}

	sourceNames := make(map[string]bool, len(sources))
	groups := make(map[string][]*storage.Source)

	for _, src := range sources {
		sourceNames[src.Name] = true
		s.mcp.AddTool(searchDocsTool(src), s.handleSearchDocs(src))
		if src.GroupName != "" {
			groups[src.GroupName] = append(groups[src.GroupName], src)
		}
	}

	for name, members := range groups {
		if sourceNames[name] {
			continue
		}
		s.mcp.AddTool(searchGroupTool(name, members), s.handleSearchGroup(name, members))
	}

	log.Info().
		Int("sources", len(sources)).
		Int("groups", len(groups)).
		Msg("registered search tools")
	return nil
}
