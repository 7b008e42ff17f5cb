// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes folio tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/folio/internal/models"
	"github.com/starford/folio/internal/postservice"
)

// Server wraps the MCP server with folio tools.
type Server struct {
	mcp *server.MCPServer
	svc *postservice.Service
}

// New creates a new MCP server with all folio tools registered.
func New(svc *postservice.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Folio",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_posts",
		mcp.WithDescription("List posts of the open workspace with their title, date, categories and tags."),
		mcp.WithString("tag", mcp.Description("Only posts carrying this tag")),
		mcp.WithString("category", mcp.Description("Only posts in this category")),
		mcp.WithString("sort", mcp.Description("Sort order"), mcp.Enum("title", "date", "path")),
	), s.listPosts)

	s.mcp.AddTool(mcp.NewTool("read_post",
		mcp.WithDescription("Read the full Markdown source of a post."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path relative to the workspace root (e.g. posts/hello.md)")),
	), s.readPost)

	s.mcp.AddTool(mcp.NewTool("create_post",
		mcp.WithDescription("Create a new post. Read the post format first via "+
			"get_post_format or the "+PostFormatURI+" resource."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path for the new post (must end with .md)")),
		mcp.WithString("attributes", mcp.Description(`Front matter as a JSON object, e.g. {"title":"Hello","tags":["go"]}`)),
		mcp.WithString("body", mcp.Description("Markdown body")),
	), s.createPost)

	s.mcp.AddTool(mcp.NewTool("update_post_attributes",
		mcp.WithDescription("Merge front matter attributes into a post. Keys sent replace existing "+
			"values in place, new keys are appended, other keys are kept."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path of the post to update")),
		mcp.WithString("attributes", mcp.Required(), mcp.Description("Attributes to merge as a JSON object")),
	), s.updatePostAttributes)

	s.mcp.AddTool(mcp.NewTool("get_schema",
		mcp.WithDescription("Infer the front matter schema of the workspace: every key with its type and sample values."),
	), s.getSchema)

	s.mcp.AddTool(mcp.NewTool("search_posts",
		mcp.WithDescription("Search post titles and bodies. Title matches come first."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 20)")),
	), s.searchPosts)

	s.mcp.AddTool(mcp.NewTool("get_post_format",
		mcp.WithDescription("Returns the folio post format. "+
			"Call this before creating or updating posts to ensure correct structure."),
	), s.getPostFormat)

	s.mcp.AddResource(
		mcp.NewResource(PostFormatURI, "Post Format",
			mcp.WithResourceDescription("Markdown and front matter format of folio posts."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readPostFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func parseAttributes(raw string) (*models.Attributes, error) {
	attrs := models.NewAttributes()
	if raw == "" {
		return attrs, nil
	}
	if err := json.Unmarshal([]byte(raw), attrs); err != nil {
		return nil, fmt.Errorf("attributes must be a JSON object: %w", err)
	}
	return attrs, nil
}

func (s *Server) listPosts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	items := s.svc.ListPosts(ctx, postservice.ListFilter{
		Tag:      req.GetString("tag", ""),
		Category: req.GetString("category", ""),
		Sort:     req.GetString("sort", ""),
	})
	return jsonResult(items)
}

func (s *Server) readPost(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	post, err := s.svc.GetPost(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", path)), nil
	}
	return mcp.NewToolResultText(post.Content), nil
}

func (s *Server) createPost(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	attrs, err := parseAttributes(req.GetString("attributes", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if _, err := s.svc.CreatePost(ctx, path, attrs, req.GetString("body", "")); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s", path)), nil
}

func (s *Server) updatePostAttributes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	raw, err := req.RequireString("attributes")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	attrs, err := parseAttributes(raw)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	post, err := s.svc.UpdatePost(ctx, path, postservice.UpdateRequest{Attributes: attrs})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(post.Attributes)
}

func (s *Server) getSchema(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.svc.Schema(ctx))
}

func (s *Server) searchPosts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(s.svc.Search(ctx, query, req.GetInt("limit", 20)))
}

func (s *Server) getPostFormat(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(PostFormatContract), nil
}

func (s *Server) readPostFormatResource(context.Context, mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      PostFormatURI,
			MIMEType: "text/markdown",
			Text:     PostFormatContract,
		},
	}, nil
}
