package api

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/vitae/internal/ingest"
	"github.com/kalambet/vitae/internal/metrics"
	"github.com/kalambet/vitae/internal/records"
	"github.com/kalambet/vitae/internal/search"
	"github.com/kalambet/vitae/internal/store"
)

const maxSearchLimit = 50

// MCPDeps holds dependencies for the MCP server. Ingester is optional; when
// nil the ingest_resume tool reports that ingestion is unavailable.
type MCPDeps struct {
	Store          *store.Store
	Ingester       Ingester
	Metrics        *metrics.Collector
	MaxUploadBytes int64
	Now            func() time.Time
}

// NewMCPServer creates an MCP server with the record tools and resources
// registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	if deps.Now == nil {
		deps.Now = time.Now
	}

	s := server.NewMCPServer(
		"vitae",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("vitae stores experience and project records extracted from resumes."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("list_experiences",
			mcp.WithDescription("List stored work experiences with their ids."),
			mcp.WithString("group", mcp.Description(`Set to "time" to bucket experiences by upload time`)),
		),
		mcpListExperiences(deps),
	)

	s.AddTool(
		mcp.NewTool("list_projects",
			mcp.WithDescription("List stored projects with their ids."),
		),
		mcpListProjects(deps),
	)

	s.AddTool(
		mcp.NewTool("search_records",
			mcp.WithDescription("Fuzzy search experiences or projects."),
			mcp.WithString("query", mcp.Description("Search text"), mcp.Required()),
			mcp.WithString("kind", mcp.Description("experience (default) or project")),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 10)")),
		),
		mcpSearchRecords(deps),
	)

	s.AddTool(
		mcp.NewTool("delete_record",
			mcp.WithDescription("Delete an experience or project by the id returned from a list or search."),
			mcp.WithString("kind", mcp.Description("experience or project"), mcp.Required()),
			mcp.WithString("id", mcp.Description("Record id"), mcp.Required()),
		),
		mcpDeleteRecord(deps),
	)

	s.AddTool(
		mcp.NewTool("ingest_resume",
			mcp.WithDescription("Extract and store records from a resume file on the local disk."),
			mcp.WithString("path", mcp.Description("Path to a PDF, DOCX, TXT or MD file"), mcp.Required()),
		),
		mcpIngestResume(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"vitae://experiences",
			"Experiences",
			mcp.WithResourceDescription("All stored experiences as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceCollection(func() any { return deps.Store.Experiences.ReadAll() }),
	)

	s.AddResource(
		mcp.NewResource(
			"vitae://projects",
			"Projects",
			mcp.WithResourceDescription("All stored projects as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceCollection(func() any { return deps.Store.Projects.ReadAll() }),
	)

	return s
}

func mcpListExperiences(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		exps := deps.Store.Experiences.ReadAll()
		switch group := req.GetString("group", ""); group {
		case "":
			return mcpJSON(records.IdentifyExperiences(exps)), nil
		case "time":
			return mcpJSON(records.GroupByUploadTime(exps, deps.Now())), nil
		default:
			return mcpError(fmt.Sprintf("unknown group %q", group)), nil
		}
	}
}

func mcpListProjects(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcpJSON(records.IdentifyProjects(deps.Store.Projects.ReadAll())), nil
	}
}

func mcpSearchRecords(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		limit := req.GetInt("limit", 10)
		if limit <= 0 {
			limit = 10
		}
		if limit > maxSearchLimit {
			limit = maxSearchLimit
		}

		switch kind := req.GetString("kind", metrics.KindExperience); kind {
		case metrics.KindExperience:
			hits := search.Experiences(query, deps.Store.Experiences.ReadAll())
			return mcpJSON(hits[:min(limit, len(hits))]), nil
		case metrics.KindProject:
			hits := search.Projects(query, deps.Store.Projects.ReadAll())
			return mcpJSON(hits[:min(limit, len(hits))]), nil
		default:
			return mcpError(fmt.Sprintf("unknown kind %q", kind)), nil
		}
	}
}

func mcpDeleteRecord(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		kind, err := req.RequireString("kind")
		if err != nil {
			return mcpError("kind is required"), nil
		}
		id, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}

		var n int
		switch kind {
		case metrics.KindExperience:
			n, err = deps.Store.DeleteExperienceByID(id)
		case metrics.KindProject:
			n, err = deps.Store.DeleteProjectByID(id)
		default:
			return mcpError(fmt.Sprintf("unknown kind %q", kind)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("delete failed: %v", err)), nil
		}
		if n == 0 {
			return mcpError(fmt.Sprintf("no %s with id %s", kind, id)), nil
		}

		deps.Metrics.Deleted(kind, n)
		return mcpText(fmt.Sprintf("Deleted %d %s record(s)", n, kind)), nil
	}
}

func mcpIngestResume(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if deps.Ingester == nil {
			return mcpError("ingestion not available"), nil
		}
		path, err := req.RequireString("path")
		if err != nil {
			return mcpError("path is required"), nil
		}

		fi, err := os.Stat(path)
		if err != nil {
			return mcpError(fmt.Sprintf("cannot read %s: %v", path, err)), nil
		}
		if deps.MaxUploadBytes > 0 && fi.Size() > deps.MaxUploadBytes {
			return mcpError(fmt.Sprintf("%s is larger than %d bytes", path, deps.MaxUploadBytes)), nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return mcpError(fmt.Sprintf("cannot read %s: %v", path, err)), nil
		}

		res, err := deps.Ingester.Run(ctx, ingest.Upload{Name: filepath.Base(path), Data: data})
		if err != nil {
			return mcpError(fmt.Sprintf("ingestion failed: %v", err)), nil
		}

		summary := struct {
			IngestionID string             `json:"ingestionId"`
			Structuring ingest.Structuring `json:"structuring"`
			Stored      ingest.Counts      `json:"stored"`
			Duplicates  ingest.Counts      `json:"duplicates"`
		}{res.IngestionID, res.Structuring, res.Stored, res.Duplicates}
		return mcpJSON(summary), nil
	}
}

func mcpResourceCollection(read func() any) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		b, err := json.Marshal(read())
		if err != nil {
			return nil, fmt.Errorf("failed to marshal records: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpJSON(v any) *mcp.CallToolResult {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err))
	}
	return mcpText(string(b))
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
