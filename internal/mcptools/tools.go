// Package mcptools exposes catalog search and lookup as MCP tools.
package mcptools

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Adithya-Monish-Kumar-K/docshelf/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/docshelf/internal/search"
	apperrors "github.com/Adithya-Monish-Kumar-K/docshelf/pkg/errors"
)

// RecordSource is satisfied by *catalog.Catalog.
type RecordSource interface {
	Records(ctx context.Context) ([]catalog.Record, bool, error)
}

// SearchInput is the search_documents tool input.
type SearchInput struct {
	Query string `json:"query" jsonschema:"search words separated by spaces or hyphens"`
	Page  int    `json:"page,omitempty" jsonschema:"1-based result page, 10 results per page (default 1)"`
}

// DocumentHit is one ranked search result.
type DocumentHit struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Summary   string `json:"summary"`
	Pages     int    `json:"pages"`
	Views     int    `json:"views"`
	Relevance int    `json:"relevance"`
	URL       string `json:"url"`
}

// SearchOutput is the search_documents tool result.
type SearchOutput struct {
	Query      string        `json:"query"`
	Total      int           `json:"total"`
	Page       int           `json:"page"`
	TotalPages int           `json:"total_pages"`
	Results    []DocumentHit `json:"results"`
}

// GetDocumentInput is the get_document tool input.
type GetDocumentInput struct {
	ID string `json:"id" jsonschema:"numeric document ID"`
}

// GetDocumentOutput is the get_document tool result.
type GetDocumentOutput struct {
	Document DocumentHit `json:"document"`
}

// Register adds search_documents and get_document to server. Result URLs
// are prefixed with baseURL.
func Register(server *mcp.Server, src RecordSource, baseURL string) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "search_documents",
		Description: "Search the document catalog by title and summary. Exact title matches rank first, then phrase matches in the title, then single words in the title, then words in the summary.",
	}, NewSearchHandler(src, baseURL))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_document",
		Description: "Fetch one document's metadata by its numeric ID.",
	}, NewGetDocumentHandler(src, baseURL))
}

// NewSearchHandler returns the search_documents tool handler.
func NewSearchHandler(src RecordSource, baseURL string) func(context.Context, *mcp.CallToolRequest, SearchInput) (*mcp.CallToolResult, SearchOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input SearchInput) (*mcp.CallToolResult, SearchOutput, error) {
		q := search.ParseQuery(search.QueryFromInput(input.Query))
		if q.Empty() {
			return nil, SearchOutput{}, fmt.Errorf("%w: query must contain at least one word", apperrors.ErrInvalidInput)
		}
		records, _, err := src.Records(ctx)
		if err != nil {
			return nil, SearchOutput{}, err
		}
		resp := search.Search(q, records, input.Page)
		out := SearchOutput{
			Query:      q.Raw,
			Total:      resp.Total,
			Page:       resp.Window.Page,
			TotalPages: resp.Window.TotalPages,
			Results:    make([]DocumentHit, 0, len(resp.Results)),
		}
		for _, res := range resp.Results {
			out.Results = append(out.Results, hit(res.Record, res.Relevance, baseURL))
		}
		return nil, out, nil
	}
}

// NewGetDocumentHandler returns the get_document tool handler.
func NewGetDocumentHandler(src RecordSource, baseURL string) func(context.Context, *mcp.CallToolRequest, GetDocumentInput) (*mcp.CallToolResult, GetDocumentOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input GetDocumentInput) (*mcp.CallToolResult, GetDocumentOutput, error) {
		records, _, err := src.Records(ctx)
		if err != nil {
			return nil, GetDocumentOutput{}, err
		}
		doc, ok := catalog.FindByID(records, input.ID)
		if !ok {
			return nil, GetDocumentOutput{}, fmt.Errorf("%w: id %q", apperrors.ErrDocumentNotFound, input.ID)
		}
		return nil, GetDocumentOutput{Document: hit(doc, 0, baseURL)}, nil
	}
}

func hit(r catalog.Record, relevance int, baseURL string) DocumentHit {
	return DocumentHit{
		ID:        r.ID,
		Title:     r.Title,
		Summary:   r.Summary,
		Pages:     r.Pages,
		Views:     r.Views,
		Relevance: relevance,
		URL:       baseURL + r.Path(),
	}
}
