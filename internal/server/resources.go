package server

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"refmap/internal/graph"
)

func (s *Server) registerResources() {
	s.mcpServer.AddResource(&mcp.Resource{
		URI:         "refmap://usage-guidelines",
		Name:        "Usage Guidelines",
		Description: "How and when to use the refmap reference graph tools",
		MIMEType:    "text/markdown",
	}, func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{
				{
					URI:      "refmap://usage-guidelines",
					MIMEType: "text/markdown",
					Text:     systemPrompt,
				},
			},
		}, nil
	})

	// Build a map of tool name -> schema JSON for dynamic dispatch.
	schemaMap := buildSchemaMap()

	s.mcpServer.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: "refmap://schemas/{tool_name}",
		Name:        "Tool Schema",
		Description: "JSON schema for the named tool's arguments",
		MIMEType:    "application/schema+json",
	}, func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		uri := req.Params.URI
		toolName := strings.TrimPrefix(uri, "refmap://schemas/")
		schemaJSON, ok := schemaMap[toolName]
		if !ok {
			return nil, fmt.Errorf("unknown tool schema: %q", toolName)
		}
		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{
				{
					URI:      uri,
					MIMEType: "application/schema+json",
					Text:     schemaJSON,
				},
			},
		}, nil
	})

	s.mcpServer.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: "refmap://graph/{+file_path}",
		Name:        "File Reference Graph",
		Description: "Indexed symbols of one file together with every recorded reference",
		MIMEType:    "application/json",
	}, func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		uri := req.Params.URI
		rel := strings.TrimPrefix(uri, "refmap://graph/")

		symbols, err := s.store.SymbolsInFile(ctx, rel)
		if err != nil {
			return nil, fmt.Errorf("failed to query symbols for %s: %w", rel, err)
		}
		if len(symbols) == 0 {
			return nil, fmt.Errorf("no symbols indexed for %q", rel)
		}
		refs, err := s.store.ReferencesForFile(ctx, rel)
		if err != nil {
			return nil, fmt.Errorf("failed to query references for %s: %w", rel, err)
		}

		type fileEntry struct {
			Name       string            `json:"name"`
			Kind       string            `json:"kind"`
			Range      string            `json:"range"`
			References []graph.Reference `json:"references"`
		}
		payload := struct {
			FilePath string      `json:"file_path"`
			Symbols  []fileEntry `json:"symbols"`
		}{FilePath: rel}
		for _, sym := range symbols {
			symRefs := refs[sym.Entry.Path]
			if symRefs == nil {
				symRefs = []graph.Reference{}
			}
			payload.Symbols = append(payload.Symbols, fileEntry{
				Name: sym.Entry.Path,
				Kind: sym.Entry.KindName(),
				Range: fmt.Sprintf("%d:%d-%d:%d",
					sym.Entry.Range.Start.Line, sym.Entry.Range.Start.Character,
					sym.Entry.Range.End.Line, sym.Entry.Range.End.Character),
				References: symRefs,
			})
		}

		jsonBytes, err := json.MarshalIndent(payload, "", "  ")
		if err != nil {
			return nil, err
		}
		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{
				{
					URI:      uri,
					MIMEType: "application/json",
					Text:     string(jsonBytes),
				},
			},
		}, nil
	})
}

// buildSchemaMap constructs a map from tool name to its JSON schema string.
// Schemas are derived from the args structs using jsonschema inference.
func buildSchemaMap() map[string]string {
	m := make(map[string]string)
	addSchema[IndexArgs](m, "index")
	addSchema[IndexStatusArgs](m, "index_status")
	addSchema[FindReferencesArgs](m, "find_references")
	addSchema[ListFileSymbolsArgs](m, "list_file_symbols")
	addSchema[SearchSymbolsArgs](m, "search_symbols")
	return m
}

func addSchema[T any](m map[string]string, name string) {
	schema, err := jsonschema.For[T](nil)
	if err != nil {
		return
	}
	schemaJSON, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return
	}
	m[name] = string(schemaJSON)
}
