package discovery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/vikashloomba/mcp-hub-gateway/pkg/registry"
)

const maxToolListBytes = 4 << 20

var errEmptyToolList = errors.New("empty tool list document")

func (p *HTTPProber) listToolsREST(ctx context.Context, backend registry.BackendDescriptor) ([]ToolDescriptor, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, backend.URL(backend.ToolsPath), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := p.opts.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tool list: HTTP %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxToolListBytes))
	if err != nil {
		return nil, err
	}
	return decodeToolList(data)
}

// decodeToolList accepts either a bare JSON array of tools or an object with
// a "tools" array.
func decodeToolList(data []byte) ([]ToolDescriptor, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, errEmptyToolList
	}
	var tools []ToolDescriptor
	if data[0] == '[' {
		if err := json.Unmarshal(data, &tools); err != nil {
			return nil, fmt.Errorf("decode tool list: %w", err)
		}
	} else {
		var wrapped struct {
			Tools []ToolDescriptor `json:"tools"`
		}
		if err := json.Unmarshal(data, &wrapped); err != nil {
			return nil, fmt.Errorf("decode tool list: %w", err)
		}
		tools = wrapped.Tools
	}
	return uniqueTools(tools), nil
}

// uniqueTools drops unnamed entries and keeps the first tool of each name.
// Origin fields are cleared; only the aggregator sets them.
func uniqueTools(tools []ToolDescriptor) []ToolDescriptor {
	out := make([]ToolDescriptor, 0, len(tools))
	seen := make(map[string]struct{}, len(tools))
	for _, t := range tools {
		if t.Name == "" {
			continue
		}
		if _, dup := seen[t.Name]; dup {
			continue
		}
		seen[t.Name] = struct{}{}
		t.OriginBackendID = ""
		t.OriginBackendName = ""
		out = append(out, t)
	}
	return out
}

func (p *HTTPProber) listToolsMCP(ctx context.Context, backend registry.BackendDescriptor) ([]ToolDescriptor, error) {
	client := mcp.NewClient(&mcp.Implementation{
		Name:    p.opts.ClientName,
		Version: p.opts.ClientVersion,
	}, nil)
	transport := &mcp.StreamableClientTransport{
		Endpoint:   backend.URL(backend.MCPPath),
		HTTPClient: p.opts.HTTPClient,
	}
	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", transport.Endpoint, err)
	}
	defer func() { _ = session.Close() }()

	var tools []ToolDescriptor
	params := &mcp.ListToolsParams{}
	for {
		res, err := session.ListTools(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("list tools: %w", err)
		}
		for _, tool := range res.Tools {
			if tool == nil {
				continue
			}
			converted, err := fromMCPTool(tool)
			if err != nil {
				return nil, err
			}
			tools = append(tools, converted)
		}
		if res.NextCursor == "" {
			break
		}
		params = &mcp.ListToolsParams{Cursor: res.NextCursor}
	}
	return uniqueTools(tools), nil
}

func fromMCPTool(tool *mcp.Tool) (ToolDescriptor, error) {
	out := ToolDescriptor{Name: tool.Name, Description: tool.Description}
	if tool.InputSchema != nil {
		schema, err := json.Marshal(tool.InputSchema)
		if err != nil {
			return ToolDescriptor{}, fmt.Errorf("encode input schema of %s: %w", tool.Name, err)
		}
		out.InputSchema = schema
	}
	return out, nil
}
