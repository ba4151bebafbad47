package mcpgateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/vikashloomba/mcp-hub-gateway/pkg/catalog"
	"github.com/vikashloomba/mcp-hub-gateway/pkg/discovery"
)

// ProtocolVersion is the MCP revision announced by initialize.
const ProtocolVersion = "2025-06-18"

const maxBodyBytes = 4 << 20

// JSON-RPC error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
)

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      any       `json:"id"`
	Result  any       `json:"result,omitempty"`
	Error   *rpcError `json:"error,omitempty"`
}

func rpcOK(id any, result any) rpcResponse {
	return rpcResponse{JSONRPC: "2.0", ID: id, Result: result}
}

func rpcFail(id any, code int, msg string) rpcResponse {
	return rpcResponse{JSONRPC: "2.0", ID: id, Error: &rpcError{Code: code, Message: msg}}
}

type toolsListResult struct {
	Tools []discovery.ToolDescriptor `json:"tools"`
}

var defaultInputSchema = json.RawMessage(`{"type":"object","properties":{}}`)

// handleRPC answers the calls the hub owns and routes every other call to a
// backend by capability.
func (g *Gateway) handleRPC(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, rpcFail(nil, CodeParseError, "Parse error"))
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		g.handleInfo(w, r)
		return
	}
	if !json.Valid(body) {
		writeJSON(w, http.StatusBadRequest, rpcFail(nil, CodeParseError, "Parse error"))
		return
	}
	msg, err := decodeCall(body)
	req, ok := msg.(*jsonrpc.Request)
	if err != nil || !ok {
		writeJSON(w, http.StatusBadRequest, rpcFail(nil, CodeInvalidRequest, "Invalid Request"))
		return
	}
	if !req.IsCall() || isNotification(req.Method) {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	id := req.ID.Raw()
	snap := g.snapshot(r)
	switch req.Method {
	case "initialize":
		writeJSON(w, http.StatusOK, rpcOK(id, g.initializeResult()))
		return
	case "ping":
		writeJSON(w, http.StatusOK, rpcOK(id, struct{}{}))
		return
	case "tools/list":
		writeJSON(w, http.StatusOK, rpcOK(id, toolsListResult{Tools: withSchemas(catalog.Aggregate(snap))}))
		return
	case "resources/list":
		writeJSON(w, http.StatusOK, rpcOK(id, &mcp.ListResourcesResult{Resources: []*mcp.Resource{}}))
		return
	case "prompts/list":
		writeJSON(w, http.StatusOK, rpcOK(id, &mcp.ListPromptsResult{Prompts: []*mcp.Prompt{}}))
		return
	}

	method := routedMethod(req)
	decision := g.router.Route(snap, r.URL.Path, method)
	if !decision.Found() {
		g.metrics.request(r.Context(), decision)
		writeJSON(w, http.StatusOK, rpcFail(id, CodeMethodNotFound, "Method not found: "+req.Method))
		return
	}
	g.forward(w, r, decision, body)
}

// decodeCall decodes a JSON-RPC message. Clients that omit or misstate the
// "jsonrpc" member are accepted as long as the object names a method; the body
// forwarded to backends is left untouched.
func decodeCall(body []byte) (jsonrpc.Message, error) {
	msg, err := jsonrpc.DecodeMessage(body)
	if err == nil {
		return msg, nil
	}
	var fields map[string]json.RawMessage
	if json.Unmarshal(body, &fields) != nil {
		return nil, err
	}
	if _, hasMethod := fields["method"]; !hasMethod {
		return nil, err
	}
	fields["jsonrpc"] = json.RawMessage(`"2.0"`)
	normalized, merr := json.Marshal(fields)
	if merr != nil {
		return nil, err
	}
	return jsonrpc.DecodeMessage(normalized)
}

func (g *Gateway) initializeResult() *mcp.InitializeResult {
	impl := *g.opts.Implementation
	return &mcp.InitializeResult{
		ProtocolVersion: ProtocolVersion,
		Capabilities: &mcp.ServerCapabilities{
			Tools:     &mcp.ToolCapabilities{},
			Resources: &mcp.ResourceCapabilities{},
			Prompts:   &mcp.PromptCapabilities{},
		},
		ServerInfo:   &impl,
		Instructions: g.opts.Hub.Description,
	}
}

// routedMethod is the name the capability table is keyed by: the tool name
// for tools/call, the JSON-RPC method otherwise.
func routedMethod(req *jsonrpc.Request) string {
	if req.Method != "tools/call" || len(req.Params) == 0 {
		return req.Method
	}
	var params struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil || params.Name == "" {
		return req.Method
	}
	return params.Name
}

// methodOf extracts the routed method from a body that may or may not be a
// JSON-RPC request. Anything else yields "".
func methodOf(body []byte) string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return ""
	}
	msg, err := jsonrpc.DecodeMessage(trimmed)
	if err != nil {
		return ""
	}
	req, ok := msg.(*jsonrpc.Request)
	if !ok {
		return ""
	}
	return routedMethod(req)
}

// withSchemas fills in an empty object schema for tools that reported none,
// since MCP clients require inputSchema.
func withSchemas(tools []discovery.ToolDescriptor) []discovery.ToolDescriptor {
	for i := range tools {
		if len(tools[i].InputSchema) == 0 {
			tools[i].InputSchema = defaultInputSchema
		}
	}
	return tools
}

func readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read request body: %w", err)
	}
	if len(data) > maxBodyBytes {
		return nil, fmt.Errorf("request body exceeds %d bytes", maxBodyBytes)
	}
	return data, nil
}

func isNotification(method string) bool {
	return strings.HasPrefix(method, "notifications/")
}
