// Package mcp serves rosie's rules, analysis and history as Model Context
// Protocol tools over JSON-RPC 2.0 on a line-delimited stream.
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const protocolVersion = "2024-11-05"

// JSON-RPC error codes.
const (
	codeParseError     = -32700
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
)

// Server implements an MCP server using JSON-RPC 2.0.
type Server struct {
	info ServerInfo

	mu       sync.RWMutex
	tools    map[string]*Tool
	handlers map[string]ToolHandler
	schemas  map[string]*jsonschema.Schema
}

// Tool represents an MCP tool definition.
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// ToolHandler is a function that handles a tool call.
type ToolHandler func(ctx context.Context, args map[string]interface{}) (interface{}, error)

// JSONRPCRequest represents a JSON-RPC 2.0 request.
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// JSONRPCResponse represents a JSON-RPC 2.0 response.
type JSONRPCResponse struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      interface{}   `json:"id,omitempty"`
	Result  interface{}   `json:"result,omitempty"`
	Error   *JSONRPCError `json:"error,omitempty"`
}

// JSONRPCError represents a JSON-RPC 2.0 error.
type JSONRPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ServerInfo contains server metadata.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// NewServer creates a server with no tools.
func NewServer(name, version string) *Server {
	return &Server{
		info:     ServerInfo{Name: name, Version: version},
		tools:    make(map[string]*Tool),
		handlers: make(map[string]ToolHandler),
		schemas:  make(map[string]*jsonschema.Schema),
	}
}

// RegisterTool registers a tool with its handler. Call arguments are
// validated against the tool's InputSchema before the handler runs.
func (s *Server) RegisterTool(tool *Tool, handler ToolHandler) error {
	var schema *jsonschema.Schema
	if len(tool.InputSchema) > 0 {
		compiled, err := compileSchema(tool.Name, tool.InputSchema)
		if err != nil {
			return err
		}
		schema = compiled
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.tools[tool.Name] = tool
	s.handlers[tool.Name] = handler
	s.schemas[tool.Name] = schema
	return nil
}

func compileSchema(name string, schema map[string]interface{}) (*jsonschema.Schema, error) {
	data, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("tool %s schema: %w", name, err)
	}

	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	url := fmt.Sprintf("https://rosie.local/tools/%s.schema.json", name)
	if err := c.AddResource(url, strings.NewReader(string(data))); err != nil {
		return nil, fmt.Errorf("tool %s schema load failed: %w", name, err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("tool %s schema compile failed: %w", name, err)
	}
	return compiled, nil
}

// Serve reads one request per line from r and writes responses to w until
// r is exhausted or ctx is done.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	reader := bufio.NewReader(r)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		line, err := reader.ReadBytes('\n')
		if len(line) > 0 {
			if werr := s.handleLine(ctx, line, w); werr != nil {
				return fmt.Errorf("writing response: %w", werr)
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading input: %w", err)
		}
	}
}

func (s *Server) handleLine(ctx context.Context, line []byte, w io.Writer) error {
	var req JSONRPCRequest
	if err := json.Unmarshal(line, &req); err != nil {
		return writeResponse(w, errorResponse(nil, codeParseError, "Parse error", err.Error()))
	}
	return writeResponse(w, s.handleRequest(ctx, &req))
}

func (s *Server) handleRequest(ctx context.Context, req *JSONRPCRequest) *JSONRPCResponse {
	switch req.Method {
	case "initialize":
		return result(req.ID, map[string]interface{}{
			"protocolVersion": protocolVersion,
			"serverInfo":      s.info,
			"capabilities": map[string]interface{}{
				"tools": map[string]interface{}{"listChanged": false},
			},
		})
	case "initialized", "notifications/initialized":
		return nil
	case "tools/list":
		return result(req.ID, map[string]interface{}{"tools": s.listTools()})
	case "tools/call":
		return s.handleToolsCall(ctx, req)
	case "ping":
		return result(req.ID, map[string]interface{}{})
	default:
		return errorResponse(req.ID, codeMethodNotFound, "Method not found",
			fmt.Sprintf("Unknown method: %s", req.Method))
	}
}

func (s *Server) listTools() []*Tool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tools := make([]*Tool, 0, len(s.tools))
	for _, t := range s.tools {
		tools = append(tools, t)
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })
	return tools
}

func (s *Server) handleToolsCall(ctx context.Context, req *JSONRPCRequest) *JSONRPCResponse {
	var params struct {
		Name      string                 `json:"name"`
		Arguments map[string]interface{} `json:"arguments"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, codeInvalidParams, "Invalid params", err.Error())
	}

	s.mu.RLock()
	handler, ok := s.handlers[params.Name]
	schema := s.schemas[params.Name]
	s.mu.RUnlock()
	if !ok {
		return errorResponse(req.ID, codeInvalidParams, "Unknown tool",
			fmt.Sprintf("Tool not found: %s", params.Name))
	}

	if params.Arguments == nil {
		params.Arguments = map[string]interface{}{}
	}
	if schema != nil {
		if err := schema.Validate(params.Arguments); err != nil {
			return errorResponse(req.ID, codeInvalidParams, "Invalid arguments", err.Error())
		}
	}

	out, err := handler(ctx, params.Arguments)
	if err != nil {
		return result(req.ID, toolContent(fmt.Sprintf("Error: %s", err), true))
	}

	var text string
	switch v := out.(type) {
	case string:
		text = v
	case []byte:
		text = string(v)
	default:
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return result(req.ID, toolContent(fmt.Sprintf("Error: %s", err), true))
		}
		text = string(data)
	}
	return result(req.ID, toolContent(text, false))
}

func toolContent(text string, isError bool) map[string]interface{} {
	content := map[string]interface{}{
		"content": []map[string]interface{}{{"type": "text", "text": text}},
	}
	if isError {
		content["isError"] = true
	}
	return content
}

func result(id, v interface{}) *JSONRPCResponse {
	return &JSONRPCResponse{JSONRPC: "2.0", ID: id, Result: v}
}

func errorResponse(id interface{}, code int, message string, data interface{}) *JSONRPCResponse {
	return &JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &JSONRPCError{Code: code, Message: message, Data: data},
	}
}

func writeResponse(w io.Writer, resp *JSONRPCResponse) error {
	if resp == nil {
		return nil
	}
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", data)
	return err
}
