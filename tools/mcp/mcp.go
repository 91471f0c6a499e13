// Package mcp exposes the tools of a Model Context Protocol server as
// agent tools.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hupe1980/teamwork/logging"
	"github.com/hupe1980/teamwork/tool"
)

// Options configures a Client.
type Options struct {
	// Env is appended to the server process environment.
	Env    []string
	Logger logging.Logger
}

type toolInfo struct {
	name        string
	description string
	schema      map[string]any
}

// session is the part of an MCP client session the adapter relies on.
type session interface {
	listTools(ctx context.Context) ([]toolInfo, error)
	callTool(ctx context.Context, name string, args map[string]any) (string, bool, error)
	close() error
}

// Client manages the connection to a single MCP server subprocess.
type Client struct {
	name   string
	conn   session
	cmd    *exec.Cmd
	tools  map[string]tool.Tool
	logger logging.Logger
}

// Connect starts the server command, performs the MCP handshake and
// discovers its tools.
func Connect(ctx context.Context, name, command string, args []string, optFns ...func(o *Options)) (*Client, error) {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	cmd := exec.Command(command, args...)
	cmd.Stderr = os.Stderr
	if len(opts.Env) > 0 {
		cmd.Env = append(os.Environ(), opts.Env...)
	}

	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "teamwork", Version: "v1.0.0"}, nil)
	conn, err := client.Connect(ctx, mcpsdk.NewCommandTransport(cmd))
	if err != nil {
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		return nil, fmt.Errorf("connect to MCP server %q: %w", name, err)
	}

	c, err := newClient(ctx, name, &sdkSession{conn: conn}, opts.Logger)
	if err != nil {
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		return nil, err
	}
	c.cmd = cmd

	return c, nil
}

func newClient(ctx context.Context, name string, conn session, logger logging.Logger) (*Client, error) {
	infos, err := conn.listTools(ctx)
	if err != nil {
		_ = conn.close()
		return nil, fmt.Errorf("list tools of MCP server %q: %w", name, err)
	}

	c := &Client{name: name, conn: conn, tools: make(map[string]tool.Tool, len(infos)), logger: logger}
	for _, info := range infos {
		c.tools[info.name] = &remoteTool{client: c, info: info}
	}

	logger.Info("mcp.client.ready", "server", name, "tool_count", len(c.tools))

	return c, nil
}

// Name returns the server name.
func (c *Client) Name() string { return c.name }

// Tools returns the server's tools keyed by their names.
func (c *Client) Tools() map[string]tool.Tool {
	out := make(map[string]tool.Tool, len(c.tools))
	for k, v := range c.tools {
		out[k] = v
	}
	return out
}

// Tool returns a single tool by name.
func (c *Client) Tool(name string) (tool.Tool, bool) {
	t, ok := c.tools[name]
	return t, ok
}

// Close ends the session and terminates the server process.
func (c *Client) Close() error {
	err := c.conn.close()
	if c.cmd != nil && c.cmd.Process != nil {
		c.logger.Info("mcp.client.stop", "server", c.name)
		if killErr := c.cmd.Process.Kill(); killErr != nil && err == nil {
			err = killErr
		}
	}
	return err
}

type remoteTool struct {
	client *Client
	info   toolInfo
}

func (t *remoteTool) Description() string { return t.info.description }

func (t *remoteTool) Parameters() map[string]any { return t.info.schema }

// Execute forwards the call; argument validation is left to the server.
func (t *remoteTool) Execute(ctx context.Context, args map[string]any, tc tool.Context) (string, error) {
	text, isError, err := t.client.conn.callTool(ctx, t.info.name, args)
	if err != nil {
		return "", &tool.Error{
			Tool:    tc.Name,
			Message: fmt.Sprintf("call %s on %s: %v", t.info.name, t.client.name, err),
			Code:    tool.CodeExecution,
			Details: err,
		}
	}
	if isError {
		return "", tool.NewError(tc.Name, text, tool.CodeExecution)
	}
	return text, nil
}

type sdkSession struct {
	conn *mcpsdk.ClientSession
}

func (s *sdkSession) listTools(ctx context.Context) ([]toolInfo, error) {
	var infos []toolInfo

	params := &mcpsdk.ListToolsParams{}
	for {
		res, err := s.conn.ListTools(ctx, params)
		if err != nil {
			return nil, err
		}

		for _, t := range res.Tools {
			schema, err := toMap(t.InputSchema)
			if err != nil {
				return nil, fmt.Errorf("schema of %s: %w", t.Name, err)
			}
			infos = append(infos, toolInfo{name: t.Name, description: t.Description, schema: schema})
		}

		if res.NextCursor == "" {
			break
		}
		params.Cursor = res.NextCursor
	}

	return infos, nil
}

func (s *sdkSession) callTool(ctx context.Context, name string, args map[string]any) (string, bool, error) {
	res, err := s.conn.CallTool(ctx, &mcpsdk.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		return "", false, err
	}

	var b strings.Builder
	for _, c := range res.Content {
		if text, ok := c.(*mcpsdk.TextContent); ok {
			b.WriteString(text.Text)
		}
	}

	return b.String(), res.IsError, nil
}

func (s *sdkSession) close() error { return s.conn.Close() }

// toMap converts an SDK schema into the plain map form used by tools.
func toMap(schema any) (map[string]any, error) {
	out := map[string]any{}
	data, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	if string(data) != "null" {
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, err
		}
	}
	if _, ok := out["type"]; !ok {
		out["type"] = "object"
	}
	return out, nil
}
