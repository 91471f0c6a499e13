package main

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/hupe1980/teamwork/agent"
	"github.com/hupe1980/teamwork/config"
	"github.com/hupe1980/teamwork/logging"
	"github.com/hupe1980/teamwork/model"
	anthropicmodel "github.com/hupe1980/teamwork/model/anthropic"
	openaimodel "github.com/hupe1980/teamwork/model/openai"
	"github.com/hupe1980/teamwork/tool"
	"github.com/hupe1980/teamwork/tools/filesystem"
	"github.com/hupe1980/teamwork/tools/mcp"
	"github.com/hupe1980/teamwork/tools/vector"
	"github.com/hupe1980/teamwork/tools/vision"
	"github.com/hupe1980/teamwork/workflow"

	"github.com/anthropics/anthropic-sdk-go"
)

var _ vector.Embedder = (*openaimodel.Embedder)(nil)

// app is a workflow assembled from a configuration file plus the resources
// that must be released after the run.
type app struct {
	workflow *workflow.Workflow
	closers  []func() error
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

func newProvider(cfg config.Provider) (model.Provider, vector.Embedder) {
	switch cfg.Name {
	case config.ProviderAnthropic:
		return anthropicmodel.NewProvider(func(o *anthropicmodel.Options) {
			if cfg.Model != "" {
				o.Model = anthropic.Model(cfg.Model)
			}
			if cfg.Temperature != nil {
				o.Temperature = *cfg.Temperature
			}
			if cfg.APIKey != "" {
				o.APIKey = cfg.APIKey
			}
		}), nil
	default:
		p := openaimodel.NewProvider(func(o *openaimodel.Options) {
			if cfg.Model != "" {
				o.Model = cfg.Model
			}
			if cfg.Temperature != nil {
				o.Temperature = *cfg.Temperature
			}
			o.APIKey = cfg.APIKey
			o.BaseURL = cfg.BaseURL
		})
		return p, p.NewEmbedder(cfg.EmbeddingModel)
	}
}

// toolbox resolves tool names used in the configuration.
type toolbox struct {
	builtin map[string]tool.Tool
	servers map[string]*mcp.Client
}

func (tb *toolbox) resolve(names []string) (map[string]tool.Tool, error) {
	out := map[string]tool.Tool{}
	for _, name := range names {
		if server, toolName, ok := strings.Cut(name, "/"); ok {
			client, found := tb.servers[server]
			if !found {
				return nil, fmt.Errorf("unknown MCP server %q in %q", server, name)
			}
			if toolName == "*" {
				for k, v := range client.Tools() {
					out[k] = v
				}
				continue
			}
			t, found := client.Tool(toolName)
			if !found {
				return nil, fmt.Errorf("MCP server %q has no tool %q", server, toolName)
			}
			out[toolName] = t
			continue
		}

		t, found := tb.builtin[name]
		if !found {
			return nil, fmt.Errorf("unknown tool %q (available: %s)", name, strings.Join(tb.names(), ", "))
		}
		out[name] = t
	}
	return out, nil
}

func (tb *toolbox) names() []string {
	names := make([]string, 0, len(tb.builtin))
	for k := range tb.builtin {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// build assembles the workflow described by cfg. provider overrides the
// configured backend when non-nil.
func build(ctx context.Context, cfg *config.Config, provider model.Provider, observer workflow.Observer, logger logging.Logger) (*app, error) {
	a := &app{}

	var embedder vector.Embedder
	if provider == nil {
		provider, embedder = newProvider(cfg.Provider)
	}

	tb := &toolbox{
		builtin: map[string]tool.Tool{vision.Name: vision.New()},
		servers: map[string]*mcp.Client{},
	}
	for k, v := range vector.NewStore(embedder).Tools() {
		tb.builtin[k] = v
	}

	if cfg.Filesystem.WorkingDir != "" {
		fs, err := filesystem.New(cfg.Filesystem.WorkingDir, func(o *filesystem.Options) {
			o.Hidden = cfg.Filesystem.Hidden
			o.ReadOnly = cfg.Filesystem.ReadOnly
		})
		if err != nil {
			return nil, fmt.Errorf("filesystem: %w", err)
		}
		for k, v := range fs.Tools() {
			tb.builtin[k] = v
		}
	}

	for _, s := range cfg.MCPServers {
		env := s.Env
		client, err := mcp.Connect(ctx, s.Name, s.Command, s.Args, func(o *mcp.Options) {
			o.Env = env
			o.Logger = logger
		})
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		tb.servers[s.Name] = client
		a.closers = append(a.closers, client.Close)
	}

	team := agent.Team{}
	for _, ac := range cfg.Agents {
		tools, err := tb.resolve(ac.Tools)
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("agent %s: %w", ac.Name, err)
		}
		ac := ac
		team[ac.Name] = agent.NewModelAgent(provider, func(o *agent.Options) {
			o.Description = ac.Description
			o.Tools = tools
			o.Logger = logger
			if ac.Temperature != nil {
				o.Temperature = ac.Temperature
			}
			if ac.Instruction != "" {
				instruction := agent.NewInstructionFromText(ac.Instruction)
				o.Instruction = &instruction
			}
		})
	}

	wf, err := workflow.New(team, func(o *workflow.Options) {
		o.Name = cfg.Name
		o.Description = cfg.Description
		o.Knowledge = cfg.Knowledge
		o.Output = cfg.Output
		if cfg.MaxSteps != nil {
			o.MaxSteps = *cfg.MaxSteps
		}
		o.Provider = provider
		o.Observer = observer
		o.Logger = logger
	})
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.workflow = wf

	return a, nil
}
