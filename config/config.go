// Package config loads workflow definitions from YAML files.
//
// Values may reference environment variables as ${NAME} or $NAME; they are
// expanded before parsing.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Supported provider names.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Provider selects and configures the model backend.
type Provider struct {
	Name        string   `yaml:"name"`
	Model       string   `yaml:"model"`
	Temperature *float64 `yaml:"temperature"`
	APIKey      string   `yaml:"api_key"`
	BaseURL     string   `yaml:"base_url"`
	// EmbeddingModel is used by the vector store when the provider supports
	// embeddings.
	EmbeddingModel string `yaml:"embedding_model"`
}

// Agent declares a team member backed by the configured provider.
type Agent struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Instruction string   `yaml:"instruction"`
	Temperature *float64 `yaml:"temperature"`
	// Tools lists tool names: built-in ones (readFile, saveFile,
	// listFilesFromDirectory, visionTool, saveDocumentInVectorStore,
	// searchInVectorStore) or "<server>/<tool>" and "<server>/*" for tools of
	// an MCP server.
	Tools []string `yaml:"tools"`
}

// Filesystem confines the file tools.
type Filesystem struct {
	WorkingDir string   `yaml:"working_dir"`
	Hidden     []string `yaml:"hidden"`
	ReadOnly   []string `yaml:"read_only"`
}

// MCPServer is an MCP server started as a subprocess.
type MCPServer struct {
	Name    string   `yaml:"name"`
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
	Env     []string `yaml:"env"`
}

// Config is a complete workflow definition.
type Config struct {
	Name        string      `yaml:"name"`
	Description string      `yaml:"description"`
	Knowledge   string      `yaml:"knowledge"`
	Output      string      `yaml:"output"`
	MaxSteps    *int        `yaml:"max_steps"`
	Provider    Provider    `yaml:"provider"`
	Agents      []Agent     `yaml:"agents"`
	Filesystem  Filesystem  `yaml:"filesystem"`
	MCPServers  []MCPServer `yaml:"mcp_servers"`
}

// Load reads, expands and validates the file at path. A relative working
// directory is resolved against the directory of the file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	if wd := cfg.Filesystem.WorkingDir; wd != "" && !filepath.IsAbs(wd) {
		cfg.Filesystem.WorkingDir = filepath.Join(filepath.Dir(path), wd)
	}

	return cfg, nil
}

// Parse decodes and validates a YAML document.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Name == "" {
		c.Name = "workflow"
	}
	if c.Provider.Name == "" {
		c.Provider.Name = ProviderOpenAI
	}
}

// Validate reports every problem of the definition at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Description == "" {
		errs = append(errs, errors.New("description is required"))
	}

	switch c.Provider.Name {
	case ProviderOpenAI, ProviderAnthropic:
	default:
		errs = append(errs, fmt.Errorf("unknown provider %q", c.Provider.Name))
	}

	if c.MaxSteps != nil && *c.MaxSteps < 0 {
		errs = append(errs, errors.New("max_steps must not be negative"))
	}

	if len(c.Agents) == 0 {
		errs = append(errs, errors.New("at least one agent is required"))
	}

	seen := map[string]bool{}
	for i, a := range c.Agents {
		switch {
		case a.Name == "":
			errs = append(errs, fmt.Errorf("agents[%d]: name is required", i))
		case seen[a.Name]:
			errs = append(errs, fmt.Errorf("agents[%d]: duplicate name %q", i, a.Name))
		}
		seen[a.Name] = true
	}

	servers := map[string]bool{}
	for i, s := range c.MCPServers {
		if s.Name == "" || s.Command == "" {
			errs = append(errs, fmt.Errorf("mcp_servers[%d]: name and command are required", i))
		}
		if servers[s.Name] {
			errs = append(errs, fmt.Errorf("mcp_servers[%d]: duplicate name %q", i, s.Name))
		}
		servers[s.Name] = true
	}

	return errors.Join(errs...)
}
