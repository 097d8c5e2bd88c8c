package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
)

// Control variables live under this prefix. It deliberately starts with the
// forwarding prefix, so the materializer must filter it out explicitly.
const ControlPrefix = "NEXT_BUILDER_"

const (
	ModeDaemon = "daemon"
	ModeOnce   = "once"
)

var (
	ErrTokenRequired = errors.New("config: NEXT_BUILDER_TOKEN or NEXT_BUILDER_TOKEN_SECRET is required")
	ErrOrgRequired   = errors.New("config: NEXT_BUILDER_ORG is required")
	ErrRepoRequired  = errors.New("config: NEXT_BUILDER_REPO is required")
	ErrInvalidMode   = errors.New("config: NEXT_BUILDER_MODE must be 'daemon' or 'once'")
)

// Config carries every control variable the pipeline consumes. Control
// values are never forwarded into the generated env file or build args.
type Config struct {
	GitHub struct {
		Token       string `yaml:"-"`
		TokenSecret string `yaml:"token_secret"`
		Org         string `yaml:"org"`
		Repo        string `yaml:"repo"`
		Branch      string `yaml:"branch"`
	} `yaml:"github"`

	Registry struct {
		Host        string `yaml:"host"`
		TargetStage string `yaml:"target_stage"`
	} `yaml:"registry"`

	Workspace struct {
		Dir       string `yaml:"dir"`
		StatusDir string `yaml:"status_dir"`
	} `yaml:"workspace"`

	Agent struct {
		Mode       string `yaml:"mode"`
		HealthAddr string `yaml:"health_addr"`
		Retry      bool   `yaml:"retry"`
		Network    string `yaml:"network"`
	} `yaml:"agent"`
}

// Load builds the Config from an optional YAML file with environment
// overrides on top, then validates required fields.
func Load(path string) (*Config, error) {
	c := &Config{}
	c.GitHub.Branch = "main"
	c.Registry.Host = "ghcr.io"
	c.Registry.TargetStage = "runner"
	c.Workspace.Dir = "/workspace"
	c.Agent.Mode = ModeDaemon
	c.Agent.HealthAddr = ":8080"

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, c); err != nil {
			return nil, err
		}
	}

	setString(&c.GitHub.Token, "NEXT_BUILDER_TOKEN")
	setString(&c.GitHub.TokenSecret, "NEXT_BUILDER_TOKEN_SECRET")
	setString(&c.GitHub.Org, "NEXT_BUILDER_ORG")
	setString(&c.GitHub.Repo, "NEXT_BUILDER_REPO")
	setString(&c.GitHub.Branch, "NEXT_BUILDER_BRANCH")
	setString(&c.Registry.Host, "NEXT_BUILDER_REGISTRY")
	setString(&c.Registry.TargetStage, "NEXT_BUILDER_TARGET_STAGE")
	setString(&c.Workspace.Dir, "NEXT_BUILDER_WORKSPACE")
	setString(&c.Workspace.StatusDir, "NEXT_BUILDER_STATUS_DIR")
	setString(&c.Agent.Mode, "NEXT_BUILDER_MODE")
	setString(&c.Agent.HealthAddr, "NEXT_BUILDER_HEALTH_ADDR")
	setString(&c.Agent.Network, "NEXT_BUILDER_NETWORK")
	if v := os.Getenv("NEXT_BUILDER_RETRY"); v != "" {
		c.Agent.Retry = strings.EqualFold(v, "true")
	}

	if c.Workspace.StatusDir == "" {
		c.Workspace.StatusDir = filepath.Join(c.Workspace.Dir, "status")
	}

	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) validate() error {
	if c.GitHub.Token == "" && c.GitHub.TokenSecret == "" {
		return ErrTokenRequired
	}
	if c.GitHub.Org == "" {
		return ErrOrgRequired
	}
	if c.GitHub.Repo == "" {
		return ErrRepoRequired
	}
	if c.Agent.Mode != ModeDaemon && c.Agent.Mode != ModeOnce {
		return ErrInvalidMode
	}
	return nil
}

// CheckoutDir is the fixed working copy location, wiped on every run.
func (c *Config) CheckoutDir() string {
	return filepath.Join(c.Workspace.Dir, "repo")
}

// RegistryPath is <host>/<org>/<repo>, lowercased the way image
// references require.
func (c *Config) RegistryPath() string {
	return strings.ToLower(c.Registry.Host + "/" + c.GitHub.Org + "/" + c.GitHub.Repo)
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}
