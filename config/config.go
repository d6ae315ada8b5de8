// Package config defines the AgentDesk application configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level AgentDesk configuration.
type Config struct {
	Server   ServerConfig  `json:"server" yaml:"server"`
	Auth     AuthConfig    `json:"auth" yaml:"auth"`
	Storage  StorageConfig `json:"storage" yaml:"storage"`
	Bus      BusConfig     `json:"bus" yaml:"bus"`
	Exec     ExecConfig    `json:"exec" yaml:"exec"`
	Org      OrgConfig     `json:"org" yaml:"org"`
	DataDir  string        `json:"data_dir" yaml:"data_dir"`
	LogLevel string        `json:"log_level" yaml:"log_level"`
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Addr string `json:"addr" yaml:"addr"` // listen address, e.g., ":9090"
}

// AuthConfig controls API authentication.
type AuthConfig struct {
	JWTSecret string `json:"jwt_secret" yaml:"jwt_secret"`
	AdminUser string `json:"admin_user" yaml:"admin_user"`
	AdminPass string `json:"admin_pass" yaml:"admin_pass"` // bcrypt hash, or plaintext for dev setups
	TokenTTL  string `json:"token_ttl" yaml:"token_ttl"`   // Go duration, default 24h
}

// TokenDuration returns the parsed token lifetime.
func (a AuthConfig) TokenDuration() (time.Duration, error) {
	if a.TokenTTL == "" {
		return 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(a.TokenTTL)
	if err != nil {
		return 0, fmt.Errorf("parse token_ttl: %w", err)
	}
	return d, nil
}

// StorageConfig selects where tasks, desks, and audit entries live.
type StorageConfig struct {
	Driver string `json:"driver" yaml:"driver"` // memory | sqlite | postgres
	Path   string `json:"path,omitempty" yaml:"path"`
	DSN    string `json:"dsn,omitempty" yaml:"dsn"` // postgres connection string
}

// BusConfig selects the notification bus.
type BusConfig struct {
	Driver string `json:"driver" yaml:"driver"` // memory | nats
	URL    string `json:"url,omitempty" yaml:"url"`
	Prefix string `json:"prefix,omitempty" yaml:"prefix"` // NATS subject prefix
}

// ExecConfig tunes the simulated work routine.
type ExecConfig struct {
	MinDelay    string  `json:"min_delay" yaml:"min_delay"` // Go durations, e.g. "250ms"
	MaxDelay    string  `json:"max_delay" yaml:"max_delay"`
	FailureRate float64 `json:"failure_rate" yaml:"failure_rate"` // 0..1
	Timeout     string  `json:"timeout,omitempty" yaml:"timeout"` // per-task deadline; empty disables
}

// Delays returns the parsed delay bounds.
func (e ExecConfig) Delays() (minDelay, maxDelay time.Duration, err error) {
	if e.MinDelay != "" {
		if minDelay, err = time.ParseDuration(e.MinDelay); err != nil {
			return 0, 0, fmt.Errorf("parse min_delay: %w", err)
		}
	}
	if e.MaxDelay != "" {
		if maxDelay, err = time.ParseDuration(e.MaxDelay); err != nil {
			return 0, 0, fmt.Errorf("parse max_delay: %w", err)
		}
	}
	return minDelay, maxDelay, nil
}

// TaskTimeout returns the parsed per-task deadline; zero when disabled.
func (e ExecConfig) TaskTimeout() (time.Duration, error) {
	if e.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(e.Timeout)
	if err != nil {
		return 0, fmt.Errorf("parse timeout: %w", err)
	}
	return d, nil
}

// OrgConfig defines the organization the daemon hosts.
type OrgConfig struct {
	Name            string       `json:"name" yaml:"name"`
	Desks           []DeskConfig `json:"desks" yaml:"desks"`
	Teams           []TeamConfig `json:"teams,omitempty" yaml:"teams"`
	Routing         []RuleConfig `json:"routing,omitempty" yaml:"routing"`
	DefaultAssignee string       `json:"default_assignee,omitempty" yaml:"default_assignee"`
}

// DeskConfig defines a single desk.
type DeskConfig struct {
	ID           string   `json:"id" yaml:"id"`
	Title        string   `json:"title" yaml:"title"`
	Role         string   `json:"role" yaml:"role"`
	Capabilities []string `json:"capabilities,omitempty" yaml:"capabilities"`
	Level        int      `json:"hierarchy_level" yaml:"hierarchy_level"`
	ReportsTo    string   `json:"reports_to,omitempty" yaml:"reports_to"`
	TeamID       string   `json:"team_id,omitempty" yaml:"team_id"`
}

// TeamConfig defines a team.
type TeamConfig struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
	Lead string `json:"lead,omitempty" yaml:"lead"`
}

// RuleConfig routes matching tasks to a fixed desk.
type RuleConfig struct {
	Priority string `json:"priority,omitempty" yaml:"priority"` // task priority name; empty matches any
	Keyword  string `json:"keyword,omitempty" yaml:"keyword"`
	Assignee string `json:"assignee" yaml:"assignee"`
}

// DefaultConfig returns a config with sensible defaults: a three-desk
// organization on in-process storage, simulated execution.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr: ":9090",
		},
		Auth: AuthConfig{
			AdminUser: "admin",
			TokenTTL:  "24h",
		},
		Storage: StorageConfig{
			Driver: "sqlite",
		},
		Bus: BusConfig{
			Driver: "memory",
		},
		Exec: ExecConfig{
			MinDelay:    "250ms",
			MaxDelay:    "1500ms",
			FailureRate: 0.05,
			Timeout:     "2m",
		},
		Org: OrgConfig{
			Name: "agentdesk",
			Desks: []DeskConfig{
				{
					ID:    "cto-001",
					Title: "CTO",
					Role:  "executive",
					Level: 1,
				},
				{
					ID:           "dev-001",
					Title:        "Senior Developer",
					Role:         "senior_engineer",
					Capabilities: []string{"golang", "architecture"},
					Level:        2,
					ReportsTo:    "cto-001",
					TeamID:       "backend-team",
				},
				{
					ID:           "qa-001",
					Title:        "QA Engineer",
					Role:         "qa_engineer",
					Capabilities: []string{"testing", "review"},
					Level:        2,
					ReportsTo:    "cto-001",
					TeamID:       "qa-team",
				},
			},
			Teams: []TeamConfig{
				{ID: "backend-team", Name: "Backend", Lead: "dev-001"},
				{ID: "qa-team", Name: "Quality", Lead: "qa-001"},
			},
		},
		DataDir:  "./data",
		LogLevel: "info",
	}
}

// Load reads a YAML config file, applies defaults, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks drivers, durations, and the internal references of the
// organization definition.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "memory", "sqlite":
	case "postgres":
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage driver postgres requires a dsn")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}

	switch c.Bus.Driver {
	case "memory":
	case "nats":
		if c.Bus.URL == "" {
			return fmt.Errorf("bus driver nats requires a url")
		}
	default:
		return fmt.Errorf("unknown bus driver %q", c.Bus.Driver)
	}

	if _, err := c.Auth.TokenDuration(); err != nil {
		return err
	}
	if _, _, err := c.Exec.Delays(); err != nil {
		return err
	}
	if _, err := c.Exec.TaskTimeout(); err != nil {
		return err
	}
	if c.Exec.FailureRate < 0 || c.Exec.FailureRate > 1 {
		return fmt.Errorf("failure_rate %v outside [0,1]", c.Exec.FailureRate)
	}

	return c.Org.validate()
}

func (o OrgConfig) validate() error {
	desks := make(map[string]bool, len(o.Desks))
	for _, d := range o.Desks {
		if d.ID == "" {
			return fmt.Errorf("desk with empty id")
		}
		if desks[d.ID] {
			return fmt.Errorf("duplicate desk id %q", d.ID)
		}
		if d.Level < 0 {
			return fmt.Errorf("desk %s: negative hierarchy_level", d.ID)
		}
		desks[d.ID] = true
	}
	for _, d := range o.Desks {
		if d.ReportsTo != "" && !desks[d.ReportsTo] {
			return fmt.Errorf("desk %s reports to undefined desk %q", d.ID, d.ReportsTo)
		}
	}

	teams := make(map[string]bool, len(o.Teams))
	for _, t := range o.Teams {
		if t.ID == "" {
			return fmt.Errorf("team with empty id")
		}
		if teams[t.ID] {
			return fmt.Errorf("duplicate team id %q", t.ID)
		}
		if t.Lead != "" && !desks[t.Lead] {
			return fmt.Errorf("team %s led by undefined desk %q", t.ID, t.Lead)
		}
		teams[t.ID] = true
	}
	for _, d := range o.Desks {
		if d.TeamID != "" && !teams[d.TeamID] {
			return fmt.Errorf("desk %s in undefined team %q", d.ID, d.TeamID)
		}
	}

	for i, r := range o.Routing {
		if r.Assignee == "" {
			return fmt.Errorf("routing rule %d has no assignee", i)
		}
		if !desks[r.Assignee] {
			return fmt.Errorf("routing rule %d assigns to undefined desk %q", i, r.Assignee)
		}
	}
	if o.DefaultAssignee != "" && !desks[o.DefaultAssignee] {
		return fmt.Errorf("default_assignee %q is not a defined desk", o.DefaultAssignee)
	}
	return nil
}
