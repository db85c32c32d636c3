// Package config loads the Inquest deployment configuration from YAML.
// The configuration fixes the knowledge area set, the worker roster, the
// question-hierarchy lexicon and the capability fallback tables for one
// deployment. Policy lives here rather than in code so the splitting and
// fallback heuristics can be tuned without a rebuild.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"inquest/pkg/blackboard"
)

// Config is the top-level inquest.yml configuration.
type Config struct {
	Redis        RedisConfig           `yaml:"redis"`
	Areas        []blackboard.AreaSpec `yaml:"areas"`
	Workers      WorkersConfig         `yaml:"workers"`
	Hierarchy    HierarchyConfig       `yaml:"hierarchy"`
	Capabilities CapabilitiesConfig    `yaml:"capabilities"`
	Monitor      MonitorConfig         `yaml:"monitor"`
	Paths        PathsConfig           `yaml:"paths"`
}

// RedisConfig points at the backing Redis server.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
}

// WorkersConfig defines the worker selection policy: the core set is always
// launched, the indicator worker only when initial indicators are present.
type WorkersConfig struct {
	Core            []string `yaml:"core"`
	IndicatorWorker string   `yaml:"indicator_worker"`
	TimeoutSeconds  int      `yaml:"timeout_seconds"` // Per-worker invocation timeout
}

// HierarchyConfig holds the question-splitting intent lexicon. A compound
// question is only expanded into children when its wording contains one of
// these phrases and at least two distinct indicators.
type HierarchyConfig struct {
	Lexicon []string `yaml:"lexicon"`
}

// CapabilitiesConfig declares the capabilities available in this deployment
// and the keyword fallback rules used when no reasoning collaborator can
// map a question to capabilities.
type CapabilitiesConfig struct {
	Available []string       `yaml:"available"`
	Fallback  []FallbackRule `yaml:"fallback"`
}

// FallbackRule maps question keywords to a capability recommendation.
// The first rule whose terms appear in the question text wins.
type FallbackRule struct {
	Name         string   `yaml:"name"`
	Match        []string `yaml:"match"`
	Capabilities []string `yaml:"capabilities"`
	DataSources  []string `yaml:"data_sources,omitempty"`
	Approach     []string `yaml:"approach,omitempty"`
	Alternatives []string `yaml:"alternatives,omitempty"`
	Wishlist     []string `yaml:"wishlist,omitempty"`
}

// MonitorConfig controls the dashboard's pull-refresh loop.
type MonitorConfig struct {
	RefreshIntervalSeconds int `yaml:"refresh_interval_seconds"`
}

// PathsConfig locates the on-disk artifacts of an investigation.
type PathsConfig struct {
	ExportDir      string `yaml:"export_dir"`
	ResearchLogDir string `yaml:"research_log_dir"`
}

// Default returns the built-in configuration. The lexicon and fallback
// tables mirror the original deployment's defaults; both are ordinary
// policy tables that operators are expected to override.
func Default() *Config {
	return &Config{
		Redis: RedisConfig{Addr: "localhost:6379"},
		Areas: []blackboard.AreaSpec{
			{Name: "network", Kind: blackboard.AreaKindList},
			{Name: "endpoint", Kind: blackboard.AreaKindList},
			{Name: "timeline", Kind: blackboard.AreaKindList},
			{Name: "intel", Kind: blackboard.AreaKindList},
			{Name: blackboard.AreaMetadata, Kind: blackboard.AreaKindList},
			{Name: blackboard.AreaInvestigationMeta, Kind: blackboard.AreaKindMap},
			{Name: blackboard.AreaRiskScores, Kind: blackboard.AreaKindMap},
		},
		Workers: WorkersConfig{
			Core: []string{
				"triage-analyst",
				"network-analyst",
				"endpoint-analyst",
				"intel-analyst",
			},
			IndicatorWorker: "indicator-enrichment",
			TimeoutSeconds:  300,
		},
		Hierarchy: HierarchyConfig{
			Lexicon: []string{
				"associated with",
				"reputation",
				"known threats",
				"malicious",
				"legitimate",
				"attributed to",
				"related to",
				"connected to",
				"seen in",
				"reported in",
			},
		},
		Capabilities: CapabilitiesConfig{
			Available: []string{
				"netflow-search",
				"dns-history",
				"firewall-logs",
				"edr-process-tree",
				"file-detonation",
				"hash-reputation",
				"auth-log-search",
				"identity-directory",
			},
			Fallback: []FallbackRule{
				{
					Name:         "network",
					Match:        []string{"ip", "network", "domain", "dns", "connection", "traffic", "port", "c2", "beacon"},
					Capabilities: []string{"netflow-search", "dns-history", "firewall-logs"},
					DataSources:  []string{"netflow", "dns_logs", "firewall_logs"},
					Approach:     []string{"Search netflow for the indicator", "Pull DNS resolution history", "Review firewall permits and denies"},
					Alternatives: []string{"Manual packet capture review"},
					Wishlist:     []string{"passive-dns-enterprise"},
				},
				{
					Name:         "malware",
					Match:        []string{"malware", "file", "hash", "binary", "executable", "process", "persistence", "payload"},
					Capabilities: []string{"edr-process-tree", "file-detonation", "hash-reputation"},
					DataSources:  []string{"edr_telemetry", "sandbox_reports"},
					Approach:     []string{"Check hash reputation", "Detonate the sample in a sandbox", "Walk the EDR process tree"},
					Alternatives: []string{"Static strings and import analysis"},
					Wishlist:     []string{"memory-forensics"},
				},
				{
					Name:         "identity",
					Match:        []string{"authentication", "login", "user", "account", "credential", "password", "session", "lateral"},
					Capabilities: []string{"auth-log-search", "identity-directory"},
					DataSources:  []string{"auth_logs", "directory_services"},
					Approach:     []string{"Search authentication logs for the account", "Review directory group membership changes"},
					Alternatives: []string{"Interview the account owner"},
					Wishlist:     []string{"ueba-baseline"},
				},
			},
		},
		Monitor: MonitorConfig{RefreshIntervalSeconds: 30},
		Paths: PathsConfig{
			ExportDir:      ".inquest/exports",
			ResearchLogDir: ".inquest/research_logs",
		},
	}
}

// Load reads a configuration file and merges it over the defaults.
// A missing path ("" argument) yields the pure defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks structural requirements of the configuration.
func (c *Config) Validate() error {
	if c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr cannot be empty")
	}

	if len(c.Areas) == 0 {
		return fmt.Errorf("at least one knowledge area must be declared")
	}
	seen := make(map[string]bool, len(c.Areas))
	hasMetadata := false
	hasInvestigationMeta := false
	for _, area := range c.Areas {
		if area.Name == "" {
			return fmt.Errorf("area name cannot be empty")
		}
		if err := area.Kind.Validate(); err != nil {
			return fmt.Errorf("area %q: %w", area.Name, err)
		}
		if seen[area.Name] {
			return fmt.Errorf("area %q declared twice", area.Name)
		}
		seen[area.Name] = true
		if area.Name == blackboard.AreaMetadata && area.Kind == blackboard.AreaKindList {
			hasMetadata = true
		}
		if area.Name == blackboard.AreaInvestigationMeta && area.Kind == blackboard.AreaKindMap {
			hasInvestigationMeta = true
		}
	}
	if !hasMetadata {
		return fmt.Errorf("a list area named %q is required for coordinator bookkeeping", blackboard.AreaMetadata)
	}
	if !hasInvestigationMeta {
		return fmt.Errorf("a map area named %q is required for investigation parameters", blackboard.AreaInvestigationMeta)
	}

	if len(c.Workers.Core) == 0 {
		return fmt.Errorf("workers.core cannot be empty")
	}
	if c.Workers.TimeoutSeconds <= 0 {
		return fmt.Errorf("workers.timeout_seconds must be positive")
	}

	if c.Monitor.RefreshIntervalSeconds <= 0 {
		return fmt.Errorf("monitor.refresh_interval_seconds must be positive")
	}

	return nil
}
