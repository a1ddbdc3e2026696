package config

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/pelletier/go-toml/v2"
)

const (
	BackendMemgraph = "memgraph"
	BackendSQLite   = "sqlite"
)

type StoreConfig struct {
	Backend    string `toml:"backend" env:"UNISON_STORE_BACKEND"`
	SQLitePath string `toml:"sqlite_path" env:"UNISON_SQLITE_PATH"`
	PageSize   int    `toml:"page_size" env:"UNISON_STORE_PAGE_SIZE"`
	MaxPages   int    `toml:"max_pages" env:"UNISON_STORE_MAX_PAGES"`
}

type MemgraphConfig struct {
	URI      string `toml:"uri" env:"MEMGRAPH_URI"`
	User     string `toml:"user" env:"MEMGRAPH_USER"`
	Password string `toml:"password" env:"MEMGRAPH_PASSWORD"`
}

type DuplicatesConfig struct {
	ConsolidationThreshold int64 `toml:"consolidation_threshold" env:"UNISON_CONSOLIDATION_THRESHOLD"`
	PeerThreshold          int64 `toml:"peer_threshold" env:"UNISON_PEER_THRESHOLD"`
	DiagnosticBuffer       int   `toml:"diagnostic_buffer" env:"UNISON_DIAGNOSTIC_BUFFER"`
}

// RelationshipTypeConfig describes one relationship type for the
// cardinality catalog. Cardinalities are AT_MOST_ONE or ANY_NUMBER; the
// type is directional when the two attribute names differ.
type RelationshipTypeConfig struct {
	Name            string `toml:"name"`
	MultiLink       bool   `toml:"multi_link"`
	End1Cardinality string `toml:"end1_cardinality"`
	End2Cardinality string `toml:"end2_cardinality"`
	End1Attribute   string `toml:"end1_attribute"`
	End2Attribute   string `toml:"end2_attribute"`
}

type LogConfig struct {
	Level       string `toml:"level" env:"LOG_LEVEL"`
	Development bool   `toml:"development" env:"LOG_DEVELOPMENT"`
}

type ServerConfig struct {
	Port string `toml:"port" env:"PORT"`
}

type Config struct {
	Store             StoreConfig              `toml:"store"`
	Memgraph          MemgraphConfig           `toml:"memgraph"`
	Duplicates        DuplicatesConfig         `toml:"duplicates"`
	RelationshipTypes []RelationshipTypeConfig `toml:"relationship_types"`
	Log               LogConfig                `toml:"log"`
	Server            ServerConfig             `toml:"server"`
}

func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Backend:    BackendMemgraph,
			SQLitePath: "unison.db",
			PageSize:   100,
			MaxPages:   1000,
		},
		Memgraph: MemgraphConfig{
			URI: "bolt://localhost:7687",
		},
		Duplicates: DuplicatesConfig{
			ConsolidationThreshold: 1,
			PeerThreshold:          0,
			DiagnosticBuffer:       256,
		},
		Log: LogConfig{
			Level: "info",
		},
		Server: ServerConfig{
			Port: "8080",
		},
	}
}

// Load reads the TOML file at path over the defaults and then applies
// environment overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse TOML: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv only touches fields whose variable is set, so values from the
// file survive.
func (c *Config) applyEnv() error {
	sections := []interface{}{&c.Store, &c.Memgraph, &c.Duplicates, &c.Log, &c.Server}
	for _, s := range sections {
		if err := env.Parse(s); err != nil {
			return fmt.Errorf("failed to parse environment: %w", err)
		}
	}
	return nil
}

func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendMemgraph, BackendSQLite:
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if c.Store.PageSize <= 0 {
		return fmt.Errorf("store page_size must be positive, got %d", c.Store.PageSize)
	}
	if c.Store.MaxPages <= 0 {
		return fmt.Errorf("store max_pages must be positive, got %d", c.Store.MaxPages)
	}
	seen := make(map[string]bool)
	for _, t := range c.RelationshipTypes {
		if t.Name == "" {
			return fmt.Errorf("relationship type without a name")
		}
		if seen[t.Name] {
			return fmt.Errorf("relationship type %s declared twice", t.Name)
		}
		seen[t.Name] = true
	}
	return nil
}
