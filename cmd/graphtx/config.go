package main

import (
	"flag"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nikmy/graphtx/internal/api"
	"github.com/nikmy/graphtx/internal/driver/mongo"
	"github.com/nikmy/graphtx/internal/driver/neo4j"
	"github.com/nikmy/graphtx/internal/telemetry"
	"github.com/nikmy/graphtx/pkg/bookmark"
	"github.com/nikmy/graphtx/pkg/environment"
	"github.com/nikmy/graphtx/pkg/errors"
	"github.com/nikmy/graphtx/pkg/txn"
)

type Backend string

const (
	BackendNeo4j  Backend = "neo4j"
	BackendMongo  Backend = "mongo"
	BackendMemory Backend = "memory"
)

func (b *Backend) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	err := node.Decode(&raw)
	if err != nil {
		return err
	}

	switch kind := Backend(raw); kind {
	case BackendNeo4j, BackendMongo, BackendMemory:
		*b = kind
		return nil
	default:
		return errors.Errorf("unknown backend %q", raw)
	}
}

type Config struct {
	Environment environment.Env `yaml:"Environment"`

	Backend Backend      `yaml:"Backend"`
	Neo4j   neo4j.Config `yaml:"Neo4j"`
	Mongo   mongo.Config `yaml:"Mongo"`

	// Database the users service works on. Empty means the backend default.
	Database string `yaml:"Database"`

	Bookmarks struct {
		Enabled  bool `yaml:"enabled"`
		Capacity int  `yaml:"capacity"`
	} `yaml:"Bookmarks"`

	Retry   txn.RetryPolicy  `yaml:"Retry"`
	API     api.Config       `yaml:"API"`
	Metrics telemetry.Config `yaml:"Metrics"`

	ShutdownTimeout time.Duration `yaml:"ShutdownTimeout"`
}

func defaultConfig() Config {
	cfg := Config{
		Environment:     environment.Development,
		Backend:         BackendMemory,
		Neo4j:           neo4j.DefaultConfig(),
		Retry:           txn.DefaultRetryPolicy(),
		ShutdownTimeout: 10 * time.Second,
	}
	cfg.Bookmarks.Enabled = true
	cfg.Bookmarks.Capacity = bookmark.DefaultCapacity
	cfg.API.HTTP.Addr = ":8080"
	return cfg
}

type flags struct {
	env    string
	config string
}

func parseFlags(args []string) (flags, error) {
	var f flags
	fs := flag.NewFlagSet("graphtx", flag.ContinueOnError)
	fs.StringVar(&f.env, "env", "", "environment (dev, prod)")
	fs.StringVar(&f.config, "config", "config.yaml", "path to yaml config")
	err := fs.Parse(args)
	return f, err
}

func loadConfig(args []string) (*Config, error) {
	f, err := parseFlags(args)
	if err != nil {
		return nil, errors.WrapFail(err, "parse flags")
	}

	path, err := filepath.Abs(f.config)
	if err != nil {
		return nil, errors.WrapFail(err, "build path to config")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapFailf(err, "read %q", path)
	}

	cfg, err := parseConfig(data)
	if err != nil {
		return nil, err
	}

	if f.env != "" {
		cfg.Environment = environment.FromString(f.env)
	}
	return cfg, nil
}

func parseConfig(data []byte) (*Config, error) {
	cfg := defaultConfig()
	err := yaml.Unmarshal(data, &cfg)
	if err != nil {
		return nil, errors.WrapFail(err, "parse yaml")
	}

	if cfg.Bookmarks.Capacity <= 0 {
		return nil, errors.Errorf("bookmark store capacity must be positive, got %d", cfg.Bookmarks.Capacity)
	}
	return &cfg, nil
}
