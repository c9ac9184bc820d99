// Package config loads flatfs settings from an optional YAML file and the
// environment. Environment variables take precedence over the file.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"

	"github.com/weberc2/flatfs/pkg/superblock"
)

const (
	envVarPrefix = "FLATFS"
	appName      = "flatfs"
)

type Config struct {
	ImagePath  string         `envconfig:"IMAGE_PATH"  yaml:"imagePath"`
	Addr       string         `envconfig:"ADDR"        yaml:"addr"`
	BlockCount uint64         `envconfig:"BLOCK_COUNT" yaml:"blockCount"`
	InodeCount uint64         `envconfig:"INODE_COUNT" yaml:"inodeCount"`
	LogLevel   string         `envconfig:"LOG_LEVEL"   yaml:"logLevel"`
	Snapshot   SnapshotConfig `envconfig:"SNAPSHOT"    yaml:"snapshot"`
}

type SnapshotConfig struct {
	Bucket   string `envconfig:"BUCKET"   yaml:"bucket"`
	Prefix   string `envconfig:"PREFIX"   yaml:"prefix"`
	Region   string `envconfig:"REGION"   yaml:"region"`
	Endpoint string `envconfig:"ENDPOINT" yaml:"endpoint"`
	Compress bool   `envconfig:"COMPRESS" yaml:"compress"`
}

// Default holds the values used for any setting left unset.
var Default = Config{
	ImagePath:  "flatfs.img",
	Addr:       "127.0.0.1:7777",
	BlockCount: 65536,
	InodeCount: 1024,
	LogLevel:   "info",
}

// ConfigFile returns the path named by FLATFS_CONFIG_FILE, falling back to
// `$HOME/.config/flatfs.yaml`.
func ConfigFile() string {
	if configFile := os.Getenv(envVarPrefix + "_CONFIG_FILE"); configFile != "" {
		return configFile
	}
	return filepath.Join(os.Getenv("HOME"), ".config", appName+".yaml")
}

func LoadConfig() (*Config, error) { return Load(ConfigFile()) }

// Load reads `configFile` if it exists, then applies the environment and
// finally the defaults.
func Load(configFile string) (*Config, error) {
	var c Config
	data, err := os.ReadFile(configFile)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	} else if err := yaml.UnmarshalStrict(data, &c); err != nil {
		return nil, fmt.Errorf("unmarshaling config file: %w", err)
	}

	if err := envconfig.Process(envVarPrefix, &c); err != nil {
		return nil, fmt.Errorf("parsing environment variables: %w", err)
	}

	c.applyDefaults()
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.ImagePath == "" {
		c.ImagePath = Default.ImagePath
	}
	if c.Addr == "" {
		c.Addr = Default.Addr
	}
	if c.BlockCount == 0 {
		c.BlockCount = Default.BlockCount
	}
	if c.InodeCount == 0 {
		c.InodeCount = Default.InodeCount
	}
	if c.LogLevel == "" {
		c.LogLevel = Default.LogLevel
	}
}

func (c *Config) Geometry() superblock.Geometry {
	return superblock.Geometry{BlockCount: c.BlockCount, InodeCount: c.InodeCount}
}

func (c *Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf(
			"invalid configuration: logLevel / %s_LOG_LEVEL: %w",
			envVarPrefix,
			err,
		)
	}
	return level, nil
}

func (c *Config) Validate() error {
	if c.ImagePath == "" {
		return missing("imagePath", "IMAGE_PATH")
	}
	if c.Addr == "" {
		return missing("addr", "ADDR")
	}
	if err := c.Geometry().Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// ValidateSnapshot checks the settings needed by snapshot commands.
func (c *Config) ValidateSnapshot() error {
	if c.Snapshot.Bucket == "" {
		return missing("snapshot.bucket", "SNAPSHOT_BUCKET")
	}
	return nil
}

func missing(yamlKey, envKey string) error {
	return fmt.Errorf(
		"missing required configuration: %s / %s_%s",
		yamlKey,
		envVarPrefix,
		envKey,
	)
}
