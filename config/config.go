// Package config loads and validates the statmirror configuration file.
// Validation is fail-fast: every missing or invalid field is collected into
// one ValidationError before any component starts.
package config

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/spf13/viper"
)

// Config is the full configuration tree.
type Config struct {
	Common     Common     `mapstructure:"common"`
	Mirror     Mirror     `mapstructure:"mirror"`
	Population Population `mapstructure:"population"`
	LogDir     string     `mapstructure:"log_dir"`
}

// Common holds settings shared by all HTTP calls. Header keys arrive
// lowercased from the config reader; they are canonicalized when requests
// are built.
type Common struct {
	Headers map[string]string `mapstructure:"headers"`
}

// Mirror configures the directory synchronization cycle.
type Mirror struct {
	BaseURL     string      `mapstructure:"base_url"`
	Listing     Listing     `mapstructure:"listing"`
	Download    Download    `mapstructure:"download"`
	Ledger      Ledger      `mapstructure:"ledger"`
	ObjectStore ObjectStore `mapstructure:"object_store"`
}

// ObjectStore optionally redirects downloads into a bucket instead of the
// local filesystem. Enabled when Endpoint is set.
type ObjectStore struct {
	Endpoint  string `mapstructure:"endpoint"`
	Bucket    string `mapstructure:"bucket"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// Enabled reports whether downloads target the object store.
func (o ObjectStore) Enabled() bool { return o.Endpoint != "" }

// Listing configures the directory listing fetch and extraction.
type Listing struct {
	DirectoryPath string `mapstructure:"directory_path"`
	// FilePattern must capture five groups: date, time, size, href, name.
	FilePattern string `mapstructure:"file_pattern"`
}

// Download configures the bounded download pool.
type Download struct {
	TargetDirectory string  `mapstructure:"target_directory"`
	MaxWorkers      int     `mapstructure:"max_workers"`
	RequestsPerSec  float64 `mapstructure:"requests_per_sec"`
}

// Ledger configures ledger persistence.
type Ledger struct {
	DBPath string `mapstructure:"db_path"`
}

// Population configures the one-shot population dataset fetch.
type Population struct {
	BaseURL  string `mapstructure:"base_url"`
	FileName string `mapstructure:"file_name"`
}

// ValidationError lists every missing or invalid configuration field.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s", strings.Join(e.Fields, ", "))
}

// Load reads the YAML config at path and validates it.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetDefault("mirror.download.max_workers", 4)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks required fields and value ranges, collecting all faults.
func (c *Config) Validate() error {
	var faults []string

	requireURL(&faults, "mirror.base_url", c.Mirror.BaseURL)
	if c.Mirror.Listing.DirectoryPath == "" {
		faults = append(faults, "mirror.listing.directory_path is required")
	}
	if c.Mirror.Listing.FilePattern == "" {
		faults = append(faults, "mirror.listing.file_pattern is required")
	} else if re, err := regexp.Compile(c.Mirror.Listing.FilePattern); err != nil {
		faults = append(faults, fmt.Sprintf("mirror.listing.file_pattern does not compile: %v", err))
	} else if re.NumSubexp() < 5 {
		faults = append(faults, "mirror.listing.file_pattern must capture 5 groups (date, time, size, href, name)")
	}
	if c.Mirror.Download.TargetDirectory == "" {
		faults = append(faults, "mirror.download.target_directory is required")
	}
	if c.Mirror.Download.MaxWorkers < 1 {
		faults = append(faults, "mirror.download.max_workers must be at least 1")
	}
	if c.Mirror.Ledger.DBPath == "" {
		faults = append(faults, "mirror.ledger.db_path is required")
	}
	if c.Mirror.ObjectStore.Enabled() {
		if c.Mirror.ObjectStore.Bucket == "" {
			faults = append(faults, "mirror.object_store.bucket is required when endpoint is set")
		}
		if c.Mirror.ObjectStore.AccessKey == "" || c.Mirror.ObjectStore.SecretKey == "" {
			faults = append(faults, "mirror.object_store credentials are required when endpoint is set")
		}
	}
	requireURL(&faults, "population.base_url", c.Population.BaseURL)
	if c.Population.FileName == "" {
		faults = append(faults, "population.file_name is required")
	}

	if len(faults) > 0 {
		return &ValidationError{Fields: faults}
	}
	return nil
}

// FilePattern returns the compiled listing pattern. Call after Validate.
func (c *Config) FilePattern() *regexp.Regexp {
	return regexp.MustCompile(c.Mirror.Listing.FilePattern)
}

func requireURL(faults *[]string, field, value string) {
	if value == "" {
		*faults = append(*faults, field+" is required")
		return
	}
	if !strings.HasPrefix(value, "http://") && !strings.HasPrefix(value, "https://") {
		*faults = append(*faults, field+" must be an HTTP URL")
	}
}
