// Package config holds moviecat's settings: the AWS resources it talks to, the user
// database, bulk import tuning and logging. Settings come from Default, an optional
// TOML file, and finally command-line flags.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// DefaultPath is the config file looked up when no path is given.
const DefaultPath = "moviecat.toml"

// Config holds all moviecat settings. Field tags name the TOML keys.
type Config struct {
	Region       string `toml:"region"`        // AWS region
	Endpoint     string `toml:"endpoint"`      // Custom endpoint (LocalStack, DynamoDB Local); empty for AWS
	MoviesTable  string `toml:"movies_table"`  // DynamoDB catalog table
	GenreIndex   string `toml:"genre_index"`   // GSI keyed on the normalized genre
	MediaBucket  string `toml:"media_bucket"`  // S3 bucket holding {movieId}.mp4
	UsersDB      string `toml:"users_db"`      // SQLite file with the users table
	PasswordCost int    `toml:"password_cost"` // bcrypt cost factor

	PrincipalARN string `toml:"principal_arn"` // Principal checked by preflight
	AccountID    string `toml:"account_id"`    // Account owning the table, for preflight resource ARNs

	ImportWorkers   int    `toml:"import_workers"`    // Files imported concurrently
	ImportBatchSize int    `toml:"import_batch_size"` // Movies per BatchWriteItem (≤25)
	CheckpointURI   string `toml:"checkpoint_uri"`    // s3://bucket/key or a local path; empty keeps progress in memory
	ReportURI       string `toml:"report_uri"`        // s3://bucket/key for the import report; empty disables upload

	LogLevel  string `toml:"log_level"`  // debug|info|warn|error
	LogFormat string `toml:"log_format"` // text|json
}

// Default returns the settings used when nothing overrides them.
func Default() Config {
	return Config{
		Region:          "us-east-1",
		MoviesTable:     "Movies",
		GenreIndex:      "genre-index",
		MediaBucket:     "moviecat-media",
		UsersDB:         "moviecat.db",
		PasswordCost:    10,
		ImportWorkers:   4,
		ImportBatchSize: 25,
		LogLevel:        "info",
		LogFormat:       "text",
	}
}

// Load reads the TOML file at path over Default and validates the result.
// An empty path reads DefaultPath when it exists. A missing explicit path is an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}

	file, err := os.Open(path)
	switch {
	case err == nil:
		defer file.Close()
		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("open config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate ensures all required fields are present and have valid values.
// It reports the first problem found.
func (c *Config) Validate() error {
	if c.Region == "" {
		return fmt.Errorf("region is required")
	}
	if c.Endpoint != "" {
		u, err := url.Parse(c.Endpoint)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("endpoint must be an http or https URL")
		}
	}
	if c.MoviesTable == "" {
		return fmt.Errorf("movies table is required")
	}
	if c.GenreIndex == "" {
		return fmt.Errorf("genre index is required")
	}
	if c.MediaBucket == "" {
		return fmt.Errorf("media bucket is required")
	}
	if c.UsersDB == "" {
		return fmt.Errorf("users database path is required")
	}
	if c.PasswordCost < 4 || c.PasswordCost > 31 {
		return fmt.Errorf("password cost must be between 4 and 31")
	}
	if c.ImportWorkers < 1 {
		return fmt.Errorf("import workers must be at least 1")
	}
	if c.ImportBatchSize < 1 || c.ImportBatchSize > 25 {
		return fmt.Errorf("import batch size must be between 1 and 25")
	}
	if strings.HasPrefix(c.CheckpointURI, "s3://") {
		if _, _, err := ParseS3URI(c.CheckpointURI); err != nil {
			return fmt.Errorf("invalid checkpoint URI: %w", err)
		}
	}
	if c.ReportURI != "" {
		if _, _, err := ParseS3URI(c.ReportURI); err != nil {
			return fmt.Errorf("invalid report URI: %w", err)
		}
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log level must be debug, info, warn or error")
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("log format must be text or json")
	}
	return nil
}

// ParseS3URI splits s3://bucket/key into its bucket and key. The key may be empty.
func ParseS3URI(uri string) (bucket, key string, err error) {
	if !strings.HasPrefix(uri, "s3://") {
		return "", "", fmt.Errorf("%q must start with s3://", uri)
	}
	u, err := url.Parse(uri)
	if err != nil {
		return "", "", fmt.Errorf("parse %q: %w", uri, err)
	}
	if u.Host == "" {
		return "", "", fmt.Errorf("%q has no bucket", uri)
	}
	return u.Host, strings.TrimPrefix(u.Path, "/"), nil
}
