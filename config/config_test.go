package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func validConfig() *Config {
	cfg := Default()
	return &cfg
}

func TestDefaultIsValid(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Errorf("expected default config to pass validation, got: %v", err)
	}
}

func TestMissingRequiredFields(t *testing.T) {
	testCases := []struct {
		name  string
		clear func(*Config)
	}{
		{"region", func(c *Config) { c.Region = "" }},
		{"movies table", func(c *Config) { c.MoviesTable = "" }},
		{"genre index", func(c *Config) { c.GenreIndex = "" }},
		{"media bucket", func(c *Config) { c.MediaBucket = "" }},
		{"users db", func(c *Config) { c.UsersDB = "" }},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.clear(cfg)
			if err := cfg.Validate(); err == nil {
				t.Errorf("expected error for missing %s", tc.name)
			}
		})
	}
}

func TestInvalidEndpoint(t *testing.T) {
	for _, endpoint := range []string{"localhost:8000", "ftp://host", "http://"} {
		t.Run(endpoint, func(t *testing.T) {
			cfg := validConfig()
			cfg.Endpoint = endpoint
			if err := cfg.Validate(); err == nil {
				t.Errorf("expected error for endpoint %q", endpoint)
			}
		})
	}

	cfg := validConfig()
	cfg.Endpoint = "http://localhost:4566"
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected local endpoint to pass, got: %v", err)
	}
}

func TestInvalidPasswordCost(t *testing.T) {
	for _, cost := range []int{0, 3, 32} {
		cfg := validConfig()
		cfg.PasswordCost = cost
		if err := cfg.Validate(); err == nil {
			t.Errorf("expected error for password cost %d", cost)
		}
	}
}

func TestInvalidImportWorkers(t *testing.T) {
	for _, workers := range []int{0, -1, -100} {
		t.Run("workers", func(t *testing.T) {
			cfg := validConfig()
			cfg.ImportWorkers = workers
			if err := cfg.Validate(); err == nil {
				t.Errorf("expected error for invalid import workers: %d", workers)
			}
		})
	}
}

func TestInvalidBatchSize(t *testing.T) {
	for _, size := range []int{0, -1, 26, 100} {
		t.Run("size", func(t *testing.T) {
			cfg := validConfig()
			cfg.ImportBatchSize = size
			if err := cfg.Validate(); err == nil {
				t.Errorf("expected error for invalid batch size: %d", size)
			}
		})
	}
}

func TestURIs(t *testing.T) {
	testCases := []struct {
		name      string
		configure func(*Config)
		wantErr   bool
	}{
		{"local checkpoint", func(c *Config) { c.CheckpointURI = "/tmp/import.ckpt" }, false},
		{"s3 checkpoint", func(c *Config) { c.CheckpointURI = "s3://bucket/ckpt.json" }, false},
		{"s3 checkpoint without bucket", func(c *Config) { c.CheckpointURI = "s3:///ckpt.json" }, true},
		{"s3 report", func(c *Config) { c.ReportURI = "s3://bucket/report.json" }, false},
		{"http report", func(c *Config) { c.ReportURI = "https://bucket/report.json" }, true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.configure(cfg)
			err := cfg.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestInvalidLogging(t *testing.T) {
	cfg := validConfig()
	cfg.LogLevel = "verbose"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for unknown log level")
	}

	cfg = validConfig()
	cfg.LogFormat = "xml"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for unknown log format")
	}
}

func TestParseS3URI(t *testing.T) {
	bucket, key, err := ParseS3URI("s3://my-bucket/path/to/report.json")
	if err != nil {
		t.Fatal(err)
	}
	if bucket != "my-bucket" || key != "path/to/report.json" {
		t.Errorf("got bucket=%q key=%q", bucket, key)
	}
	if _, _, err := ParseS3URI("bucket/key"); err == nil {
		t.Error("expected error for URI without scheme")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "moviecat.toml")
	content := strings.Join([]string{
		`region = "eu-north-1"`,
		`movies_table = "MoviesTest"`,
		`media_bucket = "test-media"`,
		`import_workers = 8`,
		`log_format = "json"`,
	}, "\n")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Region != "eu-north-1" || cfg.MoviesTable != "MoviesTest" || cfg.MediaBucket != "test-media" {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.ImportWorkers != 8 || cfg.LogFormat != "json" {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.GenreIndex != "genre-index" || cfg.ImportBatchSize != 25 {
		t.Errorf("defaults lost: %+v", cfg)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "moviecat.toml")
	if err := os.WriteFile(path, []byte(`tabel = "typo"`), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for unknown key")
	}
}

func TestLoadInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "moviecat.toml")
	if err := os.WriteFile(path, []byte(`import_batch_size = 50`), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected validation error")
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestLoadWithoutFile(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MoviesTable != "Movies" {
		t.Errorf("MoviesTable = %q, want default", cfg.MoviesTable)
	}
}
