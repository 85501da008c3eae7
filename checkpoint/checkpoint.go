// Package checkpoint persists bulk import progress so an interrupted import resumes
// where it stopped: per source file, the byte offset after the last written line.
package checkpoint

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	json "github.com/goccy/go-json"
	"github.com/gurre/moviecat/aws"
	"github.com/gurre/moviecat/config"
)

// Completed marks a file whose every line has been written.
const Completed int64 = -1

// State is the progress of one import run.
// Example:
//
//	store, _ := checkpoint.Open(s3Client, "s3://my-bucket/imports/movies.ckpt")
//	state, err := store.Load(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("resume part-0001 at byte %d\n", state.Offset("imports/part-0001.jsonl"))
type State struct {
	Source  string           `json:"source"`  // s3://bucket/prefix being imported
	Offsets map[string]int64 `json:"offsets"` // object key -> resume offset, or Completed
}

// Offset returns where to resume key; 0 when it was never started.
func (s State) Offset(key string) int64 {
	off, ok := s.Offsets[key]
	if !ok || off == Completed {
		return 0
	}
	return off
}

// Done reports whether key was fully imported.
func (s State) Done(key string) bool {
	return s.Offsets[key] == Completed
}

// Clone returns a copy that does not share the offsets map.
func (s State) Clone() State {
	c := State{Source: s.Source, Offsets: make(map[string]int64, len(s.Offsets))}
	maps.Copy(c.Offsets, s.Offsets)
	return c
}

// Store saves and loads checkpoint state. Loading a checkpoint that was never
// saved yields an empty State.
type Store interface {
	Load(ctx context.Context) (State, error)
	Save(ctx context.Context, s State) error
}

// Open picks a store for uri: s3://bucket/key, a local path (optionally file://),
// or memory when uri is empty.
func Open(client aws.S3Client, uri string) (Store, error) {
	switch {
	case uri == "":
		return NewMemoryStore(), nil
	case strings.HasPrefix(uri, "s3://"):
		return NewS3Store(client, uri)
	default:
		return NewFileStore(strings.TrimPrefix(uri, "file://"))
	}
}

// S3Store keeps the checkpoint as a JSON object in S3.
type S3Store struct {
	client aws.S3Client
	bucket string
	key    string
}

// NewS3Store creates an S3Store for an s3://bucket/key URI.
func NewS3Store(client aws.S3Client, uri string) (*S3Store, error) {
	bucket, key, err := config.ParseS3URI(uri)
	if err != nil {
		return nil, fmt.Errorf("invalid checkpoint URI: %w", err)
	}
	if key == "" {
		return nil, fmt.Errorf("invalid checkpoint URI: %q has no key", uri)
	}
	return &S3Store{client: client, bucket: bucket, key: key}, nil
}

// Load reads the checkpoint object. A missing object is an empty State.
func (s *S3Store) Load(ctx context.Context) (State, error) {
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    &s.key,
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		var notFound *types.NotFound
		if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
			return State{}, nil
		}
		return State{}, fmt.Errorf("failed to get checkpoint: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var state State
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		return State{}, fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	return state, nil
}

// Save overwrites the checkpoint object.
func (s *S3Store) Save(ctx context.Context, state State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &s.bucket,
		Key:         &s.key,
		Body:        bytes.NewReader(data),
		ContentType: strPtr("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

// FileStore keeps the checkpoint in a local JSON file.
type FileStore struct {
	path string
}

// NewFileStore creates a FileStore at path, creating its directory.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("checkpoint path is required")
	}
	cleanPath := filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(cleanPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	return &FileStore{path: cleanPath}, nil
}

// Load reads the checkpoint file. A missing file is an empty State.
func (f *FileStore) Load(ctx context.Context) (State, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return State{}, nil
		}
		return State{}, fmt.Errorf("failed to read checkpoint file: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return State{}, fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	return state, nil
}

// Save writes the checkpoint through a temporary file so a crash never leaves a
// truncated checkpoint behind.
func (f *FileStore) Save(ctx context.Context, state State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write checkpoint file: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("failed to replace checkpoint file: %w", err)
	}
	return nil
}

func strPtr(s string) *string { return &s }
