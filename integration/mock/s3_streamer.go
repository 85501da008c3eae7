package mock

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"strings"
)

// Stream provides a simplified implementation of s3streamer.Streamer for testing purposes.
// It follows the library's offset contract: every line, blank ones included, is passed
// with the offset of its first byte counted from offset, so the first line is at 0.
func (m *S3Client) Stream(ctx context.Context, bucket, key string, offset int64, fn func([]byte, int64) error) error {
	// If key contains bucket in the beginning, strip it
	key = strings.TrimPrefix(key, bucket+"/")

	m.mu.Lock()
	content, ok := m.Files[fmt.Sprintf("%s/%s", bucket, key)]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("mock S3: key not found: %s/%s", bucket, key)
	}
	if len(content) == 0 {
		return fmt.Errorf("object is empty")
	}
	if offset >= int64(len(content)) {
		return fmt.Errorf("offset %d exceeds object size %d", offset, len(content))
	}

	scanner := bufio.NewScanner(bytes.NewReader(content[offset:]))
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024) // 1MB buffer

	var pos int64
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		lineOffset := pos
		pos += int64(len(line)) + 1

		if err := fn(line, lineOffset); err != nil {
			return fmt.Errorf("error processing line %d: %w", lineNum, err)
		}

		// Check context cancellation
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error scanning lines: %w", err)
	}

	return nil
}
