// Package mock provides in-memory stand-ins for the AWS clients moviecat talks to.
package mock

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Client is a mock implementation of aws.S3Client and aws.S3Presigner for testing
type S3Client struct {
	mu sync.Mutex
	// Maps bucket/key to file content
	Files map[string][]byte
	// Maps bucket/key to content type
	ContentTypes map[string]string
	// Maps bucket/key to ETags
	ETags map[string]*string
	// PageSize caps the keys returned by one ListObjectsV2 page. Zero means 1000.
	PageSize int

	failures map[string][]error
}

// NewS3Client creates a new mock S3 client
func NewS3Client() *S3Client {
	return &S3Client{
		Files:        make(map[string][]byte),
		ContentTypes: make(map[string]string),
		ETags:        make(map[string]*string),
		failures:     make(map[string][]error),
	}
}

// FailNext queues err to be returned by the next call of the named operation.
func (m *S3Client) FailNext(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[op] = append(m.failures[op], err)
}

func (m *S3Client) fail(op string) error {
	queue := m.failures[op]
	if len(queue) == 0 {
		return nil
	}
	m.failures[op] = queue[1:]
	return queue[0]
}

// AddFile stores content under bucket/key.
func (m *S3Client) AddFile(bucket, key string, content []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addFile(bucket, key, content)
}

// addFile helper to add a file to the mock storage
func (m *S3Client) addFile(bucket, key string, content []byte) {
	bucketKey := fmt.Sprintf("%s/%s", bucket, key)
	m.Files[bucketKey] = content
	m.ETags[bucketKey] = aws.String(fmt.Sprintf("\"%x\"", len(content)))
}

// File returns the content stored under bucket/key.
func (m *S3Client) File(bucket, key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	content, ok := m.Files[bucket+"/"+key]
	return content, ok
}

func noSuchKey(key string) error {
	return &types.NoSuchKey{
		Message: aws.String(fmt.Sprintf("The specified key does not exist: %s", key)),
	}
}

// GetObject implements the S3Client interface for reading objects
func (m *S3Client) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("GetObject"); err != nil {
		return nil, err
	}

	bucketKey := fmt.Sprintf("%s/%s", *params.Bucket, *params.Key)
	content, ok := m.Files[bucketKey]
	if !ok {
		return nil, noSuchKey(*params.Key)
	}

	if params.Range != nil {
		var err error
		if content, err = byteRange(content, *params.Range); err != nil {
			return nil, err
		}
	}

	contentLength := int64(len(content))
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(content)),
		ETag:          m.ETags[bucketKey],
		ContentType:   aws.String(m.ContentTypes[bucketKey]),
		ContentLength: &contentLength,
	}, nil
}

// byteRange applies an HTTP "bytes=first-last" range. The last byte is clamped to the
// object size as S3 does.
func byteRange(content []byte, header string) ([]byte, error) {
	var first, last int64
	if _, err := fmt.Sscanf(header, "bytes=%d-%d", &first, &last); err != nil {
		return nil, fmt.Errorf("mock S3: unsupported range %q", header)
	}
	size := int64(len(content))
	if first < 0 || first >= size || last < first {
		return nil, fmt.Errorf("mock S3: range %q not satisfiable for size %d", header, size)
	}
	if last >= size {
		last = size - 1
	}
	return content[first : last+1], nil
}

// PutObject implements the S3Client interface for writing objects
func (m *S3Client) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	// Read the entire body before taking the lock; the reader may be slow
	var data []byte
	if params.Body != nil {
		var err error
		data, err = io.ReadAll(params.Body)
		if err != nil {
			return nil, err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("PutObject"); err != nil {
		return nil, err
	}

	bucketKey := fmt.Sprintf("%s/%s", *params.Bucket, *params.Key)
	m.addFile(*params.Bucket, *params.Key, data)
	m.ContentTypes[bucketKey] = aws.ToString(params.ContentType)

	return &s3.PutObjectOutput{ETag: m.ETags[bucketKey]}, nil
}

// HeadObject returns object metadata; s3streamer sizes the object with it before
// reading ranges.
func (m *S3Client) HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("HeadObject"); err != nil {
		return nil, err
	}

	bucketKey := fmt.Sprintf("%s/%s", *params.Bucket, *params.Key)
	content, ok := m.Files[bucketKey]
	if !ok {
		return nil, &types.NotFound{Message: aws.String("Not Found")}
	}

	contentLength := int64(len(content))
	return &s3.HeadObjectOutput{
		ETag:          m.ETags[bucketKey],
		ContentType:   aws.String(m.ContentTypes[bucketKey]),
		ContentLength: &contentLength,
	}, nil
}

// DeleteObject implements the S3Client interface; deleting a missing key succeeds.
func (m *S3Client) DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("DeleteObject"); err != nil {
		return nil, err
	}

	bucketKey := fmt.Sprintf("%s/%s", *params.Bucket, *params.Key)
	delete(m.Files, bucketKey)
	delete(m.ETags, bucketKey)
	delete(m.ContentTypes, bucketKey)
	return &s3.DeleteObjectOutput{}, nil
}

// ListObjectsV2 lists keys of a bucket in lexical order, honoring Prefix and
// ContinuationToken.
func (m *S3Client) ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("ListObjectsV2"); err != nil {
		return nil, err
	}

	prefix := *params.Bucket + "/" + aws.ToString(params.Prefix)
	var keys []string
	for k := range m.Files {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, strings.TrimPrefix(k, *params.Bucket+"/"))
		}
	}
	sort.Strings(keys)

	pageSize := m.PageSize
	if pageSize == 0 {
		pageSize = 1000
	}

	after := aws.ToString(params.ContinuationToken)
	out := &s3.ListObjectsV2Output{Name: params.Bucket, Prefix: params.Prefix}
	for i, k := range keys {
		if after != "" && k <= after {
			continue
		}
		size := int64(len(m.Files[*params.Bucket+"/"+k]))
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k), Size: aws.Int64(size)})
		if len(out.Contents) == pageSize && i < len(keys)-1 {
			out.IsTruncated = aws.Bool(true)
			out.NextContinuationToken = aws.String(k)
			break
		}
	}
	out.KeyCount = aws.Int32(int32(len(out.Contents)))
	return out, nil
}

// PresignGetObject returns a fake URL that carries the expiry like a SigV4 query string.
func (m *S3Client) PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("PresignGetObject"); err != nil {
		return nil, err
	}

	var opts s3.PresignOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	expires := opts.Expires
	if expires == 0 {
		expires = 15 * time.Minute
	}

	q := url.Values{}
	q.Set("X-Amz-Expires", fmt.Sprintf("%d", int(expires.Seconds())))
	return &v4.PresignedHTTPRequest{
		URL:    fmt.Sprintf("https://%s.s3.mock/%s?%s", *params.Bucket, url.PathEscape(*params.Key), q.Encode()),
		Method: "GET",
	}, nil
}
