// Package mediastore keeps movie video files in a single S3 bucket under the key
// "{movieId}.mp4" and hands out short-lived download links.
package mediastore

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gurre/moviecat/aws"
	"github.com/gurre/moviecat/model"
)

const (
	// DownloadURLExpiry is how long a presigned download link stays valid.
	DownloadURLExpiry = 10 * time.Minute

	contentType = "video/mp4"
	extension   = ".mp4"
)

// ObjectKey returns the S3 key of a movie's video file.
func ObjectKey(movieID string) string {
	return movieID + extension
}

// Store reads and writes movie media in one bucket.
// Example:
//
//	store := mediastore.New(s3Client, s3.NewPresignClient(sdkClient), "movie-media", nil)
//	url, err := store.DownloadURL(ctx, "m1")
type Store struct {
	client    aws.S3Client
	presigner aws.S3Presigner
	bucket    string
	logger    *slog.Logger
}

// New creates a Store. A nil logger falls back to slog.Default().
func New(client aws.S3Client, presigner aws.S3Presigner, bucket string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{client: client, presigner: presigner, bucket: bucket, logger: logger}
}

// DownloadURL presigns a GET of the movie's file, valid for DownloadURLExpiry.
// Existence is not checked; a link to a missing object fails when followed.
func (s *Store) DownloadURL(ctx context.Context, movieID string) (string, error) {
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: awssdk.String(s.bucket),
		Key:    awssdk.String(ObjectKey(movieID)),
	}, s3.WithPresignExpires(DownloadURLExpiry))
	if err != nil {
		return "", model.StoreError("presign media download", err)
	}
	return req.URL, nil
}

// Upload writes body as the movie's file, replacing any previous upload.
// body should be seekable (an *os.File or *bytes.Reader) so the SDK can sign it.
func (s *Store) Upload(ctx context.Context, movieID string, body io.Reader) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      awssdk.String(s.bucket),
		Key:         awssdk.String(ObjectKey(movieID)),
		Body:        body,
		ContentType: awssdk.String(contentType),
	})
	if err != nil {
		return model.StoreError("upload media", err)
	}
	s.logger.Debug("uploaded media", slog.String("bucket", s.bucket), slog.String("key", ObjectKey(movieID)))
	return nil
}

// Delete removes the movie's file. Removing a missing file succeeds.
func (s *Store) Delete(ctx context.Context, movieID string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: awssdk.String(s.bucket),
		Key:    awssdk.String(ObjectKey(movieID)),
	})
	if err != nil {
		return model.StoreError("delete media", err)
	}
	return nil
}

// ListMovieIDs returns the ids of every stored "*.mp4" object across all listing pages.
func (s *Store) ListMovieIDs(ctx context.Context) ([]string, error) {
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{Bucket: awssdk.String(s.bucket)})

	var ids []string
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, model.StoreError(fmt.Sprintf("list bucket %s", s.bucket), err)
		}
		for _, obj := range page.Contents {
			key := awssdk.ToString(obj.Key)
			if id, ok := strings.CutSuffix(key, extension); ok && id != "" && !strings.Contains(id, "/") {
				ids = append(ids, id)
			}
		}
	}
	return ids, nil
}
