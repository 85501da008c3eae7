// Package catalog composes the catalog record store and the media store into the
// movie operations: listing and filtering, movie writes kept consistent across both
// stores, and comment threads with their aggregated rating.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gurre/moviecat/catalogstore"
	"github.com/gurre/moviecat/model"
)

// ErrMediaOrphaned reports that a movie record is gone but its media file could
// not be removed. Reconcile deletes such files later.
var ErrMediaOrphaned = errors.New("media orphaned")

// Media is the object store holding one video file per movie id.
type Media interface {
	DownloadURL(ctx context.Context, movieID string) (string, error)
	Upload(ctx context.Context, movieID string, body io.Reader) error
	Delete(ctx context.Context, movieID string) error
	ListMovieIDs(ctx context.Context) ([]string, error)
}

// Service implements the catalog operations.
// Example:
//
//	svc := catalog.New(catalogstore.NewDynamoStore(ddb, "Movies"), mediastore.New(s3c, presigner, "media", nil))
//	movies, err := svc.List(ctx, catalog.Filter{Genre: "drama"})
type Service struct {
	store  catalogstore.Store
	media  Media
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock replaces the clock used for comment timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator replaces the comment id generator.
func WithIDGenerator(newID func() string) Option {
	return func(s *Service) { s.newID = newID }
}

// New creates a Service over the two stores.
func New(store catalogstore.Store, media Media, opts ...Option) *Service {
	s := &Service{
		store:  store,
		media:  media,
		logger: slog.Default(),
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List returns the full catalog narrowed by f, in store order.
func (s *Service) List(ctx context.Context, f Filter) ([]model.Movie, error) {
	if err := f.validate(); err != nil {
		return nil, err
	}
	movies, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	return f.Apply(movies), nil
}

// ListByRating returns movies rated at or above min using the store's filtered scan.
func (s *Service) ListByRating(ctx context.Context, min float64) ([]model.Movie, error) {
	f := Filter{MinRating: &min}
	if err := f.validate(); err != nil {
		return nil, err
	}
	movies, err := s.store.ListByRating(ctx, min)
	if err != nil {
		return nil, err
	}
	return f.Apply(movies), nil
}

// ListByGenre returns movies of genre using the store's genre index.
func (s *Service) ListByGenre(ctx context.Context, genre string) ([]model.Movie, error) {
	if strings.TrimSpace(genre) == "" {
		v := &model.ValidationError{}
		v.Add("genre", "is required")
		return nil, v
	}
	movies, err := s.store.ListByGenre(ctx, genre)
	if err != nil {
		return nil, err
	}
	return Filter{Genre: genre}.Apply(movies), nil
}

// Get returns one movie or model.ErrNotFound.
func (s *Service) Get(ctx context.Context, id, name string) (model.Movie, error) {
	if err := requireKey(id, name); err != nil {
		return model.Movie{}, err
	}
	return s.store.Get(ctx, id, name)
}

// DownloadURL returns a short-lived link to the movie's video file.
func (s *Service) DownloadURL(ctx context.Context, id string) (string, error) {
	if strings.TrimSpace(id) == "" {
		v := &model.ValidationError{}
		v.Add("movieId", "is required")
		return "", v
	}
	return s.media.DownloadURL(ctx, id)
}

// AddMovie validates and stores m, then uploads file when one is given. If the
// upload fails the record write is undone and the upload error returned.
func (s *Service) AddMovie(ctx context.Context, m model.Movie, file io.Reader) (model.Movie, error) {
	if err := m.Validate(); err != nil {
		return model.Movie{}, err
	}
	return s.write(ctx, m, file)
}

// EditMovie overwrites the record (id, m.MovieName) with m, creating it when absent,
// and replaces the media file when one is given. If the media write fails the
// previous record is put back, or the new one removed when there was none.
func (s *Service) EditMovie(ctx context.Context, id string, m model.Movie, file io.Reader) (model.Movie, error) {
	m.MovieID = id
	if err := m.Validate(); err != nil {
		return model.Movie{}, err
	}
	return s.write(ctx, m, file)
}

// write puts m and then the media file, compensating the record on media failure.
func (s *Service) write(ctx context.Context, m model.Movie, file io.Reader) (model.Movie, error) {
	prior, err := s.store.Get(ctx, m.MovieID, m.MovieName)
	existed := err == nil
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		return model.Movie{}, err
	}
	if existed {
		m.Version = prior.Version
	}

	stored, err := s.store.Put(ctx, m)
	if err != nil {
		return model.Movie{}, err
	}
	s.logger.Info("stored movie",
		slog.String("movie_id", m.MovieID), slog.String("movie_name", m.MovieName), slog.Bool("replaced", existed))

	if file == nil {
		return stored, nil
	}
	uploadErr := s.media.Upload(ctx, m.MovieID, file)
	if uploadErr == nil {
		return stored, nil
	}

	s.logger.Warn("media upload failed, reverting movie record",
		slog.String("movie_id", m.MovieID), slog.String("movie_name", m.MovieName), slog.Any("error", uploadErr))
	var undoErr error
	if existed {
		prior.Version = stored.Version
		_, undoErr = s.store.Put(ctx, prior)
	} else {
		undoErr = s.store.Delete(ctx, m.MovieID, m.MovieName)
	}
	if undoErr != nil {
		s.logger.Error("could not revert movie record",
			slog.String("movie_id", m.MovieID), slog.String("movie_name", m.MovieName), slog.Any("error", undoErr))
		return model.Movie{}, errors.Join(uploadErr, fmt.Errorf("revert movie record: %w", undoErr))
	}
	return model.Movie{}, uploadErr
}

// DeleteMovie removes the record and then the media file. A media failure leaves the
// record deleted and returns an error wrapping ErrMediaOrphaned.
func (s *Service) DeleteMovie(ctx context.Context, id, name string) error {
	if err := requireKey(id, name); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id, name); err != nil {
		return err
	}
	if err := s.media.Delete(ctx, id); err != nil {
		s.logger.Warn("movie deleted but media remains",
			slog.String("movie_id", id), slog.Any("error", err))
		return fmt.Errorf("%w: movie %s: %w", ErrMediaOrphaned, id, err)
	}
	s.logger.Info("deleted movie", slog.String("movie_id", id), slog.String("movie_name", name))
	return nil
}

func requireKey(id, name string) error {
	v := &model.ValidationError{}
	if strings.TrimSpace(id) == "" {
		v.Add("movieId", "is required")
	}
	if strings.TrimSpace(name) == "" {
		v.Add("movieName", "is required")
	}
	return v.Err()
}
