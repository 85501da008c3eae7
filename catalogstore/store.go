// Package catalogstore implements the movie catalog on a DynamoDB table keyed by
// (movieId, movieName), with a global secondary index on the normalized genre.
package catalogstore

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/gurre/moviecat/aws"
	"github.com/gurre/moviecat/model"
)

const (
	// DefaultTableName matches the table the catalog has always used.
	DefaultTableName = "Movies"
	// DefaultGenreIndex is the GSI keyed on genreKey.
	DefaultGenreIndex = "genre-index"

	defaultMaxRetries = 8
	maxUpdateAttempts = 10
)

// ErrConflict is returned when an atomic update keeps losing to concurrent writers.
var ErrConflict = errors.New("concurrent update conflict")

// Store is the catalog persistence contract. Point operations need the full key.
// Scans return best-effort snapshots with no consistency across pages.
type Store interface {
	List(ctx context.Context) ([]model.Movie, error)
	Get(ctx context.Context, id, name string) (model.Movie, error)
	Put(ctx context.Context, m model.Movie) (model.Movie, error)
	Delete(ctx context.Context, id, name string) error
	ListByRating(ctx context.Context, min float64) ([]model.Movie, error)
	ListByGenre(ctx context.Context, genre string) ([]model.Movie, error)
	Update(ctx context.Context, id, name string, fn func(*model.Movie) error) (model.Movie, error)
	PutBatch(ctx context.Context, movies []model.Movie) error
}

// DynamoStore implements Store on DynamoDB.
// Example:
//
//	store := catalogstore.NewDynamoStore(client, "Movies")
//	movie, err := store.Get(ctx, "m1", "Dune")
//	if errors.Is(err, model.ErrNotFound) {
//	    ...
//	}
type DynamoStore struct {
	client     aws.DynamoDBClient
	table      string
	genreIndex string
	maxRetries int
	retryBase  time.Duration
	logger     *slog.Logger
}

// Option configures a DynamoStore.
type Option func(*DynamoStore)

// WithGenreIndex overrides the name of the genre GSI.
func WithGenreIndex(name string) Option {
	return func(s *DynamoStore) { s.genreIndex = name }
}

// WithLogger sets the logger used for retries and conflicts.
func WithLogger(logger *slog.Logger) Option {
	return func(s *DynamoStore) { s.logger = logger }
}

// WithRetry sets how many times a throttled call is retried and the first backoff delay.
func WithRetry(maxRetries int, base time.Duration) Option {
	return func(s *DynamoStore) {
		s.maxRetries = maxRetries
		s.retryBase = base
	}
}

// NewDynamoStore creates a DynamoStore for the given table.
func NewDynamoStore(client aws.DynamoDBClient, table string, opts ...Option) *DynamoStore {
	s := &DynamoStore{
		client:     client,
		table:      table,
		genreIndex: DefaultGenreIndex,
		maxRetries: defaultMaxRetries,
		retryBase:  100 * time.Millisecond,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List returns every movie, following LastEvaluatedKey until the scan is exhausted.
func (s *DynamoStore) List(ctx context.Context) ([]model.Movie, error) {
	p := dynamodb.NewScanPaginator(s.client, &dynamodb.ScanInput{TableName: &s.table})
	movies, err := s.drainScan(ctx, p)
	if err != nil {
		return nil, model.StoreError("scan movies", err)
	}
	return movies, nil
}

// ListByRating returns movies rated at or above min, filtered server side.
// Unrated movies never match.
func (s *DynamoStore) ListByRating(ctx context.Context, min float64) ([]model.Movie, error) {
	p := dynamodb.NewScanPaginator(s.client, &dynamodb.ScanInput{
		TableName:                &s.table,
		FilterExpression:         strPtr("#rating >= :min"),
		ExpressionAttributeNames: map[string]string{"#rating": attrRating},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":min": &types.AttributeValueMemberN{Value: strconv.FormatFloat(min, 'f', -1, 64)},
		},
	})
	movies, err := s.drainScan(ctx, p)
	if err != nil {
		return nil, model.StoreError("scan movies by rating", err)
	}
	return movies, nil
}

// ListByGenre queries the genre index. Matching is case-insensitive because the
// index key is the normalized genre.
func (s *DynamoStore) ListByGenre(ctx context.Context, genre string) ([]model.Movie, error) {
	p := dynamodb.NewQueryPaginator(s.client, &dynamodb.QueryInput{
		TableName:                &s.table,
		IndexName:                &s.genreIndex,
		KeyConditionExpression:   strPtr("#genreKey = :genreKey"),
		ExpressionAttributeNames: map[string]string{"#genreKey": attrGenreKey},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":genreKey": &types.AttributeValueMemberS{Value: model.GenreKey(genre)},
		},
	})

	var movies []model.Movie
	for p.HasMorePages() {
		var out *dynamodb.QueryOutput
		err := s.call(ctx, func() error {
			var err error
			out, err = p.NextPage(ctx)
			return err
		})
		if err != nil {
			return nil, model.StoreError("query movies by genre", err)
		}
		page, err := unmarshalMovies(out.Items)
		if err != nil {
			return nil, model.StoreError("query movies by genre", err)
		}
		movies = append(movies, page...)
	}
	return movies, nil
}

func (s *DynamoStore) drainScan(ctx context.Context, p *dynamodb.ScanPaginator) ([]model.Movie, error) {
	var movies []model.Movie
	for p.HasMorePages() {
		var out *dynamodb.ScanOutput
		err := s.call(ctx, func() error {
			var err error
			out, err = p.NextPage(ctx)
			return err
		})
		if err != nil {
			return nil, err
		}
		page, err := unmarshalMovies(out.Items)
		if err != nil {
			return nil, err
		}
		movies = append(movies, page...)
	}
	return movies, nil
}

// Get loads one movie. A missing record yields model.ErrNotFound.
func (s *DynamoStore) Get(ctx context.Context, id, name string) (model.Movie, error) {
	var out *dynamodb.GetItemOutput
	err := s.call(ctx, func() error {
		var err error
		out, err = s.client.GetItem(ctx, &dynamodb.GetItemInput{
			TableName:      &s.table,
			Key:            keyOf(id, name),
			ConsistentRead: boolPtr(true),
		})
		return err
	})
	if err != nil {
		return model.Movie{}, model.StoreError("get movie", err)
	}
	if len(out.Item) == 0 {
		return model.Movie{}, model.ErrNotFound
	}
	m, err := unmarshalMovie(out.Item)
	if err != nil {
		return model.Movie{}, model.StoreError("decode movie", err)
	}
	return m, nil
}

// Put inserts or fully overwrites the record with no concurrency check, and returns
// the movie as stored.
func (s *DynamoStore) Put(ctx context.Context, m model.Movie) (model.Movie, error) {
	m.Version++
	item, err := marshalMovie(m)
	if err != nil {
		return model.Movie{}, model.StoreError("encode movie", err)
	}
	err = s.call(ctx, func() error {
		_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{TableName: &s.table, Item: item})
		return err
	})
	if err != nil {
		return model.Movie{}, model.StoreError("put movie", err)
	}
	return m, nil
}

// Delete removes the record. Deleting an absent record is not an error.
func (s *DynamoStore) Delete(ctx context.Context, id, name string) error {
	err := s.call(ctx, func() error {
		_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{TableName: &s.table, Key: keyOf(id, name)})
		return err
	})
	if err != nil {
		return model.StoreError("delete movie", err)
	}
	return nil
}

// Update is an atomic read-modify-write. fn mutates a freshly read copy; the write is
// conditional on the version that was read, and a lost race re-reads and re-applies fn.
// Errors returned by fn abort the update unchanged. The key attributes cannot be changed.
func (s *DynamoStore) Update(ctx context.Context, id, name string, fn func(*model.Movie) error) (model.Movie, error) {
	for attempt := 1; ; attempt++ {
		current, err := s.Get(ctx, id, name)
		if err != nil {
			return model.Movie{}, err
		}

		expected := current.Version
		if err := fn(&current); err != nil {
			return model.Movie{}, err
		}
		current.MovieID, current.MovieName = id, name
		current.Version = expected + 1

		item, err := marshalMovie(current)
		if err != nil {
			return model.Movie{}, model.StoreError("encode movie", err)
		}

		err = s.call(ctx, func() error {
			_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
				TableName:           &s.table,
				Item:                item,
				ConditionExpression: strPtr("attribute_exists(#movieId) AND attribute_not_exists(#version) OR #version = :version"),
				ExpressionAttributeNames: map[string]string{
					"#movieId": attrMovieID,
					"#version": attrVersion,
				},
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":version": &types.AttributeValueMemberN{Value: strconv.FormatInt(expected, 10)},
				},
			})
			return err
		})
		if err == nil {
			return current, nil
		}

		var conflict *types.ConditionalCheckFailedException
		if !errors.As(err, &conflict) {
			return model.Movie{}, model.StoreError("update movie", err)
		}
		if attempt >= maxUpdateAttempts {
			return model.Movie{}, model.StoreError("update movie", ErrConflict)
		}
		s.logger.Debug("movie update lost a race, retrying",
			slog.String("movie_id", id), slog.String("movie_name", name), slog.Int("attempt", attempt))
	}
}

func strPtr(s string) *string { return &s }

func boolPtr(b bool) *bool { return &b }
