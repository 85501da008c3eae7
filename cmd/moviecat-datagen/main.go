// Package main seeds a movie catalog with generated movies and comments. It creates
// the table when asked, writes through the catalog service so ratings and media
// follow the normal rules, or emits JSON lines for the bulk importer.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"math/rand"
	"os"
	"time"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	json "github.com/goccy/go-json"

	"github.com/gurre/moviecat/aws"
	"github.com/gurre/moviecat/catalog"
	"github.com/gurre/moviecat/catalogstore"
	"github.com/gurre/moviecat/config"
	"github.com/gurre/moviecat/mediastore"
)

// Options holds the command-line configuration for the data generator.
type Options struct {
	ConfigPath  string
	NumItems    int
	MaxComments int
	Mode        string // "put" or "jsonl"
	Output      string // jsonl destination, "-" for stdout
	Seed        int64
	CreateTable bool
	WithMedia   bool
}

// runPutMode adds movies and their comments through the catalog service.
func runPutMode(ctx context.Context, svc *catalog.Service, opts Options, r *rand.Rand, out io.Writer) error {
	fmt.Fprintf(out, "Generating %d movies...\n", opts.NumItems)
	added, comments := 0, 0

	for i := 0; i < opts.NumItems; i++ {
		m := generateMovie(r, i)
		var file io.Reader
		if opts.WithMedia {
			file = fakeVideo(r)
		}
		if _, err := svc.AddMovie(ctx, m, file); err != nil {
			log.Printf("Failed to add movie %d: %v", i, err)
			continue
		}
		added++

		n := r.Intn(opts.MaxComments + 1)
		for j := 0; j < n; j++ {
			content, user, rating := generateComment(r)
			_, err := svc.AddComment(ctx, catalog.NewComment{
				MovieID:   m.MovieID,
				MovieName: m.MovieName,
				Content:   content,
				UserID:    user,
				Rating:    rating,
			})
			if err != nil {
				log.Printf("Failed to comment on movie %d: %v", i, err)
				continue
			}
			comments++
		}
		if (i+1)%10 == 0 {
			fmt.Fprintf(out, "Written %d movies...\n", i+1)
		}
	}

	fmt.Fprintf(out, "Movies added: %d, comments added: %d\n", added, comments)
	return nil
}

// runJSONLMode writes one catalog-shaped movie per line, ready for `moviecat import`.
func runJSONLMode(w io.Writer, opts Options, r *rand.Rand) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	for i := 0; i < opts.NumItems; i++ {
		m := generateMovie(r, i)
		n := r.Intn(opts.MaxComments + 1)
		for j := 0; j < n; j++ {
			content, user, rating := generateComment(r)
			m.Comments = append(m.Comments, commentFor(r, content, user, rating, m.ReleaseDate))
		}
		m.RecomputeRating()
		if err := enc.Encode(m); err != nil {
			return fmt.Errorf("encode movie %d: %w", i, err)
		}
	}
	return bw.Flush()
}

func newClients(ctx context.Context, cfg *config.Config) (*dynamodb.Client, *s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.Endpoint != "" && os.Getenv("AWS_ACCESS_KEY_ID") == "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider("local", "local", "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to load SDK config: %w", err)
	}
	var endpoint *string
	if cfg.Endpoint != "" {
		endpoint = awssdk.String(cfg.Endpoint)
	}
	ddb := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) { o.BaseEndpoint = endpoint })
	s3c := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = endpoint
		o.UsePathStyle = endpoint != nil
	})
	return ddb, s3c, nil
}

func main() {
	opts := Options{}

	flag.StringVar(&opts.ConfigPath, "config", "", "moviecat configuration file")
	flag.IntVar(&opts.NumItems, "items", 100, "Number of movies")
	flag.IntVar(&opts.MaxComments, "comments", 5, "Maximum comments per movie")
	flag.StringVar(&opts.Mode, "mode", "put", "Operation mode: put | jsonl")
	flag.StringVar(&opts.Output, "out", "-", "Output file for jsonl mode (- for stdout)")
	flag.Int64Var(&opts.Seed, "seed", 0, "Random seed (0 = time-based)")
	flag.BoolVar(&opts.CreateTable, "create-table", false, "Create the movies table and genre index first")
	flag.BoolVar(&opts.WithMedia, "media", false, "Upload a placeholder media file per movie")
	flag.Parse()

	// Initialize random source
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	r := rand.New(rand.NewSource(seed))
	fmt.Fprintf(os.Stderr, "Using seed: %d\n", seed)

	if opts.Mode == "jsonl" {
		w := os.Stdout
		if opts.Output != "-" {
			f, err := os.Create(opts.Output)
			if err != nil {
				log.Fatalf("Failed to create output: %v", err)
			}
			defer f.Close()
			w = f
		}
		if err := runJSONLMode(w, opts, r); err != nil {
			log.Fatalf("JSONL mode failed: %v", err)
		}
		return
	}
	if opts.Mode != "put" {
		log.Fatalf("Unknown mode: %s (use 'put' or 'jsonl')", opts.Mode)
	}

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	ctx := context.Background()
	ddb, s3c, err := newClients(ctx, cfg)
	if err != nil {
		log.Fatal(err)
	}

	if opts.CreateTable {
		if err := catalogstore.CreateTable(ctx, ddb, cfg.MoviesTable, cfg.GenreIndex); err != nil {
			log.Fatalf("Failed to create table: %v", err)
		}
		fmt.Println("Waiting for table to become active...")
		if err := catalogstore.WaitForTable(ctx, ddb, cfg.MoviesTable, 5*time.Minute); err != nil {
			log.Fatalf("Failed to wait for table: %v", err)
		}
		fmt.Printf("Table %s is active\n", cfg.MoviesTable)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	store := catalogstore.NewDynamoStore(ddb, cfg.MoviesTable,
		catalogstore.WithGenreIndex(cfg.GenreIndex), catalogstore.WithLogger(logger))
	media := mediastore.New(aws.NewS3Client(s3c), s3.NewPresignClient(s3c), cfg.MediaBucket, logger)
	svc := catalog.New(store, media, catalog.WithLogger(logger))

	if err := runPutMode(ctx, svc, opts, r, os.Stdout); err != nil {
		log.Fatalf("Put mode failed: %v", err)
	}
	fmt.Printf("\nTable: %s\n", cfg.MoviesTable)
}
