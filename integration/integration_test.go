package integration

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gurre/moviecat/account"
	"github.com/gurre/moviecat/catalog"
	"github.com/gurre/moviecat/catalogstore"
	"github.com/gurre/moviecat/checkpoint"
	"github.com/gurre/moviecat/importer"
	"github.com/gurre/moviecat/integration/mock"
	"github.com/gurre/moviecat/mediastore"
	"github.com/gurre/moviecat/model"
	"github.com/gurre/s3streamer"
)

const (
	exportBucket = "exports"
	mediaBucket  = "media"
	source       = "s3://exports/catalog/"
)

type env struct {
	s3      *mock.S3Client
	ddb     *mock.DynamoDBClient
	store   *catalogstore.DynamoStore
	catalog *catalog.Service
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()

	ddb := mock.NewDynamoDBClient()
	if err := catalogstore.CreateTable(ctx, ddb, catalogstore.DefaultTableName, catalogstore.DefaultGenreIndex); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	if err := catalogstore.WaitForTable(ctx, ddb, catalogstore.DefaultTableName, time.Minute); err != nil {
		t.Fatalf("WaitForTable: %v", err)
	}

	s3 := mock.NewS3Client()
	loadTestData(t, s3, "testdata/catalog", "catalog/")

	store := catalogstore.NewDynamoStore(ddb, catalogstore.DefaultTableName, catalogstore.WithRetry(3, time.Millisecond))
	media := mediastore.New(s3, s3, mediaBucket, nil)
	return &env{s3: s3, ddb: ddb, store: store, catalog: catalog.New(store, media)}
}

// loadTestData copies every file in dir into the export bucket under prefix.
func loadTestData(t *testing.T, s3 *mock.S3Client, dir, prefix string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read %s: %v", dir, err)
	}
	for _, e := range entries {
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			t.Fatalf("read %s: %v", e.Name(), err)
		}
		s3.AddFile(exportBucket, prefix+e.Name(), data)
	}
}

func (e *env) importer(streamer s3streamer.Streamer, ckpt checkpoint.Store, workers int) *importer.Importer {
	return importer.New(e.s3, streamer, importer.NewJSONDecoder(), e.store, ckpt, importer.Options{
		Workers:   workers,
		BatchSize: 2,
		RetryBase: time.Millisecond,
	}, nil)
}

func names(movies []model.Movie) []string {
	out := make([]string, 0, len(movies))
	for _, m := range movies {
		out = append(out, m.MovieName)
	}
	sort.Strings(out)
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestImportThenBrowse(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	report, err := e.importer(e.s3, checkpoint.NewMemoryStore(), 2).Run(ctx, source)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if report.MoviesWritten != 7 || report.CorruptCount != 1 || report.InvalidCount != 1 {
		t.Fatalf("report = %s", report)
	}
	if report.FilesCompleted != 2 {
		t.Errorf("files completed = %d, want 2", report.FilesCompleted)
	}

	all, err := e.catalog.List(ctx, catalog.Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 7 {
		t.Fatalf("catalog has %d movies, want 7", len(all))
	}
	for _, m := range all {
		if m.Version != 1 {
			t.Errorf("%s imported at version %d, want 1", m.MovieName, m.Version)
		}
	}

	sciFi, err := e.catalog.ListByGenre(ctx, "SCI-FI")
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"Arrival", "Blade Runner", "Dune"}; !equal(names(sciFi), want) {
		t.Errorf("sci-fi = %v, want %v", names(sciFi), want)
	}

	top, err := e.catalog.ListByRating(ctx, 4.2)
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"Alien", "Arrival", "Blade Runner"}; !equal(names(top), want) {
		t.Errorf("rated >= 4.2 = %v, want %v", names(top), want)
	}

	min := 4.2
	both, err := e.catalog.List(ctx, catalog.Filter{Genre: "sci-fi", MinRating: &min})
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"Arrival", "Blade Runner"}; !equal(names(both), want) {
		t.Errorf("sci-fi rated >= 4.2 = %v, want %v", names(both), want)
	}

	// Imported records have no media yet.
	rec, err := e.catalog.Reconcile(ctx, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(rec.MissingMedia) != 7 || len(rec.OrphanedMedia) != 0 {
		t.Errorf("reconcile = %+v", rec)
	}
}

func TestRegisteredUserComments(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	if _, err := e.importer(e.s3, checkpoint.NewMemoryStore(), 2).Run(ctx, source); err != nil {
		t.Fatalf("import: %v", err)
	}

	users, err := account.OpenSQLite(filepath.Join(t.TempDir(), "users.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer users.Close()
	accounts := account.New(users, 4, nil)

	if _, err := accounts.Register(ctx, model.Registration{
		Email: "ripley@example.com", Username: "ripley", Password: "nostromo",
		FirstName: "Ellen", LastName: "Ripley",
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := accounts.Authenticate(ctx, "ripley", "sulaco"); !errors.Is(err, account.ErrInvalidCredentials) {
		t.Fatalf("wrong password error = %v", err)
	}
	who, err := accounts.Authenticate(ctx, "ripley", "nostromo")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}

	const alienID = "0b9c5c6e-1f0e-4c59-9a59-0c5e3f7d2a07"
	for _, r := range []float64{5, 3} {
		rating := r
		if _, err := e.catalog.AddComment(ctx, catalog.NewComment{
			MovieID: alienID, MovieName: "Alien", Content: "in space no one can hear you scream",
			UserID: who.Username, Rating: &rating,
		}); err != nil {
			t.Fatalf("AddComment: %v", err)
		}
	}

	alien, err := e.catalog.Get(ctx, alienID, "Alien")
	if err != nil {
		t.Fatal(err)
	}
	if alien.Rating == nil || *alien.Rating != 4 {
		t.Errorf("rating = %v, want 4 (mean of the comments)", alien.Rating)
	}
	if len(alien.Comments) != 2 || alien.Comments[0].UserID != "ripley" {
		t.Errorf("comments = %+v", alien.Comments)
	}
	// Imported at version 1, then two comment updates.
	if alien.Version != 3 {
		t.Errorf("version = %d, want 3", alien.Version)
	}
}

// cancellingStreamer cancels the run after limit lines have been delivered.
type cancellingStreamer struct {
	inner  *mock.S3Client
	limit  int64
	seen   atomic.Int64
	cancel context.CancelFunc
}

func (s *cancellingStreamer) Stream(ctx context.Context, bucket, key string, offset int64, fn func([]byte, int64) error) error {
	return s.inner.Stream(ctx, bucket, key, offset, func(line []byte, off int64) error {
		if s.seen.Add(1) > s.limit {
			s.cancel()
			return ctx.Err()
		}
		return fn(line, off)
	})
}

func TestInterruptedImportResumes(t *testing.T) {
	e := newEnv(t)
	ckptPath := filepath.Join(t.TempDir(), "import.ckpt")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ckpt, err := checkpoint.NewFileStore(ckptPath)
	if err != nil {
		t.Fatal(err)
	}
	// One worker reads part-0001 in order: two movies are written, then the run stops
	// on the fifth line.
	first := &cancellingStreamer{inner: e.s3, limit: 4, cancel: cancel}
	if _, err := e.importer(first, ckpt, 1).Run(ctx, source); !errors.Is(err, context.Canceled) {
		t.Fatalf("first run error = %v, want context.Canceled", err)
	}

	state, err := ckpt.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if state.Source != source || len(state.Offsets) == 0 {
		t.Fatalf("checkpoint after interrupt = %+v", state)
	}

	// A fresh process resumes from the same checkpoint file.
	ckpt, err = checkpoint.NewFileStore(ckptPath)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.importer(e.s3, ckpt, 2).Run(context.Background(), source); err != nil {
		t.Fatalf("resumed run: %v", err)
	}

	movies, err := e.store.List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(movies) != 7 {
		t.Fatalf("catalog has %d movies after resume, want 7", len(movies))
	}

	// Everything is done now, so a third run skips both files.
	report, err := e.importer(e.s3, ckpt, 2).Run(context.Background(), source)
	if err != nil {
		t.Fatal(err)
	}
	if report.FilesSkipped != 2 || report.LinesRead != 0 {
		t.Errorf("third run report = %s", report)
	}
}

func TestMediaLifecycle(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	m := model.Movie{
		MovieID: "m-1", MovieName: "Stalker", AddedBy: "andrei", Director: "Andrei Tarkovsky",
		Genre: "Drama", ReleaseDate: time.Date(1979, 5, 25, 0, 0, 0, 0, time.UTC), Comments: []model.Comment{},
	}
	if _, err := e.catalog.AddMovie(ctx, m, strings.NewReader("zone")); err != nil {
		t.Fatalf("AddMovie: %v", err)
	}
	url, err := e.catalog.DownloadURL(ctx, "m-1")
	if err != nil || url == "" {
		t.Fatalf("DownloadURL = %q, %v", url, err)
	}

	e.s3.FailNext("DeleteObject", errors.New("503 SlowDown"))
	if err := e.catalog.DeleteMovie(ctx, "m-1", "Stalker"); !errors.Is(err, catalog.ErrMediaOrphaned) {
		t.Fatalf("DeleteMovie error = %v, want ErrMediaOrphaned", err)
	}

	rec, err := e.catalog.Reconcile(ctx, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(rec.Deleted) != 1 || rec.Deleted[0] != "m-1" {
		t.Errorf("reconcile deleted %v, want [m-1]", rec.Deleted)
	}
	if _, ok := e.s3.File(mediaBucket, "m-1.mp4"); ok {
		t.Error("orphaned media still present")
	}
}
