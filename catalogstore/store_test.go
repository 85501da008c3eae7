package catalogstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/gurre/moviecat/integration/mock"
	"github.com/gurre/moviecat/model"
)

func newTestStore(t *testing.T) (*DynamoStore, *mock.DynamoDBClient) {
	t.Helper()
	client := mock.NewDynamoDBClient()
	if err := CreateTable(context.Background(), client, DefaultTableName, DefaultGenreIndex); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	return NewDynamoStore(client, DefaultTableName, WithRetry(3, time.Millisecond)), client
}

func rating(v float64) *float64 { return &v }

func testMovie(id, name, genre string) model.Movie {
	return model.Movie{
		MovieID:     id,
		MovieName:   name,
		AddedBy:     "alice",
		Director:    "Denis Villeneuve",
		Genre:       genre,
		ReleaseDate: time.Date(2021, 10, 22, 0, 0, 0, 0, time.UTC),
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	in := testMovie("m1", "Dune", "Sci-Fi")
	in.Rating = rating(4.0)
	in.Comments = []model.Comment{{
		CommentID: "c1",
		Content:   "great",
		Timestamp: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		UserID:    "bob",
		Rating:    rating(4.0),
	}}

	stored, err := store.Put(ctx, in)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if stored.Version != 1 {
		t.Errorf("Version = %d, want 1", stored.Version)
	}

	got, err := store.Get(ctx, "m1", "Dune")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Director != in.Director || got.Genre != in.Genre || got.AddedBy != in.AddedBy {
		t.Errorf("scalar fields differ: %+v", got)
	}
	if !got.ReleaseDate.Equal(in.ReleaseDate) {
		t.Errorf("ReleaseDate = %v, want %v", got.ReleaseDate, in.ReleaseDate)
	}
	if got.Rating == nil || *got.Rating != 4.0 {
		t.Errorf("Rating = %v, want 4.0", got.Rating)
	}
	if len(got.Comments) != 1 || got.Comments[0].Content != "great" || !got.Comments[0].Timestamp.Equal(in.Comments[0].Timestamp) {
		t.Errorf("Comments = %+v", got.Comments)
	}
	if got.Version != 1 {
		t.Errorf("stored Version = %d, want 1", got.Version)
	}
}

func TestPutUnratedWithoutComments(t *testing.T) {
	store, client := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Put(ctx, testMovie("m1", "Dune", "Sci-Fi")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	items := client.Items(DefaultTableName)
	if len(items) != 1 {
		t.Fatalf("items = %d, want 1", len(items))
	}
	if _, ok := items[0]["rating"].(*types.AttributeValueMemberNULL); !ok {
		t.Errorf("rating attribute = %T, want NULL", items[0]["rating"])
	}
	if l, ok := items[0]["comments"].(*types.AttributeValueMemberL); !ok || len(l.Value) != 0 {
		t.Errorf("comments attribute = %#v, want empty list", items[0]["comments"])
	}
	if gk, ok := items[0]["genreKey"].(*types.AttributeValueMemberS); !ok || gk.Value != "sci-fi" {
		t.Errorf("genreKey attribute = %#v, want sci-fi", items[0]["genreKey"])
	}

	got, err := store.Get(ctx, "m1", "Dune")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Rating != nil {
		t.Errorf("Rating = %v, want nil", *got.Rating)
	}
	if got.Comments == nil || len(got.Comments) != 0 {
		t.Errorf("Comments = %#v, want empty non-nil", got.Comments)
	}
}

func TestGetMissing(t *testing.T) {
	store, _ := newTestStore(t)
	_, err := store.Get(context.Background(), "nope", "Nothing")
	if !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestDeleteThenGet(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Put(ctx, testMovie("m1", "Dune", "Sci-Fi")); err != nil {
		t.Fatal(err)
	}
	if err := store.Delete(ctx, "m1", "Dune"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Get(ctx, "m1", "Dune"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("Get after delete: %v, want ErrNotFound", err)
	}
	if err := store.Delete(ctx, "m1", "Dune"); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
}

func TestListFollowsPagination(t *testing.T) {
	store, client := newTestStore(t)
	client.PageSize = 2
	ctx := context.Background()

	for i := range 5 {
		if _, err := store.Put(ctx, testMovie(fmt.Sprintf("m%d", i), fmt.Sprintf("Movie %d", i), "Drama")); err != nil {
			t.Fatal(err)
		}
	}

	movies, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(movies) != 5 {
		t.Fatalf("List returned %d movies, want 5", len(movies))
	}
	if calls := client.Calls("Scan"); calls < 3 {
		t.Errorf("Scan calls = %d, want at least 3 pages", calls)
	}
}

func TestListByRating(t *testing.T) {
	store, client := newTestStore(t)
	client.PageSize = 1
	ctx := context.Background()

	low := testMovie("m1", "Low", "Drama")
	low.Rating = rating(2.5)
	edge := testMovie("m2", "Edge", "Drama")
	edge.Rating = rating(4.0)
	high := testMovie("m3", "High", "Drama")
	high.Rating = rating(4.7)
	unrated := testMovie("m4", "Unrated", "Drama")

	for _, m := range []model.Movie{low, edge, high, unrated} {
		if _, err := store.Put(ctx, m); err != nil {
			t.Fatal(err)
		}
	}

	movies, err := store.ListByRating(ctx, 4.0)
	if err != nil {
		t.Fatalf("ListByRating: %v", err)
	}
	got := map[string]bool{}
	for _, m := range movies {
		got[m.MovieName] = true
	}
	if len(got) != 2 || !got["Edge"] || !got["High"] {
		t.Errorf("ListByRating(4.0) = %v, want Edge and High", got)
	}
}

func TestListByGenreIgnoresCase(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	for _, m := range []model.Movie{
		testMovie("m1", "Dune", "Sci-Fi"),
		testMovie("m2", "Arrival", "sci-fi"),
		testMovie("m3", "Heat", "Crime"),
	} {
		if _, err := store.Put(ctx, m); err != nil {
			t.Fatal(err)
		}
	}

	movies, err := store.ListByGenre(ctx, "SCI-FI")
	if err != nil {
		t.Fatalf("ListByGenre: %v", err)
	}
	if len(movies) != 2 {
		t.Fatalf("ListByGenre returned %d movies, want 2", len(movies))
	}
	for _, m := range movies {
		if model.GenreKey(m.Genre) != "sci-fi" {
			t.Errorf("unexpected genre %q", m.Genre)
		}
	}
}

func TestThrottlingIsRetried(t *testing.T) {
	store, client := newTestStore(t)
	ctx := context.Background()

	client.FailNext("PutItem", &types.ProvisionedThroughputExceededException{Message: awssdk.String("slow down")})
	client.FailNext("PutItem", &types.RequestLimitExceeded{Message: awssdk.String("slow down")})

	if _, err := store.Put(ctx, testMovie("m1", "Dune", "Sci-Fi")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if calls := client.Calls("PutItem"); calls != 3 {
		t.Errorf("PutItem calls = %d, want 3", calls)
	}
}

func TestNonThrottlingErrorSurfaces(t *testing.T) {
	store, client := newTestStore(t)
	boom := errors.New("connection reset")
	client.FailNext("GetItem", boom)

	_, err := store.Get(context.Background(), "m1", "Dune")
	if !errors.Is(err, model.ErrStore) || !errors.Is(err, boom) {
		t.Fatalf("err = %v, want ErrStore wrapping cause", err)
	}
	if calls := client.Calls("GetItem"); calls != 1 {
		t.Errorf("GetItem calls = %d, want 1", calls)
	}
}

func TestThrottlingGivesUp(t *testing.T) {
	store, client := newTestStore(t)
	for range 4 {
		client.FailNext("DeleteItem", &types.ProvisionedThroughputExceededException{Message: awssdk.String("slow down")})
	}

	err := store.Delete(context.Background(), "m1", "Dune")
	if !errors.Is(err, model.ErrStore) {
		t.Fatalf("err = %v, want ErrStore", err)
	}
}

func TestUpdateAppliesMutation(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Put(ctx, testMovie("m1", "Dune", "Sci-Fi")); err != nil {
		t.Fatal(err)
	}

	updated, err := store.Update(ctx, "m1", "Dune", func(m *model.Movie) error {
		m.Director = "David Lynch"
		m.MovieName = "ignored"
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Version != 2 || updated.MovieName != "Dune" {
		t.Errorf("updated = %+v", updated)
	}

	got, err := store.Get(ctx, "m1", "Dune")
	if err != nil {
		t.Fatal(err)
	}
	if got.Director != "David Lynch" {
		t.Errorf("Director = %q", got.Director)
	}
}

func TestUpdateMissing(t *testing.T) {
	store, _ := newTestStore(t)
	_, err := store.Update(context.Background(), "m1", "Dune", func(*model.Movie) error { return nil })
	if !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestUpdateMutationErrorAborts(t *testing.T) {
	store, client := newTestStore(t)
	ctx := context.Background()
	if _, err := store.Put(ctx, testMovie("m1", "Dune", "Sci-Fi")); err != nil {
		t.Fatal(err)
	}
	before := client.Calls("PutItem")

	abort := errors.New("nope")
	_, err := store.Update(ctx, "m1", "Dune", func(*model.Movie) error { return abort })
	if !errors.Is(err, abort) {
		t.Fatalf("err = %v, want abort", err)
	}
	if client.Calls("PutItem") != before {
		t.Error("aborted update wrote the record")
	}
}

func TestUpdateRetriesAfterLostRace(t *testing.T) {
	store, client := newTestStore(t)
	ctx := context.Background()
	if _, err := store.Put(ctx, testMovie("m1", "Dune", "Sci-Fi")); err != nil {
		t.Fatal(err)
	}

	// The first conditional write races with an unconditional rewrite that lands first.
	var raced atomic.Bool
	client.BeforePutItem = func(in *dynamodb.PutItemInput) {
		if in.ConditionExpression == nil || !raced.CompareAndSwap(false, true) {
			return
		}
		rival := testMovie("m1", "Dune", "Sci-Fi")
		rival.Comments = []model.Comment{{CommentID: "rival", UserID: "carol"}}
		rival.Version = 5
		if _, err := store.Put(ctx, rival); err != nil {
			t.Errorf("rival Put: %v", err)
		}
	}

	var applied int
	updated, err := store.Update(ctx, "m1", "Dune", func(m *model.Movie) error {
		applied++
		m.Comments = append(m.Comments, model.Comment{CommentID: "mine", UserID: "bob"})
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if applied != 2 {
		t.Errorf("mutation applied %d times, want 2", applied)
	}
	if len(updated.Comments) != 2 || updated.Comments[0].CommentID != "rival" || updated.Comments[1].CommentID != "mine" {
		t.Errorf("Comments = %+v, want rival then mine", updated.Comments)
	}
	if updated.Version != 7 {
		t.Errorf("Version = %d, want 7", updated.Version)
	}
}

func TestConcurrentUpdatesAllLand(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	if _, err := store.Put(ctx, testMovie("m1", "Dune", "Sci-Fi")); err != nil {
		t.Fatal(err)
	}

	const writers = 5
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Update(ctx, "m1", "Dune", func(m *model.Movie) error {
				m.Comments = append(m.Comments, model.Comment{CommentID: fmt.Sprintf("c%d", i), UserID: "u"})
				return nil
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("Update: %v", err)
		}
	}

	got, err := store.Get(ctx, "m1", "Dune")
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Comments) != writers {
		t.Fatalf("Comments = %d, want %d", len(got.Comments), writers)
	}
}

func TestUpdateGivesUpOnPersistentConflict(t *testing.T) {
	store, client := newTestStore(t)
	ctx := context.Background()
	if _, err := store.Put(ctx, testMovie("m1", "Dune", "Sci-Fi")); err != nil {
		t.Fatal(err)
	}
	for range maxUpdateAttempts {
		client.FailNext("PutItem", &types.ConditionalCheckFailedException{Message: awssdk.String("conflict")})
	}

	_, err := store.Update(ctx, "m1", "Dune", func(*model.Movie) error { return nil })
	if !errors.Is(err, ErrConflict) || !errors.Is(err, model.ErrStore) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
}

func TestPutBatchChunksAndResubmits(t *testing.T) {
	store, client := newTestStore(t)
	ctx := context.Background()

	movies := make([]model.Movie, 60)
	for i := range movies {
		movies[i] = testMovie(fmt.Sprintf("m%02d", i), fmt.Sprintf("Movie %02d", i), "Drama")
	}
	client.UnprocessNext(4)

	if err := store.PutBatch(ctx, movies); err != nil {
		t.Fatalf("PutBatch: %v", err)
	}
	if n := len(client.Items(DefaultTableName)); n != 60 {
		t.Errorf("stored %d movies, want 60", n)
	}
	// 3 chunks plus one resubmission of the unprocessed tail.
	if calls := client.Calls("BatchWriteItem"); calls != 4 {
		t.Errorf("BatchWriteItem calls = %d, want 4", calls)
	}
}

func TestPutBatchCancelled(t *testing.T) {
	client := mock.NewDynamoDBClient()
	if err := CreateTable(context.Background(), client, DefaultTableName, DefaultGenreIndex); err != nil {
		t.Fatal(err)
	}
	store := NewDynamoStore(client, DefaultTableName, WithRetry(3, time.Hour))
	client.UnprocessNext(1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := store.PutBatch(ctx, []model.Movie{testMovie("m1", "Dune", "Sci-Fi")})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestCreateTableIsIdempotent(t *testing.T) {
	client := mock.NewDynamoDBClient()
	ctx := context.Background()
	for range 2 {
		if err := CreateTable(ctx, client, "Movies", "genre-index"); err != nil {
			t.Fatalf("CreateTable: %v", err)
		}
	}
	if err := WaitForTable(ctx, client, "Movies", time.Minute); err != nil {
		t.Fatalf("WaitForTable: %v", err)
	}
}
