package model

import (
	"errors"
	"testing"
	"time"
)

func ptr(v float64) *float64 { return &v }

func validMovie() Movie {
	return Movie{
		MovieID:     "m1",
		MovieName:   "Dune",
		AddedBy:     "alice",
		Director:    "Denis Villeneuve",
		Genre:       "Sci-Fi",
		ReleaseDate: time.Date(2021, 10, 22, 0, 0, 0, 0, time.UTC),
	}
}

func TestMovieValidate(t *testing.T) {
	m := validMovie()
	if err := m.Validate(); err != nil {
		t.Fatalf("expected valid movie, got: %v", err)
	}
}

func TestMovieValidateMissingFields(t *testing.T) {
	m := Movie{MovieID: "m1", Rating: ptr(7)}
	err := m.Validate()
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	for _, field := range []string{"movieName", "addedBy", "director", "genre", "releaseDate", "rating"} {
		if !verr.Has(field) {
			t.Errorf("expected %s to be rejected", field)
		}
	}
	if verr.Has("movieId") {
		t.Error("movieId was supplied and should not be rejected")
	}
}

func TestMovieValidateBlankIsMissing(t *testing.T) {
	m := validMovie()
	m.Director = "   "
	if err := m.Validate(); err == nil {
		t.Error("expected whitespace-only director to be rejected")
	}
}

func TestMovieValidateRejectsSlashInID(t *testing.T) {
	m := validMovie()
	m.MovieID = "2021/dune"
	var verr *ValidationError
	if err := m.Validate(); !errors.As(err, &verr) || !verr.Has("movieId") {
		t.Fatalf("Validate() = %v, want movieId rejected", err)
	}
}

func TestRecomputeRating(t *testing.T) {
	testCases := []struct {
		name    string
		ratings []*float64
		want    *float64
	}{
		{"no comments", nil, nil},
		{"unrated comments", []*float64{nil, nil}, nil},
		{"single", []*float64{ptr(5)}, ptr(5)},
		{"mean", []*float64{ptr(5), ptr(3)}, ptr(4)},
		{"rounded", []*float64{ptr(5), ptr(4), ptr(4)}, ptr(4.3)},
		{"rounds up", []*float64{ptr(4), ptr(5), ptr(5)}, ptr(4.7)},
		{"ignores unrated", []*float64{ptr(2), nil, ptr(3)}, ptr(2.5)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			m := validMovie()
			for _, r := range tc.ratings {
				m.Comments = append(m.Comments, Comment{Rating: r})
			}
			m.RecomputeRating()

			switch {
			case tc.want == nil && m.Rating != nil:
				t.Errorf("expected nil rating, got %v", *m.Rating)
			case tc.want != nil && m.Rating == nil:
				t.Errorf("expected rating %v, got nil", *tc.want)
			case tc.want != nil && *m.Rating != *tc.want:
				t.Errorf("expected rating %v, got %v", *tc.want, *m.Rating)
			}
		})
	}
}

func TestFindComment(t *testing.T) {
	m := validMovie()
	m.Comments = []Comment{{CommentID: "a"}, {CommentID: "b"}}
	if got := m.FindComment("b"); got != 1 {
		t.Errorf("expected index 1, got %d", got)
	}
	if got := m.FindComment("missing"); got != -1 {
		t.Errorf("expected -1, got %d", got)
	}
}

func TestGenreKey(t *testing.T) {
	if GenreKey(" Sci-Fi ") != "sci-fi" {
		t.Errorf("unexpected genre key %q", GenreKey(" Sci-Fi "))
	}
}

func TestRegistrationValidate(t *testing.T) {
	valid := Registration{
		Email:     "alice@example.com",
		Username:  "alice",
		Password:  "correct",
		FirstName: "Alice",
		LastName:  "Liddell",
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid registration, got: %v", err)
	}

	testCases := []struct {
		name  string
		edit  func(*Registration)
		field string
	}{
		{"missing email", func(r *Registration) { r.Email = "" }, "email"},
		{"bad email", func(r *Registration) { r.Email = "not-an-email" }, "email"},
		{"display name email", func(r *Registration) { r.Email = "Alice <alice@example.com>" }, "email"},
		{"missing username", func(r *Registration) { r.Username = "" }, "username"},
		{"missing password", func(r *Registration) { r.Password = "" }, "password"},
		{"missing first name", func(r *Registration) { r.FirstName = " " }, "firstName"},
		{"missing last name", func(r *Registration) { r.LastName = "" }, "lastName"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r := valid
			tc.edit(&r)
			var verr *ValidationError
			if err := r.Validate(); !errors.As(err, &verr) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if !verr.Has(tc.field) {
				t.Errorf("expected %s to be rejected, got %v", tc.field, verr.Fields)
			}
		})
	}
}

func TestStoreErrorWraps(t *testing.T) {
	cause := errors.New("boom")
	err := StoreError("get movie", cause)
	if !errors.Is(err, ErrStore) || !errors.Is(err, cause) {
		t.Errorf("expected error to wrap ErrStore and cause, got %v", err)
	}
}
