// Package model defines the catalog records shared by the store adapters and services,
// together with the error kinds every layer reports.
package model

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// MaxRating and MinRating bound a comment rating.
const (
	MinRating = 0.0
	MaxRating = 5.0
)

// Movie is a catalog record addressed by the composite key (MovieID, MovieName).
// Example:
//
//	m := model.Movie{MovieID: "m1", MovieName: "Dune", Genre: "Sci-Fi"}
//	if err := m.Validate(); err != nil {
//	    log.Fatal(err)
//	}
type Movie struct {
	MovieID     string    `dynamodbav:"movieId" json:"movieId"`         // Partition key
	MovieName   string    `dynamodbav:"movieName" json:"movieName"`     // Sort key
	AddedBy     string    `dynamodbav:"addedBy" json:"addedBy"`         // Username of the uploader
	Director    string    `dynamodbav:"director" json:"director"`       // Director name
	Genre       string    `dynamodbav:"genre" json:"genre"`             // Free-form genre, matched case-insensitively
	Rating      *float64  `dynamodbav:"rating" json:"rating"`           // Rounded mean of comment ratings, nil when unrated
	ReleaseDate time.Time `dynamodbav:"releaseDate" json:"releaseDate"` // Stored as RFC 3339
	Comments    []Comment `dynamodbav:"comments" json:"comments"`       // Embedded, insertion ordered
	Version     int64     `dynamodbav:"version" json:"version,omitempty"`
}

// Comment is owned by exactly one Movie and has no lifecycle of its own.
type Comment struct {
	CommentID string    `dynamodbav:"commentId" json:"commentId"`
	Content   string    `dynamodbav:"content" json:"content"`
	Timestamp time.Time `dynamodbav:"timestamp" json:"timestamp"`
	UserID    string    `dynamodbav:"userId" json:"userId"`
	Rating    *float64  `dynamodbav:"rating" json:"rating"`
}

// FindComment returns the index of the comment with the given id, or -1.
func (m *Movie) FindComment(commentID string) int {
	for i := range m.Comments {
		if m.Comments[i].CommentID == commentID {
			return i
		}
	}
	return -1
}

// RecomputeRating sets Rating to the mean of all rated comments rounded to one decimal.
// A movie without rated comments keeps its current rating.
func (m *Movie) RecomputeRating() {
	var sum float64
	var n int
	for _, c := range m.Comments {
		if c.Rating == nil {
			continue
		}
		sum += *c.Rating
		n++
	}
	if n == 0 {
		return
	}
	r := RoundRating(sum / float64(n))
	m.Rating = &r
}

// RoundRating rounds to one decimal place, half away from zero.
func RoundRating(v float64) float64 {
	return math.Round(v*10) / 10
}

// GenreKey normalizes a genre for case-insensitive matching and indexing.
func GenreKey(genre string) string {
	return strings.ToLower(strings.TrimSpace(genre))
}

// Validate checks the fields a movie record cannot be stored without.
func (m Movie) Validate() error {
	v := &ValidationError{}
	v.required("movieId", m.MovieID)
	// The id names the media object; a slash would nest it under a prefix.
	if strings.Contains(m.MovieID, "/") {
		v.Add("movieId", "must not contain '/'")
	}
	v.required("movieName", m.MovieName)
	v.required("addedBy", m.AddedBy)
	v.required("director", m.Director)
	v.required("genre", m.Genre)
	if m.ReleaseDate.IsZero() {
		v.Add("releaseDate", "release date is required")
	}
	if m.Rating != nil {
		v.rating("rating", *m.Rating)
	}
	for i, c := range m.Comments {
		field := "comments[" + strconv.Itoa(i) + "]"
		v.required(field+".commentId", c.CommentID)
		v.required(field+".userId", c.UserID)
		if c.Rating != nil {
			v.rating(field+".rating", *c.Rating)
		}
	}
	return v.Err()
}

// ValidateRating reports whether r is a usable comment rating.
func ValidateRating(r float64) error {
	v := &ValidationError{}
	v.rating("rating", r)
	return v.Err()
}
