package main

import (
	"bytes"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/gurre/moviecat/model"
)

var (
	genres    = []string{"Drama", "Comedy", "Sci-Fi", "Horror", "Documentary", "Thriller", "Animation", "Romance"}
	adjective = []string{"Silent", "Last", "Broken", "Golden", "Midnight", "Distant", "Hidden", "Electric", "Frozen", "Wild"}
	nouns     = []string{"Harbor", "Signal", "Garden", "Empire", "River", "Machine", "Summer", "Frontier", "Mirror", "Orchard"}
	firsts    = []string{"Ana", "Bruno", "Chloe", "Dmitri", "Elif", "Farah", "Goran", "Hiro", "Ines", "Jonas"}
	lasts     = []string{"Lindqvist", "Okafor", "Moreau", "Tanaka", "Silva", "Novak", "Haddad", "Kowalski", "Reyes", "Berg"}
	remarks   = []string{"Loved it", "Too long", "Great score", "Fell asleep", "Would watch again", "Overrated", "A classic", "Confusing ending"}
)

func pick(r *rand.Rand, from []string) string {
	return from[r.Intn(len(from))]
}

func randomNumber(r *rand.Rand, min, max int) int {
	return min + r.Intn(max-min+1)
}

// newID draws a UUID from r so a seed reproduces the same catalog.
func newID(r *rand.Rand) string {
	var b [16]byte
	r.Read(b[:])
	id, err := uuid.FromBytes(b[:])
	if err != nil {
		panic(err)
	}
	id[6] = (id[6] & 0x0f) | 0x40 // version 4
	id[8] = (id[8] & 0x3f) | 0x80 // RFC 4122 variant
	return id.String()
}

// generateMovie creates a valid movie without comments or rating.
func generateMovie(r *rand.Rand, i int) model.Movie {
	released := time.Date(randomNumber(r, 1950, 2024), time.Month(randomNumber(r, 1, 12)), randomNumber(r, 1, 28), 0, 0, 0, 0, time.UTC)
	return model.Movie{
		MovieID:     newID(r),
		MovieName:   fmt.Sprintf("The %s %s %d", pick(r, adjective), pick(r, nouns), i),
		AddedBy:     "datagen",
		Director:    pick(r, firsts) + " " + pick(r, lasts),
		Genre:       pick(r, genres),
		ReleaseDate: released,
		Comments:    []model.Comment{},
	}
}

// generateComment returns content, user and an optional rating for one comment.
func generateComment(r *rand.Rand) (content, user string, rating *float64) {
	content = pick(r, remarks)
	user = fmt.Sprintf("user-%d", randomNumber(r, 1, 50))
	if r.Intn(4) > 0 {
		v := float64(randomNumber(r, 0, 10)) / 2
		rating = &v
	}
	return content, user, rating
}

// fakeVideo is a placeholder body for uploaded media.
func fakeVideo(r *rand.Rand) *bytes.Reader {
	b := make([]byte, randomNumber(r, 64, 256))
	r.Read(b)
	return bytes.NewReader(b)
}

// commentFor builds a comment posted some days after the release.
func commentFor(r *rand.Rand, content, user string, rating *float64, released time.Time) model.Comment {
	return model.Comment{
		CommentID: newID(r),
		Content:   content,
		Timestamp: released.AddDate(0, 0, randomNumber(r, 1, 3650)),
		UserID:    user,
		Rating:    rating,
	}
}
