package importer

import "github.com/gurre/moviecat/model"

// batch accumulates movies for one BatchWriteItem. A key seen twice keeps the later
// line, since a single request may not contain duplicate keys.
type batch struct {
	size   int
	movies []model.Movie
	index  map[[2]string]int
	offset int64 // absolute byte offset just past the last line consumed into the batch
}

func newBatch(size int) *batch {
	return &batch{
		size:   size,
		movies: make([]model.Movie, 0, size),
		index:  make(map[[2]string]int, size),
	}
}

func (b *batch) add(m model.Movie, offset int64) {
	k := [2]string{m.MovieID, m.MovieName}
	if i, ok := b.index[k]; ok {
		b.movies[i] = m
	} else {
		b.index[k] = len(b.movies)
		b.movies = append(b.movies, m)
	}
	b.offset = offset
}

func (b *batch) full() bool { return len(b.movies) >= b.size }

func (b *batch) reset() {
	b.movies = b.movies[:0]
	clear(b.index)
	b.offset = 0
}
