package catalog

import "github.com/gurre/moviecat/model"

// Filter is the single listing predicate shared by every listing path. Zero fields
// match everything; set fields combine with AND.
type Filter struct {
	// Genre matches case-insensitively and exactly. Empty or blank matches any genre.
	Genre string
	// MinRating keeps movies rated at or above the threshold. Unrated movies never match.
	MinRating *float64
}

// Match reports whether m satisfies every set criterion.
func (f Filter) Match(m model.Movie) bool {
	if want := model.GenreKey(f.Genre); want != "" && model.GenreKey(m.Genre) != want {
		return false
	}
	if f.MinRating != nil && (m.Rating == nil || *m.Rating < *f.MinRating) {
		return false
	}
	return true
}

// Apply returns the matching movies in their original order.
func (f Filter) Apply(movies []model.Movie) []model.Movie {
	out := make([]model.Movie, 0, len(movies))
	for _, m := range movies {
		if f.Match(m) {
			out = append(out, m)
		}
	}
	return out
}

func (f Filter) validate() error {
	if f.MinRating == nil {
		return nil
	}
	v := &model.ValidationError{}
	if err := model.ValidateRating(*f.MinRating); err != nil {
		v.Add("minRating", "must be between 0 and 5")
	}
	return v.Err()
}
