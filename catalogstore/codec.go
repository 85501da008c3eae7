package catalogstore

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/gurre/moviecat/model"
)

// Attribute names of the movie item.
const (
	attrMovieID   = "movieId"
	attrMovieName = "movieName"
	attrGenreKey  = "genreKey"
	attrRating    = "rating"
	attrVersion   = "version"
)

func keyOf(id, name string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		attrMovieID:   &types.AttributeValueMemberS{Value: id},
		attrMovieName: &types.AttributeValueMemberS{Value: name},
	}
}

// marshalMovie encodes a movie with its derived genreKey. Comments are always
// written as a list, never NULL, so an empty thread reads back as empty.
func marshalMovie(m model.Movie) (map[string]types.AttributeValue, error) {
	if m.Comments == nil {
		m.Comments = []model.Comment{}
	}
	item, err := attributevalue.MarshalMap(m)
	if err != nil {
		return nil, fmt.Errorf("marshal movie %s: %w", m.MovieID, err)
	}
	item[attrGenreKey] = &types.AttributeValueMemberS{Value: model.GenreKey(m.Genre)}
	return item, nil
}

func unmarshalMovie(item map[string]types.AttributeValue) (model.Movie, error) {
	var m model.Movie
	if err := attributevalue.UnmarshalMap(item, &m); err != nil {
		return model.Movie{}, fmt.Errorf("unmarshal movie: %w", err)
	}
	if m.Comments == nil {
		m.Comments = []model.Comment{}
	}
	return m, nil
}

func unmarshalMovies(items []map[string]types.AttributeValue) ([]model.Movie, error) {
	movies := make([]model.Movie, 0, len(items))
	for _, item := range items {
		m, err := unmarshalMovie(item)
		if err != nil {
			return nil, err
		}
		movies = append(movies, m)
	}
	return movies, nil
}
