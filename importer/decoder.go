package importer

import (
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	json "github.com/goccy/go-json"
	"github.com/gurre/moviecat/model"
)

// ErrCorrupt is returned when a line is not a movie object.
var ErrCorrupt = errors.New("corrupt line")

// Decoder turns one input line into a movie.
type Decoder interface {
	Decode(line []byte) (model.Movie, error)
}

// JSONDecoder reads movies in either of two line formats:
//   - the catalog wire shape: {"movieId": "...", "movieName": "...", ...}
//   - a DynamoDB export line of the catalog table: {"Item": {"movieId": {"S": "..."}, ...}}
type JSONDecoder struct{}

// NewJSONDecoder creates a new JSONDecoder instance
func NewJSONDecoder() *JSONDecoder {
	return &JSONDecoder{}
}

// Decode parses a line. Syntax and type errors wrap ErrCorrupt; the result is not validated.
//
// HOT PATH: called for every line of every imported file.
func (d *JSONDecoder) Decode(line []byte) (model.Movie, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(line, &raw); err != nil {
		return model.Movie{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	var m model.Movie
	if itemRaw, ok := raw["Item"]; ok {
		item, err := attributevalue.UnmarshalMapJSON(itemRaw)
		if err != nil {
			return model.Movie{}, fmt.Errorf("%w: failed to parse Item: %v", ErrCorrupt, err)
		}
		if err := attributevalue.UnmarshalMap(item, &m); err != nil {
			return model.Movie{}, fmt.Errorf("%w: failed to decode Item: %v", ErrCorrupt, err)
		}
	} else if err := json.Unmarshal(line, &m); err != nil {
		return model.Movie{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	if m.Comments == nil {
		m.Comments = []model.Comment{}
	}
	// Versions belong to the target table, not the source.
	m.Version = 0
	return m, nil
}
