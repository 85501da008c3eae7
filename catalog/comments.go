package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gurre/moviecat/model"
)

// NewComment is a comment submission for the movie (MovieID, MovieName).
type NewComment struct {
	MovieID   string
	MovieName string
	Content   string
	UserID    string
	Rating    *float64 // optional, 0..5
}

func (c NewComment) validate() error {
	v := &model.ValidationError{}
	for _, f := range []struct{ name, value string }{
		{"movieId", c.MovieID},
		{"movieName", c.MovieName},
		{"content", c.Content},
		{"userId", c.UserID},
	} {
		if strings.TrimSpace(f.value) == "" {
			v.Add(f.name, "is required")
		}
	}
	if c.Rating != nil {
		if err := model.ValidateRating(*c.Rating); err != nil {
			v.Add("rating", fmt.Sprintf("must be between %g and %g", model.MinRating, model.MaxRating))
		}
	}
	return v.Err()
}

// AddComment appends a comment to the movie and recomputes its rating. The append is
// atomic: concurrent comments on one movie are all kept. A missing movie yields
// model.ErrNotFound.
func (s *Service) AddComment(ctx context.Context, in NewComment) (model.Comment, error) {
	if err := in.validate(); err != nil {
		return model.Comment{}, err
	}

	comment := model.Comment{
		CommentID: s.newID(),
		Content:   in.Content,
		Timestamp: s.now(),
		UserID:    in.UserID,
		Rating:    in.Rating,
	}
	_, err := s.store.Update(ctx, in.MovieID, in.MovieName, func(m *model.Movie) error {
		m.Comments = append(m.Comments, comment)
		m.RecomputeRating()
		return nil
	})
	if err != nil {
		return model.Comment{}, err
	}

	s.logger.Info("added comment",
		slog.String("movie_id", in.MovieID), slog.String("comment_id", comment.CommentID), slog.String("user_id", in.UserID))
	return comment, nil
}

// EditComment replaces a comment's content and stamps it with the current time.
// Blank content is rejected before the record is touched. A missing movie or
// comment yields model.ErrNotFound.
func (s *Service) EditComment(ctx context.Context, id, name, commentID, content string) (model.Comment, error) {
	v := &model.ValidationError{}
	if strings.TrimSpace(content) == "" {
		v.Add("content", "is required")
	}
	if strings.TrimSpace(commentID) == "" {
		v.Add("commentId", "is required")
	}
	if err := v.Err(); err != nil {
		return model.Comment{}, err
	}
	if err := requireKey(id, name); err != nil {
		return model.Comment{}, err
	}

	var edited model.Comment
	_, err := s.store.Update(ctx, id, name, func(m *model.Movie) error {
		i := m.FindComment(commentID)
		if i < 0 {
			return fmt.Errorf("comment %s: %w", commentID, model.ErrNotFound)
		}
		m.Comments[i].Content = content
		m.Comments[i].Timestamp = s.now()
		edited = m.Comments[i]
		return nil
	})
	if err != nil {
		return model.Comment{}, err
	}

	s.logger.Info("edited comment", slog.String("movie_id", id), slog.String("comment_id", commentID))
	return edited, nil
}
