package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
)

// MovieKey identifies a catalog record.
type MovieKey struct {
	MovieID   string `json:"movieId"`
	MovieName string `json:"movieName"`
}

// ReconcileReport describes how the record store and the media store disagree.
type ReconcileReport struct {
	// OrphanedMedia are media ids with no catalog record.
	OrphanedMedia []string `json:"orphanedMedia"`
	// MissingMedia are records whose media file does not exist.
	MissingMedia []MovieKey `json:"missingMedia"`
	// Deleted are the orphaned media ids removed by this run.
	Deleted []string `json:"deleted"`
}

// Reconcile compares the media ids against the catalog. With apply set, orphaned
// media files are deleted; a record without media is only reported because the
// file cannot be recreated.
func (s *Service) Reconcile(ctx context.Context, apply bool) (ReconcileReport, error) {
	var report ReconcileReport

	// Media is listed first: records are written before their upload, so any file
	// listed here whose movie is being added already has its record in the scan below.
	mediaIDs, err := s.media.ListMovieIDs(ctx)
	if err != nil {
		return report, err
	}
	movies, err := s.store.List(ctx)
	if err != nil {
		return report, err
	}

	stored := make(map[string]bool, len(mediaIDs))
	for _, id := range mediaIDs {
		stored[id] = true
	}
	known := make(map[string]bool, len(movies))
	for _, m := range movies {
		known[m.MovieID] = true
		if !stored[m.MovieID] {
			report.MissingMedia = append(report.MissingMedia, MovieKey{MovieID: m.MovieID, MovieName: m.MovieName})
		}
	}
	for _, id := range mediaIDs {
		if !known[id] {
			report.OrphanedMedia = append(report.OrphanedMedia, id)
		}
	}
	slices.Sort(report.OrphanedMedia)

	if !apply {
		return report, nil
	}

	var errs []error
	for _, id := range report.OrphanedMedia {
		if err := s.media.Delete(ctx, id); err != nil {
			errs = append(errs, fmt.Errorf("delete orphaned media %s: %w", id, err))
			continue
		}
		report.Deleted = append(report.Deleted, id)
		s.logger.Info("deleted orphaned media", slog.String("movie_id", id))
	}
	return report, errors.Join(errs...)
}
