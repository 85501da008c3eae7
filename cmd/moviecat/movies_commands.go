package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/gurre/moviecat/catalog"
	"github.com/gurre/moviecat/model"
)

const dateLayout = "2006-01-02"

func newMoviesCommand(ctx *commandContext) *cobra.Command {
	moviesCmd := &cobra.Command{
		Use:   "movies",
		Short: "Browse and manage movies",
	}

	moviesCmd.AddCommand(newMoviesListCommand(ctx))
	moviesCmd.AddCommand(newMoviesShowCommand(ctx))
	moviesCmd.AddCommand(newMoviesAddCommand(ctx))
	moviesCmd.AddCommand(newMoviesEditCommand(ctx))
	moviesCmd.AddCommand(newMoviesDeleteCommand(ctx))
	moviesCmd.AddCommand(newMoviesDownloadURLCommand(ctx))

	return moviesCmd
}

func newMoviesListCommand(ctx *commandContext) *cobra.Command {
	var genre string
	var minRating float64

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List movies, optionally filtered by genre and minimum rating",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := ctx.catalogService(cmd.Context())
			if err != nil {
				return err
			}

			var filter catalog.Filter
			if cmd.Flags().Changed("genre") {
				filter.Genre = genre
			}
			if cmd.Flags().Changed("min-rating") {
				filter.MinRating = &minRating
			}

			movies, err := svc.List(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if ctx.jsonFlag {
				if movies == nil {
					movies = []model.Movie{}
				}
				return writeJSON(cmd, movies)
			}
			if len(movies) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No movies found")
				return nil
			}
			fmt.Fprint(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Name", "Genre", "Director", "Released", "Rating", "Comments"},
				movieRows(movies),
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight},
			))
			return nil
		},
	}

	cmd.Flags().StringVar(&genre, "genre", "", "Only movies of this genre (case-insensitive)")
	cmd.Flags().Float64Var(&minRating, "min-rating", 0, "Only movies rated at least this")
	return cmd
}

func movieRows(movies []model.Movie) [][]string {
	rows := make([][]string, 0, len(movies))
	for _, m := range movies {
		rows = append(rows, []string{
			m.MovieID,
			m.MovieName,
			m.Genre,
			m.Director,
			formatDate(m.ReleaseDate),
			formatRating(m.Rating),
			strconv.Itoa(len(m.Comments)),
		})
	}
	return rows
}

func newMoviesShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <movie-id> <movie-name>",
		Short: "Show a movie with its comments",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := ctx.catalogService(cmd.Context())
			if err != nil {
				return err
			}
			m, err := svc.Get(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			if ctx.jsonFlag {
				return writeJSON(cmd, m)
			}
			printMovie(cmd.OutOrStdout(), m)
			return nil
		},
	}
}

func printMovie(w io.Writer, m model.Movie) {
	fmt.Fprintf(w, "%s (%s)\n", m.MovieName, formatDate(m.ReleaseDate))
	fmt.Fprintf(w, "ID:       %s\n", m.MovieID)
	fmt.Fprintf(w, "Director: %s\n", m.Director)
	fmt.Fprintf(w, "Genre:    %s\n", m.Genre)
	fmt.Fprintf(w, "Rating:   %s\n", formatRating(m.Rating))
	fmt.Fprintf(w, "Added by: %s\n", m.AddedBy)
	if len(m.Comments) == 0 {
		fmt.Fprintln(w, "No comments")
		return
	}
	rows := make([][]string, 0, len(m.Comments))
	for _, c := range m.Comments {
		rows = append(rows, []string{
			c.CommentID,
			c.UserID,
			c.Timestamp.Format(time.RFC3339),
			formatRating(c.Rating),
			c.Content,
		})
	}
	fmt.Fprint(w, renderTable(
		[]string{"Comment", "User", "Posted", "Rating", "Content"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
	))
}

// movieFlags are the editable movie fields shared by add and edit.
type movieFlags struct {
	name     string
	director string
	genre    string
	released string
	file     string
}

func (f *movieFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.director, "director", "", "Director")
	cmd.Flags().StringVar(&f.genre, "genre", "", "Genre")
	cmd.Flags().StringVar(&f.released, "released", "", "Release date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.file, "file", "", "Path to the movie file to upload")
}

// apply copies every flag the user set onto m.
func (f *movieFlags) apply(cmd *cobra.Command, m *model.Movie) error {
	if cmd.Flags().Changed("director") {
		m.Director = f.director
	}
	if cmd.Flags().Changed("genre") {
		m.Genre = f.genre
	}
	if cmd.Flags().Changed("released") {
		t, err := time.Parse(dateLayout, strings.TrimSpace(f.released))
		if err != nil {
			return fmt.Errorf("invalid --released %q: want YYYY-MM-DD", f.released)
		}
		m.ReleaseDate = t.UTC()
	}
	return nil
}

// openFile returns the upload body, or a nil reader when no file was given.
func (f *movieFlags) openFile() (io.Reader, func(), error) {
	if f.file == "" {
		return nil, func() {}, nil
	}
	file, err := os.Open(f.file)
	if err != nil {
		return nil, nil, fmt.Errorf("open movie file: %w", err)
	}
	return file, func() { file.Close() }, nil
}

func newMoviesAddCommand(ctx *commandContext) *cobra.Command {
	var flags movieFlags
	var id string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a movie and optionally upload its file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := ctx.actingUser()
			if err != nil {
				return err
			}
			svc, err := ctx.catalogService(cmd.Context())
			if err != nil {
				return err
			}

			m := model.Movie{
				MovieID:   id,
				MovieName: flags.name,
				AddedBy:   user,
				Comments:  []model.Comment{},
			}
			if m.MovieID == "" {
				m.MovieID = uuid.NewString()
			}
			if err := flags.apply(cmd, &m); err != nil {
				return err
			}
			file, closeFile, err := flags.openFile()
			if err != nil {
				return err
			}
			defer closeFile()

			stored, err := svc.AddMovie(cmd.Context(), m, file)
			if err != nil {
				return err
			}
			if ctx.jsonFlag {
				return writeJSON(cmd, stored)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %s (%s)\n", stored.MovieName, stored.MovieID)
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "Movie id (generated when empty)")
	cmd.Flags().StringVar(&flags.name, "name", "", "Movie name")
	flags.register(cmd)
	return cmd
}

func newMoviesEditCommand(ctx *commandContext) *cobra.Command {
	var flags movieFlags

	cmd := &cobra.Command{
		Use:   "edit <movie-id> <movie-name>",
		Short: "Change a movie's details or replace its file",
		Long: "Change a movie's details or replace its file. Fields that are not given keep " +
			"their stored values; a movie that does not exist yet is created.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := ctx.catalogService(cmd.Context())
			if err != nil {
				return err
			}

			m, err := svc.Get(cmd.Context(), args[0], args[1])
			switch {
			case errors.Is(err, model.ErrNotFound):
				user, uerr := ctx.actingUser()
				if uerr != nil {
					return uerr
				}
				m = model.Movie{MovieID: args[0], MovieName: args[1], AddedBy: user, Comments: []model.Comment{}}
			case err != nil:
				return err
			}
			if err := flags.apply(cmd, &m); err != nil {
				return err
			}
			file, closeFile, err := flags.openFile()
			if err != nil {
				return err
			}
			defer closeFile()

			stored, err := svc.EditMovie(cmd.Context(), args[0], m, file)
			if err != nil {
				return err
			}
			if ctx.jsonFlag {
				return writeJSON(cmd, stored)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %s (%s)\n", stored.MovieName, stored.MovieID)
			return nil
		},
	}

	flags.register(cmd)
	return cmd
}

func newMoviesDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <movie-id> <movie-name>",
		Short: "Delete a movie and its file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := ctx.catalogService(cmd.Context())
			if err != nil {
				return err
			}
			if err := svc.DeleteMovie(cmd.Context(), args[0], args[1]); err != nil {
				if errors.Is(err, catalog.ErrMediaOrphaned) {
					return fmt.Errorf("%w (run `moviecat reconcile --apply` to remove it)", err)
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s (%s)\n", args[1], args[0])
			return nil
		},
	}
}

func newMoviesDownloadURLCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "download-url <movie-id>",
		Short: "Print a short-lived download link for a movie file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := ctx.catalogService(cmd.Context())
			if err != nil {
				return err
			}
			url, err := svc.DownloadURL(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if ctx.jsonFlag {
				return writeJSON(cmd, map[string]string{"url": url})
			}
			fmt.Fprintln(cmd.OutOrStdout(), url)
			return nil
		},
	}
}
