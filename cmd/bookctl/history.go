package main

import (
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Maintain bearer sessions",
}

var sessionsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete sessions that expired before --grace ago",
	RunE:  withEnv(runSessionsPrune),
}

var postersCmd = &cobra.Command{
	Use:   "posters TITLE",
	Short: "List posters generated for a book",
	Args:  cobra.ExactArgs(1),
	RunE:  withEnv(runPosters),
}

var (
	pruneGrace   time.Duration
	postersLimit int
)

func init() {
	sessionsPruneCmd.Flags().DurationVar(&pruneGrace, "grace", 24*time.Hour, "keep sessions expired less than this long ago")
	sessionsCmd.AddCommand(sessionsPruneCmd)

	postersCmd.Flags().IntVar(&postersLimit, "limit", 20, "maximum posters to list")
}

func runSessionsPrune(cmd *cobra.Command, e *env, args []string) error {
	cutoff := time.Now().Add(-pruneGrace)
	deleted, err := e.repo.DeleteExpiredSessions(cmd.Context(), cutoff)
	if err != nil {
		return err
	}

	rec := struct {
		Deleted int64     `yaml:"deleted"`
		Cutoff  time.Time `yaml:"cutoff"`
	}{deleted, cutoff}
	return render(cmd, rec, table{
		header: []string{"DELETED", "CUTOFF"},
		rows:   [][]string{{strconv.FormatInt(deleted, 10), cutoff.Format(time.RFC3339)}},
	})
}

type posterRecord struct {
	ID          string    `yaml:"id"`
	PosterURL   string    `yaml:"poster_url"`
	ImageURL    string    `yaml:"image_url,omitempty"`
	CoreThought string    `yaml:"core_thought,omitempty"`
	Quotes      []string  `yaml:"quotes"`
	CreatedAt   time.Time `yaml:"created_at"`
}

func runPosters(cmd *cobra.Command, e *env, args []string) error {
	posters, err := e.repo.ListPostersByTitle(cmd.Context(), strings.TrimSpace(args[0]), postersLimit)
	if err != nil {
		return err
	}

	recs := make([]posterRecord, 0, len(posters))
	t := table{header: []string{"ID", "POSTER_URL", "QUOTES", "CREATED_AT"}}
	for _, p := range posters {
		recs = append(recs, posterRecord{
			ID:          p.ID,
			PosterURL:   p.PosterURL,
			ImageURL:    p.ImageURL,
			CoreThought: p.CoreThought,
			Quotes:      p.Quotes,
			CreatedAt:   p.CreatedAt,
		})
		t.rows = append(t.rows, []string{
			p.ID,
			p.PosterURL,
			strconv.Itoa(len(p.Quotes)),
			p.CreatedAt.Format(time.RFC3339),
		})
	}
	return render(cmd, recs, t)
}
