package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/smith3v/word-sync/pkg/bot/importexport"
	"github.com/smith3v/word-sync/pkg/learning"
	"github.com/smith3v/word-sync/pkg/localstore"
	"github.com/smith3v/word-sync/pkg/remote"
	"github.com/smith3v/word-sync/pkg/syncer"
	"github.com/spf13/cobra"
)

var pullCmd = &cobra.Command{
	Use:     "pull",
	GroupID: "sync",
	Short:   "Download the vocabulary and the user's learned words",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		user, err := resolveUser()
		if err != nil {
			return err
		}
		return withEngine(cmd.Context(), func(engine *syncer.Engine) error {
			return printPull(cmd.OutOrStdout(), engine.PullFromRemote(cmd.Context(), user))
		})
	},
}

var pushCmd = &cobra.Command{
	Use:     "push",
	GroupID: "sync",
	Short:   "Replay queued local changes against the remote store",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd.Context(), func(engine *syncer.Engine) error {
			return printPush(cmd.OutOrStdout(), engine.PushLocalChanges(cmd.Context()))
		})
	},
}

var queueCmd = &cobra.Command{
	Use:     "queue",
	GroupID: "sync",
	Short:   "Show how many changes wait to be pushed",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		local, err := openLocal(cmd.Context())
		if err != nil {
			return fmt.Errorf("open local store: %w", err)
		}
		defer local.Close()

		n, err := local.QueueLength(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d queued changes\n", local.Backend(), n)
		return nil
	},
}

var learnCmd = &cobra.Command{
	Use:     "learn <word-id>",
	GroupID: "data",
	Short:   "Mark a cached vocabulary word as learned",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		user, err := resolveUser()
		if err != nil {
			return err
		}
		local, err := openLocal(cmd.Context())
		if err != nil {
			return fmt.Errorf("open local store: %w", err)
		}
		defer local.Close()

		return runLearn(cmd.Context(), cmd.OutOrStdout(), local, user, args[0])
	},
}

var seedCmd = &cobra.Command{
	Use:     "seed <file.csv>",
	GroupID: "data",
	Short:   "Upload vocabulary rows from a CSV file to the remote store",
	Long: `Upload vocabulary rows to the remote store.

Columns are source,target and optionally category and id. Rows without an
id get one derived from the source text and category, so seeding the same
file twice updates rows instead of duplicating them.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rs, err := openRemote()
		if err != nil {
			return fmt.Errorf("open remote store: %w", err)
		}
		defer rs.Close()

		return runSeed(cmd.Context(), cmd.OutOrStdout(), rs, args[0])
	},
}

var exportOut string

var exportCmd = &cobra.Command{
	Use:     "export",
	GroupID: "data",
	Short:   "Write the user's learned words as CSV",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		user, err := resolveUser()
		if err != nil {
			return err
		}
		local, err := openLocal(cmd.Context())
		if err != nil {
			return fmt.Errorf("open local store: %w", err)
		}
		defer local.Close()

		path := exportOut
		if path == "" {
			path = importexport.ExportFilename(time.Now())
		}
		return runExport(cmd.Context(), cmd.OutOrStdout(), local, user, path)
	},
}

var migrateCmd = &cobra.Command{
	Use:     "migrate",
	GroupID: "data",
	Short:   "Create or update the remote schema",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rs, err := openRemote()
		if err != nil {
			return fmt.Errorf("open remote store: %w", err)
		}
		defer rs.Close()

		if err := rs.MigrateSchema(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "remote schema is up to date")
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "output file (default learned-words-YYYYMMDD.csv)")
}

func printPull(w io.Writer, report syncer.PullReport) error {
	fmt.Fprintf(w, "vocabulary: %d rows\n", report.Vocabulary)
	fmt.Fprintf(w, "learned words: %d rows (%d written, %d enqueued, %d kept pending)\n",
		report.LearnedWords, report.Written, report.Enqueued, report.KeptPending)
	fmt.Fprintf(w, "took %v\n", report.Duration.Round(time.Millisecond))
	return report.Err()
}

func printPush(w io.Writer, report syncer.PushReport) error {
	fmt.Fprintf(w, "drained %d changes: %d delivered, %d failed, %d deferred, %d lost, %d skipped\n",
		report.Drained,
		report.Count(syncer.Delivered),
		report.Count(syncer.Failed),
		report.Count(syncer.Deferred),
		report.Count(syncer.Lost),
		report.Count(syncer.Skipped),
	)
	fmt.Fprintf(w, "%d changes remain queued\n", report.Remaining)
	return report.Err()
}

func runLearn(ctx context.Context, w io.Writer, local localstore.Store, user, wordID string) error {
	word, err := learning.NewService(local).LearnWord(ctx, user, wordID)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "learned %s as %s; run push to send it\n", wordID, word.ID)
	return nil
}

func runSeed(ctx context.Context, w io.Writer, rs remote.Store, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	words, skipped, err := importexport.ParseVocabularyCSV(data)
	if err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	stored, err := importexport.SeedVocabulary(ctx, rs, words)
	fmt.Fprintf(w, "stored %d of %d words, skipped %d rows\n", stored, len(words), skipped)
	return err
}

func runExport(ctx context.Context, w io.Writer, local localstore.Store, user, path string) error {
	words, err := localstore.LearnedVocabulary(ctx, local, user)
	if err != nil {
		return err
	}
	importexport.SortForExport(words)
	data, err := importexport.BuildExportCSV(words)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(w, "wrote %d words to %s\n", len(words), path)
	return nil
}
