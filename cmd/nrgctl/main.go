// Command nrgctl runs maintenance tasks against the NRG database.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jason25840/nrg-server/internal/authpw"
	"github.com/jason25840/nrg-server/internal/config"
	"github.com/jason25840/nrg-server/internal/logging"
	"github.com/jason25840/nrg-server/internal/maint"
	"github.com/jason25840/nrg-server/internal/search"
	"github.com/jason25840/nrg-server/internal/store"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// env is built once by the root command before any subcommand runs.
type env struct {
	cfg    config.Config
	logger *zap.Logger
	db     *sql.DB
	runner *maint.Runner
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	e := &env{}
	root := &cobra.Command{
		Use:           "nrgctl",
		Short:         "nrgctl runs maintenance tasks for the NRG server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return e.open(cmd.Context())
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return e.close()
		},
	}

	root.AddCommand(
		newMakeAdminCommand(e),
		newBackfillUsernamesCommand(e),
		newCleanPlaceholderEventsCommand(e),
		newAssignArticleOwnerCommand(e),
		newReindexCommand(e),
	)
	return root
}

func (e *env) open(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Env)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	if err := store.ApplyMigrations(ctx, db); err != nil {
		_ = db.Close()
		return err
	}

	e.cfg = cfg
	e.logger = logger
	e.db = db
	e.runner = maint.NewRunner(store.NewPostgresStore(db), logger, authpw.RandomSuffix)
	return nil
}

func (e *env) close() error {
	if e.logger != nil {
		_ = e.logger.Sync()
	}
	if e.db != nil {
		return e.db.Close()
	}
	return nil
}

func newMakeAdminCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "make-admin <email>",
		Short: "Promote the user with the given email to admin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := e.runner.MakeAdmin(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s) is now an admin\n", user.Email, user.ID)
			return nil
		},
	}
}

func newBackfillUsernamesCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "backfill-usernames",
		Short: "Assign derived usernames to users without a valid one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			n, err := e.runner.BackfillUsernames(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "updated %d users\n", n)
			return err
		},
	}
}

func newCleanPlaceholderEventsCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "clean-placeholder-events",
		Short: "Delete events still using a placeholder image",
		Long:  "Delete events whose image is one of:\n  " + strings.Join(maint.PlaceholderImages, "\n  "),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			n, err := e.runner.CleanPlaceholderEvents(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d events\n", n)
			return nil
		},
	}
}

func newAssignArticleOwnerCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "assign-article-owner",
		Short: "Set the creator of unowned articles to the first admin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			n, err := e.runner.AssignArticleOwner(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "updated %d articles\n", n)
			return nil
		},
	}
}

func newReindexCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Push every article and event into Meilisearch",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(e.cfg.MeiliURL) == "" {
				return fmt.Errorf("reindex: MEILI_URL is not set")
			}
			meili := search.NewMeili(e.cfg.MeiliURL, e.cfg.MeiliMasterKey, e.logger.Named("search"))
			defer meili.Close()

			n, err := search.NewService(meili, search.NewPgFTS(e.db), e.logger).Reindex(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "indexed %d records\n", n)
			return nil
		},
	}
}
