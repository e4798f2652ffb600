package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gorm.io/gorm"

	"github.com/emilythestrangee/qa-forum/backend/internal/config"
	"github.com/emilythestrangee/qa-forum/backend/internal/database"
	"github.com/emilythestrangee/qa-forum/backend/internal/logging"
	"github.com/emilythestrangee/qa-forum/backend/internal/server"
	"github.com/emilythestrangee/qa-forum/backend/internal/services"
)

// app is the state every subcommand starts from.
type app struct {
	cfg    config.Config
	logger *slog.Logger
	db     *gorm.DB
}

func rootCommand() *cobra.Command {
	v := viper.New()
	a := &app{}

	root := &cobra.Command{
		Use:           "qaforum",
		Short:         "Q&A forum API and maintenance tools",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().String("log-format", "", "log format (text, json)")
	_ = v.BindPFlag("log_level", root.PersistentFlags().Lookup("log-level"))
	_ = v.BindPFlag("log_format", root.PersistentFlags().Lookup("log-format"))

	root.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(v)
		if err != nil {
			return err
		}
		a.cfg = cfg
		a.logger = logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
		slog.SetDefault(a.logger)

		db, err := database.Open(cfg, a.logger)
		if err != nil {
			return err
		}
		a.db = db
		return nil
	}
	root.PersistentPostRunE = func(cmd *cobra.Command, _ []string) error {
		if a.db == nil {
			return nil
		}
		return database.New(a.db, a.logger).Close()
	}

	root.AddCommand(
		serveCommand(a, v),
		migrateCommand(a),
		reconcileCommand(a),
		cleanupTagsCommand(a),
	)
	return root
}

func (a *app) services() *services.Services {
	return services.New(a.db, services.Options{
		MaxRetries: a.cfg.TxMaxRetries,
		Timeout:    a.cfg.TxTimeout,
		Logger:     a.logger,
	})
}

func serveCommand(a *app, v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.cfg.JWTSecret == "" {
				return errors.New("JWT_SECRET must be set")
			}
			if err := database.Migrate(a.db); err != nil {
				return err
			}

			srv := server.NewServer(a.cfg, database.New(a.db, a.logger), a.services(), a.logger)
			errCh := make(chan error, 1)
			go func() {
				a.logger.Info("server starting", "addr", srv.Addr)
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-cmd.Context().Done():
			}

			a.logger.Info("shutting down")
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			return srv.Shutdown(ctx)
		},
	}
	cmd.Flags().String("port", "", "listen port")
	_ = v.BindPFlag("port", cmd.Flags().Lookup("port"))
	return cmd
}

func migrateCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := database.Migrate(a.db); err != nil {
				return err
			}
			a.logger.Info("migrations completed")
			return nil
		},
	}
}

func reconcileCommand(a *app) *cobra.Command {
	var fix bool
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Compare cached counters with their source rows",
		Long: "Recomputes vote counts, reputation, tag usage and solved flags from votes, " +
			"tag links and answers, and prints every row that disagrees. With --fix the " +
			"drifted counters are rewritten.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			r := a.services().Reconciler
			var (
				report services.Report
				err    error
			)
			if fix {
				report, err = r.Fix(cmd.Context())
			} else {
				report, err = r.Check(cmd.Context())
			}
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return err
			}
			if !report.Clean() && !fix {
				return fmt.Errorf("%d drifted rows", len(report.Drifts))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&fix, "fix", false, "rewrite drifted counters")
	return cmd
}

func cleanupTagsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup-tags",
		Short: "Delete tags no question uses",
		RunE: func(cmd *cobra.Command, _ []string) error {
			n, err := a.services().Tags.CleanupUnusedTags(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d tags\n", n)
			return nil
		},
	}
}
