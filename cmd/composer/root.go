package main

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/MetaCell/sckan-composer-sub001/internal/core"
	"github.com/MetaCell/sckan-composer-sub001/pkg/domain"
)

type appContext struct {
	logger core.Logger
	store  domain.PersistentStore
}

func newRootCommand() *cobra.Command {
	var verbose bool
	var envFile string
	app := &appContext{}

	root := &cobra.Command{
		Use:           "composer",
		Short:         "Connectivity statement curation backend",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if envFile != "" {
				if err := godotenv.Load(envFile); err != nil {
					return err
				}
			} else {
				// Optional .env in the working directory.
				_ = godotenv.Load()
			}
			app.logger = newLogger(verbose)
			store, err := core.OpenPersistentStore(core.NewRulesEngine())
			if err != nil {
				return err
			}
			app.store = store
			return nil
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	root.PersistentFlags().StringVar(&envFile, "env_file", "", "load environment from this file")

	root.AddCommand(
		newIngestStatementsCommand(app),
		newIngestCurieIDCommand(app),
		newExportCSVCommand(app),
		newComposerDataCommand(app),
	)
	return root
}

// summarize emits the one-line completion summary every command ends with.
func summarize(app *appContext, command string, started time.Time, err error, args ...any) {
	fields := append([]any{"command", command, "duration", time.Since(started).Round(time.Millisecond)}, args...)
	if err != nil {
		app.logger.Error("command failed", append(fields, "error", err)...)
		return
	}
	app.logger.Info("command completed", fields...)
}
