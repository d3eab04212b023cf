package cli

import (
	"context"
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/stemsi/exstem-cbt/internal/config"
	"github.com/stemsi/exstem-cbt/internal/logger"
	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/repository"
	"github.com/stemsi/exstem-cbt/internal/service"
)

// options are the flags shared by every subcommand.
type options struct {
	catalog   string
	name      string
	className string
	logLevel  string
}

// Execute runs the terminal client.
func Execute() error {
	return NewRootCmd().Execute()
}

// NewRootCmd builds the cbt command tree.
func NewRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:          "cbt",
		Short:        "Take ExStem exams offline from a YAML catalog",
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.catalog, "catalog", "catalog.yaml", "path to the YAML catalog; results are written back to it")
	cmd.PersistentFlags().StringVar(&opts.name, "name", "", "student full name")
	cmd.PersistentFlags().StringVar(&opts.className, "class", "", "student class, e.g. \"XII RPL 1\"")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level written to stderr")

	cmd.AddCommand(newTakeCmd(opts))
	cmd.AddCommand(newExamsCmd(opts))
	return cmd
}

// env is what both subcommands need: the file store and the logged-in student.
type env struct {
	cfg   *config.Config
	log   zerolog.Logger
	store *repository.FileStore
	user  model.User
}

func (o *options) open(ctx context.Context, stderr io.Writer) (*env, error) {
	cfg := config.Load()
	log := logger.SetupTo(stderr, o.logLevel, "pretty")

	store, err := repository.OpenFileStore(o.catalog)
	if err != nil {
		return nil, err
	}

	// Same identity rules as the server login.
	auth := service.NewAuthService(cfg, store)
	resp, err := auth.StudentLogin(ctx, model.StudentLoginRequest{FullName: o.name, ClassName: o.className})
	if err != nil {
		return nil, err
	}

	return &env{cfg: cfg, log: log, store: store, user: resp.User}, nil
}
