// Package cli implements outbreakctl, the operator command line for schema
// migrations, reporter accounts and fixture loading.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mesikahq/outbreak-exchange/internal/app"
	"github.com/mesikahq/outbreak-exchange/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigDir string
	Verbose   bool
}

// NewRootCommand creates the root command for outbreakctl.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "outbreakctl",
		Short:         "Operate an outbreak exchange deployment",
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigDir, "config-dir", "", "directory holding config.yaml")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log to stderr")

	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewAccountCommand(opts))
	cmd.AddCommand(NewSeedCommand(opts))

	return cmd
}

// open loads configuration and builds the services. The caller closes the
// returned App.
func (o *RootOptions) open(ctx context.Context) (*app.App, error) {
	var paths []string
	if o.ConfigDir != "" {
		paths = append(paths, o.ConfigDir)
	}
	cfg, err := config.Load(paths...)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := zap.NewNop()
	if o.Verbose {
		if logger, err = zap.NewDevelopment(); err != nil {
			return nil, err
		}
	}
	return app.New(ctx, cfg, logger)
}
