package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
)

type globalFlags struct {
	logLevel  string
	logFormat string
	debug     bool
}

// newRootCmd assembles the command tree. Subcommands read the logger installed
// by the persistent pre-run hook through slog.Default.
func newRootCmd(version string) *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:   "mcphub",
		Short: "Gateway that fronts a fleet of MCP servers behind one endpoint",
		Long: `mcphub probes a configured set of MCP backend servers, advertises the
union of their tools on a single JSON-RPC endpoint and routes every call to
the backend that can serve it, either by path prefix or by method.`,
		Version:      version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(cmd.ErrOrStderr(), flags)
			if err != nil {
				return err
			}
			slog.SetDefault(logger)
			return nil
		},
	}
	root.SetVersionTemplate(`{{printf "mcphub version %s\n" .Version}}`)

	pf := root.PersistentFlags()
	pf.StringVar(&flags.logLevel, "log-level", "info", "Log level: debug, info, warn or error")
	pf.StringVar(&flags.logFormat, "log-format", "text", "Log format: text or json")
	pf.BoolVar(&flags.debug, "debug", false, "Shorthand for --log-level=debug")

	root.AddCommand(newServeCmd(version))
	root.AddCommand(newStatusCmd())
	root.AddCommand(newVersionCmd(version))
	return root
}

func newLogger(w io.Writer, flags *globalFlags) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(flags.logLevel)); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q: %w", flags.logLevel, err)
	}
	if flags.debug {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(flags.logFormat) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, handlerOpts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, handlerOpts)), nil
	default:
		return nil, fmt.Errorf("invalid --log-format %q (want text or json)", flags.logFormat)
	}
}

func newVersionCmd(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of mcphub",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "mcphub version %s\n", version)
		},
	}
}
