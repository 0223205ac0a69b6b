// Command m2m-log views and analyzes protocol log files.
//
// Log files are written by m2m-client and m2m-server with --protocol-log.
//
// Usage:
//
//	m2m-log <command> [flags] <file.mlog>
//
// Examples:
//
//	# View all events
//	m2m-log view client.mlog
//
//	# View outgoing wire messages of one endpoint
//	m2m-log view --layer wire --direction out --endpoint node-1 client.mlog
//
//	# Export block events of one resource as CSV
//	m2m-log export --format csv --resource /Test/0/D client.mlog
//
//	# Keep one session in a new file
//	m2m-log filter --session 3f2a... -o session.mlog client.mlog
//
//	# Show statistics
//	m2m-log stats client.mlog
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/mash-protocol/m2m-client/cmd/m2m-log/commands"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "m2m-log",
		Short:         "Protocol log analyzer",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newViewCmd(), newExportCmd(), newFilterCmd(), newStatsCmd())
	return root
}

func selectionFlags(f *pflag.FlagSet, o *commands.SelectionOptions) {
	f.StringVar(&o.SessionID, "session", "", "Filter by session ID")
	f.StringVar(&o.ConnID, "conn-id", "", "Filter by connection ID")
	f.StringVar(&o.Endpoint, "endpoint", "", "Filter by endpoint name")
	f.StringVar(&o.Resource, "resource", "", "Filter block events by resource")
	f.StringVar(&o.TimeStart, "time-start", "", "Filter by start time (RFC3339)")
	f.StringVar(&o.TimeEnd, "time-end", "", "Filter by end time (RFC3339)")
	f.StringVar(&o.Layer, "layer", "", "Filter by layer (transport, wire, session, block)")
	f.StringVar(&o.Direction, "direction", "", "Filter by direction (in, out)")
	f.StringVar(&o.Category, "category", "", "Filter by category (message, state, block, error)")
}

func newViewCmd() *cobra.Command {
	var opts commands.SelectionOptions
	cmd := &cobra.Command{
		Use:   "view [flags] <file.mlog>",
		Short: "View log file in human-readable format",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sel, err := opts.Selection()
			if err != nil {
				return err
			}
			return commands.RunView(args[0], sel, cmd.OutOrStdout())
		},
	}
	selectionFlags(cmd.Flags(), &opts)
	return cmd
}

func newExportCmd() *cobra.Command {
	var (
		opts   commands.SelectionOptions
		format string
		output string
	)
	cmd := &cobra.Command{
		Use:   "export [flags] <file.mlog>",
		Short: "Export log file to JSON lines or CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			sel, err := opts.Selection()
			if err != nil {
				return err
			}
			return commands.RunExport(args[0], format, output, sel)
		},
	}
	cmd.Flags().StringVar(&format, "format", "jsonl", "Output format (jsonl, csv)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default: stdout)")
	selectionFlags(cmd.Flags(), &opts)
	return cmd
}

func newFilterCmd() *cobra.Command {
	var (
		opts   commands.SelectionOptions
		output string
	)
	cmd := &cobra.Command{
		Use:   "filter [flags] <file.mlog>",
		Short: "Filter log file and write to new file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if output == "" {
				return errors.New("output file (-o) required")
			}
			sel, err := opts.Selection()
			if err != nil {
				return err
			}
			n, err := commands.RunFilter(args[0], output, sel)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Filtered %d events to %s\n", n, output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (required)")
	selectionFlags(cmd.Flags(), &opts)
	return cmd
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats <file.mlog>",
		Short: "Show statistics about the log file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return commands.RunStats(args[0], cmd.OutOrStdout())
		},
	}
}
