package commands

import (
	"io"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// NewRootCmd builds the dtls-log command tree.
func NewRootCmd(stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "dtls-log",
		Short:         "Protocol log analyzer",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.AddCommand(viewCmd(), exportCmd(), filterCmd(), statsCmd())
	return root
}

func addFilterFlags(cmd *cobra.Command, o *FilterOptions) {
	fl := cmd.Flags()
	fl.StringVar(&o.ConnID, "conn-id", "", "filter by connection ID")
	fl.StringVar(&o.TimeStart, "time-start", "", "filter by start time (RFC3339)")
	fl.StringVar(&o.TimeEnd, "time-end", "", "filter by end time (RFC3339)")
	fl.StringVar(&o.Layer, "layer", "", "filter by layer (transport, record, handshake, session)")
	fl.StringVar(&o.Direction, "direction", "", "filter by direction (in, out)")
	fl.StringVar(&o.Category, "category", "", "filter by category (message, alert, state, error, timer)")
}

func viewCmd() *cobra.Command {
	var opts FilterOptions
	cmd := &cobra.Command{
		Use:   "view [flags] <file.dlog>",
		Short: "View log file in human-readable format",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := opts.Build()
			if err != nil {
				return err
			}
			return RunView(args[0], filter, cmd.OutOrStdout())
		},
	}
	addFilterFlags(cmd, &opts)
	return cmd
}

func exportCmd() *cobra.Command {
	var format, output string
	cmd := &cobra.Command{
		Use:   "export [flags] <file.dlog>",
		Short: "Export log file to JSON lines or CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return RunExport(args[0], format, output, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&format, "format", "jsonl", "output format (jsonl, csv)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: stdout)")
	return cmd
}

func filterCmd() *cobra.Command {
	var (
		opts   FilterOptions
		output string
	)
	cmd := &cobra.Command{
		Use:   "filter -o <out.dlog> [flags] <file.dlog>",
		Short: "Filter log file and write to new file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if output == args[0] {
				return errors.New("output file must differ from the input")
			}
			filter, err := opts.Build()
			if err != nil {
				return err
			}
			return RunFilter(args[0], output, filter, cmd.OutOrStdout())
		},
	}
	addFilterFlags(cmd, &opts)
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (required)")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats <file.dlog>",
		Short: "Show statistics about the log file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return RunStats(args[0], cmd.OutOrStdout())
		},
	}
}
