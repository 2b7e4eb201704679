// Package commands implements the dtls-client command line.
package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Marz6759/goldy/internal/config"
	"github.com/Marz6759/goldy/pkg/dtlserr"
)

// usageError marks command line mistakes; they print the usage text.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }

type flags struct {
	configPath string
	body       string

	host        string
	port        string
	name        string
	authMode    string
	caFile      string
	retries     int
	readTimeout time.Duration
	hsMin       time.Duration
	hsMax       time.Duration
	logLevel    string
	protocolLog string
}

// Execute runs the client with args and returns the process exit code.
func Execute(args []string, stdout, stderr io.Writer) int {
	return ExecuteContext(context.Background(), args, stdout, stderr)
}

// ExecuteContext is Execute under ctx; cancelling ctx interrupts the
// session like SIGINT does.
func ExecuteContext(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := NewRootCmd(stdout, stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return 0
	}

	var ue usageError
	if errors.As(err, &ue) {
		fmt.Fprintf(stderr, "Error: %v\n\n%s", ue.err, cmd.UsageString())
		return 1
	}
	step := dtlserr.Step(err)
	if step == "" {
		step = "client"
	}
	fmt.Fprintf(stderr, "failed step=%s code=%d kind=%s: %v\n",
		step, dtlserr.Code(err), dtlserr.KindOf(err), err)
	return 1
}

// NewRootCmd builds the dtls-client command writing results to stdout
// and logs to stderr.
func NewRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var f flags
	def := config.Default()

	cmd := &cobra.Command{
		Use:   "dtls-client -h <host> -p <port> -b <body>",
		Short: "Send one request over a DTLS 1.2 session",
		Long: `Send one request over a DTLS 1.2 session and print the response.

The compiled-in trust bundle holds only the goldy TEST root CA, whose key
is public. It lets the client talk to the bundled test servers; it proves
nothing about a production peer. Pass --ca-file with real anchors and
--auth-mode required to authenticate servers.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if err := cobra.NoArgs(cmd, args); err != nil {
				return usageError{err}
			}
			return nil
		},

		SilenceErrors: true,
		SilenceUsage:  true,

		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolve(cmd, f)
			if err != nil {
				return err
			}

			logger := newLogger(stderr, cfg.Level())
			if !cmd.Flags().Changed("auth-mode") && f.configPath == "" {
				logger.Warn().Msg("peer verification is optional; pass --auth-mode required to enforce it")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return run(ctx, cfg, []byte(f.body), stdout, logger)
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetContext(context.Background())
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err}
	})

	fl := cmd.Flags()
	// -h is the host; help stays reachable as --help.
	fl.Bool("help", false, "help for dtls-client")
	fl.StringVarP(&f.host, "host", "h", "", "server host name or address (required)")
	fl.StringVarP(&f.port, "port", "p", "", "server UDP port (required)")
	fl.StringVarP(&f.body, "body", "b", "", "request body (required)")
	fl.StringVarP(&f.name, "name", "n", "", "name checked against the server certificate (default: host)")
	fl.StringVar(&f.configPath, "config", "", "YAML configuration file")
	fl.StringVar(&f.authMode, "auth-mode", def.AuthMode, "peer verification: required or optional")
	fl.StringVar(&f.caFile, "ca-file", "", "PEM file with trust anchors (the built-in bundle is a test CA only)")
	fl.IntVar(&f.retries, "retries", def.MaxRetries, "resends after a read timeout")
	fl.DurationVar(&f.readTimeout, "read-timeout", def.ReadTimeout.Std(), "time to wait for the response")
	fl.DurationVar(&f.hsMin, "hs-timeout-min", def.HandshakeTimeoutMin.Std(), "first handshake retransmission delay")
	fl.DurationVar(&f.hsMax, "hs-timeout-max", def.HandshakeTimeoutMax.Std(), "handshake deadline per flight")
	fl.StringVar(&f.logLevel, "log-level", def.LogLevel, "log level (trace, debug, info, warn, error)")
	fl.StringVar(&f.protocolLog, "protocol-log", "", "write protocol events to this file")

	return cmd
}

// resolve merges defaults, the config file and explicitly set flags, in
// that order, and checks the result.
func resolve(cmd *cobra.Command, f flags) (config.Config, error) {
	cfg := config.Default()
	if f.configPath != "" {
		var err error
		if cfg, err = config.Load(f.configPath); err != nil {
			return config.Config{}, err
		}
	}

	set := cmd.Flags().Changed
	if set("host") {
		cfg.Host = f.host
	}
	if set("port") {
		cfg.Port = f.port
	}
	if set("name") {
		cfg.ServerName = f.name
	}
	if set("auth-mode") {
		cfg.AuthMode = f.authMode
	}
	if set("ca-file") {
		cfg.CAFile = f.caFile
	}
	if set("retries") {
		cfg.MaxRetries = f.retries
	}
	if set("read-timeout") {
		cfg.ReadTimeout = config.Duration(f.readTimeout)
	}
	if set("hs-timeout-min") {
		cfg.HandshakeTimeoutMin = config.Duration(f.hsMin)
	}
	if set("hs-timeout-max") {
		cfg.HandshakeTimeoutMax = config.Duration(f.hsMax)
	}
	if set("log-level") {
		cfg.LogLevel = f.logLevel
	}
	if set("protocol-log") {
		cfg.ProtocolLog = f.protocolLog
	}

	switch {
	case cfg.Host == "":
		return config.Config{}, usageError{errors.New(`required flag "host" not set`)}
	case cfg.Port == "":
		return config.Config{}, usageError{errors.New(`required flag "port" not set`)}
	case !set("body"):
		return config.Config{}, usageError{errors.New(`required flag "body" not set`)}
	case f.body == "":
		return config.Config{}, usageError{errors.New(`flag "body" must not be empty`)}
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func newLogger(w io.Writer, level zerolog.Level) zerolog.Logger {
	out := zerolog.ConsoleWriter{Out: w, NoColor: true, TimeFormat: "15:04:05.000"}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}
