package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/Marz6759/goldy/internal/config"
	"github.com/Marz6759/goldy/pkg/dtlserr"
	"github.com/Marz6759/goldy/pkg/entropy"
	"github.com/Marz6759/goldy/pkg/exchange"
	"github.com/Marz6759/goldy/pkg/log"
	"github.com/Marz6759/goldy/pkg/session"
	"github.com/Marz6759/goldy/pkg/transport"
	"github.com/Marz6759/goldy/pkg/trust"
	"github.com/Marz6759/goldy/pkg/verify"
	"github.com/Marz6759/goldy/pkg/wire"
)

// personalization separates this client's DRBG stream from other users
// of the same seed source.
const personalization = "dtls_client"

// dialer opens the session transport; nil dials UDP.
var dialer transport.Dialer

// run performs one request/response exchange. The response body goes to
// out; progress goes to logger.
func run(ctx context.Context, cfg config.Config, body []byte, out io.Writer, logger zerolog.Logger) error {
	logger.Info().Msg("Seeding the random number generator...")
	drbg, err := entropy.NewDRBG(entropy.System, personalization)
	if err != nil {
		return dtlserr.New(dtlserr.KindEntropy, "seed", err)
	}

	logger.Info().Msg("Loading the CA root certificates...")
	store, err := loadTrust(cfg.CAFile, logger)
	if err != nil {
		return err
	}

	plog, closeLog, err := protocolLogger(cfg.ProtocolLog, logger)
	if err != nil {
		return err
	}
	defer closeLog()

	sess := session.New(session.Config{
		Dialer:              dialer,
		Random:              drbg,
		Logger:              plog,
		HandshakeTimeoutMin: cfg.HandshakeTimeoutMin.Std(),
		HandshakeTimeoutMax: cfg.HandshakeTimeoutMax.Std(),
		ReadTimeout:         cfg.ReadTimeout.Std(),
		MTU:                 cfg.MTU,
	})
	defer sess.Release()
	logger = logger.With().Str("conn_id", sess.ConnectionID()).Logger()

	logger.Info().Str("host", cfg.Host).Str("port", cfg.Port).Msg("Connecting over UDP...")
	if err := sess.Connect(ctx, cfg.Host, cfg.Port); err != nil {
		return err
	}

	strictness := cfg.Strictness()
	if err := sess.Configure(session.Settings{
		Trust:      store,
		Strictness: strictness,
		ServerName: cfg.EffectiveServerName(),
	}); err != nil {
		return err
	}

	logger.Info().Str("server_name", cfg.EffectiveServerName()).Msg("Performing the handshake...")
	if err := sess.Handshake(ctx); err != nil {
		return err
	}
	logger.Info().Msg("Handshake complete")

	logger.Info().Str("auth_mode", strictness.String()).Msg("Verifying the peer certificate...")
	verified, err := sess.VerifyResult()
	if err != nil {
		return err
	}
	decision := verify.Evaluate(verified, strictness)
	if !verified.OK() {
		fmt.Fprint(out, verified.Info("! "))
	}
	if err := decision.Err(); err != nil {
		return err
	}
	if decision.Diagnostic != "" {
		logger.Warn().Strs("reasons", verified.Names()).Msg(decision.Diagnostic)
	}

	logger.Info().Int("bytes", len(body)).Msg("Sending the request...")
	driver := exchange.NewDriver()
	driver.MaxRetries = cfg.MaxRetries
	driver.Logger = logger
	driver.OnAttempt = func(attempt int) {
		if attempt > 1 {
			logger.Info().Int("attempt", attempt).Msg("No response, resending the request...")
		}
	}
	buf := make([]byte, wire.MaxDatagramSize)
	resp, err := driver.Run(ctx, sess, body, buf)
	if err != nil {
		return err
	}
	if resp.PeerClosed {
		logger.Info().Msg("Peer closed the connection before responding")
	} else {
		logger.Info().Int("bytes", len(resp.Data)).Int("attempts", resp.Attempts).Msg("Response received")
		fmt.Fprintf(out, "%s\n", resp.Data)
	}

	logger.Info().Msg("Closing the connection...")
	// The peer may already be gone; close_notify is best effort.
	_ = sess.Close(ctx)
	logger.Info().Msg("Done")
	return nil
}

// loadTrust returns the compiled-in anchors plus those in caFile.
func loadTrust(caFile string, logger zerolog.Logger) (*trust.Store, error) {
	store, res, err := trust.LoadEmbedded()
	if err != nil {
		return nil, dtlserr.New(dtlserr.KindConfig, "trust", err)
	}
	if caFile != "" {
		extra, err := store.AddFile(caFile)
		if err != nil {
			return nil, dtlserr.New(dtlserr.KindConfig, "trust", err)
		}
		res.Added += extra.Added
		res.Skipped += extra.Skipped
	}
	if res.Skipped > 0 {
		logger.Warn().Int("skipped", res.Skipped).Msg("Some trust anchors could not be parsed")
	}
	if store.Len() == 0 {
		logger.Warn().Msg("No trust anchors loaded; no peer will verify")
	}
	if caFile == "" {
		logger.Warn().Msg("Using only the built-in test CA; pass --ca-file to trust real servers")
	}
	logger.Debug().Int("anchors", store.Len()).Strs("subjects", store.Subjects()).Msg("Trust store ready")
	return store, nil
}

// protocolLogger returns the session event sink: protocol events at debug
// level on the console, plus the CBOR file when path is set.
func protocolLogger(path string, logger zerolog.Logger) (log.Logger, func(), error) {
	console := log.NewZerologAdapter(logger)
	if path == "" {
		return console, func() {}, nil
	}
	file, err := log.NewFileLogger(path)
	if err != nil {
		return nil, nil, dtlserr.New(dtlserr.KindConfig, "protocol-log", err)
	}
	closeFn := func() {
		if n := file.Failed(); n > 0 {
			logger.Warn().Int("events", n).Msg("Protocol log lost events")
		}
		_ = file.Close()
	}
	return log.NewMultiLogger(console, file), closeFn, nil
}
