package goldy_test

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/Marz6759/goldy/internal/dtlstest"
	"github.com/Marz6759/goldy/pkg/exchange"
	"github.com/Marz6759/goldy/pkg/log"
	"github.com/Marz6759/goldy/pkg/session"
	"github.com/Marz6759/goldy/pkg/trust"
	"github.com/Marz6759/goldy/pkg/verify"
)

type e2e struct {
	peer  *dtlstest.Peer
	port  string
	store *trust.Store
}

func setupE2E(t *testing.T, cfg dtlstest.PeerConfig) e2e {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ca, err := dtlstest.NewCA("e2e root")
	if err != nil {
		t.Fatalf("Failed to create CA: %v", err)
	}
	id, err := ca.Issue(dtlstest.LeafOptions{})
	if err != nil {
		t.Fatalf("Failed to issue server certificate: %v", err)
	}
	store := trust.NewStore()
	if r := store.AddPEM(ca.PEM()); r.Added != 1 {
		t.Fatalf("Expected one anchor, got %+v", r)
	}

	cfg.Identity = id
	peer, port := dtlstest.ServeUDP(t, cfg)
	return e2e{peer: peer, port: port, store: store}
}

// connect dials the peer over real UDP and completes the handshake.
func (e e2e) connect(t *testing.T, ctx context.Context, logger log.Logger) *session.Session {
	t.Helper()
	sess := session.New(session.Config{
		Logger:              logger,
		HandshakeTimeoutMin: 50 * time.Millisecond,
		HandshakeTimeoutMax: 2 * time.Second,
		ReadTimeout:         500 * time.Millisecond,
	})
	t.Cleanup(func() { _ = sess.Release() })

	if err := sess.Connect(ctx, "127.0.0.1", e.port); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if err := sess.Configure(session.Settings{Trust: e.store, Strictness: verify.Required, ServerName: "localhost"}); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	if err := sess.Handshake(ctx); err != nil {
		t.Fatalf("Handshake failed: %v", err)
	}
	return sess
}

// TestE2E_UDPExchange runs a full cookie handshake, one exchange and a
// graceful close over a loopback socket.
func TestE2E_UDPExchange(t *testing.T) {
	env := setupE2E(t, dtlstest.PeerConfig{Cookie: true})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sess := env.connect(t, ctx, nil)

	flags, err := sess.VerifyResult()
	if err != nil {
		t.Fatalf("VerifyResult failed: %v", err)
	}
	if d := verify.Evaluate(flags, verify.Required); !d.Accept {
		t.Fatalf("Peer rejected: %s", flags)
	}

	buf := make([]byte, 2048)
	resp, err := exchange.NewDriver().Run(ctx, sess, []byte("hello over udp"), buf)
	if err != nil {
		t.Fatalf("Exchange failed: %v", err)
	}
	if string(resp.Data) != "hello over udp" {
		t.Errorf("Expected echo, got %q", resp.Data)
	}

	if err := sess.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if sess.State() != session.StateClosed {
		t.Errorf("Expected CLOSED, got %s", sess.State())
	}

	deadline := time.Now().Add(time.Second)
	for !env.peer.Stats().ClientClosed {
		if time.Now().After(deadline) {
			t.Fatal("Peer never saw close_notify")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if st := env.peer.Stats(); st.HVRs == 0 {
		t.Error("Expected the peer to send a HelloVerifyRequest")
	}
}

// TestE2E_PeerClosesInsteadOfResponding checks that a close_notify in place
// of a response ends the exchange successfully with no data.
func TestE2E_PeerClosesInsteadOfResponding(t *testing.T) {
	env := setupE2E(t, dtlstest.PeerConfig{CloseOnRequest: true})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sess := env.connect(t, ctx, nil)

	resp, err := exchange.NewDriver().Run(ctx, sess, []byte("bye"), make([]byte, 64))
	if err != nil {
		t.Fatalf("Exchange failed: %v", err)
	}
	if !resp.PeerClosed || len(resp.Data) != 0 {
		t.Errorf("Expected peer close with no data, got %+v", resp)
	}
	if sess.State() != session.StateClosing {
		t.Errorf("Expected CLOSING, got %s", sess.State())
	}
	if err := sess.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
}

// TestE2E_ProtocolLog records a session to a file and reads it back.
func TestE2E_ProtocolLog(t *testing.T) {
	env := setupE2E(t, dtlstest.PeerConfig{})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	path := filepath.Join(t.TempDir(), "e2e.dlog")
	file, err := log.NewFileLogger(path)
	if err != nil {
		t.Fatalf("Failed to create log file: %v", err)
	}

	sess := env.connect(t, ctx, file)
	if _, err := exchange.NewDriver().Run(ctx, sess, []byte("logged"), make([]byte, 64)); err != nil {
		t.Fatalf("Exchange failed: %v", err)
	}
	if err := sess.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := file.Close(); err != nil {
		t.Fatalf("Failed to close log file: %v", err)
	}

	layer := log.LayerHandshake
	r, err := log.NewFilteredReader(path, log.Filter{ConnectionID: sess.ConnectionID(), Layer: &layer})
	if err != nil {
		t.Fatalf("Failed to open log: %v", err)
	}
	defer r.Close()

	names := map[string]int{}
	for {
		ev, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Failed to read event: %v", err)
		}
		names[ev.Handshake.Name]++
		if ev.RemoteAddr != "127.0.0.1:"+env.port {
			t.Errorf("Unexpected remote address %q", ev.RemoteAddr)
		}
	}
	for _, want := range []string{"client_hello", "server_hello", "certificate", "server_key_exchange", "server_hello_done", "client_key_exchange", "finished"} {
		if names[want] == 0 {
			t.Errorf("Missing %s in protocol log (got %v)", want, names)
		}
	}
}
