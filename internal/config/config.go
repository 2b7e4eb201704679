// Package config loads the client configuration file.
package config

import (
	"bytes"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/Marz6759/goldy/pkg/dtlserr"
	"github.com/Marz6759/goldy/pkg/exchange"
	"github.com/Marz6759/goldy/pkg/session"
	"github.com/Marz6759/goldy/pkg/suite"
	"github.com/Marz6759/goldy/pkg/verify"
	"github.com/Marz6759/goldy/pkg/wire"
)

// Duration is a time.Duration written as a Go duration string ("2s").
// A bare integer is read as milliseconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return errors.Errorf("line %d: duration must be a scalar", node.Line)
	}
	if ms, err := strconv.ParseInt(node.Value, 10, 64); err == nil {
		*d = Duration(time.Duration(ms) * time.Millisecond)
		return nil
	}
	v, err := time.ParseDuration(node.Value)
	if err != nil {
		return errors.Wrapf(err, "line %d", node.Line)
	}
	*d = Duration(v)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the client configuration.
type Config struct {
	Host       string `yaml:"host"`
	Port       string `yaml:"port"`
	ServerName string `yaml:"server_name"`

	// AuthMode is "required" or "optional".
	AuthMode string `yaml:"auth_mode"`

	// CAFile adds PEM anchors to the embedded bundle.
	CAFile string `yaml:"ca_file"`

	MaxRetries          int      `yaml:"max_retries"`
	ReadTimeout         Duration `yaml:"read_timeout"`
	HandshakeTimeoutMin Duration `yaml:"handshake_timeout_min"`
	HandshakeTimeoutMax Duration `yaml:"handshake_timeout_max"`
	MTU                 int      `yaml:"mtu"`

	LogLevel    string `yaml:"log_level"`
	ProtocolLog string `yaml:"protocol_log"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		AuthMode:            verify.Optional.String(),
		MaxRetries:          exchange.DefaultMaxRetries,
		ReadTimeout:         Duration(session.DefaultReadTimeout),
		HandshakeTimeoutMin: Duration(session.DefaultHandshakeTimeoutMin),
		HandshakeTimeoutMax: Duration(session.DefaultHandshakeTimeoutMax),
		MTU:                 wire.MaxDatagramSize,
		LogLevel:            zerolog.InfoLevel.String(),
	}
}

// Parse reads YAML over the defaults. Unknown keys are rejected.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, dtlserr.New(dtlserr.KindConfig, "config", errors.Wrap(err, "parse yaml"))
	}
	return cfg, nil
}

// Load reads and parses the file at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, dtlserr.New(dtlserr.KindConfig, "config", errors.Wrapf(err, "read %s", path))
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, errors.WithMessage(err, path)
	}
	return cfg, nil
}

// Validate checks every field. Host, port and server name may be empty
// here; the caller decides which inputs are required.
func (c Config) Validate() error {
	fail := func(format string, args ...any) error {
		return dtlserr.Newf(dtlserr.KindConfig, "config", format, args...)
	}
	if c.Port != "" {
		p, err := strconv.Atoi(c.Port)
		if err != nil || p < 1 || p > 65535 {
			return fail("port %q is not a number in 1..65535", c.Port)
		}
	}
	if _, err := verify.ParseStrictness(c.AuthMode); err != nil {
		return fail("auth_mode: %v", err)
	}
	if c.MaxRetries < 0 {
		return fail("max_retries must not be negative")
	}
	if c.ReadTimeout <= 0 {
		return fail("read_timeout must be positive")
	}
	if c.HandshakeTimeoutMin <= 0 || c.HandshakeTimeoutMax <= 0 {
		return fail("handshake timeouts must be positive")
	}
	if c.HandshakeTimeoutMin > c.HandshakeTimeoutMax {
		return fail("handshake_timeout_min %s exceeds handshake_timeout_max %s",
			c.HandshakeTimeoutMin.Std(), c.HandshakeTimeoutMax.Std())
	}
	if minMTU := wire.RecordHeaderLen + suite.MaxOverhead + 1; c.MTU < minMTU || c.MTU > wire.MaxDatagramSize {
		return fail("mtu %d outside %d..%d", c.MTU, minMTU, wire.MaxDatagramSize)
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fail("log_level: %v", err)
	}
	return nil
}

// Strictness returns the parsed auth mode. Call Validate first.
func (c Config) Strictness() verify.Strictness {
	s, _ := verify.ParseStrictness(c.AuthMode)
	return s
}

// Level returns the parsed log level, info when invalid.
func (c Config) Level() zerolog.Level {
	l, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.InfoLevel
	}
	return l
}

// EffectiveServerName is the name checked against the peer certificate:
// ServerName, or Host when unset.
func (c Config) EffectiveServerName() string {
	if c.ServerName != "" {
		return c.ServerName
	}
	return c.Host
}

// Marshal encodes c as YAML.
func (c Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
