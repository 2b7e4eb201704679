package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Marz6759/goldy/pkg/dtlserr"
	"github.com/Marz6759/goldy/pkg/verify"
)

func TestDefault(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())
	assert.Equal(t, 5, c.MaxRetries)
	assert.Equal(t, 2*time.Second, c.ReadTimeout.Std())
	assert.Equal(t, time.Second, c.HandshakeTimeoutMin.Std())
	assert.Equal(t, time.Minute, c.HandshakeTimeoutMax.Std())
	assert.Equal(t, verify.Optional, c.Strictness())
}

func TestParse(t *testing.T) {
	c, err := Parse([]byte(`
host: 127.0.0.1
port: "4433"
auth_mode: required
read_timeout: 500ms
handshake_timeout_min: 250
max_retries: 2
`))
	require.NoError(t, err)
	require.NoError(t, c.Validate())

	assert.Equal(t, "127.0.0.1", c.Host)
	assert.Equal(t, "127.0.0.1", c.EffectiveServerName())
	assert.Equal(t, verify.Required, c.Strictness())
	assert.Equal(t, 500*time.Millisecond, c.ReadTimeout.Std())
	assert.Equal(t, 250*time.Millisecond, c.HandshakeTimeoutMin.Std())
	assert.Equal(t, time.Minute, c.HandshakeTimeoutMax.Std(), "unset fields keep defaults")
	assert.Equal(t, 2, c.MaxRetries)
}

func TestParseEmpty(t *testing.T) {
	c, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), c)
}

func TestParseErrors(t *testing.T) {
	tests := map[string]string{
		"unknown key":  "colour: blue\n",
		"bad duration": "read_timeout: soon\n",
		"not a map":    "- a\n- b\n",
		"list timeout": "read_timeout: [1]\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			require.Error(t, err)
			assert.Equal(t, dtlserr.KindConfig, dtlserr.KindOf(err))
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"port text", func(c *Config) { c.Port = "https" }},
		{"port range", func(c *Config) { c.Port = "70000" }},
		{"auth mode", func(c *Config) { c.AuthMode = "lenient" }},
		{"retries", func(c *Config) { c.MaxRetries = -1 }},
		{"read timeout", func(c *Config) { c.ReadTimeout = 0 }},
		{"handshake order", func(c *Config) { c.HandshakeTimeoutMin = Duration(2 * time.Minute) }},
		{"mtu small", func(c *Config) { c.MTU = 20 }},
		{"mtu large", func(c *Config) { c.MTU = 9000 }},
		{"log level", func(c *Config) { c.LogLevel = "loud" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.modify(&c)
			err := c.Validate()
			require.Error(t, err)
			assert.Equal(t, dtlserr.KindConfig, dtlserr.KindOf(err))
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "client.yaml")
	want := Default()
	want.Host = "example.net"
	want.Port = "5684"
	want.ServerName = "dtls.example.net"
	want.ReadTimeout = Duration(1500 * time.Millisecond)
	data, err := want.Marshal()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, "dtls.example.net", got.EffectiveServerName())

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Equal(t, dtlserr.KindConfig, dtlserr.KindOf(err))

	require.NoError(t, os.WriteFile(path, []byte("mtu: lots\n"), 0o600))
	_, err = Load(path)
	assert.Equal(t, dtlserr.KindConfig, dtlserr.KindOf(err))
	assert.Contains(t, err.Error(), path)
}
