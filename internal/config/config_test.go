package config_test

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omochice/toy-state-sync/internal/config"
)

func TestDefaults_Valid(t *testing.T) {
	require.NoError(t, config.DefaultServer().Validate())
	require.NoError(t, config.DefaultClient().Validate())
}

func TestServer_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Server)
	}{
		{"empty address", func(c *config.Server) { c.Addr = "" }},
		{"relative path", func(c *config.Server) { c.Path = "world" }},
		{"metrics on websocket path", func(c *config.Server) { c.MetricsPath = c.Path }},
		{"relative metrics path", func(c *config.Server) { c.MetricsPath = "metrics" }},
		{"no clients", func(c *config.Server) { c.MaxClients = 0 }},
		{"too many clients", func(c *config.Server) { c.MaxClients = 70000 }},
		{"world larger than a frame", func(c *config.Server) { c.MaxClients = 3277 }},
		{"zero tick", func(c *config.Server) { c.TickInterval = 0 }},
		{"unknown level", func(c *config.Server) { c.LogLevel = "verbose" }},
		{"empty origin pattern", func(c *config.Server) { c.OriginPatterns = []string{""} }},
		{"malformed origin pattern", func(c *config.Server) { c.OriginPatterns = []string{"[a-"} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := config.DefaultServer()
			tt.mutate(&c)
			err := c.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, config.ErrInvalid), "got %v", err)
		})
	}
}

func TestServer_LargestWorldFitsFrame(t *testing.T) {
	c := config.DefaultServer()
	c.MaxClients = 3276
	assert.NoError(t, c.Validate())
}

func TestServer_MetricsDisabled(t *testing.T) {
	c := config.DefaultServer()
	c.MetricsPath = ""
	assert.NoError(t, c.Validate())
}

func TestServer_OriginPatterns(t *testing.T) {
	c := config.DefaultServer()
	c.OriginPatterns = []string{"example.com", "*.example.com:8443"}
	assert.NoError(t, c.Validate())
}

func TestClient_MetricsAddr(t *testing.T) {
	c := config.DefaultClient()
	c.MetricsAddr = ":9100"
	assert.NoError(t, c.Validate())
}

func TestClient_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Client)
	}{
		{"http scheme", func(c *config.Client) { c.URL = "http://localhost:8080" }},
		{"no host", func(c *config.Client) { c.URL = "ws:///world" }},
		{"zero tick", func(c *config.Client) { c.TickInterval = 0 }},
		{"negative dial timeout", func(c *config.Client) { c.DialTimeout = -time.Second }},
		{"negative duration", func(c *config.Client) { c.Duration = -time.Second }},
		{"zero capacity", func(c *config.Client) { c.Capacity = 0 }},
		{"radius out of range", func(c *config.Client) { c.Radius = 40000 }},
		{"unknown level", func(c *config.Client) { c.LogLevel = "" }},
		{"metrics address without port", func(c *config.Client) { c.MetricsAddr = "localhost" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := config.DefaultClient()
			tt.mutate(&c)
			err := c.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, config.ErrInvalid), "got %v", err)
		})
	}
}

func TestClient_AcceptsTCP(t *testing.T) {
	c := config.DefaultClient()
	c.URL = "tcp://127.0.0.1:8080"
	assert.NoError(t, c.Validate())
}
