package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		DiscordToken: "token",
		Whitelist: Whitelist{
			AllowedRoles:   []string{"100"},
			RequestChannel: "200",
		},
		Servers: []Server{
			{ID: "s1", Name: "Survival", ContainerID: "mc-survival", Address: "10.0.0.1", RconPort: 25575},
			{ID: "museum", Name: "Museum", CommandsDisabled: true},
		},
	}
}

func TestValidate(t *testing.T) {
	require.NoError(t, validConfig().Validate())
}

func TestValidateFailures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing token", func(c *Config) { c.DiscordToken = "" }},
		{"no servers", func(c *Config) { c.Servers = nil }},
		{"empty server id", func(c *Config) { c.Servers[0].ID = "" }},
		{"duplicate server id", func(c *Config) { c.Servers[1].ID = "s1" }},
		{"managed server without address", func(c *Config) { c.Servers[0].Address = "" }},
		{"nobody can approve", func(c *Config) {
			c.Whitelist.AllowedRoles = nil
			c.Whitelist.AllowAdmin = false
		}},
		{"missing request channel", func(c *Config) { c.Whitelist.RequestChannel = "" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := validConfig()
			tc.mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestFindServer(t *testing.T) {
	c := validConfig()
	server, ok := c.FindServer("s1")
	require.True(t, ok)
	assert.Equal(t, "Survival", server.Name)

	_, ok = c.FindServer("nope")
	assert.False(t, ok)
}
