package main

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/s0t/drwebmirror/internal/config"
)

func resetGlobals() {
	cfg = config.New()
	useKeyfile = ""
}

func TestDialectValueRejectsUnknown(t *testing.T) {
	var d config.Dialect
	v := newDialectValue(config.DialectV4, &d)
	require.Error(t, v.Set("v6"))
	require.NoError(t, v.Set("v5.2"))
	assert.Equal(t, config.DialectV52, d)
	assert.Equal(t, "v5.2", v.String())
	assert.Equal(t, "dialect", v.Type())
}

func TestFlagsPopulateConfig(t *testing.T) {
	resetGlobals()
	var ran bool
	cmd := newRootCommand()
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		cfg.RemoteDir = args[0]
		ran = true
		return nil
	}
	cmd.SetArgs([]string{
		"--server", "repo.example",
		"--port", "8080",
		"--dialect", "v5.2",
		"--fast=false",
		"--userid", "1234",
		"--keyfile-md5", "abcd",
		"/tmp/mirror",
	})

	require.NoError(t, cmd.Execute())
	assert.True(t, ran)
	assert.Equal(t, "repo.example", cfg.Server)
	assert.Equal(t, uint16(8080), cfg.Port)
	assert.Equal(t, config.DialectV52, cfg.Dialect)
	assert.False(t, cfg.FastMode)
	assert.Equal(t, "1234", cfg.KeyUserID)
	assert.Equal(t, "abcd", cfg.KeyMD5)
	assert.Equal(t, "/tmp/mirror", cfg.RemoteDir)
}

func TestAndroidFlagForcesDialect(t *testing.T) {
	resetGlobals()
	cfg.UseAndroid = true
	// With no --server, runRoot returns an error right after applying
	// the Android dialect override.
	require.Error(t, runRoot())
	assert.Equal(t, config.DialectAndroid, cfg.Dialect)
}

func TestRootCommandRequiresTargetArg(t *testing.T) {
	resetGlobals()
	cmd := newRootCommand()
	cmd.RunE = func(cmd *cobra.Command, args []string) error { return nil }
	cmd.SetArgs([]string{"--server", "repo.example"})
	cmd.SilenceErrors = true
	require.Error(t, cmd.Execute())
}
