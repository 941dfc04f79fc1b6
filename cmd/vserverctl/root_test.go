package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_Subcommands(t *testing.T) {
	want := []string{
		"list", "info", "state", "start", "stop", "reset", "traffic", "rename",
		"password", "reboot", "reset-all", "transfers", "probe", "validate", "self-update",
	}

	registered := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		registered[c.Name()] = true
	}

	for _, name := range want {
		assert.True(t, registered[name], "missing subcommand %q", name)
	}
}

func TestRootCommand_PersistentFlags(t *testing.T) {
	for _, name := range []string{"config", "verbose", "quiet", "json"} {
		assert.NotNil(t, rootCmd.PersistentFlags().Lookup(name), "missing flag %q", name)
	}
	assert.Equal(t, "c", rootCmd.PersistentFlags().Lookup("config").Shorthand)
}

func TestTransfersCommand_Subcommands(t *testing.T) {
	names := []string{}
	for _, c := range transfersCmd.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"pause", "resume"}, names)
}

func TestPowerCommands_RequireNickname(t *testing.T) {
	for _, name := range []string{"start", "stop", "reset", "reboot", "info"} {
		cmd, _, err := rootCmd.Find([]string{name})
		require.NoError(t, err)
		assert.Error(t, cmd.Args(cmd, []string{}), "%s without a nickname", name)
		assert.NoError(t, cmd.Args(cmd, []string{"web1"}), "%s with a nickname", name)
	}
}

func TestNewApp_RequiresConfig(t *testing.T) {
	original := configFile
	defer func() { configFile = original }()
	configFile = ""

	_, err := newApp()

	assert.ErrorIs(t, err, errConfigRequired)
}
