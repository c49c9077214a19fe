package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"audit", "locations", "serve", "monitor"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "citation-cli", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestAuditCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range auditCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"submit", "poll", "fail", "show", "list", "export"} {
		assert.True(t, names[name], "expected audit subcommand %q not found", name)
	}
}

func TestAuditPollCommand_Flags(t *testing.T) {
	flag := auditPollCmd.Flags().Lookup("limit")
	require.NotNil(t, flag, "poll command should have --limit flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestAuditExportCommand_Flags(t *testing.T) {
	flag := auditExportCmd.Flags().Lookup("out")
	require.NotNil(t, flag)
	assert.Equal(t, "citations.xlsx", flag.DefValue)
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}
