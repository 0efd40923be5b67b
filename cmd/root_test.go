package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	cmds := rootCmd.Commands()

	names := make(map[string]bool)
	for _, c := range cmds {
		names[c.Name()] = true
	}

	expected := []string{"migrate", "import", "process", "stats", "quarantine", "enrich", "work", "serve"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "prospect-pipeline", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestImportCommand_Flags(t *testing.T) {
	for _, name := range []string{"file", "source", "sheet", "delimiter", "chunk-size"} {
		assert.NotNil(t, importCmd.Flags().Lookup(name), "import should have --%s flag", name)
	}
	chunk := importCmd.Flags().Lookup("chunk-size")
	require.NotNil(t, chunk)
	assert.Equal(t, "1000", chunk.DefValue)
}

func TestProcessCommand_Flags(t *testing.T) {
	flag := processCmd.Flags().Lookup("batch-size")
	require.NotNil(t, flag, "process command should have --batch-size flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestQuarantineCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range quarantineCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"list", "review", "reprocess"} {
		assert.True(t, names[name], "quarantine should have subcommand %q", name)
	}
}

func TestQuarantineListCommand_Flags(t *testing.T) {
	flag := quarantineListCmd.Flags().Lookup("limit")
	require.NotNil(t, flag)
	assert.Equal(t, "50", flag.DefValue)
	assert.NotNil(t, quarantineListCmd.Flags().Lookup("status"))
	assert.NotNil(t, quarantineListCmd.Flags().Lookup("source"))
}

func TestQuarantineReviewCommand_RequiresOneArg(t *testing.T) {
	assert.Error(t, quarantineReviewCmd.Args(quarantineReviewCmd, nil))
	assert.NoError(t, quarantineReviewCmd.Args(quarantineReviewCmd, []string{"q-1"}))
	assert.NotNil(t, quarantineReviewCmd.Flags().Lookup("status"))
	assert.NotNil(t, quarantineReviewCmd.Flags().Lookup("note"))
	assert.NotNil(t, quarantineReviewCmd.Flags().Lookup("raw-data"))
}

func TestEnrichCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range enrichCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"run", "batch", "health"} {
		assert.True(t, names[name], "enrich should have subcommand %q", name)
	}
}

func TestEnrichBatchCommand_Args(t *testing.T) {
	assert.Error(t, enrichBatchCmd.Args(enrichBatchCmd, nil))
	assert.NoError(t, enrichBatchCmd.Args(enrichBatchCmd, []string{"p-1", "p-2"}))

	flag := enrichBatchCmd.Flags().Lookup("force")
	require.NotNil(t, flag)
	assert.Equal(t, "false", flag.DefValue)
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
	assert.NotNil(t, serveCmd.Flags().Lookup("with-workers"))
}
