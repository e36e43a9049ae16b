package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "sysval", cmd.Use)
	assert.Contains(t, cmd.Long, "validation limbo")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"run", "validate", "enqueue", "limbo", "rejected", "status", "manifest"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	for _, name := range []string{"config", "db", "manifest"} {
		flag := cmd.PersistentFlags().Lookup(name)
		require.NotNil(t, flag, name)
		assert.Empty(t, flag.DefValue, "%s falls back to the config file", name)
	}
}

func TestRunCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	runCmd, _, err := cmd.Find([]string{"run"})
	require.NoError(t, err)

	pollFlag := runCmd.Flags().Lookup("poll")
	require.NotNil(t, pollFlag)
	assert.Equal(t, "5s", pollFlag.DefValue)
}

func TestLimboCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	limboCmd, _, err := cmd.Find([]string{"limbo"})
	require.NoError(t, err)

	statusFlag := limboCmd.Flags().Lookup("status")
	require.NotNil(t, statusFlag)
	assert.Equal(t, "[]", statusFlag.DefValue)
}

func TestInvalidFormat(t *testing.T) {
	res := execute(t, "--format", "xml", "limbo", "--db", t.TempDir()+"/x.db")
	require.Error(t, res.err)
	assert.Equal(t, ExitCommandError, GetExitCode(res.err))
	assert.Contains(t, res.stderr, `invalid format "xml"`)
}

func TestUnknownConfigIsCommandError(t *testing.T) {
	res := execute(t, "validate", "--config", "/nonexistent/node.toml")
	require.Error(t, res.err)
	assert.Equal(t, ExitCommandError, GetExitCode(res.err))
	assert.Contains(t, res.stdout, "Error [E_CONFIG]")
}
