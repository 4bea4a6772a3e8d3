package cli

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// runCLI executes the root command in-process. Cobra keeps flag values
// between runs, so every call passes the flags it depends on.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

func setupCLI(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("ECON_HOME", dir)
	t.Setenv("ECON_STORAGE_DRIVER", "json")
	t.Setenv("ECON_STORAGE_PATH", filepath.Join(dir, "econ.json"))
	t.Setenv("ECON_LOG_LEVEL", "error")

	cfg := filepath.Join(dir, "config.toml")
	out, err := runCLI(t, "config", "init", cfg, "--force")
	require.NoError(t, err, out)
	require.Contains(t, out, "Wrote default config")
	return cfg
}

func TestConfigInit_RefusesOverwrite(t *testing.T) {
	cfg := setupCLI(t)
	_, err := runCLI(t, "config", "init", cfg, "--force=false")
	require.ErrorContains(t, err, "already exists")
}

func TestConfig_Formats(t *testing.T) {
	cfg := setupCLI(t)

	out, err := runCLI(t, "-c", cfg, "config", "--format", "toml")
	require.NoError(t, err)
	require.Contains(t, out, "[economy]")
	require.Contains(t, out, `driver = "json"`, "env override shows in effective config")

	out, err = runCLI(t, "-c", cfg, "config", "--format", "yaml")
	require.NoError(t, err)
	require.Contains(t, out, "work_cooldown: 60m")

	_, err = runCLI(t, "-c", cfg, "config", "--format", "ini")
	require.ErrorContains(t, err, "unknown format")
}

func TestExecAccountLeaderboard(t *testing.T) {
	cfg := setupCLI(t)

	out, err := runCLI(t, "-c", cfg, "exec", "alice", "deposit", "400", "--json=false", "--request-id=")
	require.NoError(t, err, out)
	require.Contains(t, out, "✅ deposit")

	out, err = runCLI(t, "-c", cfg, "exec", "alice", "transfer", "bob", "100", "--json", "--request-id=cli-1")
	require.NoError(t, err, out)
	require.Contains(t, out, `"success": true`)

	_, err = runCLI(t, "-c", cfg, "exec", "alice", "withdraw", "5000", "--json=false", "--request-id=")
	require.ErrorContains(t, err, "insufficient_funds")

	out, err = runCLI(t, "-c", cfg, "account", "alice", "--history", "5")
	require.NoError(t, err, out)
	require.Contains(t, out, "Bank:    💰 400")
	require.Contains(t, out, "Wallet:  💰 500")
	require.Contains(t, out, "transfer_out")

	_, err = runCLI(t, "-c", cfg, "account", "nobody", "--history", "5")
	require.ErrorContains(t, err, "no account")

	out, err = runCLI(t, "-c", cfg, "leaderboard", "--top", "2")
	require.NoError(t, err, out)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	require.Contains(t, lines[1], "bob")
	require.Contains(t, lines[2], "alice")
}
