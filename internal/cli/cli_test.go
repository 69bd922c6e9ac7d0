package cli

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/pysugar/gmail-agent-nexus/internal/auth/token"
	"github.com/pysugar/gmail-agent-nexus/internal/db/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintAccounts(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	email := "alice@example.com"
	refresh := "rt"
	later := now.Add(30 * time.Minute)
	past := now.Add(-time.Minute)

	var buf bytes.Buffer
	err := printAccounts(&buf, []models.AccountToken{
		{ID: "a1", Email: &email, RefreshToken: &refresh, ExpiresAt: &later, UpdatedAt: now},
		{ID: "a2", ExpiresAt: &past, UpdatedAt: now},
		{ID: "a3", UpdatedAt: now},
	}, now)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "EMAIL")
	assert.Contains(t, out, "alice@example.com")
	assert.Contains(t, out, "30m0s")
	assert.Contains(t, out, "stale")
	assert.Contains(t, out, "never")
	assert.NotContains(t, out, "rt ")
}

func TestPrintAccounts_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printAccounts(&buf, nil, time.Now()))
	assert.Equal(t, "No accounts connected.\n", buf.String())
}

func TestPrintRefreshResults(t *testing.T) {
	var buf bytes.Buffer
	err := printRefreshResults(&buf, []token.RefreshResult{
		{Account: models.AccountToken{ID: "a1"}, Refreshed: true},
		{Account: models.AccountToken{ID: "a2"}},
		{Account: models.AccountToken{ID: "a3"}, Err: errors.New("boom")},
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "refreshed")
	assert.Contains(t, out, "fresh")
	assert.Contains(t, out, "error: boom")
}

func TestConfigCommandMasksSecrets(t *testing.T) {
	t.Setenv("GOOGLE_CLIENT_SECRET", "super-secret")
	t.Setenv("DATABASE_URL", "sqlite:///"+filepath.Join(t.TempDir(), "cli.db"))

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetArgs([]string{"config"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	require.NoError(t, Execute())
	assert.Contains(t, buf.String(), "client_secret:")
	assert.Contains(t, buf.String(), "********")
	assert.NotContains(t, buf.String(), "super-secret")
}

func TestAccountsCommand(t *testing.T) {
	t.Setenv("DATABASE_URL", "sqlite:///"+filepath.Join(t.TempDir(), "cli.db"))

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetArgs([]string{"accounts"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	require.NoError(t, Execute())
	assert.Contains(t, buf.String(), "No accounts connected.")
}
