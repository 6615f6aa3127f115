package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"estatehub.org/internal/auth"
	"estatehub.org/internal/community"
)

func TestRunUsesSecretFromConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "estatehub.yaml")
	require.NoError(t, os.WriteFile(path, []byte("auth_secret: file-secret\nauth_issuer: acacia\n"), 0o600))
	t.Setenv("HOA_CONFIG", path)
	t.Setenv("HOA_AUTH_SECRET", "")
	t.Setenv("HOA_AUTH_ISSUER", "")

	var stdout, stderr bytes.Buffer
	require.NoError(t, run([]string{"-user", "off-1", "-role", "admin_officer", "-tenant", "tenant-a"}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "expires ")

	tokens, err := auth.NewTokens("file-secret", auth.WithIssuer("acacia"))
	require.NoError(t, err)
	p, err := tokens.Parse(strings.TrimSpace(stdout.String()))
	require.NoError(t, err)
	assert.Equal(t, auth.Principal{UserID: "off-1", Role: community.RoleAdminOfficer, TenantID: "tenant-a"}, p)
}

func TestRunFlagOverridesConfig(t *testing.T) {
	t.Setenv("HOA_CONFIG", "")
	t.Setenv("HOA_AUTH_SECRET", "env-secret")
	t.Setenv("HOA_AUTH_ISSUER", "")

	var stdout, stderr bytes.Buffer
	require.NoError(t, run([]string{"-user", "root", "-role", "superadmin", "-secret", "flag-secret"}, &stdout, &stderr))

	tokens, err := auth.NewTokens("flag-secret")
	require.NoError(t, err)
	_, err = tokens.Parse(strings.TrimSpace(stdout.String()))
	require.NoError(t, err)
}

func TestRunRejectsUnknownRole(t *testing.T) {
	t.Setenv("HOA_CONFIG", "")
	t.Setenv("HOA_AUTH_SECRET", "s3cret")

	var stdout, stderr bytes.Buffer
	err := run([]string{"-user", "u", "-role", "janitor"}, &stdout, &stderr)
	assert.ErrorContains(t, err, "unknown role")
	assert.Empty(t, stdout.String())
}
