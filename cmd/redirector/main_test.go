package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"redirector"
)

func TestTokenCommand(t *testing.T) {
	t.Setenv("PANTHEON_ENVIRONMENT", "live")
	path := filepath.Join(t.TempDir(), "redirector.toml")
	require.NoError(t, os.WriteFile(path, []byte(`admin_secret = "s3cret"`), 0o644))

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"token", path, "--subject", "ci"})
	require.NoError(t, rootCmd.Execute())

	token := strings.TrimSpace(out.String())
	claims, err := redirector.NewTokenIssuer("s3cret", "live").Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "ci", claims.Subject)
	assert.Equal(t, "live", claims.Environment)

	_, err = redirector.NewTokenIssuer("s3cret", "test").Validate(token)
	assert.Error(t, err)
}

func TestTokenCommandWithoutSecret(t *testing.T) {
	path := filepath.Join(t.TempDir(), "redirector.toml")
	require.NoError(t, os.WriteFile(path, []byte(`port = "8080"`), 0o644))

	rootCmd.SetArgs([]string{"token", path})
	assert.Error(t, rootCmd.Execute())
}
