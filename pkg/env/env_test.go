package env

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetStringSlice(t *testing.T) {
	t.Setenv("BLOCKLIST", " spam, ,offensive ,")

	assert.Equal(t, []string{"spam", "offensive"}, GetStringSlice("BLOCKLIST", nil))
	assert.Equal(t, []string{"x"}, GetStringSlice("UNSET_BLOCKLIST", []string{"x"}))
}

func TestGetStringFromFilePrefersSecretFile(t *testing.T) {
	dir := t.TempDir()
	secret := filepath.Join(dir, "jwt")
	require.NoError(t, os.WriteFile(secret, []byte("from-file\n"), 0o600))

	t.Setenv("JWT_SECRET", "from-env")
	t.Setenv("JWT_SECRET_FILE", secret)

	assert.Equal(t, "from-file", GetStringFromFile("JWT_SECRET", ""))
}

func TestGetStringFromFileFallsBackToEnv(t *testing.T) {
	t.Setenv("JWT_SECRET", "from-env")
	t.Setenv("JWT_SECRET_FILE", "/does/not/exist")

	assert.Equal(t, "from-env", GetStringFromFile("JWT_SECRET", ""))
}

func TestTypedGettersFallBackOnGarbage(t *testing.T) {
	t.Setenv("N", "abc")
	t.Setenv("B", "maybe")
	t.Setenv("D", "soon")
	t.Setenv("F", "1.5")

	assert.Equal(t, 7, GetInt("N", 7))
	assert.True(t, GetBool("B", true))
	assert.Equal(t, time.Second, GetDuration("D", time.Second))
	assert.Equal(t, 1.5, GetFloat("F", 0))
}
