package cryptoconfig

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaultsWhenUnset(t *testing.T) {
	t.Setenv("OLMCORE_DB_PATH", "")
	t.Setenv("OLMCORE_PBKDF2_ITERATIONS", "")
	t.Setenv("OLMCORE_STORE_TIMEOUT_SECONDS", "")

	cfg := Load()
	assert.Equal(t, "matrix-sdk-crypto.db", cfg.DBPath)
	assert.Equal(t, 200_000, cfg.PBKDF2Iterations)
	assert.Equal(t, 5, cfg.StoreTimeoutSecond)
}

func TestLoadReadsOverridesFromEnvironment(t *testing.T) {
	t.Setenv("OLMCORE_DB_PATH", "/tmp/custom.db")
	t.Setenv("OLMCORE_PBKDF2_ITERATIONS", "310000")
	t.Setenv("OLMCORE_STORE_TIMEOUT_SECONDS", "10")

	cfg := Load()
	assert.Equal(t, "/tmp/custom.db", cfg.DBPath)
	assert.Equal(t, 310000, cfg.PBKDF2Iterations)
	assert.Equal(t, 10, cfg.StoreTimeoutSecond)
}

func TestLoadIgnoresInvalidNumericOverrides(t *testing.T) {
	t.Setenv("OLMCORE_PBKDF2_ITERATIONS", "not-a-number")
	t.Setenv("OLMCORE_STORE_TIMEOUT_SECONDS", "-5")

	cfg := Load()
	assert.Equal(t, 200_000, cfg.PBKDF2Iterations)
	assert.Equal(t, 5, cfg.StoreTimeoutSecond)
}

func TestStaticPassphraseSourceReturnsItsValue(t *testing.T) {
	src := StaticPassphraseSource("correct-horse-battery-staple")
	got, err := src.Passphrase()
	require.NoError(t, err)
	assert.Equal(t, "correct-horse-battery-staple", got)
}
