// Package cryptoconfig is the ambient configuration layer: loading a local
// .env file for database path and KDF parameters, and resolving the store's
// optional pickle passphrase from a pluggable source (plain or Vault-backed).
package cryptoconfig

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds the settings read at process startup that the rest of this
// module needs to open its store.
type Config struct {
	DBPath             string
	PBKDF2Iterations   int
	StoreTimeoutSecond int
}

// loadEnvFiles loads environment files in cascading order: base,
// environment-specific, then local overrides.
func loadEnvFiles() {
	_ = godotenv.Load()
	if env := os.Getenv("OLMCORE_ENV"); env != "" {
		_ = godotenv.Load(".env." + env)
	}
	_ = godotenv.Load(".env.local")
}

// Load reads OLMCORE_DB_PATH, OLMCORE_PBKDF2_ITERATIONS and
// OLMCORE_STORE_TIMEOUT_SECONDS from the environment (via .env files, if
// present), applying sane defaults for anything unset.
func Load() Config {
	loadEnvFiles()

	cfg := Config{
		DBPath:             "matrix-sdk-crypto.db",
		PBKDF2Iterations:   200_000,
		StoreTimeoutSecond: 5,
	}

	if v := os.Getenv("OLMCORE_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("OLMCORE_PBKDF2_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.PBKDF2Iterations = n
		} else {
			log.Printf("cryptoconfig: ignoring invalid OLMCORE_PBKDF2_ITERATIONS=%q", v)
		}
	}
	if v := os.Getenv("OLMCORE_STORE_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.StoreTimeoutSecond = n
		} else {
			log.Printf("cryptoconfig: ignoring invalid OLMCORE_STORE_TIMEOUT_SECONDS=%q", v)
		}
	}
	return cfg
}
