// Shared helpers for idsync CLI commands.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/mesh-intelligence/idsync/internal/dataset"
	"github.com/mesh-intelligence/idsync/internal/secrets"
	"github.com/mesh-intelligence/idsync/internal/store"
	"github.com/mesh-intelligence/idsync/pkg/types"
)

// openStore opens the SQLite store under the configured data directory with
// every registered dataset's cache schema. The caller must defer Close.
func openStore(cfg types.Config, reg *dataset.Registry) (*store.Store, error) {
	st, err := store.Open(cfg.DataDir, reg.CacheSpecs())
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return st, nil
}

// secretProvider builds the secret chain from config: explicit file first,
// environment fallback.
func secretProvider(secretsFile string) (secrets.Provider, error) {
	if secretsFile == "" {
		secretsFile = runConfig.GetString(cfgKeySecretsFile)
	}
	chain := secrets.Chain{}
	if secretsFile != "" {
		f, err := secrets.NewFile(secretsFile)
		if err != nil {
			return nil, err
		}
		chain = append(chain, f)
	}
	chain = append(chain, secrets.Env{Prefix: runConfig.GetString(cfgKeySecretsEnvPrefix)})
	return chain, nil
}

// printJSON writes v as indented JSON to stdout.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
