package config

import "context"

// SecretProvider resolves secret values by key: SSM parameter paths in
// deployed environments, plain environment variables locally.
type SecretProvider interface {
	// GetParametersBatch resolves keys and returns key -> plaintext value for
	// every key found. Missing keys are omitted from the map.
	GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error)
}
