package config

import "context"

// SecretProvider fetches the values behind NAME_SSM_PARAM pointers.
type SecretProvider interface {
	// GetParametersBatch maps each resolvable key to its plaintext. Unknown
	// keys are left out of the result rather than reported as an error.
	GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error)
}

// NewSecretProvider selects a provider by name: "ssm" (default) reads AWS
// Parameter Store in region, "env" treats each pointer as the name of another
// environment variable.
func NewSecretProvider(kind, region string) (SecretProvider, error) {
	switch kind {
	case "", "ssm":
		return NewSSMProvider(region), nil
	case "env":
		return NewEnvVarProvider(), nil
	default:
		return nil, &ConfigError{
			Type:    ErrParsing,
			Message: "unknown secret provider " + kind + " (want ssm or env)",
		}
	}
}

var (
	_ SecretProvider = (*SSMProvider)(nil)
	_ SecretProvider = (*EnvVarProvider)(nil)
)
