package config

import (
	"os"

	"github.com/go-faster/errors"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/vitos/quicky/internal/domain"
)

type mainnetKeys struct {
	APIKey    string `envconfig:"BYBIT_API_KEY"`
	APISecret string `envconfig:"BYBIT_API_SECRET"`
}

type testnetKeys struct {
	APIKey    string `envconfig:"BYBIT_TESTNET_API_KEY"`
	APISecret string `envconfig:"BYBIT_TESTNET_API_SECRET"`
}

// LoadDotEnv loads variables from .env files without overriding the
// environment. Missing files are not an error.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return errors.Wrapf(err, "load %s", p)
		}
	}
	return nil
}

// ResolveCredentials reads the key pair for mode and nothing else.
func ResolveCredentials(mode domain.NetworkMode) (domain.Credentials, error) {
	var (
		key, secret       string
		keyVar, secretVar string
	)

	switch mode {
	case domain.Testnet:
		var k testnetKeys
		if err := envconfig.Process("", &k); err != nil {
			return domain.Credentials{}, errors.Wrap(err, "process testnet env")
		}
		key, secret = k.APIKey, k.APISecret
		keyVar, secretVar = "BYBIT_TESTNET_API_KEY", "BYBIT_TESTNET_API_SECRET"
	default:
		var k mainnetKeys
		if err := envconfig.Process("", &k); err != nil {
			return domain.Credentials{}, errors.Wrap(err, "process mainnet env")
		}
		key, secret = k.APIKey, k.APISecret
		keyVar, secretVar = "BYBIT_API_KEY", "BYBIT_API_SECRET"
	}

	if key == "" {
		return domain.Credentials{}, &domain.MissingCredentialsError{Mode: mode, Variable: keyVar}
	}
	if secret == "" {
		return domain.Credentials{}, &domain.MissingCredentialsError{Mode: mode, Variable: secretVar}
	}
	return domain.Credentials{Mode: mode, APIKey: key, APISecret: secret}, nil
}

// ResolveEnvironment pairs the credentials of mode with the endpoints of the same mode.
func ResolveEnvironment(mode domain.NetworkMode, cfg *Config) (domain.Environment, error) {
	creds, err := ResolveCredentials(mode)
	if err != nil {
		return domain.Environment{}, err
	}
	ep := cfg.EndpointFor(mode)
	return domain.Environment{
		Mode:         mode,
		Credentials:  creds,
		RESTEndpoint: ep.REST,
		WSEndpoint:   ep.WS,
	}, nil
}
