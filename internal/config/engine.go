package config

import (
	"go.uber.org/zap"

	"appcatalog.org/internal/auth"
)

// EngineOptions translates the configuration into engine options.
func (c *Config) EngineOptions(logger *zap.Logger) ([]auth.Option, error) {
	vault, err := auth.NewVault(
		auth.WithAlgorithm(c.Password.Algorithm),
		auth.WithArgon2Params(auth.Argon2Params{
			Memory:      c.Password.Memory,
			Iterations:  c.Password.Iterations,
			Parallelism: c.Password.Parallelism,
		}),
		auth.WithBcryptCost(c.Password.BcryptCost),
	)
	if err != nil {
		return nil, err
	}
	opts := []auth.Option{
		auth.WithVault(vault),
		auth.WithLogger(logger),
		auth.WithSessionTTL(c.Session.TTL),
		auth.WithLoginRate(c.Login.RatePerSecond, c.Login.Burst),
		auth.WithClosureCache(c.Cache.Size, c.Cache.TTL),
	}
	if c.Token.Secret != "" {
		opts = append(opts, auth.WithBearerSecret(c.Token.Secret, c.Token.Issuer))
	}
	return opts, nil
}

// Seed returns the bootstrap identity.
func (c *Config) Seed() auth.Seed {
	return auth.Seed{
		UserID:      c.Bootstrap.UserID,
		Name:        c.Bootstrap.Name,
		Description: c.Bootstrap.Description,
		Username:    c.Bootstrap.Username,
		Password:    c.Bootstrap.Password,
	}
}
