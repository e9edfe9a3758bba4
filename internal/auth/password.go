package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// Supported digest algorithms.
const (
	AlgorithmArgon2id = "argon2id"
	AlgorithmBcrypt   = "bcrypt"
)

// Argon2Params tunes argon2id. Iterations is the time cost embedded in every digest.
type Argon2Params struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	KeyLength   uint32
	SaltLength  uint32
}

// DefaultArgon2Params matches the parameters used for stored user passwords.
var DefaultArgon2Params = Argon2Params{
	Memory:      64 * 1024,
	Iterations:  2,
	Parallelism: 1,
	KeyLength:   32,
	SaltLength:  16,
}

// Digest is the result of hashing a password.
type Digest struct {
	Encoded string
	Salt    []byte
}

// Vault hashes and verifies passwords. The zero value is not usable; use NewVault.
type Vault struct {
	algorithm  string
	argon      Argon2Params
	bcryptCost int
}

// VaultOption configures a Vault.
type VaultOption func(*Vault) error

// WithAlgorithm selects the digest algorithm used by Hash. Verify accepts both.
func WithAlgorithm(name string) VaultOption {
	return func(v *Vault) error {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "", AlgorithmArgon2id:
			v.algorithm = AlgorithmArgon2id
		case AlgorithmBcrypt:
			v.algorithm = AlgorithmBcrypt
		default:
			return fmt.Errorf("%w: unsupported password algorithm %q", ErrInvalidInput, name)
		}
		return nil
	}
}

// WithArgon2Params overrides the argon2id parameters. Zero fields keep their defaults.
func WithArgon2Params(p Argon2Params) VaultOption {
	return func(v *Vault) error {
		if p.Memory > 0 {
			v.argon.Memory = p.Memory
		}
		if p.Iterations > 0 {
			v.argon.Iterations = p.Iterations
		}
		if p.Parallelism > 0 {
			v.argon.Parallelism = p.Parallelism
		}
		if p.KeyLength > 0 {
			v.argon.KeyLength = p.KeyLength
		}
		if p.SaltLength > 0 {
			v.argon.SaltLength = p.SaltLength
		}
		return nil
	}
}

// WithBcryptCost sets the bcrypt cost used when the algorithm is bcrypt.
func WithBcryptCost(cost int) VaultOption {
	return func(v *Vault) error {
		if cost == 0 {
			return nil
		}
		if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
			return fmt.Errorf("%w: bcrypt cost %d out of range", ErrInvalidInput, cost)
		}
		v.bcryptCost = cost
		return nil
	}
}

// NewVault constructs a vault, argon2id by default.
func NewVault(opts ...VaultOption) (*Vault, error) {
	v := &Vault{
		algorithm:  AlgorithmArgon2id,
		argon:      DefaultArgon2Params,
		bcryptCost: bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		if err := opt(v); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// Algorithm reports the algorithm used by Hash.
func (v *Vault) Algorithm() string { return v.algorithm }

// Hash derives a salted digest of password.
func (v *Vault) Hash(password string) (Digest, error) {
	if len(password) == 0 {
		return Digest{}, fmt.Errorf("%w: password is empty", ErrInvalidInput)
	}
	if v.algorithm == AlgorithmBcrypt {
		return v.hashBcrypt(password)
	}
	return v.hashArgon2(password)
}

func (v *Vault) hashArgon2(password string) (Digest, error) {
	p := v.argon
	salt := make([]byte, p.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return Digest{}, fmt.Errorf("generate salt: %w", err)
	}
	key := argon2.IDKey([]byte(password), salt, p.Iterations, p.Memory, p.Parallelism, p.KeyLength)
	encoded := fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		p.Memory,
		p.Iterations,
		p.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	)
	return Digest{Encoded: encoded, Salt: salt}, nil
}

func (v *Vault) hashBcrypt(password string) (Digest, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), v.bcryptCost)
	if err != nil {
		return Digest{}, err
	}
	salt, err := bcryptSalt(string(hash))
	if err != nil {
		return Digest{}, err
	}
	return Digest{Encoded: string(hash), Salt: salt}, nil
}

// Verify reports whether password matches the encoded digest. Any malformed
// digest or algorithm error yields false.
func (v *Vault) Verify(password, encoded string) bool {
	switch {
	case strings.HasPrefix(encoded, "$argon2id$"):
		return v.verifyArgon2(password, encoded)
	case strings.HasPrefix(encoded, "$2a$"), strings.HasPrefix(encoded, "$2b$"), strings.HasPrefix(encoded, "$2y$"):
		cost, err := bcrypt.Cost([]byte(encoded))
		if err != nil || cost > v.maxBcryptCost() {
			return false
		}
		return bcrypt.CompareHashAndPassword([]byte(encoded), []byte(password)) == nil
	default:
		return false
	}
}

func (v *Vault) verifyArgon2(password, encoded string) bool {
	p, salt, key, err := decodeArgon2(encoded)
	if err != nil || !v.withinLimits(p, len(key)) {
		return false
	}
	computed := argon2.IDKey([]byte(password), salt, p.Iterations, p.Memory, p.Parallelism, uint32(len(key)))
	return subtle.ConstantTimeCompare(computed, key) == 1
}

// Digests may carry costlier parameters than the vault hashes with, up to
// limitFactor times the larger of the vault's and the default parameters.
const (
	limitFactor     = 4
	maxArgon2KeyLen = 1024
)

func (v *Vault) withinLimits(p Argon2Params, keyLen int) bool {
	ceiling := func(own, def uint32) uint32 { return limitFactor * max(own, def) }
	return p.Memory <= ceiling(v.argon.Memory, DefaultArgon2Params.Memory) &&
		p.Iterations <= ceiling(v.argon.Iterations, DefaultArgon2Params.Iterations) &&
		uint32(p.Parallelism) <= ceiling(uint32(v.argon.Parallelism), uint32(DefaultArgon2Params.Parallelism)) &&
		keyLen <= maxArgon2KeyLen
}

func (v *Vault) maxBcryptCost() int {
	return max(v.bcryptCost, bcrypt.DefaultCost) + 2
}

func decodeArgon2(encoded string) (Argon2Params, []byte, []byte, error) {
	// "", "argon2id", "v=19", "m=..,t=..,p=..", salt, key
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return Argon2Params{}, nil, nil, errors.New("malformed argon2id digest")
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return Argon2Params{}, nil, nil, err
	}
	if version != argon2.Version {
		return Argon2Params{}, nil, nil, fmt.Errorf("unsupported argon2 version %d", version)
	}
	var p Argon2Params
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.Memory, &p.Iterations, &p.Parallelism); err != nil {
		return Argon2Params{}, nil, nil, err
	}
	if p.Iterations == 0 || p.Parallelism == 0 {
		return Argon2Params{}, nil, nil, errors.New("invalid argon2 parameters")
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return Argon2Params{}, nil, nil, err
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return Argon2Params{}, nil, nil, err
	}
	if len(key) == 0 {
		return Argon2Params{}, nil, nil, errors.New("empty argon2 key")
	}
	return p, salt, key, nil
}

// bcryptSalt extracts the 22-character salt from "$2a$<cost>$<salt><hash>".
func bcryptSalt(encoded string) ([]byte, error) {
	const prefixLen, saltLen = 7, 22
	if len(encoded) < prefixLen+saltLen {
		return nil, errors.New("malformed bcrypt digest")
	}
	return []byte(encoded[prefixLen : prefixLen+saltLen]), nil
}
