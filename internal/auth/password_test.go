package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestVaultArgon2RoundTrip(t *testing.T) {
	v := testVault(t)
	d, err := v.Hash("correct horse")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(d.Encoded, "$argon2id$v=19$m=1024,t=1,p=1$"), "unexpected encoding %q", d.Encoded)
	require.NotContains(t, d.Encoded, "correct horse")
	require.Len(t, d.Salt, int(DefaultArgon2Params.SaltLength))

	require.True(t, v.Verify("correct horse", d.Encoded))
	require.False(t, v.Verify("wrong horse", d.Encoded))
}

func TestVaultSaltsDiffer(t *testing.T) {
	v := testVault(t)
	a, err := v.Hash("same")
	require.NoError(t, err)
	b, err := v.Hash("same")
	require.NoError(t, err)
	require.NotEqual(t, a.Encoded, b.Encoded)
}

func TestVaultVerifyUsesEmbeddedParameters(t *testing.T) {
	strong, err := NewVault(WithArgon2Params(Argon2Params{Memory: 2048, Iterations: 3}))
	require.NoError(t, err)
	d, err := strong.Hash("pw")
	require.NoError(t, err)
	require.Contains(t, d.Encoded, "m=2048,t=3,p=1")

	// A vault configured differently still verifies using the digest's parameters.
	require.True(t, testVault(t).Verify("pw", d.Encoded))
}

func TestVaultBcrypt(t *testing.T) {
	v, err := NewVault(WithAlgorithm(AlgorithmBcrypt), WithBcryptCost(bcrypt.MinCost))
	require.NoError(t, err)
	d, err := v.Hash("pw")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(d.Encoded, "$2a$04$"), "unexpected bcrypt encoding %q", d.Encoded)
	require.Len(t, d.Salt, 22)

	require.True(t, v.Verify("pw", d.Encoded))
	require.False(t, v.Verify("nope", d.Encoded))
	// Argon vaults verify bcrypt digests too.
	require.True(t, testVault(t).Verify("pw", d.Encoded))
}

func TestVaultFailsClosed(t *testing.T) {
	v := testVault(t)
	for _, encoded := range []string{
		"",
		"plaintext",
		"$argon2id$",
		"$argon2id$v=19$m=1024,t=1,p=1$!!!$!!!",
		"$argon2id$v=18$m=1024,t=1,p=1$c2FsdA$a2V5",
		"$argon2id$v=19$m=1024,t=0,p=1$c2FsdA$a2V5",
		"$2a$04$short",
	} {
		require.False(t, v.Verify("pw", encoded), "Verify(%q)", encoded)
	}
}

func TestVaultRejectsOversizedParameters(t *testing.T) {
	v := testVault(t)
	// Well-formed digests whose cost would exhaust memory or CPU are refused
	// before any key derivation.
	for _, encoded := range []string{
		"$argon2id$v=19$m=4294967295,t=1,p=1$c2FsdHNhbHRzYWx0$a2V5a2V5a2V5a2V5",
		"$argon2id$v=19$m=1024,t=4294967295,p=1$c2FsdHNhbHRzYWx0$a2V5a2V5a2V5a2V5",
		"$argon2id$v=19$m=1024,t=1,p=255$c2FsdHNhbHRzYWx0$a2V5a2V5a2V5a2V5",
		"$argon2id$v=19$m=1024,t=1,p=1$c2FsdHNhbHRzYWx0$" + strings.Repeat("A", 2000),
		"$2a$31$abcdefghijklmnopqrstuu5Qb0yEdX8bY6iy1nZkEJkPLzTjLj9qS",
	} {
		require.False(t, v.Verify("pw", encoded), "Verify(%q)", encoded)
	}
}

func TestVaultRejectsEmptyPassword(t *testing.T) {
	_, err := testVault(t).Hash("")
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestVaultOptionsValidate(t *testing.T) {
	_, err := NewVault(WithAlgorithm("md5"))
	require.ErrorIs(t, err, ErrInvalidInput)
	_, err = NewVault(WithBcryptCost(99))
	require.ErrorIs(t, err, ErrInvalidInput)
}
