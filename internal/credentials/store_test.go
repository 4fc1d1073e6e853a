package credentials

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/GoPolymarket/neogate/internal/pkg/apperrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleFile = `# neo credentials
KOTAK_CONSUMER_KEY="consumer-abc"
KOTAK_MOBILE_NUMBER=9876543210
KOTAK_UCC='UCC01'
  KOTAK_MPIN = 123456
KOTAK_TOTP_SECRET=JBSWY3DPEHPK3PXP
# KOTAK_NEO_FIN_KEY=commented
`

func TestParseStripsQuotesAndComments(t *testing.T) {
	values, err := Parse(strings.NewReader(sampleFile))
	require.NoError(t, err)

	assert.Equal(t, "consumer-abc", values[KeyIdentity])
	assert.Equal(t, "UCC01", values[KeyAccountID])
	assert.Equal(t, "123456", values[KeyPIN])
	assert.NotContains(t, values, KeyRoutingKey)
	assert.Len(t, values, 5)
}

func TestParseRejectsMalformedLine(t *testing.T) {
	_, err := Parse(strings.NewReader("KOTAK_UCC=UCC01\nnot a pair\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a pair")
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "b.txt")
	require.NoError(t, os.WriteFile(path, []byte("KOTAK_UCC UCC01\n"), 0o600))

	_, err := Load(path, nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrValidation))
	assert.Contains(t, err.Error(), "failed to read credentials file")
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "b.txt")
	require.NoError(t, os.WriteFile(path, []byte(sampleFile), 0o600))

	creds, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, "+919876543210", creds.MobileNumber)
	assert.Equal(t, DefaultRoutingKey, creds.RoutingKey)
	assert.Equal(t, "JBSWY3DPEHPK3PXP", creds.SharedSecret)
}

func TestLoadMissingKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "b.txt")
	require.NoError(t, os.WriteFile(path, []byte("KOTAK_CONSUMER_KEY=x\n"), 0o600))

	_, err := Load(path, nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrValidation))
	assert.Contains(t, err.Error(), KeyPIN)
	assert.Contains(t, err.Error(), "credentials:")
}

func TestLoadEnvFallback(t *testing.T) {
	env := map[string]string{
		KeyIdentity:   "env-key",
		KeyMobile:     "+15550001111",
		KeyAccountID:  "UCC02",
		KeyPIN:        "0000",
		KeySecret:     "JBSWY3DPEHPK3PXP",
		KeyRoutingKey: "uat",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	creds, err := Load(filepath.Join(t.TempDir(), "absent.txt"), lookup)
	require.NoError(t, err)
	assert.Equal(t, "env-key", creds.IdentityKey)
	assert.Equal(t, "+15550001111", creds.MobileNumber)
	assert.Equal(t, "uat", creds.RoutingKey)
}

func TestLoadFilePrecedesEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "b.txt")
	require.NoError(t, os.WriteFile(path, []byte(sampleFile), 0o600))

	creds, err := Load(path, func(k string) (string, bool) { return "from-env", true })
	require.NoError(t, err)
	assert.Equal(t, "consumer-abc", creds.IdentityKey)
	assert.Equal(t, "from-env", creds.RoutingKey)
}

func TestNormalizeMobile(t *testing.T) {
	assert.Equal(t, "+919876543210", NormalizeMobile("9876543210"))
	assert.Equal(t, "+919876543210", NormalizeMobile("+919876543210"))
	assert.Equal(t, "98765", NormalizeMobile("98765"))
	assert.Equal(t, "98765abcde", NormalizeMobile("98765abcde"))
}

func TestCredentialsNeverPrintSecrets(t *testing.T) {
	creds, err := FromMap(map[string]string{
		KeyIdentity:  "consumer-abc",
		KeyMobile:    "9876543210",
		KeyAccountID: "UCC01",
		KeyPIN:       "654321",
		KeySecret:    "JBSWY3DPEHPK3PXP",
	})
	require.NoError(t, err)

	s := creds.String()
	assert.NotContains(t, s, "654321")
	assert.NotContains(t, s, "JBSWY3DPEHPK3PXP")
	assert.NotContains(t, s, "consumer-abc")
}
