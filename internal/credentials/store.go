// Package credentials loads account secrets from a flat key=value file.
//
// The file uses dotenv syntax: one entry per line, '#' starts a comment and
// surrounding quotes on values are stripped. A line that is not a key=value
// pair is an error. Keys missing from the file can fall back to the process
// environment.
package credentials

import (
	"io"
	"os"
	"strings"

	"github.com/GoPolymarket/neogate/internal/model"
	"github.com/GoPolymarket/neogate/internal/pkg/apperrors"
	"github.com/subosito/gotenv"
)

const (
	KeyIdentity   = "KOTAK_CONSUMER_KEY"
	KeyMobile     = "KOTAK_MOBILE_NUMBER"
	KeyAccountID  = "KOTAK_UCC"
	KeyPIN        = "KOTAK_MPIN"
	KeySecret     = "KOTAK_TOTP_SECRET"
	KeyRoutingKey = "KOTAK_NEO_FIN_KEY"

	DefaultRoutingKey  = "neotradeapi"
	DefaultCountryCode = "+91"
)

var requiredKeys = []string{KeyIdentity, KeyMobile, KeyAccountID, KeyPIN, KeySecret}

// Store supplies credentials to the core.
type Store interface {
	Credentials() (model.Credentials, error)
}

// FileStore reads credentials from Path on every call. LookupEnv, when set,
// fills keys the file does not define.
type FileStore struct {
	Path      string
	LookupEnv func(string) (string, bool)
}

func NewFileStore(path string, envFallback bool) *FileStore {
	s := &FileStore{Path: path}
	if envFallback {
		s.LookupEnv = os.LookupEnv
	}
	return s
}

func (s *FileStore) Credentials() (model.Credentials, error) {
	return Load(s.Path, s.LookupEnv)
}

// Load reads path and builds Credentials. A missing file is only an error when
// lookupEnv cannot supply the required keys either.
func Load(path string, lookupEnv func(string) (string, bool)) (model.Credentials, error) {
	values := map[string]string{}
	f, err := os.Open(path)
	switch {
	case err == nil:
		defer f.Close()
		values, err = Parse(f)
		if err != nil {
			return model.Credentials{}, apperrors.New(apperrors.ErrValidation, "failed to read credentials file", err).
				WithPhase(apperrors.PhaseCredentials)
		}
	case os.IsNotExist(err) && lookupEnv != nil:
	default:
		return model.Credentials{}, apperrors.New(apperrors.ErrValidation, "failed to open credentials file", err).
			WithPhase(apperrors.PhaseCredentials)
	}

	if lookupEnv != nil {
		for _, key := range append(requiredKeys, KeyRoutingKey) {
			if values[key] != "" {
				continue
			}
			if v, ok := lookupEnv(key); ok && v != "" {
				values[key] = v
			}
		}
	}
	return FromMap(values)
}

// Parse reads dotenv-style key=value lines. Keys keep their case.
func Parse(r io.Reader) (map[string]string, error) {
	env, err := gotenv.StrictParse(r)
	if err != nil {
		return nil, err
	}
	return env, nil
}

// FromMap validates the required keys and applies defaults.
func FromMap(values map[string]string) (model.Credentials, error) {
	var missing []string
	for _, key := range requiredKeys {
		if values[key] == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return model.Credentials{}, apperrors.Newf(apperrors.ErrValidation,
			"missing required credentials: %s", strings.Join(missing, ", ")).
			WithPhase(apperrors.PhaseCredentials)
	}

	routing := values[KeyRoutingKey]
	if routing == "" {
		routing = DefaultRoutingKey
	}
	return model.Credentials{
		IdentityKey:  values[KeyIdentity],
		MobileNumber: NormalizeMobile(values[KeyMobile]),
		AccountID:    values[KeyAccountID],
		PIN:          values[KeyPIN],
		SharedSecret: values[KeySecret],
		RoutingKey:   routing,
	}, nil
}

// NormalizeMobile prefixes a bare 10-digit number with the country code.
func NormalizeMobile(mobile string) string {
	mobile = strings.TrimSpace(mobile)
	if len(mobile) == 10 && isDigits(mobile) {
		return DefaultCountryCode + mobile
	}
	return mobile
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

// Static is a Store over fixed credentials, for tests and embedding.
type Static model.Credentials

func (s Static) Credentials() (model.Credentials, error) {
	return model.Credentials(s), nil
}
