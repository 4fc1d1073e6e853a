// Package otp produces the time-based one-time codes used by the login phase.
package otp

import (
	"time"

	"github.com/GoPolymarket/neogate/internal/pkg/apperrors"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const DefaultPeriod = 30 * time.Second

// Code is a single-use OTP value. It is generated per authentication attempt
// and never reused.
type Code struct {
	Value       string
	GeneratedAt time.Time
	// At is the instant the code was computed for; it differs from GeneratedAt
	// when the code was shifted by a time step to absorb clock skew.
	At time.Time
}

// Generator computes codes for a fixed period and digit count.
type Generator struct {
	Period time.Duration
	Digits otp.Digits
	Clock  func() time.Time
}

func NewGenerator(period time.Duration, digits int) *Generator {
	if period <= 0 {
		period = DefaultPeriod
	}
	d := otp.DigitsSix
	if digits == 8 {
		d = otp.DigitsEight
	}
	return &Generator{Period: period, Digits: d, Clock: time.Now}
}

// Generate returns the standard 6 digit, 30 second, SHA1 code for at.
func Generate(secret string, at time.Time) (Code, error) {
	return NewGenerator(DefaultPeriod, 6).generate(secret, at, at)
}

// At returns the code for an explicit instant.
func (g *Generator) At(secret string, at time.Time) (Code, error) {
	return g.generate(secret, at, g.now())
}

// Now returns the code for the current step.
func (g *Generator) Now(secret string) (Code, error) {
	now := g.now()
	return g.generate(secret, now, now)
}

// Skewed returns the code one step away from now, in the direction given by
// SkewDirection. Used once after the upstream rejects a code as wrong.
func (g *Generator) Skewed(secret string) (Code, error) {
	now := g.now()
	shift := time.Duration(SkewDirection(now, g.Period)) * g.Period
	return g.generate(secret, now.Add(shift), now)
}

func (g *Generator) generate(secret string, at, generatedAt time.Time) (Code, error) {
	value, err := totp.GenerateCodeCustom(secret, at, totp.ValidateOpts{
		Period:    uint(g.Period / time.Second),
		Digits:    g.Digits,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return Code{}, apperrors.New(apperrors.ErrInvalidSecret, "cannot decode shared secret", err).
			WithPhase(apperrors.PhaseOTP)
	}
	return Code{Value: value, GeneratedAt: generatedAt, At: at}, nil
}

func (g *Generator) now() time.Time {
	if g.Clock == nil {
		return time.Now()
	}
	return g.Clock()
}

// SkewDirection guesses which neighbouring step the verifier is on. In the first
// half of a step the verifier is more likely still on the previous one (-1),
// in the second half it may already be on the next (+1).
func SkewDirection(at time.Time, period time.Duration) int {
	if period <= 0 {
		period = DefaultPeriod
	}
	elapsed := time.Duration(at.UnixNano()) % period
	if elapsed < period/2 {
		return -1
	}
	return 1
}
