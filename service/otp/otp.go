// Package otp issues and verifies the one-time codes used for login and
// account recovery. Delivery goes through a Mailer collaborator; this
// package only owns generation, storage and single-use verification.
package otp

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/charmbracelet/log"

	"github.com/raagfm/raag/db"
)

// Expiry is how long a code stays valid.
const Expiry = 10 * time.Minute

// Mailer delivers a message to an address. Implementations live outside the
// core (SMTP, a provider API); tests use a recording fake.
type Mailer interface {
	Send(to, subject, body string) error
}

// Clock is the slice of the time service this package needs.
type Clock interface {
	Now() time.Time
}

// Service manages pending one-time codes.
type Service struct {
	db     *db.DB
	mailer Mailer
	clock  Clock
	logger *log.Logger
}

// New creates an OTP service.
func New(database *db.DB, mailer Mailer, clock Clock, logger *log.Logger) *Service {
	return &Service{db: database, mailer: mailer, clock: clock, logger: logger}
}

// Generate returns a 6-digit numeric code.
func Generate() (string, error) {
	code := make([]byte, 6)
	for i := range code {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", fmt.Errorf("generating otp: %w", err)
		}
		code[i] = '0' + byte(n.Int64())
	}
	return string(code), nil
}

// Issue generates a code for (email, purpose), stores it in place of any
// earlier outstanding code for the pair, and mails it. The code is
// returned for tests; handlers must not echo it.
func (s *Service) Issue(email, purpose string) (string, error) {
	code, err := Generate()
	if err != nil {
		return "", err
	}

	now := s.clock.Now()
	if err := s.db.StoreOTP(email, code, purpose, now, now.Add(Expiry)); err != nil {
		return "", fmt.Errorf("storing otp: %w", err)
	}

	subject := "Your verification code"
	body := fmt.Sprintf("Your code is %s. It expires in 10 minutes.", code)
	if err := s.mailer.Send(email, subject, body); err != nil {
		if s.logger != nil {
			s.logger.Error("otp delivery failed", "email", email, "err", err)
		}
		return "", fmt.Errorf("sending otp: %w", err)
	}

	return code, nil
}

// Verify checks a submitted code. A correct code is consumed: verifying the
// same code twice fails the second time.
func (s *Service) Verify(email, code, purpose string) (bool, error) {
	return s.db.VerifyOTP(email, code, purpose, s.clock.Now())
}
