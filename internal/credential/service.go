package credential

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/clearancehq/tiergate/internal/observability"
	"github.com/clearancehq/tiergate/internal/tier"
)

// DefaultValidity is the validity window applied when none is configured.
const DefaultValidity = 90 * 24 * time.Hour

const (
	claimEmail = "email"
	claimName  = "name"
	claimRole  = "role"
	claimTier  = "tier"
)

// Service issues and verifies HS256-signed credentials.
type Service struct {
	secret   []byte
	validity time.Duration
	now      func() time.Time
	logger   observability.Logger
	metrics  *Metrics
}

// ServiceOption is a functional option for the Service.
type ServiceOption func(*Service)

// WithValidity sets the credential validity window.
func WithValidity(d time.Duration) ServiceOption {
	return func(s *Service) {
		if d > 0 {
			s.validity = d
		}
	}
}

// WithServiceLogger sets the logger for the service.
func WithServiceLogger(logger observability.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithServiceMetrics sets the metrics for the service.
func WithServiceMetrics(metrics *Metrics) ServiceOption {
	return func(s *Service) {
		s.metrics = metrics
	}
}

// WithClock overrides the time source. Tests only.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService creates a credential service signing with the given secret.
func NewService(secret []byte, opts ...ServiceOption) (*Service, error) {
	if len(secret) == 0 {
		return nil, ErrNoSigningSecret
	}

	s := &Service{
		secret:   secret,
		validity: DefaultValidity,
		now:      time.Now,
		logger:   observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.metrics == nil {
		s.metrics = GetSharedMetrics()
	}

	return s, nil
}

// Issue creates a signed credential for the principal. The validity window
// is fixed at issue time; refreshing is re-issuing.
func (s *Service) Issue(ctx context.Context, p *Principal) (string, error) {
	if p == nil || p.ID == "" {
		s.metrics.recordIssue("error")
		return "", fmt.Errorf("issue: principal is required")
	}

	now := s.now().Truncate(time.Second)
	tok, err := jwt.NewBuilder().
		JwtID(uuid.NewString()).
		Subject(p.ID).
		IssuedAt(now).
		Expiration(now.Add(s.validity)).
		Claim(claimEmail, p.Email).
		Claim(claimName, p.Name).
		Claim(claimRole, p.Role).
		Claim(claimTier, string(p.Tier)).
		Build()
	if err != nil {
		s.metrics.recordIssue("error")
		return "", fmt.Errorf("issue: build claims: %w", err)
	}

	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, s.secret))
	if err != nil {
		s.metrics.recordIssue("error")
		return "", fmt.Errorf("issue: sign: %w", err)
	}

	s.logger.Debug("credential issued",
		observability.String("principal_id", p.ID),
		observability.Time("expires_at", now.Add(s.validity)))
	s.metrics.recordIssue("success")
	return string(signed), nil
}

// Verify checks the credential's signature and validity window and returns
// its claims. Tampered or malformed tokens return ErrInvalidCredential,
// expired tokens ErrExpiredCredential.
func (s *Service) Verify(ctx context.Context, token string) (*Claims, error) {
	tok, err := jwt.Parse([]byte(token),
		jwt.WithKey(jwa.HS256, s.secret),
		jwt.WithValidate(true),
		jwt.WithClock(jwt.ClockFunc(s.now)),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired()) {
			s.metrics.recordVerify("expired")
			return nil, ErrExpiredCredential
		}
		s.metrics.recordVerify("invalid")
		return nil, ErrInvalidCredential
	}

	s.metrics.recordVerify("success")
	return claimsFromToken(tok), nil
}

// DecodeUnverified decodes a credential WITHOUT checking its signature or
// expiry. Display purposes only (greeting banners, debugging); never use
// the result for authorization.
func (s *Service) DecodeUnverified(token string) (*Claims, error) {
	tok, err := jwt.ParseInsecure([]byte(token))
	if err != nil {
		return nil, ErrInvalidCredential
	}
	return claimsFromToken(tok), nil
}

func claimsFromToken(tok jwt.Token) *Claims {
	c := &Claims{
		ID:        tok.Subject(),
		IssuedAt:  tok.IssuedAt(),
		ExpiresAt: tok.Expiration(),
	}
	if v, ok := tok.Get(claimEmail); ok {
		c.Email, _ = v.(string)
	}
	if v, ok := tok.Get(claimName); ok {
		c.Name, _ = v.(string)
	}
	if v, ok := tok.Get(claimRole); ok {
		c.Role, _ = v.(string)
	}
	if v, ok := tok.Get(claimTier); ok {
		if s, sok := v.(string); sok {
			c.Tier = tier.Tier(s)
		}
	}
	return c
}
