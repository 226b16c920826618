// Package auth owns the credential primitives of the service: signing and
// verifying bearer tokens, and hashing passwords.
package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
	"github.com/golang-jwt/jwt/v5"
)

// MinKeyLength is the shortest HMAC key NewTokenService accepts (256 bits).
const MinKeyLength = 32

const claimRole = "role"

// reservedClaims can never be set through extra claims.
var reservedClaims = map[string]struct{}{
	"sub": {}, claimRole: {}, "iat": {}, "exp": {}, "nbf": {}, "iss": {}, "aud": {}, "jti": {},
}

// TokenConfig is the immutable input of NewTokenService.
type TokenConfig struct {
	// Key is the HS256 secret. It is copied on construction.
	Key []byte
	// Lifetime is added to the issue instant to produce exp. Whole seconds.
	Lifetime time.Duration
	// Clock overrides time.Now, mostly for tests.
	Clock func() time.Time
}

// Claims is the decoded claim set of a token.
type Claims struct {
	Subject   string
	Role      models.Role
	IssuedAt  time.Time
	ExpiresAt time.Time
	Extra     map[string]any
}

// TokenService issues and verifies HS256 bearer tokens. It holds no mutable
// state and is safe for concurrent use.
type TokenService struct {
	key      []byte
	lifetime time.Duration
	now      func() time.Time
	method   *jwt.SigningMethodHMAC
}

func NewTokenService(cfg TokenConfig) (*TokenService, error) {
	if len(cfg.Key) < MinKeyLength {
		return nil, fmt.Errorf("signing key must be at least %d bytes, got %d", MinKeyLength, len(cfg.Key))
	}
	if cfg.Lifetime < time.Second {
		return nil, fmt.Errorf("token lifetime must be at least 1s, got %s", cfg.Lifetime)
	}

	now := cfg.Clock
	if now == nil {
		now = time.Now
	}

	key := make([]byte, len(cfg.Key))
	copy(key, cfg.Key)

	return &TokenService{
		key:      key,
		lifetime: cfg.Lifetime.Truncate(time.Second),
		now:      now,
		method:   jwt.SigningMethodHS256,
	}, nil
}

// Lifetime is the fixed validity window of issued tokens.
func (s *TokenService) Lifetime() time.Duration {
	return s.lifetime
}

// Issue signs a token for subject. Extra claims are merged in but never
// replace the registered claims or the role.
func (s *TokenService) Issue(subject string, role models.Role, extra map[string]any) (string, error) {
	if subject == "" {
		return "", errors.New("token subject must not be empty")
	}

	claims := make(jwt.MapClaims, len(extra)+4)
	for k, v := range extra {
		if _, reserved := reservedClaims[k]; reserved {
			continue
		}
		claims[k] = v
	}

	now := s.now()
	claims["sub"] = subject
	claims[claimRole] = string(role)
	claims["iat"] = jwt.NewNumericDate(now)
	claims["exp"] = jwt.NewNumericDate(now.Add(s.lifetime))

	signed, err := jwt.NewWithClaims(s.method, claims).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify reports whether token carries a valid signature, has not expired and
// was issued for expectedSubject. Every failure yields false.
func (s *TokenService) Verify(token, expectedSubject string) bool {
	claims, err := s.parse(token, true)
	if err != nil {
		return false
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(sub), []byte(expectedSubject)) == 1
}

// SubjectOf returns the subject of a correctly signed token without looking
// at its expiry.
func (s *TokenService) SubjectOf(token string) (string, error) {
	c, err := s.Claims(token)
	if err != nil {
		return "", err
	}
	return c.Subject, nil
}

// Claims decodes a correctly signed token without looking at its expiry.
func (s *TokenService) Claims(token string) (*Claims, error) {
	mc, err := s.parse(token, false)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrMalformedToken, err)
	}
	return decodeClaims(mc)
}

// Claim extracts a single value from a token with selector.
func Claim[T any](s *TokenService, token string, selector func(*Claims) T) (T, error) {
	var zero T
	c, err := s.Claims(token)
	if err != nil {
		return zero, err
	}
	return selector(c), nil
}

func (s *TokenService) parse(token string, validate bool) (jwt.MapClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{s.method.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithStrictDecoding(),
	}
	if validate {
		opts = append(opts, jwt.WithExpirationRequired())
	} else {
		opts = append(opts, jwt.WithoutClaimsValidation())
	}

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		return s.key, nil
	}, opts...)
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return nil, errors.New("unexpected claims")
	}
	return claims, nil
}

func decodeClaims(mc jwt.MapClaims) (*Claims, error) {
	sub, err := mc.GetSubject()
	if err != nil || sub == "" {
		return nil, fmt.Errorf("%w: missing subject", common.ErrMalformedToken)
	}

	c := &Claims{Subject: sub, Extra: map[string]any{}}

	if role, ok := mc[claimRole].(string); ok {
		c.Role = models.Role(role)
	}
	if iat, err := mc.GetIssuedAt(); err == nil && iat != nil {
		c.IssuedAt = iat.Time
	}
	if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
		c.ExpiresAt = exp.Time
	}
	for k, v := range mc {
		if _, reserved := reservedClaims[k]; !reserved {
			c.Extra[k] = v
		}
	}
	return c, nil
}
