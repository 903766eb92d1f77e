package rpc

import (
	"errors"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

// AuthConfig configures bearer-token verification for mutating methods.
type AuthConfig struct {
	HMACSecret string
	Issuer     string
	Audience   string
	ClockSkew  time.Duration
}

var (
	errMissingBearer  = errors.New("missing bearer token")
	errSecretNotSet   = errors.New("auth secret not configured")
	errMissingSubject = errors.New("token subject required")
)

// Authenticator verifies HMAC-signed JWTs. The token subject is the signer
// address the host runs the invocation as.
type Authenticator struct {
	cfg    AuthConfig
	secret []byte
}

func NewAuthenticator(cfg AuthConfig) *Authenticator {
	if cfg.ClockSkew <= 0 {
		cfg.ClockSkew = 2 * time.Minute
	}
	return &Authenticator{cfg: cfg, secret: []byte(strings.TrimSpace(cfg.HMACSecret))}
}

// Authenticate returns the signer carried by the request's bearer token.
func (a *Authenticator) Authenticate(r *http.Request) (string, error) {
	tokenString := extractBearer(r.Header.Get("Authorization"))
	if tokenString == "" {
		return "", errMissingBearer
	}
	return a.Verify(tokenString)
}

// Verify parses tokenString and returns its subject.
func (a *Authenticator) Verify(tokenString string) (string, error) {
	if len(a.secret) == 0 {
		return "", errSecretNotSet
	}
	opts := []jwt.ParserOption{
		jwt.WithLeeway(a.cfg.ClockSkew),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg(), jwt.SigningMethodHS384.Alg(), jwt.SigningMethodHS512.Alg()}),
	}
	if a.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.cfg.Issuer))
	}
	if a.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(a.cfg.Audience))
	}
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, opts...)
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", errors.New("token invalid")
	}
	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return "", errMissingSubject
	}
	return subject, nil
}

// IssueToken mints an HS256 token for subject valid for ttl. A zero ttl
// issues a token without expiry.
func IssueToken(cfg AuthConfig, subject string, ttl time.Duration) (string, error) {
	secret := strings.TrimSpace(cfg.HMACSecret)
	if secret == "" {
		return "", errSecretNotSet
	}
	if strings.TrimSpace(subject) == "" {
		return "", errMissingSubject
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:  subject,
		IssuedAt: jwt.NewNumericDate(now),
	}
	if ttl != 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	if cfg.Issuer != "" {
		claims.Issuer = cfg.Issuer
	}
	if cfg.Audience != "" {
		claims.Audience = jwt.ClaimStrings{cfg.Audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func extractBearer(header string) string {
	header = strings.TrimSpace(header)
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}
