package security

import (
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sandeepkv93/checkin-gateway/internal/config"
)

// Claims is the envelope the workflow engine verifies: issuer, expiry and
// the submission payload under "data".
type Claims struct {
	Data json.RawMessage `json:"data,omitempty"`
	jwt.RegisteredClaims
}

// TokenSigner signs short-lived tokens with HS256 or RS256.
type TokenSigner struct {
	algorithm string
	method    jwt.SigningMethod
	signKey   any
	verifyKey any
	issuer    string
	ttl       time.Duration
	now       func() time.Time
}

func NewTokenSigner(cfg config.Config) (*TokenSigner, error) {
	s := &TokenSigner{
		algorithm: cfg.JWTAlgorithm,
		issuer:    cfg.JWTIssuer,
		ttl:       cfg.JWTTTL,
		now:       time.Now,
	}
	if s.ttl <= 0 {
		s.ttl = 5 * time.Minute
	}
	switch cfg.JWTAlgorithm {
	case "", "HS256":
		if len(cfg.JWTSecret) < 32 {
			return nil, errors.New("JWT_SECRET must be at least 32 characters long")
		}
		s.algorithm = "HS256"
		s.method = jwt.SigningMethodHS256
		s.signKey = []byte(cfg.JWTSecret)
		s.verifyKey = []byte(cfg.JWTSecret)
	case "RS256":
		priv, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(cfg.JWTPrivateKey))
		if err != nil {
			return nil, fmt.Errorf("parse JWT_PRIVATE_KEY: %w", err)
		}
		var pub *rsa.PublicKey
		if cfg.JWTPublicKey != "" {
			pub, err = jwt.ParseRSAPublicKeyFromPEM([]byte(cfg.JWTPublicKey))
			if err != nil {
				return nil, fmt.Errorf("parse JWT_PUBLIC_KEY: %w", err)
			}
		} else {
			pub = &priv.PublicKey
		}
		s.method = jwt.SigningMethodRS256
		s.signKey = priv
		s.verifyKey = pub
	default:
		return nil, fmt.Errorf("unsupported JWT_ALGORITHM %q", cfg.JWTAlgorithm)
	}
	return s, nil
}

func (s *TokenSigner) Algorithm() string { return s.algorithm }

// Sign issues a token carrying data that expires after the configured ttl.
func (s *TokenSigner) Sign(data any) (string, time.Time, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("encode token data: %w", err)
	}
	now := s.now()
	expiresAt := now.Add(s.ttl)
	claims := Claims{
		Data: raw,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token, err := jwt.NewWithClaims(s.method, claims).SignedString(s.signKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return token, expiresAt, nil
}

// Verify checks algorithm, signature, issuer and expiry.
func (s *TokenSigner) Verify(raw string) (*Claims, error) {
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		if token.Method.Alg() != s.method.Alg() {
			return nil, errors.New("unexpected signing algorithm")
		}
		return s.verifyKey, nil
	},
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, err
	}
	if !tok.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}
