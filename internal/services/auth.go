package services

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const tokenTypeAccess = "access"

// Claims carries only the identity's primary key plus bookkeeping.
type Claims struct {
	Type string `json:"typ"`
	jwt.RegisteredClaims
}

type TokenService struct {
	Secret     []byte
	Issuer     string
	TTL        time.Duration
	BcryptCost int
	now        func() time.Time
}

func NewTokenService(secret, issuer string, ttl time.Duration, cost int) TokenService {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return TokenService{Secret: []byte(secret), Issuer: issuer, TTL: ttl, BcryptCost: cost}
}

func (t TokenService) clock() time.Time {
	if t.now != nil {
		return t.now()
	}
	return time.Now().UTC()
}

func (t TokenService) HashPassword(raw string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(raw), t.BcryptCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

func (t TokenService) VerifyPassword(raw, hashed string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(raw)) == nil
}

// Issue signs an access token for studentID and returns its expiry.
func (t TokenService) Issue(studentID string) (string, time.Time, error) {
	now := t.clock()
	exp := now.Add(t.TTL)
	claims := Claims{
		Type: tokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.Issuer,
			Subject:   studentID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.Secret)
	return signed, exp, err
}

// Parse validates signature, issuer and expiry and returns the subject.
func (t TokenService) Parse(tokenStr string) (string, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return t.Secret, nil
	}, jwt.WithIssuer(t.Issuer), jwt.WithTimeFunc(t.clock), jwt.WithExpirationRequired())
	if err != nil {
		return "", err
	}
	if !token.Valid || claims.Type != tokenTypeAccess || claims.Subject == "" {
		return "", errors.New("invalid token")
	}
	return claims.Subject, nil
}
