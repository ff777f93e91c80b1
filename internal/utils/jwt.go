package utils // package utils provides helpers for operator tokens and PIN hashing

import (
    "errors"
    "time"

    "github.com/golang-jwt/jwt/v5"
)

// OperatorClaims are the claims of an operator access token.  Subject is
// the operator id that lands in the override log.
type OperatorClaims struct {
    Role string `json:"role"`
    jwt.RegisteredClaims
}

// AccessToken is a signed token and its expiry.
type AccessToken struct {
    Token string
    Exp   time.Time
}

// NewOperatorToken signs an HS256 token for operatorID with role that
// expires ttl after now.
func NewOperatorToken(secret, operatorID, role string, now time.Time, ttl time.Duration) (AccessToken, error) {
    if secret == "" {
        return AccessToken{}, errors.New("empty signing secret")
    }
    exp := now.UTC().Add(ttl)
    claims := OperatorClaims{
        Role: role,
        RegisteredClaims: jwt.RegisteredClaims{
            Subject:   operatorID,
            IssuedAt:  jwt.NewNumericDate(now.UTC()),
            ExpiresAt: jwt.NewNumericDate(exp),
        },
    }
    signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
    if err != nil {
        return AccessToken{}, err
    }
    return AccessToken{Token: signed, Exp: exp}, nil
}
