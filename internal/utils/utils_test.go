package utils

import (
    "testing"
    "time"

    "github.com/golang-jwt/jwt/v5"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
    "golang.org/x/crypto/bcrypt"
)

func TestPIN(t *testing.T) {
    h, err := HashPIN("2468", bcrypt.MinCost)
    require.NoError(t, err)
    assert.True(t, VerifyPIN(h, "2468"))
    assert.False(t, VerifyPIN(h, "1357"))
    assert.False(t, VerifyPIN("not-a-hash", "2468"))
}

func TestNewOperatorToken(t *testing.T) {
    now := time.Now()
    tok, err := NewOperatorToken("secret", "gate-7", "SCANNER", now, 15*time.Minute)
    require.NoError(t, err)
    assert.WithinDuration(t, now.Add(15*time.Minute), tok.Exp, time.Second)

    claims := &OperatorClaims{}
    parsed, err := jwt.ParseWithClaims(tok.Token, claims, func(*jwt.Token) (interface{}, error) {
        return []byte("secret"), nil
    })
    require.NoError(t, err)
    assert.True(t, parsed.Valid)
    assert.Equal(t, "gate-7", claims.Subject)
    assert.Equal(t, "SCANNER", claims.Role)

    _, err = NewOperatorToken("", "gate-7", "SCANNER", now, time.Minute)
    assert.Error(t, err)
}
