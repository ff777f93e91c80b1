package model

import (
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func TestParseTicketID(t *testing.T) {
    id, err := ParseTicketID("  6F1C2B1E-9A44-4C1B-8D5E-0B6A3F2E7C10 ")
    require.NoError(t, err)
    assert.Equal(t, "6f1c2b1e-9a44-4c1b-8d5e-0b6a3f2e7c10", id)

    for _, raw := range []string{
        "",
        "not-a-ticket",
        "{6f1c2b1e-9a44-4c1b-8d5e-0b6a3f2e7c10}",
        "6f1c2b1e9a444c1b8d5e0b6a3f2e7c10",
        "6f1c2b1e-9a44-4c1b-8d5e-0b6a3f2e7cZZ",
    } {
        _, err := ParseTicketID(raw)
        assert.ErrorIs(t, err, ErrMalformedInput, raw)
    }
}

func TestParseCode(t *testing.T) {
    code, err := ParseCode(" 004217 ", 6)
    require.NoError(t, err)
    assert.Equal(t, "004217", code)

    _, err = ParseCode("4217", 6)
    assert.ErrorIs(t, err, ErrMalformedInput)
    _, err = ParseCode("00421a", 6)
    assert.ErrorIs(t, err, ErrMalformedInput)
    _, err = ParseCode("１２３４５６", 6)
    assert.ErrorIs(t, err, ErrMalformedInput)

    code, err = ParseCode("123456", 0)
    require.NoError(t, err)
    assert.Equal(t, "123456", code)
}

func TestClassifyScan(t *testing.T) {
    in, err := ClassifyScan("6f1c2b1e-9a44-4c1b-8d5e-0b6a3f2e7c10", 6)
    require.NoError(t, err)
    assert.Equal(t, InputTicketID, in.Kind)

    in, err = ClassifyScan("123456", 6)
    require.NoError(t, err)
    assert.Equal(t, InputCode, in.Kind)
    assert.Equal(t, "123456", in.Value)

    _, err = ClassifyScan("12345", 6)
    assert.ErrorIs(t, err, ErrMalformedInput)
    _, err = ClassifyScan("https://example.com/t/123456", 6)
    assert.ErrorIs(t, err, ErrMalformedInput)
}

func TestTicketClone(t *testing.T) {
    orig := Ticket{ID: "a", Redemptions: map[string]time.Time{"A": time.Unix(1, 0)}}
    cp := orig.Clone()
    cp.Redemptions["B"] = time.Unix(2, 0)
    assert.Len(t, orig.Redemptions, 1)
}

func TestParseCategory(t *testing.T) {
    c, ok := ParseCategory("MULTI")
    assert.True(t, ok)
    assert.Equal(t, CategoryMulti, c)
    _, ok = ParseCategory("vip")
    assert.False(t, ok)
}
