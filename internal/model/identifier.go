package model

import (
    "fmt"
    "strings"

    "github.com/google/uuid"
)

// DefaultCodeLength is the number of digits in a manual-entry code.
const DefaultCodeLength = 6

// ParseTicketID validates a ticket identifier and returns its canonical
// form (lowercase, hyphenated, 36 characters).  Braced, URN and
// hyphen-less variants accepted by uuid.Parse are refused: scanners must
// hand over exactly what was printed.
func ParseTicketID(raw string) (string, error) {
    s := strings.TrimSpace(raw)
    if len(s) != 36 {
        return "", fmt.Errorf("%w: ticket id must be 36 characters", ErrMalformedInput)
    }
    id, err := uuid.Parse(s)
    if err != nil {
        return "", fmt.Errorf("%w: %v", ErrMalformedInput, err)
    }
    return id.String(), nil
}

// ParseCode validates a manual-entry code of exactly n ASCII digits.
func ParseCode(raw string, n int) (string, error) {
    s := strings.TrimSpace(raw)
    if n <= 0 {
        n = DefaultCodeLength
    }
    if len(s) != n {
        return "", fmt.Errorf("%w: code must be %d digits", ErrMalformedInput, n)
    }
    for i := 0; i < len(s); i++ {
        if s[i] < '0' || s[i] > '9' {
            return "", fmt.Errorf("%w: code must be numeric", ErrMalformedInput)
        }
    }
    return s, nil
}

// InputKind tells which identifier form a raw scan carried.
type InputKind int

const (
    InputTicketID InputKind = iota + 1
    InputCode
)

// ScanInput is a raw scanner string after format validation.
type ScanInput struct {
    Kind  InputKind
    Value string
}

// ClassifyScan accepts either a canonical ticket id (QR payload) or an
// n-digit code (keypad).  Anything else is malformed; no partial
// interpretation is attempted.
func ClassifyScan(raw string, codeLength int) (ScanInput, error) {
    if id, err := ParseTicketID(raw); err == nil {
        return ScanInput{Kind: InputTicketID, Value: id}, nil
    }
    if code, err := ParseCode(raw, codeLength); err == nil {
        return ScanInput{Kind: InputCode, Value: code}, nil
    }
    return ScanInput{}, fmt.Errorf("%w: not a ticket id or %d-digit code", ErrMalformedInput, codeLength)
}
