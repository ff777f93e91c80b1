package utils

import "golang.org/x/crypto/bcrypt"

// HashPIN returns a bcrypt hash of pin.  Used to produce the
// *_PIN_HASH settings.
func HashPIN(pin string, cost int) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(pin), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyPIN compares a bcrypt hash with a plain PIN in constant time.
func VerifyPIN(hash, pin string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pin)) == nil
}
