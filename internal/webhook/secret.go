package webhook

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// SecretLength is the length of generated shared secrets.
const SecretLength = 36

const secretAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// GenerateSecret returns n alphanumeric characters from crypto/rand.
func GenerateSecret(n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("invalid secret length %d", n)
	}
	max := big.NewInt(int64(len(secretAlphabet)))
	out := make([]byte, n)
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate secret: %w", err)
		}
		out[i] = secretAlphabet[idx.Int64()]
	}
	return string(out), nil
}
