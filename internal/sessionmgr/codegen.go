package sessionmgr

import (
	"crypto/rand"
	"math/big"
)

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
const codeLength = 6

// generateCode draws a 6-character uppercase alphanumeric code using the
// crypto/rand source, so session codes cannot be guessed by seeding
// math/rand. Uniqueness against currently-live sessions is checked by the
// caller, which skips any candidate whose session hash already exists; that
// check and the later write of the new session are separate commands.
func generateCode() (string, error) {
	b := make([]byte, codeLength)
	for i := range b {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeAlphabet))))
		if err != nil {
			return "", err
		}
		b[i] = codeAlphabet[n.Int64()]
	}
	return string(b), nil
}
