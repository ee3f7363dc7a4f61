package credential

import (
	"crypto/rand"
	"errors"
	"fmt"
	"strings"

	"github.com/GehirnInc/crypt"
	_ "github.com/GehirnInc/crypt/md5_crypt"
	_ "github.com/GehirnInc/crypt/sha256_crypt"
	"github.com/GehirnInc/crypt/sha512_crypt"
	"golang.org/x/crypto/bcrypt"

	"sield/internal/config"
)

const (
	saltAlphabet = "./0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
	saltLength   = 16
)

var (
	// ErrUnsupportedHash reports a stored hash no in-process verifier handles.
	ErrUnsupportedHash = errors.New("unsupported password hash")
	// ErrLocked reports a disabled account hash such as "!" or "*".
	ErrLocked = errors.New("credential is locked")
)

func isBcrypt(hash string) bool {
	return strings.HasPrefix(hash, "$2a$") || strings.HasPrefix(hash, "$2b$") || strings.HasPrefix(hash, "$2y$")
}

func isLocked(hash string) bool {
	return hash == "" || strings.HasPrefix(hash, "!") || strings.HasPrefix(hash, "*")
}

// verifyHash re-hashes password with the parameters embedded in hash.
func verifyHash(hash string, password []byte) (bool, error) {
	switch {
	case isLocked(hash):
		return false, ErrLocked
	case isBcrypt(hash):
		err := bcrypt.CompareHashAndPassword([]byte(hash), password)
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("bcrypt verify: %w", err)
		}
		return true, nil
	case crypt.IsHashSupported(hash):
		err := crypt.NewFromHash(hash).Verify(hash, password)
		if errors.Is(err, crypt.ErrKeyMismatch) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("crypt verify: %w", err)
		}
		return true, nil
	default:
		return false, ErrUnsupportedHash
	}
}

// Hash produces a fresh hash of password with a new random salt.
func Hash(password []byte, algorithm string) (string, error) {
	switch algorithm {
	case config.HashBcrypt:
		out, err := bcrypt.GenerateFromPassword(password, bcrypt.DefaultCost)
		if err != nil {
			return "", fmt.Errorf("bcrypt hash: %w", err)
		}
		return string(out), nil
	case config.HashSHA512, "":
		salt, err := newSalt()
		if err != nil {
			return "", err
		}
		out, err := sha512_crypt.New().Generate(password, []byte(sha512_crypt.MagicPrefix+salt))
		if err != nil {
			return "", fmt.Errorf("sha512-crypt hash: %w", err)
		}
		return out, nil
	default:
		return "", fmt.Errorf("unsupported hash algorithm %q", algorithm)
	}
}

func newSalt() (string, error) {
	raw := make([]byte, saltLength)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	out := make([]byte, saltLength)
	for i, b := range raw {
		out[i] = saltAlphabet[int(b)%len(saltAlphabet)]
	}
	return string(out), nil
}
