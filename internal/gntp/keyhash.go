package gntp

import (
	"crypto/md5"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"hash"
	"strings"
)

type HashAlgorithm string

const (
	HashMD5    HashAlgorithm = "MD5"
	HashSHA1   HashAlgorithm = "SHA1"
	HashSHA256 HashAlgorithm = "SHA256"
	HashSHA512 HashAlgorithm = "SHA512"
)

const saltLen = 16

// ParseHashAlgorithm accepts the algorithm name in any case. Empty means MD5.
func ParseHashAlgorithm(s string) (HashAlgorithm, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "MD5":
		return HashMD5, nil
	case "SHA1", "SHA-1":
		return HashSHA1, nil
	case "SHA256", "SHA-256":
		return HashSHA256, nil
	case "SHA512", "SHA-512":
		return HashSHA512, nil
	default:
		return "", fmt.Errorf("unsupported key hash algorithm %q", s)
	}
}

func (a HashAlgorithm) newHash() (hash.Hash, error) {
	switch a {
	case "", HashMD5:
		return md5.New(), nil
	case HashSHA1:
		return sha1.New(), nil
	case HashSHA256:
		return sha256.New(), nil
	case HashSHA512:
		return sha512.New(), nil
	default:
		return nil, fmt.Errorf("unsupported key hash algorithm %q", string(a))
	}
}

// KeyHash authenticates a message with a shared password:
//
//	key     = H(password || salt)
//	keyHash = H(key)
//
// and is sent as "<ALG>:<hex(keyHash)>.<hex(salt)>" on the information line.
type KeyHash struct {
	Algorithm HashAlgorithm
	Hash      []byte
	Salt      []byte
}

// NewKeyHash derives the key hash for password. A nil salt draws 16 random
// bytes.
func NewKeyHash(alg HashAlgorithm, password string, salt []byte) (KeyHash, error) {
	if alg == "" {
		alg = HashMD5
	}
	if salt == nil {
		salt = make([]byte, saltLen)
		if _, err := rand.Read(salt); err != nil {
			return KeyHash{}, fmt.Errorf("salt: %w", err)
		}
	}
	h, err := alg.newHash()
	if err != nil {
		return KeyHash{}, err
	}
	h.Write([]byte(password))
	h.Write(salt)
	key := h.Sum(nil)

	h.Reset()
	h.Write(key)
	return KeyHash{Algorithm: alg, Hash: h.Sum(nil), Salt: salt}, nil
}

func (k KeyHash) String() string {
	return string(k.Algorithm) + ":" + strings.ToUpper(hex.EncodeToString(k.Hash)) + "." + strings.ToUpper(hex.EncodeToString(k.Salt))
}

// Verify reports whether k was derived from password.
func (k KeyHash) Verify(password string) bool {
	other, err := NewKeyHash(k.Algorithm, password, k.Salt)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(other.Hash, k.Hash) == 1
}

// ParseKeyHash parses the "<ALG>:<hash>.<salt>" form.
func ParseKeyHash(s string) (KeyHash, error) {
	algPart, rest, ok := strings.Cut(s, ":")
	if !ok {
		return KeyHash{}, fmt.Errorf("key hash %q: missing algorithm", s)
	}
	alg, err := ParseHashAlgorithm(algPart)
	if err != nil {
		return KeyHash{}, err
	}
	hashPart, saltPart, ok := strings.Cut(rest, ".")
	if !ok {
		return KeyHash{}, fmt.Errorf("key hash %q: missing salt", s)
	}
	h, err := hex.DecodeString(hashPart)
	if err != nil {
		return KeyHash{}, fmt.Errorf("key hash: %w", err)
	}
	salt, err := hex.DecodeString(saltPart)
	if err != nil {
		return KeyHash{}, fmt.Errorf("key hash salt: %w", err)
	}
	return KeyHash{Algorithm: alg, Hash: h, Salt: salt}, nil
}
