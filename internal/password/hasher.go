// Package password hashes and verifies user passwords.
//
// Hashes are self-describing: bcrypt output carries its own version, cost and
// salt, and argon2id output uses the PHC-style
// $argon2id$v=19$m=MEMORY,t=TIME,p=THREADS$SALT$HASH encoding. Verify picks the
// scheme from the stored hash, so changing the configured scheme does not
// invalidate existing users.
package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// Scheme names a supported hashing algorithm.
type Scheme string

const (
	SchemeBcrypt   Scheme = "bcrypt"
	SchemeArgon2id Scheme = "argon2id"
)

// bcrypt only looks at the first 72 bytes of its input.
const maxBcryptLen = 72

var (
	ErrEmpty   = errors.New("password: empty")
	ErrTooLong = errors.New("password: longer than 72 bytes")
)

// Hasher hashes passwords with the configured scheme. It holds no mutable
// state and is safe for concurrent use.
type Hasher struct {
	scheme Scheme
	cost   int

	argonTime    uint32
	argonMemory  uint32
	argonThreads uint8
	argonKeyLen  uint32
	argonSaltLen int
}

type Option func(*Hasher)

// WithScheme selects the algorithm used by Hash.
func WithScheme(s Scheme) Option {
	return func(h *Hasher) { h.scheme = s }
}

// WithCost sets the bcrypt cost. Values outside bcrypt's range are ignored.
func WithCost(cost int) Option {
	return func(h *Hasher) {
		if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
			h.cost = cost
		}
	}
}

// WithArgon2 sets the argon2id time, memory (KiB) and parallelism parameters.
func WithArgon2(time, memory uint32, threads uint8) Option {
	return func(h *Hasher) {
		h.argonTime = time
		h.argonMemory = memory
		h.argonThreads = threads
	}
}

func New(opts ...Option) *Hasher {
	h := &Hasher{
		scheme:       SchemeBcrypt,
		cost:         bcrypt.DefaultCost,
		argonTime:    1,
		argonMemory:  64 * 1024,
		argonThreads: 4,
		argonKeyLen:  32,
		argonSaltLen: 16,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ParseScheme validates a configured scheme name.
func ParseScheme(s string) (Scheme, error) {
	switch Scheme(strings.ToLower(s)) {
	case SchemeBcrypt:
		return SchemeBcrypt, nil
	case SchemeArgon2id:
		return SchemeArgon2id, nil
	}
	return "", fmt.Errorf("password: unsupported scheme %q (supported: bcrypt, argon2id)", s)
}

// Hash returns a salted hash of p. Each call uses a fresh salt.
func (h *Hasher) Hash(p string) (string, error) {
	if p == "" {
		return "", ErrEmpty
	}
	if h.scheme == SchemeArgon2id {
		return h.hashArgon2(p)
	}
	if len(p) > maxBcryptLen {
		return "", ErrTooLong
	}
	b, err := bcrypt.GenerateFromPassword([]byte(p), h.cost)
	if err != nil {
		return "", fmt.Errorf("password: hash: %w", err)
	}
	return string(b), nil
}

// Verify reports whether p matches hash. A hash that cannot be parsed never
// matches.
func (h *Hasher) Verify(p, hash string) bool {
	if strings.HasPrefix(hash, "$argon2id$") {
		return verifyArgon2(p, hash)
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(p)) == nil
}

func (h *Hasher) hashArgon2(p string) (string, error) {
	salt := make([]byte, h.argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("password: generate salt: %w", err)
	}
	key := argon2.IDKey([]byte(p), salt, h.argonTime, h.argonMemory, h.argonThreads, h.argonKeyLen)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.argonMemory, h.argonTime, h.argonThreads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

func verifyArgon2(p, encoded string) bool {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return false
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return false
	}
	var memory, time uint32
	var threads uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &threads); err != nil {
		return false
	}
	if memory == 0 || time == 0 || threads == 0 {
		return false
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(want) == 0 {
		return false
	}
	got := argon2.IDKey([]byte(p), salt, time, memory, threads, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1
}
