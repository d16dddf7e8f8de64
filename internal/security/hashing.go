package security

import (
	"context"
	"errors"
	"runtime"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"
)

// DefaultBcryptCost is the cost used when none is configured.
const DefaultBcryptCost = 10

// MaxPasswordBytes is the longest password bcrypt hashes.
const MaxPasswordBytes = 72

// ErrPasswordMismatch is returned by Compare when the password does not match the hash.
var ErrPasswordMismatch = errors.New("password does not match")

// ErrPasswordTooLong is returned by Hash for passwords over MaxPasswordBytes.
var ErrPasswordTooLong = errors.New("password exceeds 72 bytes")

// Hasher hashes and verifies passwords using bcrypt. At most Concurrency
// hashes run at once; callers wait for a slot (or ctx) before the CPU-bound
// work starts. Callers must not log or persist plaintext passwords.
type Hasher struct {
	Cost        int
	Concurrency int
	sem         *semaphore.Weighted
}

// NewHasher returns a Hasher with the given bcrypt cost (clamped to 4–31;
// zero or negative means DefaultBcryptCost) and worker limit (zero or negative
// means GOMAXPROCS).
func NewHasher(cost, concurrency int) *Hasher {
	if cost <= 0 {
		cost = DefaultBcryptCost
	}
	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	if concurrency <= 0 {
		concurrency = runtime.GOMAXPROCS(0)
	}
	return &Hasher{
		Cost:        cost,
		Concurrency: concurrency,
		sem:         semaphore.NewWeighted(int64(concurrency)),
	}
}

// Hash produces a bcrypt hash of password suitable for storage.
// Passwords longer than MaxPasswordBytes yield ErrPasswordTooLong.
func (h *Hasher) Hash(ctx context.Context, password string) (string, error) {
	if len(password) > MaxPasswordBytes {
		return "", ErrPasswordTooLong
	}
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer h.sem.Release(1)
	b, err := bcrypt.GenerateFromPassword([]byte(password), h.Cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Compare verifies password against the stored hash. Returns nil on match,
// ErrPasswordMismatch on mismatch, and other errors for a malformed hash or a
// cancelled ctx.
func (h *Hasher) Compare(ctx context.Context, hash, password string) error {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer h.sem.Release(1)
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrPasswordMismatch
	}
	return err
}
