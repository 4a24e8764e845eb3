package auth

import (
	"crypto/subtle"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-hub/internal/clock"
)

const (
	minPINLength = 4
	maxPINLength = 12
)

// PINInfo describes the current PIN without revealing it.
type PINInfo struct {
	Version   uint64    `json:"version"`
	RotatedAt time.Time `json:"rotated_at"`
	Length    int       `json:"length"`
}

// PINCell holds the shared lock PIN. Each Rotate bumps the version.
//
// Safe for concurrent use.
type PINCell struct {
	mu        sync.RWMutex
	value     string
	version   uint64
	rotatedAt time.Time
	clock     clock.Clock
}

// NewPINCell creates a cell seeded with initial at version 1.
func NewPINCell(initial string, clk clock.Clock) (*PINCell, error) {
	if err := ValidatePIN(initial); err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &PINCell{value: initial, version: 1, rotatedAt: clk.Now(), clock: clk}, nil
}

// ValidatePIN reports whether pin is 4-12 ASCII digits.
func ValidatePIN(pin string) error {
	if len(pin) < minPINLength || len(pin) > maxPINLength {
		return ErrInvalidPIN
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			return ErrInvalidPIN
		}
	}
	return nil
}

// Current returns the PIN and its version.
func (c *PINCell) Current() (pin string, version uint64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value, c.version
}

// Matches compares candidate with the current PIN in constant time.
func (c *PINCell) Matches(candidate string) bool {
	c.mu.RLock()
	current := c.value
	c.mu.RUnlock()
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(current)) == 1
}

// Rotate replaces the PIN and returns the new version.
func (c *PINCell) Rotate(pin string) (uint64, error) {
	if err := ValidatePIN(pin); err != nil {
		return 0, fmt.Errorf("rotating pin: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = pin
	c.version++
	c.rotatedAt = c.clock.Now()
	return c.version, nil
}

// Info returns metadata about the current PIN.
func (c *PINCell) Info() PINInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return PINInfo{Version: c.version, RotatedAt: c.rotatedAt, Length: len(c.value)}
}
