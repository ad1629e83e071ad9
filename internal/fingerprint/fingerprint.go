// Package fingerprint digests payloads for cheap change detection.
//
// A payload is serialized as compact JSON in its stored key order and
// NFC-normalized. OrderSensitive hashes that text directly. OrderNormalized
// sorts its characters first, so reordered keys or sequence members hash the
// same; distinct payloads that are anagrams of each other collide, which
// callers accept because a matching digest only skips the structural diff.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"slices"

	"golang.org/x/text/unicode/norm"

	"recordsync/internal/value"
)

// Mode selects how serialization order affects the digest.
type Mode uint8

const (
	OrderSensitive Mode = iota
	OrderNormalized
)

func (m Mode) String() string {
	if m == OrderNormalized {
		return "order_normalized"
	}
	return "order_sensitive"
}

// ModeFor maps the reconcile.order_normalized_hash setting onto a Mode.
func ModeFor(orderNormalized bool) Mode {
	if orderNormalized {
		return OrderNormalized
	}
	return OrderSensitive
}

// Sum parses a serialized JSON payload and digests it.
func Sum(raw []byte, mode Mode) (string, error) {
	v, err := value.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	return SumValue(v, mode), nil
}

// SumValue digests a payload value. The result is lowercase hex SHA-256.
func SumValue(v value.Value, mode Mode) string {
	text := norm.NFC.String(v.String())
	if mode == OrderNormalized {
		runes := []rune(text)
		slices.Sort(runes)
		text = string(runes)
	}
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
