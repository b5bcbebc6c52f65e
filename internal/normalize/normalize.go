// Package normalize canonicalizes security answers so that storage and
// comparison always operate on the same byte sequence.
package normalize

import (
	"crypto/sha256"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Answer canonicalizes a security answer: NFKC normalization, Unicode case
// folding, then whitespace trimming. Applied symmetrically at setup and at
// verification, so " MotherName " and "mothername" compare equal.
func Answer(s string) string {
	s = norm.NFKC.String(s)
	// Casers are stateful, so build one per call.
	s = cases.Fold().String(s)
	return strings.TrimSpace(s)
}

// Digest returns the SHA-256 digest of the canonicalized answer. Only
// digests are persisted or carried in session records.
func Digest(s string) [32]byte {
	return sha256.Sum256([]byte(Answer(s)))
}

// IsBlank reports whether the answer is empty after canonicalization.
func IsBlank(s string) bool {
	return Answer(s) == ""
}
