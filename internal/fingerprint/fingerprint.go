// Package fingerprint computes similarity-preserving text fingerprints.
// Texts sharing many tokens yield fingerprints with small Hamming distance,
// so near-duplicate reports of one event bucket together under a shared
// fingerprint prefix.
package fingerprint

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

// Bits is the fingerprint width. Encoded as Bits/4 hex characters.
const Bits = 64

// Fingerprint returns the 64-bit simhash of text as a 16-character hex
// string. Tokens are maximal runs of Unicode letters and digits, lowercased,
// hashed independently; each token casts a signed vote per bit position and
// a bit is set when its accumulated vote is non-negative. Input with no
// tokens yields the all-zero fingerprint.
func Fingerprint(text string) string {
	toks := tokenize(text)
	if len(toks) == 0 {
		return strings.Repeat("0", Bits/4)
	}

	var votes [Bits]int
	for _, tok := range toks {
		h := xxhash.Sum64String(tok)
		for i := 0; i < Bits; i++ {
			if (h>>uint(i))&1 == 1 {
				votes[i]++
			} else {
				votes[i]--
			}
		}
	}

	var out uint64
	for i := 0; i < Bits; i++ {
		if votes[i] >= 0 {
			out |= 1 << uint(i)
		}
	}
	return fmt.Sprintf("%016x", out)
}

// Prefix returns the leading prefixBits of a hex fingerprint as its hex
// prefix. prefixBits must be a multiple of 4; it is clamped to the
// fingerprint length.
func Prefix(fp string, prefixBits int) string {
	n := prefixBits / 4
	if n > len(fp) {
		n = len(fp)
	}
	if n < 0 {
		n = 0
	}
	return fp[:n]
}

// HammingDistance returns the number of differing bits between two hex
// fingerprints of equal length.
func HammingDistance(a, b string) (int, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("fingerprint length mismatch: %d vs %d", len(a), len(b))
	}
	dist := 0
	for i := 0; i < len(a); i++ {
		x, err := hexNibble(a[i])
		if err != nil {
			return 0, err
		}
		y, err := hexNibble(b[i])
		if err != nil {
			return 0, err
		}
		v := x ^ y
		for v != 0 {
			dist += int(v & 1)
			v >>= 1
		}
	}
	return dist, nil
}

func hexNibble(c byte) (uint8, error) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', nil
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, nil
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, nil
	}
	return 0, fmt.Errorf("invalid hex character %q", c)
}

// tokenize splits text into lowercased maximal runs of letters and digits.
// Unicode-aware, so non-Latin scripts tokenize as whole runs rather than
// being dropped.
func tokenize(text string) []string {
	var toks []string
	var b strings.Builder
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			continue
		}
		if b.Len() > 0 {
			toks = append(toks, b.String())
			b.Reset()
		}
	}
	if b.Len() > 0 {
		toks = append(toks, b.String())
	}
	return toks
}
