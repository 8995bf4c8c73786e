// Package fingerprint produces 64-bit SimHash fingerprints of page markup
// so structure drift between visits can be quantified as a Hamming
// distance. The health monitor attaches fingerprints and drift to its
// page records as diagnostic context.
package fingerprint

import (
	"hash/fnv"
	"math/bits"
	"strings"

	"golang.org/x/net/html"
)

// shingleSize is the n-gram width over structure tokens. Three tags of
// local context separates a reshuffled results list from a cosmetic edit.
const shingleSize = 3

// Text computes a 64-bit SimHash over whitespace-separated tokens using
// FNV-64a with bit-vector accumulation. Empty or whitespace-only input
// yields 0.
func Text(s string) uint64 {
	tokens := strings.Fields(s)
	if len(tokens) == 0 {
		return 0
	}

	var vector [64]int
	for _, tok := range tokens {
		h := fnv.New64a()
		h.Write([]byte(tok))
		sum := h.Sum64()
		for i := 0; i < 64; i++ {
			if sum&(1<<uint(i)) != 0 {
				vector[i]++
			} else {
				vector[i]--
			}
		}
	}

	var fp uint64
	for i := 0; i < 64; i++ {
		if vector[i] > 0 {
			fp |= 1 << uint(i)
		}
	}
	return fp
}

// HTML fingerprints the structural skeleton of a document: the ordered
// opening tags, shingled to preserve local nesting. Text content, class
// names, and generated attributes are ignored; they churn on every
// frontend rebuild while the skeleton stays comparable across visits.
func HTML(markup string) uint64 {
	tokens := structureTokens(markup)
	if len(tokens) == 0 {
		return 0
	}

	shingles := shingle(tokens, shingleSize)
	if len(shingles) == 0 {
		// Too few tags for shingles; fall back to the raw tag sequence.
		return Text(strings.Join(tokens, " "))
	}
	return Text(strings.Join(shingles, " "))
}

// Distance returns the Hamming distance between two fingerprints.
func Distance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// Similar reports whether two fingerprints are within threshold bits of
// each other.
func Similar(a, b uint64, threshold int) bool {
	return Distance(a, b) <= threshold
}

// structureTokens tokenizes markup into one token per opening tag. A role
// attribute, when present, is folded into the token ("div[search]"), since
// ARIA roles outlive the obfuscated class names on the pages we scrape.
func structureTokens(markup string) []string {
	tokenizer := html.NewTokenizer(strings.NewReader(markup))
	var tokens []string

	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return tokens
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := tokenizer.TagName()
			token := string(name)
			for hasAttr {
				var key, val []byte
				key, val, hasAttr = tokenizer.TagAttr()
				if string(key) == "role" && len(val) > 0 {
					token += "[" + string(val) + "]"
					break
				}
			}
			tokens = append(tokens, token)
		}
	}
}

// shingle joins every run of n consecutive tokens, keeping local ordering
// that a bag of tags would lose.
func shingle(tokens []string, n int) []string {
	if len(tokens) < n {
		return nil
	}
	out := make([]string, 0, len(tokens)-n+1)
	for i := 0; i+n <= len(tokens); i++ {
		out = append(out, strings.Join(tokens[i:i+n], "_"))
	}
	return out
}
