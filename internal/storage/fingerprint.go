package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// fingerprintPrefix is how many leading characters of content take part in the hash
const fingerprintPrefix = 200

// Fingerprint returns the identity hash of a post.
// Posts by the same author whose first 200 characters match collide on purpose.
// Lowercasing follows full Unicode rules, final sigma included, so hashes
// written by earlier deployments keep matching.
func Fingerprint(author, content string) string {
	lower := cases.Lower(language.Und)
	a := lower.String(strings.TrimSpace(author))

	c := []rune(strings.TrimSpace(content))
	if len(c) > fingerprintPrefix {
		c = c[:fingerprintPrefix]
	}

	sum := sha256.Sum256([]byte(a + "|" + lower.String(string(c))))
	return hex.EncodeToString(sum[:])
}
