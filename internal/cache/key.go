package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// keyVersion is bumped whenever the key derivation changes so stale disk
// entries are never served.
const keyVersion = "v1"

// Key identifies one synthesized utterance.
type Key struct {
	Text  string
	Speed float64
	Lang  string
}

// NewKey builds a key with the text normalized.
func NewKey(text string, speed float64, lang string) Key {
	return Key{
		Text:  NormalizeText(text),
		Speed: speed,
		Lang:  strings.ToLower(strings.TrimSpace(lang)),
	}
}

// String returns the hashed, versioned form used as the storage key.
func (k Key) String() string {
	raw := fmt.Sprintf("%s|%.2f|%s", k.Text, k.Speed, k.Lang)
	sum := sha256.Sum256([]byte(raw))
	return keyVersion + "_" + hex.EncodeToString(sum[:16])
}

// NormalizeText trims, collapses interior whitespace and applies NFC so that
// visually identical prompts share one cache entry.
func NormalizeText(text string) string {
	return strings.Join(strings.Fields(norm.NFC.String(text)), " ")
}
