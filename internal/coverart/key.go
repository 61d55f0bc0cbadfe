package coverart

import (
	"crypto/sha1"
	"encoding/hex"
	"net/url"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// maxKeyLen keeps cache file names well under the common 255 byte limit
const maxKeyLen = 160

// Key returns the cache key for an artist/album pair. Equivalent spellings
// (case, Unicode composition, surrounding or repeated whitespace) map to the
// same key, and the result is safe to use as a file name.
func Key(artist, album string) string {
	raw := normalize(artist) + "_" + normalize(album)
	key := strings.ToLower(strings.ReplaceAll(url.QueryEscape(raw), "+", "_"))

	if len(key) > maxKeyLen {
		sum := sha1.Sum([]byte(key))
		digest := hex.EncodeToString(sum[:])
		key = key[:maxKeyLen-len(digest)-1] + "_" + digest
	}
	return key
}

// FileName returns the cache file name for key
func FileName(key string) string {
	return key + ".jpg"
}

func normalize(s string) string {
	s = norm.NFC.String(s)
	s = cases.Fold().String(s)
	return strings.Join(strings.Fields(s), " ")
}
