package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Fingerprint derives the stable identity of a feed entry from its title and
// link. The GUID stands in for the link only when the link is empty, so an
// unreliable GUID never splits one disclosure into two identities.
func Fingerprint(title, link, guid string) string {
	key := normalize(link)
	if key == "" {
		key = normalize(guid)
	}
	sum := sha256.Sum256([]byte(normalize(title) + "|" + key))
	return hex.EncodeToString(sum[:])
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
