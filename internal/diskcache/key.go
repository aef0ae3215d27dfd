package diskcache

import (
	"crypto/md5"
	"encoding/hex"
)

// KeyFor returns the content-addressed hex-MD5 journal key for a cacheable
// GET request's canonical URL, matching spec.md §6's disk cache format
// (one key, two files: "<key>.0" metadata, "<key>.1" body).
func KeyFor(canonicalURL string) string {
	sum := md5.Sum([]byte(canonicalURL))
	return hex.EncodeToString(sum[:])
}
