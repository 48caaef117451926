package utils

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
	"time"
	"unicode"
)

// EventHash is the content hash ingesters store in event_hash: md5 over
// title+date+location, lower-cased with every whitespace rune removed, so the same
// listing scraped twice collides on the unique index.
func EventHash(title string, date time.Time, location string) string {
	composite := strings.ToLower(title + date.UTC().Format(time.RFC3339) + location)
	composite = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, composite)
	sum := md5.Sum([]byte(composite))
	return hex.EncodeToString(sum[:])
}
