package services

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"unicode/utf8"

	"github.com/zatekoja/kpitelemetry/internal/domain/entities"
)

const (
	userHashLength    = 16
	maxPlainQueryLen  = 10
	maskedQueryPrefix = 3
)

// piiKeys are stripped from open event attributes.
var piiKeys = []string{
	"email", "phone", "phone_number", "address", "name",
	"first_name", "last_name", "full_name", "ip_address",
}

// HashUserID returns the first 16 hex chars of the SHA-256 digest of id.
func HashUserID(id string) string {
	sum := sha256.Sum256([]byte(id))
	return hex.EncodeToString(sum[:])[:userHashLength]
}

// MaskQuery shortens queries over 10 characters to "<first 3>...[<len> chars]".
func MaskQuery(q string) string {
	n := utf8.RuneCountInString(q)
	if n <= maxPlainQueryLen {
		return q
	}
	return fmt.Sprintf("%s...[%d chars]", string([]rune(q)[:maskedQueryPrefix]), n)
}

// Anonymize returns a sanitized copy of e marked Anonymized. User id and query
// of an event already marked are left as they are, so applying it to its own
// output changes nothing.
func Anonymize(e *entities.Event) *entities.Event {
	out := e.Clone()
	for _, k := range piiKeys {
		delete(out.Extra, k)
	}
	if out.Anonymized {
		return out
	}
	out.Anonymized = true

	if out.UserID != "" {
		out.UserID = HashUserID(out.UserID)
	}

	if p, ok := out.Search(); ok {
		if masked := MaskQuery(p.Query); masked != p.Query {
			cp := *p
			cp.Query = masked
			out.Payload = &cp
		}
	}
	return out
}
