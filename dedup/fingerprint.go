package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

const normalizedPlaceholder = "<normalized>"

// DefaultVolatileFields are payload keys that change on every request without
// changing its meaning. They are masked before hashing so two requests that
// differ only in these fields still coalesce.
var DefaultVolatileFields = []string{
	"sessionId",
	"startedAt",
	"expiresAt",
	"timestamp",
	"createdAt",
	"updatedAt",
}

// Fingerprinter maps a request description onto a stable deduplication key.
type Fingerprinter struct {
	volatile map[string]struct{}
}

func NewFingerprinter(volatileFields []string) *Fingerprinter {
	if volatileFields == nil {
		volatileFields = DefaultVolatileFields
	}
	volatile := make(map[string]struct{}, len(volatileFields))
	for _, field := range volatileFields {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		volatile[field] = struct{}{}
	}
	return &Fingerprinter{volatile: volatile}
}

// Fingerprint derives the cache key for (kind, key, payload). It is pure:
// identical logical inputs produce identical tokens regardless of map
// ordering. Kind and key are case-folded, volatile payload fields are masked
// at every nesting level, and the canonical form is hashed.
func (f *Fingerprinter) Fingerprint(kind string, key string, payload map[string]any) string {
	var b strings.Builder
	b.WriteString(`{"endpoint":`)
	b.WriteString(encodeJSONString(strings.ToLower(strings.TrimSpace(key))))
	b.WriteString(`,"kind":`)
	b.WriteString(encodeJSONString(strings.ToUpper(strings.TrimSpace(kind))))
	b.WriteString(`,"payload":`)
	f.writeCanonical(&b, payload)
	b.WriteString("}")

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// writeCanonical renders value as JSON with object keys sorted and volatile
// fields replaced by the placeholder.
func (f *Fingerprinter) writeCanonical(b *strings.Builder, value any) {
	switch v := value.(type) {
	case nil:
		b.WriteString("{}")
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		b.WriteString("{")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(",")
			}
			b.WriteString(encodeJSONString(k))
			b.WriteString(":")
			if _, ok := f.volatile[k]; ok {
				b.WriteString(encodeJSONString(normalizedPlaceholder))
				continue
			}
			f.writeCanonicalValue(b, v[k])
		}
		b.WriteString("}")
	default:
		f.writeCanonicalValue(b, value)
	}
}

func (f *Fingerprinter) writeCanonicalValue(b *strings.Builder, value any) {
	switch v := value.(type) {
	case map[string]any:
		f.writeCanonical(b, v)
	case []any:
		b.WriteString("[")
		for i, item := range v {
			if i > 0 {
				b.WriteString(",")
			}
			f.writeCanonicalValue(b, item)
		}
		b.WriteString("]")
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			// Unserializable values are coerced to their string form so the
			// fingerprint stays deterministic instead of failing.
			b.WriteString(encodeJSONString(coerceString(v)))
			return
		}
		b.Write(encoded)
	}
}

func encodeJSONString(s string) string {
	encoded, err := json.Marshal(s)
	if err != nil {
		return `""`
	}
	return string(encoded)
}

func coerceString(v any) string {
	return fmt.Sprintf("%v", v)
}
