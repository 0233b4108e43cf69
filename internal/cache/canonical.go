package cache

import (
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// canonicalJSON encodes value with map keys sorted so equal values hash equally.
func canonicalJSON(value any) ([]byte, error) {
	var b strings.Builder
	if err := encodeCanonical(&b, value); err != nil {
		return nil, err
	}
	return []byte(b.String()), nil
}

func encodeCanonical(b *strings.Builder, value any) error {
	switch v := value.(type) {
	case nil:
		b.WriteString("null")
	case []any:
		b.WriteByte('[')
		for i, item := range v {
			if i > 0 {
				b.WriteByte(',')
			}
			if err := encodeCanonical(b, item); err != nil {
				return err
			}
		}
		b.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			encKey, _ := json.Marshal(k)
			b.Write(encKey)
			b.WriteByte(':')
			if err := encodeCanonical(b, v[k]); err != nil {
				return err
			}
		}
		b.WriteByte('}')
	case time.Time:
		b.WriteString(`"` + v.UTC().Format(time.RFC3339Nano) + `"`)
	default:
		enc, err := json.Marshal(v)
		if err != nil {
			return err
		}
		b.Write(enc)
	}
	return nil
}
