package feed

import (
	"strconv"
	"strings"
)

// NaturalID derives a stable row key from a human-readable name. The name is
// lowercased and every run of characters outside [a-z0-9] becomes a single
// dash. An empty slug yields "".
func NaturalID(prefix, name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			dash = false
			b.WriteRune(r)
			continue
		}
		dash = true
	}
	if b.Len() == 0 {
		return ""
	}
	return prefix + "-" + b.String()
}

// NumericID returns the key for a numeric source id, e.g. speaker-12.
func NumericID(prefix string, n int64) string {
	if n <= 0 {
		return ""
	}
	return prefix + "-" + strconv.FormatInt(n, 10)
}

// DefaultColor is used for missing or unrecognized track colors (opaque gray).
const DefaultColor uint32 = 0xFF888888

var namedColors = map[string]uint32{
	"black":     0xFF000000,
	"darkgray":  0xFF444444,
	"gray":      0xFF888888,
	"grey":      0xFF888888,
	"lightgray": 0xFFCCCCCC,
	"white":     0xFFFFFFFF,
	"red":       0xFFFF0000,
	"green":     0xFF00FF00,
	"blue":      0xFF0000FF,
	"yellow":    0xFFFFFF00,
	"cyan":      0xFF00FFFF,
	"magenta":   0xFFFF00FF,
}

// ParseColor converts "#RGB", "#RRGGBB", "#AARRGGBB" or a named color into a
// packed ARGB value. Colors without an alpha channel are opaque.
func ParseColor(s string) int32 {
	s = strings.ToLower(strings.TrimSpace(s))
	if v, ok := namedColors[s]; ok {
		return argb(v)
	}

	hex, ok := strings.CutPrefix(s, "#")
	if !ok {
		return argb(DefaultColor)
	}
	switch len(hex) {
	case 3:
		hex = "ff" + string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	case 6:
		hex = "ff" + hex
	case 8:
	default:
		return argb(DefaultColor)
	}

	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return argb(DefaultColor)
	}
	return argb(uint32(v))
}

func argb(v uint32) int32 {
	return int32(v)
}
