// Package keys maps tile addresses to cache keys.
package keys

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/mohammed-shakir/vtile-cache/internal/core/model"
)

const (
	Ext     = ".pbf"
	GzipExt = ".gz"
)

// Tile returns "<tileset>/<z>/<x>/<y>.pbf", with ".gz" appended for the
// compressed variant. The tileset segment is escaped so the mapping stays
// injective and never contains a separator or a dot segment.
func Tile(a model.TileAddress) string {
	var b strings.Builder
	b.Grow(len(a.Tileset) + 32)
	b.WriteString(EscapeSegment(a.Tileset))
	b.WriteByte('/')
	b.WriteString(strconv.FormatUint(uint64(a.Zoom), 10))
	b.WriteByte('/')
	b.WriteString(strconv.FormatUint(uint64(a.X), 10))
	b.WriteByte('/')
	b.WriteString(strconv.FormatUint(uint64(a.Y), 10))
	b.WriteString(Ext)
	if a.Compressed {
		b.WriteString(GzipExt)
	}
	return b.String()
}

// Variants returns the plain and gzip keys of the same logical tile.
func Variants(tileset string, z, x, y uint32) []string {
	a := model.TileAddress{Tileset: tileset, Zoom: z, X: x, Y: y}
	plain := Tile(a)
	a.Compressed = true
	return []string{plain, Tile(a)}
}

// TilesetPrefix is the key prefix shared by every tile of a tileset.
func TilesetPrefix(tileset string) string {
	return EscapeSegment(tileset) + "/"
}

// ETag is a strong validator over tile bytes.
func ETag(data []byte) string {
	return fmt.Sprintf(`"%016x"`, xxhash.Sum64(data))
}

// EscapeSegment percent-encodes every byte outside [A-Za-z0-9_-].
// An empty name becomes a lone "%", which no other input can produce.
func EscapeSegment(s string) string {
	if s == "" {
		return "%"
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isSafe(c) {
			b.WriteByte(c)
			continue
		}
		fmt.Fprintf(&b, "%%%02X", c)
	}
	return b.String()
}

func isSafe(c byte) bool {
	return (c >= 'a' && c <= 'z') ||
		(c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9') ||
		c == '_' || c == '-'
}
