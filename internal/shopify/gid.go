package shopify

import (
	"fmt"
	"strconv"
	"strings"
)

const gidPrefix = "gid://shopify/"

// GID builds a Shopify global id such as gid://shopify/Location/42.
func GID(resource string, id int64) string {
	return gidPrefix + resource + "/" + strconv.FormatInt(id, 10)
}

// LocationGID returns the global id of a location.
func LocationGID(id int64) string { return GID("Location", id) }

// NumericID extracts the trailing numeric id from a global id. Plain
// numeric strings are accepted as is.
func NumericID(gid string) (int64, error) {
	s := strings.TrimSpace(gid)
	if i := strings.LastIndex(s, "/"); i >= 0 {
		s = s[i+1:]
	}
	if q := strings.IndexByte(s, '?'); q >= 0 {
		s = s[:q]
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid shopify id %q", gid)
	}
	return id, nil
}

// buildSearchQuery renders a field:value term of the Shopify search syntax,
// quoting values that contain whitespace or quotes.
func buildSearchQuery(field, value string) string {
	value = strings.TrimSpace(value)
	if strings.ContainsAny(value, " \t\"'\\:") {
		escaped := strings.ReplaceAll(value, `\`, `\\`)
		escaped = strings.ReplaceAll(escaped, `"`, `\"`)
		return fmt.Sprintf(`%s:"%s"`, field, escaped)
	}
	return field + ":" + value
}
