package netutil

import (
	"strconv"
	"strings"
)

// NaturalLess orders generated object names so that numeric suffixes
// compare numerically: host_2 sorts before host_10. Names split on the
// final underscore; the prefix compares lexically, the suffix as an
// integer when it is one.
func NaturalLess(a, b string) bool {
	ap, an := splitOrdinal(a)
	bp, bn := splitOrdinal(b)
	if ap != bp {
		return ap < bp
	}
	return an < bn
}

func splitOrdinal(name string) (string, int) {
	i := strings.LastIndex(name, "_")
	if i < 0 {
		return name, 0
	}
	n, err := strconv.Atoi(name[i+1:])
	if err != nil {
		return name, 0
	}
	return name[:i], n
}
