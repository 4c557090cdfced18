// Package config handles chatwire.yaml loading: .env support, ${VAR}
// expansion, defaults and validation.
package config

import (
	"os"
	"regexp"
	"strings"
)

// ${NAME} or ${NAME:-fallback}.
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// ExpandEnv substitutes ${NAME} and ${NAME:-fallback} references in s.
// An unset or empty NAME yields the fallback, or "" without one. A bare $NAME
// is left alone.
func ExpandEnv(s string) string {
	matches := envRef.FindAllStringSubmatchIndex(s, -1)
	if matches == nil {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	last := 0
	for _, m := range matches {
		b.WriteString(s[last:m[0]])
		last = m[1]

		name := s[m[2]:m[3]]
		if v := os.Getenv(name); v != "" {
			b.WriteString(v)
		} else if m[6] >= 0 {
			b.WriteString(s[m[6]:m[7]])
		}
	}
	b.WriteString(s[last:])
	return b.String()
}
