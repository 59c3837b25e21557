// Package security keeps secrets out of logs and bounds what the HTTP API
// accepts: redaction, an audit trail, rate limits and request validation.
package security

import (
	"os"
	"regexp"
	"strings"
	"sync"
)

// RedactPlaceholder replaces every redacted secret.
const RedactPlaceholder = "***REDACTED***"

// secretKeyPattern matches config keys that hold secrets.
var secretKeyPattern = regexp.MustCompile(`(?i)(secret|token|password|api_key|credential|basic_pass)`)

// Redactor replaces known secret formats and registered literal values.
// It is safe for concurrent use.
type Redactor struct {
	mu       sync.RWMutex
	patterns []*regexp.Regexp
	literals []string
}

// NewRedactor returns a redactor loaded with DefaultPatterns.
func NewRedactor() *Redactor {
	return &Redactor{patterns: DefaultPatterns()}
}

// AddLiteral registers a value to redact wherever it appears. Values shorter
// than 8 bytes are ignored so common words are never blanked out.
func (r *Redactor) AddLiteral(secret string) {
	if len(secret) < 8 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.literals = append(r.literals, secret)
}

// AddEnv registers the current values of the named environment variables.
func (r *Redactor) AddEnv(names ...string) {
	for _, name := range names {
		r.AddLiteral(os.Getenv(name))
	}
}

// Redact returns s with every known secret replaced.
func (r *Redactor) Redact(s string) string {
	if s == "" {
		return s
	}
	r.mu.RLock()
	patterns, literals := r.patterns, r.literals
	r.mu.RUnlock()

	for _, p := range patterns {
		s = p.ReplaceAllString(s, RedactPlaceholder)
	}
	for _, lit := range literals {
		s = strings.ReplaceAll(s, lit, RedactPlaceholder)
	}
	return s
}

// RedactMap redacts a decoded YAML or JSON document in place: values under
// secret-looking keys are replaced and every other string is scanned.
func (r *Redactor) RedactMap(m map[string]any) {
	for k, v := range m {
		if s, ok := v.(string); ok && s != "" && secretKeyPattern.MatchString(k) {
			m[k] = RedactPlaceholder
			continue
		}
		m[k] = r.redactValue(v)
	}
}

func (r *Redactor) redactValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		r.RedactMap(val)
	case []any:
		for i := range val {
			val[i] = r.redactValue(val[i])
		}
	case string:
		return r.Redact(val)
	}
	return v
}

// DefaultPatterns matches the API key formats of the supported providers
// and bearer credentials.
func DefaultPatterns() []*regexp.Regexp {
	return []*regexp.Regexp{
		regexp.MustCompile(`sk-ant-[a-zA-Z0-9\-_]{20,}`),
		regexp.MustCompile(`sk-(proj-)?[a-zA-Z0-9\-_]{20,}`),
		regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9\-._~+/]{16,}=*`),
	}
}
