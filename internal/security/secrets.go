package security

import (
	"regexp"
)

type secretPattern struct {
	name       string
	regex      *regexp.Regexp
	redactWith string
}

var defaultSecretPatterns = []struct {
	name       string
	pattern    string
	redactWith string
}{
	// Bot API URLs carry the token in the path.
	{"Telegram Bot URL", `/bot[0-9]+:[A-Za-z0-9_-]+`, "/bot****"},
	{"Telegram Bot Token", `[0-9]{8,10}:[a-zA-Z0-9_-]{35}`, "****:****"},
	{"Bearer Token", `(?i)bearer\s+[A-Za-z0-9\-_.=]+`, "Bearer ****"},
	{"JWT Token", `eyJ[a-zA-Z0-9\-_]+\.eyJ[a-zA-Z0-9\-_]+\.[a-zA-Z0-9\-_]+`, "eyJ****"},
	{"Generic Secret", `(?i)(secret|password|passwd|token)(['"]?\s*[:=]\s*)['"]?[^\s'"]{8,}['"]?`, "$1$2****"},
}

// Redactor replaces known credential shapes with placeholders.
type Redactor struct {
	patterns []*secretPattern
}

func NewRedactor() *Redactor {
	r := &Redactor{patterns: make([]*secretPattern, 0, len(defaultSecretPatterns))}
	for _, p := range defaultSecretPatterns {
		r.patterns = append(r.patterns, &secretPattern{
			name:       p.name,
			regex:      regexp.MustCompile(p.pattern),
			redactWith: p.redactWith,
		})
	}
	return r
}

// Matches names the patterns found in input.
func (r *Redactor) Matches(input string) []string {
	var names []string
	for _, p := range r.patterns {
		if p.regex.MatchString(input) {
			names = append(names, p.name)
		}
	}
	return names
}

func (r *Redactor) Redact(input string) string {
	result := input
	for _, p := range r.patterns {
		result = p.regex.ReplaceAllString(result, p.redactWith)
	}
	return result
}

var defaultRedactor = NewRedactor()

func RedactSecrets(input string) string {
	return defaultRedactor.Redact(input)
}

// RedactError keeps errors.Is and errors.As working on the original error
// while its message is scrubbed.
func RedactError(err error) error {
	if err == nil {
		return nil
	}
	return &redactedError{err: err, msg: RedactSecrets(err.Error())}
}

type redactedError struct {
	err error
	msg string
}

func (e *redactedError) Error() string { return e.msg }
func (e *redactedError) Unwrap() error { return e.err }
