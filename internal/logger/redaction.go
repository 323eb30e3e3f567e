package logger

import (
	"io"
	"regexp"
)

// Redactor scrubs credentials from log output. A runtime that shells out
// against real targets ends up with API keys and captured secrets in tool
// output, and those must not land in log files.
type Redactor struct {
	patterns []*regexp.Regexp
}

// NewRedactor creates a redactor with the default pattern set.
func NewRedactor() *Redactor {
	return &Redactor{
		patterns: []*regexp.Regexp{
			// Anthropic and OpenAI API keys
			regexp.MustCompile(`sk-ant-[a-zA-Z0-9_-]{20,}`),
			regexp.MustCompile(`sk-[a-zA-Z0-9_-]{20,}`),

			// Bearer tokens
			regexp.MustCompile(`Bearer\s+[a-zA-Z0-9._-]+`),

			// AWS access keys
			regexp.MustCompile(`AKIA[0-9A-Z]{16}`),

			// Passwords and generic secrets in key=value or JSON form
			regexp.MustCompile(`password["\s:=]+[^\s"]+`),
			regexp.MustCompile(`passwd["\s:=]+[^\s"]+`),
			regexp.MustCompile(`token["\s:=]+[a-zA-Z0-9._-]{20,}`),
			regexp.MustCompile(`secret["\s:=]+[^\s"]+`),
		},
	}
}

// AddPattern registers an additional redaction pattern.
func (r *Redactor) AddPattern(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	r.patterns = append(r.patterns, re)
	return nil
}

// Redact replaces every sensitive match with a placeholder.
func (r *Redactor) Redact(s string) string {
	for _, pattern := range r.patterns {
		s = pattern.ReplaceAllString(s, "[REDACTED]")
	}
	return s
}

// Wrap returns a writer that redacts everything passing through it.
func (r *Redactor) Wrap(w io.Writer) io.Writer {
	return &redactingWriter{writer: w, redactor: r}
}

type redactingWriter struct {
	writer   io.Writer
	redactor *Redactor
}

func (w *redactingWriter) Write(p []byte) (int, error) {
	redacted := w.redactor.Redact(string(p))
	if _, err := w.writer.Write([]byte(redacted)); err != nil {
		return 0, err
	}
	// Report the original length so zerolog does not see a short write
	// when redaction shrinks the payload.
	return len(p), nil
}
