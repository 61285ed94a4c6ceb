// Package logging configures the shared logrus logger and guarantees that
// secrets never reach a log line unmasked.
package logging

import (
	"regexp"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	mu      sync.RWMutex
	secrets []string
	root    = newLogger("info")
)

// passwordPattern catches password/key/token fragments in query strings or
// key=value text; bearerPattern catches Authorization-style bearer tokens.
var (
	passwordPattern = regexp.MustCompile(`(?i)(password|passwd|pwd|api[_-]?key|token|secret)=([^&\s"']+)`)
	bearerPattern   = regexp.MustCompile(`(?i)bearer\s+([A-Za-z0-9\-._~+/]+=*)`)
)

func newLogger(level string) *logrus.Logger {
	logger := logrus.New()
	logger.Formatter = &maskingFormatter{
		inner: &logrus.TextFormatter{FullTimestamp: true},
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)
	return logger
}

// Init sets the root log level and returns the root entry.
func Init(level string) *logrus.Entry {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	root.SetLevel(lvl)
	return root.WithField("app", "flowport")
}

// Component returns a logger entry tagged with a component name.
func Component(name string) *logrus.Entry {
	return root.WithField("component", name)
}

// AddSecret registers a secret value so the formatter masks every occurrence
// of it, whatever package the line came from.
func AddSecret(secret string) {
	if secret == "" {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	for _, s := range secrets {
		if s == secret {
			return
		}
	}
	secrets = append(secrets, secret)
}

// MaskSecret keeps only the last 3 characters of a secret visible, replacing
// the rest with asterisks. Secrets shorter than 3 characters mask entirely.
func MaskSecret(secret string) string {
	if len(secret) < 3 {
		return "***"
	}
	return strings.Repeat("*", len(secret)-3) + secret[len(secret)-3:]
}

// maskLine applies registered secrets and the built-in patterns to a rendered
// log line.
func maskLine(line string) string {
	mu.RLock()
	registered := secrets
	mu.RUnlock()

	for _, s := range registered {
		line = strings.ReplaceAll(line, s, MaskSecret(s))
	}
	line = passwordPattern.ReplaceAllStringFunc(line, func(m string) string {
		parts := passwordPattern.FindStringSubmatch(m)
		return parts[1] + "=" + MaskSecret(parts[2])
	})
	line = bearerPattern.ReplaceAllStringFunc(line, func(m string) string {
		parts := bearerPattern.FindStringSubmatch(m)
		return m[:len(m)-len(parts[1])] + MaskSecret(parts[1])
	})
	return line
}

// maskingFormatter wraps another formatter and masks secrets in its output.
type maskingFormatter struct {
	inner logrus.Formatter
}

func (f *maskingFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	out, err := f.inner.Format(entry)
	if err != nil {
		return nil, err
	}
	return []byte(maskLine(string(out))), nil
}
