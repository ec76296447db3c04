package vpn

import "github.com/go-kit/kit/log"

// sensitiveKeys names the log fields that must never carry a raw value:
// full response bodies may be logged only at a guarded verbosity, and
// auth cookies, passwords, and challenge tokens must be elided first.
var sensitiveKeys = map[string]bool{
	"authcookie":      true,
	"auth_cookie":     true,
	"password":        true,
	"passwd":          true,
	"inputStr":        true,
	"input_token":     true,
	"challenge_token": true,
}

const redactedValue = "<redacted>"

// redactingLogger wraps a log.Logger, scrubbing known-sensitive keyed
// values before they ever reach the inner logger. Values are replaced
// rather than dropped, so operators can still see that a field was
// present without the field leaking its contents.
type redactingLogger struct {
	next log.Logger
}

// NewRedactingLogger wraps logger so every Log call has sensitive
// key/value pairs scrubbed first.
func NewRedactingLogger(logger log.Logger) log.Logger {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &redactingLogger{next: logger}
}

func (l *redactingLogger) Log(keyvals ...interface{}) error {
	scrubbed := make([]interface{}, len(keyvals))
	copy(scrubbed, keyvals)
	for i := 0; i+1 < len(scrubbed); i += 2 {
		key, ok := scrubbed[i].(string)
		if ok && sensitiveKeys[key] {
			scrubbed[i+1] = redactedValue
		}
	}
	return l.next.Log(scrubbed...)
}
