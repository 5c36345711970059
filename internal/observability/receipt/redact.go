package receipt

import (
	"regexp"
	"strings"
)

// secretFlags name flags whose value is always hidden.
var secretFlags = map[string]bool{
	"token":         true,
	"api-key":       true,
	"apikey":        true,
	"key":           true,
	"password":      true,
	"secret":        true,
	"auth":          true,
	"bearer":        true,
	"credential":    true,
	"credentials":   true,
	"access-token":  true,
	"refresh-token": true,
	"private-key":   true,
}

// commandFlags carry a whole command line; their tokens are redacted
// individually so the analyzer name stays readable.
var commandFlags = map[string]bool{
	"analyzer-cmd": true,
}

var secretPrefixes = []string{
	"sk-", "ghp_", "github_pat_", "gho_", "ghs_", "xoxb-", "xoxp-",
	"AKIA", "ya29.", "AIza", "npm_", "pypi-",
}

var (
	jwtPattern   = regexp.MustCompile(`^[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}$`)
	opaqueSecret = regexp.MustCompile(`^[A-Za-z0-9+/=_-]{32,}$`)
)

const redactedValue = "[REDACTED]"

// RedactArgs hides secret values in CLI arguments. It reports whether
// anything was changed.
func RedactArgs(args []string) ([]string, bool) {
	if len(args) == 0 {
		return args, false
	}

	out := make([]string, len(args))
	changed := false
	for i := 0; i < len(args); i++ {
		arg := args[i]

		if eq := strings.Index(arg, "="); eq > 0 && strings.HasPrefix(arg, "-") {
			name, value := flagName(arg[:eq]), arg[eq+1:]
			switch {
			case secretFlags[name] || looksSecret(value):
				out[i] = arg[:eq+1] + redactedValue
				changed = true
			case commandFlags[name]:
				v, c := redactCommand(value)
				out[i] = arg[:eq+1] + v
				changed = changed || c
			default:
				out[i] = arg
			}
			continue
		}

		if strings.HasPrefix(arg, "-") && i+1 < len(args) {
			name := flagName(arg)
			if secretFlags[name] {
				out[i], out[i+1] = arg, redactedValue
				i++
				changed = true
				continue
			}
			if commandFlags[name] {
				v, c := redactCommand(args[i+1])
				out[i], out[i+1] = arg, v
				i++
				changed = changed || c
				continue
			}
		}

		if looksSecret(arg) {
			out[i] = redactedValue
			changed = true
			continue
		}
		out[i] = arg
	}
	return out, changed
}

func redactCommand(cmd string) (string, bool) {
	fields := strings.Fields(cmd)
	red, changed := RedactArgs(fields)
	if !changed {
		return cmd, false
	}
	return strings.Join(red, " "), true
}

func flagName(s string) string {
	return strings.ToLower(strings.TrimLeft(s, "-"))
}

func looksSecret(value string) bool {
	for _, p := range secretPrefixes {
		if strings.HasPrefix(value, p) {
			return true
		}
	}
	if jwtPattern.MatchString(value) {
		return true
	}
	// Paths and hostnames are long too; only bare opaque strings count.
	if len(value) >= 32 && !strings.ContainsAny(value, "/.") {
		return opaqueSecret.MatchString(value)
	}
	return false
}
