// Package exitcode defines the process exit statuses skillvet reports to CI.
package exitcode

const (
	// OK means the run completed and no gate blocked it.
	OK = 0
	// Failure covers scan errors, bad allowlist files and bad arguments.
	Failure = 1
	// ExpiredAllowlist is used when expired rules are present and the run
	// was asked to fail on them.
	ExpiredAllowlist = 2
	// BlockCritical is returned when the block-critical gate trips.
	BlockCritical = 3
	// BlockHigh is returned when the block-high gate trips.
	BlockHigh = 4
	// Interrupted follows the shell convention of 128+SIGINT.
	Interrupted = 130
)

// Describe returns a short label for code.
func Describe(code int) string {
	switch code {
	case OK:
		return "ok"
	case Failure:
		return "failure"
	case ExpiredAllowlist:
		return "expired-allowlist"
	case BlockCritical:
		return "gate-block-critical"
	case BlockHigh:
		return "gate-block-high"
	case Interrupted:
		return "interrupted"
	default:
		return "unknown"
	}
}
