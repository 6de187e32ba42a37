package deploy

import "fmt"

// Kind is a failure class that is reported on the check run. Anything that
// is not a Kind is returned to the caller instead of being reported.
type Kind int

const (
	KindInvalidConfig Kind = iota + 1
	KindConfigFetchFailed
	KindReplRequestFailed
)

const (
	configErrorTitle   = "Configuration error"
	requestFailedTitle = "HTTP Request to Repl failed"
)

func (k Kind) String() string {
	switch k {
	case KindInvalidConfig:
		return "InvalidConfigError"
	case KindConfigFetchFailed:
		return "ConfigFetchFailedError"
	case KindReplRequestFailed:
		return "ReplRequestFailedError"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Title is the check run title shown for this kind of failure.
func (k Kind) Title() string {
	if k == KindReplRequestFailed {
		return requestFailedTitle
	}

	return configErrorTitle
}

func (k Kind) outcome() string {
	switch k {
	case KindInvalidConfig:
		return outcomeInvalidConfig
	case KindConfigFetchFailed:
		return outcomeConfigFetchFailed
	case KindReplRequestFailed:
		return outcomeReplRequestFailed
	default:
		return outcomeError
	}
}

type Failure struct {
	Kind    Kind
	Message string
}

func (f *Failure) Error() string {
	if f.Message == "" {
		return f.Kind.String()
	}

	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

func InvalidConfig(message string) *Failure {
	return &Failure{Kind: KindInvalidConfig, Message: message}
}

func ConfigFetchFailed(message string) *Failure {
	return &Failure{Kind: KindConfigFetchFailed, Message: message}
}

// ReplRequestFailed carries no message; the status or transport error behind
// it is only logged.
func ReplRequestFailed() *Failure {
	return &Failure{Kind: KindReplRequestFailed}
}
