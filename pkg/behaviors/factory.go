package behaviors

import (
	"fmt"
	"log/slog"

	"github.com/callstorm/callstorm/pkg/originator"
)

// New builds a behavior by its plan name.
func New(name string, log *slog.Logger) (originator.Behavior, error) {
	switch name {
	case "park":
		return NewPark(), nil
	case "conversation":
		return NewConversation(log), nil
	case "dtmf":
		return NewDtmfChecker(log), nil
	default:
		return nil, fmt.Errorf("unknown behavior %q", name)
	}
}

// Names lists the behaviors New can build.
func Names() []string {
	return []string{"park", "conversation", "dtmf"}
}
