package jingle

// Action is the closed set of negotiation actions this package understands.
type Action uint

const (
	ActionUnknown Action = iota
	ActionSessionInitiate
	ActionSessionAccept
	ActionSessionTerminate
	ActionTransportInfo
	ActionSessionInfo
	ActionAddSource
	ActionRemoveSource
)

var actionNames = [...]string{
	"",
	"session-initiate",
	"session-accept",
	"session-terminate",
	"transport-info",
	"session-info",
	"addsource",
	"removesource",
}

func ParseAction(name string) Action {
	for i, n := range actionNames {
		if i > 0 && n == name {
			return Action(i)
		}
	}
	return ActionUnknown
}

func (a Action) String() string {
	if int(a) >= len(actionNames) || a == ActionUnknown {
		return "unknown"
	}
	return actionNames[a]
}
