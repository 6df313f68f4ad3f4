package models

import "fmt"

// Action is one of the five fixed policy actions.
type Action int

const (
	ActionBuy Action = iota
	ActionSell
	ActionHold
	ActionIncreaseSize
	ActionDecreaseSize
)

// NumActions is the size of the action space.
const NumActions = 5

// AllActions in enumeration order; argmax ties resolve to the earliest entry.
var AllActions = [NumActions]Action{ActionBuy, ActionSell, ActionHold, ActionIncreaseSize, ActionDecreaseSize}

var actionNames = [NumActions]string{"BUY", "SELL", "HOLD", "INCREASE_SIZE", "DECREASE_SIZE"}

func (a Action) String() string {
	if a.Valid() {
		return actionNames[a]
	}
	return fmt.Sprintf("Action(%d)", int(a))
}

func (a Action) Valid() bool { return a >= 0 && int(a) < NumActions }

// ParseAction converts the wire name back to an Action.
func ParseAction(s string) (Action, error) {
	for i, name := range actionNames {
		if name == s {
			return Action(i), nil
		}
	}
	return 0, fmt.Errorf("unknown action %q", s)
}

func (a Action) MarshalText() ([]byte, error) {
	if !a.Valid() {
		return nil, fmt.Errorf("invalid action %d", int(a))
	}
	return []byte(a.String()), nil
}

func (a *Action) UnmarshalText(b []byte) error {
	parsed, err := ParseAction(string(b))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
