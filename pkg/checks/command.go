package checks

import (
	"encoding/json"
	"fmt"
)

// CommandKind discriminates Add from Remove.
type CommandKind string

const (
	CommandAdd    CommandKind = "Add"
	CommandRemove CommandKind = "Remove"
)

// Command is one entry on the command topic: either an Add carrying a full
// Check, or a Remove carrying only the check_id to drop.
type Command struct {
	ID   string
	Kind CommandKind

	// Check is set when Kind == CommandAdd.
	Check *Check

	// RemoveID is set when Kind == CommandRemove.
	RemoveID string
}

// PartitionKey returns the bus partition key for this command, per §6: the
// command's own id.
func (c Command) PartitionKey() string {
	return c.ID
}

type wireCommand struct {
	ID   string          `json:"id"`
	Kind json.RawMessage `json:"kind"`
}

// MarshalJSON renders {"id":"...","kind":{"Add":{"check":<CheckOutput>}}} or
// {"id":"...","kind":{"Remove":"<uuid>"}}.
func (c Command) MarshalJSON() ([]byte, error) {
	var kind json.RawMessage
	var err error
	switch c.Kind {
	case CommandAdd:
		kind, err = json.Marshal(map[string]struct {
			Check *Check `json:"check"`
		}{"Add": {Check: c.Check}})
	case CommandRemove:
		kind, err = json.Marshal(map[string]string{"Remove": c.RemoveID})
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, c.Kind)
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireCommand{ID: c.ID, Kind: kind})
}

// UnmarshalJSON parses the wire shape described above.
func (c *Command) UnmarshalJSON(data []byte) error {
	var w wireCommand
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("checks: decoding command envelope: %w", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(w.Kind, &raw); err != nil {
		return fmt.Errorf("checks: decoding command kind: %w", err)
	}
	if len(raw) != 1 {
		return fmt.Errorf("checks: command kind object must have exactly one key, got %d", len(raw))
	}

	c.ID = w.ID
	for key, body := range raw {
		switch CommandKind(key) {
		case CommandAdd:
			var payload struct {
				Check *Check `json:"check"`
			}
			if err := json.Unmarshal(body, &payload); err != nil {
				return fmt.Errorf("checks: decoding Add payload: %w", err)
			}
			c.Kind, c.Check = CommandAdd, payload.Check
		case CommandRemove:
			var id string
			if err := json.Unmarshal(body, &id); err != nil {
				return fmt.Errorf("checks: decoding Remove payload: %w", err)
			}
			c.Kind, c.RemoveID = CommandRemove, id
		default:
			return fmt.Errorf("%w: %q", ErrUnknownCommand, key)
		}
	}
	return nil
}
