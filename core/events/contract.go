package events

import "strings"

const (
	// TypePrefix namespaces every contract event type.
	TypePrefix = "ecorelease."
	// TypeInstantiated is emitted once the contract state is created.
	TypeInstantiated = TypePrefix + "instantiated"
)

// Attribute mirrors a single contract log entry.
type Attribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// ContractEvent is emitted after an invocation has been committed.
type ContractEvent struct {
	Type       string      `json:"type"`
	Height     int64       `json:"height"`
	Receipt    string      `json:"receipt"`
	Signer     string      `json:"signer"`
	Attributes []Attribute `json:"attributes"`
}

// EventType implements Event.
func (e ContractEvent) EventType() string { return e.Type }

// Attr returns the value for key, or "" when absent.
func (e ContractEvent) Attr(key string) string {
	for _, a := range e.Attributes {
		if a.Key == key {
			return a.Value
		}
	}
	return ""
}

// TypeForAction maps a contract "action" log value to an event type.
func TypeForAction(action string) string {
	action = strings.TrimSpace(action)
	if action == "" {
		return TypePrefix + "unknown"
	}
	return TypePrefix + action
}
