package models

import (
	"encoding/json"
	"strings"
)

// Role is the closed set of message authors.
type Role int

const (
	RoleUnknown Role = iota
	RoleHuman
	RoleAssistant
)

// ParseRole maps a provider author role onto Role. Unrecognized values
// degrade to RoleUnknown.
func ParseRole(raw string) Role {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "user", "human":
		return RoleHuman
	case "assistant":
		return RoleAssistant
	default:
		return RoleUnknown
	}
}

func (r Role) String() string {
	switch r {
	case RoleHuman:
		return "human"
	case RoleAssistant:
		return "assistant"
	default:
		return "unknown"
	}
}

func (r Role) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

func (r *Role) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = ParseRole(raw)
	return nil
}
