// Package auditlog browses and exports the backend's audit trail.
package auditlog

import (
	"encoding/json"
	"sort"
	"time"
)

// Entry is one audited action.
type Entry struct {
	ID              string          `json:"id"`
	ActorID         string          `json:"actor_id"`
	ActorEmail      string          `json:"actor_email"`
	ActorRole       string          `json:"actor_role"`
	RoleDisplay     string          `json:"role_display"`
	ActorIP         string          `json:"actor_ip"`
	Action          string          `json:"action"`
	ActionDisplay   string          `json:"action_display"`
	Entity          string          `json:"entity"`
	EntityDisplay   string          `json:"entity_display"`
	EntityID        string          `json:"entity_id"`
	Timestamp       time.Time       `json:"timestamp"`
	Metadata        json.RawMessage `json:"metadata"`
	ActorLastLogin  *time.Time      `json:"actor_last_login"`
	ActorLastLogout *time.Time      `json:"actor_last_logout"`
}

func (e Entry) Actor() string {
	if e.ActorEmail == "" {
		return "Système"
	}
	return e.ActorEmail
}

func (e Entry) ActionLabel() string {
	if e.ActionDisplay != "" {
		return e.ActionDisplay
	}
	return e.Action
}

func (e Entry) EntityLabel() string {
	if e.EntityDisplay != "" {
		return e.EntityDisplay
	}
	return e.Entity
}

// Field is one metadata key with its value printed for display.
type Field struct {
	Key   string
	Value string
}

// Fields flattens the top level of the metadata object, sorted by key.
// Nested values are printed as compact JSON.
func (e Entry) Fields() []Field {
	var raw map[string]json.RawMessage
	if len(e.Metadata) == 0 || json.Unmarshal(e.Metadata, &raw) != nil {
		return nil
	}
	out := make([]Field, 0, len(raw))
	for k, v := range raw {
		var s string
		if json.Unmarshal(v, &s) != nil {
			s = string(v)
		}
		out = append(out, Field{Key: k, Value: s})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

type entryPage struct {
	Count   int     `json:"count"`
	Results []Entry `json:"results"`
}

// Options are the values the backend offers for the filter bar.
type Options struct {
	Actions  []string `json:"actions"`
	Entities []string `json:"entities"`
	Roles    []string `json:"roles"`
}
