// Package dispatch folds server-pushed events into the session store.
package dispatch

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/samdwyer/mudlink/internal/session"
)

// Event kinds sent by the server.
const (
	KindWelcome   = "welcome_package"
	KindCombat    = "combat_update"
	KindLook      = "look_response"
	KindVitals    = "vitals_update"
	KindInventory = "inventory_update"
	KindOOC       = "ooc_message"
	KindGameEvent = "game_event"
)

// ErrMalformedEvent marks a known event kind missing a required field.
var ErrMalformedEvent = errors.New("malformed event")

// Event is one parsed server message.
type Event interface {
	Kind() string
}

// Welcome starts a game session.
type Welcome struct {
	Log    []string
	Vitals *session.VitalsUpdate
	Room   *session.RoomData
}

// CombatUpdate reports a combat round, or movement outside combat.
type CombatUpdate struct {
	Log        []string
	CombatOver bool
	Vitals     *session.VitalsUpdate
	Room       *session.RoomData
	// Targets is nil when the event carries no target list.
	Targets []session.CombatTarget
}

// LookResponse describes the surroundings.
type LookResponse struct {
	Look session.LookPayload
}

// VitalsUpdate carries vitals only.
type VitalsUpdate struct {
	Vitals session.VitalsUpdate
}

// InventoryUpdate replaces the inventory.
type InventoryUpdate struct {
	Inventory session.Inventory
}

// Chat is an out-of-character message or a broadcast game event.
type Chat struct {
	Tag     string
	Sender  string
	Message string
}

// Unknown is an event kind this client does not understand yet.
type Unknown struct {
	Tag string
	Raw json.RawMessage
}

func (Welcome) Kind() string         { return KindWelcome }
func (CombatUpdate) Kind() string    { return KindCombat }
func (LookResponse) Kind() string    { return KindLook }
func (VitalsUpdate) Kind() string    { return KindVitals }
func (InventoryUpdate) Kind() string { return KindInventory }
func (c Chat) Kind() string          { return c.Tag }
func (u Unknown) Kind() string       { return u.Tag }

type envelope struct {
	Type string `json:"type"`
}

type roomAndVitals struct {
	Log    []string              `json:"log"`
	Vitals *session.VitalsUpdate `json:"character_vitals"`
	Room   *session.RoomData     `json:"room_data"`
}

// Parse decodes one payload into its event variant. Payloads that are not
// JSON objects return a decode error; known kinds missing required fields
// return an error wrapping ErrMalformedEvent.
func Parse(payload []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}

	switch env.Type {
	case KindWelcome:
		var w roomAndVitals
		if err := json.Unmarshal(payload, &w); err != nil {
			return nil, malformed(env.Type, err.Error())
		}
		if w.Room != nil && w.Room.ID == "" {
			return nil, malformed(env.Type, "room_data.id")
		}
		return Welcome{Log: w.Log, Vitals: w.Vitals, Room: w.Room}, nil

	case KindCombat:
		var w struct {
			roomAndVitals
			CombatOver *bool                  `json:"combat_over"`
			Targets    []session.CombatTarget `json:"combat_targets"`
		}
		if err := json.Unmarshal(payload, &w); err != nil {
			return nil, malformed(env.Type, err.Error())
		}
		if w.CombatOver == nil {
			return nil, malformed(env.Type, "combat_over")
		}
		if w.Room != nil && w.Room.ID == "" {
			return nil, malformed(env.Type, "room_data.id")
		}
		return CombatUpdate{
			Log:        w.Log,
			CombatOver: *w.CombatOver,
			Vitals:     w.Vitals,
			Room:       w.Room,
			Targets:    w.Targets,
		}, nil

	case KindLook:
		var w struct {
			session.LookPayload
			Room *session.RoomData `json:"room_data"`
		}
		if err := json.Unmarshal(payload, &w); err != nil {
			return nil, malformed(env.Type, err.Error())
		}
		if w.Room == nil {
			return nil, malformed(env.Type, "room_data")
		}
		look := w.LookPayload
		look.Room = *w.Room
		return LookResponse{Look: look}, nil

	case KindVitals:
		var w struct {
			Vitals *session.VitalsUpdate `json:"character_vitals"`
		}
		if err := json.Unmarshal(payload, &w); err != nil {
			return nil, malformed(env.Type, err.Error())
		}
		if w.Vitals == nil {
			return nil, malformed(env.Type, "character_vitals")
		}
		return VitalsUpdate{Vitals: *w.Vitals}, nil

	case KindInventory:
		var w struct {
			Inventory *session.Inventory `json:"inventory_data"`
		}
		if err := json.Unmarshal(payload, &w); err != nil {
			return nil, malformed(env.Type, err.Error())
		}
		if w.Inventory == nil {
			return nil, malformed(env.Type, "inventory_data")
		}
		return InventoryUpdate{Inventory: *w.Inventory}, nil

	case KindOOC, KindGameEvent:
		var w struct {
			Message *string `json:"message"`
			Sender  string  `json:"sender"`
		}
		if err := json.Unmarshal(payload, &w); err != nil {
			return nil, malformed(env.Type, err.Error())
		}
		if w.Message == nil {
			return nil, malformed(env.Type, "message")
		}
		return Chat{Tag: env.Type, Sender: w.Sender, Message: *w.Message}, nil

	default:
		return Unknown{Tag: env.Type, Raw: append(json.RawMessage(nil), payload...)}, nil
	}
}

// MalformedError reports which known event kind failed to decode and why.
type MalformedError struct {
	Kind   string
	Detail string
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed %s event: %s", e.Kind, e.Detail)
}

// Is matches ErrMalformedEvent.
func (e *MalformedError) Is(target error) bool { return target == ErrMalformedEvent }

func malformed(kind, detail string) error {
	return &MalformedError{Kind: kind, Detail: detail}
}
