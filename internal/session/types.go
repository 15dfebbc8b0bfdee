package session

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ID is an opaque identifier. The backend sends some ids as strings and some
// as numbers; both decode into the same textual form.
type ID string

// UnmarshalJSON accepts a JSON string or number.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// String returns the id as text.
func (id ID) String() string { return string(id) }

// Meter is a current/max pair such as hit points.
type Meter struct {
	Current int `json:"current"`
	Max     int `json:"max"`
}

// Clamped returns Current limited to [0, Max]. The stored value is never
// clamped; use this only when drawing.
func (m Meter) Clamped() int {
	if m.Current < 0 {
		return 0
	}
	if m.Max >= 0 && m.Current > m.Max {
		return m.Max
	}
	return m.Current
}

// Vitals is the character's resource and purse state.
type Vitals struct {
	HP       Meter
	MP       Meter
	XP       Meter
	Level    int
	Platinum int
	Gold     int
	Silver   int
	Copper   int
}

// VitalsUpdate is a partial vitals payload. Nil fields leave the stored value
// untouched.
type VitalsUpdate struct {
	CurrentHP   *int `json:"current_hp,omitempty"`
	MaxHP       *int `json:"max_hp,omitempty"`
	CurrentMP   *int `json:"current_mp,omitempty"`
	MaxMP       *int `json:"max_mp,omitempty"`
	CurrentXP   *int `json:"current_xp,omitempty"`
	NextLevelXP *int `json:"next_level_xp,omitempty"`
	Level       *int `json:"level,omitempty"`
	Platinum    *int `json:"platinum,omitempty"`
	Gold        *int `json:"gold,omitempty"`
	Silver      *int `json:"silver,omitempty"`
	Copper      *int `json:"copper,omitempty"`
}

// mergeInto writes every present field of u onto v.
func (u VitalsUpdate) mergeInto(v *Vitals) {
	set := func(dst *int, src *int) {
		if src != nil {
			*dst = *src
		}
	}
	set(&v.HP.Current, u.CurrentHP)
	set(&v.HP.Max, u.MaxHP)
	set(&v.MP.Current, u.CurrentMP)
	set(&v.MP.Max, u.MaxMP)
	set(&v.XP.Current, u.CurrentXP)
	set(&v.XP.Max, u.NextLevelXP)
	set(&v.Level, u.Level)
	set(&v.Platinum, u.Platinum)
	set(&v.Gold, u.Gold)
	set(&v.Silver, u.Silver)
	set(&v.Copper, u.Copper)
}

// Character is one of the account's characters.
type Character struct {
	ID        ID     `json:"id"`
	Name      string `json:"name"`
	ClassName string `json:"class_name"`
	Level     int    `json:"level"`
}

// Class is a character class template offered during creation.
type Class struct {
	ID          ID     `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Item is a single item definition.
type Item struct {
	ID          ID     `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	ItemType    string `json:"item_type,omitempty"`
	Slot        string `json:"slot,omitempty"`
}

// BackpackEntry is a stack of items carried but not equipped.
type BackpackEntry struct {
	ID       ID   `json:"id"`
	Item     Item `json:"item"`
	Quantity int  `json:"quantity"`
}

// Currency is a purse broken down by coin.
type Currency struct {
	Platinum int `json:"platinum"`
	Gold     int `json:"gold"`
	Silver   int `json:"silver"`
	Copper   int `json:"copper"`
}

// Inventory is the character's full inventory snapshot.
type Inventory struct {
	Equipped map[string]Item `json:"equipped"`
	Backpack []BackpackEntry `json:"backpack"`
	Currency Currency        `json:"currency"`
}

func (inv *Inventory) clone() *Inventory {
	if inv == nil {
		return nil
	}
	out := &Inventory{Currency: inv.Currency}
	if inv.Equipped != nil {
		out.Equipped = make(map[string]Item, len(inv.Equipped))
		for slot, item := range inv.Equipped {
			out.Equipped[slot] = item
		}
	}
	out.Backpack = append([]BackpackEntry(nil), inv.Backpack...)
	return out
}

// CombatTarget is an opponent in the current fight.
type CombatTarget struct {
	ID   ID     `json:"id"`
	Name string `json:"name"`
	HP   Meter  `json:"hp"`
}

// UnmarshalJSON reads the backend's flat current_hp/max_hp fields.
func (t *CombatTarget) UnmarshalJSON(data []byte) error {
	var wire struct {
		ID        ID     `json:"id"`
		Name      string `json:"name"`
		CurrentHP int    `json:"current_hp"`
		MaxHP     int    `json:"max_hp"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*t = CombatTarget{ID: wire.ID, Name: wire.Name, HP: Meter{Current: wire.CurrentHP, Max: wire.MaxHP}}
	return nil
}

// RoomData is the server's description of a room.
type RoomData struct {
	ID          ID                `json:"id"`
	Name        string            `json:"name,omitempty"`
	Description string            `json:"description,omitempty"`
	X           int               `json:"x"`
	Y           int               `json:"y"`
	Z           int               `json:"z"`
	Exits       map[string]ID     `json:"exits,omitempty"`
	RoomType    string            `json:"room_type,omitempty"`
}

// LookPayload is the structured result of looking around, rendered as a room
// panel rather than plain text.
type LookPayload struct {
	Room       RoomData `json:"room_data"`
	Message    string   `json:"message,omitempty"`
	Characters []string `json:"characters_here,omitempty"`
	Mobs       []string `json:"mobs_here,omitempty"`
	Items      []string `json:"items_here,omitempty"`
}

// LogKind selects how the presentation layer renders a log line.
type LogKind int

const (
	// KindMarkup is server-provided game text.
	KindMarkup LogKind = iota
	// KindStructuredLook carries a LookPayload.
	KindStructuredLook
	// KindEcho repeats what the player typed or a client-produced notice.
	KindEcho
)

// String returns the kind name.
func (k LogKind) String() string {
	switch k {
	case KindMarkup:
		return "markup"
	case KindStructuredLook:
		return "structured_look"
	case KindEcho:
		return "echo"
	default:
		return "unknown"
	}
}

// Tone distinguishes ordinary game text from client notices and failures.
type Tone int

const (
	ToneGame Tone = iota
	ToneSystem
	ToneError
	ToneChat
)

// String returns the tone name.
func (t Tone) String() string {
	switch t {
	case ToneGame:
		return "game"
	case ToneSystem:
		return "system"
	case ToneError:
		return "error"
	case ToneChat:
		return "chat"
	default:
		return "unknown"
	}
}

// LogLine is one entry of the session log. ID is assigned by the store.
type LogLine struct {
	ID     uint64
	Kind   LogKind
	Tone   Tone
	Text   string
	Sender string
	Look   *LookPayload
}

// Content tabs shown by the presentation layer.
const (
	TabLog       = "log"
	TabChat      = "chat"
	TabInventory = "inventory"
	TabMap       = "map"
)

// Tabs lists every valid tab name.
var Tabs = []string{TabLog, TabChat, TabInventory, TabMap}

// ValidTab reports whether name is a known tab.
func ValidTab(name string) bool {
	for _, t := range Tabs {
		if t == name {
			return true
		}
	}
	return false
}
