// Package world provides the map level model shared by the store and the
// request client.
package world

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Room is a single room on a map level.
type Room struct {
	ID       string            `json:"id"`
	X        int               `json:"x"`
	Y        int               `json:"y"`
	Exits    map[string]string `json:"exits,omitempty"`
	RoomType string            `json:"room_type,omitempty"`
}

// UnmarshalJSON accepts numeric room ids, for the room and its exits, as well
// as strings.
func (r *Room) UnmarshalJSON(data []byte) error {
	type plain Room
	var wire struct {
		plain
		ID    json.RawMessage            `json:"id"`
		Exits map[string]json.RawMessage `json:"exits"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*r = Room(wire.plain)

	id, err := flexID(wire.ID)
	if err != nil {
		return fmt.Errorf("room id: %w", err)
	}
	r.ID = id
	r.Exits = nil
	if len(wire.Exits) > 0 {
		r.Exits = make(map[string]string, len(wire.Exits))
		for dir, raw := range wire.Exits {
			to, err := flexID(raw)
			if err != nil {
				return fmt.Errorf("exit %s: %w", dir, err)
			}
			r.Exits[dir] = to
		}
	}
	return nil
}

// flexID reads a JSON string or number as text. Null and absent are empty.
func flexID(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		err := json.Unmarshal(raw, &s)
		return s, err
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("must be a string or number: %w", err)
	}
	return n.String(), nil
}

// HasExit returns true if the room has an exit in the given direction.
func (r Room) HasExit(dir string) bool {
	_, ok := r.Exits[dir]
	return ok
}

// Level is one z-level of the world map as served by the backend.
type Level struct {
	Z     int    `json:"z_level"`
	Rooms []Room `json:"rooms"`

	byID map[string]int
}

// NewLevel builds a level and indexes its rooms by id.
func NewLevel(z int, rooms []Room) *Level {
	l := &Level{Z: z, Rooms: rooms}
	l.index()
	return l
}

func (l *Level) index() {
	l.byID = make(map[string]int, len(l.Rooms))
	for i, r := range l.Rooms {
		l.byID[r.ID] = i
	}
}

// Room returns the room with the given id, or false if the level has none.
func (l *Level) Room(id string) (Room, bool) {
	if l == nil {
		return Room{}, false
	}
	if l.byID == nil || len(l.byID) != len(l.Rooms) {
		l.index()
	}
	i, ok := l.byID[id]
	if !ok {
		return Room{}, false
	}
	return l.Rooms[i], true
}

// Contains returns true if the level has a room with the given id.
func (l *Level) Contains(id string) bool {
	_, ok := l.Room(id)
	return ok
}

// Neighbors returns the room ids reachable from id, sorted by direction.
func (l *Level) Neighbors(id string) []string {
	r, ok := l.Room(id)
	if !ok {
		return nil
	}
	dirs := make([]string, 0, len(r.Exits))
	for d := range r.Exits {
		dirs = append(dirs, d)
	}
	sort.Strings(dirs)
	out := make([]string, 0, len(dirs))
	for _, d := range dirs {
		out = append(out, r.Exits[d])
	}
	return out
}

// Clone returns a deep copy of the level.
func (l *Level) Clone() *Level {
	if l == nil {
		return nil
	}
	rooms := make([]Room, len(l.Rooms))
	for i, r := range l.Rooms {
		rooms[i] = r
		if r.Exits != nil {
			rooms[i].Exits = make(map[string]string, len(r.Exits))
			for d, to := range r.Exits {
				rooms[i].Exits[d] = to
			}
		}
	}
	return NewLevel(l.Z, rooms)
}
