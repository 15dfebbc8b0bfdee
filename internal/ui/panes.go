package ui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gdamore/tcell/v2"

	"github.com/samdwyer/mudlink/internal/session"
	"github.com/samdwyer/mudlink/internal/world"
)

type line struct {
	text  string
	style tcell.Style
}

// logLines formats the session log for a pane w columns wide. chatOnly keeps
// just the chat lines.
func (r *Renderer) logLines(entries []session.LogLine, w int, chatOnly bool) []line {
	var out []line
	for _, e := range entries {
		if chatOnly && e.Tone != session.ToneChat {
			continue
		}
		for _, l := range r.entryLines(e) {
			for _, wrapped := range wrap(l.text, w) {
				out = append(out, line{text: wrapped, style: l.style})
			}
		}
	}
	return out
}

func (r *Renderer) entryLines(e session.LogLine) []line {
	switch e.Kind {
	case session.KindStructuredLook:
		return r.lookLines(e)
	case session.KindEcho:
		switch e.Tone {
		case session.ToneError:
			return []line{{"!! " + e.Text, r.style("error")}}
		case session.ToneSystem:
			return []line{{"-- " + e.Text, r.style("system")}}
		default:
			return []line{{e.Text, r.style("echo")}}
		}
	default:
		text := stripTags(e.Text)
		if e.Tone == session.ToneChat {
			if e.Sender != "" {
				text = "[" + e.Sender + "] " + text
			}
			return []line{{text, r.style("chat")}}
		}
		if e.Tone == session.ToneSystem {
			return []line{{text, r.style("system")}}
		}
		return []line{{text, r.style("game")}}
	}
}

// lookLines draws a look result as a small room panel.
func (r *Renderer) lookLines(e session.LogLine) []line {
	if e.Look == nil {
		return []line{{e.Text, r.style("game")}}
	}
	look := e.Look
	game := r.style("game")

	var out []line
	if look.Message != "" {
		out = append(out, line{stripTags(look.Message), game})
	}
	if look.Room.Name != "" {
		out = append(out, line{look.Room.Name, r.chrome("title").Bold(true)})
	}
	if look.Room.Description != "" {
		out = append(out, line{stripTags(look.Room.Description), game})
	}
	if len(look.Room.Exits) > 0 {
		dirs := make([]string, 0, len(look.Room.Exits))
		for dir := range look.Room.Exits {
			dirs = append(dirs, dir)
		}
		sort.Strings(dirs)
		out = append(out, line{"Exits: " + strings.Join(dirs, ", "), r.style("system")})
	}
	if len(look.Characters) > 0 {
		out = append(out, line{"Here: " + strings.Join(look.Characters, ", "), r.style("chat")})
	}
	if len(look.Mobs) > 0 {
		out = append(out, line{"Creatures: " + strings.Join(look.Mobs, ", "), r.style("error")})
	}
	if len(look.Items) > 0 {
		out = append(out, line{"Items: " + strings.Join(look.Items, ", "), game})
	}
	return out
}

func (r *Renderer) inventoryLines(inv *session.Inventory) []line {
	game, head := r.style("game"), r.chrome("title").Bold(true)
	if inv == nil {
		return []line{{"Inventory not loaded.", r.style("system")}}
	}

	out := []line{{"Equipped", head}}
	slots := make([]string, 0, len(inv.Equipped))
	for slot := range inv.Equipped {
		slots = append(slots, slot)
	}
	sort.Strings(slots)
	if len(slots) == 0 {
		out = append(out, line{"  nothing", game})
	}
	for _, slot := range slots {
		out = append(out, line{fmt.Sprintf("  %-10s %s", slot, inv.Equipped[slot].Name), game})
	}

	out = append(out, line{"Backpack", head})
	if len(inv.Backpack) == 0 {
		out = append(out, line{"  empty", game})
	}
	for _, b := range inv.Backpack {
		out = append(out, line{fmt.Sprintf("  %3d x %s", b.Quantity, b.Item.Name), game})
	}

	c := inv.Currency
	out = append(out, line{fmt.Sprintf("Purse: %dp %dg %ds %dc", c.Platinum, c.Gold, c.Silver, c.Copper), game})
	return out
}

// Map cells are spaced so exits can be drawn between rooms.
const (
	mapCellW = 4
	mapCellH = 2
)

// exitOffsets maps a direction to its one-step screen offset. North is up.
var exitOffsets = map[string][2]int{
	"north":     {0, -1},
	"south":     {0, 1},
	"east":      {1, 0},
	"west":      {-1, 0},
	"northeast": {1, -1},
	"northwest": {-1, -1},
	"southeast": {1, 1},
	"southwest": {-1, 1},
}

// mapLines draws the loaded level centred on the current room. Room y grows
// northward.
func (r *Renderer) mapLines(s session.Session, w, h int) []line {
	if s.Map == nil {
		msg := "No map loaded."
		if s.MapStale {
			msg = "Loading map..."
		}
		return []line{{msg, r.style("system")}}
	}

	title := fmt.Sprintf("Level %d", s.Map.Z)
	if s.MapStale {
		title += " (updating)"
	}
	rows := h - 1
	if rows <= 0 {
		return []line{{title, r.chrome("title")}}
	}

	ox, oy := 0, 0
	if cur, ok := s.Map.Room(string(s.CurrentRoomID)); ok {
		ox, oy = cur.X, cur.Y
	} else if s.CurrentRoom != nil {
		ox, oy = s.CurrentRoom.X, s.CurrentRoom.Y
	}

	grid := make([][]rune, rows)
	for i := range grid {
		grid[i] = []rune(strings.Repeat(" ", w))
	}
	put := func(x, y int, ch rune) {
		if y >= 0 && y < rows && x >= 0 && x < w {
			grid[y][x] = ch
		}
	}
	cx, cy := w/2, rows/2

	for _, room := range s.Map.Rooms {
		px := cx + (room.X-ox)*mapCellW
		py := cy - (room.Y-oy)*mapCellH
		for dir := range room.Exits {
			off, ok := exitOffsets[dir]
			if !ok {
				continue
			}
			put(px+off[0]*mapCellW/2, py+off[1]*mapCellH/2, connector(off))
		}
		put(px, py, roomGlyph(room, string(s.CurrentRoomID)))
	}

	out := []line{{title, r.chrome("title")}}
	for _, row := range grid {
		out = append(out, line{string(row), r.style("game")})
	}
	return out
}

func connector(off [2]int) rune {
	switch {
	case off[1] == 0:
		return '-'
	case off[0] == 0:
		return '|'
	case off[0] == off[1]:
		return '\\'
	default:
		return '/'
	}
}

func roomGlyph(room world.Room, current string) rune {
	if room.ID == current {
		return '@'
	}
	switch room.RoomType {
	case "shop":
		return '$'
	case "water":
		return '~'
	default:
		return '#'
	}
}

// wrap breaks text into lines of at most w runes, on spaces where possible.
func wrap(text string, w int) []string {
	if w <= 0 {
		return nil
	}
	var out []string
	for _, para := range strings.Split(text, "\n") {
		runes := []rune(para)
		for len(runes) > w {
			cut := w
			for i := w; i > 0; i-- {
				if runes[i] == ' ' {
					cut = i
					break
				}
			}
			out = append(out, strings.TrimRight(string(runes[:cut]), " "))
			runes = []rune(strings.TrimLeft(string(runes[cut:]), " "))
		}
		out = append(out, string(runes))
	}
	return out
}

// stripTags drops the inline markup the server wraps around game text.
func stripTags(s string) string {
	if !strings.ContainsRune(s, '<') {
		return s
	}
	var b strings.Builder
	depth := 0
	for _, ch := range s {
		switch {
		case ch == '<':
			depth++
		case ch == '>' && depth > 0:
			depth--
		case depth == 0:
			b.WriteRune(ch)
		}
	}
	return b.String()
}
