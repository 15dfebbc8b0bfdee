package ui

import (
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"

	"github.com/samdwyer/mudlink/internal/gamedata"
	"github.com/samdwyer/mudlink/internal/session"
)

// View is everything drawn in one frame.
type View struct {
	Session session.Session
	// Input is the text typed so far.
	Input string
	// Connection names the push channel state.
	Connection string
	// Busy is set while a submission is being handled.
	Busy bool
}

// Renderer handles drawing the client to the screen.
type Renderer struct {
	screen *Screen
	theme  gamedata.Theme
}

// NewRenderer creates a new renderer for the given screen.
func NewRenderer(screen *Screen, theme gamedata.Theme) *Renderer {
	return &Renderer{screen: screen, theme: theme}
}

// Render draws a frame: status bar, tab bar, the active pane, combat targets
// and the input prompt.
func (r *Renderer) Render(v View) {
	r.screen.Clear()
	defer r.screen.Show()

	w, h := r.screen.Size()
	if w < 10 || h < 5 {
		r.drawText(0, 0, w, "Window too small", r.style("error"))
		return
	}
	s := v.Session

	r.drawStatus(0, w, s, v.Connection)
	r.drawTabs(1, w, s)

	bottom := h - 1
	if s.InCombat && len(s.CombatTargets) > 0 {
		bottom--
		r.drawTargets(bottom, w, s.CombatTargets)
	}
	r.drawPane(2, bottom, w, s)
	r.drawPrompt(h-1, w, s.Phase, v.Input, v.Busy)
}

func (r *Renderer) style(tone string) tcell.Style {
	return tcell.StyleDefault.Foreground(r.theme.Tone(tone))
}

func (r *Renderer) chrome(name string) tcell.Style {
	return tcell.StyleDefault.Foreground(r.theme.ChromeColor(name))
}

func (r *Renderer) drawStatus(y, w int, s session.Session, conn string) {
	if s.Phase != session.PhaseInGame {
		r.drawText(0, y, w, "mudlink", r.chrome("title").Bold(true))
		return
	}

	x := r.drawText(0, y, w, statusName(s), r.chrome("title").Bold(true))
	x = r.drawMeter(x+2, y, w, "HP", s.Vitals.HP, "hp")
	x = r.drawMeter(x+2, y, w, "MP", s.Vitals.MP, "mp")
	x = r.drawMeter(x+2, y, w, "XP", s.Vitals.XP, "xp")
	x = r.drawText(x+2, y, w, purse(s.Vitals), r.style("game"))
	if s.InCombat {
		x = r.drawText(x+2, y, w, "[combat]", r.style("error").Bold(true))
	}
	if conn != "" && conn != "open" {
		r.drawText(x+2, y, w, "["+conn+"]", r.style("system"))
	}
}

func (r *Renderer) drawMeter(x, y, w int, label string, m session.Meter, color string) int {
	text := fmt.Sprintf("%s %d/%d", label, m.Clamped(), m.Max)
	return r.drawText(x, y, w, text, tcell.StyleDefault.Foreground(r.theme.Meter(color)))
}

func (r *Renderer) drawTabs(y, w int, s session.Session) {
	if s.Phase != session.PhaseInGame {
		r.drawText(0, y, w, strings.Repeat("─", w), r.chrome("border"))
		return
	}
	x := 0
	for _, tab := range session.Tabs {
		style := r.chrome("border")
		label := " " + tab + " "
		if tab == s.ActiveTab {
			style = r.chrome("active_tab").Reverse(true)
		}
		if tab == session.TabChat && s.ChatUnread {
			label = " " + tab + "* "
			if tab != s.ActiveTab {
				style = r.chrome("unread").Bold(true)
			}
		}
		x = r.drawText(x, y, w, label, style) + 1
	}
}

func (r *Renderer) drawPane(top, bottom, w int, s session.Session) {
	height := bottom - top
	if height <= 0 {
		return
	}

	var lines []line
	switch {
	case s.Phase != session.PhaseInGame || s.ActiveTab == session.TabLog:
		lines = r.logLines(s.LogLines, w, false)
	case s.ActiveTab == session.TabChat:
		lines = r.logLines(s.LogLines, w, true)
	case s.ActiveTab == session.TabInventory:
		lines = r.inventoryLines(s.Inventory)
	case s.ActiveTab == session.TabMap:
		lines = r.mapLines(s, w, height)
	}

	// Newest lines stay at the bottom of the log panes.
	if len(lines) > height {
		lines = lines[len(lines)-height:]
	}
	for i, l := range lines {
		r.drawText(0, top+i, w, l.text, l.style)
	}
}

func (r *Renderer) drawTargets(y, w int, targets []session.CombatTarget) {
	x := r.drawText(0, y, w, "Fighting:", r.style("error").Bold(true))
	for _, t := range targets {
		x = r.drawText(x+1, y, w, fmt.Sprintf("%s %d/%d", t.Name, t.HP.Clamped(), t.HP.Max), r.style("error"))
	}
}

func (r *Renderer) drawPrompt(y, w int, phase session.Phase, input string, busy bool) {
	label := phase.Prompt() + ": "
	if busy {
		label = phase.Prompt() + " (waiting): "
	}
	x := r.drawText(0, y, w, label, r.chrome("prompt"))
	if phase.Masked() {
		input = strings.Repeat("*", len([]rune(input)))
	}
	x = r.drawText(x, y, w, input, tcell.StyleDefault)
	r.screen.ShowCursor(x, y)
}

// drawText writes text from x, clipped to width w, and returns the column
// after the last rune written.
func (r *Renderer) drawText(x, y, w int, text string, style tcell.Style) int {
	for _, ch := range text {
		if x >= w {
			break
		}
		r.screen.SetContent(x, y, ch, style)
		x++
	}
	return x
}

func statusName(s session.Session) string {
	level := s.Vitals.Level
	if level == 0 {
		level = s.CharacterLevel
	}
	if s.CharacterClass == "" {
		return fmt.Sprintf("%s L%d", s.CharacterName, level)
	}
	return fmt.Sprintf("%s the %s L%d", s.CharacterName, s.CharacterClass, level)
}

func purse(v session.Vitals) string {
	return fmt.Sprintf("%dp %dg %ds %dc", v.Platinum, v.Gold, v.Silver, v.Copper)
}
