package gamedata

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gdamore/tcell/v2"
)

// ParseColor reads a theme colour: "#rrggbb", the short "#rgb" form, or a
// terminal colour name such as "red" or "default".
func ParseColor(s string) (tcell.Color, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "default" {
		return tcell.ColorDefault, nil
	}
	if !strings.HasPrefix(s, "#") {
		if c, ok := tcell.ColorNames[s]; ok {
			return c, nil
		}
		return tcell.ColorDefault, fmt.Errorf("unknown color name %q", s)
	}

	hex := s[1:]
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) != 6 {
		return tcell.ColorDefault, fmt.Errorf("invalid hex color %q", s)
	}
	rgb, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return tcell.ColorDefault, fmt.Errorf("invalid hex color %q: %w", s, err)
	}
	return tcell.NewHexColor(int32(rgb)), nil
}

// MustParseColor is ParseColor for colours known at compile time.
func MustParseColor(s string) tcell.Color {
	c, err := ParseColor(s)
	if err != nil {
		panic(err)
	}
	return c
}
