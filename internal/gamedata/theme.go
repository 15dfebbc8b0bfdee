package gamedata

import "github.com/gdamore/tcell/v2"

// Theme holds the colours used to draw the client, as hex strings or terminal colour names.
type Theme struct {
	Tones  map[string]string `yaml:"tones"`
	Meters map[string]string `yaml:"meters"`
	Chrome map[string]string `yaml:"chrome"`
}

// LoadTheme loads the colour theme from the embedded theme.yaml file.
func LoadTheme() (Theme, error) {
	return Load[Theme]("theme.yaml")
}

// MustLoadTheme loads the colour theme, panicking on error.
func MustLoadTheme() Theme {
	return MustLoad[Theme]("theme.yaml")
}

// Tone returns the colour for a log tone name.
func (t Theme) Tone(name string) tcell.Color { return lookup(t.Tones, name) }

// Meter returns the colour for a vitals meter name.
func (t Theme) Meter(name string) tcell.Color { return lookup(t.Meters, name) }

// ChromeColor returns the colour for a piece of window chrome.
func (t Theme) ChromeColor(name string) tcell.Color { return lookup(t.Chrome, name) }

// lookup falls back to the terminal default for missing or bad entries.
func lookup(colors map[string]string, name string) tcell.Color {
	value, ok := colors[name]
	if !ok {
		return tcell.ColorDefault
	}
	c, err := ParseColor(value)
	if err != nil {
		return tcell.ColorDefault
	}
	return c
}
