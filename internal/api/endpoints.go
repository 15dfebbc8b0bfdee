package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/samdwyer/mudlink/internal/session"
	"github.com/samdwyer/mudlink/internal/world"
)

// CommandResult is the response to a request-channel command.
type CommandResult struct {
	Message string            `json:"message_to_player,omitempty"`
	Room    *session.RoomData `json:"room_data,omitempty"`
}

// Ability is a learned ability of the active character.
type Ability struct {
	Name          string `json:"name"`
	Description   string `json:"description"`
	MPCost        int    `json:"mp_cost"`
	LevelRequired int    `json:"level_required"`
}

// WhoEntry is one online character.
type WhoEntry struct {
	Name      string `json:"name"`
	ClassName string `json:"class_name"`
	Level     int    `json:"level"`
}

// Login exchanges credentials for an access token.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	var out struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	form := url.Values{"username": {username}, "password": {password}}
	if err := c.Call(ctx, http.MethodPost, "/users/login", form, "", &out); err != nil {
		return "", err
	}
	if out.AccessToken == "" {
		return "", &HTTPError{Status: http.StatusUnauthorized, Detail: "Login response carried no access token."}
	}
	return out.AccessToken, nil
}

// Register creates an account.
func (c *Client) Register(ctx context.Context, username, password string) error {
	body := map[string]string{"username": username, "password": password}
	return c.Call(ctx, http.MethodPost, "/users/register", body, "", nil)
}

// MyCharacters lists the account's characters.
func (c *Client) MyCharacters(ctx context.Context, token string) ([]session.Character, error) {
	var out []session.Character
	err := c.Call(ctx, http.MethodGet, "/character/mine", nil, token, &out)
	return out, err
}

// Classes lists the class templates offered during creation.
func (c *Client) Classes(ctx context.Context, token string) ([]session.Class, error) {
	var out []session.Class
	err := c.Call(ctx, http.MethodGet, "/classes", nil, token, &out)
	return out, err
}

// CreateCharacter creates a character of the named class.
func (c *Client) CreateCharacter(ctx context.Context, token, name, className string) (session.Character, error) {
	var out session.Character
	body := map[string]string{"name": name, "class_name": className}
	err := c.Call(ctx, http.MethodPost, "/character/create", body, token, &out)
	return out, err
}

// SelectCharacter makes id the active character and returns its room. The
// room is nil when the server answers without a body.
func (c *Client) SelectCharacter(ctx context.Context, token string, id session.ID) (*session.RoomData, error) {
	var out *session.RoomData
	err := c.Call(ctx, http.MethodPost, "/character/"+url.PathEscape(id.String())+"/select", nil, token, &out)
	return out, err
}

// Command runs a request-channel command.
func (c *Client) Command(ctx context.Context, token, text string) (CommandResult, error) {
	var out CommandResult
	err := c.Call(ctx, http.MethodPost, "/command", map[string]string{"command": text}, token, &out)
	return out, err
}

// LevelData fetches the map of one z-level.
func (c *Client) LevelData(ctx context.Context, token string, z int) (*world.Level, error) {
	var out world.Level
	endpoint := "/map/level_data?z_level=" + strconv.Itoa(z)
	if err := c.Call(ctx, http.MethodGet, endpoint, nil, token, &out); err != nil {
		return nil, err
	}
	return world.NewLevel(out.Z, out.Rooms), nil
}

// Inventory fetches the active character's inventory.
func (c *Client) Inventory(ctx context.Context, token string) (session.Inventory, error) {
	var out session.Inventory
	err := c.Call(ctx, http.MethodGet, "/character/inventory", nil, token, &out)
	return out, err
}

// Abilities lists the active character's abilities.
func (c *Client) Abilities(ctx context.Context, token string) ([]Ability, error) {
	var out []Ability
	err := c.Call(ctx, http.MethodGet, "/character/abilities", nil, token, &out)
	return out, err
}

// Who lists the characters currently online.
func (c *Client) Who(ctx context.Context, token string) ([]WhoEntry, error) {
	var out []WhoEntry
	err := c.Call(ctx, http.MethodGet, "/character/who", nil, token, &out)
	return out, err
}

// AssignHotbar binds an ability to a hotbar slot.
func (c *Client) AssignHotbar(ctx context.Context, token string, slot int, ability string) error {
	body := map[string]any{"slot_id": slot, "ability_name": ability}
	return c.Call(ctx, http.MethodPost, "/character/hotbar", body, token, nil)
}
