// Package command interprets player input according to the session phase.
package command

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/samdwyer/mudlink/internal/api"
	"github.com/samdwyer/mudlink/internal/gamedata"
	"github.com/samdwyer/mudlink/internal/session"
)

// Validation bounds applied before any request is made.
const (
	MinPasswordLength = 8
	MinNameLength     = 3
	MaxNameLength     = 50
)

// Backend is the request channel.
type Backend interface {
	Login(ctx context.Context, username, password string) (string, error)
	Register(ctx context.Context, username, password string) error
	MyCharacters(ctx context.Context, token string) ([]session.Character, error)
	Classes(ctx context.Context, token string) ([]session.Class, error)
	CreateCharacter(ctx context.Context, token, name, className string) (session.Character, error)
	SelectCharacter(ctx context.Context, token string, id session.ID) (*session.RoomData, error)
	Command(ctx context.Context, token, text string) (api.CommandResult, error)
	Inventory(ctx context.Context, token string) (session.Inventory, error)
	Abilities(ctx context.Context, token string) ([]api.Ability, error)
	Who(ctx context.Context, token string) ([]api.WhoEntry, error)
	AssignHotbar(ctx context.Context, token string, slot int, ability string) error
}

// Sender is the push channel's outbound side.
type Sender interface {
	Send(commandText string) bool
}

// RoomApplier applies a command result's message and room if charID is still
// playing.
type RoomApplier interface {
	ApplyRoomUpdate(charID session.ID, lines []string, room *session.RoomData) bool
}

// Interpreter turns one line of input into at most one transition or call.
// Submit blocks for the duration of any request it makes; callers serialize
// submissions.
type Interpreter struct {
	store   *session.Store
	backend Backend
	push    Sender
	rooms   RoomApplier
	verbs   *gamedata.VerbTable
	now     func() time.Time
}

// New creates an interpreter.
func New(store *session.Store, backend Backend, push Sender, rooms RoomApplier, verbs *gamedata.VerbTable) *Interpreter {
	return &Interpreter{
		store:   store,
		backend: backend,
		push:    push,
		rooms:   rooms,
		verbs:   verbs,
		now:     time.Now,
	}
}

// Submit interprets raw input in the current phase. A panic while handling it
// is logged and leaves the session logged out.
func (in *Interpreter) Submit(ctx context.Context, raw string) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("phase", in.store.Phase().String()).Msg("command handler panicked")
			in.store.Logout("Something went wrong. You have been logged out.")
		}
	}()

	text := strings.TrimSpace(raw)
	switch phase := in.store.Phase(); phase {
	case session.PhaseLoggedOut, session.PhasePromptUsername:
		in.username(text)
	case session.PhasePromptPassword:
		in.password(ctx, text)
	case session.PhaseRegisterUsername:
		in.registerUsername(text)
	case session.PhaseRegisterPassword:
		in.registerPassword(ctx, text)
	case session.PhaseCharacterSelect:
		in.characterSelect(ctx, text)
	case session.PhaseCharacterCreateName:
		in.characterName(ctx, text)
	case session.PhaseCharacterCreateClass:
		in.characterClass(ctx, text)
	case session.PhaseInGame:
		in.inGame(ctx, text)
	default:
		log.Error().Str("phase", phase.String()).Msg("input in unknown phase")
	}
}

// Resume re-enters the game with a saved identity. It reports false when p is
// not resumable, leaving the session logged out.
func (in *Interpreter) Resume(ctx context.Context, p session.Persisted) bool {
	if !p.Resumable(in.now()) {
		return false
	}
	char := p.Character()
	in.store.Apply(func(tx *session.Tx) {
		tx.Login(p.AccessToken)
		tx.Notice(session.ToneSystem, fmt.Sprintf("Resuming as %s...", char.Name))
	})
	in.enter(ctx, char)
	return true
}

func (in *Interpreter) username(text string) {
	if text == "" {
		in.store.Apply(func(tx *session.Tx) {
			tx.BeginLogin()
			tx.Notice(session.ToneError, "Please enter a username.")
		})
		return
	}
	if strings.EqualFold(text, "new") {
		in.store.Apply(func(tx *session.Tx) {
			tx.StartRegistration()
			tx.Notice(session.ToneSystem, "Creating a new account. Choose a username.")
		})
		return
	}
	in.store.Apply(func(tx *session.Tx) { tx.EnterPassword(text) })
}

func (in *Interpreter) password(ctx context.Context, text string) {
	if text == "" {
		in.store.Notice(session.ToneError, "Please enter a password.")
		return
	}
	username := in.store.Snapshot().DraftUsername

	token, err := in.backend.Login(ctx, username, text)
	if err != nil {
		log.Info().Err(err).Str("username", username).Msg("login failed")
		in.only(session.PhasePromptPassword, func(tx *session.Tx) {
			tx.Notice(session.ToneError, "Login failed: "+api.Detail(err))
		})
		return
	}
	if !in.only(session.PhasePromptPassword, func(tx *session.Tx) {
		tx.Login(token)
		tx.Notice(session.ToneSystem, fmt.Sprintf("Logged in as %s.", username))
	}) {
		return
	}
	in.loadCharacters(ctx)
}

func (in *Interpreter) registerUsername(text string) {
	if text == "" {
		in.store.Notice(session.ToneError, "Please choose a username.")
		return
	}
	in.store.Apply(func(tx *session.Tx) { tx.EnterRegisterPassword(text) })
}

func (in *Interpreter) registerPassword(ctx context.Context, text string) {
	if utf8.RuneCountInString(text) < MinPasswordLength {
		in.store.Notice(session.ToneError, fmt.Sprintf("Password must be at least %d characters.", MinPasswordLength))
		return
	}
	username := in.store.Snapshot().DraftUsername

	if err := in.backend.Register(ctx, username, text); err != nil {
		in.only(session.PhaseRegisterPassword, func(tx *session.Tx) {
			tx.StartRegistration()
			tx.Notice(session.ToneError, "Registration failed: "+api.Detail(err))
		})
		return
	}

	token, err := in.backend.Login(ctx, username, text)
	if err != nil {
		in.only(session.PhaseRegisterPassword, func(tx *session.Tx) {
			tx.BeginLogin()
			tx.Notice(session.ToneSystem, "Account created. Please log in.")
			tx.Notice(session.ToneError, api.Detail(err))
		})
		return
	}
	if !in.only(session.PhaseRegisterPassword, func(tx *session.Tx) {
		tx.Login(token)
		tx.Notice(session.ToneSystem, fmt.Sprintf("Account created. Logged in as %s.", username))
	}) {
		return
	}
	in.loadCharacters(ctx)
}

func (in *Interpreter) characterSelect(ctx context.Context, text string) {
	if strings.EqualFold(text, "new") {
		in.startCreation(ctx)
		return
	}
	chars := in.store.Snapshot().AvailableCharacters
	i, ok := pick(text, len(chars))
	if !ok {
		if len(chars) == 0 {
			in.store.Notice(session.ToneError, "You have no characters. Type 'new' to create one.")
			return
		}
		in.store.Notice(session.ToneError, fmt.Sprintf("Choose a number between 1 and %d, or 'new'.", len(chars)))
		return
	}
	in.enter(ctx, chars[i])
}

// enter selects char on the server and moves into the game.
func (in *Interpreter) enter(ctx context.Context, char session.Character) {
	token, _ := in.store.Credentials()

	room, err := in.backend.SelectCharacter(ctx, token, char.ID)
	if err != nil {
		if in.authFailed(err) {
			return
		}
		in.only(session.PhaseCharacterSelect, func(tx *session.Tx) {
			tx.Notice(session.ToneError, "Could not enter the game: "+api.Detail(err))
		})
		if len(in.store.Snapshot().AvailableCharacters) == 0 {
			in.loadCharacters(ctx)
		}
		return
	}

	if !in.only(session.PhaseCharacterSelect, func(tx *session.Tx) {
		tx.SelectCharacter(char)
		if room != nil {
			tx.SetRoom(*room)
		}
		tx.Notice(session.ToneSystem, fmt.Sprintf("Entering the world as %s.", char.Name))
	}) {
		return
	}
	in.refreshInventory(ctx, char.ID)
}

func (in *Interpreter) refreshInventory(ctx context.Context, charID session.ID) {
	token, _ := in.store.Credentials()
	inv, err := in.backend.Inventory(ctx, token)
	if err != nil {
		if in.authFailed(err) {
			return
		}
		log.Warn().Err(err).Msg("inventory fetch failed")
		return
	}
	in.store.Apply(func(tx *session.Tx) {
		if tx.Phase() != session.PhaseInGame || tx.CharacterID() != charID {
			return
		}
		tx.SetInventory(inv)
	})
}

func (in *Interpreter) loadCharacters(ctx context.Context) {
	token, _ := in.store.Credentials()
	chars, err := in.backend.MyCharacters(ctx, token)
	if err != nil {
		if in.authFailed(err) {
			return
		}
		in.only(session.PhaseCharacterSelect, func(tx *session.Tx) {
			tx.Notice(session.ToneError, "Could not load characters: "+api.Detail(err))
		})
		return
	}

	in.only(session.PhaseCharacterSelect, func(tx *session.Tx) {
		tx.ShowCharacters(chars)
		if len(chars) == 0 {
			tx.Notice(session.ToneSystem, "You have no characters yet. Type 'new' to create one.")
			return
		}
		tx.Notice(session.ToneSystem, "Your characters:")
		for i, c := range chars {
			tx.Notice(session.ToneSystem, fmt.Sprintf("%d. %s (%s, level %d)", i+1, c.Name, c.ClassName, c.Level))
		}
		tx.Notice(session.ToneSystem, "Type a number to play, or 'new' to create a character.")
	})
}

func (in *Interpreter) startCreation(ctx context.Context) {
	in.store.StartCharacterCreation()

	token, _ := in.store.Credentials()
	classes, err := in.backend.Classes(ctx, token)
	if err != nil {
		in.creationFailed(ctx, session.PhaseCharacterCreateName, err)
		return
	}
	if len(classes) == 0 {
		in.noClasses(ctx, session.PhaseCharacterCreateName)
		return
	}
	in.only(session.PhaseCharacterCreateName, func(tx *session.Tx) {
		tx.SetAvailableClasses(classes)
		tx.Notice(session.ToneSystem, fmt.Sprintf("Name your character (%d-%d characters), or 'back' to cancel.", MinNameLength, MaxNameLength))
	})
}

// noClasses abandons creation when there is no class to choose from.
func (in *Interpreter) noClasses(ctx context.Context, phase session.Phase) {
	if !in.only(phase, func(tx *session.Tx) {
		tx.FinishCharacterCreation()
		tx.Notice(session.ToneError, "No character classes are available; character creation is unavailable.")
	}) {
		return
	}
	in.loadCharacters(ctx)
}

// cancelCreation returns to character selection if text asks to.
func (in *Interpreter) cancelCreation(ctx context.Context, phase session.Phase, text string) bool {
	if !strings.EqualFold(text, "back") {
		return false
	}
	if in.only(phase, func(tx *session.Tx) {
		tx.FinishCharacterCreation()
		tx.Notice(session.ToneSystem, "Character creation cancelled.")
	}) {
		in.loadCharacters(ctx)
	}
	return true
}

func (in *Interpreter) characterName(ctx context.Context, text string) {
	if in.cancelCreation(ctx, session.PhaseCharacterCreateName, text) {
		return
	}
	if len(in.store.Snapshot().AvailableClasses) == 0 {
		in.noClasses(ctx, session.PhaseCharacterCreateName)
		return
	}
	if n := utf8.RuneCountInString(text); n < MinNameLength || n > MaxNameLength {
		in.store.Notice(session.ToneError, fmt.Sprintf("Character names must be %d-%d characters.", MinNameLength, MaxNameLength))
		return
	}
	in.store.Apply(func(tx *session.Tx) {
		tx.EnterCharacterClass(text)
		tx.Notice(session.ToneSystem, "Choose a class:")
	})
	for i, c := range in.store.Snapshot().AvailableClasses {
		line := fmt.Sprintf("%d. %s", i+1, c.Name)
		if c.Description != "" {
			line += " - " + c.Description
		}
		in.store.Notice(session.ToneSystem, line)
	}
}

func (in *Interpreter) characterClass(ctx context.Context, text string) {
	if in.cancelCreation(ctx, session.PhaseCharacterCreateClass, text) {
		return
	}
	snap := in.store.Snapshot()
	if len(snap.AvailableClasses) == 0 {
		in.noClasses(ctx, session.PhaseCharacterCreateClass)
		return
	}
	i, ok := pick(text, len(snap.AvailableClasses))
	if !ok {
		in.store.Notice(session.ToneError, fmt.Sprintf("Choose a class number between 1 and %d.", len(snap.AvailableClasses)))
		return
	}
	class := snap.AvailableClasses[i].Name
	in.store.Apply(func(tx *session.Tx) { tx.ChooseClass(class) })

	created, err := in.backend.CreateCharacter(ctx, snap.AuthToken, snap.DraftCharacterName, class)
	if err != nil {
		in.creationFailed(ctx, session.PhaseCharacterCreateClass, err)
		return
	}
	name := created.Name
	if name == "" {
		name = snap.DraftCharacterName
	}
	if !in.only(session.PhaseCharacterCreateClass, func(tx *session.Tx) {
		tx.FinishCharacterCreation()
		tx.Notice(session.ToneSystem, fmt.Sprintf("Created %s the %s.", name, class))
	}) {
		return
	}
	in.loadCharacters(ctx)
}

// creationFailed returns from a creation phase to character selection.
func (in *Interpreter) creationFailed(ctx context.Context, phase session.Phase, err error) {
	if in.authFailed(err) {
		return
	}
	if !in.only(phase, func(tx *session.Tx) {
		tx.FinishCharacterCreation()
		tx.Notice(session.ToneError, "Character creation failed: "+api.Detail(err))
	}) {
		return
	}
	in.loadCharacters(ctx)
}

// only applies fn if the phase is still want, and reports whether it did.
// Responses that arrive after the phase has moved on are dropped.
func (in *Interpreter) only(want session.Phase, fn func(tx *session.Tx)) bool {
	applied := false
	in.store.Apply(func(tx *session.Tx) {
		if tx.Phase() != want {
			return
		}
		fn(tx)
		applied = true
	})
	if !applied {
		log.Debug().Str("want", want.String()).Msg("dropping stale response")
	}
	return applied
}

// authFailed logs out on a 401/403 in an authenticated phase.
func (in *Interpreter) authFailed(err error) bool {
	if !api.IsAuthFailure(err) || !in.store.Phase().Authenticated() {
		return false
	}
	log.Info().Err(err).Msg("authorization rejected")
	in.store.Logout("Your session has expired: " + api.Detail(err))
	return true
}

// pick parses a 1-based choice among n items into a 0-based index.
func pick(text string, n int) (int, bool) {
	i, err := strconv.Atoi(text)
	if err != nil || i < 1 || i > n {
		return 0, false
	}
	return i - 1, true
}
