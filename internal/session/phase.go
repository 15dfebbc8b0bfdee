// Package session holds the client's single source of truth and the named
// actions that mutate it.
package session

// Phase is the login/gameplay mode the session is in. It decides which prompt
// is shown and how submitted input is interpreted.
type Phase int

const (
	// PhaseLoggedOut is the initial phase and the phase after logout.
	PhaseLoggedOut Phase = iota
	// PhasePromptUsername waits for an account name (or "new").
	PhasePromptUsername
	// PhasePromptPassword waits for the password of DraftUsername.
	PhasePromptPassword
	// PhaseRegisterUsername waits for the name of a new account.
	PhaseRegisterUsername
	// PhaseRegisterPassword waits for the password of a new account.
	PhaseRegisterPassword
	// PhaseCharacterSelect lists AvailableCharacters and waits for an index.
	PhaseCharacterSelect
	// PhaseCharacterCreateName waits for a new character's name.
	PhaseCharacterCreateName
	// PhaseCharacterCreateClass lists AvailableClasses and waits for an index.
	PhaseCharacterCreateClass
	// PhaseInGame routes input through the verb table.
	PhaseInGame
)

// String returns a human-readable phase name.
func (p Phase) String() string {
	switch p {
	case PhaseLoggedOut:
		return "logged_out"
	case PhasePromptUsername:
		return "prompt_username"
	case PhasePromptPassword:
		return "prompt_password"
	case PhaseRegisterUsername:
		return "register_username"
	case PhaseRegisterPassword:
		return "register_password"
	case PhaseCharacterSelect:
		return "character_select"
	case PhaseCharacterCreateName:
		return "character_create_name"
	case PhaseCharacterCreateClass:
		return "character_create_class"
	case PhaseInGame:
		return "in_game"
	default:
		return "unknown"
	}
}

// Prompt returns the input placeholder for the phase.
func (p Phase) Prompt() string {
	switch p {
	case PhaseLoggedOut, PhasePromptUsername:
		return "Username (or 'new' to register)"
	case PhasePromptPassword:
		return "Password"
	case PhaseRegisterUsername:
		return "Choose a username"
	case PhaseRegisterPassword:
		return "Choose a password (8+ characters)"
	case PhaseCharacterSelect:
		return "Character number (or 'new')"
	case PhaseCharacterCreateName:
		return "Character name (3-50 characters)"
	case PhaseCharacterCreateClass:
		return "Class number"
	case PhaseInGame:
		return "Enter a command"
	default:
		return ""
	}
}

// Authenticated reports whether the phase requires an access token.
func (p Phase) Authenticated() bool {
	switch p {
	case PhaseCharacterSelect, PhaseCharacterCreateName, PhaseCharacterCreateClass, PhaseInGame:
		return true
	default:
		return false
	}
}

// Masked reports whether input typed in this phase should be hidden.
func (p Phase) Masked() bool {
	return p == PhasePromptPassword || p == PhaseRegisterPassword
}
