package session

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/samdwyer/mudlink/internal/world"
)

// DefaultMaxLogLines bounds the session log when no limit is configured.
const DefaultMaxLogLines = 2000

// Session is the client's view of the account, the character and the world.
// Values returned by Store.Snapshot are copies; mutate only through actions.
type Session struct {
	Phase Phase

	AuthToken      string
	CharacterID    ID
	CharacterName  string
	CharacterClass string
	CharacterLevel int

	CurrentRoomID ID
	CurrentRoom   *RoomData
	Vitals        Vitals

	InCombat      bool
	CombatTargets []CombatTarget

	// Inventory is nil until the first snapshot arrives.
	Inventory *Inventory

	// Map is shared between snapshots and must be treated as read-only.
	Map      *world.Level
	MapStale bool

	LogLines   []LogLine
	ActiveTab  string
	ChatUnread bool

	// Scratch fields, valid only in the phases that own them.
	DraftUsername       string
	DraftPassword       string
	DraftCharacterName  string
	DraftClassName      string
	AvailableCharacters []Character
	AvailableClasses    []Class
}

func initialSession() Session {
	return Session{Phase: PhaseLoggedOut, ActiveTab: TabLog}
}

// discardScratch drops the creation-flow fields that do not belong to p.
func (s *Session) discardScratch(p Phase) {
	if p != PhasePromptPassword && p != PhaseRegisterPassword {
		s.DraftUsername = ""
	}
	s.DraftPassword = ""
	s.DraftClassName = ""
	if p != PhaseCharacterSelect {
		s.AvailableCharacters = nil
	}
	if p != PhaseCharacterCreateName && p != PhaseCharacterCreateClass {
		s.AvailableClasses = nil
	}
	if p != PhaseCharacterCreateClass {
		s.DraftCharacterName = ""
	}
}

func (s Session) clone() Session {
	out := s
	out.LogLines = append([]LogLine(nil), s.LogLines...)
	out.CombatTargets = append([]CombatTarget(nil), s.CombatTargets...)
	out.AvailableCharacters = append([]Character(nil), s.AvailableCharacters...)
	out.AvailableClasses = append([]Class(nil), s.AvailableClasses...)
	out.Inventory = s.Inventory.clone()
	if s.CurrentRoom != nil {
		room := *s.CurrentRoom
		out.CurrentRoom = &room
	}
	return out
}

// Channel is the push connection owned by the store's phase transitions.
type Channel interface {
	Connect(token, characterID string) error
	Disconnect()
}

// Store serializes every mutation of a Session. Each action, and each Apply
// batch, is one atomic mutation followed by one change notification.
type Store struct {
	mu      sync.Mutex
	sess    Session
	nextID  uint64
	maxLog  int
	channel Channel
	persist Persister

	// effects orders post-commit side effects the same way commits are ordered.
	effects sync.Mutex

	subsMu sync.Mutex
	subs   []func()
}

// Option configures a Store.
type Option func(*Store)

// WithChannel sets the push channel opened on entering the game.
func WithChannel(ch Channel) Option {
	return func(s *Store) { s.channel = ch }
}

// WithPersister sets where the resumable identity is saved.
func WithPersister(p Persister) Option {
	return func(s *Store) { s.persist = p }
}

// WithMaxLogLines caps the log; 0 means unbounded.
func WithMaxLogLines(n int) Option {
	return func(s *Store) { s.maxLog = n }
}

// NewStore creates a store holding an empty, logged-out session.
func NewStore(opts ...Option) *Store {
	s := &Store{sess: initialSession(), maxLog: DefaultMaxLogLines}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AttachChannel sets the push channel after construction. The push client and
// the dispatcher need the store first, so wiring closes the loop here.
func (s *Store) AttachChannel(ch Channel) {
	s.effects.Lock()
	defer s.effects.Unlock()
	s.channel = ch
}

// Subscribe registers fn to run after every committed mutation.
func (s *Store) Subscribe(fn func()) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	s.subs = append(s.subs, fn)
}

// Snapshot returns a consistent copy of the session.
func (s *Store) Snapshot() Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sess.clone()
}

// Phase returns the current phase.
func (s *Store) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sess.Phase
}

// Credentials returns the access token and active character id.
func (s *Store) Credentials() (token string, characterID ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sess.AuthToken, s.sess.CharacterID
}

// Apply runs fn as a single atomic mutation. Side effects of the resulting
// phase change (push channel, persistence) run after the commit, in commit
// order, and subscribers are notified once. If fn panics the batch is rolled
// back and the panic continues with the store unlocked.
func (s *Store) Apply(fn func(tx *Tx)) {
	c := s.commit(fn)
	func() {
		defer s.effects.Unlock()
		s.runEffects(c.before, c.after, c.tx, c.identity.AccessToken, c.identity.CharacterID, c.identity)
	}()
	if c.tx.changed {
		s.notify()
	}
}

type batch struct {
	before, after Phase
	tx            *Tx
	identity      Persisted
}

// commit runs fn under the state lock and returns holding the effects lock,
// so effects run in the order their batches committed.
func (s *Store) commit(fn func(tx *Tx)) batch {
	s.mu.Lock()
	defer s.mu.Unlock()

	saved, savedID := s.sess, s.nextID
	done := false
	defer func() {
		if !done {
			s.sess, s.nextID = saved, savedID
		}
	}()

	c := batch{before: s.sess.Phase, tx: &Tx{s: s}}
	fn(c.tx)
	done = true

	c.after = s.sess.Phase
	c.identity = Persisted{
		AccessToken:    s.sess.AuthToken,
		CharacterID:    string(s.sess.CharacterID),
		CharacterName:  s.sess.CharacterName,
		CharacterClass: s.sess.CharacterClass,
		CharacterLevel: s.sess.CharacterLevel,
	}
	s.effects.Lock()
	return c
}

// runEffects is the only place the push channel is opened or closed.
func (s *Store) runEffects(before, after Phase, tx *Tx, token, charID string, identity Persisted) {
	leaving := before == PhaseInGame && after != PhaseInGame
	entering := after == PhaseInGame && (before != PhaseInGame || tx.reentered || tx.reconnect)

	if s.channel != nil && (leaving || tx.loggedOut || (entering && tx.reconnect)) {
		s.channel.Disconnect()
	}
	if s.channel != nil && entering {
		if err := s.channel.Connect(token, charID); err != nil {
			log.Error().Err(err).Msg("push channel connect rejected")
		}
	}

	if s.persist == nil {
		return
	}
	if tx.loggedOut {
		if err := s.persist.Clear(); err != nil {
			log.Warn().Err(err).Msg("failed to clear saved session")
		}
	}
	if tx.selected {
		if err := s.persist.Save(identity); err != nil {
			log.Warn().Err(err).Msg("failed to save session")
		}
	}
}

func (s *Store) notify() {
	s.subsMu.Lock()
	subs := append([]func(){}, s.subs...)
	s.subsMu.Unlock()
	for _, fn := range subs {
		fn()
	}
}

// Login stores the access token and moves to character selection.
func (s *Store) Login(token string) { s.Apply(func(tx *Tx) { tx.Login(token) }) }

// SelectCharacter enters the game as c.
func (s *Store) SelectCharacter(c Character) { s.Apply(func(tx *Tx) { tx.SelectCharacter(c) }) }

// StartCharacterCreation moves to the character name prompt.
func (s *Store) StartCharacterCreation() { s.Apply(func(tx *Tx) { tx.StartCharacterCreation() }) }

// FinishCharacterCreation returns to character selection.
func (s *Store) FinishCharacterCreation() { s.Apply(func(tx *Tx) { tx.FinishCharacterCreation() }) }

// Logout resets the session and tears down the push channel.
func (s *Store) Logout(reason string) { s.Apply(func(tx *Tx) { tx.Logout(reason) }) }

// Reconnect drops and reopens the push channel while in the game.
func (s *Store) Reconnect() (ok bool) {
	s.Apply(func(tx *Tx) { ok = tx.Reconnect() })
	return ok
}

// SetActiveTab switches the content tab; unknown names are ignored.
func (s *Store) SetActiveTab(name string) (ok bool) {
	s.Apply(func(tx *Tx) { ok = tx.SetActiveTab(name) })
	return ok
}

// AppendLog appends a line and returns its id.
func (s *Store) AppendLog(line LogLine) (id uint64) {
	s.Apply(func(tx *Tx) { id = tx.AppendLog(line) })
	return id
}

// Notice appends a client-produced echo line.
func (s *Store) Notice(tone Tone, text string) {
	s.Apply(func(tx *Tx) { tx.Notice(tone, text) })
}

// ApplyVitals merges a partial vitals update.
func (s *Store) ApplyVitals(u VitalsUpdate) { s.Apply(func(tx *Tx) { tx.ApplyVitals(u) }) }

// SetInventory replaces the inventory wholesale.
func (s *Store) SetInventory(inv Inventory) { s.Apply(func(tx *Tx) { tx.SetInventory(inv) }) }

// SetMapData replaces the loaded map level.
func (s *Store) SetMapData(level *world.Level) { s.Apply(func(tx *Tx) { tx.SetMapData(level) }) }

// SetCombat records the combat flag and targets.
func (s *Store) SetCombat(targets []CombatTarget, inCombat bool) {
	s.Apply(func(tx *Tx) { tx.SetCombat(targets, inCombat) })
}

// Tx exposes the named actions inside one Apply batch.
type Tx struct {
	s         *Store
	changed   bool
	loggedOut bool
	selected  bool
	reentered bool
	reconnect bool
}

func (tx *Tx) sess() *Session {
	tx.changed = true
	return &tx.s.sess
}

func (tx *Tx) setPhase(p Phase) {
	sess := tx.sess()
	if sess.Phase == p {
		return
	}
	sess.Phase = p
	sess.discardScratch(p)
}

// Phase returns the phase as of this point in the batch.
func (tx *Tx) Phase() Phase { return tx.s.sess.Phase }

// CharacterID returns the active character as of this point in the batch.
func (tx *Tx) CharacterID() ID { return tx.s.sess.CharacterID }

// ActiveTab returns the active tab as of this point in the batch.
func (tx *Tx) ActiveTab() string { return tx.s.sess.ActiveTab }

// RoomLevel returns the z-level of the current room, or false if no room is
// known.
func (tx *Tx) RoomLevel() (int, bool) {
	if tx.s.sess.CurrentRoom == nil {
		return 0, false
	}
	return tx.s.sess.CurrentRoom.Z, true
}

// MapLevel returns the z-level of the loaded map, or false if none is loaded.
func (tx *Tx) MapLevel() (int, bool) {
	if tx.s.sess.Map == nil {
		return 0, false
	}
	return tx.s.sess.Map.Z, true
}

// BeginLogin shows the username prompt.
func (tx *Tx) BeginLogin() { tx.setPhase(PhasePromptUsername) }

// EnterPassword remembers the username and asks for its password.
func (tx *Tx) EnterPassword(username string) {
	tx.setPhase(PhasePromptPassword)
	tx.sess().DraftUsername = username
}

// StartRegistration asks for a new account name.
func (tx *Tx) StartRegistration() { tx.setPhase(PhaseRegisterUsername) }

// EnterRegisterPassword remembers the new account name and asks for a password.
func (tx *Tx) EnterRegisterPassword(username string) {
	tx.setPhase(PhaseRegisterPassword)
	tx.sess().DraftUsername = username
}

// Login stores the access token and moves to character selection.
func (tx *Tx) Login(token string) {
	tx.setPhase(PhaseCharacterSelect)
	tx.sess().AuthToken = token
}

// ShowCharacters lists the account's characters for selection.
func (tx *Tx) ShowCharacters(chars []Character) {
	tx.setPhase(PhaseCharacterSelect)
	tx.sess().AvailableCharacters = append([]Character(nil), chars...)
}

// StartCharacterCreation moves to the character name prompt.
func (tx *Tx) StartCharacterCreation() { tx.setPhase(PhaseCharacterCreateName) }

// SetAvailableClasses stores the class templates offered during creation.
func (tx *Tx) SetAvailableClasses(classes []Class) {
	tx.sess().AvailableClasses = append([]Class(nil), classes...)
}

// EnterCharacterClass remembers the new character's name and asks for a class.
func (tx *Tx) EnterCharacterClass(name string) {
	tx.setPhase(PhaseCharacterCreateClass)
	tx.sess().DraftCharacterName = name
}

// ChooseClass records the class picked for the pending creation request.
func (tx *Tx) ChooseClass(name string) { tx.sess().DraftClassName = name }

// FinishCharacterCreation returns to character selection.
func (tx *Tx) FinishCharacterCreation() { tx.setPhase(PhaseCharacterSelect) }

// SelectCharacter sets the character identity and enters the game. Entering
// without an access token is an auth failure and logs out instead.
func (tx *Tx) SelectCharacter(c Character) {
	sess := tx.sess()
	if sess.AuthToken == "" || c.ID == "" {
		tx.Logout("Cannot enter the game without credentials.")
		return
	}
	if sess.Phase == PhaseInGame && sess.CharacterID != c.ID {
		tx.reentered = true
	}
	sess.CharacterID = c.ID
	sess.CharacterName = c.Name
	sess.CharacterClass = c.ClassName
	sess.CharacterLevel = c.Level
	sess.CurrentRoomID = ""
	sess.CurrentRoom = nil
	sess.Vitals = Vitals{Level: c.Level}
	sess.InCombat = false
	sess.CombatTargets = nil
	sess.Inventory = nil
	sess.Map = nil
	sess.MapStale = false
	tx.setPhase(PhaseInGame)
	tx.selected = true
}

// Logout resets everything to the initial session and tears down the push
// channel, whatever the current phase. A non-empty reason is logged.
func (tx *Tx) Logout(reason string) {
	*tx.sess() = initialSession()
	tx.loggedOut = true
	tx.selected = false
	tx.reentered = false
	tx.reconnect = false
	if reason != "" {
		tx.Notice(ToneSystem, reason)
	}
}

// Reconnect asks for the push channel to be closed and opened again once the
// batch commits. It reports false outside the game.
func (tx *Tx) Reconnect() bool {
	if tx.Phase() != PhaseInGame {
		return false
	}
	tx.reconnect = true
	return true
}

// SetActiveTab switches the content tab. Showing the chat tab clears the
// unread flag.
func (tx *Tx) SetActiveTab(name string) bool {
	if !ValidTab(name) {
		return false
	}
	sess := tx.sess()
	sess.ActiveTab = name
	if name == TabChat {
		sess.ChatUnread = false
	}
	return true
}

// FlagUnreadChat marks chat unread unless the chat tab is showing.
func (tx *Tx) FlagUnreadChat() {
	sess := tx.sess()
	if sess.ActiveTab != TabChat {
		sess.ChatUnread = true
	}
}

// AppendLog appends line with the next id and returns that id.
func (tx *Tx) AppendLog(line LogLine) uint64 {
	sess := tx.sess()
	tx.s.nextID++
	line.ID = tx.s.nextID
	sess.LogLines = append(sess.LogLines, line)
	if limit := tx.s.maxLog; limit > 0 && len(sess.LogLines) > limit {
		drop := len(sess.LogLines) - limit
		sess.LogLines = append([]LogLine(nil), sess.LogLines[drop:]...)
	}
	return line.ID
}

// Notice appends a client-produced echo line.
func (tx *Tx) Notice(tone Tone, text string) {
	tx.AppendLog(LogLine{Kind: KindEcho, Tone: tone, Text: text})
}

// ApplyVitals merges the fields present in u onto the stored vitals.
func (tx *Tx) ApplyVitals(u VitalsUpdate) {
	u.mergeInto(&tx.sess().Vitals)
}

// SetInventory replaces the inventory wholesale.
func (tx *Tx) SetInventory(inv Inventory) {
	tx.sess().Inventory = inv.clone()
}

// SetRoom records room as the current room.
func (tx *Tx) SetRoom(room RoomData) {
	sess := tx.sess()
	sess.CurrentRoomID = room.ID
	sess.CurrentRoom = &room
}

// SetMapData replaces the loaded map level and clears the stale flag.
func (tx *Tx) SetMapData(level *world.Level) {
	sess := tx.sess()
	sess.Map = level
	sess.MapStale = false
}

// MarkMapStale flags the loaded map for refresh.
func (tx *Tx) MarkMapStale() { tx.sess().MapStale = true }

// SetCombat records the combat flag. Targets are kept only while in combat.
func (tx *Tx) SetCombat(targets []CombatTarget, inCombat bool) {
	sess := tx.sess()
	sess.InCombat = inCombat
	if !inCombat {
		sess.CombatTargets = nil
		return
	}
	if targets != nil {
		sess.CombatTargets = append([]CombatTarget(nil), targets...)
	}
}
