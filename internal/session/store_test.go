package session

import (
	"testing"
	"time"

	"github.com/samdwyer/mudlink/internal/world"
)

type fakeChannel struct {
	connects    []string
	disconnects int
	panics      bool
}

func (f *fakeChannel) Connect(token, characterID string) error {
	if f.panics {
		panic("dial exploded")
	}
	f.connects = append(f.connects, token+"/"+characterID)
	return nil
}

func (f *fakeChannel) Disconnect() { f.disconnects++ }

type fakePersister struct {
	saved   []Persisted
	cleared int
}

func (f *fakePersister) Save(p Persisted) error {
	f.saved = append(f.saved, p)
	return nil
}

func (f *fakePersister) Clear() error {
	f.cleared++
	return nil
}

func intp(v int) *int { return &v }

func inGameStore(t *testing.T) (*Store, *fakeChannel) {
	t.Helper()
	ch := &fakeChannel{}
	s := NewStore(WithChannel(ch))
	s.Login("tok")
	s.SelectCharacter(Character{ID: "7", Name: "Bob", ClassName: "Warrior", Level: 3})
	return s, ch
}

func TestNewStoreIsLoggedOut(t *testing.T) {
	s := NewStore()
	sess := s.Snapshot()

	if sess.Phase != PhaseLoggedOut {
		t.Errorf("Phase = %v, want PhaseLoggedOut", sess.Phase)
	}
	if sess.ActiveTab != TabLog {
		t.Errorf("ActiveTab = %q, want %q", sess.ActiveTab, TabLog)
	}
	if sess.Inventory != nil {
		t.Error("Inventory should be absent until fetched")
	}
}

func TestApplyVitalsLastWriteWinsPerField(t *testing.T) {
	s := NewStore()

	s.ApplyVitals(VitalsUpdate{CurrentHP: intp(10), MaxHP: intp(20), Gold: intp(5)})
	s.ApplyVitals(VitalsUpdate{CurrentHP: intp(7)})
	s.ApplyVitals(VitalsUpdate{MaxMP: intp(30), Gold: intp(9)})

	v := s.Snapshot().Vitals
	if v.HP.Current != 7 || v.HP.Max != 20 {
		t.Errorf("HP = %+v, want {7 20}", v.HP)
	}
	if v.MP.Max != 30 {
		t.Errorf("MP.Max = %d, want 30", v.MP.Max)
	}
	if v.Gold != 9 {
		t.Errorf("Gold = %d, want 9", v.Gold)
	}
}

func TestApplyVitalsKeepsOutOfRangeValues(t *testing.T) {
	s := NewStore()
	s.ApplyVitals(VitalsUpdate{CurrentHP: intp(25), MaxHP: intp(20)})

	hp := s.Snapshot().Vitals.HP
	if hp.Current != 25 {
		t.Errorf("stored HP.Current = %d, want 25 (unclamped)", hp.Current)
	}
	if hp.Clamped() != 20 {
		t.Errorf("HP.Clamped() = %d, want 20", hp.Clamped())
	}
	if (Meter{Current: -3, Max: 10}).Clamped() != 0 {
		t.Error("negative current should clamp to 0")
	}
}

func TestAppendLogOrderAndIDs(t *testing.T) {
	s := NewStore(WithMaxLogLines(0))
	const n = 50
	for i := 0; i < n; i++ {
		s.AppendLog(LogLine{Kind: KindMarkup, Text: string(rune('a' + i%26))})
	}

	lines := s.Snapshot().LogLines
	if len(lines) != n {
		t.Fatalf("len(LogLines) = %d, want %d", len(lines), n)
	}
	seen := map[uint64]bool{}
	for i, line := range lines {
		if seen[line.ID] {
			t.Errorf("duplicate id %d", line.ID)
		}
		seen[line.ID] = true
		if i > 0 && line.ID <= lines[i-1].ID {
			t.Errorf("ids not increasing at %d: %d <= %d", i, line.ID, lines[i-1].ID)
		}
		if want := string(rune('a' + i%26)); line.Text != want {
			t.Errorf("line %d text = %q, want %q", i, line.Text, want)
		}
	}
}

func TestAppendLogCapDropsOldest(t *testing.T) {
	s := NewStore(WithMaxLogLines(3))
	for i := 0; i < 5; i++ {
		s.Notice(ToneSystem, string(rune('0'+i)))
	}

	lines := s.Snapshot().LogLines
	if len(lines) != 3 {
		t.Fatalf("len(LogLines) = %d, want 3", len(lines))
	}
	if lines[0].Text != "2" || lines[2].Text != "4" {
		t.Errorf("kept %q..%q, want 2..4", lines[0].Text, lines[2].Text)
	}
	if lines[2].ID != 5 {
		t.Errorf("last id = %d, want 5", lines[2].ID)
	}
}

func TestEnteringGameOpensChannelOnce(t *testing.T) {
	s, ch := inGameStore(t)

	if len(ch.connects) != 1 || ch.connects[0] != "tok/7" {
		t.Fatalf("connects = %v, want [tok/7]", ch.connects)
	}

	// Mutations while in game must not reconnect.
	s.ApplyVitals(VitalsUpdate{CurrentHP: intp(1)})
	s.SetActiveTab(TabChat)
	if len(ch.connects) != 1 {
		t.Errorf("connects after in-game actions = %d, want 1", len(ch.connects))
	}

	sess := s.Snapshot()
	if sess.CharacterID != "7" || sess.CharacterName != "Bob" || sess.CharacterClass != "Warrior" || sess.CharacterLevel != 3 {
		t.Errorf("identity = %q %q %q %d", sess.CharacterID, sess.CharacterName, sess.CharacterClass, sess.CharacterLevel)
	}
}

func TestSelectCharacterWithoutTokenLogsOut(t *testing.T) {
	ch := &fakeChannel{}
	s := NewStore(WithChannel(ch))
	s.SelectCharacter(Character{ID: "1", Name: "Ann"})

	if s.Phase() != PhaseLoggedOut {
		t.Errorf("Phase = %v, want PhaseLoggedOut", s.Phase())
	}
	if len(ch.connects) != 0 {
		t.Errorf("connects = %v, want none", ch.connects)
	}
}

func TestLogoutResetsFromAnyPhase(t *testing.T) {
	setups := map[string]func(*Store){
		"in_game": func(s *Store) {
			s.Login("tok")
			s.SelectCharacter(Character{ID: "7", Name: "Bob"})
			s.SetInventory(Inventory{Backpack: []BackpackEntry{{ID: "b1", Quantity: 2}}})
			s.SetCombat([]CombatTarget{{ID: "m1", Name: "Rat"}}, true)
		},
		"character_select": func(s *Store) { s.Login("tok") },
		"logged_out":       func(s *Store) {},
		"prompt_password": func(s *Store) {
			s.Apply(func(tx *Tx) { tx.EnterPassword("bob") })
		},
	}

	for name, setup := range setups {
		t.Run(name, func(t *testing.T) {
			ch := &fakeChannel{}
			p := &fakePersister{}
			s := NewStore(WithChannel(ch), WithPersister(p))
			setup(s)
			before := ch.disconnects

			s.Logout("")

			sess := s.Snapshot()
			if sess.AuthToken != "" || sess.CharacterID != "" {
				t.Errorf("credentials survived logout: %q %q", sess.AuthToken, sess.CharacterID)
			}
			if sess.Inventory != nil || sess.CombatTargets != nil || sess.InCombat {
				t.Error("inventory or combat survived logout")
			}
			if sess.Phase != PhaseLoggedOut {
				t.Errorf("Phase = %v, want PhaseLoggedOut", sess.Phase)
			}
			if ch.disconnects != before+1 {
				t.Errorf("disconnects = %d, want %d", ch.disconnects, before+1)
			}
			if p.cleared == 0 {
				t.Error("saved session not cleared")
			}
		})
	}
}

func TestLogoutReasonIsLogged(t *testing.T) {
	s, _ := inGameStore(t)
	s.Logout("Session expired.")

	lines := s.Snapshot().LogLines
	if len(lines) != 1 || lines[0].Text != "Session expired." {
		t.Fatalf("LogLines = %+v, want the logout reason only", lines)
	}
}

func TestSelectCharacterPersistsIdentity(t *testing.T) {
	p := &fakePersister{}
	s := NewStore(WithPersister(p))
	s.Login("tok")
	s.SelectCharacter(Character{ID: "9", Name: "Cid", ClassName: "Mage", Level: 2})

	if len(p.saved) != 1 {
		t.Fatalf("saved = %d, want 1", len(p.saved))
	}
	got := p.saved[0]
	if got.AccessToken != "tok" || got.CharacterID != "9" || got.CharacterName != "Cid" || got.CharacterClass != "Mage" {
		t.Errorf("saved = %+v", got)
	}
}

func TestPhaseExitDiscardsScratch(t *testing.T) {
	s := NewStore()
	s.Apply(func(tx *Tx) { tx.EnterPassword("bob") })
	if got := s.Snapshot().DraftUsername; got != "bob" {
		t.Fatalf("DraftUsername = %q, want bob", got)
	}

	s.Login("tok")
	if got := s.Snapshot().DraftUsername; got != "" {
		t.Errorf("DraftUsername after login = %q, want empty", got)
	}

	s.Apply(func(tx *Tx) { tx.ShowCharacters([]Character{{ID: "1", Name: "A"}}) })
	s.Apply(func(tx *Tx) {
		tx.StartCharacterCreation()
		tx.SetAvailableClasses([]Class{{ID: "c1", Name: "Warrior"}})
	})
	sess := s.Snapshot()
	if sess.AvailableCharacters != nil {
		t.Error("AvailableCharacters survived leaving CharacterSelect")
	}
	if len(sess.AvailableClasses) != 1 {
		t.Errorf("AvailableClasses = %v, want one class", sess.AvailableClasses)
	}

	s.Apply(func(tx *Tx) { tx.EnterCharacterClass("Hero") })
	if got := s.Snapshot(); got.DraftCharacterName != "Hero" || len(got.AvailableClasses) != 1 {
		t.Errorf("class phase lost scratch: %q %v", got.DraftCharacterName, got.AvailableClasses)
	}

	s.FinishCharacterCreation()
	sess = s.Snapshot()
	if sess.DraftCharacterName != "" || sess.AvailableClasses != nil {
		t.Error("creation scratch survived FinishCharacterCreation")
	}
}

func TestSetActiveTab(t *testing.T) {
	s := NewStore()
	s.Apply(func(tx *Tx) { tx.FlagUnreadChat() })
	if !s.Snapshot().ChatUnread {
		t.Fatal("ChatUnread = false after flag on log tab")
	}

	if s.SetActiveTab("bogus") {
		t.Error("SetActiveTab(bogus) = true, want false")
	}
	if !s.SetActiveTab(TabChat) {
		t.Fatal("SetActiveTab(chat) = false")
	}
	sess := s.Snapshot()
	if sess.ActiveTab != TabChat || sess.ChatUnread {
		t.Errorf("ActiveTab = %q ChatUnread = %v, want chat/false", sess.ActiveTab, sess.ChatUnread)
	}

	s.Apply(func(tx *Tx) { tx.FlagUnreadChat() })
	if s.Snapshot().ChatUnread {
		t.Error("chat flagged unread while chat tab is showing")
	}
}

func TestSetCombat(t *testing.T) {
	s := NewStore()
	targets := []CombatTarget{{ID: "m1", Name: "Rat", HP: Meter{Current: 3, Max: 5}}}

	s.SetCombat(targets, true)
	sess := s.Snapshot()
	if !sess.InCombat || len(sess.CombatTargets) != 1 {
		t.Fatalf("InCombat = %v targets = %v", sess.InCombat, sess.CombatTargets)
	}

	s.SetCombat(nil, false)
	sess = s.Snapshot()
	if sess.InCombat || sess.CombatTargets != nil {
		t.Errorf("combat not cleared: %v %v", sess.InCombat, sess.CombatTargets)
	}
}

func TestApplyBatchNotifiesOnce(t *testing.T) {
	s := NewStore()
	calls := 0
	s.Subscribe(func() { calls++ })

	s.Apply(func(tx *Tx) {
		tx.ApplyVitals(VitalsUpdate{CurrentHP: intp(1)})
		tx.SetRoom(RoomData{ID: "R1", Z: 0})
		tx.Notice(ToneGame, "hello")
	})
	if calls != 1 {
		t.Errorf("notifications = %d, want 1", calls)
	}

	s.Apply(func(tx *Tx) {})
	if calls != 1 {
		t.Errorf("empty batch notified; calls = %d", calls)
	}
}

// recovered runs fn and reports whether it panicked.
func recovered(fn func()) (panicked bool) {
	defer func() { panicked = recover() != nil }()
	fn()
	return false
}

func TestApplyPanicRollsBackAndUnlocks(t *testing.T) {
	s, _ := inGameStore(t)

	if !recovered(func() {
		s.Apply(func(tx *Tx) {
			tx.Notice(ToneGame, "half done")
			tx.SetRoom(RoomData{ID: "R9"})
			panic("boom")
		})
	}) {
		t.Fatal("panic was swallowed")
	}

	done := make(chan Session, 1)
	go func() {
		s.Logout("")
		done <- s.Snapshot()
	}()
	select {
	case <-time.After(time.Second):
		t.Fatal("store still locked after a panicking batch")
	case after := <-done:
		if after.Phase != PhaseLoggedOut {
			t.Errorf("phase = %v, want logged_out", after.Phase)
		}
	}

	// The rolled-back batch left nothing behind, and ids stay unique.
	s2, _ := inGameStore(t)
	before := s2.Snapshot()
	recovered(func() {
		s2.Apply(func(tx *Tx) { tx.Notice(ToneGame, "lost"); panic("boom") })
	})
	snap := s2.Snapshot()
	if len(snap.LogLines) != len(before.LogLines) || snap.CurrentRoomID != before.CurrentRoomID {
		t.Errorf("partial batch visible: %d lines, room %q", len(snap.LogLines), snap.CurrentRoomID)
	}
	id := s2.AppendLog(LogLine{Text: "next"})
	for _, l := range snap.LogLines {
		if l.ID == id {
			t.Errorf("id %d reused", id)
		}
	}
}

func TestApplyPanicInEffectUnlocks(t *testing.T) {
	ch := &fakeChannel{panics: true}
	s := NewStore(WithChannel(ch))
	s.Login("tok")

	if !recovered(func() { s.SelectCharacter(Character{ID: "7", Name: "Bob"}) }) {
		t.Fatal("connect panic was swallowed")
	}

	done := make(chan Phase, 1)
	go func() {
		s.Logout("")
		done <- s.Phase()
	}()
	select {
	case <-time.After(time.Second):
		t.Fatal("store still locked after a panicking effect")
	case p := <-done:
		if p != PhaseLoggedOut {
			t.Errorf("phase = %v, want logged_out", p)
		}
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	s := NewStore()
	s.SetInventory(Inventory{Equipped: map[string]Item{"head": {ID: "i1", Name: "Cap"}}})
	s.Apply(func(tx *Tx) { tx.SetRoom(RoomData{ID: "R1"}) })

	snap := s.Snapshot()
	snap.Inventory.Equipped["head"] = Item{Name: "changed"}
	snap.CurrentRoom.ID = "X"

	again := s.Snapshot()
	if again.Inventory.Equipped["head"].Name != "Cap" {
		t.Error("snapshot shares inventory with the store")
	}
	if again.CurrentRoomID != "R1" || again.CurrentRoom.ID != "R1" {
		t.Error("snapshot shares current room with the store")
	}
}

func TestSetMapDataClearsStale(t *testing.T) {
	s := NewStore()
	s.Apply(func(tx *Tx) { tx.MarkMapStale() })
	s.SetMapData(world.NewLevel(2, nil))

	sess := s.Snapshot()
	if sess.MapStale {
		t.Error("MapStale = true after SetMapData")
	}
	if sess.Map == nil || sess.Map.Z != 2 {
		t.Errorf("Map = %+v, want level 2", sess.Map)
	}
}

func TestReconnectCyclesChannel(t *testing.T) {
	s, ch := inGameStore(t)

	if !s.Reconnect() {
		t.Fatal("Reconnect refused in game")
	}
	if ch.disconnects != 1 || len(ch.connects) != 2 {
		t.Errorf("disconnects = %d, connects = %v", ch.disconnects, ch.connects)
	}

	s.Logout("")
	if s.Reconnect() {
		t.Error("Reconnect accepted while logged out")
	}
	if len(ch.connects) != 2 {
		t.Errorf("connects after logged-out reconnect = %v", ch.connects)
	}
}
