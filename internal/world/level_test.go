package world

import (
	"encoding/json"
	"testing"
)

func testLevel() *Level {
	return NewLevel(1, []Room{
		{ID: "R1", X: 0, Y: 0, Exits: map[string]string{"north": "R2", "east": "R3"}},
		{ID: "R2", X: 0, Y: -1, Exits: map[string]string{"south": "R1"}},
		{ID: "R3", X: 1, Y: 0, RoomType: "shop"},
	})
}

func TestLevelRoomLookup(t *testing.T) {
	l := testLevel()

	r, ok := l.Room("R2")
	if !ok {
		t.Fatal("Room(R2) not found")
	}
	if r.Y != -1 {
		t.Errorf("Room(R2).Y = %d, want -1", r.Y)
	}
	if l.Contains("R9") {
		t.Error("Contains(R9) = true, want false")
	}

	var nilLevel *Level
	if _, ok := nilLevel.Room("R1"); ok {
		t.Error("nil level should contain no rooms")
	}
}

func TestLevelNeighbors(t *testing.T) {
	l := testLevel()

	got := l.Neighbors("R1")
	want := []string{"R3", "R2"} // east, north
	if len(got) != len(want) {
		t.Fatalf("Neighbors(R1) = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Neighbors(R1)[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if n := l.Neighbors("missing"); n != nil {
		t.Errorf("Neighbors(missing) = %v, want nil", n)
	}
}

func TestLevelDecodeIndexesLazily(t *testing.T) {
	raw := `{"z_level":2,"rooms":[{"id":"A","x":3,"y":4,"exits":{"up":"B"},"room_type":"road"}]}`
	var l Level
	if err := json.Unmarshal([]byte(raw), &l); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if l.Z != 2 {
		t.Errorf("Z = %d, want 2", l.Z)
	}
	r, ok := l.Room("A")
	if !ok || !r.HasExit("up") {
		t.Errorf("Room(A) = %+v, %v; want room with up exit", r, ok)
	}
}

func TestLevelClone(t *testing.T) {
	l := testLevel()
	c := l.Clone()
	c.Rooms[0].Exits["north"] = "changed"

	if l.Rooms[0].Exits["north"] != "R2" {
		t.Error("Clone shares exit maps with the original")
	}
}

func TestRoomNumericID(t *testing.T) {
	var r Room
	if err := json.Unmarshal([]byte(`{"id":17,"x":1,"y":2}`), &r); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if r.ID != "17" || r.X != 1 || r.Y != 2 {
		t.Errorf("Room = %+v, want id 17 at (1,2)", r)
	}
}

func TestLevelNumericExits(t *testing.T) {
	raw := `{"z_level":0,"rooms":[{"id":1,"x":0,"y":0,"exits":{"north":2}},{"id":2,"x":0,"y":1,"exits":{"south":"1"}}]}`
	var l Level
	if err := json.Unmarshal([]byte(raw), &l); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got := l.Neighbors("1"); len(got) != 1 || got[0] != "2" {
		t.Errorf("Neighbors(1) = %v, want [2]", got)
	}
	if got := l.Neighbors("2"); len(got) != 1 || got[0] != "1" {
		t.Errorf("Neighbors(2) = %v, want [1]", got)
	}
}

func TestRoomRejectsBadExit(t *testing.T) {
	var r Room
	if err := json.Unmarshal([]byte(`{"id":1,"exits":{"north":true}}`), &r); err == nil {
		t.Error("boolean exit target accepted")
	}
}
