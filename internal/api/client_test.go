package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

func newTestClient(t *testing.T, r chi.Router, retries int) *Client {
	t.Helper()
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return NewClient(Config{BaseURL: srv.URL + "/", Retries: retries, RetryInterval: time.Millisecond, InstanceID: "test"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestLoginSendsForm(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/users/login", func(w http.ResponseWriter, req *http.Request) {
		if ct := req.Header.Get("Content-Type"); ct != "application/x-www-form-urlencoded" {
			t.Errorf("Content-Type = %q", ct)
		}
		if req.Header.Get("Authorization") != "" {
			t.Error("login must not send a bearer token")
		}
		if req.Header.Get("X-Request-ID") == "" {
			t.Error("missing X-Request-ID")
		}
		if err := req.ParseForm(); err != nil {
			t.Fatalf("ParseForm: %v", err)
		}
		if req.PostForm.Get("username") != "bob" || req.PostForm.Get("password") != "hunter22" {
			t.Errorf("form = %v", req.PostForm)
		}
		writeJSON(w, http.StatusOK, map[string]string{"access_token": "tok", "token_type": "bearer"})
	})
	c := newTestClient(t, r, 0)

	token, err := c.Login(context.Background(), "bob", "hunter22")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if token != "tok" {
		t.Errorf("token = %q, want tok", token)
	}
}

func TestCommandSendsJSONWithBearer(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/command", func(w http.ResponseWriter, req *http.Request) {
		if got := req.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization = %q", got)
		}
		if ct := req.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		var body map[string]string
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body["command"] != "score" {
			t.Errorf("command = %q", body["command"])
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"message_to_player": "You are level 3.",
			"room_data":         map[string]any{"id": 12, "z": 1},
		})
	})
	c := newTestClient(t, r, 0)

	res, err := c.Command(context.Background(), "tok", "score")
	if err != nil {
		t.Fatalf("Command: %v", err)
	}
	if res.Message != "You are level 3." {
		t.Errorf("Message = %q", res.Message)
	}
	if res.Room == nil || res.Room.ID != "12" || res.Room.Z != 1 {
		t.Errorf("Room = %+v, want id 12 on level 1", res.Room)
	}
}

func TestHTTPErrorDetail(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		detail string
		auth   bool
	}{
		{"detail string", http.StatusUnauthorized, `{"detail":"Incorrect username or password"}`, "Incorrect username or password", true},
		{"forbidden", http.StatusForbidden, `{"detail":"Not your character"}`, "Not your character", true},
		{"error field", http.StatusConflict, `{"error":"Name taken"}`, "Name taken", false},
		{"validation list", http.StatusUnprocessableEntity, `{"detail":[{"msg":"too short"},{"msg":"bad chars"}]}`, "too short; bad chars", false},
		{"no body", http.StatusNotFound, ``, "Request failed with status 404.", false},
		{"not json", http.StatusBadRequest, `oops`, "Request failed with status 400.", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := chi.NewRouter()
			r.Post("/users/register", func(w http.ResponseWriter, req *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			c := newTestClient(t, r, 0)

			err := c.Register(context.Background(), "bob", "password1")
			var he *HTTPError
			if !errors.As(err, &he) {
				t.Fatalf("err = %v, want *HTTPError", err)
			}
			if he.Status != tt.status || he.Detail != tt.detail {
				t.Errorf("HTTPError = %d %q, want %d %q", he.Status, he.Detail, tt.status, tt.detail)
			}
			if IsAuthFailure(err) != tt.auth {
				t.Errorf("IsAuthFailure = %v, want %v", IsAuthFailure(err), tt.auth)
			}
			if Detail(err) != tt.detail {
				t.Errorf("Detail = %q", Detail(err))
			}
		})
	}
}

func TestNoContentYieldsNullResult(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/character/{id}/select", func(w http.ResponseWriter, req *http.Request) {
		if chi.URLParam(req, "id") != "7" {
			t.Errorf("id = %q", chi.URLParam(req, "id"))
		}
		w.WriteHeader(http.StatusNoContent)
	})
	c := newTestClient(t, r, 0)

	room, err := c.SelectCharacter(context.Background(), "tok", "7")
	if err != nil {
		t.Fatalf("SelectCharacter: %v", err)
	}
	if room != nil {
		t.Errorf("room = %+v, want nil", room)
	}
}

func TestGetRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	r := chi.NewRouter()
	r.Get("/character/mine", func(w http.ResponseWriter, req *http.Request) {
		if calls.Add(1) < 3 {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"detail": "busy"})
			return
		}
		writeJSON(w, http.StatusOK, []map[string]any{{"id": 1, "name": "Bob", "class_name": "Warrior", "level": 2}})
	})
	c := newTestClient(t, r, 2)

	chars, err := c.MyCharacters(context.Background(), "tok")
	if err != nil {
		t.Fatalf("MyCharacters: %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
	if len(chars) != 1 || chars[0].ID != "1" || chars[0].ClassName != "Warrior" {
		t.Errorf("chars = %+v", chars)
	}
}

func TestPostIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	r := chi.NewRouter()
	r.Post("/command", func(w http.ResponseWriter, req *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": "boom"})
	})
	c := newTestClient(t, r, 3)

	_, err := c.Command(context.Background(), "tok", "score")
	var he *HTTPError
	if !errors.As(err, &he) || he.Status != http.StatusInternalServerError {
		t.Fatalf("err = %v, want 500 HTTPError", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestTransportFailureIsGeneric(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	c := NewClient(Config{BaseURL: srv.URL})

	_, err := c.Command(context.Background(), "tok", "score")
	if err == nil {
		t.Fatal("expected failure against closed server")
	}
	if IsAuthFailure(err) {
		t.Error("transport failure reported as auth failure")
	}
	if Detail(err) != "Could not reach the server." {
		t.Errorf("Detail = %q", Detail(err))
	}
}

func TestLevelDataIndexesRooms(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/map/level_data", func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Query().Get("z_level") != "2" {
			t.Errorf("z_level = %q", req.URL.Query().Get("z_level"))
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"z_level": 2,
			"rooms":   []map[string]any{{"id": "R1", "x": 1, "y": 2, "exits": map[string]string{"north": "R2"}, "room_type": "road"}},
		})
	})
	c := newTestClient(t, r, 0)

	level, err := c.LevelData(context.Background(), "tok", 2)
	if err != nil {
		t.Fatalf("LevelData: %v", err)
	}
	room, ok := level.Room("R1")
	if !ok || room.RoomType != "road" || !room.HasExit("north") {
		t.Errorf("Room(R1) = %+v, %v", room, ok)
	}
}
