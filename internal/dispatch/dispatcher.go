package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	"github.com/samdwyer/mudlink/internal/session"
	"github.com/samdwyer/mudlink/internal/telemetry"
)

// MapRefresher loads the map level a room lives on. RefreshMap must not block
// on the store; it is called after a batch has committed.
type MapRefresher interface {
	RefreshMap(z int)
}

// Dispatcher applies server events to a session store. It implements
// push.Handler.
type Dispatcher struct {
	store *session.Store
	maps  MapRefresher
}

// New creates a dispatcher. maps may be nil.
func New(store *session.Store, maps MapRefresher) *Dispatcher {
	return &Dispatcher{store: store, maps: maps}
}

// HandleMessage parses one raw payload and dispatches it.
func (d *Dispatcher) HandleMessage(payload []byte) {
	ev, err := Parse(payload)
	var bad *MalformedError
	switch {
	case errors.As(err, &bad):
		log.Warn().Err(err).Msg("dropping malformed event")
		d.store.Notice(session.ToneError, fmt.Sprintf("Ignored malformed %s event.", bad.Kind))
	case err != nil:
		log.Debug().Err(err).Msg("unparsed push payload")
		d.store.AppendLog(session.LogLine{Kind: session.KindMarkup, Tone: session.ToneSystem, Text: string(payload)})
	default:
		d.Dispatch(ev)
	}
}

// HandleClosed records an unrequested close. Combat cannot continue without a
// connection.
func (d *Dispatcher) HandleClosed(code int, reason string) {
	d.store.Apply(func(tx *session.Tx) {
		tx.SetCombat(nil, false)
		text := fmt.Sprintf("Connection closed (code %d).", code)
		if reason != "" {
			text = fmt.Sprintf("Connection closed (code %d): %s", code, reason)
		}
		tx.Notice(session.ToneError, text+" Type 'reconnect' to try again.")
	})
}

// HandleNotConnected reports a command dropped because the channel is down.
func (d *Dispatcher) HandleNotConnected(commandText string) {
	d.store.Notice(session.ToneError, fmt.Sprintf("Not connected: %q was not sent.", commandText))
}

// Dispatch applies ev as one batch. State changes come first and log lines
// last, so the log never describes a state that is not yet visible.
func (d *Dispatcher) Dispatch(ev Event) {
	_, span := telemetry.Tracer("dispatch").Start(context.Background(), "dispatch.event")
	span.SetAttributes(attribute.String("event.kind", ev.Kind()))
	defer span.End()

	refresh, z := false, 0

	d.store.Apply(func(tx *session.Tx) {
		switch ev := ev.(type) {
		case Welcome:
			if ev.Vitals != nil {
				tx.ApplyVitals(*ev.Vitals)
			}
			if ev.Room != nil {
				tx.SetRoom(*ev.Room)
				tx.MarkMapStale()
				refresh, z = true, ev.Room.Z
			}
			appendMarkup(tx, ev.Log)

		case CombatUpdate:
			if ev.Vitals != nil {
				tx.ApplyVitals(*ev.Vitals)
			}
			tx.SetCombat(ev.Targets, !ev.CombatOver)
			refresh, z = applyRoom(tx, ev.Room)
			appendMarkup(tx, ev.Log)

		case LookResponse:
			look := ev.Look
			tx.AppendLog(session.LogLine{
				Kind: session.KindStructuredLook,
				Tone: session.ToneGame,
				Text: look.Message,
				Look: &look,
			})

		case VitalsUpdate:
			tx.ApplyVitals(ev.Vitals)

		case InventoryUpdate:
			tx.SetInventory(ev.Inventory)

		case Chat:
			tx.FlagUnreadChat()
			tx.AppendLog(session.LogLine{
				Kind:   session.KindMarkup,
				Tone:   session.ToneChat,
				Text:   ev.Message,
				Sender: ev.Sender,
			})

		case Unknown:
			tx.Notice(session.ToneSystem, fmt.Sprintf("[%s] %s", ev.Tag, ev.Raw))
		}
	})

	if refresh && d.maps != nil {
		span.SetAttributes(attribute.Int("map.z", z))
		d.maps.RefreshMap(z)
	}
}

// ApplyRoomUpdate applies a request-channel command result the way a combat
// update applies its room and log lines. The result is dropped, and false
// returned, unless charID is still the character in the game.
func (d *Dispatcher) ApplyRoomUpdate(charID session.ID, lines []string, room *session.RoomData) bool {
	applied, refresh, z := false, false, 0
	d.store.Apply(func(tx *session.Tx) {
		if tx.Phase() != session.PhaseInGame || tx.CharacterID() != charID {
			return
		}
		refresh, z = applyRoom(tx, room)
		appendMarkup(tx, lines)
		applied = true
	})
	if refresh && d.maps != nil {
		d.maps.RefreshMap(z)
	}
	return applied
}

// applyRoom moves to room and marks the map stale when room is on a different
// level than the loaded map. It reports whether a refresh is needed.
func applyRoom(tx *session.Tx, room *session.RoomData) (bool, int) {
	if room == nil {
		return false, 0
	}
	tx.SetRoom(*room)
	if z, ok := tx.MapLevel(); ok && z == room.Z {
		return false, 0
	}
	tx.MarkMapStale()
	return true, room.Z
}

func appendMarkup(tx *session.Tx, lines []string) {
	for _, line := range lines {
		tx.AppendLog(session.LogLine{Kind: session.KindMarkup, Tone: session.ToneGame, Text: line})
	}
}
