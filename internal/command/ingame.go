package command

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/samdwyer/mudlink/internal/api"
	"github.com/samdwyer/mudlink/internal/gamedata"
	"github.com/samdwyer/mudlink/internal/session"
)

func (in *Interpreter) inGame(ctx context.Context, text string) {
	if text == "" {
		return
	}
	in.store.Notice(session.ToneGame, "> "+text)

	fields := strings.Fields(text)
	verb, args := strings.ToLower(fields[0]), fields[1:]

	route := in.verbs.Route(verb)
	log.Debug().Str("verb", verb).Str("route", route.String()).Msg("routing command")

	switch route {
	case gamedata.RouteLocal:
		in.local(verb, args)
	case gamedata.RoutePush:
		in.push.Send(text)
	case gamedata.RouteRequest:
		in.request(ctx, verb, args, text)
	default:
		in.store.Notice(session.ToneSystem, fmt.Sprintf("Unrecognized command: %s. Type 'help' for a list.", verb))
	}
}

func (in *Interpreter) local(verb string, args []string) {
	switch verb {
	case "tab":
		if len(args) != 1 {
			in.store.Notice(session.ToneError, "Usage: tab <log|chat|inventory|map>")
			return
		}
		in.switchTab(args[0])
	case "logout":
		in.store.Logout("Logged out.")
	case "reconnect":
		in.store.Apply(func(tx *session.Tx) {
			if tx.Reconnect() {
				tx.Notice(session.ToneSystem, "Reconnecting...")
			}
		})
	case "help":
		in.help()
	default:
		// chat, inv, map and log are shorthands for tab.
		in.switchTab(verb)
	}
}

func (in *Interpreter) switchTab(name string) {
	tab, ok := in.verbs.Tab(name)
	if !ok || !in.store.SetActiveTab(tab) {
		in.store.Notice(session.ToneError, fmt.Sprintf("Unknown tab %q.", name))
	}
}

func (in *Interpreter) help() {
	in.store.Apply(func(tx *session.Tx) {
		tx.Notice(session.ToneSystem, "Client: "+strings.Join(sorted(in.verbs.Local), ", "))
		tx.Notice(session.ToneSystem, "Game: "+strings.Join(sorted(in.verbs.Push), ", "))
		tx.Notice(session.ToneSystem, "Info: "+strings.Join(sorted(in.verbs.Request), ", "))
	})
}

func (in *Interpreter) request(ctx context.Context, verb string, args []string, text string) {
	token, charID := in.store.Credentials()

	switch verb {
	case "abilities":
		abilities, err := in.backend.Abilities(ctx, token)
		if err != nil {
			in.requestFailed(err)
			return
		}
		in.inGameOnly(charID, func(tx *session.Tx) {
			if len(abilities) == 0 {
				tx.Notice(session.ToneGame, "You have not learned any abilities.")
				return
			}
			for _, a := range abilities {
				tx.Notice(session.ToneGame, fmt.Sprintf("%s (%d MP, level %d) - %s", a.Name, a.MPCost, a.LevelRequired, a.Description))
			}
		})

	case "hotbar":
		slot, err := strconv.Atoi(firstOr(args, ""))
		if err != nil || len(args) < 2 {
			in.store.Notice(session.ToneError, "Usage: hotbar <slot> <ability>")
			return
		}
		ability := strings.Join(args[1:], " ")
		if err := in.backend.AssignHotbar(ctx, token, slot, ability); err != nil {
			in.requestFailed(err)
			return
		}
		in.inGameOnly(charID, func(tx *session.Tx) {
			tx.Notice(session.ToneSystem, fmt.Sprintf("Hotbar slot %d set to %s.", slot, ability))
		})

	case "who":
		who, err := in.backend.Who(ctx, token)
		if err != nil {
			in.requestFailed(err)
			return
		}
		in.inGameOnly(charID, func(tx *session.Tx) {
			tx.Notice(session.ToneGame, fmt.Sprintf("%d online:", len(who)))
			for _, w := range who {
				tx.Notice(session.ToneGame, fmt.Sprintf("  %s, level %d %s", w.Name, w.Level, w.ClassName))
			}
		})

	default:
		res, err := in.backend.Command(ctx, token, text)
		if err != nil {
			in.requestFailed(err)
			return
		}
		var lines []string
		if res.Message != "" {
			lines = []string{res.Message}
		}
		if !in.rooms.ApplyRoomUpdate(charID, lines, res.Room) {
			log.Debug().Str("command", text).Msg("dropping command result for a finished session")
		}
	}
}

func (in *Interpreter) requestFailed(err error) {
	if in.authFailed(err) {
		return
	}
	in.only(session.PhaseInGame, func(tx *session.Tx) {
		tx.Notice(session.ToneError, api.Detail(err))
	})
}

// inGameOnly applies fn only if charID is still playing.
func (in *Interpreter) inGameOnly(charID session.ID, fn func(tx *session.Tx)) {
	in.store.Apply(func(tx *session.Tx) {
		if tx.Phase() != session.PhaseInGame || tx.CharacterID() != charID {
			return
		}
		fn(tx)
	})
}

func firstOr(args []string, def string) string {
	if len(args) == 0 {
		return def
	}
	return args[0]
}

func sorted(verbs []string) []string {
	out := append([]string(nil), verbs...)
	sort.Strings(out)
	return out
}
