// Package game wires the client together and runs its main loop.
package game

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	"github.com/samdwyer/mudlink/internal/api"
	"github.com/samdwyer/mudlink/internal/command"
	"github.com/samdwyer/mudlink/internal/dispatch"
	"github.com/samdwyer/mudlink/internal/gamedata"
	"github.com/samdwyer/mudlink/internal/push"
	"github.com/samdwyer/mudlink/internal/session"
	"github.com/samdwyer/mudlink/internal/telemetry"
	"github.com/samdwyer/mudlink/internal/ui"
)

const maxQueuedJobs = 16

// Game holds the running client.
type Game struct {
	cfg      Config
	screen   *ui.Screen
	renderer *ui.Renderer

	store      *session.Store
	persister  *session.FilePersister
	api        *api.Client
	push       *push.Client
	dispatcher *dispatch.Dispatcher
	interp     *command.Interpreter

	// jobs serializes submissions so the interpreter sees one at a time.
	jobs chan func(context.Context)
	busy atomic.Bool
	ctx  context.Context

	input   []rune
	running bool
}

// New creates a client drawing to the terminal.
func New(cfg Config, instanceID string) (*Game, error) {
	screen, err := ui.NewScreen()
	if err != nil {
		return nil, err
	}
	return newGame(cfg, instanceID, screen), nil
}

func newGame(cfg Config, instanceID string, screen *ui.Screen) *Game {
	g := &Game{
		cfg:      cfg,
		screen:   screen,
		renderer: ui.NewRenderer(screen, gamedata.MustLoadTheme()),
		jobs:     make(chan func(context.Context), maxQueuedJobs),
		ctx:      context.Background(),
		running:  true,
	}

	opts := []session.Option{session.WithMaxLogLines(cfg.MaxLogLines)}
	if cfg.StateFile != "" {
		g.persister = session.NewFilePersister(cfg.StateFile)
		opts = append(opts, session.WithPersister(g.persister))
	}
	g.store = session.NewStore(opts...)

	g.api = api.NewClient(api.Config{
		BaseURL:    cfg.APIBase,
		Timeout:    cfg.RequestTimeout,
		Retries:    cfg.RequestRetries,
		InstanceID: instanceID,
	})
	g.dispatcher = dispatch.New(g.store, g)
	g.push = push.NewClient(push.Config{
		BaseURL:           cfg.WSBase,
		ReconnectAttempts: cfg.ReconnectAttempts,
	}, push.WebsocketDialer{}, g.dispatcher)
	g.store.AttachChannel(g.push)

	g.interp = command.New(g.store, g.api, g.push, g.dispatcher, gamedata.MustLoadVerbs())
	return g
}

// Run executes the main loop until the player quits.
func (g *Game) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g.ctx = ctx

	tracer := telemetry.Tracer("game")
	_, initSpan := tracer.Start(ctx, "game.init")

	g.store.Subscribe(g.screen.Wake)
	go g.work(ctx)

	g.store.Notice(session.ToneSystem, "Welcome to mudlink. Enter your username, or 'new' to register.")
	resumed := g.resume()
	initSpan.SetAttributes(
		attribute.String("api.base", g.cfg.APIBase),
		attribute.Bool("session.resumed", resumed),
	)
	initSpan.End()

	for g.running {
		g.render()
		g.handleInput()
	}

	// Quitting is not a logout: the saved session stays for next time.
	g.push.Disconnect()
	g.screen.Close()
	return nil
}

// Close cleans up game resources.
func (g *Game) Close() {
	if g.screen != nil {
		g.screen.Close()
	}
}

// RefreshMap loads level z in the background.
func (g *Game) RefreshMap(z int) {
	token, charID := g.store.Credentials()
	go g.loadMap(g.ctx, token, charID, z)
}

// loadMap fetches a level and applies it if charID is still playing on that
// level. A response for a level the player has already left is dropped.
func (g *Game) loadMap(ctx context.Context, token string, charID session.ID, z int) {
	level, err := g.api.LevelData(ctx, token, z)
	if err != nil {
		if api.IsAuthFailure(err) && g.store.Phase() == session.PhaseInGame {
			g.store.Logout("Your session has expired: " + api.Detail(err))
			return
		}
		log.Warn().Err(err).Int("z", z).Msg("map refresh failed")
		return
	}
	g.store.Apply(func(tx *session.Tx) {
		if tx.Phase() != session.PhaseInGame || tx.CharacterID() != charID {
			return
		}
		if z, ok := tx.RoomLevel(); ok && z != level.Z {
			log.Debug().Int("map", level.Z).Int("room", z).Msg("dropping map for a level already left")
			return
		}
		tx.SetMapData(level)
	})
}

func (g *Game) resume() bool {
	if g.persister == nil {
		return false
	}
	saved, err := g.persister.Load()
	if err != nil {
		log.Warn().Err(err).Str("path", g.persister.Path).Msg("could not read saved session")
		return false
	}
	if !saved.Resumable(time.Now()) {
		return false
	}
	return g.enqueue(func(ctx context.Context) { g.interp.Resume(ctx, saved) })
}

func (g *Game) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-g.jobs:
			g.busy.Store(true)
			g.screen.Wake()
			job(ctx)
			g.busy.Store(false)
			g.screen.Wake()
		}
	}
}

func (g *Game) enqueue(job func(context.Context)) bool {
	select {
	case g.jobs <- job:
		return true
	default:
		g.store.Notice(session.ToneError, "Still working on earlier commands; try again in a moment.")
		return false
	}
}

func (g *Game) render() {
	g.renderer.Render(ui.View{
		Session:    g.store.Snapshot(),
		Input:      string(g.input),
		Connection: g.push.State().String(),
		Busy:       g.busy.Load(),
	})
}

// handleInput processes a single input event.
func (g *Game) handleInput() {
	switch ev := g.screen.PollEvent().(type) {
	case *tcell.EventKey:
		g.handleKeyEvent(ev)
	case *tcell.EventResize:
		g.screen.Sync()
	case nil:
		// The screen has been finalized.
		g.running = false
	}
}

// handleKeyEvent processes keyboard input.
func (g *Game) handleKeyEvent(ev *tcell.EventKey) {
	switch ev.Key() {
	case tcell.KeyEscape, tcell.KeyCtrlC:
		g.running = false
	case tcell.KeyEnter:
		g.submitInput()
	case tcell.KeyBackspace, tcell.KeyBackspace2:
		g.erase()
	case tcell.KeyCtrlU:
		g.input = nil
	case tcell.KeyTab:
		g.cycleTab()
	case tcell.KeyRune:
		g.input = append(g.input, ev.Rune())
	}
}

func (g *Game) erase() {
	if len(g.input) > 0 {
		g.input = g.input[:len(g.input)-1]
	}
}

func (g *Game) submitInput() {
	text := string(g.input)
	g.input = nil
	g.enqueue(func(ctx context.Context) { g.interp.Submit(ctx, text) })
}

// cycleTab moves to the next content tab while playing.
func (g *Game) cycleTab() {
	s := g.store.Snapshot()
	if s.Phase != session.PhaseInGame {
		return
	}
	for i, tab := range session.Tabs {
		if tab == s.ActiveTab {
			g.store.SetActiveTab(session.Tabs[(i+1)%len(session.Tabs)])
			return
		}
	}
}
