package client

import (
	"context"
	stdnet "net"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/peterkuimelis/colonia/internal/game"
	"github.com/peterkuimelis/colonia/internal/gui"
	"github.com/peterkuimelis/colonia/internal/log"
	"github.com/peterkuimelis/colonia/internal/message"
	"github.com/peterkuimelis/colonia/internal/net"
)

// fakeServer answers client requests from per-tag scripts and records
// everything it receives. A tag without a script is answered with "ok".
type fakeServer struct {
	t    *testing.T
	conn *net.Connection

	mu       sync.Mutex
	received []*message.Message
	scripts  map[message.Tag][]func(*message.Message) *message.Message
}

func (f *fakeServer) Dispatch(_ *net.Connection, msg *message.Message) (*message.Message, error) {
	f.mu.Lock()
	f.received = append(f.received, msg)
	var fn func(*message.Message) *message.Message
	if script := f.scripts[msg.Tag()]; len(script) > 0 {
		fn = script[0]
		if len(script) > 1 {
			f.scripts[msg.Tag()] = script[1:]
		}
	}
	f.mu.Unlock()
	if fn == nil {
		return nil, nil
	}
	return fn(msg), nil
}

// on queues handlers for tag. The last one keeps answering once the
// others are used up.
func (f *fakeServer) on(tag message.Tag, fns ...func(*message.Message) *message.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts[tag] = append(f.scripts[tag], fns...)
}

// reply queues fixed replies for tag.
func (f *fakeServer) reply(tag message.Tag, replies ...*message.Message) {
	for _, r := range replies {
		f.on(tag, func(*message.Message) *message.Message { return r })
	}
}

func (f *fakeServer) sent(tag message.Tag) []*message.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*message.Message
	for _, m := range f.received {
		if m.Tag() == tag {
			out = append(out, m)
		}
	}
	return out
}

func (f *fakeServer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.received)
}

// push delivers msg as a request and returns once the client has handled
// it, so assertions can follow immediately.
func (f *fakeServer) push(msg *message.Message) *message.Message {
	f.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	reply, err := f.conn.Ask(ctx, msg)
	if err != nil {
		f.t.Fatalf("push %s: %v", msg.Tag(), err)
	}
	return reply
}

// scriptedPresenter answers dialogs from queues and records what it was
// shown. An exhausted confirm queue answers defaultConfirm; an exhausted
// choice queue cancels.
type scriptedPresenter struct {
	mu             sync.Mutex
	confirms       []bool
	defaultConfirm bool
	choiceAnswers  []string

	infos     []string
	errors    []string
	asked     []string
	choices   [][]gui.Choice
	active    []string
	chats     []string
	refreshes int
}

func (p *scriptedPresenter) ShowInformationMessage(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.infos = append(p.infos, text)
}

func (p *scriptedPresenter) ShowErrorMessage(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errors = append(p.errors, text)
}

func (p *scriptedPresenter) ShowConfirmDialog(text, _, _ string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.asked = append(p.asked, text)
	if len(p.confirms) == 0 {
		return p.defaultConfirm
	}
	answer := p.confirms[0]
	p.confirms = p.confirms[1:]
	return answer
}

func (p *scriptedPresenter) ShowChoiceDialog(text string, choices []gui.Choice) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.asked = append(p.asked, text)
	p.choices = append(p.choices, choices)
	if len(p.choiceAnswers) == 0 {
		return "", false
	}
	key := p.choiceAnswers[0]
	p.choiceAnswers = p.choiceAnswers[1:]
	return key, key != ""
}

func (p *scriptedPresenter) Refresh() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refreshes++
}

func (p *scriptedPresenter) SetActiveUnit(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.active = append(p.active, id)
}

func (p *scriptedPresenter) DisplayChat(sender, text string, _ bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.chats = append(p.chats, sender+": "+text)
}

func (p *scriptedPresenter) answer(keys ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.choiceAnswers = append(p.choiceAnswers, keys...)
}

func (p *scriptedPresenter) confirm(answers ...bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.confirms = append(p.confirms, answers...)
}

func (p *scriptedPresenter) sawInfo(substr string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.ContainsFunc(p.infos, func(s string) bool { return strings.Contains(s, substr) })
}

func (p *scriptedPresenter) activeCalls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.active)
}

type harness struct {
	t      *testing.T
	s      *Session
	g      *game.Game
	srv    *fakeServer
	ui     *scriptedPresenter
	events *log.MemoryLogger
}

// newHarness connects a session to a fake server over a pipe. The session
// is logged in as player:1, in game, on the map drawn by rows: '.' land,
// '~' ocean, 'H' high seas, 'R' land with a lost city rumour.
func newHarness(t *testing.T, opts Options, rows ...string) *harness {
	t.Helper()
	a, b := stdnet.Pipe()
	cc := net.NewConnection(a, net.Options{Name: "client"})
	sc := net.NewConnection(b, net.Options{Name: "server"})
	srv := &fakeServer{t: t, conn: sc, scripts: make(map[message.Tag][]func(*message.Message) *message.Message)}
	sc.SetHandler(srv)

	ui := &scriptedPresenter{}
	events := log.NewMemoryLogger()
	opts.Name = "alice"
	opts.Presenter = ui
	opts.Events = events
	s := New(cc, opts)
	cc.Start()
	sc.Start()
	t.Cleanup(func() {
		_ = s.Close()
		_ = sc.Close()
	})

	g := buildMap(t, rows...)
	s.game = g
	s.player = "player:1"
	s.started = true
	s.active = s.inGame
	return &harness{t: t, s: s, g: g, srv: srv, ui: ui, events: events}
}

// lobbyHarness is a session that has not logged in yet.
func lobbyHarness(t *testing.T) *harness {
	t.Helper()
	h := newHarness(t, Options{})
	h.s.game = game.NewGame("")
	h.g = h.s.game
	h.s.player = ""
	h.s.started = false
	h.s.active = h.s.preGame
	return h
}

func buildMap(t *testing.T, rows ...string) *game.Game {
	t.Helper()
	g := game.NewGame("game:1")
	g.Turn = 1
	for y, row := range rows {
		for x, c := range row {
			tile := &game.Tile{ID: game.TileID(x, y), X: x, Y: y, Type: "plains", Explored: true}
			switch c {
			case '.':
			case '~':
				tile.Type = game.TileOcean
			case 'H':
				tile.Type = game.TileHighSeas
			case 'R':
				tile.LostCityRumour = true
			default:
				t.Fatalf("bad map cell %q at %d,%d", c, x, y)
			}
			g.AddTile(tile)
		}
	}
	g.AddPlayer(&game.Player{ID: "player:1", Name: "Alice", Nation: "dutch", European: true, Gold: 1000})
	g.AddPlayer(&game.Player{ID: "player:2", Name: "Bob", Nation: "english", European: true})
	g.AddPlayer(&game.Player{ID: "player:9", Name: "Arawak", Nation: "arawak"})
	g.CurrentPlayer = "player:1"
	return g
}

func addUnit(g *game.Game, id, owner string, x, y, moves int) *game.Unit {
	u := &game.Unit{
		ID:           id,
		Owner:        owner,
		Type:         "freeColonist",
		Location:     game.TileID(x, y),
		MovesLeft:    moves,
		InitialMoves: moves,
		State:        game.StateActive,
		LineOfSight:  1,
	}
	g.AddUnit(u)
	return u
}

func addShip(g *game.Game, id, owner string, x, y, moves, space int) *game.Unit {
	u := addUnit(g, id, owner, x, y, moves)
	u.Type = "caravel"
	u.Naval = true
	u.Space = space
	return u
}

func addSettlement(g *game.Game, id, owner string, x, y int, colony bool) *game.Settlement {
	s := &game.Settlement{ID: id, Name: id, Owner: owner, Tile: game.TileID(x, y), Colony: colony}
	g.AddSettlement(s)
	return s
}

// linePath always plans straight steps east from the unit's tile.
type linePath struct{ steps int }

func (p linePath) FindPath(_ *game.Unit, from, _ *game.Tile) []game.PathNode {
	path := make([]game.PathNode, 0, p.steps)
	for i := 1; i <= p.steps; i++ {
		path = append(path, game.PathNode{Tile: game.TileID(from.X+i, from.Y), Direction: game.East})
	}
	return path
}

func okReply(*message.Message) *message.Message { return message.New(message.TagOK) }

func errorReply(text string) func(*message.Message) *message.Message {
	return func(*message.Message) *message.Message {
		return message.New(message.TagError, "message", text)
	}
}
