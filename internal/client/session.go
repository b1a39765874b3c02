// Package client keeps the local replica of a game in step with the server.
//
// A Session owns the replicated graph. Controller methods express player
// intent: they check the turn, change the replica optimistically inside a
// game.Tx, send the request and merge the reply, rolling back on failure.
// Server pushes arrive through two handler registries, one for the lobby
// and one for gameplay. Session.mu is held for the whole of every
// controller call and every inbound dispatch, so the graph is only ever
// touched by one goroutine at a time.
package client

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/peterkuimelis/colonia/internal/game"
	"github.com/peterkuimelis/colonia/internal/gui"
	"github.com/peterkuimelis/colonia/internal/log"
	"github.com/peterkuimelis/colonia/internal/message"
	"github.com/peterkuimelis/colonia/internal/net"
)

var (
	// ErrNotYourTurn is returned by turn-bound operations outside the local
	// player's turn. Nothing is sent.
	ErrNotYourTurn = errors.New("not your turn")

	// ErrInvalidState is returned when an operation does not apply to the
	// current state of the replica. Nothing is sent.
	ErrInvalidState = errors.New("invalid state")

	// ErrRejected is returned when the server answers with an error.
	ErrRejected = errors.New("rejected by server")
)

// Autosaver stores turn-start snapshots. *store.Store implements it.
type Autosaver interface {
	Save(ctx context.Context, session, gameID string, turn int, player string, snapshot *message.Message) (int64, error)
	Prune(ctx context.Context, gameID string, keep int) (int64, error)
}

// Options configures a Session.
type Options struct {
	// Name is the login name.
	Name string

	Logger     *zap.Logger
	Presenter  gui.Presenter
	Codec      game.Codec
	PathFinder game.PathFinder // nil uses a GridPathFinder over the replica
	Events     log.EventLogger

	Autosave      Autosaver
	AutosaveEvery int // turns between autosaves, 0 disables
	AutosaveKeep  int

	// AutoEndTurn ends the turn once no unit needs the player.
	AutoEndTurn bool

	// IgnoreFor is how many turns an ignored model message stays hidden.
	IgnoreFor int
	// Suppress lists model message keys that are never shown.
	Suppress []string
}

// ModelMessage is a server notice queued for display at turn start.
type ModelMessage struct {
	Key  string
	Text string
	Turn int
}

// Session is one client's view of one server connection.
type Session struct {
	mu sync.Mutex

	id       string
	conn     *net.Connection
	logger   *zap.Logger
	gui      gui.Presenter
	codec    game.Codec
	finder   game.PathFinder
	events   log.EventLogger
	opts     Options
	ctx      context.Context
	cancel   context.CancelFunc
	status   atomic.Value // string

	name    string
	player  string
	game    *game.Game
	lobby   Lobby
	started bool

	preGame *net.Registry
	inGame  *net.Registry
	active  *net.Registry

	sched    scheduler
	ignored  *IgnoredMessages
	messages []ModelMessage
}

// New builds a session over conn and installs its handler. The caller
// starts the connection.
func New(conn *net.Connection, opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	presenter := opts.Presenter
	if presenter == nil {
		presenter = nopPresenter{}
	}
	codec := opts.Codec
	if codec == nil {
		codec = game.AttrCodec{}
	}
	events := opts.Events
	if events == nil {
		events = log.NewMemoryLogger()
	}
	if opts.AutosaveKeep <= 0 {
		opts.AutosaveKeep = 10
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:      uuid.NewString(),
		conn:    conn,
		gui:     presenter,
		codec:   codec,
		finder:  opts.PathFinder,
		events:  events,
		opts:    opts,
		ctx:     ctx,
		cancel:  cancel,
		name:    opts.Name,
		game:    game.NewGame(""),
		lobby:   newLobby(),
		ignored: NewIgnoredMessages(opts.IgnoreFor),
	}
	s.logger = logger.With(zap.String("session", s.id))
	s.status.Store("")
	s.preGame = s.newPreGameRegistry()
	s.inGame = s.newInGameRegistry()
	s.active = s.preGame
	conn.SetHandler(lockedHandler{s})
	return s
}

// lockedHandler serializes inbound dispatch with controller calls.
type lockedHandler struct{ s *Session }

func (h lockedHandler) Dispatch(conn *net.Connection, msg *message.Message) (*message.Message, error) {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	return h.s.active.Dispatch(conn, msg)
}

// ID returns the session id used in journals and autosaves.
func (s *Session) ID() string { return s.id }

// Events returns the player-facing event history.
func (s *Session) Events() log.EventLogger { return s.events }

// Status returns the last rendered summary of the replica. It never
// blocks, so presenters may call it from the UI goroutine.
func (s *Session) Status() string { return s.status.Load().(string) }

// Player returns the local player id, "" before login.
func (s *Session) Player() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.player
}

// InGame reports whether the lobby has handed over to the game.
func (s *Session) InGame() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// View runs fn with the replica locked. fn must not call back into the
// session and must not retain g.
func (s *Session) View(fn func(g *game.Game, player string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.game, s.player)
}

// Close cancels work in flight and closes the connection.
func (s *Session) Close() error {
	s.cancel()
	return s.conn.Close()
}

func (s *Session) pathFinder() game.PathFinder {
	if s.finder != nil {
		return s.finder
	}
	return game.GridPathFinder{Game: s.game}
}

func (s *Session) turn() int { return s.game.Turn }

func (s *Session) me() *game.Player { return s.game.Player(s.player) }

func (s *Session) playerName(id string) string {
	if p := s.game.Player(id); p != nil && p.Name != "" {
		return p.Name
	}
	return id
}

// refresh re-renders the status summary and asks the UI to redraw.
func (s *Session) refresh() {
	s.status.Store(renderStatus(s.game, s.player, s.sched.activeUnit, s.sched.state()))
	s.gui.Refresh()
}

// checkTurn is the precondition gate of every turn-bound operation.
func (s *Session) checkTurn(op string) error {
	if !s.started {
		s.gui.ShowInformationMessage("The game has not started yet.")
		return fmt.Errorf("%s: %w", op, ErrInvalidState)
	}
	if s.game.CurrentPlayer != s.player {
		s.gui.ShowInformationMessage("Not your turn.")
		return fmt.Errorf("%s: %w", op, ErrNotYourTurn)
	}
	return nil
}

// ownUnit resolves a live unit of the local player.
func (s *Session) ownUnit(op, id string) (*game.Unit, error) {
	u := s.game.Unit(id)
	if u == nil || u.Disposed || u.Owner != s.player {
		s.gui.ShowErrorMessage(fmt.Sprintf("No such unit: %s", id))
		return nil, fmt.Errorf("%s %s: %w", op, id, ErrInvalidState)
	}
	return u, nil
}

// invalid shows text and returns an ErrInvalidState error.
func (s *Session) invalid(op, text string) error {
	s.gui.ShowInformationMessage(text)
	return fmt.Errorf("%s: %s: %w", op, text, ErrInvalidState)
}

// request asks and returns the reply. Error replies are shown to the
// player and returned as ErrRejected.
func (s *Session) request(ctx context.Context, msg *message.Message) (*message.Message, error) {
	reply, err := s.conn.Ask(ctx, msg)
	if err != nil {
		s.logger.Warn("request failed", zap.String("tag", string(msg.Tag())), zap.Error(err))
		return nil, fmt.Errorf("%s: %w", msg.Tag(), err)
	}
	if reply.IsError() {
		text := reply.Attr("message")
		s.gui.ShowErrorMessage(text)
		s.events.Log(log.NewServerErrorEvent(s.turn(), text))
		return nil, fmt.Errorf("%s: %s: %w", msg.Tag(), text, ErrRejected)
	}
	return reply, nil
}

// send writes a fire-and-forget message.
func (s *Session) send(ctx context.Context, msg *message.Message) error {
	if err := s.conn.Send(ctx, msg); err != nil {
		s.logger.Warn("send failed", zap.String("tag", string(msg.Tag())), zap.Error(err))
		return fmt.Errorf("%s: %w", msg.Tag(), err)
	}
	return nil
}

// sendAndWait writes a request and waits until the server has handled it.
func (s *Session) sendAndWait(ctx context.Context, msg *message.Message) error {
	_, err := s.request(ctx, msg)
	return err
}

// apply merges the authoritative data of a reply into the replica. Pushes
// nested in the reply go through the in-game registry; bare object
// elements are merged with the codec.
func (s *Session) apply(reply *message.Message) error {
	if reply == nil {
		return nil
	}
	if reply.Tag() != message.TagOK && s.inGame.Handles(reply.Tag()) {
		return s.dispatchReply(reply)
	}
	for _, c := range reply.Children() {
		if s.inGame.Handles(c.Tag()) {
			if err := s.dispatchReply(c); err != nil {
				return err
			}
			continue
		}
		if isObjectTag(c.Tag()) {
			if _, err := s.codec.Decode(c, s.game); err != nil {
				s.logger.Warn("bad object in reply", zap.Stringer("msg", c), zap.Error(err))
			}
		}
	}
	return nil
}

func (s *Session) dispatchReply(m *message.Message) error {
	if _, err := s.inGame.Dispatch(s.conn, m); err != nil {
		s.logger.Error("fatal reply, closing connection", zap.Stringer("msg", m), zap.Error(err))
		_ = s.conn.Close()
		return err
	}
	return nil
}

func isObjectTag(t message.Tag) bool {
	return slices.Contains([]message.Tag{
		message.TagGame, message.TagPlayer, message.TagUnit, message.TagTile,
		message.TagSettlement, message.TagTradeRoute,
	}, t)
}

// nopPresenter answers every dialog with cancel.
type nopPresenter struct{}

func (nopPresenter) ShowInformationMessage(string)                        {}
func (nopPresenter) ShowErrorMessage(string)                              {}
func (nopPresenter) ShowConfirmDialog(string, string, string) bool        { return false }
func (nopPresenter) ShowChoiceDialog(string, []gui.Choice) (string, bool) { return "", false }
func (nopPresenter) Refresh()                                             {}
func (nopPresenter) SetActiveUnit(string)                                 {}
func (nopPresenter) DisplayChat(string, string, bool)                     {}
