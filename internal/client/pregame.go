package client

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"

	"go.uber.org/zap"

	"github.com/peterkuimelis/colonia/internal/game"
	"github.com/peterkuimelis/colonia/internal/log"
	"github.com/peterkuimelis/colonia/internal/message"
	"github.com/peterkuimelis/colonia/internal/net"
)

// Lobby is what the server has told the client before the game starts.
type Lobby struct {
	Options     map[string]string // game options
	MapOptions  map[string]string // map generator options
	Available   map[string]string // nation -> availability
	NationTypes map[string]string // player -> nation type
}

func newLobby() Lobby {
	return Lobby{
		Options:     make(map[string]string),
		MapOptions:  make(map[string]string),
		Available:   make(map[string]string),
		NationTypes: make(map[string]string),
	}
}

func (l Lobby) clone() Lobby {
	return Lobby{
		Options:     maps.Clone(l.Options),
		MapOptions:  maps.Clone(l.MapOptions),
		Available:   maps.Clone(l.Available),
		NationTypes: maps.Clone(l.NationTypes),
	}
}

// LobbyState returns a copy of the lobby.
func (s *Session) LobbyState() Lobby {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lobby.clone()
}

func (s *Session) newPreGameRegistry() *net.Registry {
	r := net.NewRegistry("pre-game", s.logger)
	r.Register(message.TagAddPlayer, s.handleAddPlayer)
	r.Register(message.TagChat, s.handleChat)
	r.Register(message.TagError, s.handleError)
	r.Register(message.TagLogin, s.handlePlayerLogin)
	r.Register(message.TagLogout, s.handlePlayerLogout)
	r.Register(message.TagReady, s.handleReady)
	r.Register(message.TagSetAvailable, s.handleSetAvailable)
	r.Register(message.TagSetColor, s.handleSetColor)
	r.Register(message.TagSetNation, s.handleSetNation)
	r.Register(message.TagSetNationType, s.handleSetNationType)
	r.Register(message.TagStartGame, s.handleStartGame)
	r.Register(message.TagUpdate, s.handleUpdate)
	r.Register(message.TagUpdateGameOptions, s.optionsHandler(func(l *Lobby) map[string]string { return l.Options }))
	r.Register(message.TagUpdateMapGeneratorOptions, s.optionsHandler(func(l *Lobby) map[string]string { return l.MapOptions }))
	return r
}

func (s *Session) lobbyEvent(player, details string) {
	s.events.Log(log.NewEvent(0, log.EventLobby, s.playerName(player), details))
}

func (s *Session) lobbyPlayer(op string, msg *message.Message) (*game.Player, error) {
	p := s.game.Player(msg.Attr("player"))
	if p == nil {
		return nil, fmt.Errorf("%s: unknown player %q", op, msg.Attr("player"))
	}
	return p, nil
}

func (s *Session) handleAddPlayer(_ *net.Connection, msg *message.Message) (*message.Message, error) {
	for _, c := range msg.ChildrenOf(message.TagPlayer) {
		obj, err := s.codec.Decode(c, s.game)
		if err != nil {
			return nil, fmt.Errorf("addPlayer: %w", err)
		}
		s.lobbyEvent(obj.ObjectID(), "joined")
	}
	s.refresh()
	return nil, nil
}

// handlePlayerLogin is another player entering the lobby.
func (s *Session) handlePlayerLogin(_ *net.Connection, msg *message.Message) (*message.Message, error) {
	s.merge(msg)
	if id := msg.Attr("player"); id != "" {
		if s.game.Player(id) == nil {
			s.game.AddPlayer(&game.Player{ID: id, Name: msg.Attr("name"), European: true})
		}
		s.lobbyEvent(id, "logged in")
	}
	s.refresh()
	return nil, nil
}

func (s *Session) handlePlayerLogout(_ *net.Connection, msg *message.Message) (*message.Message, error) {
	id := msg.Attr("player")
	s.lobbyEvent(id, "logged out")
	s.game.Remove(id)
	delete(s.lobby.NationTypes, id)
	s.refresh()
	return nil, nil
}

func (s *Session) handleReady(_ *net.Connection, msg *message.Message) (*message.Message, error) {
	p, err := s.lobbyPlayer("ready", msg)
	if err != nil {
		return nil, err
	}
	p.Ready = msg.Bool("ready")
	s.refresh()
	return nil, nil
}

func (s *Session) handleSetAvailable(_ *net.Connection, msg *message.Message) (*message.Message, error) {
	nation := msg.Attr("nation")
	if nation == "" {
		return nil, errors.New("setAvailable: missing nation")
	}
	s.lobby.Available[nation] = msg.Attr("state")
	return nil, nil
}

func (s *Session) handleSetColor(_ *net.Connection, msg *message.Message) (*message.Message, error) {
	p, err := s.lobbyPlayer("setColor", msg)
	if err != nil {
		return nil, err
	}
	p.Color = msg.Attr("color")
	return nil, nil
}

func (s *Session) handleSetNation(_ *net.Connection, msg *message.Message) (*message.Message, error) {
	p, err := s.lobbyPlayer("setNation", msg)
	if err != nil {
		return nil, err
	}
	p.Nation = msg.Attr("nation")
	s.refresh()
	return nil, nil
}

func (s *Session) handleSetNationType(_ *net.Connection, msg *message.Message) (*message.Message, error) {
	p, err := s.lobbyPlayer("setNationType", msg)
	if err != nil {
		return nil, err
	}
	s.lobby.NationTypes[p.ID] = msg.Attr("nationType")
	return nil, nil
}

func (s *Session) optionsHandler(target func(*Lobby) map[string]string) net.HandlerFunc {
	return func(_ *net.Connection, msg *message.Message) (*message.Message, error) {
		opts := target(&s.lobby)
		for _, o := range msg.ChildrenOf(message.TagOption) {
			if id := o.Attr("id"); id != "" {
				opts[id] = o.Attr("value")
			}
		}
		return nil, nil
	}
}

func (s *Session) handleStartGame(_ *net.Connection, msg *message.Message) (*message.Message, error) {
	s.merge(msg)
	if !s.enterGame() {
		return nil, nil
	}
	if s.myTurn() {
		s.startTurn(s.ctx)
	} else {
		s.refresh()
	}
	return nil, nil
}

// enterGame swaps the lobby registry for the gameplay one. It happens
// once per session; later attempts are refused.
func (s *Session) enterGame() bool {
	if s.started {
		s.logger.Warn("game already started, ignoring second start")
		return false
	}
	s.started = true
	s.active = s.inGame
	s.sched.reset()
	s.lobbyEvent(s.player, "game started")
	return true
}

// login asks the server to admit the player. The reply names the local
// player and, when joining a running game, carries the game.
func (s *Session) login(ctx context.Context) (*message.Message, error) {
	reply, err := s.request(ctx, message.New(message.TagLogin, "name", s.name))
	if err != nil {
		return nil, err
	}
	player := reply.Attr("player")
	if player == "" {
		return nil, fmt.Errorf("login: reply names no player: %w", ErrRejected)
	}
	s.player = player
	return reply, nil
}

// Login joins the server. Joining a game already in progress goes straight
// to gameplay.
func (s *Session) Login(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if strings.TrimSpace(s.name) == "" {
		return s.invalid("login", "A player name is required.")
	}
	reply, err := s.login(ctx)
	if err != nil {
		return err
	}
	s.sched.reset()
	if gm := reply.Child(message.TagGame); gm != nil {
		if _, err := s.codec.Decode(gm, s.game); err != nil {
			return fmt.Errorf("login: %w", err)
		}
	}
	s.merge(reply)
	s.lobbyEvent(s.player, "logged in as "+s.name)
	s.logger.Info("logged in", zap.String("player", s.player), zap.Bool("inProgress", reply.Bool("started")))
	if reply.Bool("started") && s.enterGame() && s.myTurn() {
		s.startTurn(ctx)
		return nil
	}
	s.refresh()
	return nil
}

// lobbyOp runs fn under the session lock while still in the lobby.
func (s *Session) lobbyOp(op string, fn func(me *game.Player) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return s.invalid(op, "The game has already started.")
	}
	me := s.me()
	if me == nil {
		return s.invalid(op, "Log in first.")
	}
	defer s.refresh()
	return fn(me)
}

// SetReady marks the player ready, or not, to start.
func (s *Session) SetReady(ctx context.Context, ready bool) error {
	return s.lobbyOp("ready", func(me *game.Player) error {
		if err := s.sendAndWait(ctx, message.NewBuilder(message.TagReady).Bool("ready", ready).Build()); err != nil {
			return err
		}
		me.Ready = ready
		return nil
	})
}

// SetNation picks the nation to play.
func (s *Session) SetNation(ctx context.Context, nation string) error {
	return s.lobbyOp("setNation", func(me *game.Player) error {
		if state, ok := s.lobby.Available[nation]; ok && state != "AVAILABLE" {
			return s.invalid("setNation", nation+" is not available.")
		}
		if err := s.sendAndWait(ctx, message.New(message.TagSetNation, "nation", nation)); err != nil {
			return err
		}
		me.Nation = nation
		return nil
	})
}

// SetColor picks the player colour.
func (s *Session) SetColor(ctx context.Context, color string) error {
	return s.lobbyOp("setColor", func(me *game.Player) error {
		if err := s.sendAndWait(ctx, message.New(message.TagSetColor, "color", color)); err != nil {
			return err
		}
		me.Color = color
		return nil
	})
}

// RequestStartGame asks the server to launch once everyone is ready. The
// game itself starts when the server pushes startGame.
func (s *Session) RequestStartGame(ctx context.Context) error {
	return s.lobbyOp("requestLaunch", func(*game.Player) error {
		for _, p := range s.game.Players() {
			if p.European && !p.AI && !p.Ready {
				return s.invalid("requestLaunch", p.Name+" is not ready.")
			}
		}
		return s.sendAndWait(ctx, message.New(message.TagRequestLaunch))
	})
}
