package client

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/peterkuimelis/colonia/internal/game"
	"github.com/peterkuimelis/colonia/internal/log"
	"github.com/peterkuimelis/colonia/internal/message"
)

func lobbyPlayer(id, name string, ready bool) *message.Message {
	return message.NewBuilder(message.TagPlayer).
		Attr("id", id).
		Attr("name", name).
		Bool("european", true).
		Bool("ready", ready).
		Build()
}

func lobbyEvents(events *log.MemoryLogger, details string) int {
	n := 0
	for _, e := range events.EventsOfType(log.EventLobby) {
		if strings.Contains(e.Details, details) {
			n++
		}
	}
	return n
}

func TestLoginJoinsLobby(t *testing.T) {
	h := lobbyHarness(t)
	h.srv.reply(message.TagLogin, message.NewBuilder(message.TagOK).
		Attr("player", "player:1").
		Child(lobbyPlayer("player:1", "alice", false)).
		Build())

	if err := h.s.Login(context.Background()); err != nil {
		t.Fatalf("Login: %v", err)
	}
	sent := h.srv.sent(message.TagLogin)
	if len(sent) != 1 || sent[0].Attr("name") != "alice" {
		t.Fatalf("login = %v", sent)
	}
	if h.s.player != "player:1" || h.s.started {
		t.Fatalf("player %q started %v", h.s.player, h.s.started)
	}
	if p := h.g.Player("player:1"); p == nil || p.Name != "alice" {
		t.Fatalf("player = %+v", p)
	}
	if lobbyEvents(h.events, "logged in as alice") != 1 {
		t.Fatalf("events = %v", h.events.Events())
	}
}

func TestLoginNeedsNameAndPlayer(t *testing.T) {
	h := lobbyHarness(t)
	h.s.name = "  "
	if err := h.s.Login(context.Background()); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("Login without name = %v", err)
	}
	if h.srv.count() != 0 {
		t.Fatal("sent a login without a name")
	}

	h.s.name = "alice"
	if err := h.s.Login(context.Background()); !errors.Is(err, ErrRejected) {
		t.Fatalf("Login with bare ok = %v", err)
	}
	h.srv.on(message.TagLogin, errorReply("The server is full."))
	if err := h.s.Login(context.Background()); !errors.Is(err, ErrRejected) {
		t.Fatalf("Login refused = %v", err)
	}
	if h.s.started {
		t.Fatal("started after a failed login")
	}
}

func TestLoginIntoRunningGame(t *testing.T) {
	h := lobbyHarness(t)
	running := buildMap(t, "...")
	addUnit(running, "unit:a", "player:1", 0, 0, 1)
	h.srv.reply(message.TagLogin, message.NewBuilder(message.TagOK).
		Attr("player", "player:1").
		Bool("started", true).
		Child(game.AttrCodec{}.Encode(running)).
		Build())

	if err := h.s.Login(context.Background()); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if !h.s.started || h.g.Turn != 1 || h.g.CurrentPlayer != "player:1" {
		t.Fatalf("started %v turn %d current %s", h.s.started, h.g.Turn, h.g.CurrentPlayer)
	}
	if got := h.s.ActiveUnit(); got != "unit:a" {
		t.Fatalf("active = %q", got)
	}
	if n := len(h.events.EventsOfType(log.EventTurnStart)); n != 1 {
		t.Fatalf("%d turn start events", n)
	}
}

func TestStartGameSwapsOnce(t *testing.T) {
	h := lobbyHarness(t)
	h.s.player = "player:1"
	h.g.AddPlayer(&game.Player{ID: "player:1", Name: "alice", European: true})
	h.g.AddPlayer(&game.Player{ID: "player:2", Name: "bob", European: true})

	// Gameplay messages mean nothing in the lobby.
	h.srv.push(message.New(message.TagSetCurrentPlayer, "player", "player:2"))
	if h.g.CurrentPlayer != "" {
		t.Fatalf("lobby handled setCurrentPlayer: %s", h.g.CurrentPlayer)
	}

	start := message.NewBuilder(message.TagStartGame).
		Child(message.NewBuilder(message.TagGame).Attr("id", "game:1").Int("turn", 1).Attr("currentPlayer", "player:2").Build()).
		Build()
	h.srv.push(start)
	h.srv.push(start)

	if !h.s.started || h.g.ID != "game:1" {
		t.Fatalf("started %v id %q", h.s.started, h.g.ID)
	}
	if n := lobbyEvents(h.events, "game started"); n != 1 {
		t.Fatalf("started %d times", n)
	}

	h.srv.push(message.New(message.TagSetCurrentPlayer, "player", "player:1"))
	if h.g.CurrentPlayer != "player:1" {
		t.Fatalf("current = %s", h.g.CurrentPlayer)
	}
	if n := len(h.events.EventsOfType(log.EventTurnStart)); n != 1 {
		t.Fatalf("%d turn start events", n)
	}
}

func TestLobbyHandlersTrackServerState(t *testing.T) {
	h := lobbyHarness(t)
	h.s.player = "player:1"
	h.g.AddPlayer(&game.Player{ID: "player:1", Name: "alice", European: true})

	h.srv.push(message.NewBuilder(message.TagAddPlayer).Child(lobbyPlayer("player:2", "bob", false)).Build())
	h.srv.push(message.New(message.TagSetAvailable, "nation", "dutch", "state", "NOT_AVAILABLE"))
	h.srv.push(message.NewBuilder(message.TagUpdateGameOptions).
		Child(message.New(message.TagOption, "id", "model.option.fogOfWar", "value", "true")).
		Child(message.New(message.TagOption, "value", "orphan")).
		Build())
	h.srv.push(message.NewBuilder(message.TagUpdateMapGeneratorOptions).
		Child(message.New(message.TagOption, "id", "model.option.mapWidth", "value", "40")).
		Build())
	h.srv.push(message.New(message.TagSetNationType, "player", "player:2", "nationType", "trade"))
	h.srv.push(message.NewBuilder(message.TagReady).Attr("player", "player:2").Bool("ready", true).Build())
	h.srv.push(message.New(message.TagSetColor, "player", "player:2", "color", "#ff0000"))
	h.srv.push(message.New(message.TagSetNation, "player", "player:2", "nation", "english"))

	lobby := h.s.LobbyState()
	if lobby.Available["dutch"] != "NOT_AVAILABLE" {
		t.Fatalf("available = %v", lobby.Available)
	}
	if len(lobby.Options) != 1 || lobby.Options["model.option.fogOfWar"] != "true" {
		t.Fatalf("options = %v", lobby.Options)
	}
	if lobby.MapOptions["model.option.mapWidth"] != "40" {
		t.Fatalf("map options = %v", lobby.MapOptions)
	}
	if lobby.NationTypes["player:2"] != "trade" {
		t.Fatalf("nation types = %v", lobby.NationTypes)
	}
	bob := h.g.Player("player:2")
	if bob == nil || !bob.Ready || bob.Color != "#ff0000" || bob.Nation != "english" {
		t.Fatalf("bob = %+v", bob)
	}

	// The returned lobby is a copy.
	lobby.Options["model.option.fogOfWar"] = "false"
	if h.s.LobbyState().Options["model.option.fogOfWar"] != "true" {
		t.Fatal("LobbyState shares its maps")
	}

	h.srv.push(message.New(message.TagLogout, "player", "player:2"))
	if h.g.Player("player:2") != nil {
		t.Fatal("bob still in the lobby")
	}
	if _, ok := h.s.LobbyState().NationTypes["player:2"]; ok {
		t.Fatal("nation type kept after logout")
	}
}

func TestSetNationChecksAvailability(t *testing.T) {
	h := lobbyHarness(t)
	ctx := context.Background()
	if err := h.s.SetNation(ctx, "dutch"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("SetNation before login = %v", err)
	}

	h.s.player = "player:1"
	h.g.AddPlayer(&game.Player{ID: "player:1", Name: "alice", European: true})
	h.srv.push(message.New(message.TagSetAvailable, "nation", "dutch", "state", "AI_OR_HUMAN_ONLY"))
	h.srv.push(message.New(message.TagSetAvailable, "nation", "french", "state", "AVAILABLE"))

	if err := h.s.SetNation(ctx, "dutch"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("SetNation(dutch) = %v", err)
	}
	if err := h.s.SetNation(ctx, "french"); err != nil {
		t.Fatalf("SetNation(french): %v", err)
	}
	if err := h.s.SetColor(ctx, "#0000ff"); err != nil {
		t.Fatalf("SetColor: %v", err)
	}
	me := h.g.Player("player:1")
	if me.Nation != "french" || me.Color != "#0000ff" {
		t.Fatalf("me = %+v", me)
	}
	if n := len(h.srv.sent(message.TagSetNation)); n != 1 {
		t.Fatalf("sent %d setNation", n)
	}
}

func TestRequestStartGameWaitsForEveryone(t *testing.T) {
	h := lobbyHarness(t)
	ctx := context.Background()
	h.s.player = "player:1"
	h.g.AddPlayer(&game.Player{ID: "player:1", Name: "alice", European: true})
	h.g.AddPlayer(&game.Player{ID: "player:2", Name: "bob", European: true})
	h.g.AddPlayer(&game.Player{ID: "player:3", Name: "hal", European: true, AI: true})
	h.g.AddPlayer(&game.Player{ID: "player:9", Name: "Arawak"})

	if err := h.s.SetReady(ctx, true); err != nil {
		t.Fatalf("SetReady: %v", err)
	}
	if err := h.s.RequestStartGame(ctx); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("RequestStartGame with bob unready = %v", err)
	}
	if !h.ui.sawInfo("bob is not ready") {
		t.Fatalf("infos = %v", h.ui.infos)
	}

	h.srv.push(message.NewBuilder(message.TagReady).Attr("player", "player:2").Bool("ready", true).Build())
	if err := h.s.RequestStartGame(ctx); err != nil {
		t.Fatalf("RequestStartGame: %v", err)
	}
	if n := len(h.srv.sent(message.TagRequestLaunch)); n != 1 {
		t.Fatalf("sent %d launch requests", n)
	}

	h.srv.push(message.NewBuilder(message.TagStartGame).
		Child(message.New(message.TagGame, "currentPlayer", "player:2")).
		Build())
	if err := h.s.SetReady(ctx, false); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("SetReady after start = %v", err)
	}
}
