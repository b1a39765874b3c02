package client

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/peterkuimelis/colonia/internal/game"
	"github.com/peterkuimelis/colonia/internal/log"
	"github.com/peterkuimelis/colonia/internal/message"
)

type fakeAutosaver struct {
	mu     sync.Mutex
	turns  []int
	keeps  []int
	failed bool
}

func (f *fakeAutosaver) Save(_ context.Context, _, _ string, turn int, _ string, snapshot *message.Message) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failed {
		return 0, errors.New("disk full")
	}
	if snapshot == nil || snapshot.Tag() != message.TagGame {
		return 0, errors.New("not a game snapshot")
	}
	f.turns = append(f.turns, turn)
	return int64(len(f.turns)), nil
}

func (f *fakeAutosaver) Prune(_ context.Context, _ string, keep int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keeps = append(f.keeps, keep)
	return 0, nil
}

func (f *fakeAutosaver) saves() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.turns)
}

func TestStateString(t *testing.T) {
	tests := map[State]string{
		StateIdle:          "idle",
		StateUnitActive:    "unit-active",
		StateExecutingGoto: "executing-goto-queue",
		StateEndingTurn:    "ending-turn",
	}
	for st, want := range tests {
		if got := st.String(); got != want {
			t.Errorf("State(%d) = %q, want %q", int(st), got, want)
		}
	}
}

// At turn start the autosave runs before anything moves, and a trade
// route carrier that reaches its stop works it and heads for the next one
// without ever becoming the active unit.
func TestTurnStartSavesThenRunsTradeRoute(t *testing.T) {
	saver := &fakeAutosaver{}
	h := newHarness(t, Options{Autosave: saver, AutosaveEvery: 2, AutosaveKeep: 3}, "......")
	h.g.Turn = 2
	h.g.CurrentPlayer = "player:2"
	source := addSettlement(h.g, "colony:1", "player:1", 3, 0, true)
	source.Goods = map[string]int{"furs": 300}
	source.ExportLevel = map[string]int{"furs": 100}
	addSettlement(h.g, "colony:2", "player:1", 5, 0, true)
	h.g.AddTradeRoute(&game.TradeRoute{ID: "route:1", Owner: "player:1", Stops: []game.Stop{
		{Location: "colony:1", Load: []string{"furs"}},
		{Location: "colony:2", Unload: []string{"furs"}},
	}})
	wagon := addUnit(h.g, "unit:wagon", "player:1", 0, 0, 3)
	wagon.Type = "wagonTrain"
	wagon.Space = 2
	wagon.TradeRoute = "route:1"
	wagon.Destination = "colony:1"

	var savesAtMove []int
	h.srv.on(message.TagMove, func(*message.Message) *message.Message {
		savesAtMove = append(savesAtMove, saver.saves())
		return nil
	})

	h.srv.push(message.New(message.TagSetCurrentPlayer, "player", "player:1"))

	if len(savesAtMove) != 3 || savesAtMove[0] != 1 {
		t.Fatalf("saves seen by each move = %v", savesAtMove)
	}
	if !slices.Equal(saver.turns, []int{2}) || !slices.Equal(saver.keeps, []int{3}) {
		t.Fatalf("saved turns %v pruned %v", saver.turns, saver.keeps)
	}
	if tile := h.g.UnitTile(wagon); tile == nil || tile.ID != source.Tile {
		t.Fatalf("wagon at %s, want %s", wagon.Location, source.Tile)
	}
	if wagon.Goods["furs"] != 200 || source.Goods["furs"] != 100 {
		t.Fatalf("wagon carries %d furs, colony keeps %d", wagon.Goods["furs"], source.Goods["furs"])
	}
	if wagon.Destination != "colony:2" || wagon.StopIndex != 1 {
		t.Fatalf("next stop = %s/%d", wagon.Destination, wagon.StopIndex)
	}
	for _, id := range h.ui.activeCalls() {
		if id != "" {
			t.Fatalf("unit %s became active", id)
		}
	}
	if st, active := h.s.SchedulerState(); st != StateIdle || active != "" {
		t.Fatalf("scheduler = %s %q", st, active)
	}
	if n := len(h.events.EventsOfType(log.EventAutosave)); n != 1 {
		t.Fatalf("%d autosave events", n)
	}
	if n := len(h.events.EventsOfType(log.EventTradeRouteStop)); n != 1 {
		t.Fatalf("%d trade route stop events", n)
	}
}

func TestAutosaveSkipsOffTurnsAndSurvivesFailure(t *testing.T) {
	saver := &fakeAutosaver{failed: true}
	h := newHarness(t, Options{Autosave: saver, AutosaveEvery: 2}, "..")
	h.g.CurrentPlayer = "player:2"
	addUnit(h.g, "unit:a", "player:1", 0, 0, 1)

	h.srv.push(message.New(message.TagSetCurrentPlayer, "player", "player:1"))
	if n := len(h.events.EventsOfType(log.EventAutosave)); n != 0 {
		t.Fatalf("%d autosave events on an odd turn", n)
	}

	h.srv.push(message.New(message.TagSetCurrentPlayer, "player", "player:2"))
	h.srv.push(message.New(message.TagNewTurn, "turn", "2"))
	h.srv.push(message.New(message.TagSetCurrentPlayer, "player", "player:1"))
	if n := len(h.events.EventsOfType(log.EventAutosave)); n != 0 {
		t.Fatalf("failed autosave logged %d events", n)
	}
	if got := h.s.ActiveUnit(); got != "unit:a" {
		t.Fatalf("turn did not go on after a failed save: active %q", got)
	}
}

func TestTurnStartShowsMessagesNotIgnored(t *testing.T) {
	h := newHarness(t, Options{Suppress: []string{"model.boring"}, IgnoreFor: 2}, "..")
	h.g.CurrentPlayer = "player:2"
	h.s.IgnoreMessage("model.ignored")

	h.srv.push(message.NewBuilder(message.TagUpdate).
		Child(message.New(message.TagModelMessage, "key", "model.shown", "text", "Plymouth has grown.")).
		Child(message.New(message.TagModelMessage, "key", "model.ignored", "text", "Food is short.")).
		Child(message.New(message.TagModelMessage, "key", "model.boring", "text", "Nothing happened.")).
		Build())
	h.srv.push(message.New(message.TagSetCurrentPlayer, "player", "player:1"))

	if !h.ui.sawInfo("Plymouth has grown.") {
		t.Fatalf("infos = %v", h.ui.infos)
	}
	for _, text := range []string{"Food is short.", "Nothing happened."} {
		if h.ui.sawInfo(text) {
			t.Fatalf("showed %q", text)
		}
	}

	// Queued messages are shown once.
	h.srv.push(message.New(message.TagSetCurrentPlayer, "player", "player:2"))
	h.srv.push(message.New(message.TagSetCurrentPlayer, "player", "player:1"))
	n := 0
	for _, s := range h.ui.infos {
		if strings.Contains(s, "Plymouth has grown.") {
			n++
		}
	}
	if n != 1 {
		t.Fatalf("message shown %d times", n)
	}
}

func TestTurnStartOffersEmigration(t *testing.T) {
	h := newHarness(t, Options{}, "..")
	h.g.CurrentPlayer = "player:2"
	me := h.g.Player("player:1")
	me.Immigration, me.ImmigrationRequired = 12, 10
	h.ui.confirm(true)

	h.srv.push(message.New(message.TagSetCurrentPlayer, "player", "player:1"))
	sent := h.srv.sent(message.TagEmigrateUnitInEurope)
	if len(sent) != 1 || sent[0].Int("slot", -1) != 0 {
		t.Fatalf("emigrate = %v", sent)
	}
}

func TestTurnStartForgetsUnseenUnits(t *testing.T) {
	h := newHarness(t, Options{}, ".....")
	h.g.CurrentPlayer = "player:2"
	addUnit(h.g, "unit:mine", "player:1", 0, 0, 1)
	addUnit(h.g, "unit:stale", "player:2", 4, 0, 1)

	h.srv.push(message.New(message.TagSetCurrentPlayer, "player", "player:1"))
	if h.g.Unit("unit:stale") != nil {
		t.Fatal("unseen unit kept")
	}
	if got := h.s.ActiveUnit(); got != "unit:mine" {
		t.Fatalf("active = %q", got)
	}
}

func TestAutoEndTurnWithNothingToDo(t *testing.T) {
	h := newHarness(t, Options{AutoEndTurn: true}, "..")
	h.g.CurrentPlayer = "player:2"

	h.srv.push(message.New(message.TagSetCurrentPlayer, "player", "player:1"))
	if n := len(h.srv.sent(message.TagEndTurn)); n != 1 {
		t.Fatalf("sent endTurn %d times", n)
	}
}

func TestLoadableKeepsExportLevel(t *testing.T) {
	h := newHarness(t, Options{}, "..")
	colony := addSettlement(h.g, "colony:1", "player:1", 0, 0, true)
	colony.Goods = map[string]int{"furs": 130, "sugar": 20}
	colony.ExportLevel = map[string]int{"furs": 100, "sugar": 50}
	wagon := addUnit(h.g, "unit:wagon", "player:1", 0, 0, 1)
	wagon.Space = 2
	wagon.Goods = map[string]int{"cloth": 100}

	tests := []struct {
		loc, goods string
		want       int
	}{
		{"colony:1", "furs", 30},
		{"colony:1", "sugar", 0},
		{"colony:1", "cloth", 0},
		{game.LocationEurope, "furs", 100},
		{"colony:9", "furs", 0},
	}
	for _, tt := range tests {
		if got := h.s.loadable(wagon, tt.loc, tt.goods); got != tt.want {
			t.Errorf("loadable(%s, %s) = %d, want %d", tt.loc, tt.goods, got, tt.want)
		}
	}
	if got := h.s.goodsRoom(wagon, "cloth"); got != 100 {
		t.Errorf("goodsRoom(cloth) = %d, want 100", got)
	}
}

func TestNewTurnResetsScheduler(t *testing.T) {
	h := newHarness(t, Options{}, "..")
	h.g.CurrentPlayer = "player:2"
	addUnit(h.g, "unit:a", "player:1", 0, 0, 1)
	h.s.mu.Lock()
	h.s.setActiveUnit("unit:a")
	h.s.sched.endingTurn = true
	h.s.sched.executingGoto = true
	h.s.sched.beginSweep()
	h.s.mu.Unlock()

	h.srv.push(message.New(message.TagNewTurn, "turn", "2"))
	if st, active := h.s.SchedulerState(); st != StateIdle || active != "" {
		t.Fatalf("scheduler after newTurn = %s %q", st, active)
	}
	h.s.mu.Lock()
	attempted := h.s.sched.attempted
	h.s.mu.Unlock()
	if attempted != nil {
		t.Fatalf("sweep record kept: %v", attempted)
	}
}
