package mcp

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/peterkuimelis/colonia/internal/config"
	"github.com/peterkuimelis/colonia/internal/game"
	"github.com/peterkuimelis/colonia/internal/gui"
	"github.com/peterkuimelis/colonia/internal/message"
	"github.com/peterkuimelis/colonia/internal/net"
)

func TestPresenterDialogsBlockUntilAnswered(t *testing.T) {
	p := NewMCPPresenter()

	confirmed := make(chan bool)
	go func() { confirmed <- p.ShowConfirmDialog("Sail to Europe?", "Sail", "Stay") }()
	d := <-p.pendingCh
	if d.Type != DecisionConfirm || d.Prompt != "Sail to Europe?" || d.Choices[0].Label != "Sail" {
		t.Fatalf("decision = %+v", d)
	}
	p.responseCh <- Answer{Yes: true}
	if !<-confirmed {
		t.Fatal("confirm answered yes returned false")
	}

	type picked struct {
		key string
		ok  bool
	}
	chosen := make(chan picked)
	choices := []gui.Choice{{Key: "furs", Label: "100 furs"}, {Key: "cloth", Label: "100 cloth"}}
	go func() {
		k, ok := p.ShowChoiceDialog("What to buy?", choices)
		chosen <- picked{k, ok}
	}()
	d = <-p.pendingCh
	if d.Type != DecisionChoice || len(d.Choices) != 2 || d.Choices[1].Key != "cloth" {
		t.Fatalf("decision = %+v", d)
	}
	p.responseCh <- Answer{Key: "cloth"}
	if got := <-chosen; got != (picked{"cloth", true}) {
		t.Fatalf("choice = %+v", got)
	}

	go func() {
		k, ok := p.ShowChoiceDialog("What to buy?", choices)
		chosen <- picked{k, ok}
	}()
	<-p.pendingCh
	p.responseCh <- Answer{}
	if got := <-chosen; got.ok {
		t.Fatalf("empty answer picked %q", got.key)
	}

	go func() { confirmed <- p.ShowConfirmDialog("Disband?", "Yes", "No") }()
	<-p.pendingCh
	p.Close()
	if <-confirmed {
		t.Fatal("closed dialog answered yes")
	}
	if p.ShowConfirmDialog("Again?", "Yes", "No") {
		t.Fatal("dialog after Close answered yes")
	}
}

func TestPresenterBuffersNotices(t *testing.T) {
	p := NewMCPPresenter()
	p.ShowInformationMessage("Jamestown has grown.")
	p.ShowErrorMessage("Not enough gold.")
	p.DisplayChat("bob", "hello", true)
	p.SetActiveUnit("unit:7")

	got := p.drainNotices()
	want := []Notice{{"info", "Jamestown has grown."}, {"error", "Not enough gold."}, {"private_chat", "bob: hello"}}
	if len(got) != len(want) {
		t.Fatalf("notices = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("notice %d = %v, want %v", i, got[i], want[i])
		}
	}
	if len(p.drainNotices()) != 0 {
		t.Fatal("notices not drained")
	}
	if p.ActiveUnit() != "unit:7" {
		t.Fatalf("active = %q", p.ActiveUnit())
	}
}

func TestParseDirection(t *testing.T) {
	tests := map[string]game.Direction{
		"n":          game.North,
		"NE":         game.NorthEast,
		"south_west": game.SouthWest,
		"WEST":       game.West,
		" nw ":       game.NorthWest,
	}
	for in, want := range tests {
		if got, ok := parseDirection(in); !ok || got != want {
			t.Errorf("parseDirection(%q) = %v, %v", in, got, ok)
		}
	}
	if _, ok := parseDirection("up"); ok {
		t.Error("parseDirection(up) accepted")
	}
}

// emigrationServer admits one player into a running game in which an
// emigrant is waiting, so that logging in opens a confirm dialog.
func emigrationServer(t *testing.T, emigrated *atomic.Int32) string {
	t.Helper()
	g := game.NewGame("game:1")
	g.Turn = 1
	g.CurrentPlayer = "player:1"
	g.AddPlayer(&game.Player{ID: "player:1", Name: "ann", European: true, Immigration: 20, ImmigrationRequired: 10})
	snapshot := game.AttrCodec{}.Encode(g)

	srv := &net.Server{Addr: "127.0.0.1:0", NewHandler: func(*net.Connection) net.Handler {
		r := net.NewRegistry("server", nil)
		r.Register(message.TagLogin, func(*net.Connection, *message.Message) (*message.Message, error) {
			return message.NewBuilder(message.TagOK).
				Attr("player", "player:1").
				Bool("started", true).
				Child(snapshot).
				Build(), nil
		})
		r.Register(message.TagEmigrateUnitInEurope, func(_ *net.Connection, msg *message.Message) (*message.Message, error) {
			if msg.Int("slot", -1) == 0 {
				emigrated.Add(1)
			}
			return nil, nil
		})
		return r
	}}
	if err := srv.Listen(); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go srv.Serve(ctx)
	return srv.ListenAddr()
}

func TestSessionAnswersDialogRaisedDuringLogin(t *testing.T) {
	var emigrated atomic.Int32
	cfg := config.Defaults()
	cfg.Server = emigrationServer(t, &emigrated)
	cfg.Name = "ann"

	sess, err := NewGameSession(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("NewGameSession: %v", err)
	}
	t.Cleanup(func() { _ = sess.Close() })

	resp := sess.await(5 * time.Second)
	if resp.Pending == nil || resp.Pending.Type != DecisionConfirm {
		t.Fatalf("response = %+v", resp)
	}
	if err := sess.start("end_turn", func(context.Context) (string, error) { return "", nil }); !errors.Is(err, errDialogOpen) {
		t.Fatalf("start with dialog open = %v", err)
	}
	if err := sess.answer(Answer{Yes: true}); err != nil {
		t.Fatalf("answer: %v", err)
	}

	resp = sess.await(5 * time.Second)
	if resp.Error != "" || resp.Result != "login done" {
		t.Fatalf("response = %+v", resp)
	}
	if emigrated.Load() != 1 {
		t.Fatalf("emigrated %d times", emigrated.Load())
	}
	if len(resp.Events) == 0 {
		t.Fatal("no events reported")
	}
	if err := sess.answer(Answer{Yes: true}); !errors.Is(err, errNoDialog) {
		t.Fatalf("answer with no dialog = %v", err)
	}

	if err := sess.start("foreign_affairs", func(ctx context.Context) (string, error) {
		return sess.app.Session.GetForeignAffairs(ctx)
	}); err != nil {
		t.Fatalf("start: %v", err)
	}
	resp = sess.await(5 * time.Second)
	if resp.Error != "" || resp.Result == "" {
		t.Fatalf("response = %+v", resp)
	}
}
