package client

import (
	"context"
	"errors"
	"testing"

	"github.com/peterkuimelis/colonia/internal/log"
	"github.com/peterkuimelis/colonia/internal/message"
)

func TestOfferStepsAlwaysMove(t *testing.T) {
	for g := 0; g <= 2000; g++ {
		if r := raiseOffer(g); r <= g {
			t.Fatalf("raiseOffer(%d) = %d", g, r)
		}
		if l := lowerOffer(g); l >= g {
			t.Fatalf("lowerOffer(%d) = %d", g, l)
		}
	}
	if raiseOffer(1000) != 1100 || lowerOffer(1000) != 900 {
		t.Fatalf("raiseOffer(1000) = %d, lowerOffer(1000) = %d", raiseOffer(1000), lowerOffer(1000))
	}
}

func tradeHarness(t *testing.T) *harness {
	t.Helper()
	h := newHarness(t, Options{}, "..")
	wagon := addUnit(h.g, "unit:wagon", "player:1", 0, 0, 1)
	wagon.Type = "wagonTrain"
	wagon.Space = 2
	addSettlement(h.g, "village:1", "player:9", 1, 0, false)
	return h
}

func goldAsked(msgs []*message.Message) []int {
	var out []int
	for _, m := range msgs {
		out = append(out, m.Int("gold", 0))
	}
	return out
}

func TestSellHagglesUpwards(t *testing.T) {
	h := tradeHarness(t)
	wagon := h.g.Unit("unit:wagon")
	wagon.Goods = map[string]int{"furs": 100}
	h.srv.reply(message.TagTradeProposition, message.New(message.TagOK, "gold", "100"))
	h.ui.answer("haggle", "haggle", "haggle", "haggle", "accept")

	if err := h.s.SellToSettlement(context.Background(), wagon.ID, "village:1", "furs"); err != nil {
		t.Fatalf("SellToSettlement: %v", err)
	}
	asked := goldAsked(h.srv.sent(message.TagTradeProposition))
	want := []int{0, 110, 121, 133, 146}
	if len(asked) != len(want) {
		t.Fatalf("asked %v, want %v", asked, want)
	}
	for i := range want {
		if asked[i] != want[i] {
			t.Fatalf("asked %v, want %v", asked, want)
		}
	}
	trades := h.srv.sent(message.TagTrade)
	if len(trades) != 1 || trades[0].Int("gold", 0) != 100 {
		t.Fatalf("trade = %v", trades)
	}
	if wagon.Goods["furs"] != 0 {
		t.Fatalf("furs left aboard: %d", wagon.Goods["furs"])
	}
	if gold := h.g.Player("player:1").Gold; gold != 1100 {
		t.Fatalf("gold = %d", gold)
	}
	if n := len(h.events.EventsOfType(log.EventTrade)); n != 1 {
		t.Fatalf("%d trade events", n)
	}
}

func TestSellStopsOnRefusal(t *testing.T) {
	h := tradeHarness(t)
	wagon := h.g.Unit("unit:wagon")
	wagon.Goods = map[string]int{"furs": 100}
	h.srv.reply(message.TagTradeProposition,
		message.New(message.TagOK, "gold", "100"),
		message.New(message.TagOK, "gold", "-3"))
	h.ui.answer("haggle", "haggle", "haggle")

	if err := h.s.SellToSettlement(context.Background(), wagon.ID, "village:1", "furs"); err != nil {
		t.Fatalf("SellToSettlement: %v", err)
	}
	if n := len(h.srv.sent(message.TagTradeProposition)); n != 2 {
		t.Fatalf("sent %d propositions", n)
	}
	if n := len(h.srv.sent(message.TagTrade)); n != 0 {
		t.Fatal("traded after refusal")
	}
	if !h.ui.sawInfo("tired of your haggling") {
		t.Fatalf("infos = %v", h.ui.infos)
	}
	if wagon.Goods["furs"] != 100 {
		t.Fatalf("furs aboard = %d", wagon.Goods["furs"])
	}
}

func TestBuyHagglesDownwards(t *testing.T) {
	h := tradeHarness(t)
	wagon := h.g.Unit("unit:wagon")
	h.srv.reply(message.TagBuyProposition,
		message.NewBuilder(message.TagOK).Child(message.New(message.TagGoods, "type", "furs", "amount", "100")).Build(),
		message.New(message.TagOK, "gold", "200"))
	h.ui.answer("furs", "haggle", "haggle", "accept")

	if err := h.s.BuyFromSettlement(context.Background(), wagon.ID, "village:1"); err != nil {
		t.Fatalf("BuyFromSettlement: %v", err)
	}
	bids := goldAsked(h.srv.sent(message.TagBuyProposition))
	want := []int{0, 0, 180, 162}
	if len(bids) != len(want) {
		t.Fatalf("bids %v, want %v", bids, want)
	}
	for i := range want {
		if bids[i] != want[i] {
			t.Fatalf("bids %v, want %v", bids, want)
		}
	}
	buys := h.srv.sent(message.TagBuy)
	if len(buys) != 1 || buys[0].Int("gold", 0) != 200 {
		t.Fatalf("buy = %v", buys)
	}
	if wagon.Goods["furs"] != 100 {
		t.Fatalf("furs aboard = %d", wagon.Goods["furs"])
	}
	if gold := h.g.Player("player:1").Gold; gold != 800 {
		t.Fatalf("gold = %d", gold)
	}
}

func TestBuyGivesUpBelowOneGold(t *testing.T) {
	h := tradeHarness(t)
	h.srv.reply(message.TagBuyProposition,
		message.NewBuilder(message.TagOK).Child(message.New(message.TagGoods, "type", "furs", "amount", "100")).Build(),
		message.New(message.TagOK, "gold", "1"))
	h.ui.answer("furs", "haggle")

	if err := h.s.BuyFromSettlement(context.Background(), "unit:wagon", "village:1"); err != nil {
		t.Fatalf("BuyFromSettlement: %v", err)
	}
	if n := len(h.srv.sent(message.TagBuy)); n != 0 {
		t.Fatal("bought anyway")
	}
	if !h.ui.sawInfo("tired of your haggling") {
		t.Fatalf("infos = %v", h.ui.infos)
	}
}

func TestDeliverGiftRollsBack(t *testing.T) {
	h := tradeHarness(t)
	wagon := h.g.Unit("unit:wagon")
	wagon.Goods = map[string]int{"cloth": 50}
	h.srv.on(message.TagDeliverGift, errorReply("They do not want it."), okReply)
	ctx := context.Background()

	if err := h.s.DeliverGift(ctx, wagon.ID, "village:1", "cloth", 50); !errors.Is(err, ErrRejected) {
		t.Fatalf("DeliverGift = %v", err)
	}
	if wagon.Goods["cloth"] != 50 {
		t.Fatalf("cloth aboard = %d", wagon.Goods["cloth"])
	}
	if err := h.s.DeliverGift(ctx, wagon.ID, "village:1", "cloth", 50); err != nil {
		t.Fatalf("DeliverGift: %v", err)
	}
	if _, ok := wagon.Goods["cloth"]; ok {
		t.Fatal("cloth still aboard")
	}
	if n := len(h.events.EventsOfType(log.EventGift)); n != 1 {
		t.Fatalf("%d gift events", n)
	}
}
