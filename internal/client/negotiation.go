package client

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/peterkuimelis/colonia/internal/game"
	"github.com/peterkuimelis/colonia/internal/gui"
	"github.com/peterkuimelis/colonia/internal/log"
	"github.com/peterkuimelis/colonia/internal/message"
)

// Sentinel gold values a settlement answers with instead of a price.
const (
	NoNeedForGoods = -1
	NoTrade        = -2
	NoTradeHaggle  = -3
	NoTradeGoods   = -4
)

// raiseOffer is the next asking price after a counter offer.
func raiseOffer(gold int) int {
	return max(gold*11/10, gold+1)
}

// lowerOffer is the next bid after a counter offer.
func lowerOffer(gold int) int {
	return min(gold*9/10, gold-1)
}

func refusal(gold int, name string) string {
	switch gold {
	case NoNeedForGoods:
		return fmt.Sprintf("%s has no need for these goods.", name)
	case NoTradeHaggle:
		return fmt.Sprintf("%s is tired of your haggling.", name)
	case NoTradeGoods:
		return fmt.Sprintf("%s has nothing to trade.", name)
	}
	return fmt.Sprintf("%s does not want to trade.", name)
}

func sortedGoods(goods map[string]int) []string {
	return slices.Sorted(maps.Keys(goods))
}

// sellToSettlement haggles over goods aboard u. Every haggle round asks
// strictly more than both the previous ask and the last counter offer.
func (s *Session) sellToSettlement(ctx context.Context, u *game.Unit, settlement *game.Settlement, goodsType string, amount int) error {
	if amount <= 0 {
		return s.invalid("sell", "There are no such goods aboard.")
	}
	asked := 0
	for {
		b := message.NewBuilder(message.TagTradeProposition).
			Attr("unit", u.ID).
			Attr("settlement", settlement.ID).
			Child(game.GoodsMessage(goodsType, amount))
		if asked > 0 {
			b.Int("gold", asked)
		}
		reply, err := s.request(ctx, b.Build())
		if err != nil {
			return err
		}
		offer := reply.Int("gold", NoTrade)
		if offer <= NoNeedForGoods {
			s.gui.ShowInformationMessage(refusal(offer, settlement.Name))
			return nil
		}
		text := fmt.Sprintf("%s offers %d gold for %d %s.", settlement.Name, offer, amount, goodsType)
		key, ok := s.gui.ShowChoiceDialog(text, []gui.Choice{
			{Key: "accept", Label: "Accept"},
			{Key: "haggle", Label: "Ask for more"},
			{Key: "gift", Label: "Give them as a gift"},
		})
		if !ok {
			return errCancelled
		}
		switch key {
		case "accept":
			return s.completeSale(ctx, u, settlement, goodsType, amount, offer)
		case "gift":
			return s.deliverGift(ctx, u, settlement, goodsType, amount)
		}
		asked = raiseOffer(max(offer, asked))
	}
}

func (s *Session) completeSale(ctx context.Context, u *game.Unit, settlement *game.Settlement, goodsType string, amount, gold int) error {
	tx := s.game.Begin()
	tu := tx.Unit(u.ID)
	tu.Goods[goodsType] -= amount
	if tu.Goods[goodsType] <= 0 {
		delete(tu.Goods, goodsType)
	}
	if me := tx.Player(s.player); me != nil {
		me.Gold += gold
	}
	msg := message.NewBuilder(message.TagTrade).
		Attr("unit", u.ID).
		Attr("settlement", settlement.ID).
		Child(game.GoodsMessage(goodsType, amount)).
		Int("gold", gold).
		Build()
	reply, err := s.request(ctx, msg)
	if err != nil {
		tx.Rollback()
		return err
	}
	tx.Commit()
	s.events.Log(log.NewTradeEvent(s.turn(), s.playerName(s.player), u.ID,
		fmt.Sprintf("sold %d %s to %s for %d", amount, goodsType, settlement.Name, gold)))
	return s.apply(reply)
}

// buyFromSettlement asks what the settlement sells and haggles over the
// chosen goods. Every haggle round bids strictly less than both the
// previous bid and the last price.
func (s *Session) buyFromSettlement(ctx context.Context, u *game.Unit, settlement *game.Settlement) error {
	reply, err := s.request(ctx, message.New(message.TagBuyProposition, "unit", u.ID, "settlement", settlement.ID))
	if err != nil {
		return err
	}
	var choices []gui.Choice
	amounts := make(map[string]int)
	for _, g := range reply.ChildrenOf(message.TagGoods) {
		t := g.Attr("type")
		amounts[t] = g.Int("amount", 100)
		choices = append(choices, gui.Choice{Key: t, Label: fmt.Sprintf("%d %s", amounts[t], t)})
	}
	if len(choices) == 0 {
		s.gui.ShowInformationMessage(refusal(NoTradeGoods, settlement.Name))
		return nil
	}
	goodsType, ok := s.gui.ShowChoiceDialog(fmt.Sprintf("What do you want to buy from %s?", settlement.Name), choices)
	if !ok {
		return errCancelled
	}
	amount := amounts[goodsType]
	if s.goodsRoom(u, goodsType) < amount {
		return s.invalid("buy", "There is no room aboard.")
	}

	bid := 0
	for {
		b := message.NewBuilder(message.TagBuyProposition).
			Attr("unit", u.ID).
			Attr("settlement", settlement.ID).
			Child(game.GoodsMessage(goodsType, amount))
		if bid > 0 {
			b.Int("gold", bid)
		}
		reply, err := s.request(ctx, b.Build())
		if err != nil {
			return err
		}
		price := reply.Int("gold", NoTrade)
		if price <= NoNeedForGoods {
			s.gui.ShowInformationMessage(refusal(price, settlement.Name))
			return nil
		}
		text := fmt.Sprintf("%s asks %d gold for %d %s.", settlement.Name, price, amount, goodsType)
		key, ok := s.gui.ShowChoiceDialog(text, []gui.Choice{
			{Key: "accept", Label: "Accept"},
			{Key: "haggle", Label: "Offer less"},
		})
		if !ok {
			return errCancelled
		}
		if key == "accept" {
			return s.completePurchase(ctx, u, settlement, goodsType, amount, price)
		}
		next := price
		if bid > 0 {
			next = min(price, bid)
		}
		if bid = lowerOffer(next); bid < 1 {
			s.gui.ShowInformationMessage(refusal(NoTradeHaggle, settlement.Name))
			return nil
		}
	}
}

func (s *Session) completePurchase(ctx context.Context, u *game.Unit, settlement *game.Settlement, goodsType string, amount, gold int) error {
	me := s.me()
	if me == nil || me.Gold < gold {
		return s.invalid("buy", "You can not afford that.")
	}
	tx := s.game.Begin()
	tu := tx.Unit(u.ID)
	if tu.Goods == nil {
		tu.Goods = make(map[string]int)
	}
	tu.Goods[goodsType] += amount
	tx.Player(s.player).Gold -= gold
	msg := message.NewBuilder(message.TagBuy).
		Attr("unit", u.ID).
		Attr("settlement", settlement.ID).
		Child(game.GoodsMessage(goodsType, amount)).
		Int("gold", gold).
		Build()
	reply, err := s.request(ctx, msg)
	if err != nil {
		tx.Rollback()
		return err
	}
	tx.Commit()
	s.events.Log(log.NewTradeEvent(s.turn(), s.playerName(s.player), u.ID,
		fmt.Sprintf("bought %d %s from %s for %d", amount, goodsType, settlement.Name, gold)))
	return s.apply(reply)
}

func (s *Session) deliverGift(ctx context.Context, u *game.Unit, settlement *game.Settlement, goodsType string, amount int) error {
	if amount <= 0 || u.Goods[goodsType] < amount {
		return s.invalid("gift", "There are not enough goods aboard.")
	}
	tx := s.game.Begin()
	tu := tx.Unit(u.ID)
	tu.Goods[goodsType] -= amount
	if tu.Goods[goodsType] <= 0 {
		delete(tu.Goods, goodsType)
	}
	msg := message.NewBuilder(message.TagDeliverGift).
		Attr("unit", u.ID).
		Attr("settlement", settlement.ID).
		Child(game.GoodsMessage(goodsType, amount)).
		Build()
	reply, err := s.request(ctx, msg)
	if err != nil {
		tx.Rollback()
		return err
	}
	tx.Commit()
	s.events.Log(log.NewEvent(s.turn(), log.EventGift, s.playerName(s.player),
		fmt.Sprintf("gave %d %s to %s", amount, goodsType, settlement.Name)))
	s.gui.ShowInformationMessage(fmt.Sprintf("%s accepts your gift.", settlement.Name))
	return s.apply(reply)
}
