package game

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/peterkuimelis/colonia/internal/message"
)

// ErrUnknownObject is returned when decoding an element whose tag names no
// replicated object type.
var ErrUnknownObject = errors.New("unknown object element")

// Codec converts replicated objects to and from message fragments.
type Codec interface {
	// Encode renders the full state of obj.
	Encode(obj Object) *message.Message
	// Decode finds the object named by msg in g, creating it if needed, and
	// merges the attributes present in msg into it.
	Decode(msg *message.Message, g *Game) (Object, error)
}

// AttrCodec is the default Codec: one attribute per field, goods and stops
// as child elements. Merging only overwrites what the fragment carries, and
// amounts are assigned rather than added, so applying a fragment twice is
// the same as applying it once.
type AttrCodec struct{}

// Decode implements Codec.
func (AttrCodec) Decode(m *message.Message, g *Game) (Object, error) {
	id := m.Attr("id")
	switch m.Tag() {
	case message.TagGame:
		return g, decodeGame(m, g)

	case message.TagPlayer:
		if id == "" {
			return nil, fmt.Errorf("decode player: missing id")
		}
		p := g.players[id]
		if p == nil {
			p = &Player{ID: id}
			g.AddPlayer(p)
		}
		mergePlayer(p, m)
		return p, nil

	case message.TagUnit:
		if id == "" {
			return nil, fmt.Errorf("decode unit: missing id")
		}
		u := g.units[id]
		if u == nil {
			u = &Unit{ID: id, State: StateActive, LineOfSight: 1}
			g.AddUnit(u)
		}
		mergeUnit(u, m)
		for _, c := range m.ChildrenOf(message.TagUnit) {
			if !c.Has("location") {
				c = withAttr(c, "location", u.ID)
			}
			if _, err := (AttrCodec{}).Decode(c, g); err != nil {
				return nil, err
			}
		}
		return u, nil

	case message.TagTile:
		if id == "" {
			if !m.Has("x") || !m.Has("y") {
				return nil, fmt.Errorf("decode tile: missing id and coordinates")
			}
			id = TileID(m.Int("x", 0), m.Int("y", 0))
		}
		t := g.tiles[id]
		if t == nil {
			t = &Tile{ID: id, Type: TileOcean}
		}
		mergeTile(t, m)
		g.AddTile(t)
		return t, nil

	case message.TagSettlement:
		if id == "" {
			return nil, fmt.Errorf("decode settlement: missing id")
		}
		s := g.settlements[id]
		if s == nil {
			s = &Settlement{ID: id}
			g.AddSettlement(s)
		}
		mergeSettlement(s, m)
		for _, c := range m.ChildrenOf(message.TagUnit) {
			if !c.Has("location") {
				c = withAttr(c, "location", s.ID)
			}
			if _, err := (AttrCodec{}).Decode(c, g); err != nil {
				return nil, err
			}
		}
		return s, nil

	case message.TagTradeRoute:
		if id == "" {
			return nil, fmt.Errorf("decode trade route: missing id")
		}
		r := g.routes[id]
		if r == nil {
			r = &TradeRoute{ID: id}
			g.AddTradeRoute(r)
		}
		mergeTradeRoute(r, m)
		return r, nil
	}
	return nil, fmt.Errorf("decode %q: %w", m.Tag(), ErrUnknownObject)
}

func decodeGame(m *message.Message, g *Game) error {
	if m.Has("id") {
		g.ID = m.Attr("id")
	}
	setInt(m, "turn", &g.Turn)
	setString(m, "currentPlayer", &g.CurrentPlayer)
	setInt(m, "width", &g.Width)
	setInt(m, "height", &g.Height)
	for _, c := range m.Children() {
		if _, err := (AttrCodec{}).Decode(c, g); err != nil {
			return fmt.Errorf("decode game: %w", err)
		}
	}
	return nil
}

func mergePlayer(p *Player, m *message.Message) {
	setString(m, "name", &p.Name)
	setString(m, "nation", &p.Nation)
	setString(m, "color", &p.Color)
	setInt(m, "gold", &p.Gold)
	setInt(m, "tax", &p.Tax)
	setInt(m, "score", &p.Score)
	setBool(m, "dead", &p.Dead)
	setBool(m, "ai", &p.AI)
	setBool(m, "ready", &p.Ready)
	setBool(m, "european", &p.European)
	setInt(m, "immigration", &p.Immigration)
	setInt(m, "immigrationRequired", &p.ImmigrationRequired)
	setInt(m, "recruitPrice", &p.RecruitPrice)
	setString(m, "currentFather", &p.CurrentFather)

	for _, c := range m.ChildrenOf(message.TagStance) {
		other := c.Attr("player")
		if other == "" {
			continue
		}
		if c.Has("stance") {
			if p.Stances == nil {
				p.Stances = make(map[string]Stance)
			}
			p.Stances[other] = Stance(c.Attr("stance"))
		}
		if c.Has("tension") {
			if p.Tension == nil {
				p.Tension = make(map[string]int)
			}
			p.Tension[other] = c.Int("tension", 0)
		}
	}
	if fathers := m.ChildrenOf(message.TagFoundingFather); len(fathers) > 0 {
		p.FatherChoices = p.FatherChoices[:0]
		for _, f := range fathers {
			p.FatherChoices = append(p.FatherChoices, f.Attr("id"))
		}
	}
}

func mergeUnit(u *Unit, m *message.Message) {
	setString(m, "owner", &u.Owner)
	setString(m, "type", &u.Type)
	setString(m, "role", &u.Role)
	setString(m, "location", &u.Location)
	setInt(m, "movesLeft", &u.MovesLeft)
	setInt(m, "initialMoves", &u.InitialMoves)
	if m.Has("state") {
		u.State = UnitState(m.Attr("state"))
	}
	setBool(m, "naval", &u.Naval)
	setInt(m, "space", &u.Space)
	setInt(m, "lineOfSight", &u.LineOfSight)
	setInt(m, "treasure", &u.Treasure)
	setString(m, "workType", &u.WorkType)
	setString(m, "destination", &u.Destination)
	setString(m, "tradeRoute", &u.TradeRoute)
	setInt(m, "stopIndex", &u.StopIndex)
	mergeGoods(&u.Goods, m)
}

func mergeTile(t *Tile, m *message.Message) {
	setInt(m, "x", &t.X)
	setInt(m, "y", &t.Y)
	setString(m, "type", &t.Type)
	setString(m, "owner", &t.Owner)
	setBool(m, "lostCityRumour", &t.LostCityRumour)
	setBool(m, "explored", &t.Explored)
}

func mergeSettlement(s *Settlement, m *message.Message) {
	setString(m, "name", &s.Name)
	setString(m, "owner", &s.Owner)
	setString(m, "tile", &s.Tile)
	setBool(m, "colony", &s.Colony)
	setString(m, "building", &s.Building)
	setString(m, "skill", &s.Skill)
	setString(m, "mission", &s.Mission)
	mergeGoods(&s.Goods, m)
	for _, c := range m.ChildrenOf(message.TagGoods) {
		if c.Has("exportLevel") {
			if s.ExportLevel == nil {
				s.ExportLevel = make(map[string]int)
			}
			s.ExportLevel[c.Attr("type")] = c.Int("exportLevel", 0)
		}
	}
}

func mergeTradeRoute(r *TradeRoute, m *message.Message) {
	setString(m, "name", &r.Name)
	setString(m, "owner", &r.Owner)
	if stops := m.ChildrenOf(message.TagStop); len(stops) > 0 {
		r.Stops = r.Stops[:0]
		for _, s := range stops {
			r.Stops = append(r.Stops, Stop{
				Location: s.Attr("location"),
				Load:     splitList(s.Attr("load")),
				Unload:   splitList(s.Attr("unload")),
			})
		}
	}
}

func mergeGoods(dst *map[string]int, m *message.Message) {
	for _, c := range m.ChildrenOf(message.TagGoods) {
		if !c.Has("amount") {
			continue
		}
		if *dst == nil {
			*dst = make(map[string]int)
		}
		amount := c.Int("amount", 0)
		if amount <= 0 {
			delete(*dst, c.Attr("type"))
			continue
		}
		(*dst)[c.Attr("type")] = amount
	}
}

// Encode implements Codec. Encoding a *Game renders the whole graph.
func (c AttrCodec) Encode(obj Object) *message.Message {
	switch o := obj.(type) {
	case *Game:
		b := message.NewBuilder(message.TagGame).
			Attr("id", o.ID).
			Int("turn", o.Turn).
			AttrIf("currentPlayer", o.CurrentPlayer).
			Int("width", o.Width).
			Int("height", o.Height)
		for _, p := range o.Players() {
			b.Child(c.Encode(p))
		}
		for _, id := range slices.Sorted(maps.Keys(o.tiles)) {
			b.Child(c.Encode(o.tiles[id]))
		}
		for _, s := range o.Settlements() {
			b.Child(c.Encode(s))
		}
		for _, u := range o.Units() {
			b.Child(c.Encode(u))
		}
		for _, r := range o.TradeRoutes() {
			b.Child(c.Encode(r))
		}
		return b.Build()

	case *Player:
		b := message.NewBuilder(message.TagPlayer).
			Attr("id", o.ID).
			Attr("name", o.Name).
			AttrIf("nation", o.Nation).
			AttrIf("color", o.Color).
			Int("gold", o.Gold).
			Int("tax", o.Tax).
			Int("score", o.Score).
			Bool("dead", o.Dead).
			Bool("ai", o.AI).
			Bool("ready", o.Ready).
			Bool("european", o.European).
			Int("immigration", o.Immigration).
			Int("immigrationRequired", o.ImmigrationRequired).
			Int("recruitPrice", o.RecruitPrice).
			AttrIf("currentFather", o.CurrentFather)
		others := slices.Sorted(maps.Keys(o.Stances))
		for id := range o.Tension {
			if !slices.Contains(others, id) {
				others = append(others, id)
			}
		}
		slices.Sort(others)
		for _, id := range others {
			sb := message.NewBuilder(message.TagStance).Attr("player", id)
			if s, ok := o.Stances[id]; ok {
				sb.Attr("stance", string(s))
			}
			if t, ok := o.Tension[id]; ok {
				sb.Int("tension", t)
			}
			b.Child(sb.Build())
		}
		for _, f := range o.FatherChoices {
			b.Child(message.New(message.TagFoundingFather, "id", f))
		}
		return b.Build()

	case *Unit:
		b := message.NewBuilder(message.TagUnit).
			Attr("id", o.ID).
			Attr("owner", o.Owner).
			Attr("type", o.Type).
			AttrIf("role", o.Role).
			Attr("location", o.Location).
			Int("movesLeft", o.MovesLeft).
			Int("initialMoves", o.InitialMoves).
			Attr("state", string(o.State)).
			Bool("naval", o.Naval).
			Int("space", o.Space).
			Int("lineOfSight", o.LineOfSight).
			Int("treasure", o.Treasure).
			AttrIf("workType", o.WorkType).
			Attr("destination", o.Destination).
			Attr("tradeRoute", o.TradeRoute).
			Int("stopIndex", o.StopIndex)
		b.Children(encodeGoods(o.Goods, nil)...)
		return b.Build()

	case *Tile:
		return message.NewBuilder(message.TagTile).
			Attr("id", o.ID).
			Int("x", o.X).
			Int("y", o.Y).
			Attr("type", o.Type).
			AttrIf("owner", o.Owner).
			Bool("lostCityRumour", o.LostCityRumour).
			Bool("explored", o.Explored).
			Build()

	case *Settlement:
		b := message.NewBuilder(message.TagSettlement).
			Attr("id", o.ID).
			Attr("name", o.Name).
			Attr("owner", o.Owner).
			Attr("tile", o.Tile).
			Bool("colony", o.Colony).
			AttrIf("building", o.Building).
			Attr("skill", o.Skill).
			Attr("mission", o.Mission)
		b.Children(encodeGoods(o.Goods, o.ExportLevel)...)
		return b.Build()

	case *TradeRoute:
		b := message.NewBuilder(message.TagTradeRoute).
			Attr("id", o.ID).
			Attr("name", o.Name).
			Attr("owner", o.Owner)
		for _, s := range o.Stops {
			b.Child(message.New(message.TagStop,
				"location", s.Location,
				"load", strings.Join(s.Load, ","),
				"unload", strings.Join(s.Unload, ",")))
		}
		return b.Build()
	}
	return nil
}

func encodeGoods(goods, export map[string]int) []*message.Message {
	types := slices.Sorted(maps.Keys(goods))
	for t := range export {
		if !slices.Contains(types, t) {
			types = append(types, t)
		}
	}
	slices.Sort(types)
	out := make([]*message.Message, 0, len(types))
	for _, t := range types {
		b := message.NewBuilder(message.TagGoods).Attr("type", t)
		if amount, ok := goods[t]; ok {
			b.Int("amount", amount)
		}
		if level, ok := export[t]; ok {
			b.Int("exportLevel", level)
		}
		out = append(out, b.Build())
	}
	return out
}

// GoodsMessage builds a goods fragment for a request payload.
func GoodsMessage(goodsType string, amount int) *message.Message {
	return message.New(message.TagGoods, "type", goodsType, "amount", strconv.Itoa(amount))
}

func setString(m *message.Message, name string, dst *string) {
	if m.Has(name) {
		*dst = m.Attr(name)
	}
}

func setInt(m *message.Message, name string, dst *int) {
	if m.Has(name) {
		*dst = m.Int(name, *dst)
	}
}

func setBool(m *message.Message, name string, dst *bool) {
	if m.Has(name) {
		*dst = m.Bool(name)
	}
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

// withAttr returns a copy of m with one attribute added.
func withAttr(m *message.Message, name, value string) *message.Message {
	b := message.NewBuilder(m.Tag())
	for _, k := range m.AttrNames() {
		b.Attr(k, m.Attr(k))
	}
	b.Attr(name, value)
	b.Children(m.Children()...)
	return b.Build()
}
