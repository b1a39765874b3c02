package game

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/peterkuimelis/colonia/internal/message"
)

// Object is any replicated entity with a stable id.
type Object interface {
	ObjectID() string
	Tag() message.Tag
}

// Player is one participant in the game.
type Player struct {
	ID       string
	Name     string
	Nation   string
	Color    string
	Gold     int
	Tax      int
	Score    int
	Dead     bool
	AI       bool
	Ready    bool
	European bool

	// Immigration progress towards the next emigrant in Europe.
	Immigration         int
	ImmigrationRequired int
	RecruitPrice        int

	// Stance and tension towards other players, keyed by player id.
	Stances map[string]Stance
	Tension map[string]int

	// Pending founding father choices offered by the server.
	FatherChoices []string
	CurrentFather string
}

func (p *Player) ObjectID() string { return p.ID }
func (p *Player) Tag() message.Tag { return message.TagPlayer }

// Unit is a movable piece: colonist, ship, wagon train, treasure train.
//
// Location is a tile id, the id of the carrier unit, a settlement id, or
// one of LocationEurope / LocationHighSeas.
type Unit struct {
	ID           string
	Owner        string
	Type         string
	Role         string
	Location     string
	MovesLeft    int
	InitialMoves int
	State        UnitState
	Naval        bool
	Space        int // cargo slots, 0 for units that cannot carry
	LineOfSight  int
	Treasure     int
	WorkType     string
	Destination  string
	TradeRoute   string
	StopIndex    int
	Goods        map[string]int
	Disposed     bool
}

func (u *Unit) ObjectID() string { return u.ID }
func (u *Unit) Tag() message.Tag { return message.TagUnit }

// IsTreasureTrain reports whether the unit carries cashable treasure.
func (u *Unit) IsTreasureTrain() bool { return u.Treasure > 0 }

// GoodsCount returns the number of cargo slots used by goods.
func (u *Unit) GoodsCount() int {
	n := 0
	for _, amount := range u.Goods {
		n += (amount + 99) / 100
	}
	return n
}

// Tile is a map square.
type Tile struct {
	ID             string
	X, Y           int
	Type           string
	Owner          string
	LostCityRumour bool
	Explored       bool
}

func (t *Tile) ObjectID() string { return t.ID }
func (t *Tile) Tag() message.Tag { return message.TagTile }

// IsLand reports whether land units can stand on the tile.
func (t *Tile) IsLand() bool {
	return t.Type != TileOcean && t.Type != TileHighSeas
}

// IsHighSeas reports whether ships can sail to Europe from the tile.
func (t *Tile) IsHighSeas() bool { return t.Type == TileHighSeas }

// TileID returns the canonical id of the tile at x,y.
func TileID(x, y int) string {
	return "tile:" + strconv.Itoa(x) + ":" + strconv.Itoa(y)
}

// Settlement is a European colony or a native settlement.
type Settlement struct {
	ID       string
	Name     string
	Owner    string
	Tile     string
	Colony   bool
	Building string
	Skill    string // skill taught by a native settlement, "" once learned
	Mission  string // owner of the missionary, if any
	Goods    map[string]int

	// ExportLevel is the amount of each goods type kept when a trade route
	// loads from this colony.
	ExportLevel map[string]int
}

func (s *Settlement) ObjectID() string { return s.ID }
func (s *Settlement) Tag() message.Tag { return message.TagSettlement }

// Stop is one leg of a trade route.
type Stop struct {
	Location string
	Load     []string // goods types to carry away from this stop
	Unload   []string // goods types to deliver here
}

// TradeRoute is a cyclic list of stops followed automatically by carriers.
type TradeRoute struct {
	ID    string
	Name  string
	Owner string
	Stops []Stop
}

func (r *TradeRoute) ObjectID() string { return r.ID }
func (r *TradeRoute) Tag() message.Tag { return message.TagTradeRoute }

// Game is the client's replica of the shared object graph. It may be
// partial: tiles and foreign units outside the local player's sight are
// missing or stale.
type Game struct {
	ID            string
	Turn          int
	CurrentPlayer string
	Width         int
	Height        int

	players     map[string]*Player
	playerOrder []string
	units       map[string]*Unit
	unitOrder   []string
	tiles       map[string]*Tile
	tileAt      map[[2]int]string
	settlements map[string]*Settlement
	routes      map[string]*TradeRoute
}

// NewGame returns an empty graph.
func NewGame(id string) *Game {
	return &Game{
		ID:          id,
		players:     make(map[string]*Player),
		units:       make(map[string]*Unit),
		tiles:       make(map[string]*Tile),
		tileAt:      make(map[[2]int]string),
		settlements: make(map[string]*Settlement),
		routes:      make(map[string]*TradeRoute),
	}
}

func (g *Game) ObjectID() string { return g.ID }
func (g *Game) Tag() message.Tag { return message.TagGame }

// --- Lookup ---

func (g *Game) Player(id string) *Player { return g.players[id] }
func (g *Game) Unit(id string) *Unit     { return g.units[id] }
func (g *Game) Tile(id string) *Tile     { return g.tiles[id] }

func (g *Game) Settlement(id string) *Settlement { return g.settlements[id] }
func (g *Game) TradeRoute(id string) *TradeRoute { return g.routes[id] }

// TileAt returns the tile at x,y, or nil if unknown or off the map.
func (g *Game) TileAt(x, y int) *Tile {
	id, ok := g.tileAt[[2]int{x, y}]
	if !ok {
		return nil
	}
	return g.tiles[id]
}

// Neighbour returns the tile one step from t in direction d.
func (g *Game) Neighbour(t *Tile, d Direction) *Tile {
	dx, dy := d.Delta()
	return g.TileAt(t.X+dx, t.Y+dy)
}

// DirectionTo returns the direction of an adjacent tile.
func (g *Game) DirectionTo(from, to *Tile) (Direction, bool) {
	for _, d := range Directions {
		dx, dy := d.Delta()
		if from.X+dx == to.X && from.Y+dy == to.Y {
			return d, true
		}
	}
	return 0, false
}

// Lookup finds any object by id.
func (g *Game) Lookup(id string) Object {
	if id == g.ID {
		return g
	}
	if p, ok := g.players[id]; ok {
		return p
	}
	if u, ok := g.units[id]; ok {
		return u
	}
	if t, ok := g.tiles[id]; ok {
		return t
	}
	if s, ok := g.settlements[id]; ok {
		return s
	}
	if r, ok := g.routes[id]; ok {
		return r
	}
	return nil
}

// Players returns the players in the order they joined.
func (g *Game) Players() []*Player {
	out := make([]*Player, 0, len(g.playerOrder))
	for _, id := range g.playerOrder {
		if p := g.players[id]; p != nil {
			out = append(out, p)
		}
	}
	return out
}

// Units returns every live unit in insertion order.
func (g *Game) Units() []*Unit {
	out := make([]*Unit, 0, len(g.unitOrder))
	for _, id := range g.unitOrder {
		if u := g.units[id]; u != nil && !u.Disposed {
			out = append(out, u)
		}
	}
	return out
}

// UnitsOf returns the live units owned by player.
func (g *Game) UnitsOf(player string) []*Unit {
	var out []*Unit
	for _, u := range g.Units() {
		if u.Owner == player {
			out = append(out, u)
		}
	}
	return out
}

// UnitsAt returns the live units whose location is exactly loc.
func (g *Game) UnitsAt(loc string) []*Unit {
	var out []*Unit
	for _, u := range g.Units() {
		if u.Location == loc {
			out = append(out, u)
		}
	}
	return out
}

// Settlements returns every settlement sorted by id.
func (g *Game) Settlements() []*Settlement {
	ids := slices.Sorted(maps.Keys(g.settlements))
	out := make([]*Settlement, 0, len(ids))
	for _, id := range ids {
		out = append(out, g.settlements[id])
	}
	return out
}

// SettlementAt returns the settlement on the tile, or nil.
func (g *Game) SettlementAt(tileID string) *Settlement {
	for _, s := range g.settlements {
		if s.Tile == tileID {
			return s
		}
	}
	return nil
}

// TradeRoutes returns the trade routes sorted by id.
func (g *Game) TradeRoutes() []*TradeRoute {
	ids := slices.Sorted(maps.Keys(g.routes))
	out := make([]*TradeRoute, 0, len(ids))
	for _, id := range ids {
		out = append(out, g.routes[id])
	}
	return out
}

// UnitTile resolves the map tile a unit is on, following carriers and
// settlements. It returns nil for units in Europe or on the high seas.
func (g *Game) UnitTile(u *Unit) *Tile {
	loc := u.Location
	for depth := 0; depth < 4; depth++ {
		if t := g.tiles[loc]; t != nil {
			return t
		}
		if s := g.settlements[loc]; s != nil {
			return g.tiles[s.Tile]
		}
		carrier := g.units[loc]
		if carrier == nil {
			return nil
		}
		loc = carrier.Location
	}
	return nil
}

// Carrier returns the unit carrying u, or nil.
func (g *Game) Carrier(u *Unit) *Unit {
	return g.units[u.Location]
}

// Cargo returns the units aboard carrier.
func (g *Game) Cargo(carrier *Unit) []*Unit {
	return g.UnitsAt(carrier.ID)
}

// SpaceLeft returns the free cargo slots of a carrier.
func (g *Game) SpaceLeft(carrier *Unit) int {
	return carrier.Space - len(g.Cargo(carrier)) - carrier.GoodsCount()
}

// OccupiedBy returns the owner of live units on the tile other than
// exclude, or "" if the tile holds none.
func (g *Game) OccupiedBy(tileID, exclude string) string {
	for _, u := range g.UnitsAt(tileID) {
		if u.Owner != exclude {
			return u.Owner
		}
	}
	return ""
}

// --- Mutation ---

// AddPlayer inserts or replaces a player.
func (g *Game) AddPlayer(p *Player) {
	if _, ok := g.players[p.ID]; !ok {
		g.playerOrder = append(g.playerOrder, p.ID)
	}
	g.players[p.ID] = p
}

// AddUnit inserts or replaces a unit.
func (g *Game) AddUnit(u *Unit) {
	if _, ok := g.units[u.ID]; !ok && !slices.Contains(g.unitOrder, u.ID) {
		g.unitOrder = append(g.unitOrder, u.ID)
	}
	g.units[u.ID] = u
}

// AddTile inserts or replaces a tile and indexes its coordinates.
func (g *Game) AddTile(t *Tile) {
	if old, ok := g.tiles[t.ID]; ok {
		delete(g.tileAt, [2]int{old.X, old.Y})
	}
	g.tiles[t.ID] = t
	g.tileAt[[2]int{t.X, t.Y}] = t.ID
	if t.X >= g.Width {
		g.Width = t.X + 1
	}
	if t.Y >= g.Height {
		g.Height = t.Y + 1
	}
}

// AddSettlement inserts or replaces a settlement.
func (g *Game) AddSettlement(s *Settlement) { g.settlements[s.ID] = s }

// AddTradeRoute inserts or replaces a trade route.
func (g *Game) AddTradeRoute(r *TradeRoute) { g.routes[r.ID] = r }

// DisposeUnit detaches a unit and everything it carries from the graph.
// It returns the disposed units, carrier first.
func (g *Game) DisposeUnit(id string) []*Unit {
	u := g.units[id]
	if u == nil {
		return nil
	}
	disposed := []*Unit{u}
	for _, cargo := range g.UnitsAt(id) {
		disposed = append(disposed, g.DisposeUnit(cargo.ID)...)
	}
	u.Disposed = true
	delete(g.units, id)
	g.unitOrder = slices.DeleteFunc(g.unitOrder, func(s string) bool { return s == id })
	return disposed
}

// Remove disposes any object by id. It reports whether something was
// removed. Tiles are never removed, only forgotten by visibility.
func (g *Game) Remove(id string) bool {
	switch {
	case g.units[id] != nil:
		g.DisposeUnit(id)
		return true
	case g.settlements[id] != nil:
		for _, u := range g.UnitsAt(id) {
			g.DisposeUnit(u.ID)
		}
		delete(g.settlements, id)
		return true
	case g.routes[id] != nil:
		delete(g.routes, id)
		return true
	case g.players[id] != nil:
		delete(g.players, id)
		g.playerOrder = slices.DeleteFunc(g.playerOrder, func(s string) bool { return s == id })
		return true
	}
	return false
}

// Describe returns a short human label for an object id.
func (g *Game) Describe(id string) string {
	switch o := g.Lookup(id).(type) {
	case *Unit:
		return fmt.Sprintf("%s (%s)", strings.TrimSpace(o.Type+" "+roleLabel(o.Role)), o.ID)
	case *Settlement:
		return o.Name
	case *Player:
		return o.Name
	case *Tile:
		return fmt.Sprintf("(%d,%d)", o.X, o.Y)
	}
	return id
}

func roleLabel(role string) string {
	if role == "" || role == RoleDefault {
		return ""
	}
	return role
}
