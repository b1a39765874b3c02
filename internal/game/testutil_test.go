package game

import (
	"testing"
)

// newTestMap builds a game from a picture of the map, one string per row:
// '.' land, '~' ocean, 'H' high seas, 'R' land with a lost city rumour.
func newTestMap(t *testing.T, rows ...string) *Game {
	t.Helper()
	g := NewGame("game:1")
	g.Turn = 1
	for y, row := range rows {
		for x, c := range row {
			tile := &Tile{ID: TileID(x, y), X: x, Y: y, Type: "plains", Explored: true}
			switch c {
			case '.':
			case '~':
				tile.Type = TileOcean
			case 'H':
				tile.Type = TileHighSeas
			case 'R':
				tile.LostCityRumour = true
			default:
				t.Fatalf("bad map cell %q at %d,%d", c, x, y)
			}
			g.AddTile(tile)
		}
	}
	g.AddPlayer(&Player{ID: "player:1", Name: "Alice", Nation: "dutch", European: true, Gold: 1000})
	g.AddPlayer(&Player{ID: "player:2", Name: "Bob", Nation: "english", European: true})
	g.AddPlayer(&Player{ID: "player:9", Name: "Arawak", Nation: "arawak"})
	g.CurrentPlayer = "player:1"
	return g
}

func addUnit(g *Game, id, owner string, x, y, moves int) *Unit {
	u := &Unit{
		ID:           id,
		Owner:        owner,
		Type:         "freeColonist",
		Location:     TileID(x, y),
		MovesLeft:    moves,
		InitialMoves: moves,
		State:        StateActive,
		LineOfSight:  1,
	}
	g.AddUnit(u)
	return u
}

func addShip(g *Game, id, owner string, x, y, moves, space int) *Unit {
	u := addUnit(g, id, owner, x, y, moves)
	u.Type = "caravel"
	u.Naval = true
	u.Space = space
	return u
}

func addSettlement(g *Game, id, owner string, x, y int, colony bool) *Settlement {
	s := &Settlement{ID: id, Name: id, Owner: owner, Tile: TileID(x, y), Colony: colony}
	g.AddSettlement(s)
	return s
}
