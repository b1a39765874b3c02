package game

import "testing"

func TestRollbackRestoresTouchedObjects(t *testing.T) {
	g := newTestMap(t, "...")
	u := addUnit(g, "unit:1", "player:1", 0, 0, 3)
	u.Goods = map[string]int{"tools": 50}
	s := addSettlement(g, "colony:1", "player:1", 2, 0, true)
	s.Goods = map[string]int{"food": 10}

	tx := g.Begin()
	tx.Unit("unit:1").Location = TileID(1, 0)
	tx.Unit("unit:1").MovesLeft--
	tx.Unit("unit:1").Goods["tools"] = 0
	tx.Player("player:1").Gold -= 300
	tx.Settlement("colony:1").Goods["food"] = 99
	tx.Rollback()

	if u.Location != TileID(0, 0) || u.MovesLeft != 3 || u.Goods["tools"] != 50 {
		t.Fatalf("unit not restored: %+v", u)
	}
	if g.Player("player:1").Gold != 1000 {
		t.Fatalf("gold = %d", g.Player("player:1").Gold)
	}
	if s.Goods["food"] != 10 {
		t.Fatalf("settlement goods = %v", s.Goods)
	}
	if g.Unit("unit:1") != u {
		t.Fatal("rollback replaced the live pointer")
	}
}

func TestCommitKeepsChanges(t *testing.T) {
	g := newTestMap(t, "..")
	u := addUnit(g, "unit:1", "player:1", 0, 0, 3)

	tx := g.Begin()
	tx.Unit("unit:1").Location = TileID(1, 0)
	tx.Commit()
	tx.Rollback() // no-op after commit

	if u.Location != TileID(1, 0) {
		t.Fatalf("location = %s", u.Location)
	}
}

func TestRollbackUndoesDisposal(t *testing.T) {
	g := newTestMap(t, "~~")
	ship := addShip(g, "unit:1", "player:1", 0, 0, 6, 2)
	addUnit(g, "unit:2", "player:1", 0, 0, 3).Location = ship.ID
	addUnit(g, "unit:3", "player:1", 1, 0, 3)

	tx := g.Begin()
	tx.DisposeUnit("unit:1")
	if g.Unit("unit:1") != nil || g.Unit("unit:2") != nil {
		t.Fatal("dispose did not detach ship and cargo")
	}
	tx.Rollback()

	units := g.Units()
	if len(units) != 3 || units[0].ID != "unit:1" || units[1].ID != "unit:2" || units[2].ID != "unit:3" {
		t.Fatalf("units after rollback = %v", unitIDs(units))
	}
	if ship.Disposed {
		t.Fatal("ship still marked disposed")
	}
}

func unitIDs(units []*Unit) []string {
	ids := make([]string, len(units))
	for i, u := range units {
		ids[i] = u.ID
	}
	return ids
}
