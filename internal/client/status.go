package client

import (
	"fmt"
	"strings"

	"github.com/peterkuimelis/colonia/internal/game"
)

// renderStatus draws a plain-text summary of the replica for the local
// player. It is rendered under the session lock and read lock-free.
func renderStatus(g *game.Game, player, active string, state State) string {
	var sb strings.Builder
	sb.WriteString("╔══════════════════════════════════════════════════════╗\n")
	fmt.Fprintf(&sb, "║  Turn %d  Current: %s  Scheduler: %s\n", g.Turn, nameOf(g, g.CurrentPlayer), state)
	if p := g.Player(player); p != nil {
		fmt.Fprintf(&sb, "║  %s (%s)  Gold: %d  Tax: %d%%  Score: %d\n", p.Name, p.Nation, p.Gold, p.Tax, p.Score)
	}
	sb.WriteString("╠══════════════════════════════════════════════════════╣\n")
	for _, s := range g.Settlements() {
		if s.Owner != player {
			continue
		}
		fmt.Fprintf(&sb, "║  Colony %s at %s", s.Name, g.Describe(s.Tile))
		if s.Building != "" {
			fmt.Fprintf(&sb, " building %s", s.Building)
		}
		sb.WriteByte('\n')
	}
	for _, u := range g.UnitsOf(player) {
		marker := " "
		if u.ID == active {
			marker = "*"
		}
		fmt.Fprintf(&sb, "║ %s %-28s %-12s moves %d/%d", marker, g.Describe(u.ID), where(g, u), u.MovesLeft, u.InitialMoves)
		if u.Destination != "" {
			fmt.Fprintf(&sb, " → %s", g.Describe(u.Destination))
		}
		if u.TradeRoute != "" {
			fmt.Fprintf(&sb, " [route %s]", u.TradeRoute)
		}
		if u.State != game.StateActive && u.State != "" {
			fmt.Fprintf(&sb, " %s", strings.ToLower(string(u.State)))
		}
		sb.WriteByte('\n')
	}
	sb.WriteString("╚══════════════════════════════════════════════════════╝\n")
	return sb.String()
}

func nameOf(g *game.Game, player string) string {
	if p := g.Player(player); p != nil && p.Name != "" {
		return p.Name
	}
	if player == "" {
		return "-"
	}
	return player
}

func where(g *game.Game, u *game.Unit) string {
	switch u.Location {
	case game.LocationEurope:
		return "Europe"
	case game.LocationHighSeas:
		return "high seas"
	}
	if c := g.Carrier(u); c != nil {
		return "aboard " + c.ID
	}
	if t := g.UnitTile(u); t != nil {
		return g.Describe(t.ID)
	}
	return u.Location
}
