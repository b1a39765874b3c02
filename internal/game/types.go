package game

import "fmt"

// --- Enums ---

// Direction is one of the eight compass steps between neighbouring tiles.
type Direction int

const (
	North Direction = iota
	NorthEast
	East
	SouthEast
	South
	SouthWest
	West
	NorthWest
)

// Directions lists every direction in clockwise order starting at North.
var Directions = [...]Direction{North, NorthEast, East, SouthEast, South, SouthWest, West, NorthWest}

var directionNames = [...]string{"NORTH", "NORTHEAST", "EAST", "SOUTHEAST", "SOUTH", "SOUTHWEST", "WEST", "NORTHWEST"}

func (d Direction) String() string {
	if d < North || d > NorthWest {
		return fmt.Sprintf("Direction(%d)", int(d))
	}
	return directionNames[d]
}

// ParseDirection parses a wire direction name such as "EAST".
func ParseDirection(s string) (Direction, bool) {
	for i, n := range directionNames {
		if n == s {
			return Direction(i), true
		}
	}
	return 0, false
}

// Delta returns the x/y offset of one step. North is towards y-1.
func (d Direction) Delta() (dx, dy int) {
	switch d {
	case North:
		return 0, -1
	case NorthEast:
		return 1, -1
	case East:
		return 1, 0
	case SouthEast:
		return 1, 1
	case South:
		return 0, 1
	case SouthWest:
		return -1, 1
	case West:
		return -1, 0
	case NorthWest:
		return -1, -1
	}
	return 0, 0
}

// Reverse returns the opposite direction.
func (d Direction) Reverse() Direction {
	return (d + 4) % 8
}

// MoveType classifies the step a unit would take into a neighbouring tile.
type MoveType int

const (
	MoveIllegal MoveType = iota
	MoveSimple
	MoveAttack
	MoveDisembark
	MoveEmbark
	MoveHighSeas
	MoveScoutSettlement
	MoveMissionarySettlement
	MoveColonistSettlement
	MoveForeignColony
	MoveTrade
	MoveExploreRumour
	MoveNoMoves
)

func (m MoveType) String() string {
	switch m {
	case MoveSimple:
		return "simple"
	case MoveAttack:
		return "attack"
	case MoveDisembark:
		return "disembark"
	case MoveEmbark:
		return "embark"
	case MoveHighSeas:
		return "enter-high-seas"
	case MoveScoutSettlement:
		return "enter-settlement-scout"
	case MoveMissionarySettlement:
		return "enter-settlement-missionary"
	case MoveColonistSettlement:
		return "enter-settlement-colonist"
	case MoveForeignColony:
		return "enter-foreign-colony"
	case MoveTrade:
		return "trade-with-settlement"
	case MoveExploreRumour:
		return "explore-lost-city-rumour"
	case MoveNoMoves:
		return "no-moves"
	default:
		return "illegal"
	}
}

// Progresses reports whether the move can be executed without asking the
// player anything. Only these moves are taken while following orders.
func (m MoveType) Progresses() bool {
	switch m {
	case MoveSimple, MoveEmbark, MoveDisembark, MoveHighSeas:
		return true
	}
	return false
}

// UnitState is the standing activity of a unit.
type UnitState string

const (
	StateActive    UnitState = "ACTIVE"
	StateSentry    UnitState = "SENTRY"
	StateFortify   UnitState = "FORTIFY"
	StateFortified UnitState = "FORTIFIED"
	StateSkipped   UnitState = "SKIPPED"
	StateInColony  UnitState = "IN_COLONY"
)

// Unit roles that change how a unit interacts with native settlements.
const (
	RoleDefault    = "default"
	RoleScout      = "scout"
	RoleSoldier    = "soldier"
	RoleDragoon    = "dragoon"
	RolePioneer    = "pioneer"
	RoleMissionary = "missionary"
)

// IsMilitary reports whether the role can attack.
func IsMilitary(role string) bool {
	return role == RoleSoldier || role == RoleDragoon
}

// Special locations that are not map tiles or units.
const (
	LocationEurope   = "europe"
	LocationHighSeas = "highseas"
)

// Tile types the client distinguishes.
const (
	TileOcean    = "ocean"
	TileHighSeas = "highseas"
)

// Stance between two players.
type Stance string

const (
	StancePeace     Stance = "PEACE"
	StanceWar       Stance = "WAR"
	StanceCeaseFire Stance = "CEASE_FIRE"
	StanceAlliance  Stance = "ALLIANCE"
	StanceUnknown   Stance = "UNCONTACTED"
)
