package log

// EventType enumerates the game events shown in the player's history.
type EventType int

const (
	EventNewTurn EventType = iota
	EventTurnStart
	EventMove
	EventMoveRejected
	EventAttack
	EventCombat
	EventUnitLost
	EventUnitForgotten
	EventRumour
	EventMonarch
	EventTrade
	EventGift
	EventDemand
	EventStance
	EventFoundingFather
	EventChat
	EventServerError
	EventEndTurn
	EventArrived
	EventTradeRouteStop
	EventAutosave
	EventPlayerDead
	EventGameEnded
	EventIndependence
	EventReconnect
	EventColony
	EventEurope
	EventLobby
)

func (e EventType) String() string {
	switch e {
	case EventNewTurn:
		return "NewTurn"
	case EventTurnStart:
		return "TurnStart"
	case EventMove:
		return "Move"
	case EventMoveRejected:
		return "MoveRejected"
	case EventAttack:
		return "Attack"
	case EventCombat:
		return "Combat"
	case EventUnitLost:
		return "UnitLost"
	case EventUnitForgotten:
		return "UnitForgotten"
	case EventRumour:
		return "Rumour"
	case EventMonarch:
		return "Monarch"
	case EventTrade:
		return "Trade"
	case EventGift:
		return "Gift"
	case EventDemand:
		return "Demand"
	case EventStance:
		return "Stance"
	case EventFoundingFather:
		return "FoundingFather"
	case EventChat:
		return "Chat"
	case EventServerError:
		return "ServerError"
	case EventEndTurn:
		return "EndTurn"
	case EventArrived:
		return "Arrived"
	case EventTradeRouteStop:
		return "TradeRouteStop"
	case EventAutosave:
		return "Autosave"
	case EventPlayerDead:
		return "PlayerDead"
	case EventGameEnded:
		return "GameEnded"
	case EventIndependence:
		return "Independence"
	case EventReconnect:
		return "Reconnect"
	case EventColony:
		return "Colony"
	case EventEurope:
		return "Europe"
	case EventLobby:
		return "Lobby"
	default:
		return "Unknown"
	}
}

// GameEvent is a single entry in the player's game history.
type GameEvent struct {
	Seq     int       // monotonic sequence number
	Turn    int       // game turn (1-based, 0 in the lobby)
	Player  string    // name of the acting player, if any
	Type    EventType // event type
	Unit    string    // unit id (if applicable)
	Details string    // human-readable detail string
}
