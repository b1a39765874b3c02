package log

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
)

// EventLogger is the interface for logging game events.
type EventLogger interface {
	Log(event GameEvent)
	Events() []GameEvent
}

// --- MemoryLogger: stores events in memory for test assertions ---

type MemoryLogger struct {
	mu     sync.Mutex
	events []GameEvent
	seq    int
	drain  int
}

func NewMemoryLogger() *MemoryLogger {
	return &MemoryLogger{}
}

func (l *MemoryLogger) Log(event GameEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seq++
	event.Seq = l.seq
	l.events = append(l.events, event)
}

func (l *MemoryLogger) Events() []GameEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]GameEvent(nil), l.events...)
}

// EventsOfType returns all events matching the given type.
func (l *MemoryLogger) EventsOfType(t EventType) []GameEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	var result []GameEvent
	for _, e := range l.events {
		if e.Type == t {
			result = append(result, e)
		}
	}
	return result
}

// LastEvent returns the most recent event, or a zero event if none.
func (l *MemoryLogger) LastEvent() GameEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.events) == 0 {
		return GameEvent{}
	}
	return l.events[len(l.events)-1]
}

// Drain returns the events logged since the previous Drain.
func (l *MemoryLogger) Drain() []GameEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := append([]GameEvent(nil), l.events[l.drain:]...)
	l.drain = len(l.events)
	return out
}

// --- TextLogger: writes human-readable lines to an io.Writer ---

// textBacklog caps the undrained events a TextLogger keeps.
const textBacklog = 1024

// TextLogger writes every event to w. Only events not yet drained are kept
// in memory, at most textBacklog of them; the writer holds the history.
type TextLogger struct {
	mu      sync.Mutex
	w       io.Writer
	seq     int
	pending []GameEvent
}

func NewTextLogger(w io.Writer) *TextLogger {
	return &TextLogger{w: w}
}

func (l *TextLogger) Log(event GameEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seq++
	event.Seq = l.seq
	if len(l.pending) == textBacklog {
		l.pending = slices.Delete(l.pending, 0, 1)
	}
	l.pending = append(l.pending, event)
	fmt.Fprintln(l.w, FormatEvent(event))
}

// Events returns the events not yet drained.
func (l *TextLogger) Events() []GameEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.pending)
}

// Drain returns the events logged since the previous Drain and forgets them.
func (l *TextLogger) Drain() []GameEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := l.pending
	l.pending = nil
	return out
}

// --- Formatting ---

// FormatEvent formats a single event as a human-readable line.
func FormatEvent(e GameEvent) string {
	player := e.Player
	// Pad player to 12 chars for alignment
	for len(player) < 12 {
		player += " "
	}
	return fmt.Sprintf("T%-3d %s| %s", e.Turn, player, e.Details)
}

// FormatAll formats all events as a multi-line string.
func FormatAll(events []GameEvent) string {
	var sb strings.Builder
	for _, e := range events {
		sb.WriteString(FormatEvent(e))
		sb.WriteByte('\n')
	}
	return sb.String()
}

// --- Helper constructors for common events ---

func NewTurnEvent(turn int) GameEvent {
	return GameEvent{
		Turn:    turn,
		Type:    EventNewTurn,
		Details: fmt.Sprintf("=== Turn %d ===", turn),
	}
}

func NewTurnStartEvent(turn int, player string) GameEvent {
	return GameEvent{
		Turn:    turn,
		Player:  player,
		Type:    EventTurnStart,
		Details: fmt.Sprintf("%s to move", player),
	}
}

func NewMoveEvent(turn int, player, unit, from, to string) GameEvent {
	return GameEvent{
		Turn:    turn,
		Player:  player,
		Type:    EventMove,
		Unit:    unit,
		Details: fmt.Sprintf("%s moves %s → %s", unit, from, to),
	}
}

func NewMoveRejectedEvent(turn int, player, unit, reason string) GameEvent {
	return GameEvent{
		Turn:    turn,
		Player:  player,
		Type:    EventMoveRejected,
		Unit:    unit,
		Details: fmt.Sprintf("%s could not move (%s)", unit, reason),
	}
}

func NewAttackEvent(turn int, player, attacker, defender, result string) GameEvent {
	return GameEvent{
		Turn:    turn,
		Player:  player,
		Type:    EventAttack,
		Unit:    attacker,
		Details: fmt.Sprintf("%s attacks %s: %s", attacker, defender, result),
	}
}

func NewCombatEvent(turn int, player, attacker, defender, result string) GameEvent {
	return GameEvent{
		Turn:    turn,
		Player:  player,
		Type:    EventCombat,
		Unit:    defender,
		Details: fmt.Sprintf("%s attacked %s: %s", attacker, defender, result),
	}
}

func NewUnitLostEvent(turn int, player, unit, reason string) GameEvent {
	return GameEvent{
		Turn:    turn,
		Player:  player,
		Type:    EventUnitLost,
		Unit:    unit,
		Details: fmt.Sprintf("%s is lost (%s)", unit, reason),
	}
}

func NewUnitForgottenEvent(turn int, unit string) GameEvent {
	return GameEvent{
		Turn:    turn,
		Type:    EventUnitForgotten,
		Unit:    unit,
		Details: fmt.Sprintf("%s moved out of sight", unit),
	}
}

func NewRumourEvent(turn int, player, unit, kind, details string) GameEvent {
	return GameEvent{
		Turn:    turn,
		Player:  player,
		Type:    EventRumour,
		Unit:    unit,
		Details: fmt.Sprintf("Rumour %s: %s", kind, details),
	}
}

func NewMonarchEvent(turn int, action, details string) GameEvent {
	return GameEvent{
		Turn:    turn,
		Player:  "Crown",
		Type:    EventMonarch,
		Details: fmt.Sprintf("%s: %s", action, details),
	}
}

func NewTradeEvent(turn int, player, unit, details string) GameEvent {
	return GameEvent{
		Turn:    turn,
		Player:  player,
		Type:    EventTrade,
		Unit:    unit,
		Details: details,
	}
}

func NewChatEvent(turn int, sender, text string, private bool) GameEvent {
	details := text
	if private {
		details = "(private) " + text
	}
	return GameEvent{
		Turn:    turn,
		Player:  sender,
		Type:    EventChat,
		Details: details,
	}
}

func NewServerErrorEvent(turn int, text string) GameEvent {
	return GameEvent{
		Turn:    turn,
		Player:  "server",
		Type:    EventServerError,
		Details: text,
	}
}

func NewEndTurnEvent(turn int, player string) GameEvent {
	return GameEvent{
		Turn:    turn,
		Player:  player,
		Type:    EventEndTurn,
		Details: fmt.Sprintf("%s ends the turn", player),
	}
}

func NewArrivedEvent(turn int, player, unit, dest string) GameEvent {
	return GameEvent{
		Turn:    turn,
		Player:  player,
		Type:    EventArrived,
		Unit:    unit,
		Details: fmt.Sprintf("%s reached %s", unit, dest),
	}
}

func NewTradeRouteStopEvent(turn int, player, unit, stop string, unloaded, loaded []string) GameEvent {
	return GameEvent{
		Turn:    turn,
		Player:  player,
		Type:    EventTradeRouteStop,
		Unit:    unit,
		Details: fmt.Sprintf("%s at %s: unloaded [%s], loaded [%s]", unit, stop, strings.Join(unloaded, ", "), strings.Join(loaded, ", ")),
	}
}

func NewAutosaveEvent(turn int, id int64) GameEvent {
	return GameEvent{
		Turn:    turn,
		Type:    EventAutosave,
		Details: fmt.Sprintf("Autosaved (#%d)", id),
	}
}

func NewStanceEvent(turn int, player, other, stance string) GameEvent {
	return GameEvent{
		Turn:    turn,
		Player:  player,
		Type:    EventStance,
		Details: fmt.Sprintf("%s is now at %s with %s", player, stance, other),
	}
}

func NewEvent(turn int, t EventType, player, details string) GameEvent {
	return GameEvent{
		Turn:    turn,
		Player:  player,
		Type:    t,
		Details: details,
	}
}
