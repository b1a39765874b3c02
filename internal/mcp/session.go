package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/peterkuimelis/colonia/internal/app"
	"github.com/peterkuimelis/colonia/internal/config"
)

// DecisionType identifies what kind of dialog the client is waiting on.
type DecisionType string

const (
	DecisionConfirm DecisionType = "confirm"
	DecisionChoice  DecisionType = "choice"
)

// PendingDecision is a dialog the client is blocked on.
type PendingDecision struct {
	Type    DecisionType `json:"type"`
	Prompt  string       `json:"prompt"`
	Choices []ChoiceView `json:"choices,omitempty"`
}

// ChoiceView is one dialog option.
type ChoiceView struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

// Answer is sent back from a tool to the blocked dialog.
type Answer struct {
	Yes bool
	Key string
}

// Notice is a message or chat line shown to the player.
type Notice struct {
	Kind string `json:"kind"`
	Text string `json:"text"`
}

// EventView is a history event as presented in tool responses.
type EventView struct {
	Turn    int    `json:"turn"`
	Player  string `json:"player,omitempty"`
	Type    string `json:"type"`
	Unit    string `json:"unit,omitempty"`
	Details string `json:"details"`
}

// ToolResponse is the JSON envelope returned by all MCP tools.
type ToolResponse struct {
	Events     []EventView      `json:"events"`
	Notices    []Notice         `json:"notices,omitempty"`
	Status     string           `json:"status,omitempty"`
	ActiveUnit string           `json:"active_unit,omitempty"`
	Pending    *PendingDecision `json:"pending,omitempty"`
	Running    string           `json:"running,omitempty"`
	Result     string           `json:"result,omitempty"`
	Error      string           `json:"error,omitempty"`
	Closed     bool             `json:"closed,omitempty"`
}

var (
	errDialogOpen = errors.New("a dialog is waiting for an answer")
	errBusy       = errors.New("an action is still running")
	errNoDialog   = errors.New("no dialog is open")
)

type action struct {
	name string
	done chan actionResult
}

type actionResult struct {
	text string
	err  error
}

// GameSession is one connected client driven through MCP tools. Actions
// run on their own goroutine so that a dialog raised half-way can be
// answered by a later tool call.
type GameSession struct {
	app       *app.App
	presenter *MCPPresenter
	ctx       context.Context
	cancel    context.CancelFunc

	// settle bounds how long a tool waits for an action to finish or
	// raise a dialog before reporting it as still running.
	settle time.Duration

	mu      sync.Mutex
	current *PendingDecision
	running *action
}

// NewGameSession connects to cfg.Server and starts logging in.
func NewGameSession(ctx context.Context, cfg config.Config, logger *zap.Logger) (*GameSession, error) {
	presenter := NewMCPPresenter()
	a, err := app.Open(ctx, cfg, presenter, logger)
	if err != nil {
		return nil, err
	}
	sctx, cancel := context.WithCancel(context.Background())
	sess := &GameSession{
		app:       a,
		presenter: presenter,
		ctx:       sctx,
		cancel:    cancel,
		settle:    20 * time.Second,
	}
	if err := sess.start("login", func(ctx context.Context) (string, error) {
		return "", a.Session.Login(ctx)
	}); err != nil {
		_ = sess.Close()
		return nil, err
	}
	return sess, nil
}

// start runs fn in the background. Only one action runs at a time, and
// none may start while a dialog is open.
func (s *GameSession) start(name string, fn func(ctx context.Context) (string, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil {
		return errDialogOpen
	}
	if s.running != nil {
		return fmt.Errorf("%w: %s", errBusy, s.running.name)
	}
	run := &action{name: name, done: make(chan actionResult, 1)}
	s.running = run
	go func() {
		text, err := fn(s.ctx)
		run.done <- actionResult{text: text, err: err}
	}()
	return nil
}

// answer releases the open dialog.
func (s *GameSession) answer(a Answer) error {
	s.mu.Lock()
	pending := s.current
	if pending == nil {
		s.mu.Unlock()
		return errNoDialog
	}
	if pending.Type == DecisionChoice && a.Key != "" && !hasChoice(pending, a.Key) {
		s.mu.Unlock()
		return fmt.Errorf("%q is not one of the offered choices", a.Key)
	}
	s.current = nil
	s.mu.Unlock()

	select {
	case s.presenter.responseCh <- a:
		return nil
	case <-s.presenter.done:
		return errors.New("session closed")
	}
}

func hasChoice(d *PendingDecision, key string) bool {
	for _, c := range d.Choices {
		if c.Key == key {
			return true
		}
	}
	return false
}

// await waits up to settle for the running action to finish or for a
// dialog to open, then builds the response. A zero settle only polls.
func (s *GameSession) await(settle time.Duration) *ToolResponse {
	resp := &ToolResponse{}
	s.mu.Lock()
	run, pending := s.running, s.current
	s.mu.Unlock()

	if pending == nil {
		var done chan actionResult
		if run != nil {
			done = run.done
		}
		if settle <= 0 {
			select {
			case r := <-done:
				s.finish(resp, run, r)
			case d := <-s.presenter.pendingCh:
				s.open(d)
			default:
			}
		} else {
			timer := time.NewTimer(settle)
			defer timer.Stop()
			select {
			case r := <-done:
				s.finish(resp, run, r)
			case d := <-s.presenter.pendingCh:
				s.open(d)
			case <-s.app.Conn.Done():
			case <-timer.C:
			}
		}
	}
	s.fill(resp)
	return resp
}

func (s *GameSession) open(d *PendingDecision) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = d
}

func (s *GameSession) finish(resp *ToolResponse, run *action, r actionResult) {
	s.mu.Lock()
	if s.running == run {
		s.running = nil
	}
	s.mu.Unlock()
	switch {
	case r.err != nil:
		resp.Error = fmt.Sprintf("%s: %v", run.name, r.err)
	case r.text != "":
		resp.Result = r.text
	default:
		resp.Result = run.name + " done"
	}
}

// fill adds what the player can see. It must not take the client
// session lock: a dialog may be open while that lock is held.
func (s *GameSession) fill(resp *ToolResponse) {
	for _, e := range s.app.History.Drain() {
		resp.Events = append(resp.Events, EventView{
			Turn:    e.Turn,
			Player:  e.Player,
			Type:    e.Type.String(),
			Unit:    e.Unit,
			Details: e.Details,
		})
	}
	if resp.Events == nil {
		resp.Events = []EventView{}
	}
	resp.Notices = s.presenter.drainNotices()
	resp.Status = s.app.Session.Status()
	resp.ActiveUnit = s.presenter.ActiveUnit()

	s.mu.Lock()
	resp.Pending = s.current
	if s.running != nil && resp.Pending == nil {
		resp.Running = s.running.name
	}
	s.mu.Unlock()

	if err := s.app.Conn.Err(); err != nil {
		resp.Closed = true
		if resp.Error == "" {
			resp.Error = "connection closed: " + err.Error()
		}
	}
}

// Close cancels the running action, releases any dialog and disconnects.
func (s *GameSession) Close() error {
	s.cancel()
	s.presenter.Close()
	return s.app.Close()
}

// respondJSON marshals a ToolResponse to a JSON string.
func respondJSON(resp *ToolResponse) string {
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Sprintf(`{"error": "marshal error: %v"}`, err)
	}
	return string(data)
}
