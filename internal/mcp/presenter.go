package mcp

import (
	"sync"

	"github.com/peterkuimelis/colonia/internal/gui"
)

// MCPPresenter implements gui.Presenter for an MCP client. Notices are
// buffered until the next tool response; dialogs are sent to the session's
// pending channel and block on the response channel until a tool answers.
type MCPPresenter struct {
	pendingCh  chan *PendingDecision
	responseCh chan Answer
	done       chan struct{}
	closeOnce  sync.Once

	mu         sync.Mutex
	notices    []Notice
	activeUnit string
}

var _ gui.Presenter = (*MCPPresenter)(nil)

// NewMCPPresenter returns a presenter with no dialog open.
func NewMCPPresenter() *MCPPresenter {
	return &MCPPresenter{
		pendingCh:  make(chan *PendingDecision, 1),
		responseCh: make(chan Answer),
		done:       make(chan struct{}),
	}
}

// Close cancels any open dialog and makes later dialogs return cancel.
func (p *MCPPresenter) Close() {
	p.closeOnce.Do(func() { close(p.done) })
}

func (p *MCPPresenter) notice(kind, text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.notices = append(p.notices, Notice{Kind: kind, Text: text})
}

// drainNotices returns the notices buffered since the last call.
func (p *MCPPresenter) drainNotices() []Notice {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.notices
	p.notices = nil
	return out
}

// ActiveUnit returns the unit last passed to SetActiveUnit.
func (p *MCPPresenter) ActiveUnit() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.activeUnit
}

func (p *MCPPresenter) ShowInformationMessage(text string) { p.notice("info", text) }

func (p *MCPPresenter) ShowErrorMessage(text string) { p.notice("error", text) }

func (p *MCPPresenter) DisplayChat(sender, text string, private bool) {
	kind := "chat"
	if private {
		kind = "private_chat"
	}
	p.notice(kind, sender+": "+text)
}

// Refresh is a no-op; state is read with get_state.
func (p *MCPPresenter) Refresh() {}

func (p *MCPPresenter) SetActiveUnit(unitID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.activeUnit = unitID
}

// ShowConfirmDialog implements gui.Presenter.
func (p *MCPPresenter) ShowConfirmDialog(text, ok, cancel string) bool {
	a, answered := p.ask(&PendingDecision{
		Type:   DecisionConfirm,
		Prompt: text,
		Choices: []ChoiceView{
			{Key: "yes", Label: ok},
			{Key: "no", Label: cancel},
		},
	})
	return answered && a.Yes
}

// ShowChoiceDialog implements gui.Presenter. An empty answer cancels.
func (p *MCPPresenter) ShowChoiceDialog(text string, choices []gui.Choice) (string, bool) {
	views := make([]ChoiceView, 0, len(choices))
	for _, c := range choices {
		views = append(views, ChoiceView{Key: c.Key, Label: c.Label})
	}
	a, answered := p.ask(&PendingDecision{
		Type:    DecisionChoice,
		Prompt:  text,
		Choices: views,
	})
	if !answered || a.Key == "" {
		return "", false
	}
	return a.Key, true
}

func (p *MCPPresenter) ask(d *PendingDecision) (Answer, bool) {
	select {
	case p.pendingCh <- d:
	case <-p.done:
		return Answer{}, false
	}
	select {
	case a := <-p.responseCh:
		return a, true
	case <-p.done:
		return Answer{}, false
	}
}
