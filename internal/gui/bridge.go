package gui

import (
	"go.uber.org/zap"
)

type confirmArgs struct {
	text, ok, cancel string
}

type choiceArgs struct {
	text    string
	choices []Choice
}

type choiceResult struct {
	key string
	ok  bool
}

// Bridge is a Presenter that may be called from any goroutine. Notices are
// scheduled with Later; dialogs block the caller on a Task until the
// player answers. A dialog that cannot be shown counts as cancelled.
type Bridge struct {
	exec    *Executor
	p       Presenter
	logger  *zap.Logger
	confirm *Task[confirmArgs, bool]
	choice  *Task[choiceArgs, choiceResult]
}

var _ Presenter = (*Bridge)(nil)

// NewBridge wraps p so that all of its methods run on exec.
func NewBridge(exec *Executor, p Presenter, logger *zap.Logger) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bridge{
		exec:   exec,
		p:      p,
		logger: logger,
		confirm: NewTask(exec, func(a confirmArgs) bool {
			return p.ShowConfirmDialog(a.text, a.ok, a.cancel)
		}),
		choice: NewTask(exec, func(a choiceArgs) choiceResult {
			key, ok := p.ShowChoiceDialog(a.text, a.choices)
			return choiceResult{key: key, ok: ok}
		}),
	}
}

func (b *Bridge) later(what string, fn func()) {
	if err := b.exec.Later(fn); err != nil {
		b.logger.Debug("ui call dropped", zap.String("call", what), zap.Error(err))
	}
}

func (b *Bridge) ShowInformationMessage(text string) {
	b.later("info", func() { b.p.ShowInformationMessage(text) })
}

func (b *Bridge) ShowErrorMessage(text string) {
	b.later("error", func() { b.p.ShowErrorMessage(text) })
}

func (b *Bridge) Refresh() {
	b.later("refresh", b.p.Refresh)
}

func (b *Bridge) SetActiveUnit(unitID string) {
	b.later("activeUnit", func() { b.p.SetActiveUnit(unitID) })
}

func (b *Bridge) DisplayChat(sender, text string, private bool) {
	b.later("chat", func() { b.p.DisplayChat(sender, text, private) })
}

func (b *Bridge) ShowConfirmDialog(text, ok, cancel string) bool {
	answer, err := b.confirm.Run(confirmArgs{text: text, ok: ok, cancel: cancel})
	if err != nil {
		b.logger.Warn("confirm dialog not shown", zap.String("text", text), zap.Error(err))
		return false
	}
	return answer
}

func (b *Bridge) ShowChoiceDialog(text string, choices []Choice) (string, bool) {
	res, err := b.choice.Run(choiceArgs{text: text, choices: choices})
	if err != nil {
		b.logger.Warn("choice dialog not shown", zap.String("text", text), zap.Error(err))
		return "", false
	}
	return res.key, res.ok
}
