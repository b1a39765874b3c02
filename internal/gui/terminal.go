package gui

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// LineRouter splits terminal input between an open dialog and the command
// loop. A line goes to the dialog waiting in Await if there is one, and to
// Commands otherwise.
type LineRouter struct {
	logger   *zap.Logger
	commands chan string

	mu      sync.Mutex
	waiting chan string
	closed  bool
}

// NewLineRouter returns a router with a buffered command channel.
func NewLineRouter(logger *zap.Logger) *LineRouter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LineRouter{
		logger:   logger,
		commands: make(chan string, 32),
	}
}

// Commands delivers lines typed while no dialog is open. It is closed by
// Close.
func (r *LineRouter) Commands() <-chan string { return r.commands }

// Route delivers one input line.
func (r *LineRouter) Route(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	if r.waiting != nil {
		r.waiting <- line
		r.waiting = nil
		return
	}
	select {
	case r.commands <- line:
	default:
		r.logger.Warn("command dropped, input queue full", zap.String("line", line))
	}
}

// Await blocks until the next input line. It returns false once the router
// is closed.
func (r *LineRouter) Await() (string, bool) {
	ch := make(chan string, 1)
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return "", false
	}
	r.waiting = ch
	r.mu.Unlock()
	line, ok := <-ch
	return line, ok
}

// Run reads lines from in until EOF or ctx is done, then closes the router.
func (r *LineRouter) Run(ctx context.Context, in io.Reader) error {
	defer r.Close()
	lines := make(chan string)
	errc := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		errc <- sc.Err()
	}()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errc:
			return err
		case line := <-lines:
			r.Route(line)
		}
	}
}

// Close wakes a waiting dialog and closes Commands.
func (r *LineRouter) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	if r.waiting != nil {
		close(r.waiting)
		r.waiting = nil
	}
	close(r.commands)
}

// Terminal is a line-oriented Presenter. Dialog answers are read through
// a LineRouter.
type Terminal struct {
	w     io.Writer
	lines *LineRouter

	// Render draws the game state on Refresh. It runs on the UI goroutine.
	Render func(w io.Writer)

	mu         sync.Mutex
	activeUnit string
}

var _ Presenter = (*Terminal)(nil)

// NewTerminal writes to w and reads answers from lines.
func NewTerminal(w io.Writer, lines *LineRouter) *Terminal {
	return &Terminal{w: w, lines: lines}
}

// ActiveUnit returns the unit last passed to SetActiveUnit.
func (t *Terminal) ActiveUnit() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.activeUnit
}

func (t *Terminal) ShowInformationMessage(text string) {
	fmt.Fprintf(t.w, "[info] %s\n", text)
}

func (t *Terminal) ShowErrorMessage(text string) {
	fmt.Fprintf(t.w, "[error] %s\n", text)
}

func (t *Terminal) ShowConfirmDialog(text, ok, cancel string) bool {
	fmt.Fprintf(t.w, "\n%s\n  y) %s\n  n) %s\n", text, ok, cancel)
	for {
		fmt.Fprint(t.w, "> ")
		line, open := t.lines.Await()
		if !open {
			return false
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true
		case "n", "no":
			return false
		default:
			fmt.Fprint(t.w, "Enter y or n\n")
		}
	}
}

func (t *Terminal) ShowChoiceDialog(text string, choices []Choice) (string, bool) {
	fmt.Fprintf(t.w, "\n%s\n", text)
	for i, c := range choices {
		fmt.Fprintf(t.w, "  %d) %s\n", i+1, c.Label)
	}
	fmt.Fprint(t.w, "  0) Cancel\n")
	for {
		fmt.Fprint(t.w, "> ")
		line, open := t.lines.Await()
		if !open {
			return "", false
		}
		line = strings.TrimSpace(line)
		n, err := strconv.Atoi(line)
		if err != nil {
			for _, c := range choices {
				if strings.EqualFold(c.Key, line) {
					return c.Key, true
				}
			}
			n = -1
		}
		if n == 0 {
			return "", false
		}
		if n < 1 || n > len(choices) {
			fmt.Fprintf(t.w, "Enter a number between 0 and %d\n", len(choices))
			continue
		}
		return choices[n-1].Key, true
	}
}

func (t *Terminal) Refresh() {
	if t.Render != nil {
		t.Render(t.w)
	}
}

func (t *Terminal) SetActiveUnit(unitID string) {
	t.mu.Lock()
	changed := t.activeUnit != unitID
	t.activeUnit = unitID
	t.mu.Unlock()
	if changed && unitID != "" {
		fmt.Fprintf(t.w, "Active unit: %s\n", unitID)
	}
}

func (t *Terminal) DisplayChat(sender, text string, private bool) {
	if private {
		fmt.Fprintf(t.w, "<%s> (private) %s\n", sender, text)
		return
	}
	fmt.Fprintf(t.w, "<%s> %s\n", sender, text)
}
