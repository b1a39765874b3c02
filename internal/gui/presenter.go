// Package gui is the presentation boundary of the client. The client core
// talks to a Presenter; a Bridge marshals every call onto one UI goroutine.
package gui

// Choice is one option of a choice dialog. Key is returned when the option
// is picked; Label is shown to the player.
type Choice struct {
	Key   string
	Label string
}

// Presenter is a passive presentation sink. Dialog methods block until the
// player answers.
type Presenter interface {
	ShowInformationMessage(text string)
	ShowErrorMessage(text string)
	// ShowConfirmDialog returns true when the player picks ok.
	ShowConfirmDialog(text, ok, cancel string) bool
	// ShowChoiceDialog returns the picked key, or false when cancelled.
	ShowChoiceDialog(text string, choices []Choice) (string, bool)
	Refresh()
	SetActiveUnit(unitID string)
	DisplayChat(sender, text string, private bool)
}
