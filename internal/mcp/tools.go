package mcp

import (
	"context"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/peterkuimelis/colonia/internal/client"
	"github.com/peterkuimelis/colonia/internal/config"
	"github.com/peterkuimelis/colonia/internal/game"
)

// activeSession is the singleton game session (one per stdio process).
var activeSession *GameSession

// baseConfig is the client configuration, set by main.
var baseConfig = config.Defaults()

// logger is the diagnostic logger, set by main.
var logger = zap.NewNop()

// SetConfig sets the configuration used by connect.
func SetConfig(cfg config.Config) {
	baseConfig = cfg
}

// SetLogger sets the diagnostic logger.
func SetLogger(l *zap.Logger) {
	if l != nil {
		logger = l
	}
}

// RegisterTools adds all game tools to the MCP server.
func RegisterTools(s *server.MCPServer) {
	s.AddTool(connectTool(), handleConnect)
	s.AddTool(getStateTool(), handleGetState)
	s.AddTool(answerConfirmTool(), handleAnswerConfirm)
	s.AddTool(answerChoiceTool(), handleAnswerChoice)
	s.AddTool(setReadyTool(), handleSetReady)
	s.AddTool(setNationTool(), handleSetNation)
	s.AddTool(startGameTool(), handleStartGame)
	s.AddTool(moveUnitTool(), handleMoveUnit)
	s.AddTool(gotoUnitTool(), handleGotoUnit)
	s.AddTool(endTurnTool(), handleEndTurn)
	s.AddTool(chatTool(), handleChat)
	s.AddTool(foreignAffairsTool(), handleForeignAffairs)
	s.AddTool(disconnectTool(), handleDisconnect)
}

// --- Tool definitions ---

func connectTool() mcp.Tool {
	return mcp.NewTool("connect",
		mcp.WithDescription("Connect to the game server and log in. Returns the lobby or game status, "+
			"or a pending dialog if joining a running game needs an answer."),
		mcp.WithString("name", mcp.Description("Player name; defaults to the configured name")),
		mcp.WithString("server", mcp.Description("host:port or ws:// address; defaults to the configured server")),
	)
}

func getStateTool() mcp.Tool {
	return mcp.NewTool("get_state",
		mcp.WithDescription("Get the status summary, new events and notices, and any pending dialog without acting. Read-only."),
	)
}

func answerConfirmTool() mcp.Tool {
	return mcp.NewTool("answer_confirm",
		mcp.WithDescription("Answer a yes/no dialog. Use this when the pending decision type is 'confirm'."),
		mcp.WithBoolean("answer", mcp.Required(), mcp.Description("true for yes, false for no")),
	)
}

func answerChoiceTool() mcp.Tool {
	return mcp.NewTool("answer_choice",
		mcp.WithDescription("Pick an option of a choice dialog. Use this when the pending decision type is 'choice'."),
		mcp.WithString("key", mcp.Required(), mcp.Description("Key of the chosen option, or empty string to cancel")),
	)
}

func setReadyTool() mcp.Tool {
	return mcp.NewTool("set_ready",
		mcp.WithDescription("Mark the player ready, or not ready, to start. Lobby only."),
		mcp.WithBoolean("ready", mcp.Required(), mcp.Description("true when ready")),
	)
}

func setNationTool() mcp.Tool {
	return mcp.NewTool("set_nation",
		mcp.WithDescription("Pick the nation to play. Lobby only."),
		mcp.WithString("nation", mcp.Required(), mcp.Description("Nation id, e.g. 'dutch'")),
	)
}

func startGameTool() mcp.Tool {
	return mcp.NewTool("start_game",
		mcp.WithDescription("Ask the server to launch the game once every player is ready."),
	)
}

func moveUnitTool() mcp.Tool {
	return mcp.NewTool("move_unit",
		mcp.WithDescription("Move a unit one tile. Attacks, trade, scouting and boarding follow from what is on the target tile, "+
			"and may open a dialog."),
		mcp.WithString("direction", mcp.Required(), mcp.Description("N, NE, E, SE, S, SW, W, NW or the full name such as NORTHEAST")),
		mcp.WithString("unit", mcp.Description("Unit id; defaults to the active unit")),
	)
}

func gotoUnitTool() mcp.Tool {
	return mcp.NewTool("goto_unit",
		mcp.WithDescription("Give a unit a standing destination (tile, settlement id or 'europe'). Empty clears it."),
		mcp.WithString("destination", mcp.Required(), mcp.Description("Destination id")),
		mcp.WithString("unit", mcp.Description("Unit id; defaults to the active unit")),
	)
}

func endTurnTool() mcp.Tool {
	return mcp.NewTool("end_turn",
		mcp.WithDescription("Finish the turn. Units with destinations move first; idle units may prompt a confirm dialog."),
	)
}

func chatTool() mcp.Tool {
	return mcp.NewTool("chat",
		mcp.WithDescription("Send a chat line to all players, or privately to one."),
		mcp.WithString("text", mcp.Required(), mcp.Description("Message text")),
		mcp.WithString("to", mcp.Description("Player id for a private message")),
	)
}

func foreignAffairsTool() mcp.Tool {
	return mcp.NewTool("foreign_affairs",
		mcp.WithDescription("Report stance, score and gold of the other players."),
	)
}

func disconnectTool() mcp.Tool {
	return mcp.NewTool("disconnect",
		mcp.WithDescription("Log out and close the connection."),
	)
}

// --- Tool handlers ---

func noSession() *mcp.CallToolResult {
	return mcp.NewToolResultError("Not connected. Use connect first.")
}

func handleConnect(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if activeSession != nil {
		return mcp.NewToolResultError("Already connected. Only one session at a time is supported."), nil
	}
	cfg := baseConfig
	if name := strings.TrimSpace(request.GetString("name", "")); name != "" {
		cfg.Name = name
	}
	if srv := strings.TrimSpace(request.GetString("server", "")); srv != "" {
		cfg.Server = srv
	}
	if err := cfg.Validate(); err != nil {
		return mcp.NewToolResultErrorf("Bad configuration: %v", err), nil
	}

	sess, err := NewGameSession(ctx, cfg, logger)
	if err != nil {
		return mcp.NewToolResultErrorf("Failed to connect: %v", err), nil
	}
	activeSession = sess

	resp := sess.await(sess.settle)
	if resp.Closed {
		_ = sess.Close()
		activeSession = nil
	}
	return mcp.NewToolResultText(respondJSON(resp)), nil
}

func handleGetState(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if activeSession == nil {
		return noSession(), nil
	}
	return mcp.NewToolResultText(respondJSON(activeSession.await(0))), nil
}

func handleAnswerConfirm(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return answerDialog(DecisionConfirm, Answer{Yes: request.GetBool("answer", false)})
}

func handleAnswerChoice(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return answerDialog(DecisionChoice, Answer{Key: strings.TrimSpace(request.GetString("key", ""))})
}

func answerDialog(want DecisionType, a Answer) (*mcp.CallToolResult, error) {
	sess := activeSession
	if sess == nil {
		return noSession(), nil
	}
	sess.mu.Lock()
	pending, running := sess.current, sess.running != nil
	sess.mu.Unlock()
	if pending == nil {
		return mcp.NewToolResultError("No dialog is open."), nil
	}
	if pending.Type != want {
		return mcp.NewToolResultErrorf("Wrong tool: the open dialog is '%s', not '%s'. Use the correct tool.", pending.Type, want), nil
	}
	if err := sess.answer(a); err != nil {
		return mcp.NewToolResultErrorf("Answer refused: %v", err), nil
	}

	// A dialog raised by a server message has no action to wait for; give
	// its handler a moment to finish or ask again.
	settle := sess.settle
	if !running {
		settle = time.Second
	}
	return mcp.NewToolResultText(respondJSON(sess.await(settle))), nil
}

// runAction starts fn and waits for it to finish or raise a dialog.
func runAction(name string, fn func(ctx context.Context, cs *client.Session) (string, error)) (*mcp.CallToolResult, error) {
	sess := activeSession
	if sess == nil {
		return noSession(), nil
	}
	cs := sess.app.Session
	if err := sess.start(name, func(ctx context.Context) (string, error) { return fn(ctx, cs) }); err != nil {
		return mcp.NewToolResultErrorf("Cannot %s: %v. Check get_state.", name, err), nil
	}
	return mcp.NewToolResultText(respondJSON(sess.await(sess.settle))), nil
}

func plain(fn func(ctx context.Context, cs *client.Session) error) func(context.Context, *client.Session) (string, error) {
	return func(ctx context.Context, cs *client.Session) (string, error) { return "", fn(ctx, cs) }
}

func handleSetReady(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ready := request.GetBool("ready", true)
	return runAction("set_ready", plain(func(ctx context.Context, cs *client.Session) error {
		return cs.SetReady(ctx, ready)
	}))
}

func handleSetNation(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	nation := strings.TrimSpace(request.GetString("nation", ""))
	if nation == "" {
		return mcp.NewToolResultError("nation is required"), nil
	}
	return runAction("set_nation", plain(func(ctx context.Context, cs *client.Session) error {
		return cs.SetNation(ctx, nation)
	}))
}

func handleStartGame(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return runAction("start_game", plain(func(ctx context.Context, cs *client.Session) error {
		return cs.RequestStartGame(ctx)
	}))
}

var directionAliases = map[string]string{
	"N": "NORTH", "NE": "NORTHEAST", "E": "EAST", "SE": "SOUTHEAST",
	"S": "SOUTH", "SW": "SOUTHWEST", "W": "WEST", "NW": "NORTHWEST",
}

func parseDirection(s string) (game.Direction, bool) {
	s = strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "_", ""))
	if full, ok := directionAliases[s]; ok {
		s = full
	}
	return game.ParseDirection(s)
}

func unitArg(request mcp.CallToolRequest) string {
	if id := strings.TrimSpace(request.GetString("unit", "")); id != "" {
		return id
	}
	if activeSession == nil {
		return ""
	}
	return activeSession.presenter.ActiveUnit()
}

func handleMoveUnit(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if activeSession == nil {
		return noSession(), nil
	}
	dir, ok := parseDirection(request.GetString("direction", ""))
	if !ok {
		return mcp.NewToolResultErrorf("Unknown direction %q.", request.GetString("direction", "")), nil
	}
	unit := unitArg(request)
	if unit == "" {
		return mcp.NewToolResultError("No unit given and no unit is active."), nil
	}
	return runAction("move_unit", plain(func(ctx context.Context, cs *client.Session) error {
		return cs.Move(ctx, unit, dir)
	}))
}

func handleGotoUnit(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if activeSession == nil {
		return noSession(), nil
	}
	unit := unitArg(request)
	if unit == "" {
		return mcp.NewToolResultError("No unit given and no unit is active."), nil
	}
	dest := strings.TrimSpace(request.GetString("destination", ""))
	return runAction("goto_unit", plain(func(ctx context.Context, cs *client.Session) error {
		if err := cs.SetDestination(ctx, unit, dest); err != nil {
			return err
		}
		return cs.ExecuteGotoOrders(ctx)
	}))
}

func handleEndTurn(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return runAction("end_turn", plain(func(ctx context.Context, cs *client.Session) error {
		return cs.EndTurn(ctx)
	}))
}

func handleChat(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text := request.GetString("text", "")
	to := strings.TrimSpace(request.GetString("to", ""))
	return runAction("chat", plain(func(ctx context.Context, cs *client.Session) error {
		return cs.Chat(ctx, text, to)
	}))
}

func handleForeignAffairs(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return runAction("foreign_affairs", func(ctx context.Context, cs *client.Session) (string, error) {
		return cs.GetForeignAffairs(ctx)
	})
}

func handleDisconnect(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess := activeSession
	if sess == nil {
		return noSession(), nil
	}
	activeSession = nil
	resp := sess.await(0)

	// Logout needs the client session lock, which a running action or an
	// open dialog holds; in that case just drop the connection.
	sess.mu.Lock()
	idle := sess.running == nil && sess.current == nil
	sess.mu.Unlock()
	if idle {
		lctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := sess.app.Session.Logout(lctx, "quit"); err != nil {
			resp.Error = "logout: " + err.Error()
		}
		cancel()
	}
	if err := sess.Close(); err != nil && resp.Error == "" {
		resp.Error = "close: " + err.Error()
	}
	resp.Closed = true
	return mcp.NewToolResultText(respondJSON(resp)), nil
}
