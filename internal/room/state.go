// Package room implements the built-in reference room server: an
// authoritative 3×3 grid game broadcast to its seated players.
package room

import (
	"sync"

	"gamehub/pkg/protocol"
)

// winningLines are the eight straight lines of the grid.
var winningLines = [8][3]int{
	{0, 1, 2},
	{3, 4, 5},
	{6, 7, 8},
	{0, 3, 6},
	{1, 4, 7},
	{2, 5, 8},
	{0, 4, 8},
	{2, 4, 6},
}

// GameState is the authoritative per-match state. All mutation happens
// under its lock; the server broadcasts a snapshot after every change.
type GameState struct {
	mu      sync.Mutex
	board   []string
	players map[string]string // username -> symbol
	order   []string          // usernames in join order
	turn    string            // username whose turn, "" when idle
	winner  *string           // nil while running, username on win, "" on draw
	votes   map[string]bool   // play-again votes
}

// NewGameState creates an empty match.
func NewGameState() *GameState {
	return &GameState{
		board:   make([]string, 9),
		players: make(map[string]string),
		votes:   make(map[string]bool),
	}
}

// AddPlayer seats a player and returns their symbol. The first player gets
// "X", the second "O"; the match only starts (turn set to the first player)
// once the second player is seated. Returns "" when two are already seated.
func (g *GameState) AddPlayer(username string) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if symbol, ok := g.players[username]; ok {
		return symbol
	}
	if len(g.players) >= 2 {
		return ""
	}

	symbol := "X"
	for _, s := range g.players {
		if s == "X" {
			symbol = "O"
			break
		}
	}
	g.players[username] = symbol
	g.order = append(g.order, username)

	if len(g.players) == 2 && g.turn == "" {
		g.turn = g.order[0]
	}
	return symbol
}

// RemovePlayer unseats a player and drops their vote. When fewer than two
// players remain the board, winner and votes are cleared so the remaining
// client observes the partial-party state.
func (g *GameState) RemovePlayer(username string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.removeLocked(username)
}

func (g *GameState) removeLocked(username string) {
	if _, ok := g.players[username]; !ok {
		return
	}
	delete(g.players, username)
	delete(g.votes, username)
	for i, u := range g.order {
		if u == username {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}
	if g.turn == username {
		g.turn = ""
	}
	if len(g.players) < 2 {
		g.board = make([]string, 9)
		g.winner = nil
		g.votes = make(map[string]bool)
		g.turn = ""
	}
}

// ApplyMove plays a cell for username. Illegal moves are silently ignored:
// the move only applies when two players are seated, the game is not over,
// the cell is empty and it is the sender's turn. Reports whether state
// changed.
func (g *GameState) ApplyMove(username string, cell int) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.players) < 2 {
		return false
	}
	if g.winner != nil || g.boardFullLocked() {
		return false
	}
	if cell < 0 || cell >= len(g.board) {
		return false
	}
	if g.turn != username || g.board[cell] != "" {
		return false
	}

	g.board[cell] = g.players[username]

	// Swap turn to the other player, or idle if they left.
	g.turn = ""
	for _, u := range g.order {
		if u != username {
			g.turn = u
			break
		}
	}

	if symbol := g.lineWinnerLocked(); symbol != "" {
		for u, s := range g.players {
			if s == symbol {
				winner := u
				g.winner = &winner
				break
			}
		}
	} else if g.boardFullLocked() {
		draw := ""
		g.winner = &draw
	}
	return true
}

// VoteResult is the outcome of a play-again vote round.
type VoteResult int

const (
	// VotePending means not every seated player has voted yet.
	VotePending VoteResult = iota
	// VoteRestart means all voted yes and the board was reset.
	VoteRestart
	// VoteEnd means someone voted no; the room shuts down.
	VoteEnd
)

// VotePlayAgain records one player's vote. Votes are only evaluated once
// every seated player has cast one; a unanimous yes resets the match, any
// no ends the room.
func (g *GameState) VotePlayAgain(username string, again bool) VoteResult {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.players[username]; !ok {
		return VotePending
	}
	g.votes[username] = again

	if len(g.votes) < len(g.players) {
		return VotePending
	}
	for _, v := range g.votes {
		if !v {
			return VoteEnd
		}
	}
	g.resetLocked()
	return VoteRestart
}

// resetLocked clears the board for a rematch. The player holding "X"
// starts; if no one holds it, the first seated player does.
func (g *GameState) resetLocked() {
	g.board = make([]string, 9)
	g.winner = nil
	g.votes = make(map[string]bool)

	g.turn = ""
	for _, u := range g.order {
		if g.players[u] == "X" {
			g.turn = u
			return
		}
	}
	if len(g.order) > 0 {
		g.turn = g.order[0]
	}
}

// Snapshot serializes the current state for broadcast.
func (g *GameState) Snapshot() protocol.GridState {
	g.mu.Lock()
	defer g.mu.Unlock()

	board := make([]string, len(g.board))
	copy(board, g.board)
	players := make(map[string]string, len(g.players))
	for u, s := range g.players {
		players[u] = s
	}

	var turn *string
	if g.turn != "" {
		t := g.turn
		turn = &t
	}
	var winner *string
	if g.winner != nil {
		w := *g.winner
		winner = &w
	}

	needed := 2 - len(players)
	if needed < 0 {
		needed = 0
	}

	return protocol.GridState{
		Board:            board,
		Turn:             turn,
		Winner:           winner,
		Players:          players,
		PlayersNeeded:    needed,
		PlayAgainWaiting: g.winner != nil || g.boardFullLocked(),
	}
}

// PlayerCount returns the number of seated players.
func (g *GameState) PlayerCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.players)
}

// boardFullLocked reports whether every cell is marked.
func (g *GameState) boardFullLocked() bool {
	for _, cell := range g.board {
		if cell == "" {
			return false
		}
	}
	return true
}

// lineWinnerLocked returns the winning symbol, or "" when no line is made.
func (g *GameState) lineWinnerLocked() string {
	for _, line := range winningLines {
		a, b, c := g.board[line[0]], g.board[line[1]], g.board[line[2]]
		if a != "" && a == b && b == c {
			return a
		}
	}
	return ""
}
