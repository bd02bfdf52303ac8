package room

import "testing"

func seatTwo(t *testing.T) *GameState {
	t.Helper()
	g := NewGameState()
	if s := g.AddPlayer("alice"); s != "X" {
		t.Fatalf("first player got %q", s)
	}
	if s := g.AddPlayer("bob"); s != "O" {
		t.Fatalf("second player got %q", s)
	}
	return g
}

func TestAddPlayerSeating(t *testing.T) {
	g := seatTwo(t)

	t.Run("rejoin keeps symbol", func(t *testing.T) {
		if s := g.AddPlayer("alice"); s != "X" {
			t.Errorf("rejoin got %q", s)
		}
	})

	t.Run("third player rejected", func(t *testing.T) {
		if s := g.AddPlayer("carol"); s != "" {
			t.Errorf("third player got %q", s)
		}
	})

	t.Run("first player starts", func(t *testing.T) {
		snap := g.Snapshot()
		if snap.Turn == nil || *snap.Turn != "alice" {
			t.Errorf("turn = %v", snap.Turn)
		}
	})
}

func TestNoTurnUntilSecondPlayer(t *testing.T) {
	g := NewGameState()
	g.AddPlayer("alice")

	snap := g.Snapshot()
	if snap.Turn != nil {
		t.Errorf("turn set with one player: %v", *snap.Turn)
	}
	if snap.PlayersNeeded != 1 {
		t.Errorf("players_needed = %d", snap.PlayersNeeded)
	}
}

func TestApplyMoveGuards(t *testing.T) {
	g := seatTwo(t)

	if g.ApplyMove("bob", 0) {
		t.Error("out-of-turn move applied")
	}
	if g.ApplyMove("alice", 9) {
		t.Error("out-of-range cell applied")
	}
	if !g.ApplyMove("alice", 4) {
		t.Fatal("legal move rejected")
	}
	if g.ApplyMove("bob", 4) {
		t.Error("occupied cell applied")
	}
}

func TestWinByLine(t *testing.T) {
	g := seatTwo(t)

	// alice: 0 1 2 across the top, bob: 4 5
	moves := []struct {
		user string
		cell int
	}{
		{"alice", 0}, {"bob", 4}, {"alice", 1}, {"bob", 5}, {"alice", 2},
	}
	for _, m := range moves {
		if !g.ApplyMove(m.user, m.cell) {
			t.Fatalf("move %s->%d rejected", m.user, m.cell)
		}
	}

	snap := g.Snapshot()
	if snap.Winner == nil || *snap.Winner != "alice" {
		t.Fatalf("winner = %v", snap.Winner)
	}
	if !snap.PlayAgainWaiting {
		t.Error("play_again_waiting not set after win")
	}
	if g.ApplyMove("bob", 6) {
		t.Error("move applied after game over")
	}
}

func TestDraw(t *testing.T) {
	g := seatTwo(t)

	// Full board, no line: X on 0 1 5 6 8, O on 2 3 4 7.
	moves := []struct {
		user string
		cell int
	}{
		{"alice", 0}, {"bob", 2}, {"alice", 1}, {"bob", 3},
		{"alice", 5}, {"bob", 4}, {"alice", 6}, {"bob", 7}, {"alice", 8},
	}
	for _, m := range moves {
		if !g.ApplyMove(m.user, m.cell) {
			t.Fatalf("move %s->%d rejected", m.user, m.cell)
		}
	}

	snap := g.Snapshot()
	if snap.Winner == nil || *snap.Winner != "" {
		t.Fatalf("expected draw marker, got %v", snap.Winner)
	}
}

func TestPlayAgainVotes(t *testing.T) {
	t.Run("unanimous yes resets", func(t *testing.T) {
		g := seatTwo(t)
		g.ApplyMove("alice", 0)

		if r := g.VotePlayAgain("alice", true); r != VotePending {
			t.Fatalf("first vote = %v", r)
		}
		if r := g.VotePlayAgain("bob", true); r != VoteRestart {
			t.Fatalf("second vote = %v", r)
		}

		snap := g.Snapshot()
		for i, cell := range snap.Board {
			if cell != "" {
				t.Errorf("cell %d not cleared: %q", i, cell)
			}
		}
		if snap.Turn == nil || *snap.Turn != "alice" {
			t.Errorf("X holder should start the rematch, turn = %v", snap.Turn)
		}
	})

	t.Run("any no ends", func(t *testing.T) {
		g := seatTwo(t)
		g.VotePlayAgain("alice", true)
		if r := g.VotePlayAgain("bob", false); r != VoteEnd {
			t.Fatalf("got %v", r)
		}
	})

	t.Run("non-player vote ignored", func(t *testing.T) {
		g := seatTwo(t)
		if r := g.VotePlayAgain("carol", true); r != VotePending {
			t.Fatalf("got %v", r)
		}
	})
}

func TestRemovePlayerResetsPartialParty(t *testing.T) {
	g := seatTwo(t)
	g.ApplyMove("alice", 0)

	g.RemovePlayer("bob")

	snap := g.Snapshot()
	if snap.PlayersNeeded != 1 {
		t.Errorf("players_needed = %d", snap.PlayersNeeded)
	}
	if snap.Board[0] != "" {
		t.Error("board not cleared after party broke up")
	}
	if snap.Turn != nil {
		t.Errorf("turn = %v", *snap.Turn)
	}
}
