package arena

import (
	"math"
	"testing"

	"gamehub/pkg/protocol"
)

func TestAddPlayerSpawnsAtCorners(t *testing.T) {
	w := NewWorld()

	p1 := w.AddPlayer("alice")
	p2 := w.AddPlayer("bob")

	if p1.X == p2.X && p1.Y == p2.Y {
		t.Error("two players share a spawn point")
	}
	if !p1.Alive || !p2.Alive {
		t.Error("players spawned dead")
	}

	t.Run("rejoin keeps the tank", func(t *testing.T) {
		again := w.AddPlayer("alice")
		if again != p1 {
			t.Error("rejoin created a second tank")
		}
	})
}

func TestMovementAndClamping(t *testing.T) {
	w := NewWorld()
	p := w.AddPlayer("alice")

	w.SetInput("alice", protocol.ArenaInput{Move: [2]float64{1, 0}})
	w.Step(1.0)
	if p.X <= 100 {
		t.Errorf("tank did not move right: x=%f", p.X)
	}

	// Drive into the wall for a long time; the tank must stay inside.
	for i := 0; i < 100; i++ {
		w.Step(1.0)
	}
	if p.X > ArenaWidth-TankRadius {
		t.Errorf("tank escaped the arena: x=%f", p.X)
	}
}

func TestDiagonalMoveIsNormalized(t *testing.T) {
	w := NewWorld()
	p := w.AddPlayer("alice")
	x0, y0 := p.X, p.Y

	w.SetInput("alice", protocol.ArenaInput{Move: [2]float64{1, 1}})
	w.Step(1.0)

	dist := math.Hypot(p.X-x0, p.Y-y0)
	if dist > TankSpeed+1e-6 {
		t.Errorf("diagonal move covered %f, max %f", dist, float64(TankSpeed))
	}
}

func TestSingleBulletPerOwner(t *testing.T) {
	w := NewWorld()
	w.AddPlayer("alice")

	w.SetInput("alice", protocol.ArenaInput{Fire: true})
	w.Step(1.0 / TickRate)

	state := w.Snapshot()
	if len(state.Bullets) != 1 {
		t.Fatalf("got %d bullets", len(state.Bullets))
	}

	// Keep firing: no second bullet while the first one flies.
	w.SetInput("alice", protocol.ArenaInput{Fire: true})
	w.Step(1.0 / TickRate)
	if got := len(w.Snapshot().Bullets); got != 1 {
		t.Errorf("got %d bullets with one still live", got)
	}

	// Let the bullet leave the arena, then the slot frees up.
	for i := 0; i < 300; i++ {
		w.Step(1.0 / TickRate)
	}
	if got := len(w.Snapshot().Bullets); got != 0 {
		t.Fatalf("bullet never despawned, %d left", got)
	}
	w.SetInput("alice", protocol.ArenaInput{Fire: true})
	w.Step(1.0 / TickRate)
	if got := len(w.Snapshot().Bullets); got != 1 {
		t.Errorf("could not fire after bullet despawned, got %d", got)
	}
}

func TestHitKillsAndRespawns(t *testing.T) {
	w := NewWorld()
	alice := w.AddPlayer("alice")
	bob := w.AddPlayer("bob")

	// Park bob right of alice and shoot straight at him.
	bob.X, bob.Y = alice.X+100, alice.Y
	alice.AngleTurret = 0

	w.SetInput("alice", protocol.ArenaInput{Fire: true})
	for i := 0; i < 30 && bob.Alive; i++ {
		w.Step(1.0 / TickRate)
	}
	if bob.Alive {
		t.Fatal("bullet never connected")
	}
	if len(w.Snapshot().Bullets) != 0 {
		t.Error("bullet survived the hit")
	}

	// Dead tanks ignore input.
	x := bob.X
	w.SetInput("bob", protocol.ArenaInput{Move: [2]float64{1, 0}})
	w.Step(1.0 / TickRate)
	if bob.X != x {
		t.Error("dead tank moved")
	}

	// After the respawn delay the tank comes back alive.
	for i := 0; i < int(RespawnDelay*TickRate)+2; i++ {
		w.Step(1.0 / TickRate)
	}
	if !bob.Alive {
		t.Error("tank never respawned")
	}
}

func TestOwnBulletDoesNotKillOwner(t *testing.T) {
	w := NewWorld()
	alice := w.AddPlayer("alice")

	// Fire and immediately step many times; the bullet starts at the
	// muzzle and passes over nobody else.
	w.SetInput("alice", protocol.ArenaInput{Fire: true})
	for i := 0; i < 60; i++ {
		w.Step(1.0 / TickRate)
	}
	if !alice.Alive {
		t.Error("player killed by their own bullet")
	}
}

func TestSnapshotOrderIsJoinOrder(t *testing.T) {
	w := NewWorld()
	w.AddPlayer("c")
	w.AddPlayer("a")
	w.AddPlayer("b")

	state := w.Snapshot()
	if len(state.Players) != 3 {
		t.Fatalf("got %d players", len(state.Players))
	}
	want := []string{"c", "a", "b"}
	for i, p := range state.Players {
		if p.Username != want[i] {
			t.Errorf("players[%d] = %q, want %q", i, p.Username, want[i])
		}
	}
}

func TestRemovePlayerDropsInput(t *testing.T) {
	w := NewWorld()
	w.AddPlayer("alice")
	w.SetInput("alice", protocol.ArenaInput{Move: [2]float64{1, 0}})

	w.RemovePlayer("alice")
	if w.PlayerCount() != 0 {
		t.Errorf("player count = %d", w.PlayerCount())
	}
	// Stepping an empty world must not panic.
	w.Step(1.0 / TickRate)
}
