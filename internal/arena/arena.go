// Package arena implements the real-time room-server pattern: a fixed-rate
// tick loop stepping an authoritative world and broadcasting snapshots.
package arena

import (
	"fmt"
	"math"
	"sync"

	"gamehub/pkg/protocol"
)

// World tuning constants.
const (
	TickRate     = 30
	ArenaWidth   = 800.0
	ArenaHeight  = 600.0
	TankSpeed    = 180.0 // pixels per second
	TurretSpeed  = 180.0 // degrees per second
	BulletSpeed  = 420.0
	TankRadius   = 18.0
	BulletRadius = 6.0
	RespawnDelay = 3.0 // seconds
)

// Player is one tank in the arena.
type Player struct {
	Username        string
	X, Y            float64
	AngleTurret     float64
	Alive           bool
	CurrentBulletID string
	RespawnTimer    float64 // seconds left, only meaningful while dead
}

// Bullet is one live projectile. Each player owns at most one at a time.
type Bullet struct {
	BulletID string
	Owner    string
	X, Y     float64
	VX, VY   float64
}

// World is the authoritative arena state. Inputs land in a per-user
// latest-input slot; Step consumes them at the tick rate.
type World struct {
	mu            sync.Mutex
	players       map[string]*Player
	order         []string
	inputs        map[string]protocol.ArenaInput
	bullets       map[string]*Bullet
	bulletCounter int
}

// NewWorld creates an empty arena.
func NewWorld() *World {
	return &World{
		players: make(map[string]*Player),
		inputs:  make(map[string]protocol.ArenaInput),
		bullets: make(map[string]*Bullet),
	}
}

// spawnPoint cycles the four corner spawns.
func spawnPoint(idx int) (float64, float64) {
	points := [4][2]float64{
		{100, 100},
		{ArenaWidth - 100, ArenaHeight - 100},
		{ArenaWidth - 100, 100},
		{100, ArenaHeight - 100},
	}
	p := points[idx%len(points)]
	return p[0], p[1]
}

// AddPlayer seats a player at the next spawn point.
func (w *World) AddPlayer(username string) *Player {
	w.mu.Lock()
	defer w.mu.Unlock()

	if p, ok := w.players[username]; ok {
		return p
	}
	x, y := spawnPoint(len(w.players))
	p := &Player{Username: username, X: x, Y: y, Alive: true}
	w.players[username] = p
	w.order = append(w.order, username)
	return p
}

// RemovePlayer drops a player and their pending input.
func (w *World) RemovePlayer(username string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	delete(w.players, username)
	delete(w.inputs, username)
	for i, u := range w.order {
		if u == username {
			w.order = append(w.order[:i], w.order[i+1:]...)
			break
		}
	}
}

// SetInput overwrites a player's latest-input slot.
func (w *World) SetInput(username string, input protocol.ArenaInput) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.inputs[username] = input
}

// PlayerCount returns the number of seated players.
func (w *World) PlayerCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.players)
}

// Step advances the world by dt seconds: respawns, movement, turret
// rotation, firing and bullet flight/collision.
func (w *World) Step(dt float64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	// Respawn timers
	for idx, username := range w.order {
		p := w.players[username]
		if !p.Alive && p.RespawnTimer > 0 {
			p.RespawnTimer -= dt
			if p.RespawnTimer <= 0 {
				p.X, p.Y = spawnPoint(idx)
				p.Alive = true
				p.RespawnTimer = 0
				p.CurrentBulletID = ""
			}
		}
	}

	// Apply latest inputs
	for username, p := range w.players {
		if !p.Alive {
			continue
		}
		inp := w.inputs[username]

		dx, dy := inp.Move[0], inp.Move[1]
		if mag := math.Hypot(dx, dy); mag > 0 {
			dx /= mag
			dy /= mag
		}
		p.X = clamp(p.X+dx*TankSpeed*dt, TankRadius, ArenaWidth-TankRadius)
		p.Y = clamp(p.Y+dy*TankSpeed*dt, TankRadius, ArenaHeight-TankRadius)
		p.AngleTurret = math.Mod(p.AngleTurret+inp.TurretDelta*TurretSpeed*dt+360, 360)

		// One live projectile per owner
		if inp.Fire && p.CurrentBulletID == "" {
			w.spawnBulletLocked(p)
			inp.Fire = false
			w.inputs[username] = inp
		}
	}

	// Fly bullets and resolve hits
	for id, b := range w.bullets {
		b.X += b.VX * dt
		b.Y += b.VY * dt
		if b.X < 0 || b.X > ArenaWidth || b.Y < 0 || b.Y > ArenaHeight {
			w.despawnBulletLocked(id)
			continue
		}
		for _, p := range w.players {
			if p.Username == b.Owner || !p.Alive {
				continue
			}
			if math.Hypot(p.X-b.X, p.Y-b.Y) < TankRadius+BulletRadius {
				p.Alive = false
				p.RespawnTimer = RespawnDelay
				w.despawnBulletLocked(id)
				break
			}
		}
	}
}

// spawnBulletLocked fires from the muzzle along the turret angle.
func (w *World) spawnBulletLocked(p *Player) {
	rad := p.AngleTurret * math.Pi / 180
	id := fmt.Sprintf("B%d", w.bulletCounter)
	w.bulletCounter++

	w.bullets[id] = &Bullet{
		BulletID: id,
		Owner:    p.Username,
		X:        p.X + math.Cos(rad)*(TankRadius+5),
		Y:        p.Y + math.Sin(rad)*(TankRadius+5),
		VX:       math.Cos(rad) * BulletSpeed,
		VY:       math.Sin(rad) * BulletSpeed,
	}
	p.CurrentBulletID = id
}

// despawnBulletLocked removes a bullet and frees its owner's slot.
func (w *World) despawnBulletLocked(id string) {
	b, ok := w.bullets[id]
	if !ok {
		return
	}
	delete(w.bullets, id)
	if owner, ok := w.players[b.Owner]; ok && owner.CurrentBulletID == id {
		owner.CurrentBulletID = ""
	}
}

// Snapshot serializes the world for broadcast, players in join order.
func (w *World) Snapshot() protocol.ArenaState {
	w.mu.Lock()
	defer w.mu.Unlock()

	state := protocol.ArenaState{
		Players: make([]protocol.ArenaPlayerState, 0, len(w.players)),
		Bullets: make([]protocol.ArenaBulletState, 0, len(w.bullets)),
	}
	for _, username := range w.order {
		p := w.players[username]
		state.Players = append(state.Players, protocol.ArenaPlayerState{
			Username:        p.Username,
			X:               p.X,
			Y:               p.Y,
			AngleTurret:     p.AngleTurret,
			Alive:           p.Alive,
			CurrentBulletID: p.CurrentBulletID,
		})
	}
	for _, b := range w.bullets {
		state.Bullets = append(state.Bullets, protocol.ArenaBulletState{
			BulletID: b.BulletID,
			Owner:    b.Owner,
			X:        b.X,
			Y:        b.Y,
		})
	}
	return state
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
