// Agent spawning creates the initial population with roles, wallets,
// and needs drawn from a seeded stream.
package agents

import (
	"math"

	"github.com/google/uuid"

	"github.com/talgya/mini-market/internal/world"
)

// Starting conditions for spawned agents.
const (
	StartingWallet  = 100.0
	MaxStartingNeed = 50.0
)

// Spawner creates agents for a fresh world.
type Spawner struct {
	placer *world.Placer
}

// NewSpawner creates an agent spawner drawing from placer. Passing the
// same placer used for shops keeps the whole seed run on one stream.
func NewSpawner(placer *world.Placer) *Spawner {
	return &Spawner{placer: placer}
}

// SpawnPopulation creates count agents.
func (s *Spawner) SpawnPopulation(count int) ([]*Agent, error) {
	out := make([]*Agent, 0, count)
	for i := 0; i < count; i++ {
		a, err := s.spawnOne()
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func (s *Spawner) spawnOne() (*Agent, error) {
	rng := s.placer.Rand()

	// IDs come from the seeded stream so a reseed reproduces them.
	id, err := uuid.NewRandomFromReader(rng)
	if err != nil {
		return nil, err
	}

	role := RoleConsumer
	if rng.Float64() > 0.5 {
		role = RoleWorker
	}

	x, y := s.placer.Point()

	return &Agent{
		ID:     id.String(),
		Role:   role,
		X:      x,
		Y:      y,
		State:  StateIdle,
		Wallet: StartingWallet,
		Needs: Needs{
			Hunger:  math.Floor(rng.Float64() * MaxStartingNeed),
			Fatigue: math.Floor(rng.Float64() * MaxStartingNeed),
		},
	}, nil
}
