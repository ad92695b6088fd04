package behaviors

import (
	"github.com/callstorm/callstorm/pkg/pool"
)

// Park holds sessions without interacting with them; the engine's
// configured duration decides when they hang up. Useful as the baseline
// load behavior.
type Park struct{}

func NewPark() *Park { return &Park{} }

func (p *Park) Name() string { return "park" }

// Register is a no-op: parked sessions need no event handling.
func (p *Park) Register(pl *pool.Pool) {}
