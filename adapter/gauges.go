package adapter

import (
	"sync/atomic"

	"github.com/srediag/plugin-ebr/pkg/ebr"
)

type source struct {
	ebr.Source
}

// gauges holds the level values an observer exports. Once bound to a
// collector they are read from it directly; until then they follow the
// counts carried by events.
type gauges struct {
	src          atomic.Pointer[source]
	pending      atomic.Int64
	participants atomic.Int64
	generation   atomic.Uint64
}

// Bind makes the gauges read the live state of src.
func (g *gauges) Bind(src ebr.Source) {
	g.src.Store(&source{src})
}

func (g *gauges) pendingNow() int64 {
	if s := g.src.Load(); s != nil {
		return int64(s.Pending())
	}
	return g.pending.Load()
}

func (g *gauges) participantsNow() int64 {
	if s := g.src.Load(); s != nil {
		return int64(s.Participants())
	}
	return g.participants.Load()
}

func (g *gauges) generationNow() uint64 {
	if s := g.src.Load(); s != nil {
		return s.Generation()
	}
	return g.generation.Load()
}
