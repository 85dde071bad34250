package eventlog

import (
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"github.com/talgya/mini-market/internal/engine"
)

// Entry kinds.
const (
	KindTick        = "tick"
	KindPurchase    = "purchase"
	KindRestock     = "restock"
	KindClientJoin  = "client_join"
	KindClientLeave = "client_leave"
)

// Entry is one line of the event log. Exactly one payload field is set.
type Entry struct {
	Kind     string                `json:"kind"`
	Tick     uint64                `json:"tick,omitempty"`
	Summary  *engine.TickSummary   `json:"summary,omitempty"`
	Purchase *engine.PurchaseEvent `json:"purchase,omitempty"`
	Restock  *engine.RestockEvent  `json:"restock,omitempty"`
	Clients  *int                  `json:"clients,omitempty"`
}

// Recorder is an engine.Observer that writes every event to a Writer.
type Recorder struct {
	w        *Writer
	failures atomic.Uint64
}

var _ engine.Observer = (*Recorder)(nil)

// NewRecorder logs events under dir/events.
func NewRecorder(dir string) *Recorder {
	return &Recorder{w: NewWriter(filepath.Join(dir, "events"), "events")}
}

// Close flushes and closes the log.
func (r *Recorder) Close() error {
	return r.w.Close()
}

// Failures returns how many entries could not be written.
func (r *Recorder) Failures() uint64 {
	return r.failures.Load()
}

func (r *Recorder) write(e Entry) {
	if err := r.w.Write(e); err != nil {
		// Only the first failure is logged to keep a broken disk from
		// flooding the log every tick.
		if r.failures.Add(1) == 1 {
			slog.Warn("event log write failed", "kind", e.Kind, "error", err)
		}
	}
}

func (r *Recorder) TickCompleted(s engine.TickSummary) {
	r.write(Entry{Kind: KindTick, Tick: s.Tick, Summary: &s})
}

func (r *Recorder) Purchase(p engine.PurchaseEvent) {
	r.write(Entry{Kind: KindPurchase, Tick: p.Tick, Purchase: &p})
}

func (r *Recorder) Restock(e engine.RestockEvent) {
	r.write(Entry{Kind: KindRestock, Tick: e.Tick, Restock: &e})
}

func (r *Recorder) ClientRegistered(n int) {
	r.write(Entry{Kind: KindClientJoin, Clients: &n})
}

func (r *Recorder) ClientUnregistered(n int) {
	r.write(Entry{Kind: KindClientLeave, Clients: &n})
}
