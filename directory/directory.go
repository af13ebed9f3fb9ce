// Package directory tracks known peer agents: registration, heartbeats, a
// periodic liveness sweep and score-based candidate selection. The default
// store is in-memory; a sqlite-backed store (directory/sqlite) can be plugged
// in for cross-process peer visibility.
package directory

import (
	"sort"
	"sync"
	"time"

	"github.com/lamwimham/neuroflow/core"
	"github.com/lamwimham/neuroflow/logging"
)

// Store persists peer records. Implementations must preserve registration
// order in List and be safe for concurrent use.
type Store interface {
	Put(rec core.PeerRecord) error
	Get(id string) (core.PeerRecord, bool, error)
	Delete(id string) (bool, error)
	List() ([]core.PeerRecord, error)
}

// Options configure a Directory.
type Options struct {
	// SweepInterval is how often the background sweep runs.
	SweepInterval time.Duration
	// SilenceTimeout marks a peer unhealthy after this much heartbeat silence.
	SilenceTimeout time.Duration
	// Store overrides the default in-memory store.
	Store Store
	// Logger receives structured registry events. Defaults to NoOpLogger.
	Logger logging.Logger
}

// Directory is the peer registry. All methods are safe for concurrent use;
// boolean returns follow the wire surface (false = unknown id or store
// failure, logged but not surfaced).
type Directory struct {
	opts  Options
	store Store

	// smoothing factor for rolling latency / success-rate updates
	alpha float64

	nowFunc func() time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
}

// New constructs a Directory with defaults: 30s sweep, 120s silence timeout,
// in-memory store.
func New(optFns ...func(o *Options)) *Directory {
	opts := Options{
		SweepInterval:  30 * time.Second,
		SilenceTimeout: 120 * time.Second,
		Logger:         logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Store == nil {
		opts.Store = NewMemoryStore()
	}
	return &Directory{
		opts:    opts,
		store:   opts.Store,
		alpha:   0.2,
		nowFunc: time.Now,
		stopCh:  make(chan struct{}),
	}
}

// SetNowFunc overrides the time source (for testing).
func (d *Directory) SetNowFunc(fn func() time.Time) { d.nowFunc = fn }

// Register adds or refreshes a peer record, stamping registration and
// heartbeat times and defaulting status / success rate.
func (d *Directory) Register(rec core.PeerRecord) bool {
	if rec.ID == "" {
		return false
	}
	now := d.nowFunc()
	if prior, ok, _ := d.store.Get(rec.ID); ok {
		rec.RegisteredAt = prior.RegisteredAt // re-registration keeps its place in tie breaks
	} else {
		rec.RegisteredAt = now
	}
	rec.LastHeartbeat = now
	if rec.Status == "" {
		rec.Status = core.PeerStatusActive
	}
	if rec.SuccessRate == 0 {
		rec.SuccessRate = 1.0
	}
	if err := d.store.Put(rec); err != nil {
		d.opts.Logger.Error("directory.register.failed", "peer_id", rec.ID, "error", err.Error())
		return false
	}
	d.opts.Logger.Info("directory.register", "peer_id", rec.ID, "capabilities", rec.Capabilities)
	return true
}

// Deregister removes a peer record.
func (d *Directory) Deregister(id string) bool {
	ok, err := d.store.Delete(id)
	if err != nil {
		d.opts.Logger.Error("directory.deregister.failed", "peer_id", id, "error", err.Error())
		return false
	}
	if ok {
		d.opts.Logger.Info("directory.deregister", "peer_id", id)
	}
	return ok
}

// Get returns the record for id.
func (d *Directory) Get(id string) (core.PeerRecord, bool) {
	rec, ok, err := d.store.Get(id)
	if err != nil {
		d.opts.Logger.Error("directory.get.failed", "peer_id", id, "error", err.Error())
		return core.PeerRecord{}, false
	}
	return rec, ok
}

// List returns records in registration order, optionally filtered by status
// and/or capability tag (empty values disable a filter).
func (d *Directory) List(status core.PeerStatus, capability string) []core.PeerRecord {
	recs, err := d.store.List()
	if err != nil {
		d.opts.Logger.Error("directory.list.failed", "error", err.Error())
		return nil
	}
	out := make([]core.PeerRecord, 0, len(recs))
	for _, rec := range recs {
		if status != "" && rec.Status != status {
			continue
		}
		if capability != "" && !rec.HasCapability(capability) {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// UpdateHeartbeat refreshes the peer's heartbeat time; an unhealthy peer
// reverts to active.
func (d *Directory) UpdateHeartbeat(id string) bool {
	return d.update(id, func(rec *core.PeerRecord) {
		rec.LastHeartbeat = d.nowFunc()
		if rec.Status == core.PeerStatusUnhealthy {
			rec.Status = core.PeerStatusActive
			d.opts.Logger.Info("directory.peer.recovered", "peer_id", id)
		}
	})
}

// UpdateStatus sets the peer's reported status and refreshes its heartbeat.
func (d *Directory) UpdateStatus(id string, status core.PeerStatus) bool {
	return d.update(id, func(rec *core.PeerRecord) {
		rec.Status = status
		rec.LastHeartbeat = d.nowFunc()
	})
}

// ApplyHeartbeat folds one heartbeat into the record: liveness always, the
// sender-reported status and self-measured metrics when present. Zero metric
// values keep the stored ones; an empty status keeps UpdateHeartbeat's
// unhealthy-to-active recovery.
func (d *Directory) ApplyHeartbeat(id string, status core.PeerStatus, latencyMs, successRate float64) bool {
	return d.update(id, func(rec *core.PeerRecord) {
		rec.LastHeartbeat = d.nowFunc()
		if status != "" {
			rec.Status = status
		} else if rec.Status == core.PeerStatusUnhealthy {
			rec.Status = core.PeerStatusActive
			d.opts.Logger.Info("directory.peer.recovered", "peer_id", id)
		}
		if latencyMs > 0 {
			rec.LatencyMs = latencyMs
		}
		if successRate > 0 {
			rec.SuccessRate = successRate
		}
	})
}

// RecordObservation folds one delegation round-trip into the peer's rolling
// latency and success rate using exponential smoothing.
func (d *Directory) RecordObservation(id string, latency time.Duration, success bool) bool {
	return d.update(id, func(rec *core.PeerRecord) {
		ms := float64(latency.Milliseconds())
		if rec.LatencyMs == 0 {
			rec.LatencyMs = ms
		} else {
			rec.LatencyMs = (1-d.alpha)*rec.LatencyMs + d.alpha*ms
		}
		observed := 0.0
		if success {
			observed = 1.0
		}
		rec.SuccessRate = (1-d.alpha)*rec.SuccessRate + d.alpha*observed
	})
}

func (d *Directory) update(id string, mutate func(rec *core.PeerRecord)) bool {
	rec, ok, err := d.store.Get(id)
	if err != nil {
		d.opts.Logger.Error("directory.update.failed", "peer_id", id, "error", err.Error())
		return false
	}
	if !ok {
		return false
	}
	mutate(&rec)
	if err := d.store.Put(rec); err != nil {
		d.opts.Logger.Error("directory.update.failed", "peer_id", id, "error", err.Error())
		return false
	}
	return true
}

// Score rates a candidate by weighted liveness, recent latency and recent
// success rate. Higher is better.
func Score(rec core.PeerRecord) float64 {
	score := 0.0
	switch rec.Status {
	case core.PeerStatusActive:
		score += 0.3
	case core.PeerStatusBusy:
		score += 0.1
	}
	switch {
	case rec.LatencyMs > 0 && rec.LatencyMs < 100:
		score += 0.3
	case rec.LatencyMs < 500:
		score += 0.2
	case rec.LatencyMs < 1000:
		score += 0.1
	}
	score += rec.SuccessRate * 0.4
	return score
}

// DiscoverByCapability returns up to limit peers advertising the tag, best
// score first, ties broken by registration order. limit <= 0 returns all.
func (d *Directory) DiscoverByCapability(tag string, limit int) []core.PeerRecord {
	candidates := d.List("", tag)
	sort.SliceStable(candidates, func(i, j int) bool {
		si, sj := Score(candidates[i]), Score(candidates[j])
		if si != sj {
			return si > sj
		}
		return candidates[i].RegisteredAt.Before(candidates[j].RegisteredAt)
	})
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates
}

// Sweep marks peers unhealthy after heartbeat silence. Called periodically by
// the background loop; exported so tests and embedders can trigger it directly.
func (d *Directory) Sweep() {
	cutoff := d.nowFunc().Add(-d.opts.SilenceTimeout)
	for _, rec := range d.List("", "") {
		if rec.Status == core.PeerStatusUnhealthy || rec.Status == core.PeerStatusOffline {
			continue
		}
		if rec.LastHeartbeat.Before(cutoff) {
			id := rec.ID
			d.update(id, func(r *core.PeerRecord) { r.Status = core.PeerStatusUnhealthy })
			d.opts.Logger.Warn("directory.peer.unhealthy", "peer_id", id, "last_heartbeat", rec.LastHeartbeat)
		}
	}
}

// Start launches the background sweep loop. Call Stop to terminate it.
func (d *Directory) Start() {
	go func() {
		ticker := time.NewTicker(d.opts.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-d.stopCh:
				return
			case <-ticker.C:
				d.Sweep()
			}
		}
	}()
}

// Stop terminates the background sweep loop. Safe to call more than once.
func (d *Directory) Stop() {
	d.stopOnce.Do(func() { close(d.stopCh) })
}
