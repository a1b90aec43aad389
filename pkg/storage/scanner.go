package storage

import (
	"sync"
	"time"

	"github.com/inbucket/aliasrelay/pkg/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

var (
	backlogEntries = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "aliasrelay",
			Subsystem: "storage",
			Name:      "backlog",
			Help:      "Staged messages awaiting manual recovery, by state",
		},
		[]string{"state"},
	)
	backlogScanSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "aliasrelay",
			Subsystem: "storage",
			Name:      "backlog_scan_completed_seconds",
			Help:      "Unix time the last backlog scan completed",
		},
	)
)

func init() {
	prometheus.MustRegister(backlogEntries)
	prometheus.MustRegister(backlogScanSeconds)
}

// Backlog is the result of a single scan of the staging store.
type Backlog struct {
	Staged      int       `json:"staged"`
	Quarantined int       `json:"quarantined"`
	Orphaned    int       `json:"orphaned"`
	Completed   time.Time `json:"completed"`
}

// BacklogScanner periodically walks the staging store, counting staged and quarantined messages.
// Staged messages older than the orphan age with no marker were abandoned mid-pipeline (process
// exit, or a failed forward) and are reported for manual recovery.  It never deletes anything.
type BacklogScanner struct {
	globalShutdown chan bool // Closes when the relay needs to shut down
	scanShutdown   chan bool // Closed after the scanner has shut down
	store          Store
	scanPeriod     time.Duration
	orphanAge      time.Duration

	mu   sync.RWMutex
	last Backlog
}

// NewBacklogScanner configures a new BacklogScanner.
func NewBacklogScanner(
	cfg config.Staging,
	store Store,
	shutdownChannel chan bool,
) *BacklogScanner {
	return &BacklogScanner{
		globalShutdown: shutdownChannel,
		scanShutdown:   make(chan bool),
		store:          store,
		scanPeriod:     cfg.ScanPeriod,
		orphanAge:      cfg.OrphanAge,
	}
}

// Start up the backlog scanner if scan period > 0.
func (bs *BacklogScanner) Start() {
	slog := log.With().Str("module", "storage").Str("phase", "startup").Logger()
	if bs.scanPeriod <= 0 {
		slog.Info().Msg("Backlog scanner disabled")
		close(bs.scanShutdown)
		return
	}
	slog.Info().Dur("period", bs.scanPeriod).Dur("orphanAge", bs.orphanAge).
		Msg("Backlog scanner enabled")
	go bs.run()
}

// run loops to kick off the scanner on the correct schedule.
func (bs *BacklogScanner) run() {
	slog := log.With().Str("module", "storage").Logger()
scanLoop:
	for {
		if _, err := bs.DoScan(); err != nil {
			slog.Error().Err(err).Msg("Error during backlog scan")
		}
		select {
		case <-bs.globalShutdown:
			break scanLoop
		case <-time.After(bs.scanPeriod):
		}
	}
	slog.Debug().Str("phase", "shutdown").Msg("Backlog scanner shut down")
	close(bs.scanShutdown)
}

// DoScan does a single pass over the staging store.
func (bs *BacklogScanner) DoScan() (Backlog, error) {
	slog := log.With().Str("module", "storage").Logger()
	slog.Debug().Msg("Starting backlog scan")
	cutoff := time.Now().Add(-1 * bs.orphanAge)
	var b Backlog
	err := bs.store.Visit(func(e Entry) bool {
		if e.Quarantined {
			b.Quarantined++
			return true
		}
		b.Staged++
		if bs.orphanAge > 0 && e.Staged.Before(cutoff) {
			b.Orphaned++
			slog.Warn().Str("path", e.Path).Time("staged", e.Staged).Int64("size", e.Size).
				Msg("Staged message was never completed")
		}
		return true
	})
	if err != nil {
		return b, err
	}
	b.Completed = time.Now()

	// Update metrics.
	backlogEntries.WithLabelValues("staged").Set(float64(b.Staged))
	backlogEntries.WithLabelValues("quarantined").Set(float64(b.Quarantined))
	backlogEntries.WithLabelValues("orphaned").Set(float64(b.Orphaned))
	backlogScanSeconds.Set(float64(b.Completed.Unix()))
	bs.mu.Lock()
	bs.last = b
	bs.mu.Unlock()

	return b, nil
}

// Last returns the result of the most recent completed scan.
func (bs *BacklogScanner) Last() Backlog {
	bs.mu.RLock()
	defer bs.mu.RUnlock()
	return bs.last
}

// Join does not return until the backlog scanner has shut down.
func (bs *BacklogScanner) Join() {
	if bs.scanShutdown != nil {
		<-bs.scanShutdown
	}
}
