// Package archive persists monitor snapshots to SQLite asynchronously with
// time-based retention. It is designed to be removable: the polling loop
// never blocks on the writer, and backpressure results in dropped archive
// writes (counted, not fatal).
package archive

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"btcstats/snapshot"

	_ "modernc.org/sqlite"
)

// Config controls the writer. Zero values fall back to safe defaults.
type Config struct {
	DBPath          string
	QueueSize       int
	BatchSize       int
	BatchIntervalMS int
	BusyTimeoutMS   int
	RetentionDays   int
	CleanupMinutes  int
}

const (
	defaultQueueSize     = 1024
	defaultBatchSize     = 64
	defaultBatchInterval = 1000
	defaultBusyTimeout   = 5000
	defaultRetentionDays = 30
	defaultCleanupEvery  = 60
)

func (c Config) withDefaults() Config {
	if c.QueueSize <= 0 {
		c.QueueSize = defaultQueueSize
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.BatchIntervalMS <= 0 {
		c.BatchIntervalMS = defaultBatchInterval
	}
	if c.BusyTimeoutMS <= 0 {
		c.BusyTimeoutMS = defaultBusyTimeout
	}
	if c.RetentionDays <= 0 {
		c.RetentionDays = defaultRetentionDays
	}
	if c.CleanupMinutes <= 0 {
		c.CleanupMinutes = defaultCleanupEvery
	}
	return c
}

// Writer persists snapshots in batches off the hot path.
type Writer struct {
	cfg       Config
	db        *sql.DB
	queue     chan *snapshot.Snapshot
	stop      chan struct{}
	done      chan struct{}
	started   atomic.Bool
	dropCount atomic.Uint64
}

// NewWriter initializes the SQLite database and returns a writer; call Start
// to begin processing.
func NewWriter(cfg Config) (*Writer, error) {
	cfg = cfg.withDefaults()
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("archive: db path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return nil, fmt.Errorf("archive: mkdir: %w", err)
	}
	db, err := sql.Open("sqlite", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("archive: open db: %w", err)
	}
	if _, err := db.Exec(`pragma journal_mode=WAL; pragma synchronous=NORMAL; pragma busy_timeout=` + fmt.Sprintf("%d", cfg.BusyTimeoutMS)); err != nil {
		return nil, fmt.Errorf("archive: pragmas: %w", err)
	}
	if err := ensureSchema(db); err != nil {
		return nil, err
	}
	return &Writer{
		cfg:   cfg,
		db:    db,
		queue: make(chan *snapshot.Snapshot, cfg.QueueSize),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}, nil
}

// Start launches the insert and cleanup loops.
func (w *Writer) Start() {
	w.started.Store(true)
	go w.insertLoop()
	go w.cleanupLoop()
}

// Stop drains the queue, flushes the in-flight batch, and closes the
// database. Safe to call when Start was never invoked.
func (w *Writer) Stop() {
	close(w.stop)
	if w.started.Load() {
		<-w.done
	}
	_ = w.db.Close()
}

// Enqueue attempts to queue a snapshot for archival without blocking; drops
// on a full queue.
func (w *Writer) Enqueue(s *snapshot.Snapshot) {
	if w == nil || s == nil {
		return
	}
	select {
	case w.queue <- s:
	default:
		w.dropCount.Add(1)
	}
}

// DropCount returns the number of snapshots dropped due to backpressure.
func (w *Writer) DropCount() uint64 {
	return w.dropCount.Load()
}

// History returns up to limit archived snapshots, newest first.
func (w *Writer) History(limit int) ([]snapshot.Snapshot, error) {
	if limit <= 0 {
		limit = 25
	}
	rows, err := w.db.Query(`select ts, chain, height, headers, best_block_hash, difficulty,
		verification_progress, ibd, chain_work, size_on_disk, pruned,
		mempool_tx_count, mempool_bytes, mempool_usage, mempool_min_fee,
		peer_count, protocol_version, subversion, time_offset, node_uptime
		from snapshots order by ts desc limit ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("archive: history query: %w", err)
	}
	defer rows.Close()

	var out []snapshot.Snapshot
	for rows.Next() {
		var s snapshot.Snapshot
		var ts int64
		var ibd, pruned int
		if err := rows.Scan(&ts, &s.Chain, &s.Height, &s.Headers, &s.BestBlockHash, &s.Difficulty,
			&s.VerificationProgress, &ibd, &s.ChainWork, &s.SizeOnDisk, &pruned,
			&s.MempoolTxCount, &s.MempoolBytes, &s.MempoolUsage, &s.MempoolMinFee,
			&s.PeerCount, &s.ProtocolVersion, &s.Subversion, &s.TimeOffset, &s.NodeUptime); err != nil {
			return nil, fmt.Errorf("archive: history scan: %w", err)
		}
		s.CapturedAt = time.Unix(ts, 0).UTC()
		s.InitialBlockDownload = ibd != 0
		s.Pruned = pruned != 0
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("archive: history rows: %w", err)
	}
	return out, nil
}

// Count returns the number of archived snapshots.
func (w *Writer) Count() (int64, error) {
	var count int64
	if err := w.db.QueryRow(`select count(*) from snapshots`).Scan(&count); err != nil {
		return 0, fmt.Errorf("archive: count: %w", err)
	}
	return count, nil
}

func (w *Writer) insertLoop() {
	defer close(w.done)
	batch := make([]*snapshot.Snapshot, 0, w.cfg.BatchSize)
	interval := time.Duration(w.cfg.BatchIntervalMS) * time.Millisecond
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-w.stop:
			// Drain anything queued before the stop so one-shot callers
			// do not lose their last snapshot.
			for {
				select {
				case s := <-w.queue:
					batch = append(batch, s)
				default:
					w.flush(batch)
					return
				}
			}
		case s := <-w.queue:
			batch = append(batch, s)
			if len(batch) >= w.cfg.BatchSize {
				w.flush(batch)
				batch = batch[:0]
				if !timer.Stop() {
					<-timer.C
				}
				timer.Reset(interval)
			}
		case <-timer.C:
			if len(batch) > 0 {
				w.flush(batch)
				batch = batch[:0]
			}
			timer.Reset(interval)
		}
	}
}

func (w *Writer) flush(batch []*snapshot.Snapshot) {
	if len(batch) == 0 {
		return
	}
	tx, err := w.db.Begin()
	if err != nil {
		log.Printf("archive: begin tx: %v", err)
		return
	}
	stmt, err := tx.Prepare(`insert into snapshots(ts, chain, height, headers, best_block_hash,
		difficulty, verification_progress, ibd, chain_work, size_on_disk, pruned,
		mempool_tx_count, mempool_bytes, mempool_usage, mempool_min_fee,
		peer_count, protocol_version, subversion, time_offset, node_uptime)
		values(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		log.Printf("archive: prepare: %v", err)
		_ = tx.Rollback()
		return
	}
	for _, s := range batch {
		if s == nil {
			continue
		}
		if _, err := stmt.Exec(
			s.CapturedAt.UTC().Unix(),
			s.Chain,
			s.Height,
			s.Headers,
			s.BestBlockHash,
			s.Difficulty,
			s.VerificationProgress,
			boolToInt(s.InitialBlockDownload),
			s.ChainWork,
			s.SizeOnDisk,
			boolToInt(s.Pruned),
			s.MempoolTxCount,
			s.MempoolBytes,
			s.MempoolUsage,
			s.MempoolMinFee,
			s.PeerCount,
			s.ProtocolVersion,
			s.Subversion,
			s.TimeOffset,
			s.NodeUptime,
		); err != nil {
			log.Printf("archive: insert failed: %v", err)
		}
	}
	_ = stmt.Close()
	if err := tx.Commit(); err != nil {
		log.Printf("archive: commit: %v", err)
	}
}

func (w *Writer) cleanupLoop() {
	interval := time.Duration(w.cfg.CleanupMinutes) * time.Minute
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-w.stop:
			return
		case <-ticker.C:
			w.cleanupOnce(time.Now().UTC())
		}
	}
}

func (w *Writer) cleanupOnce(now time.Time) {
	cutoff := now.AddDate(0, 0, -w.cfg.RetentionDays).Unix()
	if _, err := w.db.Exec(`delete from snapshots where ts < ?`, cutoff); err != nil {
		log.Printf("archive: cleanup: %v", err)
	}
}

func ensureSchema(db *sql.DB) error {
	schema := `
	create table if not exists snapshots (
		id integer primary key autoincrement,
		ts integer,
		chain text,
		height integer,
		headers integer,
		best_block_hash text,
		difficulty real,
		verification_progress real,
		ibd integer,
		chain_work text,
		size_on_disk integer,
		pruned integer,
		mempool_tx_count integer,
		mempool_bytes integer,
		mempool_usage integer,
		mempool_min_fee real,
		peer_count integer,
		protocol_version integer,
		subversion text,
		time_offset integer,
		node_uptime integer
	);
	create index if not exists idx_snapshots_ts on snapshots(ts);
	`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("archive: schema: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
