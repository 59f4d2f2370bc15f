package persistence

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"
	xdr "github.com/rasky/go-xdr/xdr2"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/poseidon/poseidon/logging"
)

// spoolRecord is the ledger entry written while the daemon is
// disconnected. It does not carry enough to reconstruct an arbitrary
// PersistedObject by itself (no generic encoding exists for an
// arbitrary domain type) — replay instead pairs each record's Seq with
// the live object reference the daemon kept in memory across the
// outage (Daemon.spoolObjects). The ledger's own job is to survive a
// process restart mid-outage: an operator can see what was pending,
// and the S3 cold backup has something to export, even though a
// restart means the in-memory object is gone and that record can only
// be cleared, not replayed. This is the supplemental durability net
// SPEC_FULL.md §4.2 describes, not a second copy of
// waitForAllAsyncOperations's contract.
type spoolRecord struct {
	Seq      uint64
	QueuedAt int64 // unix nanos
	Describe string
}

// spool is the badger-backed write-ahead ledger for save intents
// whose dispatch lost the database connection.
type spool struct {
	db  *badger.DB
	seq atomic.Uint64

	bucket    string
	s3Client  *s3.Client
	stopTick  chan struct{}
}

// badgerOpenInMemory opens a badger database with no on-disk footprint,
// used by tests that exercise the spool without a real SpoolPath.
func badgerOpenInMemory() (*badger.DB, error) {
	return badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
}

func openSpool(cfg Config) (*spool, error) {
	opts := badger.DefaultOptions(cfg.SpoolPath).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open spool: %w", err)
	}

	s := &spool{db: db, bucket: cfg.BackupBucket}

	if cfg.BackupBucket != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background())
		if err != nil {
			logging.Error("persistence: spool backup disabled, failed to load AWS config", "err", err)
		} else {
			s.s3Client = s3.NewFromConfig(awsCfg)
			s.stopTick = make(chan struct{})
			go s.backupLoop()
		}
	}

	return s, nil
}

// append writes one spooled save intent keyed by a monotonic sequence
// and returns that sequence, so the caller can pair the ledger record
// with the in-memory object it describes for replay on reconnect.
func (s *spool) append(obj PersistedObject) (uint64, error) {
	seq := s.seq.Add(1)
	rec := spoolRecord{
		Seq:      seq,
		QueuedAt: time.Now().UnixNano(),
		Describe: fmt.Sprintf("%T", obj),
	}

	var buf bytes.Buffer
	if _, err := xdr.Marshal(&buf, &rec); err != nil {
		return 0, fmt.Errorf("failed to encode spool record: %w", err)
	}

	key := spoolKey(seq)
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, buf.Bytes())
	})
	return seq, err
}

// entries reads every spooled record back in sequence order, without
// removing them — drainSpool removes each one individually, only
// after it has actually been replayed (or found un-replayable).
func (s *spool) entries() ([]spoolRecord, error) {
	var recs []spoolRecord
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			val, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			var rec spoolRecord
			if _, err := xdr.Unmarshal(bytes.NewReader(val), &rec); err != nil {
				return fmt.Errorf("failed to decode spool record: %w", err)
			}
			recs = append(recs, rec)
		}
		return nil
	})
	return recs, err
}

// remove deletes the single ledger record for seq. Keys are ordered by
// seq (spoolKey zero-pads), so entries() already returns them in the
// order remove should be called for a full drain.
func (s *spool) remove(seq uint64) error {
	key := spoolKey(seq)
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
}

// drain reads every spooled record in sequence order and deletes it,
// unconditionally. Only tests call it, for ledger housekeeping without
// replay; drainSpool (below) uses
// entries/remove instead so a replay failure can leave a record
// spooled rather than discard it.
func (s *spool) drain() (int, error) {
	recs, err := s.entries()
	if err != nil {
		return 0, err
	}
	for _, rec := range recs {
		if err := s.remove(rec.Seq); err != nil {
			return 0, err
		}
	}
	return len(recs), nil
}

// pending reports how many records are currently spooled.
func (s *spool) pending() (int, error) {
	n := 0
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

// waitDrained polls until the spool is empty or ctx is done.
func (s *spool) waitDrained(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		n, err := s.pending()
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *spool) close() {
	if s.stopTick != nil {
		close(s.stopTick)
	}
	_ = s.db.Close()
}

// backupLoop periodically exports every spooled record to S3 as a
// single cold-backup object. Failures are logged, never raised — this
// is best-effort per SPEC_FULL.md §4.2.
func (s *spool) backupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopTick:
			return
		case <-ticker.C:
			if err := s.exportToS3(); err != nil {
				logging.Error("persistence: spool S3 backup failed", "err", err)
			}
		}
	}
}

func (s *spool) exportToS3() error {
	var buf bytes.Buffer
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			buf.Write(val)
			buf.WriteByte('\n')
		}
		return nil
	})
	if err != nil {
		return err
	}
	if buf.Len() == 0 {
		return nil
	}

	key := fmt.Sprintf("spool-backups/%d.xdr", time.Now().Unix())
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	_, err = s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(buf.Bytes()),
	})
	return err
}

func spoolKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("intent/%020d", seq))
}

// drainSpool is called on reconnect, before live dispatch resumes: it
// re-drives Save for every spooled record, in spool order, against the
// freshly reconnected db. A record only clears from the ledger once
// its replay has actually succeeded — per spec.md §8, a save pended
// during the outage must be dispatched exactly once, in spool order,
// before any newly-pended save gets a turn on the same connection.
func (d *Daemon) drainSpool(db *sql.DB) {
	recs, err := d.spool.entries()
	if err != nil {
		logging.Error("persistence: failed to read spool for replay", "err", err)
		return
	}
	if len(recs) == 0 {
		return
	}

	replayed := 0
	for _, rec := range recs {
		d.mu.Lock()
		obj, ok := d.spoolObjects[rec.Seq]
		delete(d.spoolObjects, rec.Seq)
		d.mu.Unlock()

		if !ok {
			// No in-memory object to replay (most likely a process
			// restart mid-outage); the ledger entry can't be acted on,
			// only cleared.
			if err := d.spool.remove(rec.Seq); err != nil {
				logging.Error("persistence: failed to clear unreplayable spool record", "seq", rec.Seq, "err", err)
			}
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		saveErr := obj.Save(ctx, db)
		cancel()
		if saveErr != nil {
			classified := classify(saveErr)
			logging.Error("persistence: spool replay failed, leaving record spooled", "seq", rec.Seq, "err", classified)
			d.mu.Lock()
			d.spoolObjects[rec.Seq] = obj
			d.mu.Unlock()
			continue
		}

		if err := d.spool.remove(rec.Seq); err != nil {
			logging.Error("persistence: failed to clear replayed spool record", "seq", rec.Seq, "err", err)
			continue
		}
		replayed++
	}
	if replayed > 0 {
		logging.Info("persistence: replayed spooled saves on reconnect", "count", replayed)
	}
}

// spoolSave appends si to the spool when the connection has just been
// lost, and keeps the object itself reachable in d.spoolObjects under
// the same sequence, so drainSpool has something to actually replay
// rather than only a descriptive ledger entry.
func (d *Daemon) spoolSave(si *SaveIntent) {
	seq, err := d.spool.append(si.object)
	if err != nil {
		logging.Error("persistence: failed to spool save intent", "err", err)
		return
	}
	d.mu.Lock()
	if d.spoolObjects == nil {
		d.spoolObjects = make(map[uint64]PersistedObject)
	}
	d.spoolObjects[seq] = si.object
	d.mu.Unlock()
}
