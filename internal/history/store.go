package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/loqalabs/vocalforge/internal/audio"
	"github.com/loqalabs/vocalforge/internal/blob"
	"github.com/loqalabs/vocalforge/internal/codec"
	"github.com/loqalabs/vocalforge/internal/config"
	"github.com/loqalabs/vocalforge/internal/kvstore"
)

// ErrNotFound is returned for operations on an unknown record id.
var ErrNotFound = errors.New("history record not found")

const encodeConcurrency = 4

// Store is the ordered, most-recent-first history. The in-memory list is
// authoritative; the text store copy holds at most PersistLimit entries and
// may lag behind after a failed write.
type Store struct {
	kv     kvstore.Store
	urls   *blob.URLRegistry
	key    string
	limit  int
	logger *slog.Logger
	clock  func() time.Time

	mu       sync.RWMutex
	records  []*Record
	playback map[string]*Playback

	persistMu sync.Mutex

	persistFailures metric.Int64Counter
}

func NewStore(kv kvstore.Store, urls *blob.URLRegistry, cfg config.HistoryConfig, logger *slog.Logger) *Store {
	s := &Store{
		kv:       kv,
		urls:     urls,
		key:      cfg.Key,
		limit:    cfg.PersistLimit,
		logger:   logger.With(slog.String("component", "history")),
		clock:    time.Now,
		playback: make(map[string]*Playback),
	}
	if err := s.initMetrics(); err != nil {
		s.logger.Warn("failed to initialize metrics", slogError(err))
	}
	return s
}

func (s *Store) initMetrics() error {
	meter := otel.Meter("github.com/loqalabs/vocalforge/internal/history")
	var err error
	s.persistFailures, err = meter.Int64Counter("vocalforge.history.persist_failures", metric.WithDescription("History writes that did not reach the text store"))
	if err != nil {
		return err
	}
	entries, err := meter.Int64ObservableGauge("vocalforge.history.entries", metric.WithDescription("Records held in memory"))
	if err != nil {
		return err
	}
	_, err = meter.RegisterCallback(func(_ context.Context, obs metric.Observer) error {
		obs.ObserveInt64(entries, int64(s.Len()))
		return nil
	}, entries)
	return err
}

// Load replaces the in-memory history with the persisted copy. It never
// fails: a missing key or an unreadable document yields an empty history,
// entries without audio are kept without audio, and entries whose audio
// cannot be decoded are skipped.
func (s *Store) Load(ctx context.Context) int {
	raw, err := s.kv.Get(ctx, s.key)
	if err != nil {
		if !errors.Is(err, kvstore.ErrNotFound) {
			s.logger.Warn("failed to read persisted history", slogError(err))
		}
		s.replace(nil)
		return 0
	}

	var items []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		s.logger.Warn("persisted history is corrupt, starting empty", slogError(err))
		s.replace(nil)
		return 0
	}

	records := make([]*Record, 0, len(items))
	for i, item := range items {
		var entry PersistedEntry
		if err := json.Unmarshal(item, &entry); err != nil {
			s.logger.Warn("skipping unreadable history entry", slog.Int("index", i), slogError(err))
			continue
		}
		rec, err := fromPersisted(entry)
		if err != nil {
			s.logger.Warn("skipping history entry with undecodable audio", slog.String("id", entry.ID), slogError(err))
			continue
		}
		records = append(records, rec)
	}
	s.replace(records)
	s.logger.Info("history restored", slog.Int("entries", len(records)))
	return len(records)
}

func fromPersisted(e PersistedEntry) (*Record, error) {
	rec := &Record{
		ID:         e.ID,
		Text:       e.Text,
		VoiceLabel: e.VoiceLabel,
		IsCloned:   e.IsCloned,
		Language:   e.Language,
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Language == "" {
		rec.Language = DefaultLanguage
	}
	if e.CreatedAt > 0 {
		rec.CreatedAt = time.UnixMilli(e.CreatedAt).UTC()
	}
	if e.AudioBase64 == "" {
		return rec, nil
	}
	b, err := codec.DataURLToBlob(e.AudioBase64)
	if err != nil {
		return nil, err
	}
	rec.Audio = b
	return rec, nil
}

func (s *Store) replace(records []*Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.records {
		s.urls.Revoke(rec.URL)
	}
	s.playback = make(map[string]*Playback)
	for _, rec := range records {
		s.attach(rec)
	}
	s.records = records
}

// attach creates the object URL and player for rec. Callers hold s.mu.
func (s *Store) attach(rec *Record) {
	if rec.Audio == nil {
		return
	}
	rec.URL = s.urls.Create(rec.Audio)
	if info, err := audio.InspectBlob(rec.Audio); err == nil {
		rec.Duration = info.Duration
	}
	s.playback[rec.ID] = &Playback{SourceURL: rec.URL, Duration: rec.Duration, State: Stopped}
}

// Insert puts rec at the head of the history and persists. Missing ID,
// CreatedAt and Language are filled in; Text is trimmed.
func (s *Store) Insert(ctx context.Context, rec Record) Record {
	out := s.Add(rec)
	s.Persist(ctx)
	return out
}

// Add is Insert without the write to the text store. Callers that hold their
// own locks use it and call Persist once they have released them.
func (s *Store) Add(rec Record) Record {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.clock().UTC()
	}
	if strings.TrimSpace(rec.Language) == "" {
		rec.Language = DefaultLanguage
	}
	rec.Text = strings.TrimSpace(rec.Text)

	s.mu.Lock()
	stored := &rec
	s.attach(stored)
	s.records = append([]*Record{stored}, s.records...)
	out := *stored
	s.mu.Unlock()
	return out
}

// Delete removes the record with id and releases its URL. Deleting an
// unknown id does nothing and reports false.
func (s *Store) Delete(ctx context.Context, id string) bool {
	s.mu.Lock()
	idx := -1
	for i, rec := range s.records {
		if rec.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return false
	}
	rec := s.records[idx]
	s.records = append(s.records[:idx:idx], s.records[idx+1:]...)
	s.urls.Revoke(rec.URL)
	delete(s.playback, id)
	s.mu.Unlock()

	s.Persist(ctx)
	return true
}

// Clear removes every record.
func (s *Store) Clear(ctx context.Context) {
	s.replace(nil)
	s.Persist(ctx)
}

// List returns a snapshot, most recent first.
func (s *Store) List() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Record, len(s.records))
	for i, rec := range s.records {
		out[i] = *rec
	}
	return out
}

// Get returns the record with id.
func (s *Store) Get(id string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rec := range s.records {
		if rec.ID == id {
			return *rec, true
		}
	}
	return Record{}, false
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Persist writes the newest entries to the text store. Writes are applied
// in mutation order. Failures are logged and counted only.
func (s *Store) Persist(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.RLock()
	n := min(len(s.records), s.limit)
	snapshot := make([]Record, n)
	for i := 0; i < n; i++ {
		snapshot[i] = *s.records[i]
	}
	s.mu.RUnlock()

	if err := s.write(ctx, snapshot); err != nil {
		if s.persistFailures != nil {
			s.persistFailures.Add(ctx, 1, metric.WithAttributes(attribute.Bool("quota", errors.Is(err, kvstore.ErrQuotaExceeded))))
		}
		s.logger.Warn("failed to persist history", slog.Int("entries", n), slogError(err))
	}
}

func (s *Store) write(ctx context.Context, records []Record) error {
	entries := make([]PersistedEntry, len(records))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(encodeConcurrency)
	for i, rec := range records {
		entries[i] = PersistedEntry{
			ID:         rec.ID,
			Text:       rec.Text,
			VoiceLabel: rec.VoiceLabel,
			CreatedAt:  rec.CreatedAt.UnixMilli(),
			IsCloned:   rec.IsCloned,
			Language:   rec.Language,
		}
		if rec.Audio == nil {
			continue
		}
		g.Go(func() error {
			url, err := codec.BlobToDataURL(gctx, rec.Audio)
			if err != nil {
				return fmt.Errorf("encode audio for %s: %w", rec.ID, err)
			}
			entries[i].AudioBase64 = url
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}
	return s.kv.Set(ctx, s.key, string(data))
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
