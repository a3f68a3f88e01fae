package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/pesoscan/pesoscan/internal/models"
	"github.com/pesoscan/pesoscan/internal/storage"
)

const (
	// StorageKey is the single key the whole list lives under
	StorageKey = "pesoscan_history"
	Capacity   = 50
)

type Filter string

const (
	FilterAll         Filter = "all"
	FilterAuthentic   Filter = "authentic"
	FilterCounterfeit Filter = "counterfeit"
)

type SortOrder string

const (
	SortNewest     SortOrder = "newest"
	SortOldest     SortOrder = "oldest"
	SortConfidence SortOrder = "confidence"
)

var ErrInvalidRecord = errors.New("history record needs an id and a result")

func ParseFilter(s string) (Filter, error) {
	switch f := Filter(s); f {
	case FilterAll, FilterAuthentic, FilterCounterfeit:
		return f, nil
	case "":
		return FilterAll, nil
	}
	return "", fmt.Errorf("unknown filter %q (valid: all, authentic, counterfeit)", s)
}

func ParseSort(s string) (SortOrder, error) {
	switch o := SortOrder(s); o {
	case SortNewest, SortOldest, SortConfidence:
		return o, nil
	case "":
		return SortNewest, nil
	}
	return "", fmt.Errorf("unknown sort %q (valid: newest, oldest, confidence)", s)
}

// Store owns the persisted scan history. Every operation reloads the list from
// the backing store, so several Store values over the same storage.Store stay
// consistent.
type Store struct {
	kv storage.Store
	mu sync.Mutex
}

func New(kv storage.Store) *Store {
	return &Store{kv: kv}
}

// NewRecord builds the record saved after a scan. The id and timestamp come
// from the payload when the backend supplied them.
func NewRecord(result json.RawMessage, imageURL string, mode models.ScanMode, now time.Time) models.HistoryRecord {
	var raw models.RawResult
	_ = json.Unmarshal(result, &raw)

	rec := models.HistoryRecord{
		ID:        firstNonEmpty(raw.ID, raw.ScanID, strconv.FormatInt(now.UnixMilli(), 10)),
		Timestamp: firstNonEmpty(raw.Timestamp, now.UTC().Format("2006-01-02T15:04:05.000Z07:00")),
		Result:    result,
		ImageURL:  imageURL,
		Mode:      mode,
	}
	if raw.ProcessingTime > 0 {
		pt := raw.ProcessingTime
		rec.ProcessingTime = &pt
	}
	return rec
}

// Add pushes rec to the head of the list, evicting the oldest record once the
// list is at capacity.
func (s *Store) Add(rec models.HistoryRecord) error {
	if rec.ID == "" || len(rec.Result) == 0 {
		return ErrInvalidRecord
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return err
	}

	d := NewDeque[models.HistoryRecord](Capacity)
	for _, r := range records {
		d.PushBack(r)
	}
	if d.PushFront(rec) {
		slog.Debug("History full, oldest record evicted", "capacity", Capacity)
	}

	return s.save(d.Items())
}

// Remove deletes every record with the given id and reports whether any existed
func (s *Store) Remove(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return false, err
	}

	d := NewDeque[models.HistoryRecord](Capacity)
	for _, r := range records {
		d.PushBack(r)
	}
	removed := d.RemoveFunc(func(r models.HistoryRecord) bool { return r.ID == id })
	if removed == 0 {
		return false, nil
	}
	return true, s.save(d.Items())
}

func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.kv.Remove(StorageKey); err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	return nil
}

func (s *Store) Get(id string) (models.HistoryRecord, bool, error) {
	records, err := s.All()
	if err != nil {
		return models.HistoryRecord{}, false, err
	}
	for _, r := range records {
		if r.ID == id {
			return r, true, nil
		}
	}
	return models.HistoryRecord{}, false, nil
}

// All returns the stored list newest first, exactly as persisted
func (s *Store) All() ([]models.HistoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// List returns a filtered, sorted copy of the history. The stored order is
// never changed.
func (s *Store) List(filter Filter, order SortOrder) ([]models.HistoryRecord, error) {
	records, err := s.All()
	if err != nil {
		return nil, err
	}

	type entry struct {
		rec     models.HistoryRecord
		summary Summary
		at      time.Time
	}
	entries := make([]entry, 0, len(records))
	for _, r := range records {
		sum := Summarize(r.Result)
		switch filter {
		case FilterAuthentic:
			if !sum.Authentic {
				continue
			}
		case FilterCounterfeit:
			if sum.Authentic {
				continue
			}
		}
		entries = append(entries, entry{rec: r, summary: sum, at: ParseTimestamp(r.Timestamp)})
	}

	switch order {
	case SortOldest:
		sort.SliceStable(entries, func(i, j int) bool { return entries[i].at.Before(entries[j].at) })
	case SortConfidence:
		sort.SliceStable(entries, func(i, j int) bool {
			return entries[i].summary.Confidence > entries[j].summary.Confidence
		})
	default:
		sort.SliceStable(entries, func(i, j int) bool { return entries[i].at.After(entries[j].at) })
	}

	out := make([]models.HistoryRecord, len(entries))
	for i, e := range entries {
		out[i] = e.rec
	}
	return out, nil
}

// Export pretty-prints the full stored list, ignoring any filter or sort
func (s *Store) Export() ([]byte, error) {
	records, err := s.All()
	if err != nil {
		return nil, err
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode history: %w", err)
	}
	return data, nil
}

// ExportFilename names an export file after the given day
func ExportFilename(t time.Time) string {
	return "pesoscan-history-" + t.Format("2006-01-02") + ".json"
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// ParseTimestamp reads the ISO-8601 variants the backend and older clients
// write. Timestamps without a zone are taken as UTC; garbage is the zero time.
func ParseTimestamp(s string) time.Time {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func (s *Store) load() ([]models.HistoryRecord, error) {
	data, ok, err := s.kv.Get(StorageKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	if !ok || len(data) == 0 {
		return []models.HistoryRecord{}, nil
	}

	var records []models.HistoryRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to decode history: %w", err)
	}
	if len(records) > Capacity {
		records = records[:Capacity]
	}
	return records, nil
}

func (s *Store) save(records []models.HistoryRecord) error {
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("failed to encode history: %w", err)
	}
	if err := s.kv.Set(StorageKey, data); err != nil {
		return fmt.Errorf("failed to save history: %w", err)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
