package logger

import (
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	defaultLogCapacity = 1000
	defaultLogPage     = 1
	defaultLogPageSize = 20
	maxLogPageSize     = 200
)

type Entry struct {
	ID        int64                  `json:"id"`
	Timestamp time.Time              `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Caller    string                 `json:"caller,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// RingStore keeps the most recent log entries in memory so the admin API can
// expose them without a log shipping pipeline.
type RingStore struct {
	mu       sync.RWMutex
	entries  []Entry
	capacity int
	next     int
	count    int
	seq      int64
}

func NewRingStore(capacity int) *RingStore {
	if capacity <= 0 {
		capacity = defaultLogCapacity
	}

	return &RingStore{
		entries:  make([]Entry, capacity),
		capacity: capacity,
	}
}

// WrapZapLogger tees every entry written through the returned logger into the
// store, in addition to the original cores.
func WrapZapLogger(base *zap.Logger, store *RingStore) *zap.Logger {
	if base == nil || store == nil {
		return base
	}

	return base.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return &ringCore{
			Core:  core,
			store: store,
		}
	}))
}

func (s *RingStore) Query(level, keyword string, page, pageSize int) ([]Entry, int64) {
	if s == nil {
		return nil, 0
	}

	if page <= 0 {
		page = defaultLogPage
	}
	if pageSize <= 0 {
		pageSize = defaultLogPageSize
	}
	if pageSize > maxLogPageSize {
		pageSize = maxLogPageSize
	}

	normalizedLevel := strings.ToLower(strings.TrimSpace(level))
	normalizedKeyword := strings.ToLower(strings.TrimSpace(keyword))

	entries := s.snapshotNewestFirst()
	filtered := make([]Entry, 0, len(entries))
	for _, entry := range entries {
		if normalizedLevel != "" && !strings.EqualFold(entry.Level, normalizedLevel) {
			continue
		}
		if normalizedKeyword != "" &&
			!strings.Contains(strings.ToLower(entry.Message), normalizedKeyword) &&
			!strings.Contains(strings.ToLower(entry.Caller), normalizedKeyword) {
			continue
		}
		filtered = append(filtered, entry)
	}

	total := int64(len(filtered))
	start := (page - 1) * pageSize
	if start >= len(filtered) {
		return []Entry{}, total
	}

	end := start + pageSize
	if end > len(filtered) {
		end = len(filtered)
	}
	return filtered[start:end], total
}

func (s *RingStore) add(entry zapcore.Entry, fields []zapcore.Field) {
	if s == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	s.entries[s.next] = Entry{
		ID:        s.seq,
		Timestamp: entry.Time.UTC(),
		Level:     entry.Level.String(),
		Message:   entry.Message,
		Caller:    entry.Caller.TrimmedPath(),
		Fields:    fieldsToMap(fields),
	}
	s.next = (s.next + 1) % s.capacity
	if s.count < s.capacity {
		s.count++
	}
}

func fieldsToMap(fields []zapcore.Field) map[string]interface{} {
	if len(fields) == 0 {
		return nil
	}

	enc := zapcore.NewMapObjectEncoder()
	for _, field := range fields {
		field.AddTo(enc)
	}
	if len(enc.Fields) == 0 {
		return nil
	}

	result := make(map[string]interface{}, len(enc.Fields))
	for k, v := range enc.Fields {
		result[k] = v
	}
	return result
}

func (s *RingStore) snapshotNewestFirst() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.count == 0 {
		return nil
	}

	result := make([]Entry, 0, s.count)
	for i := 0; i < s.count; i++ {
		idx := s.next - 1 - i
		if idx < 0 {
			idx += s.capacity
		}
		result = append(result, s.entries[idx])
	}
	return result
}

type ringCore struct {
	zapcore.Core
	store *RingStore
}

func (c *ringCore) With(fields []zapcore.Field) zapcore.Core {
	return &ringCore{
		Core:  c.Core.With(fields),
		store: c.store,
	}
}

func (c *ringCore) Check(entry zapcore.Entry, checked *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Core.Check(entry, nil) == nil {
		return checked
	}
	return checked.AddCore(entry, c)
}

func (c *ringCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	if c.store != nil {
		c.store.add(entry, fields)
	}
	return c.Core.Write(entry, fields)
}
