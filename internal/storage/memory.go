package storage

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/mohamedkhairy/trade-alerter/internal/models"
)

// MemoryAlertStorage is an in-memory AlertStorage for development and tests
type MemoryAlertStorage struct {
	mu     sync.RWMutex
	alerts map[string]*models.Alert
}

// NewMemoryAlertStorage creates an empty in-memory alert storage
func NewMemoryAlertStorage() *MemoryAlertStorage {
	return &MemoryAlertStorage{alerts: make(map[string]*models.Alert)}
}

// WriteAlert stores one alert
func (s *MemoryAlertStorage) WriteAlert(ctx context.Context, alert *models.Alert) error {
	if err := alert.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *alert
	s.alerts[alert.ID] = &stored
	return nil
}

// WriteAlerts stores multiple alerts
func (s *MemoryAlertStorage) WriteAlerts(ctx context.Context, alerts []*models.Alert) error {
	for _, alert := range alerts {
		if err := s.WriteAlert(ctx, alert); err != nil {
			return err
		}
	}
	return nil
}

// GetAlerts returns alerts matching the filter, newest first
func (s *MemoryAlertStorage) GetAlerts(ctx context.Context, filter AlertFilter) ([]*models.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Alert
	for _, alert := range s.alerts {
		if filter.Symbol != "" && alert.Symbol != filter.Symbol {
			continue
		}
		if filter.RuleID != "" && alert.RuleID != filter.RuleID {
			continue
		}
		if filter.SetupType != "" && string(alert.SetupType) != filter.SetupType {
			continue
		}
		if filter.Unread && alert.IsRead {
			continue
		}
		if !filter.StartTime.IsZero() && alert.Timestamp.Before(filter.StartTime) {
			continue
		}
		if !filter.EndTime.IsZero() && alert.Timestamp.After(filter.EndTime) {
			continue
		}
		copied := *alert
		out = append(out, &copied)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// GetAlert returns one alert by ID
func (s *MemoryAlertStorage) GetAlert(ctx context.Context, alertID string) (*models.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	alert, ok := s.alerts[alertID]
	if !ok {
		return nil, models.ErrAlertNotFound
	}
	copied := *alert
	return &copied, nil
}

// MarkAlertRead flips the read flag
func (s *MemoryAlertStorage) MarkAlertRead(ctx context.Context, alertID string, read bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	alert, ok := s.alerts[alertID]
	if !ok {
		return models.ErrAlertNotFound
	}
	alert.IsRead = read
	return nil
}

// GetAlertStats returns aggregate alert counts
func (s *MemoryAlertStorage) GetAlertStats(ctx context.Context) (*AlertStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := &AlertStats{
		BySetupType: make(map[string]int64),
		BySymbol:    make(map[string]int64),
	}
	for _, alert := range s.alerts {
		stats.Total++
		if !alert.IsRead {
			stats.Unread++
		}
		stats.BySetupType[string(alert.SetupType)]++
		stats.BySymbol[alert.Symbol]++
	}
	return stats, nil
}

// Close is a no-op
func (s *MemoryAlertStorage) Close() error { return nil }

// MemoryWatchlistStorage is an in-memory WatchlistStorage
type MemoryWatchlistStorage struct {
	mu    sync.RWMutex
	items map[string]*models.WatchlistItem
	next  int
}

// NewMemoryWatchlistStorage creates an empty in-memory watchlist
func NewMemoryWatchlistStorage() *MemoryWatchlistStorage {
	return &MemoryWatchlistStorage{items: make(map[string]*models.WatchlistItem)}
}

// AddSymbol adds or reactivates a watchlist symbol
func (s *MemoryWatchlistStorage) AddSymbol(ctx context.Context, symbol string, notes string) (*models.WatchlistItem, error) {
	if symbol == "" {
		return nil, models.ErrInvalidSymbol
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[symbol]
	if !ok {
		s.next++
		item = &models.WatchlistItem{
			ID:      strconv.Itoa(s.next),
			Symbol:  symbol,
			AddedAt: time.Now().UTC(),
		}
		s.items[symbol] = item
	}
	item.IsActive = true
	item.Notes = notes

	copied := *item
	return &copied, nil
}

// RemoveSymbol deactivates a watchlist symbol
func (s *MemoryWatchlistStorage) RemoveSymbol(ctx context.Context, symbol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[symbol]
	if !ok {
		return models.ErrInvalidSymbol
	}
	item.IsActive = false
	return nil
}

// GetActiveSymbols returns active entries sorted by symbol
func (s *MemoryWatchlistStorage) GetActiveSymbols(ctx context.Context) ([]*models.WatchlistItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.WatchlistItem
	for _, item := range s.items {
		if item.IsActive {
			copied := *item
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

// Close is a no-op
func (s *MemoryWatchlistStorage) Close() error { return nil }

// MemoryRedis is an in-memory RedisClient covering the key-value, set,
// stream, and pub/sub surface well enough for development and tests.
// TTLs are honored lazily on read.
type MemoryRedis struct {
	mu       sync.Mutex
	values   map[string]memoryValue
	sets     map[string]map[string]bool
	streams  map[string][]StreamMessage
	subs     map[string][]chan PubSubMessage
	streamID int
}

type memoryValue struct {
	data    string
	expires time.Time
}

// NewMemoryRedis creates an empty in-memory Redis
func NewMemoryRedis() *MemoryRedis {
	return &MemoryRedis{
		values:  make(map[string]memoryValue),
		sets:    make(map[string]map[string]bool),
		streams: make(map[string][]StreamMessage),
		subs:    make(map[string][]chan PubSubMessage),
	}
}

// PublishToStream appends a JSON-encoded message to a stream
func (m *MemoryRedis) PublishToStream(ctx context.Context, stream string, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streamID++
	m.streams[stream] = append(m.streams[stream], StreamMessage{
		ID:     strconv.Itoa(m.streamID),
		Stream: stream,
		Values: map[string]interface{}{key: string(data)},
	})
	return nil
}

// PublishBatchToStream appends multiple messages to a stream
func (m *MemoryRedis) PublishBatchToStream(ctx context.Context, stream string, messages []map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range messages {
		m.streamID++
		m.streams[stream] = append(m.streams[stream], StreamMessage{
			ID:     strconv.Itoa(m.streamID),
			Stream: stream,
			Values: msg,
		})
	}
	return nil
}

// ConsumeFromStream delivers the stream's current contents then closes
func (m *MemoryRedis) ConsumeFromStream(ctx context.Context, stream string, group string, consumer string) (<-chan StreamMessage, error) {
	m.mu.Lock()
	messages := append([]StreamMessage(nil), m.streams[stream]...)
	m.mu.Unlock()

	ch := make(chan StreamMessage, len(messages))
	for _, msg := range messages {
		ch <- msg
	}
	close(ch)
	return ch, nil
}

// AcknowledgeMessage is a no-op
func (m *MemoryRedis) AcknowledgeMessage(ctx context.Context, stream string, group string, id string) error {
	return nil
}

// StreamLen returns how many messages a stream holds, for tests
func (m *MemoryRedis) StreamLen(stream string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.streams[stream])
}

// Set stores a JSON-encoded value with a TTL
func (m *MemoryRedis) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	var expires time.Time
	if ttl > 0 {
		expires = time.Now().Add(ttl)
	}
	m.mu.Lock()
	m.values[key] = memoryValue{data: string(data), expires: expires}
	m.mu.Unlock()
	return nil
}

// SetNX stores a value only when the key is absent or expired, reporting
// whether this call created it. Check and write happen under one lock.
func (m *MemoryRedis) SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return false, err
	}
	var expires time.Time
	if ttl > 0 {
		expires = time.Now().Add(ttl)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.values[key]; ok && !m.expired(key, v) {
		return false, nil
	}
	m.values[key] = memoryValue{data: string(data), expires: expires}
	return true, nil
}

// Get returns a raw value, or empty string when absent or expired
func (m *MemoryRedis) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	if !ok || m.expired(key, v) {
		return "", nil
	}
	return v.data, nil
}

// GetJSON unmarshals a stored value into dest
func (m *MemoryRedis) GetJSON(ctx context.Context, key string, dest interface{}) error {
	m.mu.Lock()
	v, ok := m.values[key]
	if ok && m.expired(key, v) {
		ok = false
	}
	m.mu.Unlock()
	if !ok {
		return nil
	}
	return json.Unmarshal([]byte(v.data), dest)
}

// Delete removes a key
func (m *MemoryRedis) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.values, key)
	m.mu.Unlock()
	return nil
}

// Exists reports whether a key exists and has not expired
func (m *MemoryRedis) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	if !ok || m.expired(key, v) {
		return false, nil
	}
	return true, nil
}

// expired lazily removes and reports an expired key. Caller holds the lock.
func (m *MemoryRedis) expired(key string, v memoryValue) bool {
	if !v.expires.IsZero() && time.Now().After(v.expires) {
		delete(m.values, key)
		return true
	}
	return false
}

// SetAdd adds members to a set
func (m *MemoryRedis) SetAdd(ctx context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.sets[key]
	if !ok {
		set = make(map[string]bool)
		m.sets[key] = set
	}
	for _, member := range members {
		set[member] = true
	}
	return nil
}

// SetMembers returns all members of a set
func (m *MemoryRedis) SetMembers(ctx context.Context, key string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	members := make([]string, 0, len(m.sets[key]))
	for member := range m.sets[key] {
		members = append(members, member)
	}
	sort.Strings(members)
	return members, nil
}

// SetRemove removes members from a set
func (m *MemoryRedis) SetRemove(ctx context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, member := range members {
		delete(m.sets[key], member)
	}
	return nil
}

// Publish delivers a JSON-encoded message to current subscribers
func (m *MemoryRedis) Publish(ctx context.Context, channel string, message interface{}) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	m.mu.Lock()
	subs := append([]chan PubSubMessage(nil), m.subs[channel]...)
	m.mu.Unlock()

	for _, sub := range subs {
		select {
		case sub <- PubSubMessage{Channel: channel, Message: string(data)}:
		default:
		}
	}
	return nil
}

// Subscribe registers a subscriber for the given channels
func (m *MemoryRedis) Subscribe(ctx context.Context, channels ...string) (<-chan PubSubMessage, error) {
	ch := make(chan PubSubMessage, 100)
	m.mu.Lock()
	for _, channel := range channels {
		m.subs[channel] = append(m.subs[channel], ch)
	}
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		for _, channel := range channels {
			subs := m.subs[channel]
			for i, sub := range subs {
				if sub == ch {
					m.subs[channel] = append(subs[:i], subs[i+1:]...)
					break
				}
			}
		}
		m.mu.Unlock()
	}()
	return ch, nil
}

// Close is a no-op
func (m *MemoryRedis) Close() error { return nil }
