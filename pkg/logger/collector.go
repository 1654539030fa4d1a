package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"os"
	"sort"
	"sync"
	"time"
)

// Publisher ships a batch of aggregated entries to a topic.
type Publisher interface {
	PublishMessage(ctx context.Context, topic string, payload interface{}) error
}

type CollectionConfig struct {
	TimeInterval   time.Duration // flush period
	CountThreshold int           // distinct entries that force an early flush
	Topic          string
	Service        string
	Publisher      Publisher
	// ErrorsOnly drops warnings and aggregates errors alone.
	ErrorsOnly bool
	// PublishTimeout bounds one publish call; zero means 10s.
	PublishTimeout time.Duration
	Now            func() time.Time
}

// AggregatedLogEntry is one distinct (level, message, fields, caller)
// combination and how often it was seen within a flush window.
type AggregatedLogEntry struct {
	Service   string                 `json:"service"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	Caller    string                 `json:"caller"`
	Count     int                    `json:"count"`
	FirstSeen time.Time              `json:"first_seen"`
	LastSeen  time.Time              `json:"last_seen"`
}

// LogCollector deduplicates repeated warnings and errors and publishes
// them in batches, so a failing provider produces one entry with a count
// rather than thousands of lines.
type LogCollector struct {
	cfg CollectionConfig

	mu      sync.Mutex
	entries map[uint64]*AggregatedLogEntry

	stop     chan struct{}
	loopDone chan struct{}
	inflight sync.WaitGroup
	once     sync.Once
}

func NewLogCollector(config *CollectionConfig) *LogCollector {
	cfg := *config
	if cfg.TimeInterval <= 0 {
		cfg.TimeInterval = 30 * time.Second
	}
	if cfg.CountThreshold <= 0 {
		cfg.CountThreshold = 100
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 10 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	c := &LogCollector{
		cfg:      cfg,
		entries:  make(map[uint64]*AggregatedLogEntry),
		stop:     make(chan struct{}),
		loopDone: make(chan struct{}),
	}
	go c.loop()
	return c
}

func (c *LogCollector) accepts(level string) bool {
	return level == "error" || (level == "warn" && !c.cfg.ErrorsOnly)
}

// AddLog records one occurrence.
func (c *LogCollector) AddLog(level, message string, fields map[string]interface{}, caller string) {
	now := c.cfg.Now()
	key := entryKey(level, message, fields, caller)

	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		e.Count++
		e.LastSeen = now
	} else {
		c.entries[key] = &AggregatedLogEntry{
			Service:   c.cfg.Service,
			Level:     level,
			Message:   message,
			Fields:    fields,
			Caller:    caller,
			Count:     1,
			FirstSeen: now,
			LastSeen:  now,
		}
	}
	var batch []AggregatedLogEntry
	if len(c.entries) >= c.cfg.CountThreshold {
		batch = c.drainLocked()
	}
	c.mu.Unlock()

	c.publish(batch)
}

// Flush publishes whatever has accumulated and waits for it to be sent.
func (c *LogCollector) Flush() {
	c.mu.Lock()
	batch := c.drainLocked()
	c.mu.Unlock()

	c.publish(batch)
	c.inflight.Wait()
}

// Close stops the flush loop, publishes the remainder and waits for every
// outstanding publish.
func (c *LogCollector) Close() {
	c.once.Do(func() {
		close(c.stop)
		<-c.loopDone
		c.Flush()
	})
}

func (c *LogCollector) loop() {
	defer close(c.loopDone)
	t := time.NewTicker(c.cfg.TimeInterval)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			c.mu.Lock()
			batch := c.drainLocked()
			c.mu.Unlock()
			c.publish(batch)
		case <-c.stop:
			return
		}
	}
}

// drainLocked empties the window, oldest entries first.
func (c *LogCollector) drainLocked() []AggregatedLogEntry {
	if len(c.entries) == 0 {
		return nil
	}
	out := make([]AggregatedLogEntry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, *e)
	}
	c.entries = make(map[uint64]*AggregatedLogEntry)
	sort.Slice(out, func(i, j int) bool { return out[i].FirstSeen.Before(out[j].FirstSeen) })
	return out
}

func (c *LogCollector) publish(batch []AggregatedLogEntry) {
	if len(batch) == 0 || c.cfg.Publisher == nil {
		return
	}
	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.PublishTimeout)
		defer cancel()
		if err := c.cfg.Publisher.PublishMessage(ctx, c.cfg.Topic, batch); err != nil {
			fmt.Fprintf(os.Stderr, "publish aggregated logs: %v\n", err)
		}
	}()
}

func entryKey(level, message string, fields map[string]interface{}, caller string) uint64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s\x00%s\x00%s\x00", level, message, caller)
	// encoding/json sorts map keys, so equal field sets hash equally.
	b, _ := json.Marshal(fields)
	h.Write(b)
	return h.Sum64()
}
