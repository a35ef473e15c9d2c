// Package retentionmetrics counts what a retention pass removed.
package retentionmetrics

import (
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/paulschiretz/holland/pkg/plog"
)

// Metrics defines the interface for collecting and reporting retention statistics.
type Metrics interface {
	AddStoresPurged(n int64)
	AddStoresFailed(n int64)
	AddBytesFreed(n int64)
	LogSummary(msg string)
	StartProgress(msg string, interval time.Duration)
	StopProgress()
}

// RetentionMetrics holds the atomic counters of one retention pass.
type RetentionMetrics struct {
	StoresPurged atomic.Int64
	StoresFailed atomic.Int64
	BytesFreed   atomic.Int64

	stopChan chan struct{}
}

func (m *RetentionMetrics) AddStoresPurged(n int64) { m.StoresPurged.Add(n) }
func (m *RetentionMetrics) AddStoresFailed(n int64) { m.StoresFailed.Add(n) }
func (m *RetentionMetrics) AddBytesFreed(n int64)   { m.BytesFreed.Add(n) }

func (m *RetentionMetrics) StartProgress(msg string, interval time.Duration) {
	m.stopChan = make(chan struct{})
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.LogSummary(msg)
			case <-m.stopChan:
				return
			}
		}
	}()
}

func (m *RetentionMetrics) StopProgress() {
	if m.stopChan != nil {
		close(m.stopChan)
		m.stopChan = nil
	}
}

func (m *RetentionMetrics) LogSummary(msg string) {
	plog.Info(msg,
		"stores_purged", m.StoresPurged.Load(),
		"stores_failed", m.StoresFailed.Load(),
		"freed", humanize.IBytes(uint64(max(m.BytesFreed.Load(), 0))),
	)
}

// NoopMetrics is an implementation of the Metrics interface that performs no operations.
type NoopMetrics struct{}

func (m *NoopMetrics) AddStoresPurged(n int64)                          {}
func (m *NoopMetrics) AddStoresFailed(n int64)                          {}
func (m *NoopMetrics) AddBytesFreed(n int64)                            {}
func (m *NoopMetrics) LogSummary(msg string)                            {}
func (m *NoopMetrics) StartProgress(msg string, interval time.Duration) {}
func (m *NoopMetrics) StopProgress()                                    {}

var _ Metrics = (*RetentionMetrics)(nil)
var _ Metrics = (*NoopMetrics)(nil)
