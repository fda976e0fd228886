package measurements

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vitalsense/pulsewatch/pkg/logger"
	"github.com/vitalsense/pulsewatch/pkg/models"
)

// BatchWriter buffers incoming measurements and archives them in batches.
// ClickHouse prefers few large inserts over many small ones.
type BatchWriter struct {
	archive     *Archive
	buffer      []models.Measurement
	bufferMu    sync.Mutex
	maxBatch    int
	flushTicker *time.Ticker
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// NewBatchWriter creates new batch writer
func NewBatchWriter(archive *Archive, maxBatch int, maxWait time.Duration) *BatchWriter {
	ctx, cancel := context.WithCancel(context.Background())

	bw := &BatchWriter{
		archive:  archive,
		buffer:   make([]models.Measurement, 0, maxBatch),
		maxBatch: maxBatch,
		ctx:      ctx,
		cancel:   cancel,
	}

	bw.flushTicker = time.NewTicker(maxWait)

	bw.wg.Add(1)
	go bw.autoFlush()

	return bw
}

// Add adds a measurement to the buffer
func (bw *BatchWriter) Add(m models.Measurement) {
	bw.bufferMu.Lock()
	bw.buffer = append(bw.buffer, m)
	shouldFlush := len(bw.buffer) >= bw.maxBatch
	bw.bufferMu.Unlock()

	if shouldFlush {
		bw.flush()
	}
}

// Close flushes remaining measurements and stops the writer
func (bw *BatchWriter) Close() {
	bw.cancel()
	bw.wg.Wait()
	bw.flushTicker.Stop()
}

// autoFlush flushes the buffer periodically
func (bw *BatchWriter) autoFlush() {
	defer bw.wg.Done()

	for {
		select {
		case <-bw.flushTicker.C:
			bw.flush()
		case <-bw.ctx.Done():
			// Final flush before exit
			bw.flush()
			return
		}
	}
}

// flush writes buffered measurements to the archive
func (bw *BatchWriter) flush() {
	bw.bufferMu.Lock()
	if len(bw.buffer) == 0 {
		bw.bufferMu.Unlock()
		return
	}

	toWrite := make([]models.Measurement, len(bw.buffer))
	copy(toWrite, bw.buffer)
	bw.buffer = bw.buffer[:0]
	bw.bufferMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := bw.archive.SaveMeasurements(ctx, toWrite); err != nil {
		logger.Error("failed to flush batch to ClickHouse",
			zap.Int("rows", len(toWrite)),
			zap.Error(err),
		)
		return
	}

	logger.Debug("flushed batch to ClickHouse",
		zap.Int("rows", len(toWrite)),
	)
}
