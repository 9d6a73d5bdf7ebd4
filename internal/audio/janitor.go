package audio

import (
	"time"

	"go.uber.org/zap"
)

// Janitor periodically drops uploads a client opened and never finished
type Janitor struct {
	assembler *Assembler
	interval  time.Duration
	maxIdle   time.Duration
	logger    *zap.Logger
	stopChan  chan struct{}
	doneChan  chan struct{}
}

// NewJanitor creates a janitor sweeping every interval for streams idle longer than maxIdle
func NewJanitor(assembler *Assembler, interval, maxIdle time.Duration, logger *zap.Logger) *Janitor {
	return &Janitor{
		assembler: assembler,
		interval:  interval,
		maxIdle:   maxIdle,
		logger:    logger,
		stopChan:  make(chan struct{}),
		doneChan:  make(chan struct{}),
	}
}

// Start begins the background sweep
func (j *Janitor) Start() {
	go j.loop()
	j.logger.Info("Audio stream janitor started",
		zap.Duration("interval", j.interval),
		zap.Duration("max_idle", j.maxIdle))
}

// Stop ends the sweep and waits for it to exit
func (j *Janitor) Stop() {
	close(j.stopChan)
	<-j.doneChan
	j.logger.Info("Audio stream janitor stopped")
}

func (j *Janitor) loop() {
	defer close(j.doneChan)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-j.stopChan:
			return
		case <-ticker.C:
			j.Sweep()
		}
	}
}

// Sweep runs one pass and returns how many streams were dropped
func (j *Janitor) Sweep() int {
	n := j.assembler.DiscardIdle(j.maxIdle)
	if n > 0 {
		j.logger.Info("Discarded idle audio streams", zap.Int("count", n))
	}
	return n
}
