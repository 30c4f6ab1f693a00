package relay

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/lexiqai/rtp-translator/internal/audio"
	"github.com/lexiqai/rtp-translator/internal/monitor"
	"github.com/lexiqai/rtp-translator/internal/observability"
	"github.com/lexiqai/rtp-translator/internal/pipeline"
	"github.com/lexiqai/rtp-translator/internal/session"
)

// Window outcomes reported to metrics
const (
	outcomeDispatched = "dispatched"
	outcomeSilent     = "silent"
	outcomeEmpty      = "empty"
	outcomeFailed     = "failed"
)

// Processor turns one window of caller audio into translated audio
type Processor interface {
	Process(ctx context.Context, in pipeline.Input) (*pipeline.Result, error)
}

// Dispatcher runs each full window through the processor on its own goroutine
// and hands the result to the sender in window order.
type Dispatcher struct {
	processor Processor
	sender    *Sender
	gate      *audio.SilenceGate
	sem       *semaphore.Weighted
	stats     *monitor.Stats
	timeout   time.Duration

	// Not cancelled on shutdown: in-flight windows finish on their own.
	ctx context.Context
	wg  sync.WaitGroup
}

// NewDispatcher bounds concurrent processing to maxConcurrent windows
func NewDispatcher(processor Processor, sender *Sender, gate *audio.SilenceGate, maxConcurrent int, timeout time.Duration, stats *monitor.Stats) *Dispatcher {
	return &Dispatcher{
		processor: processor,
		sender:    sender,
		gate:      gate,
		sem:       semaphore.NewWeighted(int64(maxConcurrent)),
		stats:     stats,
		timeout:   timeout,
		ctx:       context.Background(),
	}
}

// Dispatch processes w asynchronously and never blocks the caller
func (d *Dispatcher) Dispatch(sess *session.Session, w *session.Window, conn PacketWriter, local *net.UDPAddr) {
	d.wg.Add(1)
	observability.DispatchStarted()

	go func() {
		defer d.wg.Done()
		defer observability.DispatchFinished()
		defer sess.Release(w.Ticket)

		d.handle(sess, w, conn, local)
	}()
}

func (d *Dispatcher) handle(sess *session.Session, w *session.Window, conn PacketWriter, local *net.UDPAddr) {
	logger := sess.Logger.With().Uint64("window", w.Ticket).Logger()

	samples := audio.DecodeMulaw(w.Payload)
	if !d.gate.ContainsSpeech(samples) {
		d.stats.WindowSkipped()
		observability.RecordWindow(outcomeSilent)
		logger.Debug().Msg("Skipping silent window")
		return
	}

	start := time.Now()
	result, err := d.process(pipeline.Input{
		Samples:    samples,
		SourceLang: w.SourceLang,
		TargetLang: w.TargetLang,
	})
	if err != nil {
		stage := pipeline.StageOf(err)
		if stage == "" {
			stage = "pipeline"
		}
		d.stats.Error(string(stage), "dispatcher")
		observability.RecordWindow(outcomeFailed)
		logger.Error().Err(err).Str("stage", string(stage)).Msg("Window processing failed")
		return
	}

	if result.Original != "" {
		sess.AddTranslation(result.Original, result.Translated)
		d.stats.TranslationCompleted()
		logger.Info().
			Str("recognized", result.Original).
			Str("translated", result.Translated).
			Dur("elapsed", time.Since(start)).
			Msg("Window translated")
	}

	if result.Empty() {
		observability.RecordWindow(outcomeEmpty)
		return
	}
	observability.RecordWindow(outcomeDispatched)

	sess.AwaitTurn(w.Ticket)
	sent, err := d.sender.Send(d.ctx, sess, conn, local, result.Audio)
	if err != nil {
		logger.Error().Err(err).Int("packets_sent", sent).Msg("Failed to send translated audio")
		return
	}
	logger.Debug().Int("packets_sent", sent).Msg("Translated audio sent")
}

// process holds a semaphore slot only while the processor runs. A window
// waiting for its egress turn must not hold one.
func (d *Dispatcher) process(in pipeline.Input) (result *pipeline.Result, err error) {
	if err := d.sem.Acquire(d.ctx, 1); err != nil {
		return nil, err
	}
	defer d.sem.Release(1)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pipeline panic: %v", r)
		}
	}()

	ctx := d.ctx
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	result, err = d.processor.Process(ctx, in)
	if err == nil && result == nil {
		result = &pipeline.Result{}
	}
	return result, err
}

// Wait blocks until in-flight windows finish or the timeout passes.
// It reports whether everything finished.
func (d *Dispatcher) Wait(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
