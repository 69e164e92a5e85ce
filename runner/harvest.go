package runner

import (
	"context"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/trialkit/codify/errors"
	"github.com/trialkit/codify/trial"
)

// harvestDebounce coalesces bursts of output files into one pass.
const harvestDebounce = 500 * time.Millisecond

// Harvester watches a run's engine output directories and re-drives
// codification as results arrive. It serves runs that finished with
// trials still waiting on an engine that deposits output later,
// typically a cTAKES instance operated out of band. Start it after
// Run has returned; it stops itself once no trial is waiting.
type Harvester struct {
	runner  *Runner
	ncts    []NCTEntry
	watcher *fsnotify.Watcher
	kick    chan struct{}

	mu    sync.Mutex
	timer *time.Timer

	stop sync.Once
	done chan struct{}
	wg   sync.WaitGroup
}

// NewHarvester builds a harvester over the run's trial list and the
// output directories of its engines.
func (r *Runner) NewHarvester() (*Harvester, error) {
	ncts, err := ReadNCTs(r.Dir, r.ID)
	if err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "cannot create output watcher")
	}

	watched := 0
	for _, eng := range r.Engines {
		p, ok := eng.(interface{ OutputDir() string })
		if !ok {
			continue
		}
		if err := watcher.Add(p.OutputDir()); err != nil {
			r.logger.Warnw("Cannot watch engine output", "engine", eng.Name(), "error", err)
			continue
		}
		watched++
	}
	if watched == 0 {
		watcher.Close()
		return nil, errors.NewConfigurationError("no engine output directory to watch")
	}

	return &Harvester{
		runner:  r,
		ncts:    ncts,
		watcher: watcher,
		kick:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}, nil
}

// Start begins watching. An immediate pass picks up output that
// arrived before the watcher did.
func (h *Harvester) Start(ctx context.Context) {
	h.kick <- struct{}{}
	h.wg.Add(1)
	go h.loop(ctx)
}

// Stop ends the watch and waits for a pass in flight.
func (h *Harvester) Stop() {
	h.stop.Do(func() { close(h.done) })
	h.watcher.Close()
	h.wg.Wait()
}

func (h *Harvester) loop(ctx context.Context) {
	defer func() {
		h.mu.Lock()
		if h.timer != nil {
			h.timer.Stop()
		}
		h.mu.Unlock()
		h.watcher.Close()
		h.wg.Done()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-h.kick:
			if h.harvest(ctx) == 0 {
				return
			}
		case event, ok := <-h.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				h.schedule()
			}
		case err, ok := <-h.watcher.Errors:
			if !ok {
				return
			}
			h.runner.logger.Warnw("Output watcher error", "run", h.runner.ID, "error", err)
		}
	}
}

// schedule arms the debounce timer, restarting it when output is
// still being flushed.
func (h *Harvester) schedule() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.timer != nil {
		h.timer.Stop()
	}
	h.timer = time.AfterFunc(harvestDebounce, func() {
		select {
		case h.kick <- struct{}{}:
		default:
		}
	})
}

// harvest re-codifies every trial of the run and returns how many are
// still waiting on an engine.
func (h *Harvester) harvest(ctx context.Context) int {
	waiting := 0
	for _, e := range h.ncts {
		if ctx.Err() != nil {
			return waiting
		}
		t, err := trial.FromStore(h.runner.Trials, e.NCT)
		if err != nil {
			h.runner.logger.Warnw("Cannot load trial for harvest", "nct", e.NCT, "error", err)
			continue
		}
		t.AnalyzeKeypaths(h.runner.Keypaths...)
		if err := t.Codify(ctx, h.runner.Trials, h.runner.Engines, false); err != nil {
			h.runner.logger.Warnw("Harvest failed", "nct", e.NCT, "error", err)
			waiting++
			continue
		}
		if len(t.WaitingForNLP(h.runner.Engines)) > 0 {
			waiting++
		}
	}

	h.runner.logger.Infow("Harvest pass finished", "run", h.runner.ID, "waiting", waiting)
	h.recordWaiting(waiting)
	return waiting
}

// recordWaiting refreshes the run row so listings reflect output that
// arrived after the run finished.
func (h *Harvester) recordWaiting(waiting int) {
	if h.runner.Runs == nil {
		return
	}
	row, err := h.runner.Runs.Get(h.runner.ID)
	if err != nil {
		h.runner.logger.Warnw("Cannot load run for harvest update", "run", h.runner.ID, "error", err)
		return
	}
	row.WaitingCount = waiting
	if err := h.runner.Runs.Record(row); err != nil {
		h.runner.logger.Warnw("Cannot record run", "run", h.runner.ID, "error", err)
	}
}
