// Package runner coordinates a codification run end to end: fetch
// trials from the registry, codify what is already cached, hand the
// rest to the NLP engines, then harvest their output. Runs are
// resumable because every step is idempotent; rerunning the same
// search picks up stored criteria and codes instead of redoing them.
package runner

import (
	"context"
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mr-tron/base58"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"

	"github.com/trialkit/codify/config"
	"github.com/trialkit/codify/docstore"
	"github.com/trialkit/codify/errors"
	"github.com/trialkit/codify/nlp"
	"github.com/trialkit/codify/pmc"
	"github.com/trialkit/codify/registry"
	"github.com/trialkit/codify/trial"
	"github.com/trialkit/codify/vocab"
)

// StatusDone is the terminal narration of a successful run.
const StatusDone = "done"

// progressEach is how many trials pass between processing updates.
const progressEach = 20

// minFreeGB is the available-memory floor below which a run warns
// before starting engine batches. cTAKES alone wants several GB.
const minFreeGB = 2.0

// DefaultFields is what a run asks the registry for when the caller
// does not narrow the field list. It covers the summary fields the
// trial model reads plus enough metadata to render listings.
var DefaultFields = []string{
	"id",
	"acronym",
	"brief_title",
	"official_title",
	"overall_status",
	"phase",
	"condition",
	"keyword",
	"intervention",
	"location",
	"overall_contact",
	"firstreceived_date",
	"lastchanged_date",
}

// Callback is invoked when a run finishes, before the terminal status
// is published. success is false when an engine batch failed on a
// non-strict run.
type Callback func(success bool, trials []*trial.Trial)

// Searcher finds trials in the registry. *registry.Client implements
// it; tests substitute fixtures.
type Searcher interface {
	SearchForCondition(ctx context.Context, condition string, recruiting registry.Recruiting, fields []string, progress registry.ProgressFunc) ([]*trial.Trial, error)
	SearchForTerm(ctx context.Context, term string, recruiting registry.Recruiting, fields []string, progress registry.ProgressFunc) ([]*trial.Trial, error)
}

// Runner drives one codification run. Configure the exported fields,
// then call Run once. A Runner is not reusable.
type Runner struct {
	ID  string
	Dir string

	// Condition and Term select the registry search; exactly one
	// should be set, and Condition wins when both are.
	Condition string
	Term      string

	// Limit truncates the fetched trial list when positive.
	Limit int

	// Fields overrides DefaultFields when non-empty.
	Fields []string

	// Keypaths are additional Trial fields to analyze alongside the
	// eligibility criteria.
	Keypaths []string

	Engines []nlp.Engine

	// Strict aborts the whole run on the first engine batch failure
	// instead of carrying on with the remaining engines.
	Strict bool

	// InBackground runs on a goroutine and mirrors status updates to
	// <Dir>/<ID>.status so other processes can poll.
	InBackground bool

	// DiscardCached ignores stored criteria and codes, forcing a
	// fresh segmentation and resubmission for every trial.
	DiscardCached bool

	Trials   *docstore.Store
	Runs     *Store
	Registry Searcher
	Finder   *pmc.Finder
	Vocab    config.VocabConfig
	Callback Callback

	logger *zap.SugaredLogger

	mu      sync.RWMutex
	status  string
	subs    map[int]chan string
	nextSub int

	wg  sync.WaitGroup
	row Run
}

// New creates a runner for one run. A nil logger disables logging.
func New(id, dir string, logger *zap.SugaredLogger) *Runner {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Runner{
		ID:     id,
		Dir:    dir,
		logger: logger,
		subs:   make(map[int]chan string),
	}
}

// NewRunID mints a fresh run identifier, short enough for filenames.
func NewRunID() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return "run_" + base58.Encode(buf)
}

// Name describes the run in narration and logs.
func (r *Runner) Name() string {
	return fmt.Sprintf("find '%s'", r.target())
}

func (r *Runner) target() string {
	if r.Condition != "" {
		return r.Condition
	}
	return r.Term
}

// Run executes the run, on the calling goroutine unless InBackground
// is set. Background callers observe completion via Wait, Done or the
// status file.
func (r *Runner) Run(ctx context.Context) error {
	if !r.InBackground {
		return r.run(ctx)
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.run(ctx); err != nil {
			r.logger.Errorw("Run failed", "run", r.ID, "error", err)
		}
	}()
	return nil
}

// Wait blocks until a background run finishes.
func (r *Runner) Wait() {
	r.wg.Wait()
}

func (r *Runner) run(ctx context.Context) error {
	if r.target() == "" {
		return errors.NewConfigurationError("a run needs a condition or a term")
	}
	if r.Trials == nil || r.Registry == nil {
		return errors.AssertionFailedf("runner %s has no trial store or registry client", r.ID)
	}

	r.row = Run{
		ID:        r.ID,
		Condition: r.Condition,
		Term:      r.Term,
		Strict:    r.Strict,
	}
	defer func() {
		now := time.Now()
		r.row.FinishedAt = &now
		r.record()
	}()

	if err := os.MkdirAll(r.Dir, config.DefaultDirPermissions); err != nil {
		return errors.Wrapf(err, "cannot create run directory %s", r.Dir)
	}

	r.setStatus(fmt.Sprintf("Searching for %s trials...", r.target()))

	if err := vocab.CheckDatabases(r.Vocab, r.logger); err != nil {
		return err
	}
	for _, eng := range r.Engines {
		if err := eng.Prepare(); err != nil {
			return err
		}
	}

	trials, err := r.fetch(ctx)
	if err != nil {
		return err
	}
	if r.Limit > 0 && len(trials) > r.Limit {
		trials = trials[:r.Limit]
	}
	r.row.TrialCount = len(trials)

	r.setStatus("Processing...")

	success := true
	var entries []NCTEntry
	toRun := make(map[string]bool)
	for i, t := range trials {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(err, "run interrupted")
		}
		entries = append(entries, NCTEntry{NCT: t.NCT})
		t.AnalyzeKeypaths(r.Keypaths...)

		if err := r.processTrial(ctx, t); err != nil {
			r.setStatus(fmt.Sprintf("Error processing trial: %s", err))
			return err
		}
		for _, name := range t.WaitingForNLP(r.Engines) {
			toRun[name] = true
		}
		if (i+1)%progressEach == 0 {
			r.setStatus(fmt.Sprintf("Processing (%d %%)", (i+1)*100/len(trials)))
		}
	}

	if err := WriteNCTs(r.Dir, r.ID, entries); err != nil {
		return err
	}

	if len(toRun) > 0 {
		r.memoryPressure()
	}
	for _, eng := range r.Engines {
		if !toRun[eng.Name()] {
			continue
		}
		r.setStatus(fmt.Sprintf("Running %s for %d trials (this may take a while)", eng.Name(), len(trials)))
		if err := eng.Run(ctx); err != nil {
			r.setStatus(fmt.Sprintf("Running %s failed: %s", eng.Name(), err))
			if r.Strict {
				return err
			}
			success = false
		}
	}

	stillWaiting := make(map[string]int)
	waitingTrials := make(map[string]bool)
	for _, t := range trials {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(err, "run interrupted")
		}
		if err := t.Codify(ctx, r.Trials, r.Engines, false); err != nil {
			r.setStatus(fmt.Sprintf("Error processing trial: %s", err))
			return err
		}
		for _, name := range t.WaitingForNLP(r.Engines) {
			stillWaiting[name]++
			waitingTrials[t.NCT] = true
		}
	}
	r.row.WaitingCount = len(waitingTrials)
	for name, n := range stillWaiting {
		r.logger.Infow("Trials still waiting for engine output",
			"run", r.ID, "engine", name, "trials", n)
	}

	if r.Callback != nil {
		r.setStatus("Running callback")
		r.Callback(success, trials)
	}
	if success {
		r.setStatus(StatusDone)
	}
	return nil
}

// fetch queries the registry for the run's condition or term,
// narrating download progress.
func (r *Runner) fetch(ctx context.Context) ([]*trial.Trial, error) {
	fields := make([]string, 0, len(r.Fields)+len(r.Keypaths)+1)
	if len(r.Fields) > 0 {
		fields = append(fields, r.Fields...)
	} else {
		fields = append(fields, DefaultFields...)
	}
	fields = append(fields, r.Keypaths...)
	fields = append(fields, "eligibility")

	r.setStatus(fmt.Sprintf("Fetching %s trials...", r.target()))
	progress := func(fraction float64) {
		if fraction > 0 {
			r.setStatus(fmt.Sprintf("Fetching (%d%%)", int(100*fraction)))
		}
	}

	if r.Condition != "" {
		return r.Registry.SearchForCondition(ctx, r.Condition, registry.RecruitingOpen, fields, progress)
	}
	return r.Registry.SearchForTerm(ctx, r.Term, registry.RecruitingOpen, fields, progress)
}

// processTrial stores and codifies one trial. Stored criteria and
// codes from earlier runs are adopted first so the registry's fresh
// copy does not clobber work already done.
func (r *Runner) processTrial(ctx context.Context, t *trial.Trial) error {
	if !r.DiscardCached {
		r.adoptStored(t)
	}

	if r.Finder != nil {
		if dir, ok := r.ctakesInputDir(); ok {
			if _, err := r.Finder.Process(ctx, t, r.Dir, dir); err != nil {
				if ctx.Err() != nil {
					return err
				}
				r.logger.Warnw("Publication retrieval failed", "nct", t.NCT, "error", err)
			}
		}
	}

	if err := r.Trials.Save(t.NCT, t); err != nil {
		return err
	}
	return t.Codify(ctx, r.Trials, r.Engines, r.DiscardCached)
}

// adoptStored copies prior criteria, codes and engine flags from the
// stored trial document onto the freshly fetched one.
func (r *Runner) adoptStored(t *trial.Trial) {
	prior, err := trial.FromStore(r.Trials, t.NCT)
	if err != nil {
		if !errors.Is(err, errors.ErrNotFound) {
			r.logger.Warnw("Stored trial unreadable, processing fresh", "nct", t.NCT, "error", err)
		}
		return
	}
	if prior.Eligibility != nil && len(prior.Eligibility.Criteria) > 0 {
		t.Eligibility = prior.Eligibility
	}
	if codified, ok := prior.Extra["_codified"]; ok {
		if t.Extra == nil {
			t.Extra = make(map[string]any)
		}
		t.Extra["_codified"] = codified
	}
	if prior.WaitingForCTakesPMC {
		t.WaitingForCTakesPMC = true
	}
}

// ctakesInputDir finds the input directory of the cTAKES engine, when
// one is configured. Publication methods sections only feed cTAKES.
func (r *Runner) ctakesInputDir() (string, bool) {
	for _, eng := range r.Engines {
		if eng.Name() != nlp.KindCTakes {
			continue
		}
		if p, ok := eng.(interface{ InputDir() string }); ok {
			return p.InputDir(), true
		}
	}
	return "", false
}

// memoryPressure warns when available memory is low enough that
// engine batches are likely to thrash.
func (r *Runner) memoryPressure() {
	v, err := mem.VirtualMemory()
	if err != nil {
		return
	}
	availGB := float64(v.Available) / (1 << 30)
	if availGB < minFreeGB {
		r.logger.Warnf("%.1fGB of %.1fGB available, engine batches may thrash below %.0fGB",
			availGB, float64(v.Total)/(1<<30), minFreeGB)
	}
}

// setStatus publishes a narration line: log, in-memory state,
// subscribers, the run row and, in background mode, the status file.
func (r *Runner) setStatus(status string) {
	r.logger.Infof("%s: %s", r.Name(), status)

	r.mu.Lock()
	r.status = status
	for _, ch := range r.subs {
		select {
		case ch <- status:
		default:
		}
	}
	r.mu.Unlock()

	if r.InBackground {
		if err := os.WriteFile(r.statusPath(), []byte(status+"\n"), config.DefaultFilePermissions); err != nil {
			r.logger.Warnw("Cannot write status file", "run", r.ID, "error", err)
		}
	}

	r.row.Status = status
	r.record()
}

func (r *Runner) record() {
	if r.Runs == nil {
		return
	}
	if err := r.Runs.Record(&r.row); err != nil {
		r.logger.Warnw("Cannot record run", "run", r.ID, "error", err)
	}
}

// Status returns the latest narration. When this process never set
// one, it falls back to the status file a background run left behind.
func (r *Runner) Status() string {
	r.mu.RLock()
	status := r.status
	r.mu.RUnlock()
	if status != "" {
		return status
	}

	raw, err := os.ReadFile(r.statusPath())
	if err != nil {
		return ""
	}
	line, _, _ := strings.Cut(string(raw), "\n")
	return strings.TrimSpace(line)
}

// Done reports whether the run reached its terminal status.
func (r *Runner) Done() bool {
	return r.Status() == StatusDone
}

func (r *Runner) statusPath() string {
	return filepath.Join(r.Dir, r.ID+".status")
}

// Subscribe returns a channel of narration updates and a cancel
// function. Slow subscribers miss updates rather than stall the run.
func (r *Runner) Subscribe() (<-chan string, func()) {
	ch := make(chan string, 16)

	r.mu.Lock()
	id := r.nextSub
	r.nextSub++
	if r.subs == nil {
		r.subs = make(map[int]chan string)
	}
	r.subs[id] = ch
	r.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.subs, id)
			close(ch)
			r.mu.Unlock()
		})
	}
	return ch, cancel
}
