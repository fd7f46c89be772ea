package jobs

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"levelup/internal/compiler"
	"levelup/internal/config"
	"levelup/internal/edits"
	"levelup/internal/engine"
	"levelup/internal/gitws"
	"levelup/internal/logging"
	"levelup/internal/result"
	"levelup/internal/store"
	"levelup/internal/symbols"
)

// queueCapacity bounds the submission backlog. Submission never blocks the
// caller; a full queue is reported as an error instead.
const queueCapacity = 256

// Executor is the single-writer queue processor. It owns one compiler
// driver and creates a fresh git workspace per job. Results progress
// monotonically through the status lattice and are mirrored into the store
// on terminal states.
type Executor struct {
	cfg    *config.Config
	tools  *config.Tools
	driver compiler.Driver
	repos  *config.RepoRegistry
	store  *store.Store

	queue chan Request

	mu      sync.RWMutex
	results map[string]result.Result

	wg   sync.WaitGroup
	once sync.Once
}

// New builds an executor. store may be nil (no persistence).
func New(cfg *config.Config, tools *config.Tools, driver compiler.Driver, repos *config.RepoRegistry, st *store.Store) *Executor {
	e := &Executor{
		cfg:     cfg,
		tools:   tools,
		driver:  driver,
		repos:   repos,
		store:   st,
		queue:   make(chan Request, queueCapacity),
		results: make(map[string]result.Result),
	}
	if st != nil {
		// Earlier runs stay visible in /queue/status across restarts.
		if prior, err := st.All(); err == nil {
			for id, res := range prior {
				e.results[id] = res
			}
		}
	}
	return e
}

// Start launches the worker goroutine.
func (e *Executor) Start() {
	e.once.Do(func() {
		e.wg.Add(1)
		go e.worker()
	})
}

// Stop closes the queue and waits for the worker to finish every job
// already queued.
func (e *Executor) Stop() {
	close(e.queue)
	e.wg.Wait()
}

// Submit enqueues a request and returns immediately. The returned error
// covers validation and a full queue only; job failures surface as ERROR
// results.
func (e *Executor) Submit(req Request) error {
	if err := req.Validate(); err != nil {
		return result.Wrap(result.KindConfig, err)
	}
	// Resolve the mod id eagerly so unknown ids fail the submission, not
	// the worker.
	if req.Source == SourceBuiltin {
		if _, err := edits.FromID(req.ModID); err != nil {
			return result.Wrap(result.KindConfig, err)
		}
	}

	e.setResult(req.ID, result.New(result.StatusQueued, "Mod queued for processing"))

	select {
	case e.queue <- req:
		logging.Queue("Queued mod %s (%s)", req.ID, req.Description)
		return nil
	default:
		e.dropResult(req.ID)
		return result.Errorf(result.KindInternal, "queue full (%d pending)", queueCapacity)
	}
}

// Result returns the current result for a mod id.
func (e *Executor) Result(id string) (result.Result, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	res, ok := e.results[id]
	return res, ok
}

// All returns a copy of every known result.
func (e *Executor) All() map[string]result.Result {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]result.Result, len(e.results))
	for k, v := range e.results {
		out[k] = v
	}
	return out
}

// QueueDepth returns the number of pending requests.
func (e *Executor) QueueDepth() int {
	return len(e.queue)
}

func (e *Executor) setResult(id string, res result.Result) {
	e.mu.Lock()
	e.results[id] = res
	e.mu.Unlock()

	if e.store != nil && res.Status.Terminal() {
		if err := e.store.Put(id, res); err != nil {
			logging.Get(logging.CategoryStore).Error("failed to persist result %s: %v", id, err)
		}
	}
}

func (e *Executor) dropResult(id string) {
	e.mu.Lock()
	delete(e.results, id)
	e.mu.Unlock()
}

// worker drains the queue until Stop. It never exits on a job error:
// panics and failures become ERROR results and the loop resumes.
func (e *Executor) worker() {
	defer e.wg.Done()
	for req := range e.queue {
		e.runOne(req)
	}
}

func (e *Executor) runOne(req Request) {
	defer func() {
		if r := recover(); r != nil {
			logging.Get(logging.CategoryQueue).Error("panic in job %s: %v", req.ID, r)
			e.setResult(req.ID, result.New(result.StatusError, fmt.Sprintf("internal error: %v", r)))
		}
	}()

	logging.Queue("Processing mod %s: %s", req.ID, req.Description)
	e.setResult(req.ID, result.New(result.StatusProcessing, "Starting mod processing"))

	res, err := e.process(context.Background(), req)
	if err != nil {
		logging.Get(logging.CategoryQueue).Error("job %s failed: %v", req.ID, err)
		e.setResult(req.ID, result.New(result.StatusError, err.Error()))
		return
	}
	e.setResult(req.ID, res)
}

// process runs one mod end-to-end against a fresh workspace.
func (e *Executor) process(ctx context.Context, req Request) (result.Result, error) {
	postCheckout := ""
	if e.repos != nil {
		if cfg, err := e.repos.FindByURL(req.RepoURL); err == nil && cfg != nil {
			postCheckout = cfg.PostCheckout
		}
	}

	ws := gitws.New(req.RepoURL, e.cfg.ReposDir(), e.tools.GitPath(), postCheckout)

	locked, err := ws.TryLock()
	if err != nil {
		return result.Result{}, result.Wrap(result.KindWorkspace, err)
	}
	if !locked {
		return result.Result{}, result.Errorf(result.KindWorkspace, "workspace %s is locked by another process", ws.Path)
	}
	defer ws.Unlock()

	if err := ws.EnsureCloned(ctx); err != nil {
		return result.Result{}, result.Wrap(result.KindWorkspace, err)
	}
	if err := ws.PrepareWorkBranch(ctx); err != nil {
		return result.Result{}, result.Wrap(result.KindWorkspace, err)
	}

	table := e.loadSymbols(ctx, ws)

	var stream *edits.Stream
	var modName string
	switch req.Source {
	case SourceBuiltin:
		gen, err := edits.FromID(req.ModID)
		if err != nil {
			return result.Result{}, result.Wrap(result.KindConfig, err)
		}
		modName = gen.Name()
		stream = gen.Generate(ws.Path, table)
	case SourceCommit:
		modName = "Validate Commit " + shortHash(req.CommitHash)
		stream, err = e.commitStream(ctx, ws, req.CommitHash)
		if err != nil {
			return result.Result{}, result.Wrap(result.KindWorkspace, err)
		}
	}

	eng := engine.New(e.driver, ws, table, e.cfg.Engine.BatchThreshold)
	res, err := eng.Run(ctx, req.ID, modName, stream)
	if err != nil {
		// The engine already rolled the tree back; make doubly sure the
		// workspace is clean before the next job.
		if rerr := ws.ResetHard(ctx, "HEAD"); rerr != nil {
			logging.Get(logging.CategoryQueue).Error("post-error reset failed: %v", rerr)
		}
		return result.Result{}, err
	}
	return res, nil
}

// loadSymbols prepares the symbol table via Doxygen. Failure is tolerated:
// generators that need symbols simply find none, and the error is logged.
func (e *Executor) loadSymbols(ctx context.Context, ws *gitws.Workspace) *symbols.Table {
	table := symbols.NewTable()

	repoName := gitws.RepoName(ws.URL)
	outputDir := filepath.Join(e.cfg.Workspace, "doxygen", gitws.SanitizeDirName(repoName))

	runner := symbols.NewRunner(e.tools.DoxygenPath())
	dirs, err := runner.Run(ctx, ws.Path, outputDir, repoName)
	if err != nil {
		logging.Get(logging.CategorySymbols).Warn("Doxygen run failed, continuing without symbols: %v", err)
		return table
	}

	syms, err := symbols.NewParser(dirs).ParseAll()
	if err != nil {
		logging.Get(logging.CategorySymbols).Warn("Doxygen parse failed, continuing without symbols: %v", err)
		return table
	}
	table.Load(syms)
	return table
}

// commitStream wraps a developer commit in a single edit: stage the change
// with cherry-pick --no-commit and let the engine validate the touched
// translation units.
func (e *Executor) commitStream(ctx context.Context, ws *gitws.Workspace, hash string) (*edits.Stream, error) {
	changed, err := ws.ChangedFiles(ctx, hash)
	if err != nil {
		return nil, err
	}

	var paths, compileFiles []string
	for _, f := range changed {
		abs := filepath.Join(ws.Path, f)
		paths = append(paths, abs)
		if isTranslationUnit(f) {
			compileFiles = append(compileFiles, abs)
		}
	}

	edit := &edits.Edit{
		Paths:        paths,
		CompileFiles: compileFiles,
		Message:      "Apply commit " + shortHash(hash),
		ValidatorID:  e.cfg.DefaultValidator,
		Probability:  0.5,
		Apply: func() error {
			return ws.CherryPickNoCommit(ctx, hash)
		},
	}
	return edits.NewStream([]*edits.Edit{edit}), nil
}

func isTranslationUnit(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".cpp", ".cxx", ".cc", ".c":
		return true
	}
	return false
}

func shortHash(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	return hash
}
