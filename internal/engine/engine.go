// Package engine implements the per-mod atomic commit loop: snapshot, compile,
// apply, compile again, consult the oracle, then commit or revert. Accepted edits
// land one commit each on a transient atomic branch that is squashed onto
// the work branch when the mod finishes.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"levelup/internal/compiler"
	"levelup/internal/edits"
	"levelup/internal/gitws"
	"levelup/internal/logging"
	"levelup/internal/oracle"
	"levelup/internal/result"
	"levelup/internal/symbols"
)

// GitOps is the slice of the git workspace the engine drives.
type GitOps interface {
	CreateAtomicBranch(ctx context.Context, base, name string) error
	Commit(ctx context.Context, message string) (string, error)
	Checkout(ctx context.Context, branch string, create bool) error
	SquashAndRebase(ctx context.Context, atomic, work, message string) error
	Push(ctx context.Context, branch string) error
	DeleteBranch(ctx context.Context, name string, force bool) error
	ResetHard(ctx context.Context, ref string) error
}

// Engine validates and commits one mod's edit stream.
type Engine struct {
	driver compiler.Driver
	git    GitOps
	table  *symbols.Table

	// batchThreshold > 0 enables probability-gated batching: consecutive
	// edits share one compile-and-validate cycle while the product of their
	// success probabilities stays at or above the threshold. Zero validates
	// every edit individually.
	batchThreshold float64
}

// New builds an engine over one repository's collaborators.
func New(driver compiler.Driver, git GitOps, table *symbols.Table, batchThreshold float64) *Engine {
	return &Engine{driver: driver, git: git, table: table, batchThreshold: batchThreshold}
}

// snapshot retains the original bytes of every file a batch touches. A nil
// entry records that the file did not exist.
type snapshot map[string]*[]byte

func takeSnapshot(paths []string, into snapshot) error {
	for _, p := range paths {
		if _, ok := into[p]; ok {
			continue
		}
		data, err := os.ReadFile(p)
		if err != nil {
			if os.IsNotExist(err) {
				into[p] = nil
				continue
			}
			return fmt.Errorf("failed to snapshot %s: %w", p, err)
		}
		buf := append([]byte(nil), data...)
		into[p] = &buf
	}
	return nil
}

// restore puts every touched file back byte-for-byte.
func (s snapshot) restore() error {
	var firstErr error
	for path, data := range s {
		var err error
		if data == nil {
			err = os.Remove(path)
			if os.IsNotExist(err) {
				err = nil
			}
		} else {
			err = os.WriteFile(path, *data, 0644)
		}
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Run drains the edit stream for one mod and finalizes the atomic branch.
// Per-edit failures (compilation, oracle mismatch) become rejections; any
// other failure rolls the working tree back and returns an error.
func (e *Engine) Run(ctx context.Context, modID, modName string, stream *edits.Stream) (result.Result, error) {
	atomicBranch := "levelup-atomic-" + modID

	if err := e.git.CreateAtomicBranch(ctx, gitws.WorkBranch, atomicBranch); err != nil {
		return result.Result{}, result.Wrap(result.KindWorkspace, err)
	}

	var accepted, rejected []string
	var validations []result.Validation

	runErr := e.drain(ctx, stream, &accepted, &rejected, &validations)

	if runErr != nil {
		// Best-effort rollback: the per-edit snapshot is already restored;
		// drop the atomic branch and return to the work branch.
		e.cleanup(ctx, atomicBranch)
		return result.Result{}, runErr
	}

	if err := e.finalize(ctx, atomicBranch, modName, accepted); err != nil {
		e.cleanup(ctx, atomicBranch)
		return result.Result{}, err
	}

	res := result.New(result.Aggregate(len(accepted), len(rejected)), modName)
	res.AcceptedCommits = accepted
	res.RejectedCommits = rejected
	res.Validations = validations
	logging.Engine("Mod %s finished: %s (%d accepted, %d rejected)", modID, res.Status, len(accepted), len(rejected))
	return res, nil
}

// drain pulls edits, grouping them into probability-gated batches.
func (e *Engine) drain(ctx context.Context, stream *edits.Stream, accepted, rejected *[]string, validations *[]result.Validation) error {
	var batch []*edits.Edit
	product := 1.0

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		err := e.processBatch(ctx, batch, accepted, rejected, validations)
		batch = nil
		product = 1.0
		return err
	}

	for {
		edit, err := stream.Next()
		if err != nil {
			if flushErr := flush(); flushErr != nil {
				return flushErr
			}
			return result.Wrap(result.KindInternal, err)
		}
		if edit == nil {
			return flush()
		}

		if e.batchThreshold <= 0 || product*edit.Probability < e.batchThreshold {
			if err := flush(); err != nil {
				return err
			}
		}
		batch = append(batch, edit)
		product *= edit.Probability
	}
}

// processBatch validates a batch in one compile-and-validate cycle and
// commits or rolls back the whole batch atomically. The default
// configuration keeps batches at size one.
func (e *Engine) processBatch(ctx context.Context, batch []*edits.Edit, accepted, rejected *[]string, validations *[]result.Validation) error {
	snap := make(snapshot)
	profile, err := oracle.ProfileFromID(batch[0].ValidatorID)
	if err != nil {
		return result.Wrap(result.KindConfig, err)
	}

	// Touched files and the units to validate, in batch order.
	var compileFiles []string
	seen := make(map[string]bool)
	for _, ed := range batch {
		if err := takeSnapshot(ed.Paths, snap); err != nil {
			return result.Wrap(result.KindInternal, err)
		}
		for _, f := range ed.CompileFiles {
			if !seen[f] {
				seen[f] = true
				compileFiles = append(compileFiles, f)
			}
		}
	}

	reject := func(messages []string) error {
		if err := snap.restore(); err != nil {
			return result.Wrap(result.KindInternal, err)
		}
		*rejected = append(*rejected, messages...)
		for _, f := range compileFiles {
			*validations = append(*validations, result.Validation{File: f, Valid: false})
		}
		return nil
	}

	// Baseline artifacts before anything mutates.
	baselines := make(map[string]*compiler.Artifact, len(compileFiles))
	for _, f := range compileFiles {
		art, err := e.driver.Compile(ctx, f, profile.OptLevel)
		if err != nil {
			var cerr *compiler.CompilationError
			if errors.As(err, &cerr) {
				logging.Engine("Baseline compile failed for %s, rejecting batch", f)
				return reject([]string{stderrFirstLine(cerr)})
			}
			return result.Wrap(result.KindInternal, err)
		}
		baselines[f] = art
	}

	// Apply every edit in order.
	for _, ed := range batch {
		if err := ed.Apply(); err != nil {
			if rerr := snap.restore(); rerr != nil {
				return result.Wrap(result.KindInternal, rerr)
			}
			return result.Wrap(result.KindInternal, err)
		}
	}

	// Compile again and consult the oracle per unit.
	for _, f := range compileFiles {
		art, err := e.driver.Compile(ctx, f, profile.OptLevel)
		if err != nil {
			var cerr *compiler.CompilationError
			if errors.As(err, &cerr) {
				logging.Engine("Modified compile failed for %s, rejecting batch", f)
				return reject([]string{stderrFirstLine(cerr)})
			}
			if rerr := snap.restore(); rerr != nil {
				return result.Wrap(result.KindInternal, rerr)
			}
			return result.Wrap(result.KindInternal, err)
		}
		if !oracle.Equivalent(baselines[f].Asm, art.Asm) {
			logging.Engine("Oracle rejected %s", f)
			return reject(messagesOf(batch))
		}
	}

	// Accepted: one commit per batch.
	if _, err := e.git.Commit(ctx, strings.Join(messagesOf(batch), "\n")); err != nil {
		if errors.Is(err, gitws.ErrNothingToCommit) {
			// The edits left the tree unchanged; drop them silently.
			logging.EngineDebug("Batch left no changes, dropping silently")
			return nil
		}
		if rerr := snap.restore(); rerr != nil {
			return result.Wrap(result.KindInternal, rerr)
		}
		return result.Wrap(result.KindWorkspace, err)
	}

	*accepted = append(*accepted, messagesOf(batch)...)
	for _, f := range compileFiles {
		*validations = append(*validations, result.Validation{File: f, Valid: true})
	}
	for _, ed := range batch {
		for _, p := range ed.Paths {
			e.table.MarkDirty(p)
		}
		if ed.OnAccepted != nil {
			ed.OnAccepted()
		}
	}
	return nil
}

// finalize squash-rebases accepted work onto the work branch, or deletes the
// atomic branch when nothing was accepted.
func (e *Engine) finalize(ctx context.Context, atomicBranch, modName string, accepted []string) error {
	if len(accepted) > 0 {
		logging.Engine("Squashing %d commits onto %s", len(accepted), gitws.WorkBranch)
		message := modName + "\n\n" + strings.Join(accepted, "\n")
		if err := e.git.SquashAndRebase(ctx, atomicBranch, gitws.WorkBranch, message); err != nil {
			return result.Wrap(result.KindWorkspace, err)
		}
		if err := e.git.Push(ctx, gitws.WorkBranch); err != nil {
			return result.Wrap(result.KindWorkspace, err)
		}
		return nil
	}

	logging.Engine("No accepted commits, cleaning up atomic branch")
	if err := e.git.Checkout(ctx, gitws.WorkBranch, false); err != nil {
		return result.Wrap(result.KindWorkspace, err)
	}
	if err := e.git.DeleteBranch(ctx, atomicBranch, true); err != nil {
		return result.Wrap(result.KindWorkspace, err)
	}
	return nil
}

// cleanup is the best-effort error path: reset the tree, return to the work
// branch, force-delete the atomic branch.
func (e *Engine) cleanup(ctx context.Context, atomicBranch string) {
	if err := e.git.ResetHard(ctx, "HEAD"); err != nil {
		logging.Get(logging.CategoryEngine).Error("cleanup reset failed: %v", err)
	}
	if err := e.git.Checkout(ctx, gitws.WorkBranch, false); err != nil {
		logging.Get(logging.CategoryEngine).Error("cleanup checkout failed: %v", err)
	}
	if err := e.git.DeleteBranch(ctx, atomicBranch, true); err != nil {
		logging.Get(logging.CategoryEngine).Error("cleanup branch delete failed: %v", err)
	}
}

func messagesOf(batch []*edits.Edit) []string {
	out := make([]string, len(batch))
	for i, ed := range batch {
		out[i] = ed.Message
	}
	return out
}

func stderrFirstLine(cerr *compiler.CompilationError) string {
	for _, line := range strings.Split(cerr.Stderr, "\n") {
		if t := strings.TrimSpace(line); t != "" {
			return t
		}
	}
	return cerr.Error()
}
