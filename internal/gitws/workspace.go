// Package gitws drives git against a working tree: clone/branch/checkout/
// commit/reset/push plus the squash flow that folds a job's atomic branch
// into the fixed work branch. All operations shell out to the configured git
// binary; stderr is attached to every failure.
package gitws

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"

	"levelup/internal/logging"
)

// WorkBranch is the fixed branch all accepted edits are squashed onto.
const WorkBranch = "levelup-work"

// ErrNothingToCommit is returned by Commit when the tree is clean.
var ErrNothingToCommit = errors.New("nothing to commit")

// Workspace owns one repository clone. The single job worker holds it
// exclusively while a job runs; the file lock guards against a second
// LevelUp process sharing the workspace.
type Workspace struct {
	URL          string
	Path         string
	PostCheckout string

	gitPath string
	lock    *flock.Flock
}

// New derives the local path from the sanitized repository name and builds a
// workspace handle. Nothing touches the filesystem yet.
func New(url, reposDir, gitPath, postCheckout string) *Workspace {
	name := SanitizeDirName(RepoName(url))
	path := filepath.Join(reposDir, name)
	return &Workspace{
		URL:          url,
		Path:         path,
		PostCheckout: postCheckout,
		gitPath:      gitPath,
		lock:         flock.New(path + ".lock"),
	}
}

// RepoName extracts the repository name: the last URL segment with any .git
// suffix stripped.
func RepoName(url string) string {
	url = strings.TrimRight(url, "/")
	url = strings.TrimSuffix(url, ".git")
	if i := strings.LastIndex(url, "/"); i >= 0 {
		return url[i+1:]
	}
	return url
}

// TryLock acquires the workspace lock without blocking.
func (w *Workspace) TryLock() (bool, error) {
	if err := os.MkdirAll(filepath.Dir(w.Path), 0755); err != nil {
		return false, err
	}
	return w.lock.TryLock()
}

// Unlock releases the workspace lock.
func (w *Workspace) Unlock() error {
	return w.lock.Unlock()
}

// runGit executes one git command in the repository.
func (w *Workspace) runGit(ctx context.Context, args ...string) (string, error) {
	return w.runGitIn(ctx, w.Path, args...)
}

func (w *Workspace) runGitIn(ctx context.Context, dir string, args ...string) (string, error) {
	logging.GitDebug("git %s", strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, w.gitPath, args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		logging.Get(logging.CategoryGit).Error("git %s failed: %s", strings.Join(args, " "), strings.TrimSpace(stderr.String()))
		return "", fmt.Errorf("git %s failed: %w\n%s", args[0], err, stderr.String())
	}
	out := strings.TrimSpace(stdout.String())
	if out != "" {
		logging.GitDebug("git output: %.200s", out)
	}
	return out, nil
}

// Clone clones the repository to its local path.
func (w *Workspace) Clone(ctx context.Context) error {
	logging.Git("Cloning %s to %s", w.URL, w.Path)
	if err := os.MkdirAll(filepath.Dir(w.Path), 0755); err != nil {
		return err
	}
	_, err := w.runGitIn(ctx, filepath.Dir(w.Path), "clone", w.URL, w.Path)
	return err
}

// EnsureCloned clones when the local path is missing; otherwise checks out
// the default branch and pulls. The default branch is discovered by trying
// main then master.
func (w *Workspace) EnsureCloned(ctx context.Context) error {
	if _, err := os.Stat(w.Path); os.IsNotExist(err) {
		return w.Clone(ctx)
	}

	if _, err := w.runGit(ctx, "checkout", "main"); err != nil {
		logging.GitDebug("'main' not found, trying 'master'")
		if _, err := w.runGit(ctx, "checkout", "master"); err != nil {
			return err
		}
	}
	_, err := w.runGit(ctx, "pull")
	return err
}

// Checkout switches branches, optionally creating the branch first, and
// runs the post-checkout hook.
func (w *Workspace) Checkout(ctx context.Context, branch string, create bool) error {
	if create && !w.branchExists(ctx, branch) {
		if _, err := w.runGit(ctx, "checkout", "-b", branch); err != nil {
			return err
		}
	} else {
		if _, err := w.runGit(ctx, "checkout", branch); err != nil {
			return err
		}
	}
	return w.runPostCheckout(ctx)
}

func (w *Workspace) branchExists(ctx context.Context, branch string) bool {
	out, err := w.runGit(ctx, "branch", "-a")
	return err == nil && strings.Contains(out, branch)
}

// PrepareWorkBranch creates-or-checks-out the fixed work branch.
func (w *Workspace) PrepareWorkBranch(ctx context.Context) error {
	return w.Checkout(ctx, WorkBranch, true)
}

// runPostCheckout executes the configured hook command in the repository
// root. Hook failure is a workspace error.
func (w *Workspace) runPostCheckout(ctx context.Context) error {
	if w.PostCheckout == "" {
		return nil
	}
	logging.GitDebug("Running post-checkout hook: %s", w.PostCheckout)

	cmd := exec.CommandContext(ctx, "sh", "-c", w.PostCheckout)
	cmd.Dir = w.Path

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("post-checkout hook failed: %w\n%s", err, stderr.String())
	}
	return nil
}

// CreateAtomicBranch branches off base and checks the new branch out.
func (w *Workspace) CreateAtomicBranch(ctx context.Context, base, name string) error {
	if _, err := w.runGit(ctx, "checkout", base); err != nil {
		return err
	}
	_, err := w.runGit(ctx, "checkout", "-b", name)
	return err
}

// Commit stages all changes and commits them. Returns ErrNothingToCommit
// when the tree is clean.
func (w *Workspace) Commit(ctx context.Context, message string) (string, error) {
	if _, err := w.runGit(ctx, "add", "-A"); err != nil {
		return "", err
	}
	status, err := w.runGit(ctx, "status", "--porcelain")
	if err != nil {
		return "", err
	}
	if status == "" {
		return "", ErrNothingToCommit
	}
	if _, err := w.runGit(ctx, "commit", "-m", message); err != nil {
		return "", err
	}
	return w.CommitHash(ctx, "HEAD")
}

// ResetHard resets the working tree to ref.
func (w *Workspace) ResetHard(ctx context.Context, ref string) error {
	_, err := w.runGit(ctx, "reset", "--hard", ref)
	return err
}

// SquashAndRebase folds every commit on the atomic branch into a single
// commit on top of the work branch, then deletes the atomic branch.
func (w *Workspace) SquashAndRebase(ctx context.Context, atomic, work, message string) error {
	logging.Git("Squashing %s onto %s", atomic, work)

	if _, err := w.runGit(ctx, "checkout", work); err != nil {
		return err
	}
	if _, err := w.runGit(ctx, "merge", "--squash", atomic); err != nil {
		return err
	}
	if _, err := w.runGit(ctx, "commit", "-m", message); err != nil {
		return err
	}
	return w.DeleteBranch(ctx, atomic, true)
}

// Push pushes a branch to origin, setting the upstream.
func (w *Workspace) Push(ctx context.Context, branch string) error {
	logging.Git("Pushing %s to origin", branch)
	_, err := w.runGit(ctx, "push", "-u", "origin", branch)
	return err
}

// DeleteBranch removes a local branch.
func (w *Workspace) DeleteBranch(ctx context.Context, name string, force bool) error {
	flag := "-d"
	if force {
		flag = "-D"
	}
	_, err := w.runGit(ctx, "branch", flag, name)
	return err
}

// CherryPick applies one commit onto the current branch. Used only for
// COMMIT-sourced mods.
func (w *Workspace) CherryPick(ctx context.Context, hash string) error {
	_, err := w.runGit(ctx, "cherry-pick", hash)
	return err
}

// CherryPickNoCommit stages a commit's changes without committing, so the
// engine's own commit-or-revert cycle stays in charge.
func (w *Workspace) CherryPickNoCommit(ctx context.Context, hash string) error {
	_, err := w.runGit(ctx, "cherry-pick", "--no-commit", hash)
	return err
}

// CurrentBranch returns the checked-out branch name.
func (w *Workspace) CurrentBranch(ctx context.Context) (string, error) {
	return w.runGit(ctx, "rev-parse", "--abbrev-ref", "HEAD")
}

// CommitHash resolves a ref to its hash.
func (w *Workspace) CommitHash(ctx context.Context, ref string) (string, error) {
	return w.runGit(ctx, "rev-parse", ref)
}

// IsClean reports whether the working tree has no uncommitted changes.
func (w *Workspace) IsClean(ctx context.Context) (bool, error) {
	status, err := w.runGit(ctx, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	return status == "", nil
}

// ChangedFiles lists the files a commit touched, relative to the repo root.
func (w *Workspace) ChangedFiles(ctx context.Context, ref string) ([]string, error) {
	out, err := w.runGit(ctx, "diff-tree", "--no-commit-id", "--name-only", "-r", ref)
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}
