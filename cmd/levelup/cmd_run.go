package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"levelup/internal/compiler"
	"levelup/internal/config"
	"levelup/internal/jobs"
)

var (
	runRepoURL string
	runModID   string
	runCommit  string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one mod against a repository and print the result",
	RunE: func(cmd *cobra.Command, args []string) error {
		if runModID == "" && runCommit == "" {
			return fmt.Errorf("one of --mod or --commit is required")
		}

		cfg, err := config.Load(workspace)
		if err != nil {
			return err
		}
		tools, err := config.LoadTools(cfg.Workspace)
		if err != nil {
			return err
		}
		driver, err := compiler.New(cfg.Compiler, tools, cfg.Workspace)
		if err != nil {
			return fmt.Errorf("compiler setup failed: %w", err)
		}

		repos := config.NewRepoRegistry(cfg.Workspace)
		exec := jobs.New(cfg, tools, driver, repos, nil)
		exec.Start()
		defer exec.Stop()

		req := jobs.Request{
			ID:          uuid.NewString(),
			RepoURL:     runRepoURL,
			Source:      jobs.SourceBuiltin,
			Description: "one-shot run",
			ModID:       runModID,
		}
		if runCommit != "" {
			req.Source = jobs.SourceCommit
			req.CommitHash = runCommit
		}

		if err := exec.Submit(req); err != nil {
			return err
		}

		for {
			res, ok := exec.Result(req.ID)
			if ok && res.Status.Terminal() {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			time.Sleep(200 * time.Millisecond)
		}
	},
}

func init() {
	runCmd.Flags().StringVar(&runRepoURL, "repo", "", "Repository URL (required)")
	runCmd.Flags().StringVar(&runModID, "mod", "", "Builtin mod id (see 'levelup mods')")
	runCmd.Flags().StringVar(&runCommit, "commit", "", "Commit hash to validate instead of a builtin mod")
	runCmd.MarkFlagRequired("repo")
}
