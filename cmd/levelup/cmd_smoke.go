package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"levelup/internal/compiler"
	"levelup/internal/config"
	"levelup/internal/oracle"
)

// smokeSource is a minimal translation unit the configured toolchain must
// compile, and whose listing the oracle must accept against itself.
const smokeSource = `inline int squared(int x) { return x * x; }

int smoke_entry() { return squared(4) + 1; }
`

var smokeCmd = &cobra.Command{
	Use:   "smoke",
	Short: "Verify the configured compiler and the oracle agree on a trivial unit",
	RunE: func(cmd *cobra.Command, args []string) error {
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

		dir, err := os.MkdirTemp("", "levelup-smoke-")
		if err != nil {
			return err
		}
		defer os.RemoveAll(dir)

		file := filepath.Join(dir, "smoke.cpp")
		if err := os.WriteFile(file, []byte(smokeSource), 0644); err != nil {
			return err
		}

		ctx := context.Background()
		for _, profile := range oracle.Profiles() {
			art, err := driver.Compile(ctx, file, profile.OptLevel)
			if err != nil {
				return fmt.Errorf("compile at %s failed: %w", profile.ID, err)
			}
			if oracle.DetectFormat(art.Asm) == oracle.FormatUnknown {
				return fmt.Errorf("%s: oracle cannot parse %s output", profile.ID, driver.ID())
			}
			if !oracle.Equivalent(art.Asm, art.Asm) {
				return fmt.Errorf("%s: oracle rejects a listing against itself", profile.ID)
			}
			fmt.Printf("%-8s ok (%d functions)\n", profile.ID, len(oracle.ExtractFunctions(art.Asm)))
		}

		fmt.Println("smoke test passed")
		return nil
	},
}
