package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"levelup/internal/compiler"
	"levelup/internal/edits"
	"levelup/internal/oracle"
)

var modsCmd = &cobra.Command{
	Use:   "mods",
	Short: "List the builtin mods",
	Run: func(cmd *cobra.Command, args []string) {
		for _, m := range edits.Available() {
			fmt.Printf("%-24s %s\n", m.ID, m.Name)
		}
	},
}

var validatorsCmd = &cobra.Command{
	Use:   "validators",
	Short: "List the oracle validators",
	Run: func(cmd *cobra.Command, args []string) {
		for _, p := range oracle.Profiles() {
			fmt.Printf("%-24s %s (optimization level %d)\n", p.ID, p.Name, p.OptLevel)
		}
	},
}

var compilersCmd = &cobra.Command{
	Use:   "compilers",
	Short: "List the supported compiler backends",
	Run: func(cmd *cobra.Command, args []string) {
		for _, c := range compiler.Available() {
			fmt.Printf("%-24s %s\n", c.ID, c.Name)
		}
	},
}
