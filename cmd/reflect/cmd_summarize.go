package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kadaliao/logseq-reflect-sub001/internal/engine"
)

// summarizeCmd condenses a block's page
var summarizeCmd = &cobra.Command{
	Use:   "summarize",
	Short: "Summarize the page around a block",
	Long: `Assembles the block's page in document order, bounds it to the
configured context budget, and streams a summary into a new block.`,
	RunE: runSummarize,
}

func runSummarize(cmd *cobra.Command, args []string) error {
	return runOperation("summarize", func(eng *engine.Engine, uuid string) error {
		status, err := eng.Summarize(commandContext(cmd), uuid)
		if err != nil {
			return err
		}
		fmt.Printf("summarize finished: %s\n", status)
		return nil
	})
}
