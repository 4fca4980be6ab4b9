package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kadaliao/logseq-reflect-sub001/internal/engine"
)

// breakdownCmd splits a task block into TODO children
var breakdownCmd = &cobra.Command{
	Use:   "breakdown",
	Short: "Break a task block into TODO subtasks",
	Long: `Asks the model to split the block's task into small actionable
steps, then creates one TODO child block per step under the source.`,
	RunE: runBreakdown,
}

func runBreakdown(cmd *cobra.Command, args []string) error {
	return runOperation("breakdown", func(eng *engine.Engine, uuid string) error {
		status, err := eng.Breakdown(commandContext(cmd), uuid)
		if err != nil {
			return err
		}
		fmt.Printf("breakdown finished: %s\n", status)
		return nil
	})
}
