package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kadaliao/logseq-reflect-sub001/internal/engine"
)

// askCmd answers the question a block holds
var askCmd = &cobra.Command{
	Use:   "ask",
	Short: "Answer the question held in a block",
	Long: `Sends the block's own text as a question, with the rest of its page
as context, and streams the answer into a new block next to it.

Example:
  reflect ask --block 64f1a2b3-...
  reflect ask            # uses the current block`,
	RunE: runAsk,
}

func runAsk(cmd *cobra.Command, args []string) error {
	return runOperation("ask", func(eng *engine.Engine, uuid string) error {
		status, err := eng.Ask(commandContext(cmd), uuid)
		if err != nil {
			return err
		}
		fmt.Printf("ask finished: %s\n", status)
		return nil
	})
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
