package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kadaliao/logseq-reflect-sub001/internal/engine"
)

// flashcardsCmd generates spaced-repetition cards from a subtree
var flashcardsCmd = &cobra.Command{
	Use:   "flashcards",
	Short: "Generate flashcards from a block's subtree",
	Long: `Reads the block and everything nested under it and streams back
'Question :: Answer' flashcards tagged #card.`,
	RunE: runFlashcards,
}

func runFlashcards(cmd *cobra.Command, args []string) error {
	return runOperation("flashcards", func(eng *engine.Engine, uuid string) error {
		status, err := eng.Flashcards(commandContext(cmd), uuid)
		if err != nil {
			return err
		}
		fmt.Printf("flashcards finished: %s\n", status)
		return nil
	})
}
