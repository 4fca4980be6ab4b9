package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kadaliao/logseq-reflect-sub001/internal/outline"
)

// importCmd loads a markdown outline into the database
var importCmd = &cobra.Command{
	Use:   "import [file]",
	Short: "Import a markdown outline into a page",
	Long: `Reads a markdown bullet outline ("- " items, two-space indent,
"key:: value" property lines) and creates its blocks under the page
named by --page (default from config).

Example:
  reflect import notes.md --page reading-notes`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func runImport(cmd *cobra.Command, args []string) error {
	target := page
	if target == "" {
		target = cfg.Outline.DefaultPage
	}

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", args[0], err)
	}
	defer f.Close()

	g, err := openGraph()
	if err != nil {
		return err
	}
	defer g.Close()

	roots, err := outline.ImportMarkdown(g, target, f)
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}

	fmt.Printf("imported %d root blocks into page %q\n", len(roots), target)
	return nil
}
