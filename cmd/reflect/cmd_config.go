package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kadaliao/logseq-reflect-sub001/internal/resolver"
)

// configCmd inspects the effective request configuration
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective request configuration for a block",
	Long: `Resolves reflect-* properties up the block's ancestor chain against
the global defaults and prints every effective field.

With no --block, prints the global defaults.`,
	RunE: runConfig,
}

func runConfig(cmd *cobra.Command, args []string) error {
	fmt.Printf("config file: %s\n", configPath)
	fmt.Printf("endpoint:    %s\n", cfg.Endpoint())

	if blockUUID == "" {
		printEffective(resolver.Resolved{
			Config: resolver.Effective{
				Model:            cfg.Request.Model,
				Temperature:      cfg.Request.Temperature,
				TopP:             cfg.Request.TopP,
				MaxTokens:        cfg.Request.MaxTokens,
				Stream:           cfg.Request.Stream,
				UseContext:       cfg.Request.UseContext,
				MaxContextTokens: cfg.Request.MaxContextTokens,
			},
			Inherited: true,
		})
		return nil
	}

	g, err := openGraph()
	if err != nil {
		return err
	}
	defer g.Close()

	r := resolver.New(g, cfg.Request)
	res := r.Resolve(blockUUID)
	fmt.Printf("block:       %s\n", blockUUID)
	printEffective(res)
	return nil
}

func printEffective(res resolver.Resolved) {
	c := res.Config
	fmt.Printf("model:               %s\n", c.Model)
	fmt.Printf("temperature:         %.2f\n", c.Temperature)
	fmt.Printf("top_p:               %.2f\n", c.TopP)
	if c.MaxTokens == 0 {
		fmt.Printf("max_tokens:          (endpoint default)\n")
	} else {
		fmt.Printf("max_tokens:          %d\n", c.MaxTokens)
	}
	fmt.Printf("stream:              %v\n", c.Stream)
	fmt.Printf("use_context:         %v\n", c.UseContext)
	fmt.Printf("max_context_tokens:  %d\n", c.MaxContextTokens)
	fmt.Printf("inherited:           %v\n", res.Inherited)
}
