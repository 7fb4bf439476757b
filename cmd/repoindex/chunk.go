package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fyrsmithlabs/repoindex/internal/chunker"
	"github.com/spf13/cobra"
)

var chunkStrategy string

var chunkCmd = &cobra.Command{
	Use:   "chunk <file>",
	Short: "Split a file into chunks and print them",
	Long: `Split a file with the configured chunking strategy and print the
segments as JSON lines. No embedding or storage takes place.

Examples:
  repoindex chunk main.py
  repoindex chunk --strategy window README.md`,
	Args: cobra.ExactArgs(1),
	RunE: runChunk,
}

func init() {
	chunkCmd.Flags().StringVar(&chunkStrategy, "strategy", "", "override chunking.strategy (boundary, window)")
	rootCmd.AddCommand(chunkCmd)
}

func runChunk(cmd *cobra.Command, args []string) error {
	a, err := bootstrap(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	content, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read file %s: %w", args[0], err)
	}

	cc := a.cfg.Chunking
	if chunkStrategy != "" {
		cc.Strategy = chunkStrategy
	}
	strategy, err := chunker.New(chunker.Config{
		Strategy: cc.Strategy,
		Options: chunker.Options{
			TargetSize: cc.TargetSize,
			MinSize:    cc.MinSize,
			MaxSize:    cc.MaxSize,
		},
		WindowSize:    cc.WindowSize,
		WindowOverlap: cc.WindowOverlap,
	})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	for _, seg := range strategy.Split(string(content)) {
		if err := enc.Encode(struct {
			LocalIndex int    `json:"local_index"`
			Chars      int    `json:"chars"`
			Content    string `json:"content"`
		}{seg.LocalIndex, len([]rune(seg.Content)), seg.Content}); err != nil {
			return err
		}
	}
	return nil
}
