package main

import (
	"encoding/json"
	"strings"

	"github.com/spf13/cobra"
)

var embedProvider string

var embedCmd = &cobra.Command{
	Use:   "embed <text>...",
	Short: "Embed text with one provider and print the vector",
	Long: `Embed the arguments, joined by spaces, and print the provider tag,
dimension and vector as JSON.

Examples:
  repoindex embed --provider local "func main() {}"
  repoindex embed --provider openai "hello world"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runEmbed,
}

func init() {
	embedCmd.Flags().StringVar(&embedProvider, "provider", "", "embedding provider: local, openai, gemini or claude (required)")
	_ = embedCmd.MarkFlagRequired("provider")
	rootCmd.AddCommand(embedCmd)
}

func runEmbed(cmd *cobra.Command, args []string) error {
	provider, err := parseProvider(embedProvider)
	if err != nil {
		return err
	}

	a, err := bootstrap(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	gw, err := a.gateway()
	if err != nil {
		return err
	}
	defer gw.Close()

	res, err := gw.Embed(cmd.Context(), strings.Join(args, " "), provider)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	return enc.Encode(struct {
		Provider  string    `json:"provider"`
		Dimension int       `json:"dimension"`
		Vector    []float32 `json:"vector"`
	}{res.Provider, len(res.Vector), res.Vector})
}
