package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/fyrsmithlabs/repoindex/internal/vectorstore"
	"github.com/spf13/cobra"
)

var collectionsJSON bool

var collectionsCmd = &cobra.Command{
	Use:   "collections",
	Short: "List indexed repositories",
	Long: `List every indexed repository with its collection name, embedding
dimension, provider and chunk count.`,
	Args: cobra.NoArgs,
	RunE: runCollections,
}

var deleteCollectionCmd = &cobra.Command{
	Use:   "delete <repo>",
	Short: "Delete a repository's collection",
	Args:  cobra.ExactArgs(1),
	RunE:  runDeleteCollection,
}

func init() {
	collectionsCmd.Flags().BoolVar(&collectionsJSON, "json", false, "print as JSON")
	collectionsCmd.AddCommand(deleteCollectionCmd)
	rootCmd.AddCommand(collectionsCmd)
}

func runCollections(cmd *cobra.Command, _ []string) error {
	a, err := bootstrap(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	store, err := a.store()
	if err != nil {
		return err
	}
	infos, err := store.Collections(cmd.Context())
	if err != nil {
		return err
	}

	if collectionsJSON {
		if infos == nil {
			infos = []vectorstore.CollectionInfo{}
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(infos)
	}
	return printCollections(cmd.OutOrStdout(), infos)
}

func printCollections(w io.Writer, infos []vectorstore.CollectionInfo) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "REPO\tCOLLECTION\tDIM\tPROVIDER\tCHUNKS\tUPDATED")
	for _, c := range infos {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%d\t%s\n",
			c.Repo, c.Collection, c.EmbeddingDim, c.Provider, c.DocCount,
			c.UpdatedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}

func runDeleteCollection(cmd *cobra.Command, args []string) error {
	a, err := bootstrap(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	store, err := a.store()
	if err != nil {
		return err
	}
	if err := store.DeleteCollection(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
	return nil
}
