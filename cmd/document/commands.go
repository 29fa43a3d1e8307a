package document

import (
	"fmt"
	"os"
	"strings"

	"github.com/ValentinKolb/cKV/lib/docstore"
	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

var (
	beginCmd = &cobra.Command{
		Use:   "begin",
		Short: "Starts a transaction and prints its id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tx, err := rpcStore.Begin()
			if err != nil {
				return err
			}
			fmt.Println(tx)
			return nil
		},
	}
	commitCmd = &cobra.Command{
		Use:   "commit [tx]",
		Short: "Commits a transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rpcStore.Commit(docstore.TxID(args[0])); err != nil {
				return err
			}
			fmt.Println("commit successfully")
			return nil
		},
	}
	rollbackCmd = &cobra.Command{
		Use:   "rollback [tx]",
		Short: "Discards all changes of a transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rpcStore.Rollback(docstore.TxID(args[0])); err != nil {
				return err
			}
			fmt.Println("rollback successfully")
			return nil
		},
	}
	putCmd = &cobra.Command{
		Use:   "put [key] [content]",
		Short: "Creates or replaces the document with the given key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			tags, _ := cmd.Flags().GetStringSlice("tags")
			doc, err := rpcStore.Put(currentTx(), docstore.Doc{
				Key:     args[0],
				Content: args[1],
				Tags:    tags,
			})
			if err != nil {
				return err
			}
			return printJSON(doc)
		},
	}
	getCmd = &cobra.Command{
		Use:   "get [key]",
		Short: "Reads the current document for a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, ok, err := rpcStore.Get(currentTx(), args[0])
			if err != nil {
				return err
			}
			if !ok {
				fmt.Printf("key=%s, found=false\n", args[0])
				return nil
			}
			return printJSON(doc)
		},
	}
	delCmd = &cobra.Command{
		Use:   "del [key]",
		Short: "Deletes a document, its history is kept",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ok, err := rpcStore.Delete(currentTx(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("key=%s, deleted=%t\n", args[0], ok)
			return nil
		},
	}
	rangeCmd = &cobra.Command{
		Use:   "range [from] [till]",
		Short: "Lists the documents with from <= key <= till, an empty bound is open",
		Args:  cobra.RangeArgs(0, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var from, till string
			if len(args) > 0 {
				from = args[0]
			}
			if len(args) > 1 {
				till = args[1]
			}
			docs, err := rpcStore.Range(currentTx(), from, till)
			if err != nil {
				return err
			}
			return printJSON(docs)
		},
	}
	taggedCmd = &cobra.Command{
		Use:   "tagged [tag]",
		Short: "Lists the documents carrying a tag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			docs, err := rpcStore.Tagged(currentTx(), args[0])
			if err != nil {
				return err
			}
			return printJSON(docs)
		},
	}
	searchCmd = &cobra.Command{
		Use:   "search [query...]",
		Short: "Full text search over the document content, best matches first",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			docs, err := rpcStore.Search(currentTx(), strings.Join(args, " "), limit)
			if err != nil {
				return err
			}
			return printJSON(docs)
		},
	}
	historyCmd = &cobra.Command{
		Use:   "history [key]",
		Short: "Lists all committed versions of a key, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			docs, err := rpcStore.History(args[0])
			if err != nil {
				return err
			}
			return printJSON(docs)
		},
	}
	infoCmd = &cobra.Command{
		Use:   "info",
		Short: "Prints statistics of the document store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := rpcStore.Info()
			if err != nil {
				return err
			}
			return printJSON(info)
		},
	}
)

func init() {
	putCmd.Flags().StringSlice("tags", nil, "Comma-separated list of tags")
	searchCmd.Flags().Int("limit", 10, "Maximum number of results (0 for all)")
}

// printJSON writes v as indented JSON to stdout
func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(os.Stdout, string(out))
	return err
}
