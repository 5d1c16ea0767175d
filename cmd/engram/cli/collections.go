package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var collectionsCmd = &cobra.Command{
	Use:   "collections",
	Short: "List vector store collections",
	Run: func(cmd *cobra.Command, args []string) {
		a := buildApp(context.Background())
		defer a.close()

		names, err := a.engine.Collections()
		if err != nil {
			fmt.Printf("Failed to list collections: %v\n", err)
			os.Exit(1)
		}
		for _, name := range names {
			marker := " "
			if name == a.cfg.Collection {
				marker = "*"
			}
			fmt.Printf("%s %s\n", marker, name)
		}
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one idle-session summarization sweep",
	Run: func(cmd *cobra.Command, args []string) {
		a := buildApp(context.Background())
		defer a.close()

		a.engine.SweepOnce(context.Background())
		a.engine.WaitPending()
	},
}

func init() {
	RootCmd.AddCommand(collectionsCmd)
	RootCmd.AddCommand(sweepCmd)
}
