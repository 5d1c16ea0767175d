package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/engramlabs/engram/internal/vector"
)

var (
	memSession string
	memPersona string
	memLimit   int
)

var memoryCmd = &cobra.Command{
	Use:   "memory",
	Short: "Inspect and manage stored memories",
}

var memoryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored memory records",
	Run: func(cmd *cobra.Command, args []string) {
		a := buildApp(context.Background())
		defer a.close()

		records, err := a.engine.ListMemories(context.Background(), memFilter(), memLimit)
		if err != nil {
			fmt.Printf("Failed to list memories: %v\n", err)
			os.Exit(1)
		}
		if len(records) == 0 {
			fmt.Println("(no memories)")
			return
		}
		for _, r := range records {
			printRecord(r, -1)
		}
	},
}

var memorySearchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Similarity-search stored memories",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := buildApp(context.Background())
		defer a.close()

		hits, err := a.engine.SearchMemories(context.Background(), args[0], memFilter(), memLimit)
		if err != nil {
			fmt.Printf("Memory search failed: %v\n", err)
			os.Exit(1)
		}
		if len(hits) == 0 {
			fmt.Println("(no matches)")
			return
		}
		for _, h := range hits {
			printRecord(h.Record, h.Score)
		}
	},
}

var memoryAddCmd = &cobra.Command{
	Use:   "add [text]",
	Short: "Store a memory entry manually",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if memSession == "" {
			fmt.Println("--session is required for add")
			os.Exit(1)
		}

		a := buildApp(context.Background())
		defer a.close()

		id, err := a.engine.StoreMemory(context.Background(), memSession, memPersona, args[0])
		if err != nil {
			fmt.Printf("Failed to store memory: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Stored memory %d\n", id)
	},
}

var memoryForgetCmd = &cobra.Command{
	Use:   "forget",
	Short: "Delete memories matching --session and/or --persona",
	Run: func(cmd *cobra.Command, args []string) {
		filter := memFilter()
		if filter.IsZero() {
			fmt.Println("Refusing to forget everything; pass --session and/or --persona")
			os.Exit(1)
		}

		a := buildApp(context.Background())
		defer a.close()

		deleted, err := a.engine.ForgetMemories(context.Background(), filter)
		if err != nil {
			fmt.Printf("Failed to forget memories: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Forgot %d memories\n", deleted)
	},
}

func memFilter() vector.Filter {
	return vector.Filter{SessionID: memSession, PersonaID: memPersona}
}

func printRecord(r vector.Record, score float32) {
	ts := time.Unix(r.CreateTime, 0).Format("2006-01-02 15:04:05")
	if score >= 0 {
		fmt.Printf("[%d] %s session=%s persona=%s score=%.3f\n    %s\n", r.ID, ts, r.SessionID, r.PersonaID, score, r.Content)
		return
	}
	fmt.Printf("[%d] %s session=%s persona=%s\n    %s\n", r.ID, ts, r.SessionID, r.PersonaID, r.Content)
}

func init() {
	RootCmd.AddCommand(memoryCmd)
	memoryCmd.AddCommand(memoryListCmd)
	memoryCmd.AddCommand(memorySearchCmd)
	memoryCmd.AddCommand(memoryAddCmd)
	memoryCmd.AddCommand(memoryForgetCmd)

	memoryCmd.PersistentFlags().StringVar(&memSession, "session", "", "Filter by session id")
	memoryCmd.PersistentFlags().StringVar(&memPersona, "persona", "", "Filter by persona id")
	memoryCmd.PersistentFlags().IntVar(&memLimit, "limit", 0, "Maximum results (0 = default)")
}
