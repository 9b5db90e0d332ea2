package cli

import (
	"encoding/json"
	"fmt"

	"github.com/engram-memory/engram/internal/consolidate"
	"github.com/engram-memory/engram/internal/service"
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Identify duplicate and truncated records",
		Long:  "Scan stored records for near-duplicates and truncated content. Prints candidates; never deletes.",
		Run:   runCleanup,
	}

	cmd.Flags().Bool("dedup", true, "Run the duplicate scan")
	cmd.Flags().Bool("truncation", true, "Run the truncation scan")

	RootCmd.AddCommand(cmd)
}

func runCleanup(cmd *cobra.Command, args []string) {
	dedup, _ := cmd.Flags().GetBool("dedup")
	truncation, _ := cmd.Flags().GetBool("truncation")

	cfg := loadConfig()
	s := openStore(cmd.Context(), cfg)
	defer s.Close()
	svc := service.New(s, nil)

	flags, err := svc.Cleanup(cmd.Context(), consolidate.CleanupParams{
		Dedup:      dedup,
		Truncation: truncation,
	})
	if err != nil {
		exitErr("cleanup", err)
	}

	if len(flags) == 0 {
		fmt.Println("[]")
		return
	}
	b, _ := json.MarshalIndent(flags, "", "  ")
	fmt.Println(string(b))
}
