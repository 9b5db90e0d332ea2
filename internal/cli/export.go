package cli

import (
	"encoding/json"
	"fmt"

	"github.com/engram-memory/engram/internal/model"
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export memory records as JSON",
		Long:  "Export all records as JSON. Filter by family with --family.",
		Run:   runExport,
	}

	cmd.Flags().String("family", "", "Filter by family")

	RootCmd.AddCommand(cmd)
}

func runExport(cmd *cobra.Command, args []string) {
	family, _ := cmd.Flags().GetString("family")

	cfg := loadConfig()
	s := openStore(cmd.Context(), cfg)
	defer s.Close()

	records, err := s.ExportAll(cmd.Context(), model.Family(family))
	if err != nil {
		exitErr("export", err)
	}

	b, _ := json.MarshalIndent(records, "", "  ")
	fmt.Println(string(b))
}
