package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/engram-memory/engram/internal/model"
	"github.com/engram-memory/engram/internal/store"
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "query [text]",
		Short: "Query memories ranked by importance",
		Long:  "List records matching the filters, ranked by importance. Optional text filters by content substring.",
		Run:   runQuery,
	}

	cmd.Flags().String("family", "", "Filter by family")
	cmd.Flags().IntP("limit", "l", 20, "Max results")

	RootCmd.AddCommand(cmd)
}

func runQuery(cmd *cobra.Command, args []string) {
	family, _ := cmd.Flags().GetString("family")
	limit, _ := cmd.Flags().GetInt("limit")

	cfg := loadConfig()
	s := openStore(cmd.Context(), cfg)
	defer s.Close()

	records, err := s.Query(cmd.Context(), store.QueryParams{
		Family:    model.Family(family),
		SessionID: cfg.SessionID,
		Text:      strings.Join(args, " "),
		Limit:     limit,
	})
	if err != nil {
		exitErr("query", err)
	}

	if len(records) == 0 {
		fmt.Println("[]")
		return
	}
	b, _ := json.MarshalIndent(records, "", "  ")
	fmt.Println(string(b))
}
