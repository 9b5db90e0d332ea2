package cli

import (
	"encoding/json"
	"fmt"

	"github.com/engram-memory/engram/internal/service"
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "retrieve",
		Short: "Reconstruct the bootstrap narrative",
		Long:  "Run the retrieval pipeline and print the synthesized narrative, or the structured bundle with --structured.",
		Run:   runRetrieve,
	}

	cmd.Flags().Bool("structured", false, "Print the ranked bundle as JSON instead of the narrative")
	cmd.Flags().Bool("guidance", false, "Include usage guidance")
	cmd.Flags().String("agent", "", "Agent name for the greeting")

	RootCmd.AddCommand(cmd)
}

func runRetrieve(cmd *cobra.Command, args []string) {
	structured, _ := cmd.Flags().GetBool("structured")
	guidance, _ := cmd.Flags().GetBool("guidance")
	agent, _ := cmd.Flags().GetString("agent")

	cfg := loadConfig()
	s := openStore(cmd.Context(), cfg)
	defer s.Close()
	svc := service.New(s, nil)

	res, err := svc.Retrieve(cmd.Context(), service.RetrieveParams{
		SessionID:       cfg.SessionID,
		Structured:      structured,
		IncludeGuidance: guidance,
		AgentName:       agent,
	})
	if err != nil {
		exitErr("retrieve", err)
	}

	if structured {
		b, _ := json.MarshalIndent(res.Bundle, "", "  ")
		fmt.Println(string(b))
		return
	}
	fmt.Println(res.Narrative)
	if res.Guidance != "" {
		fmt.Println("---")
		fmt.Println(res.Guidance)
	}
}
