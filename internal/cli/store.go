package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/engram-memory/engram/internal/model"
	"github.com/engram-memory/engram/internal/service"
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "store [content]",
		Short: "Store a single memory record",
		Long:  "Store a memory record. Content can be a positional arg or piped via stdin.",
		Run:   runStore,
	}

	cmd.Flags().String("family", "episodic", "Family: episodic, semantic, procedural")
	cmd.Flags().Float64P("importance", "i", -1, "Importance 0..1 (default 0.5)")
	cmd.Flags().String("event", "", "Episodic: event description")
	cmd.Flags().String("outcome", "", "Episodic: outcome")
	cmd.Flags().String("concept", "", "Semantic: concept name (drives the merge key)")
	cmd.Flags().String("domain", "", "Semantic: domain")
	cmd.Flags().String("skill", "", "Procedural: skill name")
	cmd.Flags().String("steps", "", "Procedural: comma-separated steps")

	RootCmd.AddCommand(cmd)
}

func runStore(cmd *cobra.Command, args []string) {
	family, _ := cmd.Flags().GetString("family")
	importance, _ := cmd.Flags().GetFloat64("importance")
	event, _ := cmd.Flags().GetString("event")
	outcome, _ := cmd.Flags().GetString("outcome")
	concept, _ := cmd.Flags().GetString("concept")
	domain, _ := cmd.Flags().GetString("domain")
	skill, _ := cmd.Flags().GetString("skill")
	stepsStr, _ := cmd.Flags().GetString("steps")

	var content string
	if len(args) > 0 {
		content = strings.Join(args, " ")
	} else {
		stat, _ := os.Stdin.Stat()
		if (stat.Mode() & os.ModeCharDevice) == 0 {
			b, err := io.ReadAll(os.Stdin)
			if err != nil {
				exitErr("read stdin", err)
			}
			content = string(b)
		}
	}
	if strings.TrimSpace(content) == "" {
		exitErr("store", fmt.Errorf("content is required (positional arg or stdin)"))
	}

	var steps []string
	if stepsStr != "" {
		for _, t := range strings.Split(stepsStr, ",") {
			if t = strings.TrimSpace(t); t != "" {
				steps = append(steps, t)
			}
		}
	}

	cfg := loadConfig()
	s := openStore(cmd.Context(), cfg)
	defer s.Close()
	svc := service.New(s, nil)

	p := service.StoreSingleParams{
		Content:   strings.TrimSpace(content),
		Family:    model.Family(family),
		SessionID: cfg.SessionID,
		Event:     event,
		Outcome:   outcome,
		Concept:   concept,
		Domain:    domain,
		Skill:     skill,
		Steps:     steps,
	}
	if importance >= 0 {
		p.Importance = &importance
	}

	rec, err := svc.StoreSingle(cmd.Context(), p)
	if err != nil {
		exitErr("store", err)
	}

	b, _ := json.Marshal(rec)
	fmt.Println(string(b))
}
