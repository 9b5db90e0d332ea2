package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/engram-memory/engram/internal/consolidate"
	"github.com/engram-memory/engram/internal/service"
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "adjust [key] [importance]",
		Short: "Adjust the importance of a memory record",
		Long:  "Set a record's importance (0..1). With --batch, read a JSON array of {key, importance} pairs from stdin.",
		Run:   runAdjust,
	}

	cmd.Flags().Bool("batch", false, "Read a JSON batch from stdin")

	RootCmd.AddCommand(cmd)
}

func runAdjust(cmd *cobra.Command, args []string) {
	batch, _ := cmd.Flags().GetBool("batch")

	cfg := loadConfig()
	s := openStore(cmd.Context(), cfg)
	defer s.Close()
	svc := service.New(s, nil)

	if batch {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			exitErr("read stdin", err)
		}
		var items []consolidate.AdjustItem
		if err := json.Unmarshal(data, &items); err != nil {
			exitErr("parse json", err)
		}
		results := svc.BatchAdjust(cmd.Context(), items)
		b, _ := json.MarshalIndent(results, "", "  ")
		fmt.Println(string(b))
		return
	}

	if len(args) != 2 {
		exitErr("adjust", fmt.Errorf("usage: engram adjust <key> <importance>"))
	}
	var importance float64
	if _, err := fmt.Sscanf(args[1], "%f", &importance); err != nil {
		exitErr("adjust", fmt.Errorf("invalid importance %q", args[1]))
	}

	if err := svc.AdjustImportance(cmd.Context(), args[0], importance); err != nil {
		if remedy := service.Remediation(err); remedy != "" {
			fmt.Fprintln(os.Stderr, remedy)
		}
		exitErr("adjust", err)
	}
	fmt.Println(`{"updated":true}`)
}
