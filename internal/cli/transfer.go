package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/engram-memory/engram/internal/service"
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "transfer [file]",
		Short: "Submit a full memory transfer document",
		Long:  "Parse a free-text transfer document into typed records. Reads the named file, or stdin when no file is given.",
		Run:   runTransfer,
	}

	RootCmd.AddCommand(cmd)
}

func runTransfer(cmd *cobra.Command, args []string) {
	var text string
	if len(args) > 0 {
		b, err := os.ReadFile(args[0])
		if err != nil {
			exitErr("read file", err)
		}
		text = string(b)
	} else {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			exitErr("read stdin", err)
		}
		text = string(b)
	}
	if strings.TrimSpace(text) == "" {
		exitErr("transfer", fmt.Errorf("transfer document is empty"))
	}

	cfg := loadConfig()
	s := openStore(cmd.Context(), cfg)
	defer s.Close()
	svc := service.New(s, nil)

	summary, err := svc.SubmitTransfer(cmd.Context(), text, cfg.SessionID)
	if err != nil {
		if remedy := service.Remediation(err); remedy != "" {
			fmt.Fprintln(os.Stderr, remedy)
		}
		exitErr("transfer", err)
	}

	b, _ := json.MarshalIndent(summary, "", "  ")
	fmt.Println(string(b))
}
