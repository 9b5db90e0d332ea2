package cli

import (
	"log/slog"
	"net/http"
	"os"

	"github.com/engram-memory/engram/internal/bridge"
	"github.com/engram-memory/engram/internal/config"
	"github.com/engram-memory/engram/internal/relay"
	"github.com/engram-memory/engram/internal/server"
	"github.com/engram-memory/engram/internal/service"
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and message relay",
		Long:  "Serve the tool API, the two-role message relay (websocket and long-poll), and the outbound completion bridge.",
		Run:   runServe,
	}

	cmd.Flags().String("listen", "", "Listen address (default: $ENGRAM_LISTEN_ADDR or :8170)")
	cmd.Flags().StringSlice("endpoint", nil, "Outbound endpoint descriptor name=url[:model] (repeatable)")

	RootCmd.AddCommand(cmd)
}

func runServe(cmd *cobra.Command, args []string) {
	listen, _ := cmd.Flags().GetString("listen")
	endpointFlags, _ := cmd.Flags().GetStringSlice("endpoint")

	log := slog.New(slog.NewTextHandler(os.Stdout, nil))
	cfg := loadConfig()
	if listen != "" {
		cfg.ListenAddr = listen
	}
	if len(endpointFlags) > 0 {
		eps, err := config.ParseEndpoints(endpointFlags)
		if err != nil {
			exitErr("parse endpoints", err)
		}
		cfg.Endpoints = append(cfg.Endpoints, eps...)
	}

	s := openStore(cmd.Context(), cfg)
	defer s.Close()

	if cfg.SessionID != "" {
		if err := s.TouchSession(cmd.Context(), cfg.SessionID); err != nil {
			exitErr("touch session", err)
		}
	}

	svc := service.New(s, log)
	broker := relay.NewBroker(cfg.RelayMaxConns, log)
	br := bridge.New(cfg.Endpoints)

	srv := server.New(svc, broker, br, log)
	log.Info("starting engram server", "addr", cfg.ListenAddr, "db", cfg.DBPath, "endpoints", len(cfg.Endpoints))
	if err := http.ListenAndServe(cfg.ListenAddr, srv.Router()); err != nil {
		exitErr("server", err)
	}
}
