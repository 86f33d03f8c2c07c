package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kurierhq/kurier/internal/auth"
	"github.com/kurierhq/kurier/internal/daemon"
	"github.com/kurierhq/kurier/internal/daemon/components"
	"github.com/kurierhq/kurier/internal/ingress"

	"github.com/spf13/cobra"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Start Kurier in background daemon mode",
	Long:  `Starts Kurier as a long-running service using component lifecycle orchestration. It exposes a health endpoint, listens for moderator decisions and drains approved items into scheduled digests.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		forceClean, _ := cmd.Flags().GetBool("force-clean-locks")

		if cfg == nil {
			return fmt.Errorf("config not loaded")
		}

		daemonMgr, err := daemon.NewDaemon(cfg)
		if err != nil {
			return fmt.Errorf("failed to create daemon manager: %w", err)
		}
		daemonMgr.SetForceCleanup(forceClean)

		storeComp := components.NewStoreComponent(&cfg.Store)
		authComp := components.NewAuthComponent(&cfg.Auth, &cfg.Store, auth.UnconfiguredProvider{})
		moderationComp := components.NewModerationComponent(&cfg.Ingress, storeComp)

		// Components resolve each other lazily at call time; events only
		// arrive after every component has started.
		var digestComp *components.DigestComponent

		callbackHandler := func(evtCtx context.Context, evt *ingress.Event) (ingress.Ack, error) {
			return moderationComp.HandleCallback(evtCtx, evt)
		}

		commandHandler := func(cmdCtx context.Context, command string, cmdArgs []string) (string, error) {
			switch command {
			case "status":
				return renderStatus(storeComp, authComp), nil
			case "digest":
				if digestComp == nil {
					return "", fmt.Errorf("digest is not available")
				}
				published, err := digestComp.RunNow(cmdCtx)
				if err != nil {
					return "", err
				}
				if published == 0 {
					return "Nothing approved to publish.", nil
				}
				return fmt.Sprintf("Published %d item(s).", published), nil
			default:
				return "", nil
			}
		}

		adaptersComp := components.NewAdapterComponent(&cfg.Adapters, &cfg.Ingress, callbackHandler, commandHandler)
		digestComp = components.NewDigestComponent(&cfg.Digest, storeComp, adaptersComp)
		httpComp := components.NewHTTPServerComponent(daemonMgr, &cfg.Server, storeComp, authComp, adaptersComp)

		daemonMgr.AddComponent(storeComp)
		daemonMgr.AddComponent(authComp)
		daemonMgr.AddComponent(moderationComp)
		daemonMgr.AddComponent(adaptersComp)
		daemonMgr.AddComponent(digestComp)
		daemonMgr.AddComponent(httpComp)

		slog.Info("Kurier Daemon starting up...", "port", cfg.Server.Port)
		err = daemonMgr.Start(context.Background())
		if err != nil {
			// Cancellation via signal/context is a graceful shutdown case for CLI.
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				slog.Info("Kurier Daemon stopped gracefully")
				return nil
			}
			return fmt.Errorf("daemon failed: %w", err)
		}

		slog.Info("Kurier Daemon stopped gracefully")
		return nil
	},
}

func renderStatus(storeComp *components.StoreComponent, authComp *components.AuthComponent) string {
	var b strings.Builder

	if fileStore := storeComp.GetStore(); fileStore != nil {
		if pending, approved, err := fileStore.Counts(); err == nil {
			fmt.Fprintf(&b, "Pending: %d\nApproved: %d\n", pending, approved)
		} else {
			b.WriteString("Store: unreachable\n")
		}
	}

	if manager := authComp.GetManager(); manager != nil {
		status := manager.Status()
		fmt.Fprintf(&b, "Auth: %s", status.State)
		if status.MaskedContact != "" {
			fmt.Fprintf(&b, " (%s)", status.MaskedContact)
		}
	}

	return strings.TrimSpace(b.String())
}

func init() {
	rootCmd.AddCommand(daemonCmd)
	daemonCmd.Flags().Bool("force-clean-locks", false, "Force cleanup of stale lock files (default: warn-only)")
}
