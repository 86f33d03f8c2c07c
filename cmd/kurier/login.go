package main

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/kurierhq/kurier/internal/auth"
	"github.com/kurierhq/kurier/internal/config"
	"github.com/kurierhq/kurier/internal/errors"

	"github.com/spf13/cobra"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Establish the channel reader session",
	Long:  `Runs the interactive sign-in flow: requests a one-time code from the identity provider, redeems it (and the second-factor password when required) and persists the session for the daemon.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg == nil {
			return fmt.Errorf("config not loaded")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		timeout, err := config.DurationOrDefault(cfg.Auth.Timeout, config.DefaultAuthTimeout)
		if err != nil {
			return fmt.Errorf("parse auth timeout: %w", err)
		}

		manager := auth.NewManager(auth.UnconfiguredProvider{}, cfg.Auth.SessionPath, timeout)
		if err := manager.LoadPersisted(ctx); err != nil {
			return fmt.Errorf("load persisted session: %w", err)
		}
		if manager.Authenticated() {
			fmt.Println("Already authenticated.")
			return nil
		}

		reader := bufio.NewReader(os.Stdin)

		contact := strings.TrimSpace(cfg.Auth.Contact)
		if contact == "" {
			contact, err = prompt(reader, "Contact (phone number): ")
			if err != nil {
				return err
			}
		}

		status, err := manager.Start(ctx, cfg.Auth.Identity, cfg.Auth.Secret, contact)
		if err != nil {
			return fmt.Errorf("request code: %w", err)
		}
		fmt.Println("Code sent.")

		for status.State == auth.StateCodeRequested {
			code, promptErr := prompt(reader, "Code: ")
			if promptErr != nil {
				return promptErr
			}

			status, err = manager.SubmitCode(ctx, code)
			if err != nil {
				if retryAfter, ok := errors.RetryAfter(err); ok {
					fmt.Printf("Rate limited, retry after %s.\n", retryAfter)
					return err
				}
				if errors.IsCategory(err, errors.ErrRetryableAuth) {
					fmt.Println("Code rejected, try again.")
					continue
				}
				return fmt.Errorf("submit code: %w", err)
			}
		}

		for status.State == auth.StatePasswordRequested {
			password, promptErr := prompt(reader, "Password: ")
			if promptErr != nil {
				return promptErr
			}

			status, err = manager.SubmitPassword(ctx, password)
			if err != nil {
				if errors.IsCategory(err, errors.ErrRetryableAuth) {
					fmt.Println("Password rejected, try again.")
					continue
				}
				return fmt.Errorf("submit password: %w", err)
			}
		}

		if status.State == auth.StateAuthenticated {
			fmt.Println("✓ Authenticated. Session persisted.")
			return nil
		}
		return fmt.Errorf("login ended in state %s", status.State)
	},
}

func prompt(reader *bufio.Reader, label string) (string, error) {
	fmt.Print(label)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func init() {
	rootCmd.AddCommand(loginCmd)
}
