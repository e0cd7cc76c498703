package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bnema/deadlock-gc/internal/application"
	"github.com/bnema/deadlock-gc/internal/domain"
)

func newAccountCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage accounts",
	}

	cmd.AddCommand(
		newAccountSetCmd(app),
		newAccountListCmd(app),
		newAccountRemoveCmd(app),
	)

	return cmd
}

func newAccountSetCmd(app *app) *cobra.Command {
	var (
		accountID string
		username  string
		password  string
	)

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Store the username and password of an account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, err := resolveAccountID(cmd.Context(), app, accountID)
			if err != nil {
				return err
			}

			if password == "" {
				password, err = promptPassword(cmd.InOrStdin(), cmd.ErrOrStderr(), username)
				if err != nil {
					return err
				}
			}

			if err := app.service.SetCredentials(cmd.Context(), application.SetCredentialsCommand{
				ID:       id,
				Username: username,
				Password: password,
			}); err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "account %s saved\n", id)
			return err
		},
	}

	cmd.Flags().StringVar(&accountID, "account", "", "Account id (empty or 0 assigns the next free number)")
	cmd.Flags().StringVar(&username, "username", "", "Platform account name")
	cmd.Flags().StringVar(&password, "password", "", "Platform password (read from stdin when empty)")
	_ = cmd.MarkFlagRequired("username")

	return cmd
}

func newAccountListCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured accounts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			accounts, err := app.service.ListAccounts(cmd.Context())
			if err != nil {
				return err
			}

			for _, account := range accounts {
				marker := ""
				if string(account.ID) == app.cfg.Account {
					marker = "\t(default)"
				}
				if !account.LastSessionAt.IsZero() {
					marker += "\tlast session " + account.LastSessionAt.Local().Format("2006-01-02 15:04")
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s%s\n", account.ID, account.Username, marker)
			}

			return nil
		},
	}
}

func newAccountRemoveCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <account>",
		Short: "Remove an account and its stored secrets",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := domain.AccountID(strings.TrimSpace(args[0]))
			if err := app.service.RemoveAccount(cmd.Context(), application.RemoveAccountCommand{ID: id}); err != nil {
				return err
			}

			_, err := fmt.Fprintf(cmd.OutOrStdout(), "account %s removed\n", id)
			return err
		},
	}
}

func promptPassword(in io.Reader, out io.Writer, username string) (string, error) {
	_, _ = fmt.Fprintf(out, "Password for %s: ", username)

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	_, _ = fmt.Fprintln(out)

	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return "", fmt.Errorf("password is required")
	}
	return password, nil
}
