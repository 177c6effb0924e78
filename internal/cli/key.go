package cli

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"studio/internal/infra/credentials"
)

func newKeyCommand(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Manage the stored Gemini API key",
	}

	var fromEnv bool
	set := &cobra.Command{
		Use:   "set [api-key]",
		Short: "Store the Gemini API key",
		Long: `Store the Gemini API key used for every request.

The key is taken from the argument, from GEMINI_API_KEY with --from-env, or
read from the first line of stdin.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := readKey(cmd, args, fromEnv)
			if err != nil {
				return err
			}
			if err := e.store.Set(cmd.Context(), key); err != nil {
				if errors.Is(err, credentials.ErrBlankKey) {
					return errors.New("please enter a valid API key")
				}
				return fmt.Errorf("save api key: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Gemini API key stored")
			return nil
		},
	}
	set.Flags().BoolVar(&fromEnv, "from-env", false, "Read the key from GEMINI_API_KEY")

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove the stored Gemini API key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := e.store.Clear(cmd.Context()); err != nil {
				return fmt.Errorf("clear api key: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Gemini API key removed")
			return nil
		},
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Report whether a Gemini API key is stored",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ok, err := credentials.HasKey(cmd.Context(), e.store)
			if err != nil {
				return fmt.Errorf("read api key: %w", err)
			}
			if ok {
				fmt.Fprintln(cmd.OutOrStdout(), "configured")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "not configured")
			}
			return nil
		},
	}

	cmd.AddCommand(set, clearCmd, status)
	return cmd
}

func readKey(cmd *cobra.Command, args []string, fromEnv bool) (string, error) {
	switch {
	case len(args) == 1:
		return args[0], nil
	case fromEnv:
		return os.Getenv("GEMINI_API_KEY"), nil
	}
	fmt.Fprint(cmd.ErrOrStderr(), "Gemini API key: ")
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return "", errors.New("no api key provided")
	}
	return strings.TrimSpace(line), nil
}
