package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/loqalabs/loqa-scribe/internal/auth"
	"github.com/spf13/cobra"
)

func NewKeysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Inspect API key files",
	}
	cmd.AddCommand(newKeysCheckCmd())
	return cmd
}

func newKeysCheckCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate an API keys file",
		Long:  `Validate a JSON object mapping API keys to client names, e.g. {"sk-123": "mobile-app"}.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			keys, err := auth.LoadKeys(path)
			if err != nil {
				return err
			}
			var problems []string
			clients := make([]string, 0, len(keys))
			for key, client := range keys {
				if strings.TrimSpace(key) == "" {
					problems = append(problems, "empty key")
				}
				if strings.TrimSpace(client) == "" {
					problems = append(problems, fmt.Sprintf("key %s has no client name", redact(key)))
				}
				clients = append(clients, client)
			}
			if len(problems) > 0 {
				sort.Strings(problems)
				return fmt.Errorf("invalid api keys file: %s", strings.Join(problems, "; "))
			}
			sort.Strings(clients)
			fmt.Fprintf(cmd.OutOrStdout(), "%d keys ok: %s\n", len(keys), strings.Join(clients, ", "))
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "file", "api_keys.json", "path to the API keys file")
	return cmd
}

// redact keeps the first four characters of a key.
func redact(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return key[:4] + "****"
}
