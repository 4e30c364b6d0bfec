package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"estatecollab/internal/syncagent"
)

var rootCmd = &cobra.Command{
	Use:   "collabctl",
	Short: "Command-line client for the collaboration API",
	Long: `collabctl talks to the collaboration API as one agent.
- Collaborations: propose on a property or search ad, respond, sign the contract, activate, validate progress steps and terminate.
- Notifications: list, count and mark read.
- watch: keep a live session open and ring the terminal bell on new events.

Configuration comes from flags or COLLABCTL_API, COLLABCTL_TOKEN and COLLABCTL_USER_ID.`,
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		var apiErr *syncagent.APIError
		if errors.As(err, &apiErr) && apiErr.Code != "" {
			fmt.Fprintf(os.Stderr, "error: %s (%s)\n", apiErr.Message, apiErr.Code)
		} else {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("COLLABCTL")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().String("api", "http://localhost:8080/api/v1", "API base URL")
	rootCmd.PersistentFlags().String("token", "", "bearer token")
	rootCmd.PersistentFlags().Int64("user-id", 0, "user id of the token (watch)")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	_ = viper.BindPFlag("api", rootCmd.PersistentFlags().Lookup("api"))
	_ = viper.BindPFlag("token", rootCmd.PersistentFlags().Lookup("token"))
	_ = viper.BindPFlag("user-id", rootCmd.PersistentFlags().Lookup("user-id"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func registerCommands() {
	rootCmd.AddCommand(watchCmd())
	rootCmd.AddCommand(notificationsCmd())
	rootCmd.AddCommand(collabCmd())
}

func newClient() (*syncagent.Client, error) {
	token := viper.GetString("token")
	if token == "" {
		return nil, errors.New("token is required (--token or COLLABCTL_TOKEN)")
	}
	return syncagent.NewClient(viper.GetString("api"), token), nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
