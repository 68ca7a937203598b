package cmd

import (
	"fmt"
	"io"
	stdhttp "net/http"
	"time"

	"github.com/spf13/cobra"
)

var (
	adminAddr   string
	adminAPIKey string
)

var reloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Trigger an out-of-band anchor repository refresh",
	Long: `Trigger an immediate rebuild of every rule family's Bridge snapshot
from the configured anchor repository, without waiting for the next
scheduled refresh cycle.

Examples:
  boundaryctl reload
  boundaryctl reload --addr http://localhost:9090 --api-key $BOUNDARYPLANE_ADMIN_KEY`,
	RunE: runReload,
}

func init() {
	reloadCmd.Flags().StringVar(&adminAddr, "addr", "http://127.0.0.1:8080", "base URL of the running boundaryctl serve instance")
	reloadCmd.Flags().StringVar(&adminAPIKey, "api-key", "", "admin API key (Bearer token), if the bundle CRUD surface is authenticated")
	rootCmd.AddCommand(reloadCmd)
}

func runReload(cmd *cobra.Command, args []string) error {
	req, err := stdhttp.NewRequest(stdhttp.MethodPost, adminAddr+"/v1/rules/refresh", nil)
	if err != nil {
		return err
	}
	if adminAPIKey != "" {
		req.Header.Set("Authorization", "Bearer "+adminAPIKey)
	}

	client := &stdhttp.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("reload request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != stdhttp.StatusOK {
		return fmt.Errorf("reload failed: %s: %s", resp.Status, string(body))
	}

	fmt.Println(string(body))
	return nil
}
