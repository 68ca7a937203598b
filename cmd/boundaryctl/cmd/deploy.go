package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	stdhttp "net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	deployBundleFile string
	deployStrategy   string
	deployPercent    float64
	deploySplit      float64
)

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Install a rule bundle and activate it under a rollout strategy",
	Long: `Install a rule bundle (a JSON document matching the POST /v1/bundles
request body) against a running boundaryctl serve instance, then activate
it under the given strategy: blue_green, canary, ab, or scheduled.

Examples:
  boundaryctl deploy --bundle ./egress-guard.json --strategy canary --percent 0.1`,
	RunE: runDeploy,
}

var rollbackCmd = &cobra.Command{
	Use:   "rollback <bundle-id>",
	Short: "Revert a bundle's active deployment to its predecessor",
	Args:  cobra.ExactArgs(1),
	RunE:  runRollback,
}

func init() {
	deployCmd.Flags().StringVar(&deployBundleFile, "bundle", "", "path to the bundle install request JSON (required)")
	deployCmd.Flags().StringVar(&deployStrategy, "strategy", "blue_green", "rollout strategy: blue_green, canary, ab, scheduled")
	deployCmd.Flags().Float64Var(&deployPercent, "percent", 0, "canary traffic fraction routed to the new version, [0,1]")
	deployCmd.Flags().Float64Var(&deploySplit, "split", 0, "ab traffic fraction routed to the B version, [0,1]")
	_ = deployCmd.MarkFlagRequired("bundle")

	deployCmd.Flags().StringVar(&adminAddr, "addr", "http://127.0.0.1:8080", "base URL of the running boundaryctl serve instance")
	deployCmd.Flags().StringVar(&adminAPIKey, "api-key", "", "admin API key (Bearer token)")
	rollbackCmd.Flags().StringVar(&adminAddr, "addr", "http://127.0.0.1:8080", "base URL of the running boundaryctl serve instance")
	rollbackCmd.Flags().StringVar(&adminAPIKey, "api-key", "", "admin API key (Bearer token)")

	rootCmd.AddCommand(deployCmd)
	rootCmd.AddCommand(rollbackCmd)
}

func runDeploy(cmd *cobra.Command, args []string) error {
	body, err := os.ReadFile(deployBundleFile)
	if err != nil {
		return fmt.Errorf("failed to read bundle file: %w", err)
	}

	client := &stdhttp.Client{Timeout: 30 * time.Second}

	installResp, err := adminPost(client, "/v1/bundles", body)
	if err != nil {
		return fmt.Errorf("install failed: %w", err)
	}
	fmt.Println(string(installResp))

	bundleID, err := extractBundleID(installResp)
	if err != nil {
		return err
	}

	activateBody := []byte(fmt.Sprintf(
		`{"strategy":%q,"percent":%f,"split":%f}`,
		deployStrategy, deployPercent, deploySplit,
	))
	activateResp, err := adminPost(client, "/v1/bundles/"+bundleID+"/activate", activateBody)
	if err != nil {
		return fmt.Errorf("activate failed: %w", err)
	}

	fmt.Println(string(activateResp))
	return nil
}

func runRollback(cmd *cobra.Command, args []string) error {
	client := &stdhttp.Client{Timeout: 30 * time.Second}
	if _, err := adminPost(client, "/v1/bundles/"+args[0]+"/rollback", nil); err != nil {
		return fmt.Errorf("rollback failed: %w", err)
	}
	fmt.Println("rollback complete")
	return nil
}

func adminPost(client *stdhttp.Client, path string, body []byte) ([]byte, error) {
	req, err := stdhttp.NewRequest(stdhttp.MethodPost, adminAddr+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if adminAPIKey != "" {
		req.Header.Set("Authorization", "Bearer "+adminAPIKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%s: %s", resp.Status, string(respBody))
	}
	return respBody, nil
}

// extractBundleID picks "bundle_id" out of the install response.
func extractBundleID(body []byte) (string, error) {
	var resp struct {
		BundleID string `json:"bundle_id"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode install response: %w", err)
	}
	if resp.BundleID == "" {
		return "", fmt.Errorf("install response did not carry a bundle_id: %s", string(body))
	}
	return resp.BundleID, nil
}
