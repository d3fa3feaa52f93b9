package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"property-ledger-system/models"

	"gorm.io/gorm"
)

// HeightSyncClient mirrors the settlement chain's block height into the
// local ledger_states row. Every timelock, cooldown and holding period
// in the services layer guards against this counter, so the poll
// interval bounds how stale those guards can be.
type HeightSyncClient struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	DB         *gorm.DB
}

func NewHeightSyncClient(db *gorm.DB) *HeightSyncClient {
	baseURL := os.Getenv("HOST_RPC_URL")
	if baseURL == "" {
		log.Fatal("HOST_RPC_URL environment variable is required")
	}
	token := os.Getenv("LEDGER_SERVICE_TOKEN")
	if token == "" {
		log.Fatal("LEDGER_SERVICE_TOKEN environment variable is required for height sync")
	}

	return &HeightSyncClient{
		BaseURL: baseURL,
		Token:   token,
		DB:      db,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *HeightSyncClient) GetCurrentHeight(ctx context.Context) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.BaseURL+"/api/v1/status", nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Service-Token", c.Token)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to call host RPC: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return 0, fmt.Errorf("host RPC returned status %d: %s", resp.StatusCode, string(body))
	}

	var response struct {
		Height int64 `json:"height"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return 0, fmt.Errorf("failed to decode host RPC response: %w", err)
	}
	return response.Height, nil
}

// PollHeight keeps ledger_states.current_height fresh. The mirrored
// height only ever moves forward; a host responding with a lower height
// (reorg, failover to a lagging node) is logged and skipped.
func PollHeight(ctx context.Context, client *HeightSyncClient, pollInterval time.Duration) {
	log.Println("Starting ledger height polling...")

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Height polling stopped.")
			return
		case <-ticker.C:
			height, err := client.GetCurrentHeight(ctx)
			if err != nil {
				log.Printf("❌ Error polling height: %v", err)
				continue
			}

			var state models.LedgerState
			if err := client.DB.FirstOrCreate(&state, models.LedgerState{ID: 1}).Error; err != nil {
				log.Printf("❌ Failed to load ledger state: %v", err)
				continue
			}
			if height < state.CurrentHeight {
				log.Printf("⚠️ Host reported height %d below mirrored %d, skipping", height, state.CurrentHeight)
				continue
			}
			if height == state.CurrentHeight {
				continue
			}

			state.CurrentHeight = height
			state.SyncedAt = time.Now().UTC()
			if err := client.DB.Save(&state).Error; err != nil {
				log.Printf("❌ Failed to update ledger height to %d: %v", height, err)
				continue
			}
			log.Printf("📥 Ledger height advanced to %d", height)
		}
	}
}
