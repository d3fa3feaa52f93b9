// workers/investor_sync_worker.go
package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"property-ledger-system/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ComplianceRecord matches the JSON response from the compliance service.
type ComplianceRecord struct {
	UserID      string    `json:"user_id"`
	Whitelisted bool      `json:"whitelisted"`
	Blacklisted bool      `json:"blacklisted"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// GetInvestorChangesResponse is the top-level structure of the compliance service response.
type GetInvestorChangesResponse struct {
	Investors []ComplianceRecord `json:"investors"`
}

// InvestorSyncWorker mirrors compliance decisions into investor_statuses.
// Rows owned by governance (source = "governance") are never touched by
// the sync: an explicit admin blacklist outranks the compliance feed.
type InvestorSyncWorker struct {
	db           *gorm.DB
	interval     time.Duration
	baseURL      string // e.g., "http://localhost:8600"
	endpointPath string // e.g., "/api/v1/public/investors"
	serviceToken string
	httpClient   *http.Client
}

func NewInvestorSyncWorker(db *gorm.DB, complianceBaseURL, endpointPath, serviceToken string) *InvestorSyncWorker {
	return &InvestorSyncWorker{
		db:           db,
		interval:     1 * time.Minute,
		baseURL:      complianceBaseURL,
		endpointPath: endpointPath,
		serviceToken: serviceToken,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (w *InvestorSyncWorker) Start(ctx context.Context) {
	log.Println("🔁 Starting Investor Sync Worker (compliance-service → investor_statuses)…")
	go w.run(ctx)
}

func (w *InvestorSyncWorker) run(ctx context.Context) {
	// Initial sync (backfill if needed) - sync from the beginning of time
	if err := w.syncBatch(ctx, time.Time{}); err != nil {
		log.Printf("⚠️ Initial investor sync failed: %v", err)
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			lastSyncTime := w.getLastSyncTime()
			if err := w.syncBatch(ctx, lastSyncTime); err != nil {
				log.Printf("❌ Investor sync batch failed: %v", err)
			}
		case <-ctx.Done():
			log.Println("⏹️ Investor Sync Worker stopped")
			return
		}
	}
}

// getLastSyncTime finds the most recent SyncedAt among compliance-owned rows.
func (w *InvestorSyncWorker) getLastSyncTime() time.Time {
	var lastTime time.Time
	err := w.db.Raw("SELECT MAX(synced_at) FROM investor_statuses WHERE source = 'compliance'").Scan(&lastTime).Error
	if err != nil || lastTime.IsZero() {
		return time.Unix(0, 0)
	}
	return lastTime
}

// syncBatch fetches investor status changes and upserts them, skipping
// governance-owned rows.
func (w *InvestorSyncWorker) syncBatch(ctx context.Context, since time.Time) error {
	sinceStr := since.UTC().Format(time.RFC3339)

	base, err := url.Parse(w.baseURL)
	if err != nil {
		return fmt.Errorf("invalid compliance service URL '%s': %w", w.baseURL, err)
	}
	endpointURL := base.JoinPath(w.endpointPath)
	q := endpointURL.Query()
	q.Set("since", sinceStr)
	endpointURL.RawQuery = q.Encode()
	finalURL := endpointURL.String()

	req, err := http.NewRequestWithContext(ctx, "GET", finalURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request to %s: %w", finalURL, err)
	}
	req.Header.Set("X-Service-Token", w.serviceToken)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		log.Printf("[SYNC] ❌ Request to %s failed: %v", finalURL, err)
		return fmt.Errorf("HTTP request to compliance service failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		log.Printf("[SYNC] ❌ Compliance service returned %d for %s: %s", resp.StatusCode, finalURL, string(body))
		return fmt.Errorf("compliance service non-200 response: %d — %s", resp.StatusCode, string(body))
	}

	var response GetInvestorChangesResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return fmt.Errorf("failed to decode compliance service response: %w", err)
	}

	if len(response.Investors) == 0 {
		return nil
	}

	log.Printf("[SYNC] 📥 Processing %d investor status change(s)…", len(response.Investors))

	var upsertCount, errorCount int
	now := time.Now().UTC()
	for _, record := range response.Investors {
		status := models.InvestorStatus{
			UserID:      record.UserID,
			Whitelisted: record.Whitelisted,
			Blacklisted: record.Blacklisted,
			Source:      "compliance",
			SyncedAt:    now,
		}

		err := w.db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			Where:     clause.Where{Exprs: []clause.Expression{clause.Neq{Column: clause.Column{Table: "investor_statuses", Name: "source"}, Value: "governance"}}},
			DoUpdates: clause.AssignmentColumns([]string{"whitelisted", "blacklisted", "source", "synced_at"}),
		}).Create(&status).Error
		if err != nil {
			errorCount++
			log.Printf("[SYNC] ⚠️ Failed to upsert investor status (user_id=%q): %v", record.UserID, err)
		} else {
			upsertCount++
		}
	}

	log.Printf("[SYNC] ✅ Synced %d investor(s) (%d upserted, %d errors)", len(response.Investors), upsertCount, errorCount)
	return nil
}
