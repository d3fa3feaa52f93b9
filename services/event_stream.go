package services

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"property-ledger-system/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// EventStreamService tails the ledger event audit table over SSE so
// gateway dashboards can follow investments, distributions and claims
// without polling the REST surface.
type EventStreamService struct {
	DB *gorm.DB
}

func NewEventStreamService(db *gorm.DB) *EventStreamService {
	return &EventStreamService{DB: db}
}

// StreamLedgerEventsSSE streams ledger events as they are recorded.
// Optional filters: ?property_id=... and ?kind=... narrow the feed.
func (s *EventStreamService) StreamLedgerEventsSSE(c *fiber.Ctx) error {
	propertyID := c.Query("property_id")
	kind := c.Query("kind")

	// SSE headers
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no") // nginx

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()

		filtered := func(q *gorm.DB) *gorm.DB {
			if propertyID != "" {
				q = q.Where("property_id = ?", propertyID)
			}
			if kind != "" {
				q = q.Where("kind = ?", kind)
			}
			return q
		}

		// Initialize the cursor at the newest existing event so the feed
		// only carries what happens after the client connects.
		var lastMaxCreatedAt time.Time
		var latest models.LedgerEvent
		if err := filtered(s.DB).
			Order("created_at DESC").
			First(&latest).Error; err == nil {
			lastMaxCreatedAt = latest.CreatedAt
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("[EVENTS] SSE init error: %v", err)
		}

		// Initial keepalive (comment event)
		w.WriteString(":\n\n")
		w.Flush()

		for {
			select {
			case <-ticker.C:
				var events []models.LedgerEvent
				err := filtered(s.DB).
					Where("created_at > ?", lastMaxCreatedAt).
					Order("created_at ASC").
					Find(&events).Error
				if err != nil {
					log.Printf("[EVENTS] SSE query error: %v", err)
					continue
				}
				if len(events) == 0 {
					continue
				}
				lastMaxCreatedAt = events[len(events)-1].CreatedAt

				for _, e := range events {
					payload, _ := json.Marshal(e)
					fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Kind, payload)
				}

				if err := w.Flush(); err != nil {
					// Client disconnected
					return
				}

			case <-c.Context().Done():
				return
			}
		}
	})

	return nil
}

// HandleGetRecentEvents is the polling fallback for clients without SSE.
func (s *EventStreamService) HandleGetRecentEvents(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	if limit < 1 || limit > 500 {
		limit = 50
	}
	q := s.DB.Order("created_at DESC").Limit(limit)
	if propertyID := c.Query("property_id"); propertyID != "" {
		q = q.Where("property_id = ?", propertyID)
	}
	if kind := c.Query("kind"); kind != "" {
		q = q.Where("kind = ?", kind)
	}
	var events []models.LedgerEvent
	if err := q.Find(&events).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Database error"})
	}
	return c.JSON(events)
}
