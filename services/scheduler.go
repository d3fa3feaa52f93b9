// services/scheduler.go
package services

import (
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
)

func (s *PropertyService) StartFundingScheduler() {
	sched, _ := gocron.NewScheduler()
	sched.Start()

	// Every minute: settle funding windows whose deadline height passed
	_, _ = sched.NewJob(
		gocron.DurationJob(1*time.Minute),
		gocron.NewTask(func() {
			settled, err := s.SweepFundingDeadlines()
			if err != nil {
				log.Printf("[Scheduler] funding sweep error: %v", err)
				return
			}
			if settled > 0 {
				log.Printf("✅ Settled %d expired funding windows", settled)
			}
		}),
	)
}
