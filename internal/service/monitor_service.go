package service

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-session/internal/model"
	"github.com/stemsi/exstem-session/internal/repository"
)

// MonitorService orchestrates the data behind the proctor incident relay.
type MonitorService struct {
	monitorRepo *repository.MonitorRepository
}

// NewMonitorService creates a new MonitorService.
func NewMonitorService(monitorRepo *repository.MonitorRepository) *MonitorService {
	return &MonitorService{monitorRepo: monitorRepo}
}

// AttemptProgress is one attempt in a relay snapshot.
type AttemptProgress struct {
	repository.AttemptRow
	AnsweredCount int64 `json:"answered_count"`
	IncidentCount int64 `json:"incident_count"`
}

// ExamProgressSnapshot is the state a proctor sees when attaching to the relay.
type ExamProgressSnapshot struct {
	Attempts       []AttemptProgress `json:"attempts"`
	TotalIncidents int64             `json:"total_incidents"`
}

// GetExamProgress lists the attempts of an exam decorated with live answered counts
// (from the Redis snapshots) and incident counts (from PostgreSQL). The two lookups
// run concurrently; incident counts are best-effort.
func (s *MonitorService) GetExamProgress(ctx context.Context, examID uuid.UUID) (*ExamProgressSnapshot, error) {
	attempts, err := s.monitorRepo.ListAttempts(ctx, examID)
	if err != nil {
		return nil, err
	}

	live := make([]int, 0, len(attempts))
	for _, a := range attempts {
		if a.Status == model.SessionStatusInProgress {
			live = append(live, a.StudentID)
		}
	}

	var (
		answeredCounts map[int]int64
		incidentCounts map[int]int64
		answeredErr    error
		incidentErr    error
		wg             sync.WaitGroup
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		answeredCounts, answeredErr = s.monitorRepo.GetAnsweredCounts(ctx, examID, live)
	}()
	go func() {
		defer wg.Done()
		incidentCounts, incidentErr = s.monitorRepo.GetIncidentCounts(ctx, examID)
	}()
	wg.Wait()

	if answeredErr != nil {
		return nil, answeredErr
	}

	snapshot := &ExamProgressSnapshot{Attempts: make([]AttemptProgress, len(attempts))}
	for i, a := range attempts {
		snapshot.Attempts[i] = AttemptProgress{AttemptRow: a, AnsweredCount: answeredCounts[a.StudentID]}
		if incidentErr == nil {
			snapshot.Attempts[i].IncidentCount = incidentCounts[a.StudentID]
		}
	}
	if incidentErr == nil {
		for _, n := range incidentCounts {
			snapshot.TotalIncidents += n
		}
	}
	return snapshot, nil
}
