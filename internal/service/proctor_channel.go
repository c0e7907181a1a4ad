package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-session/internal/config"
	"github.com/stemsi/exstem-session/internal/examsession"
	"github.com/stemsi/exstem-session/internal/model"
)

var ErrChannelClosed = errors.New("proctor channel closed")

// ProctorChannel forwards a student's incidents to the exam monitor channel and
// queues them for the incident table.
type ProctorChannel struct {
	rdb       *redis.Client
	examID    uuid.UUID
	studentID int
	closed    atomic.Bool
	log       zerolog.Logger
}

var _ examsession.ProctorChannel = (*ProctorChannel)(nil)

// NewProctorChannel creates the channel of one attempt. Incidents can be published
// before Connect completes; only Close stops them.
func NewProctorChannel(rdb *redis.Client, examID uuid.UUID, studentID int, log zerolog.Logger) *ProctorChannel {
	return &ProctorChannel{
		rdb:       rdb,
		examID:    examID,
		studentID: studentID,
		log: log.With().
			Str("component", "proctor_channel").
			Str("exam_id", examID.String()).
			Int("student_id", studentID).
			Logger(),
	}
}

// Connect checks that Redis is reachable. A failure is reported but leaves the
// channel usable, so later incidents are still attempted.
func (p *ProctorChannel) Connect(ctx context.Context) error {
	if p.closed.Load() {
		return ErrChannelClosed
	}
	if err := p.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("connect proctor channel: %w", err)
	}
	p.log.Debug().Msg("Proctor channel connected")
	return nil
}

func (p *ProctorChannel) Publish(ctx context.Context, event model.ProctorEvent) error {
	if p.closed.Load() {
		return ErrChannelClosed
	}

	notice, err := json.Marshal(model.MonitorMessage{
		Type:      model.MonitorIncident,
		StudentID: p.studentID,
		Data:      event,
	})
	if err != nil {
		return fmt.Errorf("marshal incident: %w", err)
	}
	row, err := json.Marshal(model.IncidentMessage(event))
	if err != nil {
		return fmt.Errorf("marshal incident: %w", err)
	}

	pipe := p.rdb.Pipeline()
	pipe.Publish(ctx, config.CacheKey.ExamMonitorChannel(p.examID.String()), notice)
	pipe.RPush(ctx, config.WorkerKey.PersistIncidentsQueue, row)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish incident: %w", err)
	}
	return nil
}

func (p *ProctorChannel) Close() error {
	if !p.closed.Swap(true) {
		p.log.Debug().Msg("Proctor channel closed")
	}
	return nil
}
