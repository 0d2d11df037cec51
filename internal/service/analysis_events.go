package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/noah-isme/gema-grading-api/internal/middleware"
	"github.com/noah-isme/gema-grading-api/internal/models"
)

// AnalysisCompletedEvent is broadcast after a successful engine analysis.
type AnalysisCompletedEvent struct {
	StudentName     string                `json:"studentName"`
	Overall         int                   `json:"overall"`
	ConfidenceScore int                   `json:"confidenceScore"`
	ConfidenceBand  models.ConfidenceBand `json:"confidenceBand"`
	CorrelationID   string                `json:"correlationId,omitempty"`
	AnalyzedAt      time.Time             `json:"analyzedAt"`
}

// AnalysisPublisher announces completed analyses to interested consumers.
type AnalysisPublisher interface {
	PublishAnalysisCompleted(ctx context.Context, event AnalysisCompletedEvent) error
}

type natsAnalysisPublisher struct {
	conn    *nats.Conn
	subject string
}

// NewNATSAnalysisPublisher publishes events on subject + ".completed".
func NewNATSAnalysisPublisher(conn *nats.Conn, subject string) AnalysisPublisher {
	if subject == "" {
		subject = "gema.grading.analysis"
	}
	return &natsAnalysisPublisher{conn: conn, subject: subject + ".completed"}
}

func (p *natsAnalysisPublisher) PublishAnalysisCompleted(ctx context.Context, event AnalysisCompletedEvent) error {
	if p.conn == nil {
		return nil
	}
	if event.CorrelationID == "" {
		event.CorrelationID = middleware.CorrelationIDFromContext(ctx)
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := nats.NewMsg(p.subject)
	msg.Data = payload
	if event.CorrelationID != "" {
		msg.Header.Set("X-Correlation-ID", event.CorrelationID)
	}

	return p.conn.PublishMsg(msg)
}
