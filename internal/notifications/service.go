package notifications

import (
	"time"

	"go.uber.org/zap"

	"carbon-scribe/restoration-portal/internal/projects"
)

// Service turns lifecycle events into push messages.
type Service struct {
	publisher Publisher
	logger    *zap.Logger
	now       func() time.Time
}

func NewService(publisher Publisher, logger *zap.Logger) *Service {
	return &Service{publisher: publisher, logger: logger, now: time.Now}
}

// Progress publishes an analysis progress update.
func (s *Service) Progress(projectID string, progress float64) {
	s.publish(Message{
		Type:      MessageTypeProgress,
		ProjectID: projectID,
		Data:      map[string]any{"progress": progress},
	})
}

// Completed publishes the end of an analysis run, successful or not.
func (s *Service) Completed(projectID string, result *projects.AnalysisResult, err error) {
	if err != nil {
		s.publish(Message{
			Type:      MessageTypeFailed,
			ProjectID: projectID,
			Data:      map[string]any{"error": err.Error()},
		})
		return
	}
	data := map[string]any{}
	if result != nil {
		data["hasVegetation"] = result.HasVegetation
		data["carbonRestored"] = result.CarbonRestored
		data["biomassDetected"] = result.BiomassDetected.String()
		data["confidence"] = result.Confidence.String()
	}
	s.publish(Message{Type: MessageTypeCompleted, ProjectID: projectID, Data: data})
}

// CreditsIssued publishes a ledger credit for a project.
func (s *Service) CreditsIssued(projectID string, amount, balance int64) {
	s.publish(Message{
		Type:      MessageTypeCreditsIssued,
		ProjectID: projectID,
		Data:      map[string]any{"amount": amount, "balance": balance},
	})
}

func (s *Service) publish(msg Message) {
	if s.publisher == nil {
		return
	}
	msg.Timestamp = s.now().UTC()
	if err := s.publisher.Publish(msg); err != nil {
		s.logger.Warn("Failed to publish notification",
			zap.String("type", msg.Type),
			zap.String("project_id", msg.ProjectID),
			zap.Error(err))
	}
}
