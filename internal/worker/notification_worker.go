package worker

import (
	"go.uber.org/zap"

	"github.com/tutorlink/session-core/internal/events"
	"github.com/tutorlink/session-core/internal/service"
)

// StartNotificationWorker subscribes the notification service to every
// collaborator event type. Delivery happens on the publisher's goroutine.
func StartNotificationWorker(notificationService *service.NotificationService, logger *zap.Logger) {
	if notificationService == nil {
		return
	}
	notificationService.RegisterHandlers()
	if logger != nil {
		types := make([]string, 0, len(events.KnownTypes))
		for _, t := range events.KnownTypes {
			types = append(types, string(t))
		}
		logger.Info("notification forwarding enabled", zap.Strings("event_types", types))
	}
}
