package server

import (
	"log"

	"github.com/tripmates/tripchat/internal/database"
	"github.com/tripmates/tripchat/internal/stats"
)

// Broadcaster fans a frame out to every connection bound to a trip.
type Broadcaster interface {
	BroadcastToTrip(tripId int, frame *ServerFrame)
}

// Notifier pushes notification frames to trip members and records them
// in the activity feed. Sends are fire and forget, failures are logged
// and never surfaced to the originating client.
type Notifier struct {
	log         *log.Logger
	db          database.TripChatRepository
	broadcaster Broadcaster
	stats       stats.StatsProvider
}

func NewNotifier(logger *log.Logger, db database.TripChatRepository, b Broadcaster, statsUpdater stats.StatsProvider) *Notifier {
	return &Notifier{
		log:         logger,
		db:          db,
		broadcaster: b,
		stats:       statsUpdater,
	}
}

func (n *Notifier) Send(tripId, userId int, activityType, title, message, itemName string) {
	var userName string
	user, err := n.db.GetUser(userId)
	if err != nil {
		n.log.Printf("notifier: failed to load user %d: %s", userId, err)
	} else {
		userName = user.DisplayName
		if userName == "" {
			userName = user.Username
		}
	}

	n.broadcaster.BroadcastToTrip(tripId, NewServerFrame(FrameNotification, NotificationPayload{
		Type:      activityType,
		Title:     title,
		Message:   message,
		TripId:    tripId,
		UserId:    userId,
		UserName:  userName,
		ItemName:  itemName,
		Timestamp: Now(),
	}))

	if _, err := n.db.CreateActivity(database.CreateActivityParams{
		TripId:       tripId,
		UserId:       userId,
		ActivityType: activityType,
		ActivityData: map[string]string{
			"itemName": itemName,
			"message":  message,
		},
	}); err != nil {
		n.log.Printf("notifier: failed to record activity for trip %d: %s", tripId, err)
	}

	n.stats.Incr(metricNotificationsSent)
}
