package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/smtp"
	"time"

	"github.com/redis/go-redis/v9"

	"trainslot/internal/events"
	"trainslot/internal/logger"
	"trainslot/internal/metrics"
	"trainslot/internal/user"
)

const (
	maxSendAttempts = 3
	failedKey       = "notifications:failed"
)

// UserDirectory resolves event participant ids to addressable users.
type UserDirectory interface {
	FindByID(ctx context.Context, id int) (*user.User, error)
}

// Service drains the lifecycle event queue and turns events into emails.
// It sits outside the booking core: the core never waits on it.
type Service struct {
	redis    *redis.Client
	users    UserDirectory
	from     string
	fromName string
	smtpHost string
	smtpPort string
	smtpUser string
	smtpPass string
}

func New(fromEmail, fromName, smtpHost, smtpPort, smtpUser, smtpPass, redisAddr string, users UserDirectory) *Service {
	return &Service{
		redis: redis.NewClient(&redis.Options{
			Addr: redisAddr,
		}),
		users:    users,
		from:     fromEmail,
		fromName: fromName,
		smtpHost: smtpHost,
		smtpPort: smtpPort,
		smtpUser: smtpUser,
		smtpPass: smtpPass,
	}
}

func (s *Service) Start(ctx context.Context) {
	logger.Info("Notification dispatcher started")

	for {
		select {
		case <-ctx.Done():
			logger.Info("Notification dispatcher stopped")
			return
		default:
			s.processNext(ctx)
		}
	}
}

func (s *Service) processNext(ctx context.Context) {
	if length, err := s.redis.LLen(ctx, events.QueueKey).Result(); err == nil {
		metrics.NotificationQueueLength.Set(float64(length))
	}

	result, err := s.redis.BRPop(ctx, 2*time.Second, events.QueueKey).Result()
	if err != nil {
		return
	}

	var evt events.Event
	if err := json.Unmarshal([]byte(result[1]), &evt); err != nil {
		logger.Errorf("Bad event data: %v", err)
		return
	}

	s.handle(ctx, evt)
}

func (s *Service) handle(ctx context.Context, evt events.Event) {
	recipient, err := s.users.FindByID(ctx, evt.CustomerID)
	if err != nil {
		logger.Error("No recipient for event", "type", evt.Type, "customer_id", evt.CustomerID)
		metrics.RecordNotification(evt.Type, "skipped")
		return
	}

	subject, body := render(evt, recipient.Name)

	for attempt := 1; attempt <= maxSendAttempts; attempt++ {
		if err = s.send(recipient.Email, subject, body); err == nil {
			metrics.RecordNotification(evt.Type, "sent")
			logger.Infof("Notification sent: %s to %s", evt.Type, recipient.Email)
			return
		}
		logger.Errorf("Failed to send notification to %s (attempt %d): %v", recipient.Email, attempt, err)
		time.Sleep(time.Duration(attempt) * time.Second)
	}

	metrics.RecordNotification(evt.Type, "failed")
	s.saveFailed(evt, err)
}

func render(evt events.Event, name string) (subject, body string) {
	switch evt.Type {
	case events.TypeSessionBooked:
		return "Your session is booked",
			fmt.Sprintf("Hi %s,\n\nYour training session #%d is booked.", name, evt.SessionID)
	case events.TypeSessionCancelled:
		return "Your session was cancelled",
			fmt.Sprintf("Hi %s,\n\nSession #%d was cancelled by the %s.", name, evt.SessionID, evt.Actor)
	case events.TypeSessionRescheduled:
		return "Your session was rescheduled",
			fmt.Sprintf("Hi %s,\n\nSession #%d was moved; your new session is #%d.", name, evt.SessionID, evt.NewSessionID)
	case events.TypeSessionCompleted:
		return "Session completed",
			fmt.Sprintf("Hi %s,\n\nSession #%d is complete. Your trainer left notes for you.", name, evt.SessionID)
	case events.TypeSessionNoShow:
		return "Missed session",
			fmt.Sprintf("Hi %s,\n\nYou missed session #%d. The session credit was used.", name, evt.SessionID)
	case events.TypePackageExpiringSoon:
		return "Your package expires soon",
			fmt.Sprintf("Hi %s,\n\nPackage purchase #%d expires in %d days. Book your remaining sessions!", name, evt.PurchaseID, evt.DaysLeft)
	default:
		return "TrainSlot update",
			fmt.Sprintf("Hi %s,\n\nThere is an update on your account.", name)
	}
}

func (s *Service) send(to, subject, body string) error {
	message := fmt.Sprintf("From: %s <%s>\r\n", s.fromName, s.from)
	message += fmt.Sprintf("To: %s\r\n", to)
	message += fmt.Sprintf("Subject: %s\r\n", subject)
	message += "\r\n" + body

	var auth smtp.Auth
	if s.smtpUser != "" && s.smtpPass != "" {
		auth = smtp.PlainAuth("", s.smtpUser, s.smtpPass, s.smtpHost)
	}

	addr := s.smtpHost + ":" + s.smtpPort
	return smtp.SendMail(addr, auth, s.from, []string{to}, []byte(message))
}

func (s *Service) saveFailed(evt events.Event, sendErr error) {
	failed := map[string]interface{}{
		"event": evt,
		"error": sendErr.Error(),
		"at":    time.Now(),
	}

	data, err := json.Marshal(failed)
	if err != nil {
		return
	}

	field := fmt.Sprintf("%s:%d:%d", evt.Type, evt.SessionID, time.Now().UnixNano())
	if err := s.redis.HSet(context.Background(), failedKey, field, data).Err(); err != nil {
		logger.Errorf("Failed to park notification: %v", err)
	}
}

func (s *Service) Close() error {
	return s.redis.Close()
}
