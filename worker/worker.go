package worker

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"

	"github.com/frostpeak/gatewarden/broker"
	"github.com/frostpeak/gatewarden/config"
	"github.com/frostpeak/gatewarden/mailer"
	"github.com/frostpeak/gatewarden/types"
)

const lostApprovalTemplate = "./mailer/templates/lost-approval.html"

// Messenger is the slice of the Discord session the worker needs to deliver
// direct messages.
type Messenger interface {
	UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Service consumes resolution notifications from the queue and delivers
// them: a DM to the requester for approvals and denials, and an ops alert
// mail for approvals that were claimed but never applied.
type Service struct {
	session Messenger
	smtp    config.SMTP
	logger  *logrus.Logger
}

// NewService creates a notification delivery worker.
func NewService(session Messenger, smtp config.SMTP, logger *logrus.Logger) *Service {
	return &Service{
		session: session,
		smtp:    smtp,
		logger:  logger,
	}
}

// Run processes queued notifications until the delivery channel closes.
// Messages that can not even be decoded go to the dead letter queue.
func (s *Service) Run(msgs <-chan amqp.Delivery) {
	s.logger.Info("Worker start. Listening for notifications..")
	for d := range msgs {
		notification, err := broker.Deserialize(d.Body)
		if err != nil {
			s.logger.WithFields(logrus.Fields{
				"messageBody": string(d.Body),
				"err":         err,
			}).Error("Unable to decode message into notification")
			d.Nack(false, false)
			continue
		}
		if err := s.Deliver(notification); err != nil {
			s.logger.WithFields(logrus.Fields{
				"requestId": notification.Request.ID,
				"err":       err,
			}).Error("Failed to deliver notification")
			d.Nack(false, false)
			continue
		}
		d.Ack(false)
	}
}

// Deliver handles a single decoded notification.
func (s *Service) Deliver(notification types.Notification) error {
	log := s.logger.WithFields(logrus.Fields{
		"requestId": notification.Request.ID,
		"status":    notification.Status.String(),
	})
	log.Info("Received resolution notification")

	if notification.Status.LostApproval() {
		return s.alertOps(notification)
	}

	channel, err := s.session.UserChannelCreate(notification.Request.RequesterID)
	if err != nil {
		return fmt.Errorf("open dm channel: %w", err)
	}
	if _, err := s.session.ChannelMessageSendEmbed(channel.ID, decisionEmbed(notification)); err != nil {
		return fmt.Errorf("send dm: %w", err)
	}
	log.WithField("recipient", notification.Request.RequesterID).Info("Decision DM sent")
	return nil
}

// alertOps mails the configured ops alias about an approval that destroyed
// the pending record without applying the whitelist command. Skipped when no
// SMTP settings are configured.
func (s *Service) alertOps(notification types.Notification) error {
	if s.smtp.OpsEmail == "" {
		s.logger.WithFields(logrus.Fields{
			"requestId": notification.Request.ID,
			"status":    notification.Status.String(),
		}).Warn("Lost approval and no ops email configured; follow up manually")
		return nil
	}
	subject := "[Action Required] Whitelist approval for " + notification.Request.MinecraftUsername + " was not applied"
	err := mailer.Send(lostApprovalTemplate, map[string]string{
		"RequestID": notification.Request.ID,
		"Username":  notification.Request.MinecraftUsername,
		"Server":    serverLabel(notification),
		"Actor":     notification.ActorID,
		"Reason":    notification.Status.String(),
		"Detail":    notification.Detail,
	}, subject, s.smtp.OpsEmail, s.smtp)
	if err != nil {
		return fmt.Errorf("send ops alert: %w", err)
	}
	s.logger.WithFields(logrus.Fields{
		"requestId": notification.Request.ID,
		"recipient": s.smtp.OpsEmail,
	}).Info("Ops alert mail sent")
	return nil
}

func serverLabel(notification types.Notification) string {
	if notification.ServerName != "" {
		return notification.ServerName
	}
	return notification.Request.ServerID
}

func decisionEmbed(notification types.Notification) *discordgo.MessageEmbed {
	if notification.Status == types.StatusApproved {
		return &discordgo.MessageEmbed{
			Title: ":white_check_mark: Whitelist request approved!",
			Color: 0x40a02b,
			Description: fmt.Sprintf("You have been whitelisted as `%s` on **%s**. Have fun!",
				notification.Request.MinecraftUsername, serverLabel(notification)),
		}
	}
	return &discordgo.MessageEmbed{
		Title: ":x: Whitelist request denied",
		Color: 0xd20f39,
		Description: fmt.Sprintf("Your whitelist request for **%s** was denied by the moderators.",
			serverLabel(notification)),
	}
}
