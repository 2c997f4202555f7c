// Package notify delivers review-queue events to reviewers.
package notify

import (
	"fmt"
	"log"

	"github.com/slack-go/slack"

	"github.com/rollcall/rollcall/internal/database"
)

// SlackNotifier posts a message to a channel whenever an observation is
// parked for review, so low-confidence matches do not sit unnoticed until
// someone opens the queue.
type SlackNotifier struct {
	client  *slack.Client
	channel string
}

// NewSlackNotifier creates a notifier posting to the given channel.
func NewSlackNotifier(botToken, channel string) *SlackNotifier {
	return &SlackNotifier{
		client:  slack.New(botToken),
		channel: channel,
	}
}

// ReviewQueued posts a short summary of the queued item. Delivery failures
// are logged and swallowed: notification is best-effort and must never block
// or fail a resolution.
func (n *SlackNotifier) ReviewQueued(item *database.PendingReviewItem) {
	text := reviewMessage(item)
	if _, _, err := n.client.PostMessage(n.channel, slack.MsgOptionText(text, false)); err != nil {
		log.Printf("SlackNotifier: failed to post review notification: %v", err)
	}
}

func reviewMessage(item *database.PendingReviewItem) string {
	return fmt.Sprintf(
		":mag: Attendee name needs review: %q (meeting %s, %d candidate(s), reason: %s)",
		item.RawName, item.MeetingInstanceID, len(item.Candidates), item.QueueReason,
	)
}
