package bot

import (
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"

	"coinscout/internal/domain"

	tele "gopkg.in/telebot.v3"
)

const alertMaxOpportunities = 5

type messageSender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// AlertDispatcher pushes scan completion summaries to subscribed chats.
// A chat must both link a user account and opt in to alerts before it
// receives anything.
type AlertDispatcher struct {
	sender messageSender

	mu          sync.RWMutex
	linkedUsers map[int64]string
	subscribers map[int64]struct{}
}

func NewAlertDispatcher(sender messageSender) *AlertDispatcher {
	return &AlertDispatcher{
		sender:      sender,
		linkedUsers: make(map[int64]string),
		subscribers: make(map[int64]struct{}),
	}
}

func (d *AlertDispatcher) Link(chatID int64, userID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.linkedUsers[chatID] = userID
}

func (d *AlertDispatcher) LinkedUser(chatID int64) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	userID, ok := d.linkedUsers[chatID]
	return userID, ok
}

func (d *AlertDispatcher) Subscribe(chatID int64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.subscribers[chatID]; exists {
		return false
	}
	d.subscribers[chatID] = struct{}{}
	return true
}

func (d *AlertDispatcher) Unsubscribe(chatID int64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.subscribers[chatID]; !exists {
		return false
	}
	delete(d.subscribers, chatID)
	return true
}

func (d *AlertDispatcher) IsSubscribed(chatID int64) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	_, exists := d.subscribers[chatID]
	return exists
}

func (d *AlertDispatcher) SubscriberCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscribers)
}

// ScanCompleted implements the discovery service's alert hook.
func (d *AlertDispatcher) ScanCompleted(userID string, results domain.ScanResults) {
	if d == nil || d.sender == nil {
		return
	}

	chatIDs := d.chatsForUser(userID)
	if len(chatIDs) == 0 {
		return
	}

	msg := formatScanAlert(results)
	for _, chatID := range chatIDs {
		if _, err := d.sender.Send(&tele.Chat{ID: chatID}, msg); err != nil {
			log.Printf("failed to send scan alert to chat %d: %v", chatID, err)
		}
	}
}

func (d *AlertDispatcher) chatsForUser(userID string) []int64 {
	d.mu.RLock()
	defer d.mu.RUnlock()

	chatIDs := make([]int64, 0, len(d.subscribers))
	for chatID := range d.subscribers {
		if d.linkedUsers[chatID] == userID {
			chatIDs = append(chatIDs, chatID)
		}
	}
	sort.Slice(chatIDs, func(i, j int) bool { return chatIDs[i] < chatIDs[j] })
	return chatIDs
}

func parseAlertMode(args []string) (string, error) {
	if len(args) == 0 {
		return "status", nil
	}

	switch strings.ToLower(strings.TrimSpace(args[0])) {
	case "on":
		return "on", nil
	case "off":
		return "off", nil
	case "status":
		return "status", nil
	default:
		return "", fmt.Errorf("invalid mode")
	}
}

func formatScanAlert(results domain.ScanResults) string {
	if results.Total == 0 {
		return fmt.Sprintf("Scan %s finished: no opportunities this time.", results.ScanID)
	}

	lines := make([]string, 0, alertMaxOpportunities+2)
	lines = append(lines, fmt.Sprintf("Scan %s finished: %d opportunities found.", results.ScanID, results.Total))
	for i, o := range results.Opportunities {
		if i == alertMaxOpportunities {
			lines = append(lines, fmt.Sprintf("...and %d more.", results.Total-alertMaxOpportunities))
			break
		}
		lines = append(lines, formatOpportunity(o))
	}
	if results.Consensus != nil && results.Consensus.Available {
		note := fmt.Sprintf("Consensus: %.0f/100 (%s)", results.Consensus.Score, results.Consensus.Recommendation)
		if results.Consensus.LowAgreement {
			note += " - models disagree, treat with caution"
		}
		lines = append(lines, note)
	}
	return strings.Join(lines, "\n")
}
