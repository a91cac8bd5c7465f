package bot

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"coinscout/internal/domain"

	tele "gopkg.in/telebot.v3"
)

type ScanStarter interface {
	StartScan(ctx context.Context, req domain.ScanRequest) (domain.ScanState, error)
}

type OpportunityLister interface {
	RecentOpportunities(ctx context.Context, userID string, limit int) ([]domain.Opportunity, error)
}

func StartTelegramBot(discovery ScanStarter, opportunities OpportunityLister) *AlertDispatcher {
	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" {
		log.Println("TELEGRAM_BOT_TOKEN not set, skipping Telegram bot startup")
		return nil
	}
	pref := tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	}
	b, err := tele.NewBot(pref)
	if err != nil {
		log.Fatalf("failed to create Telegram bot: %v", err)
	}
	alerts := NewAlertDispatcher(b)

	b.Handle("/ping", func(c tele.Context) error {
		return c.Send("pong")
	})

	b.Handle("/link", func(c tele.Context) error {
		chat := c.Chat()
		if chat == nil {
			return c.Send("Unable to detect chat")
		}
		args := c.Args()
		if len(args) == 0 {
			return c.Send("Usage: /link <user-id>\nLinks this chat to your coinscout account.")
		}
		alerts.Link(chat.ID, strings.TrimSpace(args[0]))
		return c.Send("Chat linked. Use /scan to start a discovery scan.")
	})

	b.Handle("/scan", func(c tele.Context) error {
		chat := c.Chat()
		if chat == nil {
			return c.Send("Unable to detect chat")
		}
		userID, ok := alerts.LinkedUser(chat.ID)
		if !ok {
			return c.Send("No account linked. Use /link <user-id> first.")
		}

		state, err := discovery.StartScan(context.Background(), domain.ScanRequest{
			UserID:      userID,
			RequestedAt: time.Now().UTC(),
		})
		if err != nil {
			return c.Send(fmt.Sprintf("Could not start scan: %v", err))
		}
		return c.Send(fmt.Sprintf("Scan %s started across %d strategies. I'll message you when it finishes.",
			state.ScanID, state.StrategiesTotal))
	})

	b.Handle("/opportunities", func(c tele.Context) error {
		chat := c.Chat()
		if chat == nil {
			return c.Send("Unable to detect chat")
		}
		userID, ok := alerts.LinkedUser(chat.ID)
		if !ok {
			return c.Send("No account linked. Use /link <user-id> first.")
		}

		limit := 5
		if args := c.Args(); len(args) > 0 {
			if n, err := strconv.Atoi(args[0]); err == nil && n > 0 && n <= 20 {
				limit = n
			}
		}

		recent, err := opportunities.RecentOpportunities(context.Background(), userID, limit)
		if err != nil {
			return c.Send(fmt.Sprintf("Error fetching opportunities: %v", err))
		}
		if len(recent) == 0 {
			return c.Send("No opportunities on record yet. Run /scan first.")
		}

		lines := make([]string, 0, len(recent)+1)
		lines = append(lines, "Recent opportunities:")
		for _, o := range recent {
			lines = append(lines, formatOpportunity(o))
		}
		return c.Send(strings.Join(lines, "\n"))
	})

	b.Handle("/alerts", func(c tele.Context) error {
		chat := c.Chat()
		if chat == nil {
			return c.Send("Unable to detect chat")
		}

		mode, err := parseAlertMode(c.Args())
		if err != nil {
			return c.Send("Usage: /alerts on | /alerts off | /alerts status")
		}

		switch mode {
		case "on":
			if alerts.Subscribe(chat.ID) {
				return c.Send("Scan completion alerts enabled for this chat.")
			}
			return c.Send("Scan completion alerts are already enabled for this chat.")
		case "off":
			if alerts.Unsubscribe(chat.ID) {
				return c.Send("Scan completion alerts disabled for this chat.")
			}
			return c.Send("Scan completion alerts are already disabled for this chat.")
		default:
			if alerts.IsSubscribed(chat.ID) {
				return c.Send("Alerts status: ON")
			}
			return c.Send("Alerts status: OFF")
		}
	})

	log.Println("Telegram bot started")
	go b.Start()
	return alerts
}

func formatOpportunity(o domain.Opportunity) string {
	return fmt.Sprintf(
		"%s %s on %s: +$%.0f potential, %.0f%% confidence, %s risk",
		o.StrategyID,
		o.Symbol,
		o.Exchange,
		o.ProfitPotentialUSD,
		o.ConfidenceScore,
		o.Risk,
	)
}
