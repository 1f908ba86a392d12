// Package notify delivers sold-listing alerts. Delivery is a black box
// behind the Notifier interface; Telegram is the default implementation.
package notify

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"marktwatch/server/internal/models"
)

// Notifier receives the listings that transitioned to sold in one
// reconciliation run.
type Notifier interface {
	NotifySold(listings []*models.Listing) error
}

type TelegramService struct {
	logger   *logrus.Logger
	client   *http.Client
	botToken string
	chatID   string
}

func NewTelegramService(botToken, chatID string, logger *logrus.Logger) *TelegramService {
	return &TelegramService{
		logger:   logger,
		botToken: botToken,
		chatID:   chatID,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Enabled reports whether credentials are configured. An unconfigured
// service silently drops notifications instead of failing runs.
func (s *TelegramService) Enabled() bool {
	return s.botToken != "" && s.chatID != ""
}

// NotifySold sends one message summarizing the batch of sold listings.
func (s *TelegramService) NotifySold(listings []*models.Listing) error {
	if !s.Enabled() {
		return nil
	}
	if len(listings) == 0 {
		return nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "<b>%d listing(s) disappeared (likely sold)</b>\n", len(listings))
	for _, listing := range listings {
		price := "price unknown"
		if listing.FinalPrice != nil {
			price = fmt.Sprintf("€%.2f", *listing.FinalPrice)
		}
		fmt.Fprintf(&b, "• %s — %s\n%s\n", listing.Title, price, listing.URL)
	}

	return s.sendMessage(b.String())
}

func (s *TelegramService) sendMessage(message string) error {
	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", s.botToken)
	payload := map[string]interface{}{
		"chat_id":    s.chatID,
		"text":       message,
		"parse_mode": "HTML",
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal message payload: %v", err)
	}

	resp, err := s.client.Post(url, "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to send message to Telegram API: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		switch resp.StatusCode {
		case http.StatusUnauthorized:
			return errors.New("invalid bot token - please check your token from @BotFather")
		case http.StatusBadRequest:
			return fmt.Errorf("invalid chat ID or message format: %s", string(body))
		case http.StatusForbidden:
			return errors.New("bot was blocked by the user or chat")
		default:
			return fmt.Errorf("telegram API returned status %d: %s", resp.StatusCode, string(body))
		}
	}

	s.logger.WithField("listings", strings.Count(message, "\n")).Debug("Sent sold notification")
	return nil
}
