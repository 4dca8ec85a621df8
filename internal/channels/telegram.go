package channels

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/hkuds/prompthandler/internal/bus"
	"github.com/hkuds/prompthandler/internal/config"
)

// telegramMaxMessage is the longest text Telegram accepts in one message.
const telegramMaxMessage = 4096

// TelegramChannel implements the Channel interface for Telegram messaging.
type TelegramChannel struct {
	BaseChannel
	token string
	bot   *tgbotapi.BotAPI

	cancel context.CancelFunc
}

// NewTelegramChannel creates a new Telegram channel instance.
func NewTelegramChannel(cfg config.TelegramConfig, msgBus *bus.MessageBus) *TelegramChannel {
	return &TelegramChannel{
		BaseChannel: NewBaseChannel("telegram", msgBus, cfg.AllowFrom),
		token:       cfg.Token,
	}
}

// Start begins listening for Telegram updates.
func (c *TelegramChannel) Start(ctx context.Context) error {
	if c.IsRunning() {
		return fmt.Errorf("telegram channel is already running")
	}

	bot, err := tgbotapi.NewBotAPI(c.token)
	if err != nil {
		return fmt.Errorf("failed to create Telegram bot: %w", err)
	}
	c.bot = bot

	log.Printf("Telegram bot authorized as @%s", bot.Self.UserName)

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60 // long polling
	updates := bot.GetUpdatesChan(u)

	c.setRunning(true)

	c.bus.SubscribeOutbound(c.name, func(msg bus.OutboundMessage) {
		if err := c.Send(msg); err != nil {
			log.Printf("Error sending Telegram message: %v", err)
		}
	})

	go c.processUpdates(ctx, updates)

	return nil
}

func (c *TelegramChannel) processUpdates(ctx context.Context, updates tgbotapi.UpdatesChannel) {
	for {
		select {
		case <-ctx.Done():
			log.Println("Telegram update processing stopped")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message == nil {
				continue
			}
			c.handleMessage(update.Message)
		}
	}
}

// handleMessage publishes the text of an allowed sender's message. Media
// without a caption carries no text to account for and is ignored.
func (c *TelegramChannel) handleMessage(msg *tgbotapi.Message) {
	if msg.From == nil || msg.Chat == nil {
		return
	}

	senderID := strconv.FormatInt(msg.From.ID, 10)
	if msg.From.UserName != "" {
		senderID = senderID + "|" + msg.From.UserName
	}

	if !c.IsAllowed(senderID) {
		log.Printf("Telegram message from unauthorized sender: %s", senderID)
		return
	}

	content := msg.Text
	if content == "" {
		content = msg.Caption
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return
	}

	// Group commands arrive as /reset@botname
	if msg.IsCommand() {
		content = "/" + msg.Command()
	}

	c.publishInbound(
		senderID,
		strconv.FormatInt(msg.Chat.ID, 10),
		strconv.Itoa(msg.MessageID),
		content,
	)
}

// Stop gracefully shuts down the Telegram channel.
func (c *TelegramChannel) Stop() error {
	if !c.IsRunning() {
		return nil
	}

	if c.cancel != nil {
		c.cancel()
	}
	if c.bot != nil {
		c.bot.StopReceivingUpdates()
	}

	c.setRunning(false)
	log.Println("Telegram channel stopped")
	return nil
}

// Send delivers an outbound message through Telegram as plain text, split
// into as many messages as the length limit requires.
func (c *TelegramChannel) Send(msg bus.OutboundMessage) error {
	if !c.IsRunning() {
		return fmt.Errorf("telegram channel is not running")
	}

	chatID, err := strconv.ParseInt(strings.TrimSpace(msg.ChatID), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat ID %q: %w", msg.ChatID, err)
	}

	for i, chunk := range splitMessage(msg.Content, telegramMaxMessage) {
		out := tgbotapi.NewMessage(chatID, chunk)
		if i == 0 && msg.ReplyTo != "" {
			if replyID, err := strconv.Atoi(msg.ReplyTo); err == nil {
				out.ReplyToMessageID = replyID
			}
		}
		if _, err := c.bot.Send(out); err != nil {
			return fmt.Errorf("failed to send Telegram message: %w", err)
		}
	}
	return nil
}

// splitMessage cuts text into pieces of at most limit runes, preferring
// to break at the last newline inside each piece.
func splitMessage(text string, limit int) []string {
	if text == "" {
		return nil
	}

	var chunks []string
	for utf8.RuneCountInString(text) > limit {
		runes := []rune(text)
		cut := limit
		if nl := strings.LastIndex(string(runes[:limit]), "\n"); nl > 0 {
			cut = utf8.RuneCountInString(string(runes[:limit])[:nl]) + 1
		}
		chunks = append(chunks, string(runes[:cut]))
		text = string(runes[cut:])
	}
	if text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}
