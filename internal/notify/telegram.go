package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pleyazul/oraculo-api/internal/oracle"
	"github.com/pleyazul/oraculo-api/internal/types"
)

// TelegramNotifier posts a formatted reading summary through the Telegram bot
// API. The chat id comes from the order's custom question channel in the real
// deployment; here it is configured per notifier.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
}

func NewTelegramNotifier(botToken, chatID string) *TelegramNotifier {
	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  "https://api.telegram.org",
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (n *TelegramNotifier) SendReading(ctx context.Context, order *types.Order, result *oracle.Result) error {
	payload := map[string]string{
		"chat_id":    n.chatID,
		"text":       formatReading(order, result),
		"parse_mode": "Markdown",
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram sendMessage returned status %d", resp.StatusCode)
	}

	log.Info().
		Str("order_id", order.OrderID).
		Str("oracle", result.Type).
		Msg("reading delivered via telegram")

	return nil
}

// formatReading renders the oracle payload as a Telegram message.
func formatReading(order *types.Order, result *oracle.Result) string {
	var b strings.Builder
	b.WriteString("🔮 *Tu lectura Pleyazul está lista*\n\n")

	switch result.Type {
	case "tarot":
		b.WriteString("*Lectura de Tarot*\n\n")
		for _, card := range result.Cards {
			fmt.Fprintf(&b, "*%s*\n%s", card.Position, card.Name)
			if card.Reversed {
				b.WriteString(" (Invertida)")
			}
			fmt.Fprintf(&b, "\n%s\n\n", card.Interpretation)
		}
	case "iching":
		b.WriteString("*Consulta del I Ching*\n\n")
		fmt.Fprintf(&b, "*Hexagrama %d: %s*\n\n%s\n\n",
			result.Hexagram.Hex, result.Hexagram.Nombre, result.Hexagram.Consejo)
	case "rueda":
		b.WriteString("*Medicina de la Rueda Sagrada*\n\n")
		for _, animal := range result.Animals {
			fmt.Fprintf(&b, "*%s*\n%s - %s\n%s\n\n",
				animal.Position, animal.Animal.Animal, animal.Arquetipo, animal.Medicina)
		}
	}

	fmt.Fprintf(&b, "✨ *%s*\n\nPedido: %s", result.Message, order.OrderID)
	return b.String()
}
