package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/cocagne-tracker/internal/models"
)

// DefaultExpoURL is the Expo push service endpoint.
const DefaultExpoURL = "https://exp.host/--/api/v2/push/send"

// Expo accepts at most 100 messages per push request.
const expoBatchSize = 100

// TokenStore lists and prunes registered push tokens.
type TokenStore interface {
	FindPushTokens(ctx context.Context) ([]models.PushToken, error)
	DeletePushToken(ctx context.Context, token string) error
}

// ExpoSink sends remote push notifications to every registered device.
type ExpoSink struct {
	client *http.Client
	url    string
	tokens TokenStore
}

func NewExpoSink(url string, tokens TokenStore) *ExpoSink {
	if url == "" {
		url = DefaultExpoURL
	}
	return &ExpoSink{
		client: &http.Client{Timeout: 10 * time.Second},
		url:    url,
		tokens: tokens,
	}
}

type expoMessage struct {
	To    string            `json:"to"`
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
	Sound string            `json:"sound"`
}

type expoTicket struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Details struct {
		Error string `json:"error"`
	} `json:"details"`
}

type expoResponse struct {
	Data []expoTicket `json:"data"`
}

// Notify posts one message per token, in batches of expoBatchSize. Tokens
// Expo reports as unregistered are deleted.
func (s *ExpoSink) Notify(ctx context.Context, msg Message) error {
	tokens, err := s.tokens.FindPushTokens(ctx)
	if err != nil {
		return fmt.Errorf("list push tokens: %w", err)
	}
	if len(tokens) == 0 {
		return nil
	}

	messages := make([]expoMessage, 0, len(tokens))
	for _, t := range tokens {
		messages = append(messages, expoMessage{To: t.Token, Title: msg.Title, Body: msg.Body, Data: msg.Data, Sound: "default"})
	}

	var (
		errs   []error
		failed int
	)
	for start := 0; start < len(messages); start += expoBatchSize {
		end := min(start+expoBatchSize, len(messages))
		n, err := s.send(ctx, messages[start:end])
		if err != nil {
			errs = append(errs, err)
		}
		failed += n
	}
	if failed > 0 {
		errs = append(errs, fmt.Errorf("expo push: %d of %d messages rejected", failed, len(messages)))
	}
	return errors.Join(errs...)
}

// send posts one batch and returns how many of its messages Expo rejected.
func (s *ExpoSink) send(ctx context.Context, batch []expoMessage) (int, error) {
	payload, err := json.Marshal(batch)
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("expo push: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return 0, fmt.Errorf("expo push: status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var decoded expoResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return 0, fmt.Errorf("decode expo response: %w", err)
	}
	failed := 0
	for i, ticket := range decoded.Data {
		if ticket.Status == "ok" || i >= len(batch) {
			continue
		}
		failed++
		if ticket.Details.Error == "DeviceNotRegistered" {
			if err := s.tokens.DeletePushToken(ctx, batch[i].To); err != nil {
				log.WithError(err).Warn("Failed to delete unregistered push token")
			}
		}
	}
	return failed, nil
}
