package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// ServiceExtractor calls an HTTP named-entity recognition service.
//
// Request:  POST {"text": "..."}
// Response: {"entities": [{"text": "France", "label": "GPE"}, ...]}
type ServiceExtractor struct {
	endpoint string
	client   *http.Client
	logger   *slog.Logger
}

// NewServiceExtractor creates an extractor for the service at endpoint.
func NewServiceExtractor(endpoint string, logger *slog.Logger) *ServiceExtractor {
	return &ServiceExtractor{
		endpoint: endpoint,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: logger.With("component", "ner_service"),
	}
}

func (s *ServiceExtractor) Name() string { return "service" }

func (s *ServiceExtractor) Extract(ctx context.Context, text string) ([]Entity, error) {
	if strings.TrimSpace(text) == "" {
		return []Entity{}, nil
	}

	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ner request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("ner service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var result struct {
		Entities []Entity `json:"entities"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode ner response: %w", err)
	}
	if result.Entities == nil {
		result.Entities = []Entity{}
	}
	s.logger.Debug("entities extracted", "count", len(result.Entities))
	return result.Entities, nil
}

func (s *ServiceExtractor) Close() error {
	s.client.CloseIdleConnections()
	return nil
}
