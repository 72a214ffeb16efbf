package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/elastic/go-elasticsearch/v9"
)

type ElasticConfig struct {
	URL      string
	Username string
	Password string
	Index    string
}

// ElasticSink indexes every event as an audit document.
type ElasticSink struct {
	client *elasticsearch.Client
	index  string
}

func NewElasticSink(ctx context.Context, cfg ElasticConfig) (*ElasticSink, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("elasticsearch: new client: %w", err)
	}

	res, err := client.Info(client.Info.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("elasticsearch: info: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("elasticsearch: info: %s: %s", res.Status(), body)
	}

	return &ElasticSink{client: client, index: cfg.Index}, nil
}

func (s *ElasticSink) Publish(ctx context.Context, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("elasticsearch: json.Marshal failed: %w", err)
	}

	res, err := s.client.Index(s.index, bytes.NewReader(data), s.client.Index.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("elasticsearch: index: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("elasticsearch: index: %s", res.Status())
	}
	return nil
}
