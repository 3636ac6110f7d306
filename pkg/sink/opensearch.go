// Package sink provides txlog.Sink implementations: OpenSearch (primary),
// Redis, Postgres, and a local rotated-file fallback.
package sink

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"
	requestsigner "github.com/opensearch-project/opensearch-go/v2/signer/awsv2"

	"github.com/opscribe/opscribe/pkg/txlog"
)

// OpenSearchConfig carries the search-backend endpoint and auth mode.
// Username/Password selects basic auth; AWSSigning selects sigv4 request
// signing with the ambient credential chain. InsecureSkipVerify is meant for
// non-production clusters with self-signed certificates.
type OpenSearchConfig struct {
	Addresses          []string
	Username           string
	Password           string
	Index              string
	InsecureSkipVerify bool
	AWSSigning         bool
	AWSRegion          string
	Timeout            time.Duration
}

type OpenSearch struct {
	client   *opensearch.Client
	index    string
	appIndex string
}

// NewOpenSearch validates the configuration and builds the client. It fails
// fast on malformed config so downstream components only ever see a usable
// sink.
func NewOpenSearch(ctx context.Context, cfg OpenSearchConfig) (*OpenSearch, error) {
	if len(cfg.Addresses) == 0 {
		return nil, fmt.Errorf("sink: opensearch requires at least one address")
	}
	if cfg.Index == "" {
		return nil, fmt.Errorf("sink: opensearch requires an index")
	}
	if cfg.AWSSigning && cfg.AWSRegion == "" {
		return nil, fmt.Errorf("sink: aws signing requires a region")
	}

	transport := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify},
	}

	clientCfg := opensearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: transport,
	}

	if cfg.AWSSigning {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			return nil, fmt.Errorf("sink: load aws config: %w", err)
		}
		signer, err := requestsigner.NewSignerWithService(awsCfg, "es")
		if err != nil {
			return nil, fmt.Errorf("sink: build request signer: %w", err)
		}
		clientCfg.Signer = signer
	}

	client, err := opensearch.NewClient(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("sink: opensearch client: %w", err)
	}

	return &OpenSearch{
		client:   client,
		index:    cfg.Index,
		appIndex: cfg.Index + "-app",
	}, nil
}

func (s *OpenSearch) Name() string { return "opensearch" }

func (s *OpenSearch) LogTransaction(ctx context.Context, rec *txlog.Record) error {
	return s.indexDoc(ctx, s.index, rec)
}

func (s *OpenSearch) Log(ctx context.Context, level, message string, meta map[string]interface{}) error {
	return s.indexDoc(ctx, s.appIndex, map[string]interface{}{
		"level":     level,
		"message":   message,
		"meta":      meta,
		"timestamp": time.Now().UTC(),
	})
}

func (s *OpenSearch) indexDoc(ctx context.Context, index string, doc interface{}) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("sink: marshal document: %w", err)
	}

	req := opensearchapi.IndexRequest{
		Index: index,
		Body:  bytes.NewReader(payload),
	}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return fmt.Errorf("sink: index into %s: %w", index, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("sink: index into %s: %s", index, res.Status())
	}
	return nil
}

func (s *OpenSearch) HealthCheck(ctx context.Context) error {
	req := opensearchapi.PingRequest{}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return fmt.Errorf("sink: opensearch ping: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("sink: opensearch ping: %s", res.Status())
	}
	return nil
}
