// Package search keeps an OpenSearch index of documents for relevance
// ranked search.
package search

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/opensearch-project/opensearch-go/v2"

	"github.com/fileverse/ddocs-stack/ddocs/internal/models"
)

// Config holds the cluster connection.
type Config struct {
	URL      string
	Username string
	Password string
	Insecure bool
	Index    string
}

// OpenSearchIndex indexes live documents and answers searches scoped to a
// portal.
type OpenSearchIndex struct {
	client *opensearch.Client
	index  string
}

const indexMapping = `{
  "settings": {"number_of_shards": 1, "number_of_replicas": 0},
  "mappings": {
    "properties": {
      "ddocId":         {"type": "keyword"},
      "portalAddress":  {"type": "keyword"},
      "title":          {"type": "text"},
      "content":        {"type": "text"},
      "syncStatus":     {"type": "keyword"},
      "link":           {"type": "keyword", "index": false},
      "localVersion":   {"type": "integer"},
      "onchainVersion": {"type": "integer"},
      "isDeleted":      {"type": "boolean"},
      "createdAt":      {"type": "date"},
      "updatedAt":      {"type": "date"}
    }
  }
}`

// NewOpenSearchIndex connects to the cluster and checks it answers.
func NewOpenSearchIndex(cfg Config) (*OpenSearchIndex, error) {
	httpClient := &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: cfg.Insecure,
			},
		},
	}

	client, err := opensearch.NewClient(opensearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: httpClient.Transport,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create opensearch client: %w", err)
	}

	info, err := client.Info()
	if err != nil {
		return nil, fmt.Errorf("failed to ping opensearch: %w", err)
	}
	defer info.Body.Close()
	if info.IsError() {
		return nil, fmt.Errorf("opensearch returned error: %s", info.Status())
	}

	index := cfg.Index
	if index == "" {
		index = "ddocs-documents"
	}
	return &OpenSearchIndex{client: client, index: index}, nil
}

// EnsureIndex creates the index with its mapping if it does not exist.
func (s *OpenSearchIndex) EnsureIndex(ctx context.Context) error {
	res, err := s.client.Indices.Exists([]string{s.index}, s.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to check index: %w", err)
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		return nil
	}

	res, err = s.client.Indices.Create(s.index,
		s.client.Indices.Create.WithContext(ctx),
		s.client.Indices.Create.WithBody(strings.NewReader(indexMapping)),
	)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		if strings.Contains(string(body), "resource_already_exists_exception") {
			return nil
		}
		return fmt.Errorf("opensearch error: %s - %s", res.Status(), string(body))
	}
	return nil
}

// IndexDocument writes doc under its ddocId, replacing earlier versions.
func (s *OpenSearchIndex) IndexDocument(ctx context.Context, doc *models.Document) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}

	res, err := s.client.Index(s.index, bytes.NewReader(body),
		s.client.Index.WithContext(ctx),
		s.client.Index.WithDocumentID(doc.DDocID),
	)
	if err != nil {
		return fmt.Errorf("failed to index document: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("opensearch error: %s - %s", res.Status(), string(body))
	}
	return nil
}

// RemoveDocument deletes ddocID from the index. A missing entry is not an
// error.
func (s *OpenSearchIndex) RemoveDocument(ctx context.Context, ddocID string) error {
	res, err := s.client.Delete(s.index, ddocID, s.client.Delete.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("opensearch error: %s", res.Status())
	}
	return nil
}

// Search returns portal's live documents matching query, best match first.
func (s *OpenSearchIndex) Search(ctx context.Context, portal, query string, opts models.ListOptions) (*models.SearchResult, error) {
	body, err := json.Marshal(buildQuery(portal, query, opts))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal search body: %w", err)
	}

	res, err := s.client.Search(
		s.client.Search.WithContext(ctx),
		s.client.Search.WithIndex(s.index),
		s.client.Search.WithBody(bytes.NewReader(body)),
		s.client.Search.WithTrackTotalHits(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search documents: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("opensearch error: %s - %s", res.Status(), string(body))
	}
	return parseResult(res.Body, opts)
}

func buildQuery(portal, query string, opts models.ListOptions) map[string]any {
	return map[string]any{
		"from": opts.Skip,
		"size": opts.Limit,
		"query": map[string]any{
			"bool": map[string]any{
				"must": []map[string]any{
					{"multi_match": map[string]any{
						"query":  query,
						"fields": []string{"title^2", "content"},
					}},
				},
				"filter": []map[string]any{
					{"term": map[string]any{"portalAddress": portal}},
					{"term": map[string]any{"isDeleted": false}},
				},
			},
		},
		"sort": []any{"_score", map[string]any{"updatedAt": map[string]string{"order": "desc"}}},
	}
}

func parseResult(r io.Reader, opts models.ListOptions) (*models.SearchResult, error) {
	var searchResult struct {
		Hits struct {
			Total struct {
				Value int `json:"value"`
			} `json:"total"`
			Hits []struct {
				Source models.Document `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(r).Decode(&searchResult); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	nodes := make([]*models.Document, 0, len(searchResult.Hits.Hits))
	for i := range searchResult.Hits.Hits {
		nodes = append(nodes, &searchResult.Hits.Hits[i].Source)
	}
	total := searchResult.Hits.Total.Value
	return &models.SearchResult{
		Nodes:   nodes,
		Total:   total,
		HasNext: opts.Skip+len(nodes) < total,
	}, nil
}
