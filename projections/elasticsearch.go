package projections

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v7"
	"github.com/rs/zerolog/log"

	"github.com/Bikxs/skafu-core/config"
)

// Mappings keyed by unprefixed index name. The keyword and date fields are
// mapped explicitly so timeline and error-channel queries can filter and
// sort on them instead of relying on dynamic mapping.
var indexMappings = map[string]string{
	"event-timeline": `{
	  "mappings": {
	    "properties": {
	      "event_id":        {"type": "keyword"},
	      "aggregate_id":    {"type": "keyword"},
	      "aggregate_type":  {"type": "keyword"},
	      "event_type":      {"type": "keyword"},
	      "sequence_number": {"type": "long"},
	      "correlation_id":  {"type": "keyword"},
	      "causation_id":    {"type": "keyword"},
	      "occurred_at":     {"type": "date"}
	    }
	  }
	}`,
	"error-records": `{
	  "mappings": {
	    "properties": {
	      "error_id":         {"type": "keyword"},
	      "correlation_id":   {"type": "keyword"},
	      "source_component": {"type": "keyword"},
	      "severity":         {"type": "keyword"},
	      "code":             {"type": "keyword"},
	      "message":          {"type": "text"},
	      "retryable":        {"type": "boolean"},
	      "occurred_at":      {"type": "date"}
	    }
	  }
	}`,
}

// NewElasticsearchClient builds a client from config and verifies the
// cluster answers before anyone indexes into it
func NewElasticsearchClient(cfg config.Config) (*elasticsearch.Client, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{cfg.ElasticSearchURL},
		Username:  cfg.ElasticSearchUsername,
		Password:  cfg.ElasticSearchPassword,
		Transport: &http.Transport{
			MaxIdleConnsPerHost: 10,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Elasticsearch client: %w", err)
	}

	res, err := client.Info()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Elasticsearch at %s: %w", cfg.ElasticSearchURL, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch info request failed: %s", res.String())
	}

	log.Info().Str("url", cfg.ElasticSearchURL).Msg("Connected to Elasticsearch")
	return client, nil
}

// FormatIndex prefixes an index name with the configured environment prefix
func FormatIndex(indexName string, cfg config.Config) string {
	return cfg.ElasticSearchPrefix + "-" + indexName
}

// EnsureIndices creates every index this service writes to, with its
// mapping, when it does not exist yet
func EnsureIndices(client *elasticsearch.Client, cfg config.Config) error {
	for name, mapping := range indexMappings {
		if err := ensureIndex(client, FormatIndex(name, cfg), mapping); err != nil {
			return err
		}
	}
	return nil
}

func ensureIndex(client *elasticsearch.Client, index, mapping string) error {
	res, err := client.Indices.Exists([]string{index})
	if err != nil {
		return fmt.Errorf("failed to check index %s: %w", index, err)
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		return nil
	}

	log.Info().Str("index", index).Msg("Creating index")
	res, err = client.Indices.Create(index,
		client.Indices.Create.WithBody(strings.NewReader(mapping)))
	if err != nil {
		return fmt.Errorf("failed to create index %s: %w", index, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("failed to create index %s: %s", index, res.String())
	}

	return nil
}
