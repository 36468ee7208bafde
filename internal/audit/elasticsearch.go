package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esutil"
	"github.com/samber/lo"
)

const defaultIndexPrefix = "outbreak_audit_"

type elasticBackend struct {
	es     *elasticsearch.Client
	prefix string
}

// NewElasticsearchService indexes events into monthly indices named
// <prefix>YYYY.MM.
func NewElasticsearchService(esClient *elasticsearch.Client, indexPrefix string) Service {
	if indexPrefix == "" {
		indexPrefix = defaultIndexPrefix
	}
	return newService(&elasticBackend{es: esClient, prefix: indexPrefix})
}

func (b *elasticBackend) index(ctx context.Context, event *AuditEvent) error {
	res, err := b.es.Index(
		b.prefix+event.Timestamp.Format("2006.01"),
		esutil.NewJSONReader(event),
		b.es.Index.WithContext(ctx),
		b.es.Index.WithRefresh("true"),
	)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("index audit event: %s", res.Status())
	}
	return nil
}

type searchHit struct {
	Source AuditEvent `json:"_source"`
}

type searchResponse struct {
	Hits struct {
		Hits []searchHit `json:"hits"`
	} `json:"hits"`
}

func (b *elasticBackend) search(ctx context.Context, filters map[string]interface{}, from, size int) ([]AuditEvent, error) {
	body := map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{"must": buildQueryFilters(filters)},
		},
	}

	res, err := b.es.Search(
		b.es.Search.WithContext(ctx),
		b.es.Search.WithIndex(b.prefix+"*"),
		b.es.Search.WithBody(esutil.NewJSONReader(body)),
		b.es.Search.WithSort("timestamp:desc"),
		b.es.Search.WithFrom(from),
		b.es.Search.WithSize(size),
	)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("search audit events: %s", res.Status())
	}

	var parsed searchResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode audit search: %w", err)
	}
	return lo.Map(parsed.Hits.Hits, func(hit searchHit, _ int) AuditEvent {
		return hit.Source
	}), nil
}

// buildQueryFilters turns field filters into match clauses.
func buildQueryFilters(filters map[string]interface{}) []map[string]interface{} {
	return lo.MapToSlice(filters, func(field string, value interface{}) map[string]interface{} {
		return map[string]interface{}{"match": map[string]interface{}{field: value}}
	})
}
