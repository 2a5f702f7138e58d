// Package es 提供了与 Elasticsearch 交互的客户端功能，为法律咨询检索参考资料。
package es

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"lawchat-go/internal/config"
	"lawchat-go/pkg/log"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
)

// Reference 是一条检索到的参考资料。
type Reference struct {
	Title   string  `json:"title"`
	Content string  `json:"text_content"`
	Source  string  `json:"source"`
	Score   float64 `json:"-"`
}

// Searcher 在参考资料索引上执行全文检索。
type Searcher struct {
	client *elasticsearch.Client
	index  string
}

// NewSearcher 初始化 Elasticsearch 客户端
func NewSearcher(esCfg config.ElasticsearchConfig) (*Searcher, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: strings.Split(esCfg.Addresses, ","),
		Username:  esCfg.Username,
		Password:  esCfg.Password,
	})
	if err != nil {
		return nil, err
	}
	return &Searcher{client: client, index: esCfg.IndexName}, nil
}

// EnsureIndex 检查索引是否存在，如果不存在则创建它
func (s *Searcher) EnsureIndex(ctx context.Context) error {
	res, err := s.client.Indices.Exists([]string{s.index}, s.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("检查索引是否存在时出错: %w", err)
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		log.Infof("索引 '%s' 已存在", s.index)
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("检查索引是否存在时收到意外的状态码: %d", res.StatusCode)
	}

	mapping := `{
		"mappings": {
			"properties": {
				"title": { "type": "text" },
				"text_content": { "type": "text" },
				"source": { "type": "keyword" }
			}
		}
	}`
	res, err = s.client.Indices.Create(
		s.index,
		s.client.Indices.Create.WithContext(ctx),
		s.client.Indices.Create.WithBody(strings.NewReader(mapping)),
	)
	if err != nil {
		return fmt.Errorf("创建索引 '%s' 失败: %w", s.index, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("创建索引时 Elasticsearch 返回错误: %s", res.Status())
	}
	log.Infof("索引 '%s' 创建成功", s.index)
	return nil
}

// Search 以 BM25 检索与 query 最相关的 topK 条参考资料。
func (s *Searcher) Search(ctx context.Context, query string, topK int) ([]Reference, error) {
	if strings.TrimSpace(query) == "" || topK <= 0 {
		return nil, nil
	}
	esQuery := map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must": map[string]interface{}{
					"match": map[string]interface{}{
						"text_content": query,
					},
				},
				"should": []interface{}{
					map[string]interface{}{"match_phrase": map[string]interface{}{"text_content": map[string]interface{}{"query": query, "boost": 2.0}}},
					map[string]interface{}{"match": map[string]interface{}{"title": query}},
				},
			},
		},
		"size": topK,
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(esQuery); err != nil {
		return nil, fmt.Errorf("failed to encode es query: %w", err)
	}

	res, err := s.client.Search(
		s.client.Search.WithContext(ctx),
		s.client.Search.WithIndex(s.index),
		s.client.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		_, _ = io.Copy(io.Discard, res.Body)
		return nil, errors.New("elasticsearch returned an error: " + res.Status())
	}

	var esResponse struct {
		Hits struct {
			Hits []struct {
				Source Reference `json:"_source"`
				Score  float64   `json:"_score"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&esResponse); err != nil {
		return nil, fmt.Errorf("failed to decode es response: %w", err)
	}

	refs := make([]Reference, 0, len(esResponse.Hits.Hits))
	for _, hit := range esResponse.Hits.Hits {
		ref := hit.Source
		ref.Score = hit.Score
		refs = append(refs, ref)
	}
	return refs, nil
}
