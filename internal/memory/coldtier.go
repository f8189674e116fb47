// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package memory

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
)

// EpisodeClassName is the Weaviate class holding cold-tier episodes.
const EpisodeClassName = "VexEpisode"

// ColdTier mirrors long-lived episodes and their embeddings into Weaviate,
// so semantic recall over LongTerm/Permanent content survives process
// restarts and large leaf counts. The in-process store stays authoritative
// for scores and access counts; the cold tier is a recall index.
type ColdTier struct {
	client *weaviate.Client
	log    *slog.Logger
}

// NewColdTier wraps an already-configured Weaviate client.
func NewColdTier(client *weaviate.Client, log *slog.Logger) *ColdTier {
	if log == nil {
		log = slog.Default()
	}
	return &ColdTier{client: client, log: log}
}

func episodeSchema() *models.Class {
	vectorizer := "none"
	return &models.Class{
		Class:      EpisodeClassName,
		Vectorizer: vectorizer,
		Properties: []*models.Property{
			{Name: "episodeId", DataType: []string{"text"}, Tokenization: "field"},
			{Name: "tenantId", DataType: []string{"text"}, Tokenization: "field"},
			{Name: "content", DataType: []string{"text"}},
			{Name: "horizon", DataType: []string{"text"}, Tokenization: "field"},
			{Name: "importance", DataType: []string{"number"}},
			{Name: "timestampMs", DataType: []string{"int"}},
		},
	}
}

// EnsureSchema creates the VexEpisode class if absent. Idempotent.
func (c *ColdTier) EnsureSchema(ctx context.Context) error {
	_, err := c.client.Schema().ClassGetter().WithClassName(EpisodeClassName).Do(ctx)
	if err == nil {
		return nil
	}
	if err := c.client.Schema().ClassCreator().WithClass(episodeSchema()).Do(ctx); err != nil {
		return fmt.Errorf("creating %s schema: %w", EpisodeClassName, err)
	}
	c.log.Info("cold tier schema created", "class", EpisodeClassName)
	return nil
}

// Put upserts one episode with its embedding as the object vector.
func (c *ColdTier) Put(ctx context.Context, e *Episode) error {
	obj := &models.Object{
		Class: EpisodeClassName,
		Properties: map[string]interface{}{
			"episodeId":   e.ID,
			"tenantId":    e.TenantID,
			"content":     e.Content,
			"horizon":     e.Horizon.String(),
			"importance":  e.Importance,
			"timestampMs": e.TimestampMs,
		},
		Vector: e.Embedding,
	}
	result, err := c.client.Batch().ObjectsBatcher().WithObjects(obj).Do(ctx)
	if err != nil {
		return fmt.Errorf("cold tier put: %w", err)
	}
	for _, r := range result {
		if r.Result != nil && r.Result.Errors != nil {
			return fmt.Errorf("cold tier put rejected for episode %s", e.ID)
		}
	}
	return nil
}

// Search runs a near-vector query scoped to tenant and returns episode ids
// in similarity order.
func (c *ColdTier) Search(ctx context.Context, tenant string, vector []float32, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 10
	}
	where := filters.Where().
		WithPath([]string{"tenantId"}).
		WithOperator(filters.Equal).
		WithValueString(tenant)

	nearVector := c.client.GraphQL().NearVectorArgBuilder().WithVector(vector)
	result, err := c.client.GraphQL().Get().
		WithClassName(EpisodeClassName).
		WithFields(graphql.Field{Name: "episodeId"}).
		WithNearVector(nearVector).
		WithWhere(where).
		WithLimit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("cold tier search: %w", err)
	}
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("cold tier search: %s", result.Errors[0].Message)
	}

	data, ok := result.Data["Get"].(map[string]interface{})
	if !ok {
		return nil, nil
	}
	objects, ok := data[EpisodeClassName].([]interface{})
	if !ok {
		return nil, nil
	}
	ids := make([]string, 0, len(objects))
	for _, obj := range objects {
		m, ok := obj.(map[string]interface{})
		if !ok {
			continue
		}
		if id, ok := m["episodeId"].(string); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}
