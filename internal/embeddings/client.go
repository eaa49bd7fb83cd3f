// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package embeddings

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// Client is the interface for embedding providers
type Client interface {
	// Embed generates an embedding vector for the given text
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embedding vectors for multiple texts, in input order
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// GetModelInfo returns information about the embedding model
	GetModelInfo() ModelInfo
}

// ModelInfo contains metadata about the embedding model
type ModelInfo struct {
	Name       string
	Version    string
	Dimensions int
	Provider   string
}

// ErrEmptyResponse is returned when the provider answers without vectors
var ErrEmptyResponse = errors.New("no embedding returned")

// OpenAIClient implements Client against any OpenAI-compatible embeddings endpoint
type OpenAIClient struct {
	client     *openai.Client
	model      string
	provider   string
	dimensions int
}

// NewOpenAIClient creates a client for api.openai.com or a compatible base URL
func NewOpenAIClient(baseURL, apiKey, model string, dimensions int) *OpenAIClient {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = strings.TrimRight(baseURL, "/")
	}

	return &OpenAIClient{
		client:     openai.NewClientWithConfig(config),
		model:      model,
		provider:   "openai",
		dimensions: dimensions,
	}
}

// NewLocalClient creates a client for a self-hosted OpenAI-compatible server (LiteLLM, Ollama)
func NewLocalClient(baseURL, apiKey, model string, dimensions int) *OpenAIClient {
	// Local gateways usually ignore the key but the client insists on one
	if apiKey == "" {
		apiKey = "dummy-key"
	}
	c := NewOpenAIClient(baseURL, apiKey, model, dimensions)
	c.provider = "local"
	return c
}

// NewAzureClient creates a client for an Azure OpenAI deployment
func NewAzureClient(baseURL, apiKey, deployment string, dimensions int) *OpenAIClient {
	config := openai.DefaultAzureConfig(apiKey, baseURL)

	return &OpenAIClient{
		client:     openai.NewClientWithConfig(config),
		model:      deployment,
		provider:   "azure",
		dimensions: dimensions,
	}
}

// Embed generates an embedding vector for the given text
func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, ErrEmptyResponse
	}
	return vectors[0], nil
}

// EmbedBatch generates embedding vectors for multiple texts
func (c *OpenAIClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(c.model),
	})
	if err != nil {
		return nil, fmt.Errorf("%s embeddings request failed: %w", c.provider, err)
	}

	// Order by index; the API does not promise input order
	vectors := make([][]float32, len(texts))
	for _, data := range resp.Data {
		if data.Index >= 0 && data.Index < len(vectors) {
			vectors[data.Index] = data.Embedding
		}
	}

	return vectors, nil
}

// GetModelInfo returns information about the embedding model
func (c *OpenAIClient) GetModelInfo() ModelInfo {
	return ModelInfo{
		Name:       c.model,
		Version:    "v1",
		Dimensions: c.dimensions,
		Provider:   c.provider,
	}
}
