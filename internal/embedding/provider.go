package embedding

import (
	"fmt"

	"github.com/Harshitk-cp/symstate/internal/domain"
)

// Provider constants
const (
	ProviderOpenAI = "openai"
	ProviderLocal  = "local"
)

// NewClient creates an embedding client based on the provider name.
// Returns an error if the provider is unknown or the API key is empty (except for local).
func NewClient(provider, apiKey string, dimensions int) (domain.EmbeddingClient, error) {
	switch provider {
	case ProviderOpenAI:
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required for OpenAI embedding provider")
		}
		return NewOpenAIClient(apiKey, dimensions), nil

	case ProviderLocal:
		return NewLocalClient(dimensions), nil

	default:
		return nil, fmt.Errorf("unknown embedding provider: %s (valid options: openai, local)", provider)
	}
}
