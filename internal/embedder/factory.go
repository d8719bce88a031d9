package embedder

import (
	"fmt"
)

// New creates an embedder for the named provider. An empty provider name
// defaults to OpenAI.
func New(provider, apiKey, model string, dimension int) (Embedder, error) {
	switch provider {
	case "", ProviderOpenAI:
		return NewOpenAIProvider(apiKey, model, dimension)
	case ProviderJina:
		return NewJinaProvider(apiKey, model, dimension)
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrNoProviderEnabled, provider)
	}
}
