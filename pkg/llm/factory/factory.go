package factory

import (
	"fmt"

	"compliance-agent-be/pkg/llm"
	"compliance-agent-be/pkg/llm/ollama"
	"compliance-agent-be/pkg/llm/openai"
)

func NewLLMProvider(providerType, modelName, baseURL, apiKey string) (llm.LLMProvider, error) {
	switch providerType {
	case "ollama":
		if baseURL == "" {
			baseURL = "http://localhost:11434" // Default
		}
		return ollama.NewOllamaProvider(baseURL, modelName), nil
	case "openai":
		return openai.NewOpenAIProvider(apiKey, baseURL, modelName), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", providerType)
	}
}
