package config

// APIKeyEnv is the environment variable holding the OpenAI API key used
// for both the embedding and the chat-completion collaborators.
const APIKeyEnv = "OPENAI_API_KEY"

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Port:                 8080,
		DatabasePath:         "data/salesbot.db",
		EmbeddingModel:       "text-embedding-ada-002",
		ChatModel:            "gpt-4o-mini",
		SessionWindowMinutes: 5,
		EmbedTimeoutSeconds:  30,
		ChatTimeoutSeconds:   30,
		SweepSchedule:        "@every 1m",
		SearchLimit:          5,
	}
}
