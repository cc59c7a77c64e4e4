package config

// Config is the top-level salesbot configuration, corresponding to .salesbot.yml.
type Config struct {
	Port                 int    `yaml:"port" koanf:"port"`
	DatabasePath         string `yaml:"database_path" koanf:"database_path"`
	EmbeddingModel       string `yaml:"embedding_model" koanf:"embedding_model"`
	ChatModel            string `yaml:"chat_model" koanf:"chat_model"`
	SessionWindowMinutes int    `yaml:"session_window_minutes" koanf:"session_window_minutes"`
	EmbedTimeoutSeconds  int    `yaml:"embed_timeout_seconds" koanf:"embed_timeout_seconds"`
	ChatTimeoutSeconds   int    `yaml:"chat_timeout_seconds" koanf:"chat_timeout_seconds"`
	SweepSchedule        string `yaml:"sweep_schedule" koanf:"sweep_schedule"`
	SearchLimit          int    `yaml:"search_limit" koanf:"search_limit"`
	AllowAllOrigins      bool   `yaml:"allow_all_origins" koanf:"allow_all_origins"`
}
