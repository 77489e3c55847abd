package config

import "strings"

// ApplyEnv overrides config values from environment variables understood by earlier
// deployments: AIPIPE_BASE_URL, CHAT_MODEL and RAG_DEBUG. getenv is usually os.Getenv.
func ApplyEnv(cfg *Config, getenv func(string) string) {
	if v := strings.TrimSpace(getenv("AIPIPE_BASE_URL")); v != "" {
		cfg.Generation.BaseURL = strings.TrimRight(v, "/")
		if cfg.Generation.APIKeyEnv == "" {
			cfg.Generation.APIKeyEnv = "AIPIPE_API_KEY"
		}
	}
	if v := strings.TrimSpace(getenv("CHAT_MODEL")); v != "" {
		cfg.Generation.Model = v
	}
	switch strings.TrimSpace(getenv("RAG_DEBUG")) {
	case "1", "true":
		cfg.Debug = true
	}
}
