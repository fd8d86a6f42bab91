package config

const defaultSystemPrompt = "You are an AI assistant for invoice management. You can answer questions and perform invoice actions. " +
	"When your answer refers to specific invoices, append them as JSON between ===INVOICE_DATA_START=== and ===INVOICE_DATA_END===."

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel: "info",
		},
		Backend: BackendConfig{
			APIBase:        "http://localhost:3000",
			InvokePath:     "/ai/invoke",
			StreamPath:     "/ai/stream",
			RecordsPath:    "/invoices",
			TimeoutSeconds: 120,
			MaxRetries:     2,
		},
		Agent: AgentConfig{
			Mode:               "stream",
			MaxSteps:           5,
			ToolChoice:         "auto",
			SystemPrompt:       defaultSystemPrompt,
			TurnTimeoutSeconds: 120,
		},
		Cache: CacheConfig{
			Driver: "memory",
			DBPath: "~/.invoicechat/cache.db",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Listen:  "127.0.0.1:9464",
			Path:    "/metrics",
		},
		Feed: FeedConfig{
			Enabled: false,
			Listen:  "127.0.0.1:8465",
			Path:    "/updates",
		},
	}
}
