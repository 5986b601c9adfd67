package config

import "os"

type Config struct {
	Port               string
	Env                string
	PostgresURL        string
	MongoURI           string
	JWTSecret          string
	ServiceToken       string
	WorkflowWebhookURL string
	WorkflowAuthToken  string
}

func Load() *Config {
	return &Config{
		Port:               getEnv("PORT", "8080"),
		Env:                getEnv("ENV", "development"),
		PostgresURL:        getEnv("POSTGRES_CONN_STR", ""),
		MongoURI:           getEnv("MONGO_URI", ""),
		JWTSecret:          getEnv("JWT_SECRET", "supersecretjwtkey"),
		ServiceToken:       getEnv("SERVICE_TOKEN", ""),
		WorkflowWebhookURL: getEnv("WORKFLOW_WEBHOOK_URL", ""),
		WorkflowAuthToken:  getEnv("WORKFLOW_AUTH_TOKEN", ""),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
