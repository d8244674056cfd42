package config

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config enthält alle Konfigurationsparameter aus Umgebungsvariablen.
type Config struct {
	DBHost     string `envconfig:"DB_HOST" required:"true"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" required:"true"`
	DBPassword string `envconfig:"DB_PASSWORD" required:"true"`
	DBName     string `envconfig:"DB_NAME" required:"true"`

	HTTPPort     string `envconfig:"HTTP_PORT" default:"4242"`
	APISecretKey string `envconfig:"API_SECRET_KEY"`

	PubMedBaseURL string `envconfig:"PUBMED_BASE_URL" default:"https://eutils.ncbi.nlm.nih.gov/entrez/eutils"`
	PubMedAPIKey  string `envconfig:"PUBMED_API_KEY"`
	PubMedEmail   string `envconfig:"PUBMED_EMAIL"`
	PubMedTool    string `envconfig:"PUBMED_TOOL" default:"myevidence"`
	PubMedRetMax  int    `envconfig:"PUBMED_RETMAX" default:"100"`

	OpenAIAPIKey  string `envconfig:"OPENAI_API_KEY" required:"true"`
	OpenAIModel   string `envconfig:"OPENAI_MODEL" default:"gpt-4o-mini"`
	OpenAIBaseURL string `envconfig:"OPENAI_BASE_URL"`

	AzureDIEndpoint string `envconfig:"AZURE_DI_ENDPOINT" required:"true"`
	AzureDIKey      string `envconfig:"AZURE_DI_KEY" required:"true"`

	// Zeitplan für den Library-Stats-Job (Prometheus-Gauges).
	CronSchedule string `envconfig:"CRON_SCHEDULE" default:"0 * * * *"`

	BackupS3Key    string `envconfig:"BACKUP_S3_KEY"`
	BackupS3Secret string `envconfig:"BACKUP_S3_SECRET"`
	BackupS3URL    string `envconfig:"BACKUP_S3_URL"`
	BackupS3Region string `envconfig:"BACKUP_S3_REGION"`
	BackupS3Bucket string `envconfig:"BACKUP_S3_BUCKET"`
}

// DSN gibt den Data Source Name für die PostgreSQL-Verbindung zurück.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort)
}

// Load lädt die Konfiguration aus den Umgebungsvariablen.
func Load() (*Config, error) {
	_ = godotenv.Load()
	var c Config
	err := envconfig.Process("", &c)
	return &c, err
}
