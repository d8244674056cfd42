// Backup-Binary: pg_dump der MyEvidence-Datenbank, gzip, Upload nach S3,
// danach Rotation der alten Dumps.
package main

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"time"

	"myevidence/config"
	"myevidence/storage"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type backupConfig struct {
	DBHost     string `envconfig:"DB_HOST" required:"true"`
	DBUser     string `envconfig:"DB_USER" required:"true"`
	DBPassword string `envconfig:"DB_PASSWORD" required:"true"`
	DBName     string `envconfig:"DB_NAME" required:"true"`

	BackupS3Key    string `envconfig:"BACKUP_S3_KEY" required:"true"`
	BackupS3Secret string `envconfig:"BACKUP_S3_SECRET" required:"true"`
	BackupS3URL    string `envconfig:"BACKUP_S3_URL" required:"true"`
	BackupS3Region string `envconfig:"BACKUP_S3_REGION" required:"true"`
	BackupS3Bucket string `envconfig:"BACKUP_S3_BUCKET" required:"true"`

	KeepBackups int `envconfig:"KEEP_BACKUPS" default:"4"`
}

func main() {
	log.Println("Starte Backup-Prozess...")

	_ = godotenv.Load()
	var cfg backupConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("Fehler beim Laden der Konfiguration: %v", err)
	}

	dumpData, err := createDump(cfg)
	if err != nil {
		log.Fatalf("Fehler beim Erstellen des DB-Dumps: %v", err)
	}

	store, err := storage.NewBackupStore(&config.Config{
		BackupS3Key:    cfg.BackupS3Key,
		BackupS3Secret: cfg.BackupS3Secret,
		BackupS3URL:    cfg.BackupS3URL,
		BackupS3Region: cfg.BackupS3Region,
		BackupS3Bucket: cfg.BackupS3Bucket,
	})
	if err != nil {
		log.Fatalf("Fehler beim Erstellen des S3-Clients: %v", err)
	}

	ctx := context.Background()
	fileName := fmt.Sprintf("myevidence-%s.sql.gz", time.Now().UTC().Format("2006-01-02T15-04-05Z"))
	if err := store.Upload(ctx, fileName, dumpData); err != nil {
		log.Fatalf("Fehler beim Hochladen nach S3: %v", err)
	}
	log.Printf("Backup erfolgreich nach s3://%s/%s hochgeladen", cfg.BackupS3Bucket, fileName)

	deleted, err := store.Rotate(ctx, cfg.KeepBackups)
	if err != nil {
		log.Fatalf("Fehler bei der Rotation alter Backups: %v", err)
	}
	for _, key := range deleted {
		log.Printf("Altes Backup gelöscht: %s", key)
	}

	log.Println("Backup-Prozess erfolgreich abgeschlossen.")
}

func createDump(cfg backupConfig) ([]byte, error) {
	cmd := exec.Command("pg_dump",
		"-h", cfg.DBHost,
		"-U", cfg.DBUser,
		"-d", cfg.DBName,
		"-w", // Passwort kommt über PGPASSWORD
	)
	cmd.Env = append(os.Environ(), fmt.Sprintf("PGPASSWORD=%s", cfg.DBPassword))

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	gzipWriter := gzip.NewWriter(&buf)
	if _, err := io.Copy(gzipWriter, stdout); err != nil {
		return nil, err
	}
	if err := gzipWriter.Close(); err != nil {
		return nil, err
	}
	if err := cmd.Wait(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
