// Package storage kapselt den S3-Zugriff für die Datenbank-Backups.
package storage

import (
	"bytes"
	"context"
	"sort"

	"myevidence/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// BackupStore schreibt und rotiert Backup-Objekte in einem Bucket.
type BackupStore struct {
	client *s3.Client
	bucket string
}

// NewBackupStore erstellt einen S3-Client für den konfigurierten
// (S3-kompatiblen) Endpoint.
func NewBackupStore(cfg *config.Config) (*BackupStore, error) {
	resolver := aws.EndpointResolverWithOptionsFunc(
		func(service, region string, options ...interface{}) (aws.Endpoint, error) {
			return aws.Endpoint{
				URL:               cfg.BackupS3URL,
				SigningRegion:     cfg.BackupS3Region,
				HostnameImmutable: true,
			}, nil
		},
	)
	awsCfg, err := awsconfig.LoadDefaultConfig(context.TODO(),
		awsconfig.WithRegion(cfg.BackupS3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.BackupS3Key, cfg.BackupS3Secret, "")),
		awsconfig.WithEndpointResolverWithOptions(resolver),
	)
	if err != nil {
		return nil, err
	}
	return &BackupStore{client: s3.NewFromConfig(awsCfg), bucket: cfg.BackupS3Bucket}, nil
}

// Upload legt ein Backup-Objekt unter dem Key ab.
func (b *BackupStore) Upload(ctx context.Context, key string, data []byte) error {
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	return err
}

// Rotate behält die keep neuesten Objekte und löscht den Rest.
// Rückgabe sind die gelöschten Keys.
func (b *BackupStore) Rotate(ctx context.Context, keep int) ([]string, error) {
	output, err := b.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.bucket),
	})
	if err != nil {
		return nil, err
	}
	if len(output.Contents) <= keep {
		return nil, nil
	}

	sort.Slice(output.Contents, func(i, j int) bool {
		return output.Contents[i].LastModified.After(*output.Contents[j].LastModified)
	})

	var deleted []string
	for _, obj := range output.Contents[keep:] {
		_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(b.bucket),
			Key:    obj.Key,
		})
		if err != nil {
			return deleted, err
		}
		deleted = append(deleted, *obj.Key)
	}
	return deleted, nil
}
