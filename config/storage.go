package config

import (
	"strings"
	"time"
)

// StorageConfig holds object store settings.
type StorageConfig struct {
	Backend       string // minio or memory
	Host          string
	Port          string
	Username      string
	Password      string
	UseSSL        bool
	Bucket        string
	PublicBaseURL string        // when set, public URLs are {PublicBaseURL}/{bucket}/{key}
	PresignExpiry time.Duration // used when PublicBaseURL is empty
}

// Endpoint returns host:port for the MinIO client.
func (c StorageConfig) Endpoint() string {
	return c.Host + ":" + c.Port
}

func initStorageConfig() StorageConfig {
	return StorageConfig{
		Backend:       strings.ToLower(getEnv("STORAGE_BACKEND", "minio")),
		Host:          getEnv("MINIO_HOST", "localhost"),
		Port:          getEnv("MINIO_PORT", "9000"),
		Username:      getEnv("MINIO_USERNAME", "minioadmin"),
		Password:      getEnv("MINIO_PASSWORD", "minioadmin"),
		UseSSL:        getEnvBool("MINIO_USE_SSL", false),
		Bucket:        getEnv("BUCKET_NAME", "training-videos"),
		PublicBaseURL: strings.TrimRight(getEnv("PUBLIC_OBJECT_BASE_URL", ""), "/"),
		PresignExpiry: getEnvDuration("PRESIGN_EXPIRY", 7*24*time.Hour),
	}
}
