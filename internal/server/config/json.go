package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/accounts/internal/flagx"
	"github.com/dmitrijs2005/accounts/internal/timex"
)

// JsonConfig is the on-disk shape of the config file. Pointers distinguish
// "absent" from zero values so a partial file only overrides what it names.
// Durations use timex.Duration and accept "90m" or integer nanoseconds.
type JsonConfig struct {
	HTTPAddr            *string         `json:"http_addr"`
	GRPCHealthAddr      *string         `json:"grpc_health_addr"`
	DatabaseDSN         *string         `json:"database_dsn"`
	SecretKey           *string         `json:"secret_key"`
	RedisURL            *string         `json:"redis_url"`
	SessionTTL          *timex.Duration `json:"session_ttl"`
	SessionCookieName   *string         `json:"session_cookie_name"`
	SessionCookieSecure *bool           `json:"session_cookie_secure"`
	BcryptCost          *int            `json:"bcrypt_cost"`
	MaxAvatarBytes      *int64          `json:"max_avatar_bytes"`
	BlobBackend         *string         `json:"blob_backend"`
	BlobLocalDir        *string         `json:"blob_local_dir"`
	BlobPublicURL       *string         `json:"blob_public_url"`
	S3RootUser          *string         `json:"s3_root_user"`
	S3RootPassword      *string         `json:"s3_root_password"`
	S3Bucket            *string         `json:"s3_bucket"`
	S3Region            *string         `json:"s3_region"`
	S3BaseEndpoint      *string         `json:"s3_base_endpoint"`
	LogLevel            *string         `json:"log_level"`
}

// parseJSON loads the file given with -c/-config, if any, into cfg.
func parseJSON(cfg *Config, args []string) error {
	path := flagx.ConfigFile(args)
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(data, c); err != nil {
		return err
	}

	setString(&cfg.HTTPAddr, c.HTTPAddr)
	setString(&cfg.GRPCHealthAddr, c.GRPCHealthAddr)
	setString(&cfg.DatabaseDSN, c.DatabaseDSN)
	setString(&cfg.SecretKey, c.SecretKey)
	setString(&cfg.RedisURL, c.RedisURL)
	if c.SessionTTL != nil {
		cfg.SessionTTL = c.SessionTTL.Duration
	}
	setString(&cfg.SessionCookieName, c.SessionCookieName)
	if c.SessionCookieSecure != nil {
		cfg.SessionCookieSecure = *c.SessionCookieSecure
	}
	if c.BcryptCost != nil {
		cfg.BcryptCost = *c.BcryptCost
	}
	if c.MaxAvatarBytes != nil {
		cfg.MaxAvatarBytes = *c.MaxAvatarBytes
	}
	setString(&cfg.BlobBackend, c.BlobBackend)
	setString(&cfg.BlobLocalDir, c.BlobLocalDir)
	setString(&cfg.BlobPublicURL, c.BlobPublicURL)
	setString(&cfg.S3RootUser, c.S3RootUser)
	setString(&cfg.S3RootPassword, c.S3RootPassword)
	setString(&cfg.S3Bucket, c.S3Bucket)
	setString(&cfg.S3Region, c.S3Region)
	setString(&cfg.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&cfg.LogLevel, c.LogLevel)

	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
