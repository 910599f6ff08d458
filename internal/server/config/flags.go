package config

import (
	"flag"
	"time"

	"github.com/dmitrijs2005/accounts/internal/flagx"
)

// parseFlags overlays command-line flags onto cfg.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g. ":8080")
//	-m string   gRPC health bind address ("" disables)
//	-d string   PostgreSQL DSN
//	-s string   token signing secret
//	-r string   Redis URL for web sessions ("" keeps them in memory)
//	-t int      session lifetime, minutes
//	-k string   blob backend: local | s3
//	-o string   local blob directory
//	-u string   S3 root user
//	-p string   S3 root password
//	-b string   S3 bucket name
//	-g string   S3 region
//	-e string   S3 base endpoint (e.g. "http://127.0.0.1:9000/")
//	-l string   log level
//
// Only these flags are considered; everything else on the command line
// (e.g. -c) is filtered out with flagx.FilterArgs first.
func parseFlags(cfg *Config, args []string) error {
	args = flagx.FilterArgs(args, []string{"-a", "-m", "-d", "-s", "-r", "-t", "-k", "-o", "-u", "-p", "-b", "-g", "-e", "-l"})

	fs := flag.NewFlagSet("server", flag.ContinueOnError)

	fs.StringVar(&cfg.HTTPAddr, "a", cfg.HTTPAddr, "HTTP address and port")
	fs.StringVar(&cfg.GRPCHealthAddr, "m", cfg.GRPCHealthAddr, "gRPC health address and port")
	fs.StringVar(&cfg.DatabaseDSN, "d", cfg.DatabaseDSN, "database DSN")
	fs.StringVar(&cfg.SecretKey, "s", cfg.SecretKey, "secret key")
	fs.StringVar(&cfg.RedisURL, "r", cfg.RedisURL, "redis URL for sessions")
	sessionTTL := fs.Int("t", int(cfg.SessionTTL.Minutes()), "session ttl (in minutes)")
	fs.StringVar(&cfg.BlobBackend, "k", cfg.BlobBackend, "blob backend (local|s3)")
	fs.StringVar(&cfg.BlobLocalDir, "o", cfg.BlobLocalDir, "local blob directory")
	fs.StringVar(&cfg.S3RootUser, "u", cfg.S3RootUser, "S3 root user")
	fs.StringVar(&cfg.S3RootPassword, "p", cfg.S3RootPassword, "S3 root password")
	fs.StringVar(&cfg.S3Bucket, "b", cfg.S3Bucket, "S3 bucket")
	fs.StringVar(&cfg.S3Region, "g", cfg.S3Region, "S3 region")
	fs.StringVar(&cfg.S3BaseEndpoint, "e", cfg.S3BaseEndpoint, "S3 base endpoint")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg.SessionTTL = time.Duration(*sessionTTL) * time.Minute
	return nil
}
