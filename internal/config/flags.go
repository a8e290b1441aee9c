package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/authvault/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-o string   data directory (salt, key material, blob, admin key)
//	-w string   storage backend: "file", "postgres", or "s3"
//	-d string   PostgreSQL DSN
//	-s string   JWT HMAC secret key
//	-t int      session token validity, minutes
//	-f string   remote factor provider endpoint URL
//	-k string   remote factor provider API key
//	-x string   remote factor provider API secret
//	-m int      remote factor provider timeout, seconds
//	-u string   S3 root user
//	-p string   S3 root password
//	-b string   S3 bucket name
//	-g string   S3 region
//	-e string   S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//	-j string   S3 object key for the blob
//	-a string   initial admin password (first run only)
//
// Notes:
//   - The function first filters os.Args to only the flags it recognizes using
//     flagx.FilterArgs, avoiding collisions with other components.
//   - Duration flags are accepted as integers (minutes or seconds) and then
//     converted to time.Duration values.
func parseFlags(config *Config) {
	// Filter args to include only the flags handled here.
	args := flagx.FilterArgs(os.Args[1:], []string{"-o", "-w", "-d", "-s", "-t", "-f", "-k", "-x", "-m", "-u", "-p", "-b", "-g", "-e", "-j", "-a"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.DataDir, "o", config.DataDir, "data directory")
	fs.StringVar(&config.StorageBackend, "w", config.StorageBackend, "storage backend (file, postgres, s3)")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")

	sessionTokenValidityDuration := fs.Int("t", int(config.SessionTokenValidityDuration.Minutes()), "session_token_validity_duration (in minutes)")

	fs.StringVar(&config.FactorEndpoint, "f", config.FactorEndpoint, "factor provider endpoint URL")
	fs.StringVar(&config.FactorAPIKey, "k", config.FactorAPIKey, "factor provider API key")
	fs.StringVar(&config.FactorAPISecret, "x", config.FactorAPISecret, "factor provider API secret")

	factorTimeout := fs.Int("m", int(config.FactorTimeout.Seconds()), "factor provider timeout (in seconds)")

	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 root bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 root region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")
	fs.StringVar(&config.S3Key, "j", config.S3Key, "S3 object key")
	fs.StringVar(&config.AdminInitialPassword, "a", config.AdminInitialPassword, "initial admin password")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.SessionTokenValidityDuration = time.Duration(*sessionTokenValidityDuration) * time.Minute
	config.FactorTimeout = time.Duration(*factorTimeout) * time.Second
}
