package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/flagkeeper/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-d string   PostgreSQL DSN
//	-s string   JWT HMAC secret key
//	-t int      webhook token validity, minutes
//	-n string   notifier kind ("webhook", "amqp" or empty)
//	-w string   webhook destination URL
//	-q string   AMQP broker URL
//	-x string   AMQP exchange name
//	-k string   AMQP routing key
//	-u string   S3 root user
//	-p string   S3 root password
//	-b string   S3 bucket name
//	-g string   S3 region
//	-e string   S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//
// os.Args is first filtered to only the flags recognized here using
// flagx.FilterArgs, avoiding collisions with flags owned by other components.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-d", "-s", "-t", "-n", "-w", "-q", "-x", "-k", "-u", "-p", "-b", "-g", "-e"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")

	tokenValidityDuration := fs.Int("t", int(config.TokenValidityDuration.Minutes()), "token_validity_duration (in minutes)")

	fs.StringVar(&config.Notifier, "n", config.Notifier, "notifier kind")
	fs.StringVar(&config.WebhookURL, "w", config.WebhookURL, "webhook destination URL")
	fs.StringVar(&config.AMQPURL, "q", config.AMQPURL, "AMQP broker URL")
	fs.StringVar(&config.AMQPExchange, "x", config.AMQPExchange, "AMQP exchange")
	fs.StringVar(&config.AMQPRoutingKey, "k", config.AMQPRoutingKey, "AMQP routing key")

	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.TokenValidityDuration = time.Duration(*tokenValidityDuration) * time.Minute
}
