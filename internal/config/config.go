// Package config declares the settings shared by the habitual subcommands. The
// structs carry kong tags so flags, environment variables and defaults are defined
// in one place.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Log struct {
	Level  string `help:"Log level (debug, info, warn, error)." default:"info" env:"HABITUAL_LOG_LEVEL"`
	Format string `help:"Log format." enum:"text,logfmt,json" default:"text" env:"HABITUAL_LOG_FORMAT"`
	File   string `help:"Also write logs to this rotating file." type:"path" env:"HABITUAL_LOG_FILE"`
}

type Server struct {
	Addr    string `help:"Listen address." default:":8080" env:"HABITUAL_ADDR"`
	BaseURL string `help:"Public URL of the app." name:"base-url" default:"http://localhost:8080" env:"HABITUAL_BASE_URL"`
	Secret  string `help:"Key material for CSRF and API tokens." env:"HABITUAL_SECRET"`

	Email  Email  `embed:"" prefix:"email-"`
	Push   Push   `embed:"" prefix:"push-"`
	Backup Backup `embed:"" prefix:"backup-"`
}

type Email struct {
	Provider      string `help:"Where login codes are sent." enum:"log,postmark,ses" default:"log" env:"HABITUAL_EMAIL_PROVIDER"`
	From          string `help:"Sender address." default:"noreply@habitual.local" env:"HABITUAL_EMAIL_FROM"`
	PostmarkToken string `help:"Postmark server token." env:"POSTMARK_SERVER_TOKEN"`
	SESRegion     string `help:"AWS region for SES." name:"ses-region" env:"AWS_REGION"`
	AccessKey     string `help:"AWS access key for SES." env:"AWS_ACCESS_KEY_ID"`
	SecretKey     string `help:"AWS secret key for SES." env:"AWS_SECRET_ACCESS_KEY"`
}

type Push struct {
	VAPIDPublicKey  string        `help:"VAPID public key." name:"vapid-public-key" env:"VAPID_PUBLIC_KEY"`
	VAPIDPrivateKey string        `help:"VAPID private key." name:"vapid-private-key" env:"VAPID_PRIVATE_KEY"`
	Subject         string        `help:"VAPID subject (mailto: or https: URL)." default:"mailto:admin@habitual.local" env:"VAPID_SUBJECT"`
	ReminderHour    int           `help:"UTC hour after which reminders go out." default:"20" env:"HABITUAL_REMINDER_HOUR"`
	Interval        time.Duration `help:"How often the reminder scheduler runs." default:"15m" env:"HABITUAL_REMINDER_INTERVAL"`
}

type Backup struct {
	Bucket     string        `help:"S3 bucket for database snapshots." env:"HABITUAL_BACKUP_BUCKET"`
	Region     string        `help:"S3 region." default:"us-east-1" env:"HABITUAL_BACKUP_REGION"`
	Endpoint   string        `help:"Custom S3 endpoint (MinIO, R2, B2)." env:"HABITUAL_BACKUP_ENDPOINT"`
	AccessKey  string        `help:"S3 access key." env:"HABITUAL_BACKUP_ACCESS_KEY"`
	SecretKey  string        `help:"S3 secret key." env:"HABITUAL_BACKUP_SECRET_KEY"`
	Prefix     string        `help:"Object key prefix." default:"habitual/" env:"HABITUAL_BACKUP_PREFIX"`
	Passphrase string        `help:"Encrypt snapshots with this passphrase." env:"HABITUAL_BACKUP_PASSPHRASE"`
	Interval   time.Duration `help:"Time between snapshots." default:"24h" env:"HABITUAL_BACKUP_INTERVAL"`
	Retain     int           `help:"Snapshots to keep in the bucket." default:"7" env:"HABITUAL_BACKUP_RETAIN"`
}

// Enabled reports whether push reminders can be sent.
func (p Push) Enabled() bool {
	return p.VAPIDPublicKey != "" && p.VAPIDPrivateKey != ""
}

// Enabled reports whether snapshots should be uploaded.
func (b Backup) Enabled() bool {
	return b.Bucket != ""
}

// Secure reports whether the app is served over https, which decides cookie flags.
func (s Server) Secure() bool {
	return strings.HasPrefix(s.BaseURL, "https://")
}

// Validate is called by kong after parsing.
func (s Server) Validate() error {
	u, err := url.Parse(s.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("base-url %q must be an absolute URL", s.BaseURL)
	}
	switch s.Email.Provider {
	case "postmark":
		if s.Email.PostmarkToken == "" {
			return errors.New("email-provider postmark needs --email-postmark-token")
		}
	case "ses":
		if s.Email.SESRegion == "" {
			return errors.New("email-provider ses needs --email-ses-region")
		}
	}
	if s.Push.Enabled() && (s.Push.ReminderHour < 0 || s.Push.ReminderHour > 23) {
		return fmt.Errorf("push-reminder-hour %d out of range 0-23", s.Push.ReminderHour)
	}
	if s.Backup.Enabled() && (s.Backup.AccessKey == "" || s.Backup.SecretKey == "") {
		return errors.New("backup-bucket needs --backup-access-key and --backup-secret-key")
	}
	return nil
}

// LoadEnvFile loads KEY=value pairs from path into the environment without
// overriding variables that are already set. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}
