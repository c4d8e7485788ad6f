package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/gatekeeper/internal/flagx"
	"github.com/dmitrijs2005/gatekeeper/internal/timex"
)

// JsonConfig is the on-disk shape of the configuration file. Durations
// accept strings such as "720h" or integer nanoseconds.
type JsonConfig struct {
	HTTPAddr          string         `json:"http_addr"`
	DatabaseDSN       string         `json:"database_dsn"`
	SecretKey         string         `json:"secret_key"`
	BaseURL           string         `json:"base_url"`
	Environment       string         `json:"environment"`
	Debug             bool           `json:"debug"`
	SessionTTL        timex.Duration `json:"session_ttl"`
	MagicLinkTTL      timex.Duration `json:"magic_link_ttl"`
	VerificationTTL   timex.Duration `json:"verification_ttl"`
	PasswordResetTTL  timex.Duration `json:"password_reset_ttl"`
	MinPasswordLength int            `json:"min_password_length"`
	AdminEmails       []string       `json:"admin_emails"`
	EmailDomains      []string       `json:"email_domains"`
	CookieSecure      bool           `json:"cookie_secure"`
	SMTP              SMTPConfig     `json:"smtp"`
	Google            OAuthClient    `json:"google"`
	GitHub            OAuthClient    `json:"github"`
	S3RootUser        string         `json:"s3_root_user"`
	S3RootPassword    string         `json:"s3_root_password"`
	S3Bucket          string         `json:"s3_bucket"`
	S3Region          string         `json:"s3_region"`
	S3BaseEndpoint    string         `json:"s3_base_endpoint"`
}

func toJson(c *Config) *JsonConfig {
	return &JsonConfig{
		HTTPAddr:          c.HTTPAddr,
		DatabaseDSN:       c.DatabaseDSN,
		SecretKey:         c.SecretKey,
		BaseURL:           c.BaseURL,
		Environment:       c.Environment,
		Debug:             c.Debug,
		SessionTTL:        timex.Duration{Duration: c.SessionTTL},
		MagicLinkTTL:      timex.Duration{Duration: c.MagicLinkTTL},
		VerificationTTL:   timex.Duration{Duration: c.VerificationTTL},
		PasswordResetTTL:  timex.Duration{Duration: c.PasswordResetTTL},
		MinPasswordLength: c.MinPasswordLength,
		AdminEmails:       c.AdminEmails,
		EmailDomains:      c.EmailDomains,
		CookieSecure:      c.CookieSecure,
		SMTP:              c.SMTP,
		Google:            c.Google,
		GitHub:            c.GitHub,
		S3RootUser:        c.S3RootUser,
		S3RootPassword:    c.S3RootPassword,
		S3Bucket:          c.S3Bucket,
		S3Region:          c.S3Region,
		S3BaseEndpoint:    c.S3BaseEndpoint,
	}
}

// parseJson overlays Config with the JSON file named by -c or -config.
// Keys missing from the file keep their current values. An unreadable file
// or invalid JSON panics.
func parseJson(config *Config) {
	jsonConfigFile := flagx.ConfigFile(os.Args[1:])

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := toJson(config)
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	config.HTTPAddr = c.HTTPAddr
	config.DatabaseDSN = c.DatabaseDSN
	config.SecretKey = c.SecretKey
	config.BaseURL = c.BaseURL
	config.Environment = c.Environment
	config.Debug = c.Debug
	config.SessionTTL = c.SessionTTL.Duration
	config.MagicLinkTTL = c.MagicLinkTTL.Duration
	config.VerificationTTL = c.VerificationTTL.Duration
	config.PasswordResetTTL = c.PasswordResetTTL.Duration
	config.MinPasswordLength = c.MinPasswordLength
	config.AdminEmails = c.AdminEmails
	config.EmailDomains = c.EmailDomains
	config.CookieSecure = c.CookieSecure
	config.SMTP = c.SMTP
	config.Google = c.Google
	config.GitHub = c.GitHub
	config.S3RootUser = c.S3RootUser
	config.S3RootPassword = c.S3RootPassword
	config.S3Bucket = c.S3Bucket
	config.S3Region = c.S3Region
	config.S3BaseEndpoint = c.S3BaseEndpoint
}
