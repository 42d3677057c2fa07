package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	apperrors "github.com/jrsteele09/portscribe/internal/errors"
)

// Fixed policy values. These are deliberately not read from the environment.
const (
	SessionFileName    = "cookies.json"
	LockFileName       = "lock"
	DefaultWaitTimeout = 5 * time.Second
	DefaultEnvFile     = ".env"
)

// Portal holds the account credentials for the port-forwarding portal.
type Portal struct {
	Username string
	Password string
	OTPSeed  string // base32 TOTP seed, empty when 2FA is off
}

// HasOTP reports whether a one-time-password seed is configured.
func (p Portal) HasOTP() bool {
	return p.OTPSeed != ""
}

// Downstream holds the download client's WebUI connection settings.
type Downstream struct {
	Host      string
	Port      int
	Username  string
	Password  string
	VerifyTLS bool
}

// Config is built once at startup and passed down explicitly.
type Config struct {
	Portal      Portal
	Downstream  Downstream
	WaitTimeout time.Duration // bound for every UI wait
	ChromePath  string
	Debug       bool
}

// Load reads envFile (if it exists) into the process environment and builds
// a Config from it. Variables already set in the environment win over the file.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return nil, apperrors.Wrapf(apperrors.ErrConfig, "reading %s: %v", envFile, err)
		}
	}
	return FromEnv()
}

// FromEnv builds a Config from the process environment only.
func FromEnv() (*Config, error) {
	var missing []string
	required := func(key string) string {
		v := os.Getenv(key)
		if v == "" {
			missing = append(missing, key)
		}
		return v
	}

	cfg := &Config{
		Portal: Portal{
			Username: required(portalUsernameVar),
			Password: required(portalPasswordVar),
			OTPSeed:  strings.TrimSpace(os.Getenv(portalOTPVar)),
		},
		Downstream: Downstream{
			Host:      required(downstreamHostVar),
			Username:  required(downstreamUsernameVar),
			Password:  required(downstreamPasswordVar),
			VerifyTLS: GetEnvBool(downstreamVerifyTLSVar, false),
		},
		ChromePath: GetEnv(chromePathVar, ""),
		Debug:      GetEnvBool(debugVar, false),
	}

	portStr := required(downstreamPortVar)
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing %s", apperrors.ErrConfig, strings.Join(missing, ", "))
	}

	port, err := strconv.Atoi(strings.TrimSpace(portStr))
	if err != nil || port < 1 || port > 65535 {
		return nil, fmt.Errorf("%w: %s must be a port number, got %q", apperrors.ErrConfig, downstreamPortVar, portStr)
	}
	cfg.Downstream.Port = port

	timeout, err := getEnvDuration(waitTimeoutVar, DefaultWaitTimeout)
	if err != nil || timeout <= 0 {
		return nil, fmt.Errorf("%w: %s must be a positive duration, got %q", apperrors.ErrConfig, waitTimeoutVar, os.Getenv(waitTimeoutVar))
	}
	cfg.WaitTimeout = timeout

	return cfg, nil
}
