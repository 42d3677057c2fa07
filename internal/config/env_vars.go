package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment keys. The portal and download client keys keep the names the
// deployment's .env files already use.
const (
	portalUsernameVar = "ws_username"
	portalPasswordVar = "ws_password"
	portalOTPVar      = "ws_otp"

	downstreamHostVar      = "qbt_host"
	downstreamPortVar      = "qbt_port"
	downstreamUsernameVar  = "qbt_username"
	downstreamPasswordVar  = "qbt_password"
	downstreamVerifyTLSVar = "qbt_verify_tls"

	waitTimeoutVar = "PORTSCRIBE_WAIT_TIMEOUT"
	chromePathVar  = "PORTSCRIBE_CHROME_PATH"
	debugVar       = "PORTSCRIBE_DEBUG"
)

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}

// GetEnvBool treats 1/true/yes/on (any case) as true.
func GetEnvBool(envVar string, defaultValue bool) bool {
	value := strings.TrimSpace(os.Getenv(envVar))
	if value == "" {
		return defaultValue
	}
	switch strings.ToLower(value) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}
	return defaultValue
}

func getEnvDuration(envVar string, defaultValue time.Duration) (time.Duration, error) {
	value := strings.TrimSpace(os.Getenv(envVar))
	if value == "" {
		return defaultValue, nil
	}
	return time.ParseDuration(value)
}
