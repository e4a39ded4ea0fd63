package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	ServiceName       string
	TemporalAddress   string
	TemporalNamespace string
	HTTPListenAddr    string
	MetricsListenAddr string
	LogLevel          string

	TemporalTLSCert       string
	TemporalTLSKey        string
	TemporalTLSCACert     string
	TemporalTLSServerName string

	// Deployment pipeline and decommission job watched by the concurrency gate.
	PipelineName        string
	DecommissionProject string

	// Root email derivation for new accounts.
	RootEmailPrefix string
	RootEmailDomain string

	// Post-provisioning validation.
	ValidationConfigPath string
	ValidationRoleName   string
	PropagationWindow    time.Duration

	// Workflow poll intervals and bounds.
	GatePollInterval       time.Duration
	DeployPollInterval     time.Duration
	ValidatePollInterval   time.Duration
	DirectorySyncInterval  time.Duration
	DirectorySyncWaitLimit int

	// Directory integration (Azure AD via Microsoft Graph).
	GraphSecretName             string
	DirectoryServicePrincipalID string
	DirectoryAppRoleID          string
	DirectoryProvisioningJobID  string
	IdentityStoreID             string
	SSOInstanceARN              string

	// Notifications.
	FailureTopicARN     string
	CompletionFromEmail string
	CompletionCcList    string
	CompletionBccList   string
	SSOLoginURL         string
}

func Load() (*Config, error) {
	cfg := &Config{
		ServiceName:       getEnv("SERVICE_NAME", "account-factory"),
		TemporalAddress:   getEnv("TEMPORAL_ADDRESS", "localhost:7233"),
		TemporalNamespace: getEnv("TEMPORAL_NAMESPACE", "default"),
		HTTPListenAddr:    getEnv("HTTP_LISTEN_ADDR", ":8090"),
		MetricsListenAddr: getEnv("METRICS_LISTEN_ADDR", ":9090"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),

		TemporalTLSCert:       getEnv("TEMPORAL_TLS_CERT", ""),
		TemporalTLSKey:        getEnv("TEMPORAL_TLS_KEY", ""),
		TemporalTLSCACert:     getEnv("TEMPORAL_TLS_CA_CERT", ""),
		TemporalTLSServerName: getEnv("TEMPORAL_TLS_SERVER_NAME", ""),

		PipelineName:        getEnv("DEPLOY_PIPELINE_NAME", "AWSAccelerator-Pipeline"),
		DecommissionProject: getEnv("ACCOUNT_DECOMMISSION_PROJECT_NAME", ""),

		RootEmailPrefix: getEnv("ROOT_EMAIL_PREFIX", ""),
		RootEmailDomain: getEnv("ROOT_EMAIL_DOMAIN", ""),

		ValidationConfigPath: getEnv("VALIDATION_CONFIG_PATH", "validate.yaml"),
		ValidationRoleName:   getEnv("VALIDATION_ROLE_NAME", ""),

		GraphSecretName:             getEnv("GRAPH_API_SECRET_NAME", ""),
		DirectoryServicePrincipalID: getEnv("GRAPH_SERVICE_PRINCIPAL_ID", ""),
		DirectoryAppRoleID:          getEnv("GRAPH_APP_ROLE_ID", ""),
		DirectoryProvisioningJobID:  getEnv("GRAPH_PROVISIONING_JOB_ID", ""),
		IdentityStoreID:             getEnv("IDENTITY_STORE_ID", ""),
		SSOInstanceARN:              getEnv("SSO_INSTANCE_ARN", ""),

		FailureTopicARN:     getEnv("SNS_FAILURE_TOPIC", ""),
		CompletionFromEmail: getEnv("COMPLETION_FROM_EMAIL", ""),
		CompletionCcList:    getEnv("COMPLETION_CC_LIST", ""),
		CompletionBccList:   getEnv("COMPLETION_BCC_LIST", ""),
		SSOLoginURL:         getEnv("SSO_LOGIN_URL", ""),
	}

	var err error
	if cfg.PropagationWindow, err = getDuration("PROPAGATION_WINDOW", 30*time.Minute); err != nil {
		return nil, err
	}
	if cfg.GatePollInterval, err = getDuration("GATE_POLL_INTERVAL", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.DeployPollInterval, err = getDuration("DEPLOY_POLL_INTERVAL", time.Minute); err != nil {
		return nil, err
	}
	if cfg.ValidatePollInterval, err = getDuration("VALIDATE_POLL_INTERVAL", time.Minute); err != nil {
		return nil, err
	}
	if cfg.DirectorySyncInterval, err = getDuration("DIRECTORY_SYNC_INTERVAL", time.Minute); err != nil {
		return nil, err
	}
	if cfg.DirectorySyncWaitLimit, err = getInt("DIRECTORY_SYNC_WAIT_LIMIT", 15); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the fields required by the given role are present.
func (c *Config) Validate(role string) error {
	var missing []string

	if c.TemporalAddress == "" {
		missing = append(missing, "TEMPORAL_ADDRESS")
	}

	switch role {
	case "worker":
		if c.PipelineName == "" {
			missing = append(missing, "DEPLOY_PIPELINE_NAME")
		}
		if c.RootEmailPrefix == "" {
			missing = append(missing, "ROOT_EMAIL_PREFIX")
		}
		if c.RootEmailDomain == "" {
			missing = append(missing, "ROOT_EMAIL_DOMAIN")
		}
		if c.FailureTopicARN == "" {
			missing = append(missing, "SNS_FAILURE_TOPIC")
		}
	case "factory-api":
		if c.HTTPListenAddr == "" {
			missing = append(missing, "HTTP_LISTEN_ADDR")
		}
	}

	if (c.TemporalTLSCert == "") != (c.TemporalTLSKey == "") {
		return fmt.Errorf("TEMPORAL_TLS_CERT and TEMPORAL_TLS_KEY must both be set or both be empty")
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
