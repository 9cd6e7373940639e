// Package config loads the optional YAML configuration file.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/yaml"

	"github.com/michelfeldheim/awseb-https/internal/provisioner"
)

// Config is the file configuration. Flags override Region and Profile.
type Config struct {
	Region  string            `json:"region,omitempty"`
	Profile string            `json:"profile,omitempty"`
	Tags    map[string]string `json:"tags,omitempty"`

	Certificate  CertificateConfig  `json:"certificate"`
	Ingress      IngressConfig      `json:"ingress"`
	LoadBalancer LoadBalancerConfig `json:"loadBalancer"`
	DNS          DNSConfig          `json:"dns"`
	Lookup       LookupConfig       `json:"lookup"`
	Claim        ClaimConfig        `json:"claim"`
	Metrics      MetricsConfig      `json:"metrics"`
}

type CertificateConfig struct {
	ValidationTimeout        metav1.Duration `json:"validationTimeout"`
	PollInterval             metav1.Duration `json:"pollInterval"`
	PublishValidationRecords bool            `json:"publishValidationRecords"`
}

type IngressConfig struct {
	// Idempotent treats an existing HTTPS rule as success
	Idempotent bool `json:"idempotent"`
}

type LoadBalancerConfig struct {
	ConfigureListeners bool `json:"configureListeners"`
}

type DNSConfig struct {
	IgnoreMissingOnDelete bool `json:"ignoreMissingOnDelete"`
}

type LookupConfig struct {
	// Ambiguity is "fail" or "first"
	Ambiguity string `json:"ambiguity"`
}

// ClaimConfig enables the Lease based claim. It needs a reachable Kubernetes API.
type ClaimConfig struct {
	Enabled   bool            `json:"enabled"`
	Namespace string          `json:"namespace"`
	Holder    string          `json:"holder,omitempty"`
	Duration  metav1.Duration `json:"duration"`
}

type MetricsConfig struct {
	Pushgateway string `json:"pushgateway,omitempty"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	holder, err := os.Hostname()
	if err != nil {
		holder = "awseb-https"
	}
	return &Config{
		Certificate: CertificateConfig{
			ValidationTimeout:        metav1.Duration{Duration: provisioner.DefaultValidationTimeout},
			PollInterval:             metav1.Duration{Duration: provisioner.DefaultPollInterval},
			PublishValidationRecords: true,
		},
		Ingress:      IngressConfig{Idempotent: true},
		LoadBalancer: LoadBalancerConfig{ConfigureListeners: true},
		Lookup:       LookupConfig{Ambiguity: string(provisioner.FailOnAmbiguity)},
		Claim: ClaimConfig{
			Namespace: "default",
			Holder:    holder,
			Duration:  metav1.Duration{Duration: 30 * time.Minute},
		},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.UnmarshalStrict(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports every invalid field
func (c *Config) Validate() error {
	var errs []error

	if c.Certificate.ValidationTimeout.Duration <= 0 {
		errs = append(errs, errors.New("certificate.validationTimeout must be positive"))
	}
	if c.Certificate.PollInterval.Duration <= 0 {
		errs = append(errs, errors.New("certificate.pollInterval must be positive"))
	} else if c.Certificate.PollInterval.Duration > c.Certificate.ValidationTimeout.Duration {
		errs = append(errs, errors.New("certificate.pollInterval must not exceed certificate.validationTimeout"))
	}
	if _, err := provisioner.ParseAmbiguityPolicy(c.Lookup.Ambiguity); err != nil {
		errs = append(errs, fmt.Errorf("lookup.ambiguity: %w", err))
	}
	if c.Claim.Enabled {
		if c.Claim.Namespace == "" {
			errs = append(errs, errors.New("claim.namespace is required when claims are enabled"))
		}
		if c.Claim.Holder == "" {
			errs = append(errs, errors.New("claim.holder is required when claims are enabled"))
		}
		if c.Claim.Duration.Duration <= 0 {
			errs = append(errs, errors.New("claim.duration must be positive"))
		}
	}
	if c.Metrics.Pushgateway != "" {
		if u, err := url.Parse(c.Metrics.Pushgateway); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("metrics.pushgateway %q is not an absolute URL", c.Metrics.Pushgateway))
		}
	}

	return errors.Join(errs...)
}

// AmbiguityPolicy returns the parsed lookup policy
func (c *Config) AmbiguityPolicy() provisioner.AmbiguityPolicy {
	policy, err := provisioner.ParseAmbiguityPolicy(c.Lookup.Ambiguity)
	if err != nil {
		return provisioner.FailOnAmbiguity
	}
	return policy
}
