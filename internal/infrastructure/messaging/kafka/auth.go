package kafka

import (
	"crypto/tls"
	"crypto/x509"
	"os"

	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/plain"
	"github.com/segmentio/kafka-go/sasl/scram"

	"github.com/turtacn/ipscope/pkg/errors"
)

// AuthConfig holds the broker authentication knobs shared by producer and
// consumer.  Zero value means plaintext.
type AuthConfig struct {
	SASLEnabled   bool
	SASLMechanism string // "PLAIN" | "SCRAM-SHA-256" | "SCRAM-SHA-512"
	SASLUsername  string
	SASLPassword  string

	TLSEnabled  bool
	TLSCertPath string
}

// saslMechanism builds the configured SASL mechanism.
func saslMechanism(cfg AuthConfig) (sasl.Mechanism, error) {
	switch cfg.SASLMechanism {
	case "PLAIN":
		return plain.Mechanism{Username: cfg.SASLUsername, Password: cfg.SASLPassword}, nil
	case "SCRAM-SHA-256":
		mech, err := scram.Mechanism(scram.SHA256, cfg.SASLUsername, cfg.SASLPassword)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to build SCRAM-SHA-256 mechanism")
		}
		return mech, nil
	case "SCRAM-SHA-512":
		mech, err := scram.Mechanism(scram.SHA512, cfg.SASLUsername, cfg.SASLPassword)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to build SCRAM-SHA-512 mechanism")
		}
		return mech, nil
	default:
		return nil, errors.New(errors.ErrCodeConfigInvalid, "unsupported SASL mechanism "+cfg.SASLMechanism)
	}
}

// tlsConfigFor returns a verifying TLS config, loading an extra CA bundle
// when certPath is set.
func tlsConfigFor(certPath string) (*tls.Config, error) {
	tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if certPath == "" {
		return tlsCfg, nil
	}
	caCert, err := os.ReadFile(certPath)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to read kafka CA bundle")
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caCert) {
		return nil, errors.New(errors.ErrCodeConfigInvalid, "kafka CA bundle contains no certificates")
	}
	tlsCfg.RootCAs = pool
	return tlsCfg, nil
}

// validateAuth rejects incomplete authentication settings early.
func validateAuth(cfg AuthConfig) error {
	if !cfg.SASLEnabled {
		return nil
	}
	if cfg.SASLMechanism == "" {
		return errors.New(errors.ErrCodeValidation, "sasl mechanism required when sasl is enabled")
	}
	if cfg.SASLUsername == "" || cfg.SASLPassword == "" {
		return errors.New(errors.ErrCodeValidation, "sasl credentials required when sasl is enabled")
	}
	return nil
}
