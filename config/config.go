package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"github.com/castai/rds-iops-exporter/pkg/cloudprovider/types"
	"github.com/castai/rds-iops-exporter/pkg/metrics"
)

type Config struct {
	// EnabledMetrics limits the published gauges. Empty enables all.
	EnabledMetrics []string  `yaml:"enabled_metrics" validate:"dive,known_metric"`
	Instances      Instances `yaml:"instances"`
}

type Instances struct {
	RDS []RDSInstance `yaml:"rds" validate:"unique=Instance,dive"`
}

type RDSInstance struct {
	Region       string `yaml:"region" validate:"required"`
	Instance     string `yaml:"instance" validate:"required"`
	AWSAccessKey string `yaml:"aws_access_key" validate:"required"`
	AWSSecretKey string `yaml:"aws_secret_key" validate:"required"`
}

// Descriptor converts the configured entry into the value used by the
// collectors.
func (i RDSInstance) Descriptor() types.Instance {
	return types.Instance{
		ID:     i.Instance,
		Region: i.Region,
		Credentials: types.Credentials{
			AccessKeyID:     i.AWSAccessKey,
			SecretAccessKey: i.AWSSecretKey,
		},
	}
}

// Descriptors returns the instance list in configuration order.
func (c Config) Descriptors() []types.Instance {
	return lo.Map(c.Instances.RDS, func(i RDSInstance, _ int) types.Instance {
		return i.Descriptor()
	})
}

// Load reads and validates the exporter configuration file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config at %s: %w", path, err)
	}
	return Parse(data)
}

func Parse(data []byte) (Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if err := newValidator().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := lo.Map(verrs, func(fe validator.FieldError, _ int) string {
				return fmt.Sprintf("%s failed on %q", fe.Namespace(), fe.Tag())
			})
			return fmt.Errorf("invalid config: %v", msgs)
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("known_metric", func(fl validator.FieldLevel) bool {
		return metrics.IsKnownGauge(fl.Field().String())
	})
	return v
}
