package s3

import (
	"fmt"
)

// Config describes the S3 object a tier image is kept in and how to reach it.
type Config struct {
	Bucket          string `yaml:"bucket"`
	Key             string `yaml:"key"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	SessionToken    string `yaml:"session_token"`
	ForcePathStyle  bool   `yaml:"force_path_style"`

	// MaxRetries bounds the SDK's own retryer; store-level retries are
	// configured separately.
	MaxRetries int `yaml:"max_retries"`

	// StorageClass is applied to every saved image ("STANDARD",
	// "STANDARD_IA", "INTELLIGENT_TIERING", ...). Archive classes are
	// rejected.
	StorageClass string `yaml:"storage_class"`

	// CargoShip optimized uploads
	EnableCargoShipOptimization bool `yaml:"enable_cargoship_optimization"`
	Concurrency                 int  `yaml:"concurrency"`
}

// NewDefaultConfig returns a config with every optional field defaulted.
func NewDefaultConfig() *Config {
	return &Config{
		Region:       "us-east-1",
		MaxRetries:   3,
		StorageClass: ClassStandard,
		Concurrency:  4,
	}
}

// ApplyDefaults fills zero-valued optional fields from NewDefaultConfig.
func (c *Config) ApplyDefaults() {
	def := NewDefaultConfig()
	if c.Region == "" {
		c.Region = def.Region
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = def.MaxRetries
	}
	if c.StorageClass == "" {
		c.StorageClass = def.StorageClass
	}
	if c.Concurrency <= 0 {
		c.Concurrency = def.Concurrency
	}
}

// Validate checks the config for required fields.
func (c *Config) Validate() error {
	if c.Bucket == "" {
		return fmt.Errorf("bucket name cannot be empty")
	}
	if c.Key == "" {
		return fmt.Errorf("object key cannot be empty")
	}
	if (c.AccessKeyID == "") != (c.SecretAccessKey == "") {
		return fmt.Errorf("access_key_id and secret_access_key must be set together")
	}
	if archiveClasses[c.StorageClass] {
		return fmt.Errorf("storage class %s cannot hold a tier image: objects must be restored before they are readable", c.StorageClass)
	}
	if c.StorageClass != "" {
		if _, ok := storageClasses[c.StorageClass]; !ok {
			return fmt.Errorf("unknown storage class: %s", c.StorageClass)
		}
	}
	return nil
}
