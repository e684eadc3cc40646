// Package config holds the settings that shape the generated files but are
// not secrets. They can come from a YAML file and are overridden by flags.
// The seed and passphrase are never read from a file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"

	"github.com/Venafi/ssh-keygen-seeded/internal/ecgen"
	"github.com/Venafi/ssh-keygen-seeded/internal/seedrand"
	"github.com/Venafi/ssh-keygen-seeded/keyerr"
	"github.com/Venafi/ssh-keygen-seeded/policy"
)

type LineEnding string

const (
	LineEndingPlatform LineEnding = "platform"
	LineEndingLF       LineEnding = "lf"
	LineEndingCRLF     LineEnding = "crlf"
)

// Separator returns the characters LineEnding stands for.
func (le LineEnding) Separator() (string, error) {
	switch le {
	case LineEndingPlatform, "":
		if runtime.GOOS == "windows" {
			return "\r\n", nil
		}
		return "\n", nil
	case LineEndingLF:
		return "\n", nil
	case LineEndingCRLF:
		return "\r\n", nil
	default:
		return "", keyerr.Errorf(keyerr.KindInvalidParameters, "unknown line ending %q (want platform, lf or crlf)", string(le))
	}
}

type Config struct {
	KeySize    int        `yaml:"key_size"`
	Curve      string     `yaml:"curve"`
	PRNG       string     `yaml:"prng"`
	LineEnding LineEnding `yaml:"line_ending"`
	Comment    string     `yaml:"comment"`
	OutputDir  string     `yaml:"output_dir"`
	JWK        bool       `yaml:"jwk"`
}

func Defaults() Config {
	return Config{
		KeySize:    policy.DefaultKeySize,
		Curve:      string(ecgen.DefaultCurve),
		PRNG:       string(seedrand.Default),
		LineEnding: LineEndingPlatform,
		OutputDir:  ".",
	}
}

// Load reads path over Defaults. Unknown keys are rejected so that typos do
// not silently change the output.
func Load(path string) (Config, error) {
	cfg := Defaults()

	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, keyerr.Wrap(keyerr.KindInvalidParameters, err, fmt.Sprintf("failed to read config file %q", path))
	}

	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, keyerr.Wrap(keyerr.KindInvalidParameters, err, fmt.Sprintf("failed to parse config file %q", path))
	}

	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.KeySize < policy.MinKeySize || c.KeySize > policy.MaxKeySize {
		return keyerr.Errorf(keyerr.KindInvalidKeySize, "key size %d is not supported (must be between %d and %d bits)", c.KeySize, policy.MinKeySize, policy.MaxKeySize)
	}

	if _, err := ecgen.ParseCurve(c.Curve); err != nil {
		return err
	}

	if _, err := seedrand.ParseAlgorithm(c.PRNG); err != nil {
		return err
	}

	if _, err := c.LineEnding.Separator(); err != nil {
		return err
	}

	if c.OutputDir == "" {
		return keyerr.New(keyerr.KindInvalidParameters, "output directory must not be empty")
	}

	return nil
}
