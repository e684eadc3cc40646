/*
Copyright 2024 Venafi

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Venafi/ssh-keygen-seeded/config"
	"github.com/Venafi/ssh-keygen-seeded/generator"
	"github.com/Venafi/ssh-keygen-seeded/internal/ecgen"
	"github.com/Venafi/ssh-keygen-seeded/internal/keyfile"
	"github.com/Venafi/ssh-keygen-seeded/internal/seedrand"
	"github.com/Venafi/ssh-keygen-seeded/keyerr"
	"github.com/Venafi/ssh-keygen-seeded/logging"
	"github.com/Venafi/ssh-keygen-seeded/pbe"
	"github.com/Venafi/ssh-keygen-seeded/policy"
)

type options struct {
	seed       string
	passphrase string
	keySize    int
	curve      string
	prng       string
	lineEnding string
	comment    string
	outDir     string
	jwk        bool
	configPath string
	verbose    bool

	privateKeyPath string
	publicKeyPath  string
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "ssh-keygen-seeded",
		Short: "Derive a reproducible SSH key pair from a seed",
		Long: `Derive a reproducible SSH key pair from a seed.

The same seed, passphrase and key size always produce the same key pair.
The private key is written as an encrypted PKCS#8 block, the public key
in OpenSSH authorized_keys format.

Examples:
  # 4096 bit RSA key pair in the current directory
  ssh-keygen-seeded rsa --seed "correct horse" --passphrase secret

  # check that a key pair decrypts and belongs together
  ssh-keygen-seeded verify --passphrase secret`,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return keyerr.New(keyerr.KindInvalidParameters, "command must be specified")
		},
	}

	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return keyerr.Wrap(keyerr.KindInvalidParameters, err, "")
	})

	pflags := root.PersistentFlags()
	pflags.StringVar(&opts.passphrase, "passphrase", "", "Required: passphrase protecting the private key")
	pflags.StringVar(&opts.outDir, "out-dir", "", "Directory for the key files (default \".\")")
	pflags.StringVar(&opts.configPath, "config", "", "YAML file with default settings")
	pflags.BoolVarP(&opts.verbose, "verbose", "v", false, "Narrate progress on stderr")

	root.AddCommand(
		newGenerateCmd(generator.RSA, opts),
		newGenerateCmd(generator.ECDSA, opts),
		newVerifyCmd(opts),
	)

	return root
}

func newGenerateCmd(alg generator.Algorithm, opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:  string(alg),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd, alg, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.seed, "seed", "", "Required: seed the key pair is derived from")
	flags.StringVar(&opts.prng, "prng", "", fmt.Sprintf("Seed expansion algorithm %v (default %q)", seedrand.Algorithms(), seedrand.Default))
	flags.StringVar(&opts.comment, "comment", "", "Public key comment (default local user name)")
	flags.StringVar(&opts.lineEnding, "line-ending", "", "Line separator around the private key body: platform, lf or crlf")
	flags.BoolVar(&opts.jwk, "jwk", false, "Also write the public key as a JSON Web Key")

	switch alg {
	case generator.RSA:
		cmd.Short = "Generate an RSA key pair"
		flags.IntVar(&opts.keySize, "key-size", policy.DefaultKeySize, "Modulus length in bits")
	case generator.ECDSA:
		cmd.Short = "Generate an ECDSA key pair"
		flags.StringVar(&opts.curve, "curve", "", fmt.Sprintf("Curve: p256, p384 or p521 (default %q)", ecgen.DefaultCurve))
	}

	return cmd
}

func newVerifyCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Decrypt a private key and check it against its public key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(cmd, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.privateKeyPath, "private-key", "", "Private key file (default <out-dir>/"+policy.RSAPrivateKeyFile+")")
	flags.StringVar(&opts.publicKeyPath, "public-key", "", "Public key file (default <private-key>"+policy.PublicKeySuffix+")")

	return cmd
}

// resolveConfig layers explicitly set flags over the config file, or over
// the defaults when there is none.
func resolveConfig(cmd *cobra.Command, opts *options) (config.Config, error) {
	cfg := config.Defaults()

	if opts.configPath != "" {
		var err error
		if cfg, err = config.Load(opts.configPath); err != nil {
			return cfg, err
		}
	}

	flags := cmd.Flags()

	if flags.Changed("key-size") {
		cfg.KeySize = opts.keySize
	}
	if flags.Changed("curve") {
		cfg.Curve = opts.curve
	}
	if flags.Changed("prng") {
		cfg.PRNG = opts.prng
	}
	if flags.Changed("line-ending") {
		cfg.LineEnding = config.LineEnding(opts.lineEnding)
	}
	if flags.Changed("comment") {
		cfg.Comment = opts.comment
	}
	if flags.Changed("out-dir") {
		cfg.OutputDir = opts.outDir
	}
	if flags.Changed("jwk") {
		cfg.JWK = opts.jwk
	}

	return cfg, cfg.Validate()
}

func setupLogger(cmd *cobra.Command, opts *options) context.Context {
	logger := logging.New(cmd.ErrOrStderr(), opts.verbose)
	ctx := logging.ContextWithLogger(cmd.Context(), logger)

	ctx, _, err := logging.WithRunID(ctx)
	if err != nil {
		logger.Warn("failed to create run id", "err", err)
	}

	return ctx
}

func runGenerate(cmd *cobra.Command, alg generator.Algorithm, opts *options) error {
	if !cmd.Flags().Changed("seed") {
		return keyerr.New(keyerr.KindInvalidParameters, "seed must be specified")
	}

	if !cmd.Flags().Changed("passphrase") {
		return keyerr.New(keyerr.KindInvalidParameters, "passphrase must be specified")
	}

	cfg, err := resolveConfig(cmd, opts)
	if err != nil {
		return err
	}

	curve, err := ecgen.ParseCurve(cfg.Curve)
	if err != nil {
		return err
	}

	prng, err := seedrand.ParseAlgorithm(cfg.PRNG)
	if err != nil {
		return err
	}

	lineSeparator, err := cfg.LineEnding.Separator()
	if err != nil {
		return err
	}

	comment := cfg.Comment
	if comment == "" {
		comment = generator.LocalUsername()
	}

	ctx := setupLogger(cmd, opts)
	logger := logging.LoggerFromContext(ctx)

	passphrase := pbe.NewSecretString(opts.passphrase)
	defer passphrase.Destroy()

	seed := []byte(opts.seed)
	defer clear(seed)

	out, err := generator.Generate(ctx, &generator.Request{
		Seed:          seed,
		Passphrase:    passphrase,
		Algorithm:     alg,
		KeySize:       cfg.KeySize,
		Curve:         curve,
		PRNG:          prng,
		Comment:       comment,
		LineSeparator: lineSeparator,
		JWK:           cfg.JWK,
	})
	if err != nil {
		return err
	}

	if err := keyfile.Write(cfg.OutputDir, out.Files()); err != nil {
		return err
	}

	logger.Info("key-pair written to file system", "dir", cfg.OutputDir)

	fmt.Fprintln(cmd.OutOrStdout(), out.Fingerprint.String())

	return nil
}

func runVerify(cmd *cobra.Command, opts *options) error {
	if !cmd.Flags().Changed("passphrase") {
		return keyerr.New(keyerr.KindInvalidParameters, "passphrase must be specified")
	}

	cfg, err := resolveConfig(cmd, opts)
	if err != nil {
		return err
	}

	privatePath := opts.privateKeyPath
	if privatePath == "" {
		privatePath = filepath.Join(cfg.OutputDir, policy.RSAPrivateKeyFile)
	}

	publicPath := opts.publicKeyPath
	if publicPath == "" {
		publicPath = privatePath + policy.PublicKeySuffix
	}

	privateText, err := os.ReadFile(privatePath)
	if err != nil {
		return keyerr.Wrap(keyerr.KindIO, err, "failed to read private key")
	}

	publicText, err := os.ReadFile(publicPath)
	if err != nil {
		return keyerr.Wrap(keyerr.KindIO, err, "failed to read public key")
	}

	ctx := setupLogger(cmd, opts)

	passphrase := pbe.NewSecretString(opts.passphrase)
	defer passphrase.Destroy()

	fprint, err := generator.Verify(ctx, passphrase, privateText, publicText)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), fprint.String())

	return nil
}

// run executes the command line and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)

	cmd, err := root.ExecuteContextC(ctx)
	if err == nil {
		return 0
	}

	fmt.Fprintf(stderr, "ERROR: %s\n", err)

	if cmd == nil {
		cmd = root
	}

	// cobra reports unknown commands and flags as plain errors
	kind := keyerr.KindOf(err)
	if kind == keyerr.KindInvalidParameters || (kind == keyerr.KindUnknown && ctx.Err() == nil) {
		fmt.Fprint(stderr, cmd.UsageString())
	}

	return 1
}

func main() {
	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	code := run(runCtx, os.Args[1:], os.Stdout, os.Stderr)

	stop()
	os.Exit(code)
}
