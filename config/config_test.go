package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Venafi/ssh-keygen-seeded/keyerr"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	return path
}

func TestLoad(t *testing.T) {
	for _, tt := range []struct {
		name    string
		body    string
		expCfg  func(*testing.T, Config)
		expKind keyerr.Kind
	}{
		{
			name: "empty file gives defaults",
			body: "",
			expCfg: func(t *testing.T, cfg Config) {
				require.Equal(t, Defaults(), cfg)
			},
		},
		{
			name: "overrides",
			body: "key_size: 2048\nprng: sha1prng\nline_ending: crlf\ncomment: ci\njwk: true\n",
			expCfg: func(t *testing.T, cfg Config) {
				require.Equal(t, 2048, cfg.KeySize)
				require.Equal(t, "sha1prng", cfg.PRNG)
				require.Equal(t, LineEndingCRLF, cfg.LineEnding)
				require.Equal(t, "ci", cfg.Comment)
				require.True(t, cfg.JWK)
				require.Equal(t, ".", cfg.OutputDir)
			},
		},
		{
			name:    "unknown field",
			body:    "key_sise: 2048\n",
			expKind: keyerr.KindInvalidParameters,
		},
		{
			name:    "key size too small",
			body:    "key_size: 128\n",
			expKind: keyerr.KindInvalidKeySize,
		},
		{
			name:    "unknown prng",
			body:    "prng: lcg\n",
			expKind: keyerr.KindInvalidParameters,
		},
		{
			name:    "unknown line ending",
			body:    "line_ending: cr\n",
			expKind: keyerr.KindInvalidParameters,
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, tt.body))
			if tt.expKind != keyerr.KindUnknown {
				require.Error(t, err)
				require.Equal(t, tt.expKind, keyerr.KindOf(err))
				return
			}

			require.NoError(t, err)
			tt.expCfg(t, cfg)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Equal(t, keyerr.KindInvalidParameters, keyerr.KindOf(err))
}

func TestLineEndingSeparator(t *testing.T) {
	sep, err := LineEndingLF.Separator()
	require.NoError(t, err)
	require.Equal(t, "\n", sep)

	sep, err = LineEndingCRLF.Separator()
	require.NoError(t, err)
	require.Equal(t, "\r\n", sep)

	sep, err = LineEndingPlatform.Separator()
	require.NoError(t, err)
	if runtime.GOOS == "windows" {
		require.Equal(t, "\r\n", sep)
	} else {
		require.Equal(t, "\n", sep)
	}
}
