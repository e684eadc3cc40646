package keyerr

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestError(t *testing.T) {
	for _, tt := range []struct {
		name     string
		err      error
		wantMsg  string
		wantKind Kind
	}{
		{
			name:     "message only",
			err:      New(KindInvalidParameters, "seed must be specified"),
			wantMsg:  "seed must be specified",
			wantKind: KindInvalidParameters,
		},
		{
			name:     "formatted",
			err:      Errorf(KindInvalidKeySize, "key size %d is not supported", 12),
			wantMsg:  "key size 12 is not supported",
			wantKind: KindInvalidKeySize,
		},
		{
			name:     "wrapped with message",
			err:      Wrap(KindIO, io.ErrUnexpectedEOF, "failed to write"),
			wantMsg:  "failed to write: unexpected EOF",
			wantKind: KindIO,
		},
		{
			name:     "wrapped without message",
			err:      Wrap(KindEncoding, io.EOF, ""),
			wantMsg:  "EOF",
			wantKind: KindEncoding,
		},
		{
			name:     "wrapped by fmt",
			err:      fmt.Errorf("outer: %w", New(KindCipherInitialization, "inner")),
			wantMsg:  "outer: inner",
			wantKind: KindCipherInitialization,
		},
		{
			name:     "plain error",
			err:      errors.New("plain"),
			wantMsg:  "plain",
			wantKind: KindUnknown,
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.wantMsg, tt.err.Error())
			require.Equal(t, tt.wantKind, KindOf(tt.err))
		})
	}
}

func TestErrorIs(t *testing.T) {
	err := fmt.Errorf("context: %w", Wrap(KindIO, io.ErrShortWrite, "write"))

	require.ErrorIs(t, err, New(KindIO, ""))
	require.ErrorIs(t, err, io.ErrShortWrite)
	require.NotErrorIs(t, err, New(KindEncoding, ""))
}

func TestKindString(t *testing.T) {
	require.Equal(t, "InvalidParameters", KindInvalidParameters.String())
	require.Equal(t, "InvalidKeySize", KindInvalidKeySize.String())
	require.Equal(t, "CipherInitializationFailure", KindCipherInitialization.String())
	require.Equal(t, "EncodingFailure", KindEncoding.String())
	require.Equal(t, "IOFailure", KindIO.String())
	require.Equal(t, "Unknown", Kind(42).String())
}
