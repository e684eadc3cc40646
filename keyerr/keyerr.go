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

package keyerr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so callers can tell bad input apart from a
// failed cryptographic or encoding step. The set is closed.
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidParameters
	KindInvalidKeySize
	KindCipherInitialization
	KindEncoding
	KindIO
)

func (k Kind) String() string {
	switch k {
	case KindInvalidParameters:
		return "InvalidParameters"
	case KindInvalidKeySize:
		return "InvalidKeySize"
	case KindCipherInitialization:
		return "CipherInitializationFailure"
	case KindEncoding:
		return "EncodingFailure"
	case KindIO:
		return "IOFailure"
	default:
		return "Unknown"
	}
}

func New(kind Kind, message string) *Error {
	return &Error{
		Kind:    kind,
		Message: message,
	}
}

func Errorf(kind Kind, fmtStr string, args ...any) *Error {
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf(fmtStr, args...),
	}
}

// Wrap attaches kind to err. The message is used as a prefix, the way
// fmt.Errorf("message: %w", err) would render it.
func Wrap(kind Kind, err error, message string) *Error {
	return &Error{
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}

	if e.Message == "" {
		return e.Err.Error()
	}

	return e.Message + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same Kind, so errors.Is(err, keyerr.New(keyerr.KindInvalidKeySize, ""))
// works as a kind check.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}

	return t.Kind == e.Kind
}

// KindOf returns the kind of the outermost *Error in err's chain, or
// KindUnknown.
func KindOf(err error) Kind {
	var kerr *Error
	if errors.As(err, &kerr) {
		return kerr.Kind
	}

	return KindUnknown
}
