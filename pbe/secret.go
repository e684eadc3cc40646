package pbe

// Secret owns a buffer holding sensitive bytes. Destroy zeroes the buffer;
// after that the Secret is empty.
type Secret struct {
	b []byte
}

// NewSecret takes ownership of b.
func NewSecret(b []byte) *Secret {
	return &Secret{b: b}
}

// NewSecretString copies s into a new Secret. The string itself cannot be
// wiped; callers should drop their references to it.
func NewSecretString(s string) *Secret {
	return &Secret{b: []byte(s)}
}

func (s *Secret) Bytes() []byte {
	if s == nil {
		return nil
	}

	return s.b
}

func (s *Secret) Len() int {
	return len(s.Bytes())
}

func (s *Secret) Destroy() {
	if s == nil {
		return
	}

	clear(s.b)
	s.b = nil
}
