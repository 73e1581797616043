package crypto

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"filippo.io/age"
)

// ErrNoMatchingKey means none of the keyring's identities can open a value.
var ErrNoMatchingKey = errors.New("no key in the keyring opens this value")

// Encryptor seals sensitive client fields (billing details) with age. It
// writes with the current key and reads with the current key or any retired
// one, so rotating ENCRYPTION_KEY keeps existing rows readable.
type Encryptor struct {
	current    *age.X25519Identity
	identities []age.Identity
}

func parseIdentity(key string) (*age.X25519Identity, error) {
	identity, err := age.ParseX25519Identity(key)
	if err != nil {
		return nil, fmt.Errorf("parsing identity: %w", err)
	}
	return identity, nil
}

// NewEncryptor builds a keyring from the current age secret key and any
// retired keys. An empty current key is generated, which makes everything
// sealed by this process unreadable after a restart.
func NewEncryptor(key string, retired ...string) (*Encryptor, error) {
	var (
		current *age.X25519Identity
		err     error
	)
	if key == "" {
		current, err = age.GenerateX25519Identity()
		if err != nil {
			return nil, fmt.Errorf("generating identity: %w", err)
		}
	} else if current, err = parseIdentity(key); err != nil {
		return nil, err
	}

	e := &Encryptor{current: current, identities: []age.Identity{current}}
	for _, k := range retired {
		id, err := parseIdentity(k)
		if err != nil {
			return nil, fmt.Errorf("retired key: %w", err)
		}
		e.identities = append(e.identities, id)
	}
	return e, nil
}

// GenerateKey returns a fresh age secret key for ENCRYPTION_KEY.
func GenerateKey() (string, error) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return "", fmt.Errorf("generating identity: %w", err)
	}
	return identity.String(), nil
}

// Recipient is the public half of the current key.
func (e *Encryptor) Recipient() string {
	return e.current.Recipient().String()
}

func (e *Encryptor) seal(plaintext []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, e.current.Recipient())
	if err != nil {
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}
	if _, err := w.Write(plaintext); err != nil {
		return nil, fmt.Errorf("writing plaintext: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("closing encryptor: %w", err)
	}
	return buf.Bytes(), nil
}

func (e *Encryptor) open(ciphertext []byte) ([]byte, error) {
	r, err := age.Decrypt(bytes.NewReader(ciphertext), e.identities...)
	if err != nil {
		var noMatch *age.NoIdentityMatchError
		if errors.As(err, &noMatch) {
			return nil, ErrNoMatchingKey
		}
		return nil, fmt.Errorf("creating decryptor: %w", err)
	}
	plaintext, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading plaintext: %w", err)
	}
	return plaintext, nil
}

// EncryptJSON marshals v and returns base64 ciphertext for a text column.
func (e *Encryptor) EncryptJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshaling plaintext: %w", err)
	}
	sealed, err := e.seal(data)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// DecryptJSON reverses EncryptJSON into v.
func (e *Encryptor) DecryptJSON(ciphertext string, v any) error {
	decoded, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return fmt.Errorf("decoding base64: %w", err)
	}
	plaintext, err := e.open(decoded)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(plaintext, v); err != nil {
		return fmt.Errorf("unmarshaling plaintext: %w", err)
	}
	return nil
}

// Reseal re-encrypts ciphertext under the current key. It is a no-op for
// values the current key already opens.
func (e *Encryptor) Reseal(ciphertext string) (string, bool, error) {
	decoded, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", false, fmt.Errorf("decoding base64: %w", err)
	}
	if r, err := age.Decrypt(bytes.NewReader(decoded), e.current); err == nil {
		if _, err := io.Copy(io.Discard, r); err == nil {
			return ciphertext, false, nil
		}
	}
	plaintext, err := e.open(decoded)
	if err != nil {
		return "", false, err
	}
	sealed, err := e.seal(plaintext)
	if err != nil {
		return "", false, err
	}
	return base64.StdEncoding.EncodeToString(sealed), true, nil
}

// GenerateToken returns n random bytes encoded as unpadded URL-safe base64.
func GenerateToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
