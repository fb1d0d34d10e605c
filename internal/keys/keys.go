// Package keys loads the RSA key material used to sign and verify bearer
// tokens. Every verifying process holds the public key; only the issuer
// holds the private key. Material is parsed once at startup and never
// changes afterwards.
package keys

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"
)

const (
	KeyPublic  = "public"
	KeyPrivate = "private"
)

var (
	ErrNoPEMBlock      = errors.New("no PEM block found")
	ErrNotRSA          = errors.New("key is not RSA")
	ErrMissing         = errors.New("key not configured")
	ErrKeyPairMismatch = errors.New("private key does not match public key")
)

// KeyMaterialError reports which key failed to load. Startup must abort on
// it; there is no partially initialized trust state.
type KeyMaterialError struct {
	Key string
	Err error
}

func (e *KeyMaterialError) Error() string {
	return fmt.Sprintf("%s key: %v", e.Key, e.Err)
}

func (e *KeyMaterialError) Unwrap() error { return e.Err }

// Material is the immutable key set of a process.
type Material struct {
	public  *rsa.PublicKey
	private *rsa.PrivateKey
}

func (m *Material) PublicKey() *rsa.PublicKey { return m.public }

// PrivateKey returns nil in processes that only verify.
func (m *Material) PrivateKey() *rsa.PrivateKey { return m.private }

// Load parses the configured PEM blocks. privatePEM may be empty unless
// requirePrivate is set.
func Load(publicPEM, privatePEM []byte, requirePrivate bool) (*Material, error) {
	if len(publicPEM) == 0 {
		return nil, &KeyMaterialError{Key: KeyPublic, Err: ErrMissing}
	}
	pub, err := ParsePublicKey(publicPEM)
	if err != nil {
		return nil, &KeyMaterialError{Key: KeyPublic, Err: err}
	}

	m := &Material{public: pub}

	if len(privatePEM) == 0 {
		if requirePrivate {
			return nil, &KeyMaterialError{Key: KeyPrivate, Err: ErrMissing}
		}
		return m, nil
	}

	priv, err := ParsePrivateKey(privatePEM)
	if err != nil {
		return nil, &KeyMaterialError{Key: KeyPrivate, Err: err}
	}
	if !priv.PublicKey.Equal(pub) {
		return nil, &KeyMaterialError{Key: KeyPrivate, Err: ErrKeyPairMismatch}
	}
	m.private = priv

	return m, nil
}

// ParsePublicKey accepts PKIX "PUBLIC KEY" and PKCS#1 "RSA PUBLIC KEY" blocks.
func ParsePublicKey(data []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, ErrNoPEMBlock
	}

	if block.Type == "RSA PUBLIC KEY" {
		return x509.ParsePKCS1PublicKey(block.Bytes)
	}

	k, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	pub, ok := k.(*rsa.PublicKey)
	if !ok {
		return nil, ErrNotRSA
	}
	return pub, nil
}

// ParsePrivateKey accepts PKCS#1 "RSA PRIVATE KEY" and PKCS#8 "PRIVATE KEY" blocks.
func ParsePrivateKey(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, ErrNoPEMBlock
	}

	if block.Type == "RSA PRIVATE KEY" {
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	}

	k, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	priv, ok := k.(*rsa.PrivateKey)
	if !ok {
		return nil, ErrNotRSA
	}
	return priv, nil
}

// Generate creates a fresh key pair encoded as PKCS#8 and PKIX PEM.
func Generate(bits int) (privatePEM, publicPEM []byte, err error) {
	priv, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, nil, err
	}

	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, nil, err
	}
	pubDER, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		return nil, nil, err
	}

	privatePEM = pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER})
	publicPEM = pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})
	return privatePEM, publicPEM, nil
}

// ReadPEM returns inline when it is set, otherwise the contents of path.
// Both empty yields nil, nil.
func ReadPEM(inline, path string) ([]byte, error) {
	if strings.TrimSpace(inline) != "" {
		return []byte(inline), nil
	}
	if path == "" {
		return nil, nil
	}
	return os.ReadFile(path)
}
