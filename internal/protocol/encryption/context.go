// Package encryption implements NXCP message encryption: the symmetric
// session contexts and the envelope that carries an encrypted message.
package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/des"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/blowfish"
)

// Cipher identifies a session cipher by its NXCP number.
type Cipher uint8

const (
	CipherAES256      Cipher = 0
	CipherBlowfish256 Cipher = 1
	CipherIDEA        Cipher = 2
	Cipher3DES        Cipher = 3
	CipherAES128      Cipher = 4
	CipherBlowfish128 Cipher = 5
)

var (
	ErrUnsupportedCipher = errors.New("encryption: unsupported cipher")
	ErrInvalidKey        = errors.New("encryption: invalid key")
	ErrBadPadding        = errors.New("encryption: bad block padding")
)

var cipherNames = map[Cipher]string{
	CipherAES256:      "aes-256",
	CipherBlowfish256: "blowfish-256",
	CipherIDEA:        "idea",
	Cipher3DES:        "3des",
	CipherAES128:      "aes-128",
	CipherBlowfish128: "blowfish-128",
}

func (c Cipher) String() string {
	if name, ok := cipherNames[c]; ok {
		return name
	}
	return fmt.Sprintf("cipher(%d)", uint8(c))
}

// KeyLen returns the session key size in bytes.
func (c Cipher) KeyLen() int {
	switch c {
	case CipherAES256, CipherBlowfish256:
		return 32
	case Cipher3DES:
		return 24
	case CipherAES128, CipherBlowfish128, CipherIDEA:
		return 16
	default:
		return 0
	}
}

// BlockSize returns the cipher block size, which is also the IV size.
func (c Cipher) BlockSize() int {
	switch c {
	case CipherAES256, CipherAES128:
		return aes.BlockSize
	case CipherBlowfish256, CipherBlowfish128:
		return blowfish.BlockSize
	case Cipher3DES:
		return des.BlockSize
	default:
		return 0
	}
}

// ParseCipher maps a configuration name such as "aes-256" to a Cipher.
func ParseCipher(name string) (Cipher, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for c, n := range cipherNames {
		if n == name {
			if c == CipherIDEA {
				return 0, fmt.Errorf("%w: %s", ErrUnsupportedCipher, name)
			}
			return c, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedCipher, name)
}

// Context is the symmetric primitive negotiated for one connection.
type Context interface {
	Cipher() Cipher
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)
}

// CBCContext encrypts every message in CBC mode with PKCS#7 padding, starting
// from the same session IV. It holds no per-message state and may be shared.
type CBCContext struct {
	cipher Cipher
	block  cipher.Block
	iv     []byte
}

func newBlock(c Cipher, key []byte) (cipher.Block, error) {
	switch c {
	case CipherAES256, CipherAES128:
		return aes.NewCipher(key)
	case CipherBlowfish256, CipherBlowfish128:
		return blowfish.NewCipher(key)
	case Cipher3DES:
		return des.NewTripleDESCipher(key)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCipher, c)
	}
}

// NewContext builds a context from a negotiated key and IV.
func NewContext(c Cipher, key, iv []byte) (*CBCContext, error) {
	if c.BlockSize() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCipher, c)
	}
	if len(key) != c.KeyLen() {
		return nil, fmt.Errorf("%w: %s needs %d key bytes, got %d", ErrInvalidKey, c, c.KeyLen(), len(key))
	}
	if len(iv) != c.BlockSize() {
		return nil, fmt.Errorf("%w: %s needs %d iv bytes, got %d", ErrInvalidKey, c, c.BlockSize(), len(iv))
	}
	block, err := newBlock(c, key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return &CBCContext{cipher: c, block: block, iv: append([]byte(nil), iv...)}, nil
}

// GenerateKey returns a random key and IV sized for c.
func GenerateKey(c Cipher) (key, iv []byte, err error) {
	if c.BlockSize() == 0 {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnsupportedCipher, c)
	}
	key = make([]byte, c.KeyLen())
	iv = make([]byte, c.BlockSize())
	if _, err := rand.Read(key); err != nil {
		return nil, nil, err
	}
	if _, err := rand.Read(iv); err != nil {
		return nil, nil, err
	}
	return key, iv, nil
}

func (c *CBCContext) Cipher() Cipher { return c.cipher }

func (c *CBCContext) Encrypt(plaintext []byte) ([]byte, error) {
	bs := c.block.BlockSize()
	pad := bs - len(plaintext)%bs
	out := make([]byte, len(plaintext)+pad)
	copy(out, plaintext)
	for i := len(plaintext); i < len(out); i++ {
		out[i] = byte(pad)
	}
	cipher.NewCBCEncrypter(c.block, c.iv).CryptBlocks(out, out)
	return out, nil
}

func (c *CBCContext) Decrypt(ciphertext []byte) ([]byte, error) {
	bs := c.block.BlockSize()
	if len(ciphertext) == 0 || len(ciphertext)%bs != 0 {
		return nil, fmt.Errorf("%w: ciphertext length %d", ErrBadPadding, len(ciphertext))
	}
	out := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(c.block, c.iv).CryptBlocks(out, ciphertext)

	pad := int(out[len(out)-1])
	if pad == 0 || pad > bs {
		return nil, ErrBadPadding
	}
	for _, b := range out[len(out)-pad:] {
		if int(b) != pad {
			return nil, ErrBadPadding
		}
	}
	return out[:len(out)-pad], nil
}

// GenerateContext builds a context for c with a fresh random key and IV.
func GenerateContext(c Cipher) (*CBCContext, error) {
	key, iv, err := GenerateKey(c)
	if err != nil {
		return nil, err
	}
	return NewContext(c, key, iv)
}
