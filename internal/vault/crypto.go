package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/crypto/argon2"
)

const (
	// Crypto constants
	KeySize   = 32 // AES-256 key size
	SaltSize  = 32 // Salt size for Argon2id
	NonceSize = 12 // GCM nonce size
	TagSize   = 16 // GCM tag size

	// Envelope version
	EnvelopeVersion = 1

	// Default Argon2id parameters (tuned for ~300ms on modern hardware)
	DefaultArgon2Memory      = 64 * 1024 // 64 MB
	DefaultArgon2Iterations  = 3
	DefaultArgon2Parallelism = 4
)

// envelopeMagic prefixes every sealed snapshot so foreign files are rejected early.
var envelopeMagic = []byte("CVLT")

var (
	ErrInvalidEnvelope  = errors.New("invalid envelope format")
	ErrInvalidVersion   = errors.New("unsupported envelope version")
	ErrDecryptionFailed = errors.New("decryption failed")
	ErrInvalidKeySize   = errors.New("invalid key size")
	ErrInvalidNonceSize = errors.New("invalid nonce size")
)

// Argon2Params holds the key derivation parameters
type Argon2Params struct {
	Memory      uint32 `json:"memory" yaml:"memory"`
	Iterations  uint32 `json:"iterations" yaml:"iterations"`
	Parallelism uint8  `json:"parallelism" yaml:"parallelism"`
}

// DefaultArgon2Params returns the default Argon2id parameters
func DefaultArgon2Params() Argon2Params {
	return Argon2Params{
		Memory:      DefaultArgon2Memory,
		Iterations:  DefaultArgon2Iterations,
		Parallelism: DefaultArgon2Parallelism,
	}
}

// Validate checks that the parameters are within sane bounds.
func (p Argon2Params) Validate() error {
	if p.Memory < 1024 {
		return errors.New("memory parameter too low (minimum 1024 KB)")
	}
	if p.Memory > 1024*1024 {
		return errors.New("memory parameter too high (maximum 1 GB)")
	}
	if p.Iterations < 1 {
		return errors.New("iterations parameter too low (minimum 1)")
	}
	if p.Iterations > 100 {
		return errors.New("iterations parameter too high (maximum 100)")
	}
	if p.Parallelism < 1 {
		return errors.New("parallelism parameter too low (minimum 1)")
	}
	return nil
}

// Envelope is the on-disk wrapper around an encrypted snapshot.
type Envelope struct {
	Version    uint8
	KDFParams  Argon2Params
	Nonce      []byte
	Ciphertext []byte // includes the GCM tag
}

// Key is a derived symmetric key. Call Zeroize when the vault closes.
type Key []byte

// Zeroize wipes the key in place.
func (k Key) Zeroize() {
	Zeroize(k)
}

// CryptoEngine handles all cryptographic operations
type CryptoEngine struct {
	params Argon2Params
}

// NewCryptoEngine creates a new crypto engine with specified parameters
func NewCryptoEngine(params Argon2Params) *CryptoEngine {
	return &CryptoEngine{
		params: params,
	}
}

// NewDefaultCryptoEngine creates a new crypto engine with default parameters
func NewDefaultCryptoEngine() *CryptoEngine {
	return NewCryptoEngine(DefaultArgon2Params())
}

// Params returns the KDF parameters this engine derives with.
func (ce *CryptoEngine) Params() Argon2Params {
	return ce.params
}

// GenerateSalt creates a cryptographically secure random salt
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	return salt, nil
}

// GenerateNonce creates a cryptographically secure random nonce
func GenerateNonce() ([]byte, error) {
	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return nonce, nil
}

// DeriveKey derives a key from a password using Argon2id. Deterministic for
// a fixed (password, salt, params) triple.
func (ce *CryptoEngine) DeriveKey(password string, salt []byte) (Key, error) {
	if len(salt) != SaltSize {
		return nil, fmt.Errorf("invalid salt size: expected %d, got %d", SaltSize, len(salt))
	}

	key := argon2.IDKey(
		[]byte(password),
		salt,
		ce.params.Iterations,
		ce.params.Memory,
		ce.params.Parallelism,
		KeySize,
	)
	return Key(key), nil
}

// Seal encrypts plaintext using AES-256-GCM. The envelope header is bound
// as additional data so a tampered header fails authentication.
func (ce *CryptoEngine) Seal(plaintext []byte, key Key) (*Envelope, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce, err := GenerateNonce()
	if err != nil {
		return nil, err
	}

	envelope := &Envelope{
		Version:   EnvelopeVersion,
		KDFParams: ce.params,
		Nonce:     nonce,
	}
	envelope.Ciphertext = gcm.Seal(nil, nonce, plaintext, envelope.header())
	return envelope, nil
}

// Open decrypts an envelope using AES-256-GCM
func (ce *CryptoEngine) Open(envelope *Envelope, key Key) ([]byte, error) {
	if envelope.Version != EnvelopeVersion {
		return nil, ErrInvalidVersion
	}
	if len(envelope.Nonce) != NonceSize {
		return nil, ErrInvalidNonceSize
	}
	if len(envelope.Ciphertext) < TagSize {
		return nil, ErrInvalidEnvelope
	}

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	plaintext, err := gcm.Open(nil, envelope.Nonce, envelope.Ciphertext, envelope.header())
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

func newGCM(key Key) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKeySize
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// header is magic(4) + version(1) + memory(4) + iterations(4) + parallelism(1).
func (e *Envelope) header() []byte {
	buf := make([]byte, 0, len(envelopeMagic)+10)
	buf = append(buf, envelopeMagic...)
	buf = append(buf, e.Version)
	buf = binary.LittleEndian.AppendUint32(buf, e.KDFParams.Memory)
	buf = binary.LittleEndian.AppendUint32(buf, e.KDFParams.Iterations)
	buf = append(buf, e.KDFParams.Parallelism)
	return buf
}

// MarshalBinary serializes an envelope:
// header + nonce_len(4) + nonce + ciphertext_len(4) + ciphertext
func (e *Envelope) MarshalBinary() ([]byte, error) {
	header := e.header()
	buf := make([]byte, 0, len(header)+8+len(e.Nonce)+len(e.Ciphertext))
	buf = append(buf, header...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(e.Nonce)))
	buf = append(buf, e.Nonce...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(e.Ciphertext)))
	buf = append(buf, e.Ciphertext...)
	return buf, nil
}

// UnmarshalBinary is the inverse of MarshalBinary. Trailing bytes are rejected.
func (e *Envelope) UnmarshalBinary(data []byte) error {
	headerLen := len(envelopeMagic) + 10
	if len(data) < headerLen+8 {
		return ErrInvalidEnvelope
	}
	if string(data[:len(envelopeMagic)]) != string(envelopeMagic) {
		return ErrInvalidEnvelope
	}

	offset := len(envelopeMagic)
	version := data[offset]
	offset++
	if version != EnvelopeVersion {
		return ErrInvalidVersion
	}

	params := Argon2Params{
		Memory:     binary.LittleEndian.Uint32(data[offset : offset+4]),
		Iterations: binary.LittleEndian.Uint32(data[offset+4 : offset+8]),
	}
	params.Parallelism = data[offset+8]
	offset += 9

	nonce, offset, err := readChunk(data, offset)
	if err != nil {
		return err
	}
	ciphertext, offset, err := readChunk(data, offset)
	if err != nil {
		return err
	}
	if offset != len(data) {
		return ErrInvalidEnvelope
	}

	e.Version = version
	e.KDFParams = params
	e.Nonce = nonce
	e.Ciphertext = ciphertext
	return nil
}

func readChunk(data []byte, offset int) ([]byte, int, error) {
	if offset+4 > len(data) {
		return nil, 0, ErrInvalidEnvelope
	}
	n := int(binary.LittleEndian.Uint32(data[offset : offset+4]))
	offset += 4
	if n < 0 || offset+n > len(data) {
		return nil, 0, ErrInvalidEnvelope
	}
	chunk := make([]byte, n)
	copy(chunk, data[offset:offset+n])
	return chunk, offset + n, nil
}

// Zeroize securely clears a byte slice
func Zeroize(data []byte) {
	for i := range data {
		data[i] = 0
	}
	runtime.KeepAlive(data)
}
