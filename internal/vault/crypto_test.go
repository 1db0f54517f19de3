package vault

import (
	"bytes"
	"errors"
	"testing"
)

func testParams() Argon2Params {
	return Argon2Params{Memory: 1024, Iterations: 1, Parallelism: 1}
}

func testKey(t *testing.T) Key {
	t.Helper()
	salt := make([]byte, SaltSize)
	for i := range salt {
		salt[i] = byte(i % 256)
	}
	key, err := NewCryptoEngine(testParams()).DeriveKey("test-passphrase", salt)
	if err != nil {
		t.Fatalf("Failed to derive key: %v", err)
	}
	return key
}

func TestGenerateSalt(t *testing.T) {
	salt1, err := GenerateSalt()
	if err != nil {
		t.Fatalf("Failed to generate salt: %v", err)
	}

	if len(salt1) != SaltSize {
		t.Errorf("Expected salt size %d, got %d", SaltSize, len(salt1))
	}

	salt2, err := GenerateSalt()
	if err != nil {
		t.Fatalf("Failed to generate second salt: %v", err)
	}

	if bytes.Equal(salt1, salt2) {
		t.Error("Generated salts should be different")
	}
}

func TestDeriveKey(t *testing.T) {
	engine := NewCryptoEngine(testParams())

	salt := make([]byte, SaltSize)
	for i := range salt {
		salt[i] = byte(i % 256)
	}

	key1, err := engine.DeriveKey("test-passphrase-123", salt)
	if err != nil {
		t.Fatalf("Failed to derive key: %v", err)
	}
	if len(key1) != KeySize {
		t.Errorf("Expected key size %d, got %d", KeySize, len(key1))
	}

	// Same inputs should produce same key
	key2, err := engine.DeriveKey("test-passphrase-123", salt)
	if err != nil {
		t.Fatalf("Failed to derive key second time: %v", err)
	}
	if !bytes.Equal(key1, key2) {
		t.Error("Same inputs should produce same key")
	}

	key3, err := engine.DeriveKey("different-passphrase", salt)
	if err != nil {
		t.Fatalf("Failed to derive key with different passphrase: %v", err)
	}
	if bytes.Equal(key1, key3) {
		t.Error("Different passphrases should produce different keys")
	}

	if _, err := engine.DeriveKey("test", []byte("short")); err == nil {
		t.Error("Expected error for invalid salt size")
	}
}

func TestSealOpen(t *testing.T) {
	engine := NewCryptoEngine(testParams())
	key := testKey(t)

	testCases := []struct {
		name      string
		plaintext []byte
	}{
		{"empty", []byte{}},
		{"short", []byte("hello")},
		{"binary", []byte{0x00, 0x01, 0xff, 0xfe}},
		{"long", bytes.Repeat([]byte("A"), 10000)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			envelope, err := engine.Seal(tc.plaintext, key)
			if err != nil {
				t.Fatalf("Failed to seal: %v", err)
			}

			decrypted, err := engine.Open(envelope, key)
			if err != nil {
				t.Fatalf("Failed to open: %v", err)
			}

			if !bytes.Equal(tc.plaintext, decrypted) {
				t.Error("Decrypted data doesn't match original")
			}
		})
	}
}

func TestOpenWithWrongKey(t *testing.T) {
	engine := NewCryptoEngine(testParams())
	envelope, err := engine.Seal([]byte("secret"), testKey(t))
	if err != nil {
		t.Fatalf("Failed to seal: %v", err)
	}

	wrong := make([]byte, KeySize)
	if _, err := engine.Open(envelope, wrong); !errors.Is(err, ErrDecryptionFailed) {
		t.Errorf("Expected ErrDecryptionFailed, got %v", err)
	}

	if _, err := engine.Seal([]byte("x"), Key("short")); !errors.Is(err, ErrInvalidKeySize) {
		t.Errorf("Expected ErrInvalidKeySize, got %v", err)
	}
}

func TestTamperDetection(t *testing.T) {
	engine := NewCryptoEngine(testParams())
	key := testKey(t)

	envelope, err := engine.Seal([]byte("sensitive data"), key)
	if err != nil {
		t.Fatalf("Failed to seal: %v", err)
	}

	// Tamper with ciphertext
	envelope.Ciphertext[0] ^= 0x01
	if _, err := engine.Open(envelope, key); err == nil {
		t.Error("Should fail to decrypt tampered ciphertext")
	}
	envelope.Ciphertext[0] ^= 0x01

	// Tamper with the authenticated header
	envelope.KDFParams.Iterations++
	if _, err := engine.Open(envelope, key); err == nil {
		t.Error("Should fail to decrypt with tampered header")
	}
}

func TestEnvelopeSerialization(t *testing.T) {
	engine := NewCryptoEngine(testParams())
	key := testKey(t)

	envelope, err := engine.Seal([]byte("test data"), key)
	if err != nil {
		t.Fatalf("Failed to seal: %v", err)
	}

	data, err := envelope.MarshalBinary()
	if err != nil {
		t.Fatalf("Failed to marshal envelope: %v", err)
	}

	var decoded Envelope
	if err := decoded.UnmarshalBinary(data); err != nil {
		t.Fatalf("Failed to unmarshal envelope: %v", err)
	}

	if decoded.KDFParams != envelope.KDFParams {
		t.Errorf("KDF params mismatch: got %+v, want %+v", decoded.KDFParams, envelope.KDFParams)
	}

	plaintext, err := engine.Open(&decoded, key)
	if err != nil {
		t.Fatalf("Failed to open decoded envelope: %v", err)
	}
	if string(plaintext) != "test data" {
		t.Errorf("Unexpected plaintext %q", plaintext)
	}

	invalid := [][]byte{
		nil,
		[]byte("short"),
		append([]byte("XXXX"), data[4:]...),
		data[:len(data)-1],
		append(append([]byte{}, data...), 0x00),
	}
	for i, raw := range invalid {
		var env Envelope
		if err := env.UnmarshalBinary(raw); err == nil {
			t.Errorf("case %d: expected error for malformed envelope", i)
		}
	}
}

func TestValidateArgon2Params(t *testing.T) {
	testCases := []struct {
		name    string
		params  Argon2Params
		wantErr bool
	}{
		{"default", DefaultArgon2Params(), false},
		{"minimal", testParams(), false},
		{"memory too low", Argon2Params{Memory: 512, Iterations: 1, Parallelism: 1}, true},
		{"memory too high", Argon2Params{Memory: 2 * 1024 * 1024, Iterations: 1, Parallelism: 1}, true},
		{"no iterations", Argon2Params{Memory: 1024, Iterations: 0, Parallelism: 1}, true},
		{"too many iterations", Argon2Params{Memory: 1024, Iterations: 101, Parallelism: 1}, true},
		{"no parallelism", Argon2Params{Memory: 1024, Iterations: 1, Parallelism: 0}, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.params.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestZeroize(t *testing.T) {
	key := Key{1, 2, 3, 4}
	key.Zeroize()
	for i, b := range key {
		if b != 0 {
			t.Errorf("byte %d not zeroed", i)
		}
	}
}

func BenchmarkDeriveKey(b *testing.B) {
	engine := NewDefaultCryptoEngine()
	salt, _ := GenerateSalt()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = engine.DeriveKey("benchmark-passphrase", salt)
	}
}
