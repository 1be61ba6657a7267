package solaredge

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"sync"

	"github.com/pkg/errors"
)

// KeySize is the AES-128 key length used throughout the protocol.
const KeySize = 16

// Crypto holds the session key material for every known device. Session
// keys are derived from key-exchange frames using the operator-registered
// private key, or set statically. Safe for concurrent use across streams.
type Crypto struct {
	privkey cipher.Block
	mu      sync.RWMutex
	session map[uint32]cipher.Block
}

// NewCrypto returns a Crypto using the 16 byte private key. A nil privkey
// is allowed; key exchange then fails until static keys are registered.
func NewCrypto(privkey []byte) (*Crypto, error) {
	c := &Crypto{session: make(map[uint32]cipher.Block)}
	if privkey != nil {
		if len(privkey) != KeySize {
			return nil, errors.Errorf("private key must be %d bytes, got %d", KeySize, len(privkey))
		}
		block, err := aes.NewCipher(privkey)
		if err != nil {
			return nil, err
		}
		c.privkey = block
	}
	return c, nil
}

// SetSessionKey registers a static session key for a device.
func (c *Crypto) SetSessionKey(device uint32, key []byte) error {
	if len(key) != KeySize {
		return errors.Errorf("session key must be %d bytes, got %d", KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.session[device] = block
	c.mu.Unlock()
	return nil
}

// HasSessionKey reports whether a session key is known for device.
func (c *Crypto) HasSessionKey(device uint32) bool {
	c.mu.RLock()
	_, there := c.session[device]
	c.mu.RUnlock()
	return there
}

// HandleKeyExchange derives and installs the session key for device from a
// key-exchange payload: the first 16 payload bytes encrypted under the
// private key form the session key.
func (c *Crypto) HandleKeyExchange(device uint32, payload []byte) error {
	if c.privkey == nil {
		return errors.New("no private key registered, cannot process key exchange")
	}
	if len(payload) < KeySize {
		return errors.Errorf("key exchange payload too short: %d bytes", len(payload))
	}
	key := make([]byte, KeySize)
	c.privkey.Encrypt(key, payload[:KeySize])
	block, err := aes.NewCipher(key)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.session[device] = block
	c.mu.Unlock()
	return nil
}

// Decrypt decrypts a telemetry payload (16 byte IV followed by AES-CTR
// ciphertext) using the device session key. Returns ErrNoSessionKey when
// the device is unknown.
func (c *Crypto) Decrypt(device uint32, payload []byte) ([]byte, error) {
	c.mu.RLock()
	block, there := c.session[device]
	c.mu.RUnlock()
	if !there {
		return nil, errors.Wrapf(ErrNoSessionKey, "device %#08x", device)
	}
	if len(payload) < aes.BlockSize {
		return nil, errors.Errorf("telemetry payload too short: %d bytes", len(payload))
	}
	iv, ct := payload[:aes.BlockSize], payload[aes.BlockSize:]
	pt := make([]byte, len(ct))
	cipher.NewCTR(block, iv).XORKeyStream(pt, ct)
	return pt, nil
}

// Encrypt encrypts plaintext for device, prefixing a random IV. Used by the
// encode path and by tests exercising the round trip.
func (c *Crypto) Encrypt(device uint32, plaintext []byte) ([]byte, error) {
	c.mu.RLock()
	block, there := c.session[device]
	c.mu.RUnlock()
	if !there {
		return nil, errors.Wrapf(ErrNoSessionKey, "device %#08x", device)
	}
	out := make([]byte, aes.BlockSize+len(plaintext))
	if _, err := rand.Read(out[:aes.BlockSize]); err != nil {
		return nil, err
	}
	cipher.NewCTR(block, out[:aes.BlockSize]).XORKeyStream(out[aes.BlockSize:], plaintext)
	return out, nil
}
