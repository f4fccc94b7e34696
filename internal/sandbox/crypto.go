package sandbox

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"fmt"
	"hash"
	"strconv"
	"sync"

	"github.com/cryguy/edgefn/internal/core"
	"github.com/google/uuid"
)

// cryptoJS builds the crypto global: getRandomValues, randomUUID and a
// crypto.subtle limited to digest and HMAC sign/verify on raw keys.
const cryptoJS = `
(function() {
	const randomBytes = __cryptoRandomBytes;
	const randomUUID = __cryptoRandomUUID;
	const digest = __cryptoDigest;
	const importKey = __cryptoImportKey;
	const hmacSign = __cryptoSign;
	const hmacVerify = __cryptoVerify;
	delete globalThis.__cryptoRandomBytes;
	delete globalThis.__cryptoRandomUUID;
	delete globalThis.__cryptoDigest;
	delete globalThis.__cryptoImportKey;
	delete globalThis.__cryptoSign;
	delete globalThis.__cryptoVerify;

	const toB64 = globalThis.__bufferSourceToB64;
	const fromB64 = globalThis.__b64ToBuffer;
	const algoName = (a) => typeof a === 'string' ? a : (a && a.name);

	class CryptoKey {
		constructor(id, algorithm, extractable, usages) {
			Object.defineProperty(this, '_id', { value: id });
			this.type = 'secret';
			this.algorithm = algorithm;
			this.extractable = extractable;
			this.usages = usages;
			Object.freeze(this);
		}
	}

	const subtle = Object.freeze({
		async digest(algorithm, data) {
			return fromB64(digest(algoName(algorithm), toB64(data)));
		},
		async importKey(format, keyData, algorithm, extractable, usages) {
			if (format !== 'raw') throw new TypeError('importKey: only raw format is supported');
			const algo = typeof algorithm === 'string' ? { name: algorithm } : algorithm;
			if (String(algo.name).toUpperCase() !== 'HMAC') throw new TypeError('importKey: only HMAC is supported');
			const hashName = algoName(algo.hash) || 'SHA-256';
			const id = importKey(hashName, toB64(keyData));
			return new CryptoKey(id, { name: 'HMAC', hash: { name: hashName } }, !!extractable, Array.from(usages || []));
		},
		async sign(algorithm, key, data) {
			if (!(key instanceof CryptoKey)) throw new TypeError('sign: key is not a CryptoKey');
			if (!key.usages.includes('sign')) throw new TypeError('key usages do not permit this operation');
			return fromB64(hmacSign(key._id, toB64(data)));
		},
		async verify(algorithm, key, signature, data) {
			if (!(key instanceof CryptoKey)) throw new TypeError('verify: key is not a CryptoKey');
			if (!key.usages.includes('verify')) throw new TypeError('key usages do not permit this operation');
			return hmacVerify(key._id, toB64(signature), toB64(data));
		},
	});

	globalThis.CryptoKey = CryptoKey;
	globalThis.crypto = Object.freeze({
		subtle,
		getRandomValues(arr) {
			if (!ArrayBuffer.isView(arr) || arr instanceof Float32Array || arr instanceof Float64Array) {
				throw new TypeError('getRandomValues requires an integer TypedArray');
			}
			const bytes = new Uint8Array(fromB64(randomBytes(arr.byteLength)));
			new Uint8Array(arr.buffer, arr.byteOffset, arr.byteLength).set(bytes);
			return arr;
		},
		randomUUID() {
			return randomUUID();
		},
	});
})();
`

// maxRandomBytes is the getRandomValues quota per call.
const maxRandomBytes = 65536

func hashFor(algo string) func() hash.Hash {
	switch algo {
	case "SHA-1", "sha-1", "SHA1", "sha1":
		return sha1.New
	case "SHA-256", "sha-256", "SHA256", "sha256":
		return sha256.New
	case "SHA-384", "sha-384", "SHA384", "sha384":
		return sha512.New384
	case "SHA-512", "sha-512", "SHA512", "sha512":
		return sha512.New
	default:
		return nil
	}
}

// hmacKeys holds the keys imported by one unit. It dies with the unit.
type hmacKeys struct {
	mu   sync.Mutex
	next int
	keys map[string]hmacKey
}

type hmacKey struct {
	newHash func() hash.Hash
	secret  []byte
}

func (k *hmacKeys) get(id string) (hmacKey, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	key, ok := k.keys[id]
	if !ok {
		return hmacKey{}, fmt.Errorf("unknown key")
	}
	return key, nil
}

func registerCrypto(rt core.Runtime) error {
	keys := &hmacKeys{keys: make(map[string]hmacKey)}

	if err := rt.Bind("__cryptoRandomBytes", func(n int) (string, error) {
		if n < 0 || n > maxRandomBytes {
			return "", fmt.Errorf("getRandomValues: byte length must be 0-%d", maxRandomBytes)
		}
		buf := make([]byte, n)
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		return base64.StdEncoding.EncodeToString(buf), nil
	}); err != nil {
		return err
	}

	if err := rt.Bind("__cryptoRandomUUID", func() string {
		return uuid.NewString()
	}); err != nil {
		return err
	}

	if err := rt.Bind("__cryptoDigest", func(algo, dataB64 string) (string, error) {
		newHash := hashFor(algo)
		if newHash == nil {
			return "", fmt.Errorf("digest: unsupported algorithm %q", algo)
		}
		data, err := base64.StdEncoding.DecodeString(dataB64)
		if err != nil {
			return "", fmt.Errorf("digest: invalid data")
		}
		h := newHash()
		h.Write(data)
		return base64.StdEncoding.EncodeToString(h.Sum(nil)), nil
	}); err != nil {
		return err
	}

	if err := rt.Bind("__cryptoImportKey", func(hashName, secretB64 string) (string, error) {
		newHash := hashFor(hashName)
		if newHash == nil {
			return "", fmt.Errorf("importKey: unsupported hash %q", hashName)
		}
		secret, err := base64.StdEncoding.DecodeString(secretB64)
		if err != nil {
			return "", fmt.Errorf("importKey: invalid key data")
		}
		keys.mu.Lock()
		defer keys.mu.Unlock()
		keys.next++
		id := strconv.Itoa(keys.next)
		keys.keys[id] = hmacKey{newHash: newHash, secret: secret}
		return id, nil
	}); err != nil {
		return err
	}

	sum := func(id, dataB64 string) ([]byte, error) {
		key, err := keys.get(id)
		if err != nil {
			return nil, err
		}
		data, err := base64.StdEncoding.DecodeString(dataB64)
		if err != nil {
			return nil, fmt.Errorf("invalid data")
		}
		mac := hmac.New(key.newHash, key.secret)
		mac.Write(data)
		return mac.Sum(nil), nil
	}

	if err := rt.Bind("__cryptoSign", func(id, dataB64 string) (string, error) {
		mac, err := sum(id, dataB64)
		if err != nil {
			return "", fmt.Errorf("sign: %w", err)
		}
		return base64.StdEncoding.EncodeToString(mac), nil
	}); err != nil {
		return err
	}

	return rt.Bind("__cryptoVerify", func(id, sigB64, dataB64 string) (bool, error) {
		mac, err := sum(id, dataB64)
		if err != nil {
			return false, fmt.Errorf("verify: %w", err)
		}
		sig, err := base64.StdEncoding.DecodeString(sigB64)
		if err != nil {
			return false, nil
		}
		return hmac.Equal(mac, sig), nil
	})
}
