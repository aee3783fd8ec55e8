// Package snapshot implements the on-disk checkpoint envelope (spec §4.2,
// C3): canonical row bytes are gzip-compressed, then sealed with
// AES-256-GCM. Opening reverses the pipeline. Writing the sealed bytes to
// disk (temp file then rename) is done by the caller, storage.Database.Save.
//
// The AES-GCM usage (aes.NewCipher -> cipher.NewGCM -> gcm.Seal(nonce,
// nonce, ...)) follows kasuganosora-sqlexec's pkg/security/encryption.go;
// the gzip usage follows its pkg/reliability/backup.go.
package snapshot

import (
	"bytes"
	"compress/gzip"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"io"

	tabulaerrors "github.com/kesh-dev/tabula/pkg/errors"
)

// KeySize is the required AES-256 key length.
const KeySize = 32

// Seal compresses plaintext with gzip and encrypts it with AES-256-GCM,
// returning nonce || ciphertext(+tag) with an empty AAD.
func Seal(plaintext []byte, key []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, tabulaerrors.Crypto(nil, "snapshot key must be %d bytes, got %d", KeySize, len(key))
	}

	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	if _, err := gw.Write(plaintext); err != nil {
		return nil, tabulaerrors.Io(err, "compress snapshot")
	}
	if err := gw.Close(); err != nil {
		return nil, tabulaerrors.Io(err, "close gzip writer")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, tabulaerrors.Crypto(err, "create aes cipher")
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, tabulaerrors.Crypto(err, "create gcm")
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, tabulaerrors.Crypto(err, "generate nonce")
	}

	sealed := gcm.Seal(nonce, nonce, buf.Bytes(), nil)
	return sealed, nil
}

// Open reverses Seal: it decrypts sealed with key and decompresses the
// result, returning the original plaintext.
func Open(sealed []byte, key []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, tabulaerrors.Crypto(nil, "snapshot key must be %d bytes, got %d", KeySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, tabulaerrors.Crypto(err, "create aes cipher")
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, tabulaerrors.Crypto(err, "create gcm")
	}

	nonceSize := gcm.NonceSize()
	if len(sealed) < nonceSize {
		return nil, tabulaerrors.Crypto(nil, "sealed snapshot shorter than nonce")
	}
	nonce, ciphertext := sealed[:nonceSize], sealed[nonceSize:]

	compressed, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, tabulaerrors.Crypto(err, "open sealed snapshot")
	}

	gr, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, tabulaerrors.Io(err, "open gzip reader")
	}
	defer gr.Close()

	plaintext, err := io.ReadAll(gr)
	if err != nil {
		return nil, tabulaerrors.Io(err, "decompress snapshot")
	}
	return plaintext, nil
}
