package cryptutils

import (
	"bytes"
	crand "crypto/rand"
	"encoding/binary"
	"hash/crc32"
	"mtriage_go/customerrs"

	"golang.org/x/crypto/chacha20poly1305"
)

func KCRC32(pt []byte) []byte {
	kTable := crc32.MakeTable(crc32.Koopman)
	hKCRC32 := crc32.Checksum(pt, kTable)
	res := make([]byte, 4)
	binary.LittleEndian.PutUint32(res, hKCRC32)
	return res
}

// XChacha20Encrypt seals a compiled rule bundle so a distributed rule pack
// cannot be tampered with on disk without failing the integrity check.
func XChacha20Encrypt(key []byte, pt []byte) (ct []byte, err error) {
	iv := make([]byte, chacha20poly1305.NonceSizeX)
	_, err = crand.Read(iv)
	if err != nil {
		return nil, err
	}

	ciph, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}

	assoData := KCRC32(pt)
	// combined ciphertext = nonce (iv) + associatedData (crc32) + ciphertext (pt) + tag (overhead)
	ct = make([]byte, 0, len(pt)+chacha20poly1305.NonceSizeX+chacha20poly1305.Overhead+crc32.Size)
	ct = append(ct, iv...)
	ct = append(ct, assoData...)
	ct = ciph.Seal(ct, iv, pt, assoData)

	return ct, nil
}

func XChacha20Decrypt(key []byte, mixedct []byte) (pt []byte, err error) {
	if len(mixedct) < chacha20poly1305.NonceSizeX+crc32.Size+chacha20poly1305.Overhead {
		return nil, customerrs.ErrRuleBundleCorrupted
	}
	iv := make([]byte, chacha20poly1305.NonceSizeX)
	assoData := make([]byte, crc32.Size)
	copy(iv, mixedct)
	copy(assoData, mixedct[chacha20poly1305.NonceSizeX:chacha20poly1305.NonceSizeX+crc32.Size])

	ciph, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}

	pt = make([]byte, 0, len(mixedct)-chacha20poly1305.NonceSizeX-crc32.Size-chacha20poly1305.Overhead)
	pt, err = ciph.Open(pt, iv, mixedct[chacha20poly1305.NonceSizeX+crc32.Size:], assoData)
	if err != nil {
		return nil, customerrs.ErrRuleBundleCorrupted
	}

	expectedAssoData := KCRC32(pt)
	if !bytes.Equal(expectedAssoData, assoData) {
		return nil, customerrs.ErrRuleBundleCorrupted
	}

	return pt, nil
}
