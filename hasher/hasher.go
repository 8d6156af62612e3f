package hasher

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"mtriage_go/customerrs"
	"os"
)

// FileMeta carries the content digests and basic metadata of one sample.
type FileMeta struct {
	SHA256       string `json:"sha256"`
	MD5          string `json:"md5"`
	Size         int64  `json:"size"`
	DeclaredType string `json:"declared_type"`
}

// magic byte prefixes for the declared-type guess, checked in order
var magicTable = []struct {
	prefix []byte
	label  string
}{
	{[]byte{'M', 'Z'}, "pe_executable"},
	{[]byte{0x7F, 'E', 'L', 'F'}, "elf_executable"},
	{[]byte{'P', 'K', 0x03, 0x04}, "zip_archive"},
	{[]byte{0x1F, 0x8B}, "gzip_archive"},
	{[]byte{'%', 'P', 'D', 'F'}, "pdf_document"},
	{[]byte{0xD0, 0xCF, 0x11, 0xE0}, "ole_compound"},
	{[]byte{'#', '!'}, "script"},
}

// HashFile computes SHA256 and MD5 in a single pass and guesses the
// declared type from magic bytes. The file is opened read-only and is
// never executed here.
func HashFile(fpath string) (*FileMeta, error) {
	fInfo, err := os.Stat(fpath)
	if err != nil {
		return nil, customerrs.ErrInputFileNotFound
	}
	if !fInfo.Mode().IsRegular() {
		return nil, customerrs.ErrInputNotRegular
	}
	fd, err := os.OpenFile(fpath, os.O_RDONLY, 0644)
	if err != nil {
		return nil, err
	}
	defer fd.Close()

	head := make([]byte, 8)
	n, _ := io.ReadFull(fd, head)
	head = head[:n]
	if _, err = fd.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	h256 := sha256.New()
	hMd5 := md5.New()
	if _, err = io.Copy(io.MultiWriter(h256, hMd5), fd); err != nil {
		return nil, err
	}

	return &FileMeta{
		SHA256:       hex.EncodeToString(h256.Sum(nil)),
		MD5:          hex.EncodeToString(hMd5.Sum(nil)),
		Size:         fInfo.Size(),
		DeclaredType: DetectType(head),
	}, nil
}

// HashBytes digests an in-memory buffer, used for fetched URL content.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// DetectType guesses a coarse content type from leading magic bytes.
func DetectType(head []byte) string {
	for _, m := range magicTable {
		if len(head) >= len(m.prefix) && string(head[:len(m.prefix)]) == string(m.prefix) {
			return m.label
		}
	}
	return "unknown"
}
