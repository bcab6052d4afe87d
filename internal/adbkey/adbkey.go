// ABOUTME: Parses device-debug public keys and computes their fingerprints
// ABOUTME: Accepts Android adbkey.pub RSA structs and OpenSSH authorized_keys lines

package adbkey

import (
	"bytes"
	"crypto/md5"
	"crypto/rsa"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"golang.org/x/crypto/ssh"
)

// ErrInvalidKey is returned for input that is not a recognizable public key.
var ErrInvalidKey = errors.New("invalid public key")

// Key formats reported on Key.Format.
const (
	FormatADB = "adb"
	FormatSSH = "ssh"
)

// Key is a parsed public key.
type Key struct {
	// Fingerprint is the MD5 digest of the key material as colon-separated
	// lowercase hex pairs, e.g. "0a:1b:...".
	Fingerprint string
	// FingerprintSHA256 is the OpenSSH "SHA256:..." form, for display.
	FingerprintSHA256 string
	Comment           string
	Format            string
	PublicKey         ssh.PublicKey
}

// Parser turns a submitted public key string into a Key.
type Parser interface {
	Parse(publicKey string) (*Key, error)
}

// DefaultParser understands Android adb keys and OpenSSH keys.
type DefaultParser struct{}

// Parse implements Parser.
func (DefaultParser) Parse(publicKey string) (*Key, error) {
	return Parse(publicKey)
}

// Parse decodes an adb public key ("<base64 RSA struct> <comment>") or an
// OpenSSH authorized_keys line.
func Parse(publicKey string) (*Key, error) {
	s := strings.TrimSpace(strings.TrimRight(publicKey, "\x00\r\n"))
	if s == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidKey)
	}

	if strings.HasPrefix(s, "ssh-") || strings.HasPrefix(s, "ecdsa-") || strings.HasPrefix(s, "sk-") {
		return parseSSH(s)
	}
	return parseADB(s)
}

func parseSSH(s string) (*Key, error) {
	pub, comment, _, _, err := ssh.ParseAuthorizedKey([]byte(s))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return &Key{
		Fingerprint:       strings.ToLower(ssh.FingerprintLegacyMD5(pub)),
		FingerprintSHA256: ssh.FingerprintSHA256(pub),
		Comment:           comment,
		Format:            FormatSSH,
		PublicKey:         pub,
	}, nil
}

func parseADB(s string) (*Key, error) {
	encoded, comment, _ := strings.Cut(s, " ")
	encoded = strings.TrimRight(encoded, "\x00")

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}

	rsaKey, err := decodeRSAStruct(raw)
	if err != nil {
		return nil, err
	}

	pub, err := ssh.NewPublicKey(rsaKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}

	return &Key{
		Fingerprint:       md5Fingerprint(raw),
		FingerprintSHA256: ssh.FingerprintSHA256(pub),
		Comment:           strings.TrimSpace(comment),
		Format:            FormatADB,
		PublicKey:         pub,
	}, nil
}

// decodeRSAStruct reads the Android RSAPublicKey layout: little-endian
// uint32 word count, n0inv, modulus words, R^2 mod n words, exponent.
func decodeRSAStruct(raw []byte) (*rsa.PublicKey, error) {
	if len(raw) < 4 {
		return nil, fmt.Errorf("%w: truncated", ErrInvalidKey)
	}
	words := int(binary.LittleEndian.Uint32(raw[0:4]))
	if words <= 0 || words > 1024 {
		return nil, fmt.Errorf("%w: bad modulus size %d", ErrInvalidKey, words)
	}
	size := words * 4
	if len(raw) != 4+4+size+size+4 {
		return nil, fmt.Errorf("%w: length %d does not match modulus size", ErrInvalidKey, len(raw))
	}

	off := 8 // word count and n0inv
	n := new(big.Int).SetBytes(reverse(raw[off : off+size]))
	off += size * 2 // modulus and rr
	e := binary.LittleEndian.Uint32(raw[off : off+4])

	if e != 3 && e != 65537 {
		return nil, fmt.Errorf("%w: unsupported exponent %d", ErrInvalidKey, e)
	}
	if n.Sign() == 0 || n.Bit(0) == 0 {
		return nil, fmt.Errorf("%w: bad modulus", ErrInvalidKey)
	}

	return &rsa.PublicKey{N: n, E: int(e)}, nil
}

// MarshalADB encodes an RSA public key in the adbkey.pub format.
func MarshalADB(pub *rsa.PublicKey, comment string) (string, error) {
	size := (pub.N.BitLen() + 31) / 32 * 4
	if size == 0 {
		return "", fmt.Errorf("%w: empty modulus", ErrInvalidKey)
	}
	words := size / 4

	// n0inv = -1 / n[0] mod 2^32
	r32 := new(big.Int).Lsh(big.NewInt(1), 32)
	n0 := new(big.Int).Mod(pub.N, r32)
	inv := new(big.Int).ModInverse(n0, r32)
	if inv == nil {
		return "", fmt.Errorf("%w: even modulus", ErrInvalidKey)
	}
	n0inv := new(big.Int).Sub(r32, inv)

	// rr = (2^(size*8))^2 mod n
	rr := new(big.Int).Lsh(big.NewInt(1), uint(size*8*2))
	rr.Mod(rr, pub.N)

	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, uint32(words))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(n0inv.Uint64()))
	buf.Write(reverse(pub.N.FillBytes(make([]byte, size))))
	buf.Write(reverse(rr.FillBytes(make([]byte, size))))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(pub.E))

	out := base64.StdEncoding.EncodeToString(buf.Bytes())
	if comment != "" {
		out += " " + comment
	}
	return out, nil
}

func md5Fingerprint(b []byte) string {
	sum := md5.Sum(b)
	h := hex.EncodeToString(sum[:])
	parts := make([]string, 0, len(sum))
	for i := 0; i < len(h); i += 2 {
		parts = append(parts, h[i:i+2])
	}
	return strings.Join(parts, ":")
}

func reverse(b []byte) []byte {
	out := make([]byte, len(b))
	for i := range b {
		out[len(b)-1-i] = b[i]
	}
	return out
}
