package services

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/hkshop/storefront/models"
)

// DigestVersionV1 hashes the string
//
//	currency|payee|salt|pid:qty:price|pid:qty:price|...|total
//
// with SHA-256 and renders it as lowercase hex. Prices and the total
// always carry exactly two decimals. Changing any part of this layout
// needs a new version so existing orders still settle.
const DigestVersionV1 = "v1"

const (
	digestFieldSeparator = "|"
	digestPartSeparator  = ":"
	saltBytes            = 16
)

// CanonicalCommitment renders the v1 digest input.
func CanonicalCommitment(in models.CommitmentInput) string {
	fields := make([]string, 0, len(in.Lines)+4)
	fields = append(fields, in.CurrencyCode, in.PayeeIdentity, in.Salt)
	for _, line := range in.Lines {
		fields = append(fields, strings.Join([]string{
			strconv.FormatInt(line.ProductID, 10),
			strconv.FormatInt(line.Quantity, 10),
			line.UnitPrice.StringFixed(2),
		}, digestPartSeparator))
	}
	fields = append(fields, in.TotalPrice.StringFixed(2))
	return strings.Join(fields, digestFieldSeparator)
}

// ComputeDigest fingerprints a commitment with the current version.
func ComputeDigest(in models.CommitmentInput) string {
	sum := sha256.Sum256([]byte(CanonicalCommitment(in)))
	return hex.EncodeToString(sum[:])
}

// ComputeDigestForVersion re-derives a digest with the layout an order
// was sealed under.
func ComputeDigestForVersion(version string, in models.CommitmentInput) (string, error) {
	switch version {
	case DigestVersionV1:
		return ComputeDigest(in), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedDigest, version)
	}
}

// Seal computes the digest and attaches it to the commitment.
func Seal(in models.CommitmentInput) *models.SealedCommitment {
	return &models.SealedCommitment{
		Input:         in,
		Digest:        ComputeDigest(in),
		DigestVersion: DigestVersionV1,
	}
}

// DigestsEqual compares two hex digests in constant time.
func DigestsEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// NewSalt returns 16 random bytes, hex encoded.
func NewSalt() (string, error) {
	buf := make([]byte, saltBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
