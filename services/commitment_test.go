package services

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/hkshop/storefront/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scenarioCommitment() models.CommitmentInput {
	return models.CommitmentInput{
		CurrencyCode:  "HKD",
		PayeeIdentity: "merchant@example.com",
		Salt:          "abc123",
		Lines: models.OrderLines{
			{ProductID: 7, Quantity: 2, UnitPrice: decimal.RequireFromString("19.99"), Name: "Oolong Tea"},
		},
		TotalPrice: decimal.RequireFromString("39.98"),
	}
}

func TestCanonicalCommitment_Layout(t *testing.T) {
	assert.Equal(t, "HKD|merchant@example.com|abc123|7:2:19.99|39.98", CanonicalCommitment(scenarioCommitment()))

	in := scenarioCommitment()
	in.Lines = append(in.Lines, models.OrderLine{ProductID: 12, Quantity: 1, UnitPrice: decimal.NewFromInt(5)})
	in.TotalPrice = decimal.RequireFromString("44.98")
	assert.Equal(t, "HKD|merchant@example.com|abc123|7:2:19.99|12:1:5.00|44.98", CanonicalCommitment(in))
}

func TestComputeDigest_Scenario(t *testing.T) {
	sum := sha256.Sum256([]byte("HKD|merchant@example.com|abc123|7:2:19.99|39.98"))
	want := hex.EncodeToString(sum[:])

	assert.Equal(t, want, ComputeDigest(scenarioCommitment()))
	assert.Len(t, want, 64)
}

func TestComputeDigest_Deterministic(t *testing.T) {
	assert.Equal(t, ComputeDigest(scenarioCommitment()), ComputeDigest(scenarioCommitment()))
}

func TestComputeDigest_PriceScaleDoesNotMatter(t *testing.T) {
	a := scenarioCommitment()
	b := scenarioCommitment()
	b.Lines[0].UnitPrice = decimal.RequireFromString("19.990")
	b.TotalPrice = decimal.RequireFromString("39.980")

	assert.Equal(t, ComputeDigest(a), ComputeDigest(b))
}

func TestComputeDigest_SensitiveToEveryField(t *testing.T) {
	base := ComputeDigest(scenarioCommitment())

	mutations := map[string]func(*models.CommitmentInput){
		"currency": func(in *models.CommitmentInput) { in.CurrencyCode = "USD" },
		"payee":    func(in *models.CommitmentInput) { in.PayeeIdentity = "attacker@example.com" },
		"salt":     func(in *models.CommitmentInput) { in.Salt = "abc124" },
		"pid":      func(in *models.CommitmentInput) { in.Lines[0].ProductID = 8 },
		"quantity": func(in *models.CommitmentInput) { in.Lines[0].Quantity = 3 },
		"price":    func(in *models.CommitmentInput) { in.Lines[0].UnitPrice = decimal.RequireFromString("0.01") },
		"total":    func(in *models.CommitmentInput) { in.TotalPrice = decimal.RequireFromString("0.02") },
		"lines": func(in *models.CommitmentInput) {
			in.Lines = append(in.Lines, models.OrderLine{ProductID: 12, Quantity: 1, UnitPrice: decimal.NewFromInt(5)})
		},
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			in := scenarioCommitment()
			in.Lines = append(models.OrderLines(nil), in.Lines...)
			mutate(&in)
			assert.NotEqual(t, base, ComputeDigest(in))
		})
	}
}

func TestComputeDigestForVersion(t *testing.T) {
	got, err := ComputeDigestForVersion(DigestVersionV1, scenarioCommitment())
	require.NoError(t, err)
	assert.Equal(t, ComputeDigest(scenarioCommitment()), got)

	_, err = ComputeDigestForVersion("v0", scenarioCommitment())
	assert.ErrorIs(t, err, ErrUnsupportedDigest)
}

func TestSeal(t *testing.T) {
	sealed := Seal(scenarioCommitment())
	assert.Equal(t, DigestVersionV1, sealed.DigestVersion)
	assert.Equal(t, ComputeDigest(scenarioCommitment()), sealed.Digest)
}

func TestDigestsEqual(t *testing.T) {
	d := ComputeDigest(scenarioCommitment())
	assert.True(t, DigestsEqual(d, d))
	other := scenarioCommitment()
	other.Salt = "zzz999"
	assert.False(t, DigestsEqual(d, ComputeDigest(other)))
	assert.False(t, DigestsEqual(d, d[:63]))
	assert.False(t, DigestsEqual(d, ""))
}

func TestNewSalt(t *testing.T) {
	a, err := NewSalt()
	require.NoError(t, err)
	b, err := NewSalt()
	require.NoError(t, err)

	assert.Len(t, a, 32)
	assert.NotEqual(t, a, b)
	_, err = hex.DecodeString(a)
	assert.NoError(t, err)
}
