package services

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/hkshop/storefront/models"
	awspkg "github.com/hkshop/storefront/pkg/aws"
	"github.com/hkshop/storefront/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type listenerFixture struct {
	listener *SettlementListener
	ledger   *fakeLedger
	verifier *stubVerifier
	guard    *IdempotencyGuard
	events   *recordingEvents
	metrics  *recordingMetrics
	orderID  uuid.UUID
	digest   string
}

func newListenerFixture(t *testing.T) *listenerFixture {
	t.Helper()
	f := &listenerFixture{
		ledger:   newFakeLedger(),
		verifier: &stubVerifier{},
		guard:    NewIdempotencyGuard(),
		events:   &recordingEvents{},
		metrics:  newRecordingMetrics(),
	}
	f.listener = NewSettlementListener(SettlementListenerDeps{
		Verifier: f.verifier,
		Guard:    f.guard,
		Ledger:   f.ledger,
		Events:   f.events,
		Metrics:  f.metrics,
		Logger:   zap.NewNop(),
	})

	sealed := Seal(scenarioCommitment())
	id, err := f.ledger.Create(context.Background(), sealed, "member@example.com")
	require.NoError(t, err)
	f.orderID = id
	f.digest = sealed.Digest
	return f
}

func ipnBody(status, txnID, invoice, custom string) []byte {
	v := url.Values{}
	v.Set("payment_status", status)
	v.Set("txn_id", txnID)
	v.Set("invoice", invoice)
	v.Set("custom", custom)
	v.Set("mc_gross", "39.98")
	v.Set("mc_currency", "HKD")
	return []byte(v.Encode())
}

func (f *listenerFixture) status(t *testing.T) models.OrderStatus {
	t.Helper()
	o, err := f.ledger.Get(context.Background(), f.orderID)
	require.NoError(t, err)
	return o.Status
}

func TestProcess_GenuineNotificationSettles(t *testing.T) {
	f := newListenerFixture(t)

	outcome, err := f.listener.Process(context.Background(), ipnBody("Completed", "TXN1", f.orderID.String(), f.digest))
	require.NoError(t, err)

	assert.Equal(t, OutcomeSettled, outcome)
	assert.Equal(t, models.OrderStatusCompleted, f.status(t))
	o, _ := f.ledger.Get(context.Background(), f.orderID)
	assert.Equal(t, "TXN1", *o.ProcessorTransactionID)
	assert.True(t, f.guard.Seen("TXN1"))
	assert.Equal(t, []string{models.EventOrderCompleted}, f.events.types())
	assert.Equal(t, 1, f.metrics.count(awspkg.MetricOrdersCompleted))
}

func TestProcess_ReplayWithForeignDigestIsRejected(t *testing.T) {
	f := newListenerFixture(t)

	other := scenarioCommitment()
	other.Salt = "ffffff"
	foreign := ComputeDigest(other)

	outcome, err := f.listener.Process(context.Background(), ipnBody("Completed", "TXN-OTHER", f.orderID.String(), foreign))

	assert.ErrorIs(t, err, ErrDigestMismatch)
	assert.Equal(t, OutcomeRejected, outcome)
	assert.Equal(t, models.OrderStatusPending, f.status(t))
	assert.Equal(t, 0, f.ledger.writeCount())
	assert.False(t, f.guard.Seen("TXN-OTHER"))
	assert.Equal(t, 1, f.metrics.count(awspkg.MetricDigestMismatch))
}

func TestProcess_DigestComesFromStoredRow(t *testing.T) {
	f := newListenerFixture(t)

	// A notification can only name a digest; it cannot make us hash its
	// own amount or currency.
	body := url.Values{}
	body.Set("payment_status", "Completed")
	body.Set("txn_id", "TXN5")
	body.Set("invoice", f.orderID.String())
	body.Set("custom", ComputeDigest(models.CommitmentInput{CurrencyCode: "HKD"}))
	body.Set("mc_gross", "0.01")

	_, err := f.listener.Process(context.Background(), []byte(body.Encode()))
	assert.ErrorIs(t, err, ErrDigestMismatch)
	assert.Equal(t, models.OrderStatusPending, f.status(t))
}

func TestProcess_PaymentMustMatchOrder(t *testing.T) {
	tests := map[string]struct {
		gross    string
		currency string
		receiver string
		settles  bool
	}{
		"exact payment":         {gross: "39.98", currency: "HKD", receiver: "merchant@example.com", settles: true},
		"receiver case differs": {gross: "39.98", currency: "HKD", receiver: "Merchant@Example.com", settles: true},
		"receiver omitted":      {gross: "39.98", currency: "HKD", settles: true},
		"underpaid":             {gross: "0.01", currency: "HKD", receiver: "merchant@example.com"},
		"overpaid":              {gross: "40.00", currency: "HKD", receiver: "merchant@example.com"},
		"missing gross":         {currency: "HKD", receiver: "merchant@example.com"},
		"other currency":        {gross: "39.98", currency: "USD", receiver: "merchant@example.com"},
		"other receiver":        {gross: "39.98", currency: "HKD", receiver: "attacker@example.com"},
		"everything wrong":      {gross: "0.01", currency: "USD", receiver: "attacker@example.com"},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			f := newListenerFixture(t)
			body := url.Values{}
			body.Set("payment_status", "Completed")
			body.Set("txn_id", "TXN-PAY")
			body.Set("invoice", f.orderID.String())
			body.Set("custom", f.digest)
			body.Set("mc_gross", tc.gross)
			body.Set("mc_currency", tc.currency)
			if tc.receiver != "" {
				body.Set("receiver_email", tc.receiver)
			}

			outcome, err := f.listener.Process(context.Background(), []byte(body.Encode()))

			if tc.settles {
				require.NoError(t, err)
				assert.Equal(t, OutcomeSettled, outcome)
				assert.Equal(t, models.OrderStatusCompleted, f.status(t))
				return
			}
			assert.ErrorIs(t, err, ErrDigestMismatch)
			assert.True(t, IsPermanent(err))
			assert.Equal(t, OutcomeRejected, outcome)
			assert.Equal(t, models.OrderStatusPending, f.status(t))
			assert.Equal(t, 0, f.ledger.writeCount())
			assert.False(t, f.guard.Seen("TXN-PAY"))
			assert.Equal(t, 1, f.metrics.count(awspkg.MetricDigestMismatch))
		})
	}
}

func TestProcess_UnverifiedIsDropped(t *testing.T) {
	f := newListenerFixture(t)
	f.verifier.err = ErrUnverifiedNotification

	outcome, err := f.listener.Process(context.Background(), ipnBody("Completed", "TXN1", f.orderID.String(), f.digest))

	assert.ErrorIs(t, err, ErrUnverifiedNotification)
	assert.Equal(t, OutcomeRejected, outcome)
	assert.Equal(t, models.OrderStatusPending, f.status(t))
	assert.Equal(t, 1, f.metrics.count(awspkg.MetricUnverifiedNotification))
}

func TestProcess_VerifierUnreachableIsTransient(t *testing.T) {
	f := newListenerFixture(t)
	f.verifier.err = errStoreDown

	outcome, err := f.listener.Process(context.Background(), ipnBody("Completed", "TXN1", f.orderID.String(), f.digest))

	assert.Error(t, err)
	assert.False(t, IsPermanent(err))
	assert.Equal(t, OutcomeFailed, outcome)
	assert.Equal(t, models.OrderStatusPending, f.status(t))
}

func TestProcess_NonCompletedStatusIgnored(t *testing.T) {
	for _, status := range []string{"Pending", "Refunded", "Denied", ""} {
		t.Run(status, func(t *testing.T) {
			f := newListenerFixture(t)

			outcome, err := f.listener.Process(context.Background(), ipnBody(status, "TXN1", f.orderID.String(), f.digest))
			assert.NoError(t, err)
			assert.Equal(t, OutcomeIgnored, outcome)
			assert.Equal(t, models.OrderStatusPending, f.status(t))
		})
	}
}

func TestProcess_RedeliveryIsNoOp(t *testing.T) {
	f := newListenerFixture(t)
	body := ipnBody("Completed", "TXN1", f.orderID.String(), f.digest)

	first, err := f.listener.Process(context.Background(), body)
	require.NoError(t, err)
	second, err := f.listener.Process(context.Background(), body)
	require.NoError(t, err)

	assert.Equal(t, OutcomeSettled, first)
	assert.Equal(t, OutcomeDuplicate, second)
	assert.Equal(t, 1, f.ledger.writeCount())
	assert.Len(t, f.events.types(), 1)
}

func TestProcess_AlreadyCompletedIsSuccess(t *testing.T) {
	f := newListenerFixture(t)
	require.NoError(t, f.ledger.MarkCompleted(context.Background(), f.orderID, "TXN-EARLIER"))

	outcome, err := f.listener.Process(context.Background(), ipnBody("Completed", "TXN-LATER", f.orderID.String(), f.digest))

	assert.NoError(t, err)
	assert.Equal(t, OutcomeAlreadySettled, outcome)
	o, _ := f.ledger.Get(context.Background(), f.orderID)
	assert.Equal(t, "TXN-EARLIER", *o.ProcessorTransactionID)
	assert.Empty(t, f.events.types())
}

func TestProcess_UnknownOrder(t *testing.T) {
	f := newListenerFixture(t)

	outcome, err := f.listener.Process(context.Background(), ipnBody("Completed", "TXN1", uuid.NewString(), f.digest))
	assert.ErrorIs(t, err, ErrOrderNotFound)
	assert.Equal(t, OutcomeRejected, outcome)

	outcome, err = f.listener.Process(context.Background(), ipnBody("Completed", "TXN2", "not-a-uuid", f.digest))
	assert.ErrorIs(t, err, ErrOrderNotFound)
	assert.Equal(t, OutcomeRejected, outcome)
	assert.True(t, IsPermanent(err))
}

func TestProcess_MissingTxnID(t *testing.T) {
	f := newListenerFixture(t)

	outcome, err := f.listener.Process(context.Background(), ipnBody("Completed", "", f.orderID.String(), f.digest))
	assert.ErrorIs(t, err, ErrMalformedNotification)
	assert.Equal(t, OutcomeRejected, outcome)
}

func TestProcess_LedgerFailureIsTransient(t *testing.T) {
	f := newListenerFixture(t)
	f.ledger.completeErr = errStoreDown

	outcome, err := f.listener.Process(context.Background(), ipnBody("Completed", "TXN1", f.orderID.String(), f.digest))
	assert.ErrorIs(t, err, errStoreDown)
	assert.False(t, IsPermanent(err))
	assert.Equal(t, OutcomeFailed, outcome)
	assert.False(t, f.guard.Seen("TXN1"))
}

func TestProcess_TransactionUsedByAnotherOrder(t *testing.T) {
	f := newListenerFixture(t)
	otherID, err := f.ledger.Create(context.Background(), Seal(scenarioCommitment()), "guest")
	require.NoError(t, err)
	require.NoError(t, f.ledger.MarkCompleted(context.Background(), otherID, "TXN-SHARED"))

	outcome, err := f.listener.Process(context.Background(), ipnBody("Completed", "TXN-SHARED", f.orderID.String(), f.digest))
	assert.ErrorIs(t, err, repository.ErrDuplicateTransaction)
	assert.Equal(t, OutcomeRejected, outcome)
	assert.Equal(t, models.OrderStatusPending, f.status(t))
}

func TestProcess_ConcurrentDeliveriesSettleOnce(t *testing.T) {
	f := newListenerFixture(t)

	const deliveries = 16
	outcomes := make([]SettlementOutcome, deliveries)
	var wg sync.WaitGroup
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			body := ipnBody("Completed", fmt.Sprintf("TXN-%d", i), f.orderID.String(), f.digest)
			outcomes[i], _ = f.listener.Process(context.Background(), body)
		}(i)
	}
	wg.Wait()

	settled := 0
	for _, o := range outcomes {
		if o == OutcomeSettled {
			settled++
		} else {
			assert.Equal(t, OutcomeAlreadySettled, o)
		}
	}
	assert.Equal(t, 1, settled)
	assert.Equal(t, 1, f.ledger.writeCount())
	assert.Equal(t, models.OrderStatusCompleted, f.status(t))
}

func TestProcess_EventFailureDoesNotFailSettlement(t *testing.T) {
	f := newListenerFixture(t)
	f.events.err = errStoreDown

	outcome, err := f.listener.Process(context.Background(), ipnBody("Completed", "TXN1", f.orderID.String(), f.digest))
	assert.NoError(t, err)
	assert.Equal(t, OutcomeSettled, outcome)
}

func TestOnNotification_NeverPanicsOnGarbage(t *testing.T) {
	f := newListenerFixture(t)
	assert.NotPanics(t, func() {
		f.listener.OnNotification(context.Background(), []byte("%%%not-a-form"))
	})
	assert.Equal(t, models.OrderStatusPending, f.status(t))
}
