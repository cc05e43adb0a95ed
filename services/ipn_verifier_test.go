package services

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newIPNServer(t *testing.T, status int, answer string, gotBody *string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		if gotBody != nil {
			*gotBody = string(b)
		}
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		w.WriteHeader(status)
		_, _ = w.Write([]byte(answer))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestIPNVerify_EchoesRawBody(t *testing.T) {
	var got string
	srv := newIPNServer(t, http.StatusOK, "VERIFIED", &got)
	v := NewIPNVerifier(srv.URL, time.Second)

	raw := "payment_status=Completed&txn_id=TXN1&custom=a%7Cb"
	require.NoError(t, v.Verify(context.Background(), []byte(raw)))
	assert.Equal(t, "cmd=_notify-validate&"+raw, got)
}

func TestIPNVerify_Invalid(t *testing.T) {
	srv := newIPNServer(t, http.StatusOK, "INVALID", nil)
	v := NewIPNVerifier(srv.URL, time.Second)

	err := v.Verify(context.Background(), []byte("txn_id=TXN1"))
	assert.ErrorIs(t, err, ErrUnverifiedNotification)
}

func TestIPNVerify_UnexpectedAnswer(t *testing.T) {
	srv := newIPNServer(t, http.StatusOK, "<html>maintenance</html>", nil)
	v := NewIPNVerifier(srv.URL, time.Second)

	err := v.Verify(context.Background(), []byte("txn_id=TXN1"))
	assert.ErrorIs(t, err, ErrUnverifiedNotification)
}

func TestIPNVerify_ServerErrorIsTransient(t *testing.T) {
	srv := newIPNServer(t, http.StatusServiceUnavailable, "", nil)
	v := NewIPNVerifier(srv.URL, time.Second)

	err := v.Verify(context.Background(), []byte("txn_id=TXN1"))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnverifiedNotification)
}

func TestIPNVerify_Unreachable(t *testing.T) {
	srv := newIPNServer(t, http.StatusOK, "VERIFIED", nil)
	url := srv.URL
	srv.Close()

	err := NewIPNVerifier(url, time.Second).Verify(context.Background(), []byte("txn_id=TXN1"))
	assert.Error(t, err)
	assert.False(t, IsPermanent(err))
}
