package broker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(srv *httptest.Server, timeout time.Duration) *Client {
	return NewClient(Endpoints{
		BaseURL:        srv.URL,
		LoginPath:      "login/1.0/tradeApiLogin",
		ValidatePath:   "login/1.0/tradeApiValidate",
		PlaceOrderPath: "quick/order/rule/ms/place",
	}, timeout, srv.Client())
}

func TestTOTPLoginSendsHeadersAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/login/1.0/tradeApiLogin", r.URL.Path)
		assert.Equal(t, "consumer", r.Header.Get(HeaderAuthorization))
		assert.Equal(t, "neotradeapi", r.Header.Get(HeaderRoutingKey))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]string{"mobileNumber": "+919876543210", "ucc": "UCC01", "totp": "123456"}, body)

		_, _ = w.Write([]byte(`{"data":{"status":"success","token":"view","sid":"s1"}}`))
	}))
	defer srv.Close()

	resp, err := newTestClient(srv, time.Second).TOTPLogin(context.Background(), LoginRequest{
		IdentityKey:  "consumer",
		RoutingKey:   "neotradeapi",
		MobileNumber: "+919876543210",
		AccountID:    "UCC01",
		OTP:          "123456",
	})
	require.NoError(t, err)
	assert.True(t, resp.OK())
	assert.Contains(t, string(resp.Body), `"view"`)
}

func TestTOTPValidateSendsChallenge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "s1", r.Header.Get(HeaderSID))
		assert.Equal(t, "view", r.Header.Get(HeaderAuth))
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "654321", body["mpin"])
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"bad mpin"}`))
	}))
	defer srv.Close()

	resp, err := newTestClient(srv, time.Second).TOTPValidate(context.Background(), ValidateRequest{
		IdentityKey: "consumer",
		RoutingKey:  "neotradeapi",
		SessionID:   "s1",
		Token:       "view",
		PIN:         "654321",
	})
	require.NoError(t, err)
	assert.False(t, resp.OK())
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestPlaceOrderFormAndServerID(t *testing.T) {
	var gotQuery url.Values
	var gotForm url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		raw, _ := io.ReadAll(r.Body)
		gotForm, _ = url.ParseQuery(string(raw))
		assert.Equal(t, "edit-sid", r.Header.Get(HeaderOrderSID))
		assert.Equal(t, "edit-token", r.Header.Get(HeaderAuth))
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		_, _ = w.Write([]byte(`{"stat":"Ok","nOrdNo":"240101000001"}`))
	}))
	defer srv.Close()

	c := newTestClient(srv, time.Second)
	req := PlaceOrderRequest{
		BaseURL:       srv.URL,
		EditToken:     "edit-token",
		EditSessionID: "edit-sid",
		ServerID:      "server-7",
		JData:         []byte(`{"ig":"key-1","tt":"B"}`),
	}

	_, err := c.PlaceOrder(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "server-7", gotQuery.Get(QueryServerID))
	assert.Equal(t, `{"ig":"key-1","tt":"B"}`, gotForm.Get(FormJData))

	req.ServerID = ""
	_, err = c.PlaceOrder(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, gotQuery.Has(QueryServerID))
}

func TestTimeoutAfterWriteIsSent(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.ReadAll(r.Body)
		<-release
	}))
	defer srv.Close()
	defer close(release)

	_, err := newTestClient(srv, 50*time.Millisecond).PlaceOrder(context.Background(), PlaceOrderRequest{
		BaseURL: srv.URL,
		JData:   []byte(`{}`),
	})
	require.Error(t, err)

	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.True(t, te.RequestSent)
	assert.True(t, te.Timeout)
	assert.Equal(t, EndpointPlaceOrder, te.Endpoint)
}

func TestConcurrentTimeoutsReportSent(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.ReadAll(r.Body)
		<-release
	}))
	defer srv.Close()
	defer close(release)

	c := newTestClient(srv, 30*time.Millisecond)
	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.PlaceOrder(context.Background(), PlaceOrderRequest{BaseURL: srv.URL, JData: []byte(`{}`)})
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		var te *TransportError
		require.True(t, errors.As(err, &te))
		assert.True(t, te.RequestSent)
	}
}

func TestConnectionRefusedIsNotSent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	base := srv.URL
	srv.Close()

	c := NewClient(Endpoints{BaseURL: base, LoginPath: "login"}, time.Second, nil)
	_, err := c.TOTPLogin(context.Background(), LoginRequest{})

	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.False(t, te.RequestSent)
	assert.Contains(t, te.Error(), "not sent")
}

func TestJoinURL(t *testing.T) {
	assert.Equal(t, "https://h/a/b", joinURL("https://h/", "/a/b"))
	assert.Equal(t, "https://h/a/b", joinURL("https://h", "a/b"))
}
