// Package broker is the HTTP client for the three upstream endpoints: TOTP login,
// TOTP validate and order placement. It reports what happened on the wire and
// leaves classification to its callers.
package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptrace"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/GoPolymarket/neogate/internal/config"
	"github.com/GoPolymarket/neogate/internal/pkg/logger"
	"github.com/GoPolymarket/neogate/internal/pkg/metrics"
)

const (
	HeaderAuthorization = "Authorization"
	HeaderRoutingKey    = "neo-fin-key"
	HeaderSID           = "sid"
	HeaderAuth          = "Auth"
	HeaderOrderSID      = "Sid"

	QueryServerID = "sId"
	FormJData     = "jData"

	EndpointLogin      = "login"
	EndpointValidate   = "validate"
	EndpointPlaceOrder = "place_order"
)

type Endpoints struct {
	BaseURL        string
	LoginPath      string
	ValidatePath   string
	PlaceOrderPath string
}

type Client struct {
	endpoints  Endpoints
	timeout    time.Duration
	httpClient *http.Client
}

func NewClient(endpoints Endpoints, timeout time.Duration, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{endpoints: endpoints, timeout: timeout, httpClient: httpClient}
}

// NewClientFromConfig builds a Client from the broker section of the config.
func NewClientFromConfig(cfg config.BrokerConfig) *Client {
	return NewClient(Endpoints{
		BaseURL:        cfg.BaseURL,
		LoginPath:      cfg.LoginPath,
		ValidatePath:   cfg.ValidatePath,
		PlaceOrderPath: cfg.PlaceOrderPath,
	}, cfg.Timeout(), nil)
}

// Response is an HTTP exchange that completed, whatever its status.
type Response struct {
	StatusCode int
	Body       []byte
}

func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// TransportError is a call that did not produce an HTTP response. RequestSent is
// true once the request was fully written, after which the upstream may have
// acted on it.
type TransportError struct {
	Endpoint    string
	Err         error
	RequestSent bool
	Timeout     bool
}

func (e *TransportError) Error() string {
	state := "not sent"
	if e.RequestSent {
		state = "sent"
	}
	return fmt.Sprintf("%s transport error (request %s): %v", e.Endpoint, state, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

type LoginRequest struct {
	IdentityKey  string
	RoutingKey   string
	MobileNumber string
	AccountID    string
	OTP          string
}

type ValidateRequest struct {
	IdentityKey string
	RoutingKey  string
	SessionID   string
	Token       string
	PIN         string
}

// PlaceOrderRequest carries the already-encoded order. JData is sent byte for
// byte on every attempt.
type PlaceOrderRequest struct {
	BaseURL       string
	EditToken     string
	EditSessionID string
	ServerID      string
	RoutingKey    string
	JData         []byte
}

func (c *Client) TOTPLogin(ctx context.Context, req LoginRequest) (*Response, error) {
	body, _ := json.Marshal(map[string]string{
		"mobileNumber": req.MobileNumber,
		"ucc":          req.AccountID,
		"totp":         req.OTP,
	})
	httpReq, err := http.NewRequest(http.MethodPost, joinURL(c.endpoints.BaseURL, c.endpoints.LoginPath), bytes.NewReader(body))
	if err != nil {
		return nil, &TransportError{Endpoint: EndpointLogin, Err: err}
	}
	httpReq.Header.Set(HeaderAuthorization, req.IdentityKey)
	httpReq.Header.Set(HeaderRoutingKey, req.RoutingKey)
	httpReq.Header.Set("Content-Type", "application/json")
	return c.do(ctx, EndpointLogin, httpReq)
}

func (c *Client) TOTPValidate(ctx context.Context, req ValidateRequest) (*Response, error) {
	body, _ := json.Marshal(map[string]string{"mpin": req.PIN})
	httpReq, err := http.NewRequest(http.MethodPost, joinURL(c.endpoints.BaseURL, c.endpoints.ValidatePath), bytes.NewReader(body))
	if err != nil {
		return nil, &TransportError{Endpoint: EndpointValidate, Err: err}
	}
	httpReq.Header.Set(HeaderAuthorization, req.IdentityKey)
	httpReq.Header.Set(HeaderSID, req.SessionID)
	httpReq.Header.Set(HeaderAuth, req.Token)
	httpReq.Header.Set(HeaderRoutingKey, req.RoutingKey)
	httpReq.Header.Set("Content-Type", "application/json")
	return c.do(ctx, EndpointValidate, httpReq)
}

func (c *Client) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*Response, error) {
	target := joinURL(req.BaseURL, c.endpoints.PlaceOrderPath)
	if req.ServerID != "" {
		target += "?" + url.Values{QueryServerID: {req.ServerID}}.Encode()
	}
	form := url.Values{FormJData: {string(req.JData)}}.Encode()
	httpReq, err := http.NewRequest(http.MethodPost, target, strings.NewReader(form))
	if err != nil {
		return nil, &TransportError{Endpoint: EndpointPlaceOrder, Err: err}
	}
	httpReq.Header.Set(HeaderOrderSID, req.EditSessionID)
	httpReq.Header.Set(HeaderAuth, req.EditToken)
	if req.RoutingKey != "" {
		httpReq.Header.Set(HeaderRoutingKey, req.RoutingKey)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	logger.Debug("place order request", "url", target, "jData", string(req.JData))
	return c.do(ctx, EndpointPlaceOrder, httpReq)
}

func (c *Client) do(ctx context.Context, endpoint string, req *http.Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	// The trace hooks run on the transport's write goroutine, which can still
	// be running when Do returns on a deadline. Headers on the wire count as
	// sent until the write reports a failure.
	var sent atomic.Bool
	trace := &httptrace.ClientTrace{
		WroteHeaders: func() {
			sent.Store(true)
		},
		WroteRequest: func(info httptrace.WroteRequestInfo) {
			sent.Store(info.Err == nil)
		},
	}
	req = req.WithContext(httptrace.WithClientTrace(ctx, trace))

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.UpstreamLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, &TransportError{Endpoint: endpoint, Err: err, RequestSent: sent.Load(), Timeout: isTimeout(err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		// headers arrived, so the request certainly reached the upstream
		return nil, &TransportError{Endpoint: endpoint, Err: err, RequestSent: true, Timeout: isTimeout(err)}
	}
	logger.Debug("upstream response", "endpoint", endpoint, "status", resp.StatusCode, "bytes", len(body))
	return &Response{StatusCode: resp.StatusCode, Body: body}, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func joinURL(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}
