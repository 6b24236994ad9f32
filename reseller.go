package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

var errNoAPIKey = errors.New("reseller API key is not configured")

// ResellerError is a non-success envelope from the reseller API.
type ResellerError struct {
	Code    int
	Message string
}

func (e *ResellerError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("reseller error %d: %s", e.Code, e.Message)
	}
	return "reseller error: " + e.Message
}

// flexNumber tolerates the reseller mixing JSON numbers and numeric strings
// for the same fields across methods.
type flexNumber float64

func (n *flexNumber) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*n = 0
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*n = flexNumber(f)
	return nil
}

type resellerProxy struct {
	Host string `json:"host"`
	Port string `json:"port"`
	User string `json:"user"`
	Pass string `json:"pass"`
}

// resellerEnvelope is the shared response shape: status plus the union of
// all method-specific fields.
type resellerEnvelope struct {
	Status      string                   `json:"status"`
	Error       string                   `json:"error"`
	ErrorID     int                      `json:"error_id"`
	UserID      flexNumber               `json:"user_id"`
	Balance     flexNumber               `json:"balance"`
	Currency    string                   `json:"currency"`
	Price       flexNumber               `json:"price"`
	PriceSingle flexNumber               `json:"price_single"`
	Period      flexNumber               `json:"period"`
	Count       flexNumber               `json:"count"`
	Country     string                   `json:"country"`
	OrderID     flexNumber               `json:"order_id"`
	List        map[string]resellerProxy `json:"list"`
}

type BalanceInfo struct {
	Balance   float64
	Currency  string
	AccountID string
}

type PriceInfo struct {
	Price       float64
	PriceSingle float64
	Count       int
	Period      int
	Currency    string
	Balance     float64
}

type PurchaseInfo struct {
	OrderID  string
	Count    int
	Price    float64
	Period   int
	Country  string
	Balance  float64
	Currency string
	Proxies  []string // host:port:user:pass, map-iteration order
}

// ResellerClient wraps the proxy reseller's balance/price/count/buy
// endpoints. Transport failures and non-success envelopes both come back
// as errors; nothing is thrown past this boundary.
type ResellerClient struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
	buyc    *http.Client
}

func NewResellerClient(baseURL, apiKey string) *ResellerClient {
	return &ResellerClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpc:   &http.Client{Timeout: 10 * time.Second},
		buyc:    &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *ResellerClient) Configured() bool {
	return c.apiKey != ""
}

func (c *ResellerClient) call(client *http.Client, method string, params url.Values) (*resellerEnvelope, error) {
	if c.apiKey == "" {
		return nil, errNoAPIKey
	}
	endpoint := c.baseURL + "/" + c.apiKey
	if method != "" {
		endpoint += "/" + method
	}
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	slog.Debug("reseller request", "method", method)
	resp, err := client.Get(endpoint)
	if err != nil {
		return nil, fmt.Errorf("reseller connection failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reseller response read failed: %w", err)
	}
	slog.Debug("reseller response", "method", method, "body", truncateBody(body))

	var env resellerEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("reseller returned malformed response: %w", err)
	}
	if env.Status != "yes" {
		msg := env.Error
		if msg == "" {
			msg = "unknown reseller error"
		}
		return nil, &ResellerError{Code: env.ErrorID, Message: msg}
	}
	return &env, nil
}

func (c *ResellerClient) GetBalance() (BalanceInfo, error) {
	env, err := c.call(c.httpc, "", nil)
	if err != nil {
		return BalanceInfo{}, err
	}
	return BalanceInfo{
		Balance:   float64(env.Balance),
		Currency:  env.Currency,
		AccountID: strconv.FormatInt(int64(env.UserID), 10),
	}, nil
}

func (c *ResellerClient) GetPrice(count, period, version int) (PriceInfo, error) {
	params := url.Values{}
	params.Set("count", strconv.Itoa(count))
	params.Set("period", strconv.Itoa(period))
	params.Set("version", strconv.Itoa(version))
	env, err := c.call(c.httpc, "getprice", params)
	if err != nil {
		return PriceInfo{}, err
	}
	return PriceInfo{
		Price:       float64(env.Price),
		PriceSingle: float64(env.PriceSingle),
		Count:       int(env.Count),
		Period:      int(env.Period),
		Currency:    env.Currency,
		Balance:     float64(env.Balance),
	}, nil
}

// GetCount reports how many proxies the reseller currently has available
// for the given country and tier.
func (c *ResellerClient) GetCount(country string, version int) (int, error) {
	params := url.Values{}
	params.Set("country", country)
	params.Set("version", strconv.Itoa(version))
	env, err := c.call(c.httpc, "getcount", params)
	if err != nil {
		return 0, err
	}
	return int(env.Count), nil
}

func (c *ResellerClient) Buy(count, period int, country string, version int, descr string) (PurchaseInfo, error) {
	params := url.Values{}
	params.Set("count", strconv.Itoa(count))
	params.Set("period", strconv.Itoa(period))
	params.Set("country", country)
	params.Set("version", strconv.Itoa(version))
	params.Set("descr", descr)
	env, err := c.call(c.buyc, "buy", params)
	if err != nil {
		return PurchaseInfo{}, err
	}
	return PurchaseInfo{
		OrderID:  strconv.FormatInt(int64(env.OrderID), 10),
		Count:    int(env.Count),
		Price:    float64(env.Price),
		Period:   int(env.Period),
		Country:  env.Country,
		Balance:  float64(env.Balance),
		Currency: env.Currency,
		Proxies:  flattenResellerProxies(env.List),
	}, nil
}

// flattenResellerProxies turns the reseller's id-keyed proxy map into
// local host:port:user:pass strings. The map carries no ordering.
func flattenResellerProxies(list map[string]resellerProxy) []string {
	out := make([]string, 0, len(list))
	for _, p := range list {
		out = append(out, fmt.Sprintf("%s:%s:%s:%s", p.Host, p.Port, p.User, p.Pass))
	}
	return out
}
