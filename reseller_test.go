package main

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestReseller(t *testing.T, h http.HandlerFunc) *ResellerClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewResellerClient(srv.URL, "TESTKEY")
}

func TestResellerGetBalance(t *testing.T) {
	var gotPath string
	c := newTestReseller(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		fmt.Fprint(w, `{"status":"yes","user_id":"8432","balance":"48.80","currency":"RUB"}`)
	})

	info, err := c.GetBalance()
	require.NoError(t, err)
	require.Equal(t, "/TESTKEY", gotPath, "balance uses the bare key endpoint")
	require.InDelta(t, 48.80, info.Balance, 0.001)
	require.Equal(t, "RUB", info.Currency)
	require.Equal(t, "8432", info.AccountID)
}

func TestResellerGetPrice(t *testing.T) {
	var gotPath, gotQuery string
	c := newTestReseller(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		// Numbers and numeric strings are mixed on purpose.
		fmt.Fprint(w, `{"status":"yes","price":600,"price_single":"0.6","period":"14","count":20,"currency":"RUB","balance":"1000"}`)
	})

	info, err := c.GetPrice(20, 14, 3)
	require.NoError(t, err)
	require.Equal(t, "/TESTKEY/getprice", gotPath)
	require.Contains(t, gotQuery, "count=20")
	require.Contains(t, gotQuery, "period=14")
	require.Contains(t, gotQuery, "version=3")
	require.InDelta(t, 600, info.Price, 0.001)
	require.InDelta(t, 0.6, info.PriceSingle, 0.001)
	require.Equal(t, 20, info.Count)
	require.Equal(t, 14, info.Period)
	require.InDelta(t, 1000, info.Balance, 0.001)
}

func TestResellerGetCount(t *testing.T) {
	var gotPath, gotQuery string
	c := newTestReseller(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		fmt.Fprint(w, `{"status":"yes","count":"971"}`)
	})

	count, err := c.GetCount("ru", 3)
	require.NoError(t, err)
	require.Equal(t, "/TESTKEY/getcount", gotPath)
	require.Contains(t, gotQuery, "country=ru")
	require.Equal(t, 971, count)
}

func TestResellerBuy(t *testing.T) {
	var gotPath, gotQuery string
	c := newTestReseller(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		fmt.Fprint(w, `{
			"status":"yes","order_id":100500,"count":2,"price":1.2,"period":7,
			"country":"ru","balance":"10.5","currency":"RUB",
			"list":{
				"11":{"host":"1.1.1.1","port":"8080","user":"u1","pass":"p1"},
				"12":{"host":"2.2.2.2","port":"8081","user":"u2","pass":"p2"}
			}
		}`)
	})

	info, err := c.Buy(2, 7, "ru", 3, "user_alice")
	require.NoError(t, err)
	require.Equal(t, "/TESTKEY/buy", gotPath)
	require.Contains(t, gotQuery, "descr=user_alice")
	require.Equal(t, "100500", info.OrderID)
	require.Equal(t, 2, info.Count)
	require.Equal(t, 7, info.Period)
	require.Equal(t, "ru", info.Country)
	require.InDelta(t, 10.5, info.Balance, 0.001)
	require.ElementsMatch(t,
		[]string{"1.1.1.1:8080:u1:p1", "2.2.2.2:8081:u2:p2"},
		info.Proxies)
}

func TestResellerErrorEnvelope(t *testing.T) {
	c := newTestReseller(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"no","error_id":400,"error":"ERROR_NO_MONEY"}`)
	})

	_, err := c.GetBalance()
	require.Error(t, err)
	var rerr *ResellerError
	require.True(t, errors.As(err, &rerr))
	require.Equal(t, 400, rerr.Code)
	require.Contains(t, rerr.Message, "ERROR_NO_MONEY")
}

func TestResellerUnconfiguredKeySkipsRequest(t *testing.T) {
	var hit bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hit = true
	}))
	t.Cleanup(srv.Close)

	c := NewResellerClient(srv.URL, "")
	require.False(t, c.Configured())

	_, err := c.GetBalance()
	require.ErrorIs(t, err, errNoAPIKey)
	require.False(t, hit, "no request may leave the process without a key")
}

func TestResellerMalformedResponse(t *testing.T) {
	c := newTestReseller(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html>definitely not json</html>")
	})

	_, err := c.GetBalance()
	require.Error(t, err)
	require.Contains(t, err.Error(), "malformed")
}

func TestResellerConnectionError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := NewResellerClient(srv.URL, "TESTKEY")
	_, err := c.GetBalance()
	require.Error(t, err)
	require.Contains(t, err.Error(), "connection failed")
}
