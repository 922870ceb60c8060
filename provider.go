package cryptotax

import (
	"bufio"
	"bytes"
	"crypto/sha1"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httputil"
	"os"
	"path/filepath"
	"time"

	"github.com/PaesslerAG/jsonpath"
	"github.com/shopspring/decimal"
)

// contains the remote price provider and http utils to deal with it

// diskCache implements a simple disk cache for HTTP responses
type diskCache struct {
	base http.RoundTripper
}

func (c *diskCache) RoundTrip(req *http.Request) (resp *http.Response, err error) {
	// get from disk
	// diskcache implements a unique key per day, so the local tmp expires every day.
	key := fmt.Sprintf("%s %s %s", time.Now().UTC().Format("2006-01-02"), req.Method, req.URL.String())
	key = fmt.Sprintf("%x", sha1.Sum([]byte(key)))

	cachedResp, err := c.get(key, req)
	if err == nil { // Cache hit
		return cachedResp, nil
	}

	resp, err = c.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	log.Printf("%v %v/%v %v", resp.Request.Method, resp.Request.URL.Host, resp.Request.URL.Path, resp.Status)
	if resp.StatusCode >= 300 {
		return resp, nil
	}
	// otherwise attempt to store it in cache

	if err := c.put(key, resp); err != nil {
		log.Printf("cache write err (ignored): %v\n", err)
	}
	return resp, nil
}

// get retrieves a cached response from disk
func (c *diskCache) get(key string, req *http.Request) (resp *http.Response, err error) {
	file := filepath.Join(os.TempDir(), key)
	content, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	return http.ReadResponse(bufio.NewReader(bytes.NewBuffer(content)), req)
}

// put stores a response to disk cache
func (c *diskCache) put(key string, resp *http.Response) (err error) {
	file := filepath.Join(os.TempDir(), key)

	content, err := httputil.DumpResponse(resp, true)
	if err != nil {
		return err
	}

	f, err := os.Create(file)
	if err != nil {
		return err
	}

	_, err = f.Write(content)
	f.Close()
	return err
}

// daily returns a client with a cache all with daily expire
func daily() *http.Client {
	client := new(http.Client)
	client.Transport = &diskCache{http.DefaultTransport}
	return client
}

// jwget performs an HTTP GET request and unmarshals the JSON response into the provided data structure.
func jwget(client *http.Client, addr string, data interface{}) error {
	resp, err := client.Get(addr)
	if err != nil {
		return err
	}
	if resp.StatusCode != 200 {
		return fmt.Errorf("cannot http GET %v/%v: %v", resp.Request.URL.Host, resp.Request.URL.Path, resp.Status)
	}
	var buf bytes.Buffer
	_, err = io.Copy(&buf, resp.Body)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return json.Unmarshal(buf.Bytes(), data)
}

const defaultProviderBase = "https://min-api.cryptocompare.com"

// PriceProvider is a RateOracle backed by a cryptocompare-compatible
// historical price API. Responses are cached on disk with a daily
// expiry, and in memory for the duration of a run.
type PriceProvider struct {
	client *http.Client
	base   string
	memo   map[string]decimal.Decimal
}

// NewPriceProvider creates a provider against the public API.
func NewPriceProvider() *PriceProvider {
	return &PriceProvider{client: daily(), base: defaultProviderBase, memo: make(map[string]decimal.Decimal)}
}

// RateAt implements RateOracle with one query per (pair, timestamp).
func (p *PriceProvider) RateAt(from, to string, ts Timestamp) (decimal.Decimal, error) {
	if from == to {
		return decimal.New(1, 0), nil
	}
	key := fmt.Sprintf("%s/%s@%d", from, to, ts)
	if rate, ok := p.memo[key]; ok {
		return rate, nil
	}

	addr := fmt.Sprintf("%s/data/pricehistorical?fsym=%s&tsyms=%s&ts=%d", p.base, from, to, ts)
	var jobj any
	if err := jwget(p.client, addr, &jobj); err != nil {
		return decimal.Decimal{}, fmt.Errorf("error in wget %s/%s: %w", from, to, err)
	}

	// an api-level error still comes back as a 200 response
	if jval, err := jsonpath.Get("$.Response", jobj); err == nil {
		if s, ok := jval.(string); ok && s == "Error" {
			return decimal.Decimal{}, fmt.Errorf("%s/%s: %w", from, to, ErrUnsupportedAsset)
		}
	}

	path := fmt.Sprintf("$.%s.%s", from, to)
	jval, err := jsonpath.Get(path, jobj)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("error parsing %s/%s: %q %w", from, to, path, ErrUnsupportedAsset)
	}
	// because jsonpath is never clear about whether it returns a list of 1 answer, or a single answer:
	// by this call I keep the first one if any
	if jlist, ok := jval.([]any); ok && len(jlist) > 0 {
		jval = jlist[0]
	}
	val, ok := jval.(float64)
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("error parsing %s/%s: %q not a number: %v", from, to, path, jval)
	}
	// the api answers 0 for timestamps it has no record for
	if val == 0 {
		return decimal.Decimal{}, fmt.Errorf("%s/%s at %s: %w", from, to, ts, ErrNoPriceForTimestamp)
	}

	rate := decimal.NewFromFloat(val)
	p.memo[key] = rate
	return rate, nil
}
