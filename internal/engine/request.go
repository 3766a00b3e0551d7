package engine

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"

	"github.com/allaspectsdev/otel-api-scraper/internal/config"
	"github.com/allaspectsdev/otel-api-scraper/internal/errs"
	"github.com/allaspectsdev/otel-api-scraper/internal/freq"
	"github.com/allaspectsdev/otel-api-scraper/internal/gateway"
)

// builtRequest is everything gateway.Request needs for one window's fetch.
type builtRequest struct {
	method    string
	url       string
	headers   map[string]string
	params    url.Values
	rawParams []string
	body      []byte
}

// buildRequest assembles the HTTP request for one window of one source,
// merging extraHeaders/authHeaders, range bound params or relative-range
// unit/value params, and extraArgs, per the method's GET-query-vs-POST-body
// split.
func buildRequest(src config.SourceConfig, w Window, authHeaders map[string]string, frequency, defaultTimeFormat string) (builtRequest, error) {
	method := src.Scrape.HTTPMethod
	if method == "" {
		method = http.MethodGet
	}

	headers := make(map[string]string, len(src.Scrape.ExtraHeaders)+len(authHeaders))
	for k, v := range src.Scrape.ExtraHeaders {
		headers[k] = v
	}
	for k, v := range authHeaders {
		headers[k] = v
	}

	params := url.Values{}
	var rawParams []string
	jsonBody := map[string]interface{}{}

	addParam := func(key, value string, urlEncode bool) {
		if method == http.MethodPost {
			jsonBody[key] = value
			return
		}
		if urlEncode {
			params.Set(key, value)
		} else {
			rawParams = append(rawParams, key+"="+value)
		}
	}

	if !w.Instant {
		if err := addRangeParams(src, w, frequency, defaultTimeFormat, addParam); err != nil {
			return builtRequest{}, err
		}
	}

	for k, v := range src.Scrape.ExtraArgs {
		if m, ok := v.(map[string]interface{}); ok {
			if raw, ok := m["noEncodeValue"]; ok {
				addParam(k, fmt.Sprintf("%v", raw), false)
				continue
			}
		}
		addParam(k, fmt.Sprintf("%v", v), true)
	}

	req := builtRequest{
		method:    method,
		url:       gateway.BuildURL(src.BaseURL, src.Endpoint),
		headers:   headers,
		params:    params,
		rawParams: rawParams,
	}

	if method == http.MethodPost {
		body, err := json.Marshal(jsonBody)
		if err != nil {
			return builtRequest{}, errs.TransportError(fmt.Errorf("engine: marshal POST body: %w", err))
		}
		req.body = body
		req.headers["Content-Type"] = "application/json"
	}
	return req, nil
}

// addParamFunc records one key/value pair into either query params or a
// JSON body, depending on the request method.
type addParamFunc func(key, value string, urlEncode bool)

func addRangeParams(src config.SourceConfig, w Window, sourceFrequency, defaultTimeFormat string, add addParamFunc) error {
	rk := src.Scrape.RangeKeys
	if rk == nil {
		return nil
	}

	if rk.HasExplicitBounds() {
		layout := rk.DateFormat
		if layout == "" {
			layout = src.Scrape.TimeFormat
		}
		if layout == "" {
			layout = defaultTimeFormat
		}
		add(rk.StartKey, w.Start.Format(layout), src.Scrape.URLEncodeTimeKeys)
		add(rk.EndKey, w.End.Format(layout), src.Scrape.URLEncodeTimeKeys)
		return nil
	}

	if rk.IsRelative() {
		n, err := resolveRelativeValue(rk, sourceFrequency)
		if err != nil {
			return err
		}
		add("unit", rk.Unit, true)
		add("value", fmt.Sprintf("%d", n), true)
	}
	return nil
}

// resolveRelativeValue resolves RangeKeys.Value, which is either a literal
// int or the sentinel "from-config" (N = floor(frequency_seconds /
// unit_seconds), negated if TakeNegative).
func resolveRelativeValue(rk *config.RangeKeys, sourceFrequency string) (int, error) {
	if s, ok := rk.Value.(string); ok && s == "from-config" {
		freqDur, err := freq.Parse(sourceFrequency)
		if err != nil {
			return 0, err
		}
		unitSecs, err := freq.UnitSeconds(rk.Unit)
		if err != nil {
			return 0, errs.ConfigInvalid(err)
		}
		n := int(math.Floor(freqDur.Seconds() / float64(unitSecs)))
		if rk.TakeNegative {
			n = -n
		}
		return n, nil
	}

	switch v := rk.Value.(type) {
	case int:
		return v, nil
	case float64:
		return int(v), nil
	default:
		return 0, errs.ConfigInvalid(fmt.Errorf("rangeKeys.value: unsupported type %T", rk.Value))
	}
}
