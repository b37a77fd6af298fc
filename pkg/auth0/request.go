package auth0

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// RequestDescriptor describes one logical HTTP call before any middleware or
// transport concerns are applied. Exactly one of JSON, Form and Raw may be
// set; with none the request has no body. The pipeline builds a fresh
// *http.Request from the descriptor for every attempt, so middleware
// mutations never leak across retries.
type RequestDescriptor struct {
	// Method is the HTTP method. Defaults to GET when empty.
	Method string

	// Path is joined to the client base URL. Must start with "/".
	Path string

	// Headers are additional request headers.
	Headers http.Header

	// Query is appended to the request URL.
	Query url.Values

	// JSON is marshaled as an application/json body.
	JSON any

	// Form is encoded as an application/x-www-form-urlencoded body.
	Form url.Values

	// Raw is sent verbatim with ContentType.
	Raw []byte

	// ContentType overrides the inferred Content-Type header.
	ContentType string
}

// Clone returns a deep copy of the descriptor. Header, query and form maps
// are copied; the JSON body value is shared.
func (d *RequestDescriptor) Clone() *RequestDescriptor {
	clone := *d
	if d.Headers != nil {
		clone.Headers = d.Headers.Clone()
	}
	if d.Query != nil {
		clone.Query = cloneValues(d.Query)
	}
	if d.Form != nil {
		clone.Form = cloneValues(d.Form)
	}
	if d.Raw != nil {
		clone.Raw = append([]byte(nil), d.Raw...)
	}
	return &clone
}

// build materializes the descriptor into an *http.Request against baseURL.
func (d *RequestDescriptor) build(ctx context.Context, baseURL string) (*http.Request, error) {
	method := d.Method
	if method == "" {
		method = http.MethodGet
	}

	target := baseURL + d.Path
	if len(d.Query) > 0 {
		if strings.Contains(target, "?") {
			target += "&" + d.Query.Encode()
		} else {
			target += "?" + d.Query.Encode()
		}
	}

	body, contentType, err := d.encodeBody()
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}

	for key, values := range d.Headers {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}

	return req, nil
}

// encodeBody renders the descriptor body and its content type.
func (d *RequestDescriptor) encodeBody() (io.Reader, string, error) {
	contentType := d.ContentType

	switch {
	case d.JSON != nil:
		encoded, err := json.Marshal(d.JSON)
		if err != nil {
			return nil, "", fmt.Errorf("%w: cannot encode request body: %v", ErrConfiguration, err)
		}
		if contentType == "" {
			contentType = "application/json"
		}
		return bytes.NewReader(encoded), contentType, nil
	case d.Form != nil:
		if contentType == "" {
			contentType = "application/x-www-form-urlencoded"
		}
		return strings.NewReader(d.Form.Encode()), contentType, nil
	case d.Raw != nil:
		return bytes.NewReader(d.Raw), contentType, nil
	default:
		return nil, contentType, nil
	}
}

// cloneValues deep-copies a url.Values map.
func cloneValues(values url.Values) url.Values {
	clone := make(url.Values, len(values))
	for key, list := range values {
		clone[key] = append([]string(nil), list...)
	}
	return clone
}
