// Package requests is a thin REST helper used for release metadata lookups.
package requests

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	breverrors "github.com/hbdev/hbd-cli/pkg/errors"
)

type RESTRequest struct {
	URI         string
	Method      string
	Endpoint    string
	QueryParams []QueryParam
	Headers     []Header
	Payload     interface{}
}

type RESTResponse struct {
	StatusCode int
	Headers    []Header
	Payload    []byte
}

type QueryParam struct {
	Key   string
	Value string
}

type Header struct {
	Key   string
	Value string
}

type RESTResponseError struct {
	RequestURI         string
	ResponseStatusCode int
}

func (e *RESTResponseError) Error() string {
	return fmt.Sprintf("REST request to `%s` returned an error status code: %d", e.RequestURI, e.ResponseStatusCode)
}

// BuildHTTPRequest constructs the net/http request for advanced use cases
// where it needs to be inspected or modified before submission.
func (r *RESTRequest) BuildHTTPRequest(ctx context.Context) (*http.Request, error) {
	var payload io.Reader
	switch r.Method {
	case "PUT", "POST", "PATCH":
		payloadBytes, _ := json.Marshal(r.Payload)
		payload = bytes.NewBuffer(payloadBytes)
	case "GET", "DELETE":
		payload = nil
	default:
		return nil, fmt.Errorf("unknown method: %s", r.Method)
	}

	req, err := http.NewRequestWithContext(
		ctx,
		r.Method,
		r.Endpoint,
		payload,
	)
	if err != nil {
		return nil, breverrors.WrapAndTrace(err)
	}

	q := req.URL.Query()
	for _, param := range r.QueryParams {
		q.Add(param.Key, param.Value)
	}
	req.URL.RawQuery = q.Encode()
	r.URI = req.URL.String()

	req.Header.Set("Content-Type", "application/json; charset=UTF-8")
	for _, header := range r.Headers {
		req.Header.Set(header.Key, header.Value)
	}

	return req, nil
}

// Submit performs the HTTP request, returning a resultant RESTResponse
// Usage:
//   request = &RESTRequest{ ... }
//   response, _ := request.Submit(ctx)
func (r *RESTRequest) Submit(ctx context.Context) (*RESTResponse, error) {
	req, err := r.BuildHTTPRequest(ctx)
	if err != nil {
		return nil, breverrors.WrapAndTrace(err)
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, breverrors.WrapAndTrace(err)
	}
	payloadBytes, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, breverrors.WrapAndTrace(err)
	}

	var headers []Header
	for key, values := range res.Header {
		headers = append(headers, Header{
			Key:   key,
			Value: strings.Join(values, "\n"),
		})
	}
	if err = res.Body.Close(); err != nil {
		return nil, breverrors.WrapAndTrace(err)
	}
	return &RESTResponse{
		Headers:    headers,
		StatusCode: res.StatusCode,
		Payload:    payloadBytes,
	}, nil
}

// SubmitStrict performs the HTTP request, erroring on status codes >= 400.
func (r *RESTRequest) SubmitStrict(ctx context.Context) (*RESTResponse, error) {
	response, err := r.Submit(ctx)
	if err != nil {
		return nil, breverrors.WrapAndTrace(err)
	}
	if response.StatusCode >= 400 {
		return nil, &RESTResponseError{
			RequestURI:         r.URI,
			ResponseStatusCode: response.StatusCode,
		}
	}
	return response, nil
}

// UnmarshalPayload converts the raw response body into the given interface
// Usage:
//   var foo MyStruct
//   response.UnmarshalPayload(&foo)
func (r *RESTResponse) UnmarshalPayload(v interface{}) error {
	err := json.Unmarshal(r.Payload, v)
	return breverrors.WrapAndTrace(err)
}
