// Package crm is the client for the CRM REST API: contact lists and
// marketing email objects. It is the only package that knows the wire
// shapes; callers see canonical structs.
package crm

import (
	"fmt"
	"net/http"
	"time"

	"github.com/carlmjohnson/requests"
	"github.com/rs/zerolog"
)

// HTTPRequestTimeout is the default timeout for all HTTP requests to the CRM.
const HTTPRequestTimeout = 60 * time.Second

// APIError is the error payload returned by the CRM.
type APIError map[string]interface{}

// Client talks to the CRM REST API.
type Client struct {
	Endpoint string
	APIKey   string
	Log      zerolog.Logger

	// RecordRequests switches the transport to a recording one so real
	// responses can be captured as test fixtures.
	RecordRequests bool
	RecordDir      string
}

// api returns a new requests.Builder configured for the CRM API.
func (c *Client) api() *requests.Builder {
	result := requests.
		URL(c.Endpoint).
		Client(&http.Client{Timeout: HTTPRequestTimeout}).
		Bearer(c.APIKey)
	if c.RecordRequests {
		dir := c.RecordDir
		if dir == "" {
			dir = "testdata/.requests"
		}
		result = result.Transport(requests.Record(nil, dir))
	}
	return result
}

// logAPIError logs the CRM error payload for a failed call, if any.
func (c *Client) logAPIError(op string, apiError APIError, err error) {
	if err == nil {
		return
	}
	c.Log.Error().Err(err).Str("op", op).Msg(fmt.Sprintf("CRM error: %+v", apiError))
}
