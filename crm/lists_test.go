package crm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func testClient(url string) *Client {
	return &Client{Endpoint: url, APIKey: "test-key", Log: zerolog.Nop()}
}

func TestFetchListPage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/lists/42/contacts", r.URL.Path)
		assert.Equal(t, "1000", r.URL.Query().Get("count"))
		assert.Equal(t, "abc", r.URL.Query().Get("offset"))
		_, _ = io.WriteString(w, `{"contacts":[{"id":"1"},{"id":"2"}],"has-more":true,"offset":"def"}`)
	}))
	defer server.Close()

	page, err := testClient(server.URL).FetchListPage(context.Background(), "42", "abc", 1000)

	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, page.IDs)
	assert.True(t, page.HasMore)
	assert.Equal(t, "def", page.Offset)
}

func TestFetchListPageServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = io.WriteString(w, `{"message":"upstream unavailable"}`)
	}))
	defer server.Close()

	_, err := testClient(server.URL).FetchListPage(context.Background(), "42", "", 1000)

	assert.Error(t, err)
}

func TestCreateList(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/lists", r.URL.Path)
		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Acme - Spring - acme.com - 5 Mar 2025", req["name"])
		_, _ = io.WriteString(w, `{"id":"list-9"}`)
	}))
	defer server.Close()

	id, err := testClient(server.URL).CreateList(context.Background(), "Acme - Spring - acme.com - 5 Mar 2025")

	require.NoError(t, err)
	assert.Equal(t, "list-9", id)
}

func TestBatchUpdatePropertiesBody(t *testing.T) {
	var body []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var err error
		body, err = io.ReadAll(r.Body)
		require.NoError(t, err)
	}))
	defer server.Close()

	updates := []ContactUpdate{
		{ID: "1", Properties: map[string]string{"last-sent-brand": "ACME"}},
		{ID: "2", Properties: map[string]string{"last-sent-brand": "ACME"}},
	}
	require.NoError(t, testClient(server.URL).BatchUpdateProperties(context.Background(), updates))

	assert.Equal(t, "1", gjson.GetBytes(body, "records.0.id").String())
	assert.Equal(t, "ACME", gjson.GetBytes(body, "records.0.properties.last-sent-brand").String())
	assert.Equal(t, "2", gjson.GetBytes(body, "records.1.id").String())
}
