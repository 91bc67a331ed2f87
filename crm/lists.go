package crm

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// ListPage is one page of contact list membership.
type ListPage struct {
	IDs     []string
	HasMore bool
	Offset  string
}

// ContactUpdate sets property values on one contact.
type ContactUpdate struct {
	ID         string
	Properties map[string]string
}

// FetchListPage fetches one page of member identifiers from a contact list.
// Pass the Offset of the previous page to continue; an empty offset starts
// from the beginning.
func (c *Client) FetchListPage(ctx context.Context, listID, offset string, count int) (ListPage, error) {
	apiError := APIError{}
	var body string
	builder := c.api().
		Pathf("/v1/lists/%s/contacts", listID).
		Param("count", strconv.Itoa(count)).
		ToString(&body).
		ErrorJSON(&apiError)
	if offset != "" {
		builder = builder.Param("offset", offset)
	}
	err := builder.Fetch(ctx)
	if err != nil {
		c.logAPIError("fetch list page", apiError, err)
		return ListPage{}, fmt.Errorf("fetch page of list %s: %w", listID, err)
	}
	if !gjson.Valid(body) {
		c.Log.Error().Str("list", listID).Msg("invalid list page response")
		return ListPage{}, errors.New("invalid json response")
	}
	data := gjson.Parse(body)
	page := ListPage{
		HasMore: data.Get("has-more").Bool(),
		Offset:  data.Get("offset").String(),
	}
	for _, contact := range data.Get("contacts").Array() {
		page.IDs = append(page.IDs, contact.Get("id").String())
	}
	return page, nil
}

// CreateList creates a new contact list and returns its remote identifier.
func (c *Client) CreateList(ctx context.Context, name string) (string, error) {
	apiError := APIError{}
	var body string
	err := c.api().
		Path("/v1/lists").
		BodyJSON(map[string]string{"name": name}).
		ToString(&body).
		ErrorJSON(&apiError).
		Fetch(ctx)
	if err != nil {
		c.logAPIError("create list", apiError, err)
		return "", fmt.Errorf("create list %q: %w", name, err)
	}
	id := gjson.Get(body, "id").String()
	if id == "" {
		return "", fmt.Errorf("create list %q: response missing id", name)
	}
	return id, nil
}

// AddToList adds the given contact identifiers to a list.
func (c *Client) AddToList(ctx context.Context, listID string, ids []string) error {
	apiError := APIError{}
	err := c.api().
		Pathf("/v1/lists/%s/add", listID).
		BodyJSON(map[string][]string{"ids": ids}).
		ErrorJSON(&apiError).
		Fetch(ctx)
	if err != nil {
		c.logAPIError("add to list", apiError, err)
		return fmt.Errorf("add %d contacts to list %s: %w", len(ids), listID, err)
	}
	return nil
}

// BatchUpdateProperties updates property values on many contacts in one call.
func (c *Client) BatchUpdateProperties(ctx context.Context, updates []ContactUpdate) error {
	body := []byte(`{"records":[]}`)
	var err error
	for i, u := range updates {
		body, err = sjson.SetBytes(body, fmt.Sprintf("records.%d.id", i), u.ID)
		if err != nil {
			return fmt.Errorf("build batch update body: %w", err)
		}
		for k, v := range u.Properties {
			body, err = sjson.SetBytes(body, fmt.Sprintf("records.%d.properties.%s", i, k), v)
			if err != nil {
				return fmt.Errorf("build batch update body: %w", err)
			}
		}
	}

	apiError := APIError{}
	err = c.api().
		Path("/v1/contacts/batch").
		BodyBytes(body).
		ContentType("application/json").
		ErrorJSON(&apiError).
		Fetch(ctx)
	if err != nil {
		c.logAPIError("batch update properties", apiError, err)
		return fmt.Errorf("batch update %d contacts: %w", len(updates), err)
	}
	return nil
}
