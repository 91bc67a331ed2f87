package crm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/iancoleman/strcase"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Email is a marketing email object. Properties holds the requested custom
// properties in one canonical shape regardless of which of the historical
// response shapes the API returned them in.
type Email struct {
	ID          string
	Name        string
	PublishDate time.Time
	Properties  map[string]string
}

// GetEmail fetches a marketing email by id. propertyNames lists the custom
// properties to extract into Email.Properties.
func (c *Client) GetEmail(ctx context.Context, id string, propertyNames []string) (Email, error) {
	apiError := APIError{}
	var body string
	err := c.api().
		Pathf("/v1/emails/%s", id).
		ToString(&body).
		ErrorJSON(&apiError).
		Fetch(ctx)
	if err != nil {
		c.logAPIError("get email", apiError, err)
		return Email{}, fmt.Errorf("get email %s: %w", id, err)
	}
	if !gjson.Valid(body) {
		return Email{}, errors.New("invalid json response")
	}
	return normalizeEmail(gjson.Parse(body), propertyNames), nil
}

// CloneEmail clones an existing email under a new name and returns the clone.
func (c *Client) CloneEmail(ctx context.Context, id, name string) (Email, error) {
	apiError := APIError{}
	var body string
	err := c.api().
		Pathf("/v1/emails/%s/clone", id).
		BodyJSON(map[string]string{"name": name}).
		ToString(&body).
		ErrorJSON(&apiError).
		Fetch(ctx)
	if err != nil {
		c.logAPIError("clone email", apiError, err)
		return Email{}, fmt.Errorf("clone email %s: %w", id, err)
	}
	if !gjson.Valid(body) {
		return Email{}, errors.New("invalid json response")
	}
	clone := normalizeEmail(gjson.Parse(body), nil)
	if clone.ID == "" {
		return Email{}, fmt.Errorf("clone email %s: response missing id", id)
	}
	return clone, nil
}

// UpdateEmail sets fields on an email. Keys are sjson paths, so nested
// fields are addressed as "properties.brand_code".
func (c *Client) UpdateEmail(ctx context.Context, id string, fields map[string]interface{}) error {
	body := []byte(`{}`)
	var err error
	for path, value := range fields {
		body, err = sjson.SetBytes(body, path, value)
		if err != nil {
			return fmt.Errorf("build email update body: %w", err)
		}
	}

	apiError := APIError{}
	err = c.api().
		Pathf("/v1/emails/%s", id).
		Put().
		BodyBytes(body).
		ContentType("application/json").
		ErrorJSON(&apiError).
		Fetch(ctx)
	if err != nil {
		c.logAPIError("update email", apiError, err)
		return fmt.Errorf("update email %s: %w", id, err)
	}
	return nil
}

// CountEmailsByName returns how many emails the remote search endpoint
// reports with exactly the given name.
func (c *Client) CountEmailsByName(ctx context.Context, name string) (int, error) {
	apiError := APIError{}
	var body string
	err := c.api().
		Path("/v1/emails").
		Param("name", name).
		Param("limit", "1").
		ToString(&body).
		ErrorJSON(&apiError).
		Fetch(ctx)
	if err != nil {
		c.logAPIError("search emails", apiError, err)
		return 0, fmt.Errorf("search emails named %q: %w", name, err)
	}
	return int(gjson.Get(body, "total").Int()), nil
}

// PublishEmail publishes an email for immediate send.
func (c *Client) PublishEmail(ctx context.Context, id string) error {
	apiError := APIError{}
	err := c.api().
		Pathf("/v1/emails/%s/publish", id).
		BodyBytes(nil).
		ErrorJSON(&apiError).
		Fetch(ctx)
	if err != nil {
		c.logAPIError("publish email", apiError, err)
		return fmt.Errorf("publish email %s: %w", id, err)
	}
	return nil
}

// DeleteEmail deletes an email.
func (c *Client) DeleteEmail(ctx context.Context, id string) error {
	apiError := APIError{}
	err := c.api().
		Pathf("/v1/emails/%s", id).
		Delete().
		ErrorJSON(&apiError).
		Fetch(ctx)
	if err != nil {
		c.logAPIError("delete email", apiError, err)
		return fmt.Errorf("delete email %s: %w", id, err)
	}
	return nil
}

// normalizeEmail maps the known email response shapes onto one Email.
// Custom properties have appeared in three shapes over API versions: as a
// top-level field, under "properties" keyed by the snake_case name, and
// under "properties" keyed by the display label (e.g. "Brand Code").
func normalizeEmail(data gjson.Result, propertyNames []string) Email {
	email := Email{
		ID:   data.Get("id").String(),
		Name: data.Get("name").String(),
	}
	if ms := data.Get("publishDate").Int(); ms > 0 {
		email.PublishDate = time.UnixMilli(ms).UTC()
	}
	for _, name := range propertyNames {
		if v, ok := propertyValue(data, name); ok {
			if email.Properties == nil {
				email.Properties = make(map[string]string)
			}
			email.Properties[name] = v
		}
	}
	return email
}

func propertyValue(data gjson.Result, name string) (string, bool) {
	for _, key := range []string{name, "properties." + name, "properties." + displayLabel(name)} {
		if r := data.Get(key); r.Exists() && r.Value() != nil {
			return r.String(), true
		}
	}
	return "", false
}

// displayLabel converts a snake_case property name to the label form older
// responses key properties by, e.g. "brand_code" becomes "Brand Code".
func displayLabel(name string) string {
	camel := strcase.ToCamel(name)
	var b strings.Builder
	for i, r := range camel {
		if i > 0 && unicode.IsUpper(r) {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	return b.String()
}
