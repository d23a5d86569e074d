package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/kiwari-pos/orderdesk/internal/enum"
)

var ErrUnknownReference = errors.New("unknown reference list")

var referencePaths = map[string]string{
	enum.RefStatuses:        "api/statuses",
	enum.RefPaymentStatuses: "api/payment-statuses",
	enum.RefCouriers:        "api/couriers",
	enum.RefChannels:        "api/channels",
}

// ListReference returns the names in one dropdown list. Entries may be plain
// strings or {id, name} objects.
func (c *Client) ListReference(ctx context.Context, kind string) ([]string, error) {
	path, ok := referencePaths[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownReference, kind)
	}
	var rows []json.RawMessage
	if _, err := c.do(ctx, http.MethodGet, path, nil, &rows); err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}

	names := make([]string, 0, len(rows))
	for _, row := range rows {
		var name string
		if err := json.Unmarshal(row, &name); err != nil {
			var obj struct {
				Name string `json:"name"`
			}
			if err := json.Unmarshal(row, &obj); err != nil {
				continue
			}
			name = obj.Name
		}
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}

// AddReference creates a new entry in a dropdown list.
func (c *Client) AddReference(ctx context.Context, kind, name string) error {
	path, ok := referencePaths[kind]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownReference, kind)
	}
	body := map[string]string{"name": name}
	if _, err := c.do(ctx, http.MethodPost, path, body, nil); err != nil {
		return fmt.Errorf("add %s %q: %w", kind, name, err)
	}
	return nil
}
