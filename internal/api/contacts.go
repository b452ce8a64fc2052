package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/mwarrick/digital-business-card-sub000/internal/models"
)

const (
	contactsEndpoint = "/api/contacts/"
	leadsEndpoint    = "/api/leads/"
)

// FetchContacts returns the full authoritative contact collection.
func (c *Client) FetchContacts(ctx context.Context) ([]models.ContactRecord, error) {
	return c.fetchContactKind(ctx, contactsEndpoint, models.KindContact)
}

// FetchLeads returns the full authoritative lead collection.
func (c *Client) FetchLeads(ctx context.Context) ([]models.ContactRecord, error) {
	return c.fetchContactKind(ctx, leadsEndpoint, models.KindLead)
}

func (c *Client) fetchContactKind(ctx context.Context, endpoint string, kind models.ContactKind) ([]models.ContactRecord, error) {
	ctx, release := c.supersede(ctx, endpoint)
	defer release()

	data, err := c.do(ctx, request{method: http.MethodGet, endpoint: endpoint})
	if err != nil {
		return nil, fmt.Errorf("fetching %ss: %w", kind, err)
	}

	var wire []RemoteContact
	if err := decodeData(endpoint, data, &wire); err != nil {
		return nil, fmt.Errorf("fetching %ss: %w", kind, err)
	}

	records := make([]models.ContactRecord, 0, len(wire))
	for _, w := range wire {
		records = append(records, w.ToRecord(kind))
	}

	return records, nil
}
