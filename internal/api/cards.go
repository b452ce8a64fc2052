package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	errs "github.com/mwarrick/digital-business-card-sub000/internal/errors"
)

const cardsEndpoint = "/api/cards/"

// FetchCards returns the authoritative remote card collection. A newer
// FetchCards call cancels one still in flight; the superseded call fails
// with errors.ErrCancelled.
func (c *Client) FetchCards(ctx context.Context) ([]RemoteCard, error) {
	ctx, release := c.supersede(ctx, cardsEndpoint)
	defer release()

	data, err := c.do(ctx, request{method: http.MethodGet, endpoint: cardsEndpoint})
	if err != nil {
		return nil, fmt.Errorf("fetching cards: %w", err)
	}

	var cards []RemoteCard
	if err := decodeData(cardsEndpoint, data, &cards); err != nil {
		return nil, fmt.Errorf("fetching cards: %w", err)
	}

	return cards, nil
}

// CreateCard creates card on the server, which assigns its identity and
// timestamps.
func (c *Client) CreateCard(ctx context.Context, card RemoteCard) (RemoteCard, error) {
	card.ID = ""

	req, err := jsonRequest(http.MethodPost, cardsEndpoint, nil, card)
	if err != nil {
		return RemoteCard{}, err
	}

	data, err := c.do(ctx, req)
	if err != nil {
		return RemoteCard{}, fmt.Errorf("creating card: %w", err)
	}

	var created RemoteCard
	if err := decodeData(cardsEndpoint, data, &created); err != nil {
		return RemoteCard{}, fmt.Errorf("creating card: %w", err)
	}

	if created.ID == "" {
		return RemoteCard{}, fmt.Errorf("creating card: %w", &DecodeError{Endpoint: cardsEndpoint, Err: fmt.Errorf("response has no id")})
	}

	return created, nil
}

// UpdateCard replaces the server copy of card, children included. The
// server's view of the card is returned; when the server answers without
// data, card itself is returned.
func (c *Client) UpdateCard(ctx context.Context, card RemoteCard) (RemoteCard, error) {
	if card.ID == "" {
		return RemoteCard{}, fmt.Errorf("updating card: %w", errs.ErrMissingIdentity)
	}

	req, err := jsonRequest(http.MethodPut, cardsEndpoint, url.Values{"id": {string(card.ID)}}, card)
	if err != nil {
		return RemoteCard{}, err
	}

	data, err := c.do(ctx, req)
	if err != nil {
		return RemoteCard{}, fmt.Errorf("updating card %s: %w", card.ID, err)
	}

	if !data.Exists() || !data.IsObject() {
		return card, nil
	}

	var updated RemoteCard
	if err := decodeData(cardsEndpoint, data, &updated); err != nil {
		return RemoteCard{}, fmt.Errorf("updating card %s: %w", card.ID, err)
	}

	if updated.ID == "" {
		updated.ID = card.ID
	}

	return updated, nil
}

// DeleteCard removes the card with the given remote id.
func (c *Client) DeleteCard(ctx context.Context, remoteID string) error {
	if remoteID == "" {
		return fmt.Errorf("deleting card: %w", errs.ErrMissingIdentity)
	}

	_, err := c.do(ctx, request{
		method:   http.MethodDelete,
		endpoint: cardsEndpoint,
		query:    url.Values{"id": {remoteID}},
	})
	if err != nil {
		return fmt.Errorf("deleting card %s: %w", remoteID, err)
	}

	return nil
}
