package api

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/erauner12/journalsync/internal/syncx"
)

// Push sends one batch
func (c *Client) Push(ctx context.Context, items []syncx.PushItem) (syncx.PushResponse, error) {
	var resp syncx.PushResponse
	err := c.do(ctx, http.MethodPost, "/v1/sync/records/push", syncx.PushRequest{Items: items}, &resp, nil)
	return resp, err
}

// Pull fetches one page after cursor ("" for the beginning)
func (c *Client) Pull(ctx context.Context, cursor string, limit int) (syncx.PullResponse, error) {
	q := url.Values{}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/v1/sync/records/pull"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp syncx.PullResponse
	err := c.do(ctx, http.MethodGet, path, nil, &resp, nil)
	return resp, err
}

// ServerInfo mirrors GET /v1/sync/info
type ServerInfo struct {
	APIVersion string `json:"apiVersion"`
	ServerTime string `json:"serverTime"`
	Limits     struct {
		MaxPushBatch int `json:"maxPushBatch"`
		MaxPullLimit int `json:"maxPullLimit"`
	} `json:"limits"`
}

// Info fetches server capabilities
func (c *Client) Info(ctx context.Context) (ServerInfo, error) {
	var info ServerInfo
	err := c.do(ctx, http.MethodGet, "/v1/sync/info", nil, &info, nil)
	return info, err
}

// GetKeys returns syncx.ErrKeysNotFound on 404
func (c *Client) GetKeys(ctx context.Context) (syncx.WrappedKey, error) {
	var key syncx.WrappedKey
	err := c.do(ctx, http.MethodGet, "/v1/keys", nil, &key, nil)
	if statusIs(err, http.StatusNotFound) {
		return syncx.WrappedKey{}, syncx.ErrKeysNotFound
	}
	return key, err
}

// PutKeys stores key. With createOnly the server refuses to overwrite and
// syncx.ErrKeysExist is returned.
func (c *Client) PutKeys(ctx context.Context, key syncx.WrappedKey, createOnly bool) error {
	var headers map[string]string
	if createOnly {
		headers = map[string]string{"If-None-Match": "*"}
	}
	err := c.do(ctx, http.MethodPut, "/v1/keys", key, nil, headers)
	if statusIs(err, http.StatusPreconditionFailed) {
		return syncx.ErrKeysExist
	}
	return err
}

// IsOffline reports whether err came from the network rather than the server
func IsOffline(err error) bool {
	return errors.Is(err, ErrOffline)
}
