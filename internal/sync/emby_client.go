// Embywatch - Emby Playback History Analytics
// Copyright 2026 D. Poulsen (dpoulsen)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dpoulsen/embywatch

/*
emby_client.go - Emby REST API Client

REST client for one Emby server. All requests carry the server's API
key in the X-Emby-Token header and pass through a shared rate limiter
so history backfills do not hammer the remote.

API Reference: https://dev.emby.media/doc/restapi/index.html
*/

package sync

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/dpoulsen/embywatch/internal/models"
)

// EmbyClientAPI defines the Emby API operations the sync engine and
// the admin surface consume. Both EmbyClient and the circuit-breaker
// wrapper implement it.
type EmbyClientAPI interface {
	Ping(ctx context.Context) error
	GetSystemInfo(ctx context.Context) (*models.EmbySystemInfo, error)
	GetUsers(ctx context.Context) ([]models.EmbyUser, error)
	GetPlayedItemsPage(ctx context.Context, userID string, itemTypes []string, startIndex, limit int) (*models.EmbyItemsPage, error)
	GetResumableItems(ctx context.Context, userID string, limit int) ([]models.EmbyItem, error)
	GetLibraries(ctx context.Context) ([]models.EmbyLibrary, error)
	StopSession(ctx context.Context, sessionID string) error
}

// Ensure EmbyClient implements EmbyClientAPI
var _ EmbyClientAPI = (*EmbyClient)(nil)

// itemFields is the field set requested on every item query; it covers
// everything the ingestion pipeline persists.
const itemFields = "Genres,MediaStreams,ProductionYear,UserData,SeriesName,SeasonName,IndexNumber,ParentIndexNumber"

// EmbyClient provides access to one Emby server's REST API.
type EmbyClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewEmbyClient creates a client for the given server record.
// ratePerSecond caps outgoing requests; zero or less disables limiting.
func NewEmbyClient(server *models.Server, ratePerSecond float64) *EmbyClient {
	var limiter *rate.Limiter
	if ratePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(ratePerSecond), 1)
	}
	return &EmbyClient{
		baseURL: strings.TrimSuffix(server.BaseURL(), "/"),
		apiKey:  server.APIKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter: limiter,
	}
}

// Ping tests connectivity to the Emby server.
func (c *EmbyClient) Ping(ctx context.Context) error {
	resp, err := c.doRequest(ctx, http.MethodGet, "/System/Ping", nil)
	if err != nil {
		return fmt.Errorf("emby ping failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("emby ping returned status %d", resp.StatusCode)
	}
	return nil
}

// GetSystemInfo retrieves Emby server system information.
func (c *EmbyClient) GetSystemInfo(ctx context.Context) (*models.EmbySystemInfo, error) {
	var info models.EmbySystemInfo
	if err := c.getJSON(ctx, "/System/Info", nil, &info); err != nil {
		return nil, fmt.Errorf("emby system info: %w", err)
	}
	return &info, nil
}

// GetUsers retrieves all user accounts on the server.
func (c *EmbyClient) GetUsers(ctx context.Context) ([]models.EmbyUser, error) {
	var users []models.EmbyUser
	if err := c.getJSON(ctx, "/Users", nil, &users); err != nil {
		return nil, fmt.Errorf("emby users: %w", err)
	}
	return users, nil
}

// GetPlayedItemsPage retrieves one page of a user's fully-played items,
// most recently played first. The descending DatePlayed order is what
// the engine's high-water-mark stop condition relies on.
func (c *EmbyClient) GetPlayedItemsPage(ctx context.Context, userID string, itemTypes []string, startIndex, limit int) (*models.EmbyItemsPage, error) {
	query := url.Values{
		"Filters":   {"IsPlayed"},
		"SortBy":    {"DatePlayed"},
		"SortOrder": {"Descending"},
		"Recursive": {"true"},
		"Fields":    {itemFields},
	}
	if len(itemTypes) > 0 {
		query.Set("IncludeItemTypes", strings.Join(itemTypes, ","))
	}
	if startIndex > 0 {
		query.Set("StartIndex", strconv.Itoa(startIndex))
	}
	if limit > 0 {
		query.Set("Limit", strconv.Itoa(limit))
	}

	var page models.EmbyItemsPage
	if err := c.getJSON(ctx, "/Users/"+url.PathEscape(userID)+"/Items", query, &page); err != nil {
		return nil, fmt.Errorf("emby played items: %w", err)
	}
	return &page, nil
}

// GetResumableItems retrieves a user's in-progress items. The resumable
// view is small enough that Emby serves it unpaged.
func (c *EmbyClient) GetResumableItems(ctx context.Context, userID string, limit int) ([]models.EmbyItem, error) {
	query := url.Values{
		"Recursive": {"true"},
		"Fields":    {itemFields},
	}
	if limit > 0 {
		query.Set("Limit", strconv.Itoa(limit))
	}

	var page models.EmbyItemsPage
	if err := c.getJSON(ctx, "/Users/"+url.PathEscape(userID)+"/Items/Resumable", query, &page); err != nil {
		return nil, fmt.Errorf("emby resumable items: %w", err)
	}
	return page.Items, nil
}

// GetLibraries retrieves the server's media folders. Used by the admin
// "test server" flow to prove the API key has library access.
func (c *EmbyClient) GetLibraries(ctx context.Context) ([]models.EmbyLibrary, error) {
	var page struct {
		Items []models.EmbyLibrary `json:"Items"`
	}
	if err := c.getJSON(ctx, "/Library/MediaFolders", nil, &page); err != nil {
		return nil, fmt.Errorf("emby libraries: %w", err)
	}
	return page.Items, nil
}

// StopSession sends a stop command to an active playback session.
func (c *EmbyClient) StopSession(ctx context.Context, sessionID string) error {
	endpoint := fmt.Sprintf("/Sessions/%s/Playing/Stop", url.PathEscape(sessionID))

	resp, err := c.doRequest(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return fmt.Errorf("emby stop session request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	// Emby returns 204 No Content on success
	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("emby stop session returned status %d", resp.StatusCode)
	}
	return nil
}

// getJSON performs a GET and decodes a JSON body into out.
func (c *EmbyClient) getJSON(ctx context.Context, endpoint string, query url.Values, out interface{}) error {
	resp, err := c.doRequest(ctx, http.MethodGet, endpoint, query)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("returned status %d (failed to read body)", resp.StatusCode)
		}
		return fmt.Errorf("returned status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// doRequest issues one rate-limited HTTP request with auth headers.
func (c *EmbyClient) doRequest(ctx context.Context, method, endpoint string, query url.Values) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	reqURL := c.baseURL + endpoint
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Emby-Token", c.apiKey)
	req.Header.Set("Accept", "application/json")

	return c.httpClient.Do(req)
}
