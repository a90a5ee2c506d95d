package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	adminUsersPath  = "/auth/v1/admin/users"
	defaultPageSize = 100
	maxPages        = 1000 // hard stop against a directory that never drains
)

// GoTrueClient lists principals from a GoTrue-style auth admin API using a
// service-role key. The key bypasses row-level access control, so it is
// required configuration and injected at construction.
type GoTrueClient struct {
	baseURL    string
	serviceKey string
	pageSize   int
	httpClient *http.Client
}

// NewGoTrueClient creates a directory client for the given project URL.
func NewGoTrueClient(baseURL, serviceKey string) *GoTrueClient {
	return &GoTrueClient{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		serviceKey: strings.TrimSpace(serviceKey),
		pageSize:   defaultPageSize,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type adminUsersResponse struct {
	Users []Principal `json:"users"`
}

// ListPrincipals pages through the admin users endpoint until a page comes
// back short. Processing order is whatever order the directory returns.
func (c *GoTrueClient) ListPrincipals(ctx context.Context) ([]Principal, error) {
	var principals []Principal
	for page := 1; page <= maxPages; page++ {
		users, err := c.listPage(ctx, page)
		if err != nil {
			return nil, err
		}
		principals = append(principals, users...)
		if len(users) < c.pageSize {
			return principals, nil
		}
	}
	return nil, fmt.Errorf("directory listing did not terminate after %d pages", maxPages)
}

func (c *GoTrueClient) listPage(ctx context.Context, page int) ([]Principal, error) {
	endpoint := c.baseURL + adminUsersPath + "?" + url.Values{
		"page":     []string{strconv.Itoa(page)},
		"per_page": []string{strconv.Itoa(c.pageSize)},
	}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build directory request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.serviceKey)
	req.Header.Set("apikey", c.serviceKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list directory page %d: %w", page, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("directory returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed adminUsersResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode directory page %d: %w", page, err)
	}
	return parsed.Users, nil
}
