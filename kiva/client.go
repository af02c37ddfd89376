package kiva

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const DefaultBaseURL = "https://api.kivaws.org/v1"
const DefaultAppId = "com.kivanewyork.query"

// Kiva rate limits per app id, not per connection, so every client shares one lock
var httpMutex sync.Mutex

// Fetcher returns the raw json body found at a fully built query url
type Fetcher interface {
	Fetch(ctx context.Context, queryURL string) ([]byte, error)
}

type Client struct {
	httpClient       http.Client
	baseURL          string
	appId            string
	serverErrorDelay time.Duration
	logger           *zap.Logger
}

func NewClient(appId string) (Client, error) {
	transport := &http.Transport{}

	envProxy := os.Getenv("HTTP_PROXY")
	if envProxy != "" {
		proxy, err := url.Parse(envProxy)
		if err != nil {
			return Client{}, fmt.Errorf("unable to parse HTTP_PROXY as a url: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxy)
	}

	if appId == "" {
		appId = DefaultAppId
	}

	return Client{
		httpClient: http.Client{
			Transport: transport,
			Timeout:   time.Second * 10,
		},
		baseURL:          DefaultBaseURL,
		appId:            appId,
		serverErrorDelay: 2 * time.Second,
		logger:           zap.NewNop(),
	}, nil
}

func (c *Client) SetBaseURL(baseURL string) {
	c.baseURL = strings.TrimRight(baseURL, "/")
}

func (c *Client) SetLogger(logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c.logger = logger
}

// SetServerErrorDelay changes how long to wait before retrying a request that failed with a 500
func (c *Client) SetServerErrorDelay(d time.Duration) {
	c.serverErrorDelay = d
}

func (c Client) BaseURL() string {
	return c.baseURL
}

func executeRequest(ctx context.Context, client Client, method string, url string) ([]byte, error) {
	httpMutex.Lock()
	defer httpMutex.Unlock()

	attemptCount := 0
	for {
		attemptCount += 1

		if attemptCount > 3 {
			return nil, TooManyRetriesError
		}

		request, err := http.NewRequestWithContext(ctx, method, url, nil)
		if err != nil {
			return nil, fmt.Errorf("unable to create a new request with context: %w", err)
		}
		request.Header.Add("Accept", "application/json")

		response, err := client.httpClient.Do(request)
		if err != nil {
			return nil, fmt.Errorf("unable to execute http request: %w", err)
		}

		responseBody, err := io.ReadAll(response.Body)
		response.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("unable to read response body: %w", err)
		}

		if response.StatusCode >= 200 && response.StatusCode < 300 {
			if !json.Valid(responseBody) {
				client.logger.Warn("response body is not valid json", zap.String("url", url))
				return nil, UnableToDecodeResponseError
			}

			return responseBody, nil
		}

		if response.StatusCode == http.StatusServiceUnavailable {
			return nil, MaintenanceModeError
		}

		if response.StatusCode == http.StatusUnauthorized {
			return nil, UnauthorizedError
		}

		if response.StatusCode == http.StatusTooManyRequests {
			retryAfter, err := strconv.ParseFloat(response.Header.Get("retry-after"), 64)
			if err != nil {
				return nil, fmt.Errorf("unable to parse retry-after header as float64: %w", err)
			}

			waitTime := time.Duration(retryAfter*1000) * time.Millisecond
			client.logger.Info("rate limited, waiting before trying again",
				zap.Duration("wait", waitTime),
				zap.String("method", method),
				zap.String("url", url),
			)

			if err := sleep(ctx, waitTime); err != nil {
				return nil, err
			}
			continue
		}

		if response.StatusCode == http.StatusInternalServerError {
			client.logger.Info("caught internal server error, retrying",
				zap.Duration("wait", client.serverErrorDelay),
				zap.ByteString("body", responseBody),
			)

			if err := sleep(ctx, client.serverErrorDelay); err != nil {
				return nil, err
			}
			continue
		}

		e := &APIError{StatusCode: response.StatusCode}
		if err := json.Unmarshal(responseBody, e); err != nil {
			client.logger.Error("unable to unmarshal error response", zap.ByteString("body", responseBody))
			return nil, fmt.Errorf("unable to unmarshal response body with status %d: %w", response.StatusCode, err)
		}
		return nil, e
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Fetch performs a GET against an already built query url
func (c Client) Fetch(ctx context.Context, queryURL string) ([]byte, error) {
	body, err := executeRequest(ctx, c, http.MethodGet, queryURL)
	if err != nil {
		return nil, fmt.Errorf("unable to fetch \"%s\": %w", queryURL, err)
	}

	return body, nil
}

func (c Client) buildURL(path string, params url.Values) string {
	if params == nil {
		params = url.Values{}
	}
	params.Set("app_id", c.appId)

	return c.baseURL + path + "?" + params.Encode()
}

func joinIds(ids []string) string {
	return strings.Join(ids, ",")
}

// ////////////////////////////////////////////
// /// LENDERS
// ////////////////////////////////////////////

func (c Client) LendersSearchURL(page int) string {
	return c.buildURL("/lenders/search.json", url.Values{
		"country_code": {"us"},
		"sort_by":      {"oldest"},
		"page":         {strconv.Itoa(page)},
	})
}

func (c Client) NewestLendersURL(page int) string {
	return c.buildURL("/lenders/newest.json", url.Values{
		"page": {strconv.Itoa(page)},
	})
}

func (c Client) LendersByIdURL(ids ...string) string {
	return c.buildURL("/lenders/"+joinIds(ids)+".json", nil)
}

func (c Client) TeamLendersURL(teamId int, page int) string {
	return c.buildURL(fmt.Sprintf("/teams/%d/lenders.json", teamId), url.Values{
		"sort_by": {"oldest"},
		"page":    {strconv.Itoa(page)},
	})
}

func (c Client) SearchLenders(ctx context.Context, page int) (LendersResponse, error) {
	body, err := c.Fetch(ctx, c.LendersSearchURL(page))
	if err != nil {
		return LendersResponse{}, fmt.Errorf("unable to search lenders page %d: %w", page, err)
	}

	return DecodeLendersPage(body)
}

func (c Client) GetNewestLenders(ctx context.Context, page int) (LendersResponse, error) {
	body, err := c.Fetch(ctx, c.NewestLendersURL(page))
	if err != nil {
		return LendersResponse{}, fmt.Errorf("unable to get newest lenders page %d: %w", page, err)
	}

	return DecodeLendersPage(body)
}

func (c Client) GetLenders(ctx context.Context, ids ...string) (LendersResponse, error) {
	if len(ids) == 0 {
		return LendersResponse{}, MissingIdsError
	}

	body, err := c.Fetch(ctx, c.LendersByIdURL(ids...))
	if err != nil {
		return LendersResponse{}, fmt.Errorf("unable to get lenders \"%s\": %w", joinIds(ids), err)
	}

	return DecodeLendersPage(body)
}

func (c Client) GetTeamLenders(ctx context.Context, teamId int, page int) (LendersResponse, error) {
	body, err := c.Fetch(ctx, c.TeamLendersURL(teamId, page))
	if err != nil {
		return LendersResponse{}, fmt.Errorf("unable to get team %d lenders page %d: %w", teamId, page, err)
	}

	return DecodeLendersPage(body)
}

// ////////////////////////////////////////////
// /// LENDING ACTIONS
// ////////////////////////////////////////////

func (c Client) RecentLendingActionsURL() string {
	return c.buildURL("/lending_actions/recent.json", nil)
}

func (c Client) GetRecentLendingActions(ctx context.Context) (LendingActionsResponse, error) {
	body, err := c.Fetch(ctx, c.RecentLendingActionsURL())
	if err != nil {
		return LendingActionsResponse{}, fmt.Errorf("unable to get recent lending actions: %w", err)
	}

	return DecodeLendingActionsPage(body)
}

// ////////////////////////////////////////////
// /// LOANS
// ////////////////////////////////////////////

func (c Client) NewestLoansURL(page int) string {
	return c.buildURL("/loans/newest.json", url.Values{
		"page": {strconv.Itoa(page)},
	})
}

func (c Client) LoansByIdURL(ids ...string) string {
	return c.buildURL("/loans/"+joinIds(ids)+".json", nil)
}

func (c Client) GetNewestLoans(ctx context.Context, page int) (LoansResponse, error) {
	body, err := c.Fetch(ctx, c.NewestLoansURL(page))
	if err != nil {
		return LoansResponse{}, fmt.Errorf("unable to get newest loans page %d: %w", page, err)
	}

	return DecodeLoansPage(body)
}

func (c Client) GetLoans(ctx context.Context, ids ...string) (LoansResponse, error) {
	if len(ids) == 0 {
		return LoansResponse{}, MissingIdsError
	}

	body, err := c.Fetch(ctx, c.LoansByIdURL(ids...))
	if err != nil {
		return LoansResponse{}, fmt.Errorf("unable to get loans \"%s\": %w", joinIds(ids), err)
	}

	return DecodeLoansPage(body)
}
