package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/brettboylen/social-analytics/models"
)

const (
	defaultBaseURL        = "http://20.244.56.144/evaluation-service"
	defaultRequestsPerMin = 1200
	maxErrorBodyBytes     = 1024
)

// TokenSource supplies the bearer token for outgoing requests
type TokenSource interface {
	Token() (string, error)
}

// Client is a client for the evaluation service's social media API
type Client struct {
	baseURL    string
	tokens     TokenSource
	httpClient *http.Client
	limiter    *rate.Limiter
	log        *logrus.Logger
}

type usersResponse struct {
	Users *[]models.User `json:"users"`
}

type postsResponse struct {
	Posts *[]models.Post `json:"posts"`
}

type commentsResponse struct {
	Comments *[]models.Comment `json:"comments"`
}

// NewClient creates a new evaluation API client
func NewClient(baseURL string, tokens TokenSource, maxRequestsPerMinute int, log *logrus.Logger) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if maxRequestsPerMinute <= 0 {
		maxRequestsPerMinute = defaultRequestsPerMin
	}

	// use 95% of the allowance, no burst
	perSecond := float64(maxRequestsPerMinute) / 60.0 * 0.95

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		tokens:     tokens,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(perSecond), 1),
		log:        log,
	}
}

// GetUsers fetches every user
func (c *Client) GetUsers(ctx context.Context) ([]models.User, error) {
	var resp usersResponse
	if err := c.get(ctx, "get users", "/users", &resp); err != nil {
		return nil, err
	}
	if resp.Users == nil {
		return nil, &MalformedResponseError{Op: "get users", Err: errors.New(`missing "users" field`)}
	}
	for i, user := range *resp.Users {
		if user.ID == "" {
			return nil, &MalformedResponseError{Op: "get users", Err: fmt.Errorf("user at index %d has no id", i)}
		}
	}
	return *resp.Users, nil
}

// GetPosts fetches the posts written by a user
func (c *Client) GetPosts(ctx context.Context, userID string) ([]models.Post, error) {
	op := fmt.Sprintf("get posts for user %s", userID)

	var resp postsResponse
	if err := c.get(ctx, op, "/users/"+url.PathEscape(userID)+"/posts", &resp); err != nil {
		return nil, err
	}
	if resp.Posts == nil {
		return nil, &MalformedResponseError{Op: op, Err: errors.New(`missing "posts" field`)}
	}
	return *resp.Posts, nil
}

// GetComments fetches the comments on a post
func (c *Client) GetComments(ctx context.Context, postID int) ([]models.Comment, error) {
	op := fmt.Sprintf("get comments for post %d", postID)

	var resp commentsResponse
	if err := c.get(ctx, op, "/posts/"+strconv.Itoa(postID)+"/comments", &resp); err != nil {
		return nil, err
	}
	if resp.Comments == nil {
		return nil, &MalformedResponseError{Op: op, Err: errors.New(`missing "comments" field`)}
	}
	return *resp.Comments, nil
}

// get issues an authorized GET and decodes the JSON body into out
func (c *Client) get(ctx context.Context, op, path string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return &NetworkError{Op: op, Err: fmt.Errorf("waiting for rate limiter: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	token, err := c.tokens.Token()
	if err != nil {
		return fmt.Errorf("failed to read access token: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Accept", "application/json")

	c.log.WithFields(logrus.Fields{
		"op":   op,
		"path": path,
	}).Debug("Requesting evaluation API")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		c.log.WithFields(logrus.Fields{
			"op":            op,
			"status_code":   resp.StatusCode,
			"response_body": string(body),
		}).Error("Evaluation API error response")

		netErr := &NetworkError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Err:        errors.New(strings.TrimSpace(string(body))),
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			netErr.RetryAfter = time.Duration(getHeaderAsInt(resp.Header, "Retry-After")) * time.Second
		}
		return netErr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &MalformedResponseError{Op: op, Err: err}
	}

	return nil
}

func getHeaderAsInt(header http.Header, name string) int {
	value := header.Get(name)
	if value == "" {
		return 0
	}

	intValue, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}

	return intValue
}
