package gmail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/pysugar/gmail-agent-nexus/internal/config"
	"github.com/pysugar/gmail-agent-nexus/internal/logging"
	"github.com/pysugar/gmail-agent-nexus/internal/metrics"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// ErrUpstreamFetch marks a Gmail API failure after a valid token was obtained.
var ErrUpstreamFetch = errors.New("gmail fetch failed")

// MaxResultsLimit bounds how many messages one listing may return.
const MaxResultsLimit = 50

// metadataConcurrency bounds parallel metadata fetches per listing.
const metadataConcurrency = 8

const userID = "me"

// Client calls the Gmail API on behalf of whichever access token it is given.
// It keeps no credentials of its own.
type Client struct {
	endpoint  string
	timeout   time.Duration
	transport http.RoundTripper
	logger    *slog.Logger
}

// NewClient builds a Client. An empty Google.GmailAPIBase uses the library's
// default endpoint.
func NewClient(cfg *config.Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	endpoint := strings.TrimSpace(cfg.Google.GmailAPIBase)
	if endpoint != "" && !strings.HasSuffix(endpoint, "/") {
		endpoint += "/"
	}
	return &Client{
		endpoint:  endpoint,
		timeout:   cfg.Google.HTTPTimeout,
		transport: http.DefaultTransport,
		logger:    logger,
	}
}

func (c *Client) service(ctx context.Context, accessToken string) (*gmail.Service, error) {
	hc := &http.Client{
		Timeout: c.timeout,
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}),
			Base:   c.transport,
		},
	}
	opts := []option.ClientOption{option.WithHTTPClient(hc)}
	if c.endpoint != "" {
		opts = append(opts, option.WithEndpoint(c.endpoint))
	}
	return gmail.NewService(ctx, opts...)
}

// call runs fn under the per-call timeout and records metrics.
func (c *Client) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	err := fn(ctx)
	metrics.RecordGmail(op, err == nil, time.Since(start).Seconds())
	if err != nil {
		c.logger.ErrorContext(ctx, "gmail call failed", logging.Operation(op), logging.Err(err))
		return fmt.Errorf("%w: %s: %v", ErrUpstreamFetch, op, err)
	}
	return nil
}

// ListMessages returns up to maxResults message references matching q.
func (c *Client) ListMessages(ctx context.Context, accessToken, q string, maxResults int64) ([]*gmail.Message, error) {
	var msgs []*gmail.Message
	err := c.call(ctx, "list", func(ctx context.Context) error {
		svc, err := c.service(ctx, accessToken)
		if err != nil {
			return err
		}
		req := svc.Users.Messages.List(userID).MaxResults(maxResults).Context(ctx)
		if q != "" {
			req = req.Q(q)
		}
		res, err := req.Do()
		if err != nil {
			return err
		}
		msgs = res.Messages
		return nil
	})
	return msgs, err
}

// GetMessageMetadata fetches one message with the From, Subject and Date headers.
func (c *Client) GetMessageMetadata(ctx context.Context, accessToken, id string) (*gmail.Message, error) {
	var msg *gmail.Message
	err := c.call(ctx, "get", func(ctx context.Context) error {
		svc, err := c.service(ctx, accessToken)
		if err != nil {
			return err
		}
		msg, err = svc.Users.Messages.Get(userID, id).
			Format("metadata").
			MetadataHeaders(metadataHeaders...).
			Context(ctx).
			Do()
		return err
	})
	return msg, err
}

// ProfileEmail returns the mailbox address behind accessToken.
func (c *Client) ProfileEmail(ctx context.Context, accessToken string) (string, error) {
	var email string
	err := c.call(ctx, "profile", func(ctx context.Context) error {
		svc, err := c.service(ctx, accessToken)
		if err != nil {
			return err
		}
		p, err := svc.Users.GetProfile(userID).Context(ctx).Do()
		if err != nil {
			return err
		}
		email = p.EmailAddress
		return nil
	})
	return email, err
}

// Summaries lists messages matching q and fetches their metadata. Results
// keep the listing order; any single failure fails the whole call.
func (c *Client) Summaries(ctx context.Context, accessToken, q string, maxResults int64) ([]Summary, error) {
	refs, err := c.ListMessages(ctx, accessToken, q, maxResults)
	if err != nil {
		return nil, err
	}

	out := make([]Summary, len(refs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(metadataConcurrency)
	for i, ref := range refs {
		g.Go(func() error {
			msg, err := c.GetMessageMetadata(gctx, accessToken, ref.Id)
			if err != nil {
				return err
			}
			out[i] = ToSummary(msg)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// GetSummary fetches and normalizes a single message.
func (c *Client) GetSummary(ctx context.Context, accessToken, id string) (*Summary, error) {
	msg, err := c.GetMessageMetadata(ctx, accessToken, id)
	if err != nil {
		return nil, err
	}
	s := ToSummary(msg)
	return &s, nil
}

// ClampMaxResults bounds n to [1, MaxResultsLimit], using def when n is 0.
func ClampMaxResults(n, def int64) int64 {
	if n == 0 {
		n = def
	}
	if n < 1 {
		return 1
	}
	if n > MaxResultsLimit {
		return MaxResultsLimit
	}
	return n
}
