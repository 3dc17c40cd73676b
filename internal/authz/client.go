// Package authz is the boundary to the authorization/pre-approval
// collaborator. The engine only asks one question: is this benefit authorized
// for this member on this service date. Lookups are bounded by a hard timeout
// so a slow authorization service can never hold an accumulator lock.
package authz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	retryablehttp "github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

// Decision is the collaborator's answer for one (member, benefit, date).
type Decision struct {
	Required       bool  `json:"required"`
	Approved       bool  `json:"approved"`
	ApprovedAmount int64 `json:"approved_amount"`
}

// NotRequired is the short-circuit decision for benefits without an
// authorization requirement.
var NotRequired = Decision{Required: false}

type Client interface {
	CheckAuthorization(ctx context.Context, memberID snowflake.ID, benefitCode string, serviceDate time.Time) (Decision, error)
}

// ErrUnavailable marks a transport-level failure; adjudication surfaces it
// as a retryable dependency error without committing anything.
var ErrUnavailable = errors.New("authorization_service_unavailable")

type httpClient struct {
	base   string
	client *retryablehttp.Client
	log    *zap.Logger
}

// NewHTTPClient builds the collaborator client with retries and a request
// timeout. timeout bounds the whole call including retries.
func NewHTTPClient(baseURL string, timeout time.Duration, log *zap.Logger) Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 2
	rc.RetryWaitMin = 50 * time.Millisecond
	rc.RetryWaitMax = 500 * time.Millisecond
	rc.HTTPClient.Timeout = timeout
	rc.Logger = nil

	return &httpClient{
		base:   strings.TrimRight(baseURL, "/"),
		client: rc,
		log:    log.Named("authz.client"),
	}
}

func (c *httpClient) CheckAuthorization(ctx context.Context, memberID snowflake.ID, benefitCode string, serviceDate time.Time) (Decision, error) {
	endpoint := fmt.Sprintf("%s/v1/authorizations/check?member_id=%s&benefit_code=%s&service_date=%s",
		c.base,
		memberID.String(),
		url.QueryEscape(benefitCode),
		serviceDate.Format("2006-01-02"),
	)

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Decision{}, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.log.Warn("authorization lookup failed",
			zap.String("member_id", memberID.String()),
			zap.String("benefit_code", benefitCode),
			zap.Error(err),
		)
		return Decision{}, ErrUnavailable
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var decision Decision
		if err := json.NewDecoder(resp.Body).Decode(&decision); err != nil {
			return Decision{}, fmt.Errorf("decode authorization response: %w", err)
		}
		decision.Required = true
		return decision, nil
	case http.StatusNotFound:
		// No authorization on file.
		return Decision{Required: true, Approved: false}, nil
	default:
		return Decision{}, ErrUnavailable
	}
}

// staticClient answers from a fixed table; used when no collaborator URL is
// configured and in tests.
type staticClient struct {
	decisions map[string]Decision
}

// NewStaticClient returns a client that approves everything unless a
// decision is registered for "memberID/benefitCode".
func NewStaticClient(decisions map[string]Decision) Client {
	return &staticClient{decisions: decisions}
}

func (c *staticClient) CheckAuthorization(_ context.Context, memberID snowflake.ID, benefitCode string, _ time.Time) (Decision, error) {
	if c.decisions != nil {
		if d, ok := c.decisions[memberID.String()+"/"+benefitCode]; ok {
			return d, nil
		}
	}
	return Decision{Required: true, Approved: true}, nil
}

func StaticKey(memberID snowflake.ID, benefitCode string) string {
	return memberID.String() + "/" + benefitCode
}
