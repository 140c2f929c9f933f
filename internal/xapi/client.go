// Package xapi is the transport layer for the X API. Every request is signed
// with OAuth1.0a user context and attempted exactly once.
package xapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"time"

	"github.com/dghubble/sling"
	"github.com/google/go-querystring/query"

	"github.com/mikequentel/xpost/internal/logger"
	"github.com/mikequentel/xpost/internal/model"
	"github.com/mikequentel/xpost/internal/oauth"
)

const (
	UploadURL = "https://upload.twitter.com/1.1/media/upload.json"
	APIBase   = "https://api.twitter.com/"

	postFields = "created_at,public_metrics"
)

// Client issues signed requests. It is safe for concurrent use, although the
// post pipeline only ever has one request in flight.
type Client struct {
	http   *http.Client
	signer *oauth.Signer
	base   *sling.Sling
	log    *logger.Logger
}

func New(httpClient *http.Client, signer *oauth.Signer) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		http:   httpClient,
		signer: signer,
		base:   sling.New().Base(APIBase).Set("User-Agent", "xpost"),
		log:    logger.Named("xapi"),
	}
}

// ===================== posting =====================

// UploadMedia sends PNG bytes to the v1.1 simple upload endpoint and returns
// the media id to attach to a post.
func (c *Client) UploadMedia(ctx context.Context, png []byte) (string, error) {
	const endpoint = "POST /1.1/media/upload.json"

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", `form-data; name="media"; filename="image.png"`)
	hdr.Set("Content-Type", "image/png")
	part, err := mw.CreatePart(hdr)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(png); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := c.base.New().Post(UploadURL).
		Set("Content-Type", mw.FormDataContentType()).
		Body(&body).
		Request()
	if err != nil {
		return "", err
	}

	var resp model.MediaUploadResp
	if err := c.do(ctx, endpoint, req, nil, &resp); err != nil {
		return "", err
	}
	if resp.MediaIDString != "" {
		return resp.MediaIDString, nil
	}
	if resp.MediaID != 0 {
		return strconv.FormatInt(resp.MediaID, 10), nil
	}
	return "", &DecodeError{Endpoint: endpoint, Err: errors.New("missing media_id in response")}
}

// CreatePost publishes text, attaching mediaID when it is non-empty, and
// returns the new post id.
func (c *Client) CreatePost(ctx context.Context, text, mediaID string) (string, error) {
	const endpoint = "POST /2/tweets"

	req, err := c.base.New().Post("2/tweets").BodyJSON(model.NewPostReq(text, mediaID)).Request()
	if err != nil {
		return "", err
	}

	var resp model.PostResp
	if err := c.do(ctx, endpoint, req, nil, &resp); err != nil {
		return "", err
	}
	if resp.Data.ID == "" {
		return "", &DecodeError{Endpoint: endpoint, Err: errors.New("missing data.id in response")}
	}
	return resp.Data.ID, nil
}

// ===================== stats =====================

type timelineParams struct {
	MaxResults  int    `url:"max_results,omitempty"`
	TweetFields string `url:"tweet.fields,omitempty"`
}

type searchParams struct {
	Query       string `url:"query"`
	MaxResults  int    `url:"max_results,omitempty"`
	TweetFields string `url:"tweet.fields,omitempty"`
}

// CurrentUser returns the account the access token belongs to.
func (c *Client) CurrentUser(ctx context.Context) (model.User, error) {
	var resp model.UserResp
	if err := c.get(ctx, "GET /2/users/me", "2/users/me", nil, &resp); err != nil {
		return model.User{}, err
	}
	return resp.Data, nil
}

// UserPosts returns the user's most recent posts with public metrics.
// maxResults is clamped to the endpoint's 5..100 range.
func (c *Client) UserPosts(ctx context.Context, userID string, maxResults int) ([]model.Post, error) {
	params := timelineParams{MaxResults: clamp(maxResults, 5, 100), TweetFields: postFields}
	var resp model.PostsResp
	path := "2/users/" + url.PathEscape(userID) + "/tweets"
	if err := c.get(ctx, "GET /2/users/:id/tweets", path, params, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// PostReplies searches the recent conversation of postID.
// maxResults is clamped to the endpoint's 10..100 range.
func (c *Client) PostReplies(ctx context.Context, postID string, maxResults int) ([]model.Post, error) {
	params := searchParams{
		Query:       "conversation_id:" + postID,
		MaxResults:  clamp(maxResults, 10, 100),
		TweetFields: postFields + ",author_id",
	}
	var resp model.PostsResp
	if err := c.get(ctx, "GET /2/tweets/search/recent", "2/tweets/search/recent", params, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// ===================== transport =====================

func (c *Client) get(ctx context.Context, endpoint, path string, params any, v any) error {
	var values url.Values
	if params != nil {
		var err error
		if values, err = query.Values(params); err != nil {
			return fmt.Errorf("%s: encode params: %w", endpoint, err)
		}
	}
	req, err := c.base.New().Get(path).Request()
	if err != nil {
		return err
	}
	req.URL.RawQuery = values.Encode()
	c.log.Debug().Str("endpoint", endpoint).Str("query", req.URL.RawQuery).Msg("request")
	return c.do(ctx, endpoint, req, values, v)
}

// do signs req over values, which must be exactly what its URL query holds,
// sends it once and classifies the response.
func (c *Client) do(ctx context.Context, endpoint string, req *http.Request, values url.Values, v any) error {
	req = req.WithContext(ctx)
	c.sign(req, values)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn().Err(err).Str("endpoint", endpoint).Msg("request failed")
		return &TransportError{Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Endpoint: endpoint, Err: err}
	}
	c.log.Debug().
		Str("endpoint", endpoint).
		Int("status", resp.StatusCode).
		Dur("took", time.Since(start)).
		Msg("response")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Endpoint: endpoint, Status: resp.StatusCode, Body: string(body)}
	}
	if v == nil {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return &DecodeError{Endpoint: endpoint, Body: string(body), Err: err}
	}
	return nil
}

// sign covers exactly the query values sent in the URL. The body never
// takes part.
func (c *Client) sign(req *http.Request, values url.Values) {
	params := make(map[string]string, len(values))
	for k, vs := range values {
		if len(vs) > 0 {
			params[k] = vs[0]
		}
	}
	u := *req.URL
	u.RawQuery = ""
	u.Fragment = ""
	req.Header.Set("Authorization", c.signer.Sign(req.Method, u.String(), params))
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
