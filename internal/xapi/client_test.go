package xapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-querystring/query"

	"github.com/mikequentel/xpost/internal/model"
	"github.com/mikequentel/xpost/internal/oauth"
)

var testCreds = oauth.Credentials{
	ConsumerKey:    "ck",
	ConsumerSecret: "cs",
	AccessToken:    "at",
	AccessSecret:   "as",
}

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	hc := &http.Client{
		Transport: rewriteTransport{base: http.DefaultTransport, target: srv.URL},
		Timeout:   5 * time.Second,
	}
	return New(hc, oauth.NewSigner(testCreds))
}

// verifySignature recomputes the signature from the request the server saw,
// using the nonce and timestamp carried in its header.
func verifySignature(t *testing.T, r *http.Request) {
	t.Helper()
	got := oauth.ParseHeader(r.Header.Get("Authorization"))
	if got == nil {
		t.Errorf("missing OAuth header, got %q", r.Header.Get("Authorization"))
		return
	}
	ts, err := strconv.ParseInt(got[oauth.ParamTimestamp], 10, 64)
	if err != nil {
		t.Errorf("bad timestamp %q", got[oauth.ParamTimestamp])
		return
	}
	s := oauth.NewSigner(testCreds,
		oauth.WithNonce(func() string { return got[oauth.ParamNonce] }),
		oauth.WithClock(func() time.Time { return time.Unix(ts, 0) }),
	)
	params := map[string]string{}
	for k, vs := range r.URL.Query() {
		params[k] = vs[0]
	}
	base := "https://" + r.Header.Get("X-Original-Host") + r.URL.Path
	want := oauth.ParseHeader(s.Sign(r.Method, base, params))[oauth.ParamSignature]
	if got[oauth.ParamSignature] != want {
		t.Errorf("signature %q does not verify for %s %s (want %q)", got[oauth.ParamSignature], r.Method, base, want)
	}
}

// ===================== CreatePost =====================

func TestCreatePost_NoMediaOmitsKey(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		verifySignature(t, r)
		if r.Method != "POST" || r.URL.Path != "/2/tweets" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("expected application/json content-type, got %s", ct)
		}
		body, _ := io.ReadAll(r.Body)
		var raw map[string]json.RawMessage
		if err := json.Unmarshal(body, &raw); err != nil {
			t.Errorf("body is not JSON: %q", body)
			return
		}
		if _, ok := raw["media"]; ok {
			t.Errorf("media key present without an image: %s", body)
		}
		if string(raw["text"]) != `"hello"` {
			t.Errorf("text = %s", raw["text"])
		}
		w.Write([]byte(`{"data":{"id":"42","text":"hello"}}`))
	})

	id, err := c.CreatePost(context.Background(), "hello", "")
	if err != nil {
		t.Fatal(err)
	}
	if id != "42" {
		t.Errorf("id = %q, want 42", id)
	}
}

func TestCreatePost_WithMedia(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		verifySignature(t, r)
		var req model.PostReq
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &req)
		if req.Media == nil || len(req.Media.MediaIDs) != 1 || req.Media.MediaIDs[0] != "m1" {
			t.Errorf("expected media_ids [m1], got: %s", body)
		}
		w.Write([]byte(`{"data":{"id":"111222333"}}`))
	})

	id, err := c.CreatePost(context.Background(), "with image", "m1")
	if err != nil {
		t.Fatal(err)
	}
	if id != "111222333" {
		t.Errorf("id = %q", id)
	}
}

func TestCreatePost_HTTPError(t *testing.T) {
	const body = `{"title":"Forbidden","detail":"not allowed","type":"about:blank","status":403}`
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(403)
		w.Write([]byte(body))
	})

	_, err := c.CreatePost(context.Background(), "fail", "")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T %v", err, err)
	}
	if apiErr.Status != 403 || apiErr.Body != body {
		t.Errorf("status/body = %d %q", apiErr.Status, apiErr.Body)
	}
	if !strings.Contains(err.Error(), "403") || !strings.Contains(err.Error(), "not allowed") {
		t.Errorf("error should carry status and body: %v", err)
	}
}

func TestCreatePost_MalformedJSON(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":`))
	})
	_, err := c.CreatePost(context.Background(), "x", "")
	var decErr *DecodeError
	if !errors.As(err, &decErr) {
		t.Fatalf("expected *DecodeError, got %T %v", err, err)
	}
}

func TestCreatePost_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	target := srv.URL
	srv.Close()

	c := New(&http.Client{Transport: rewriteTransport{base: http.DefaultTransport, target: target}}, oauth.NewSigner(testCreds))
	_, err := c.CreatePost(context.Background(), "x", "")
	var tErr *TransportError
	if !errors.As(err, &tErr) {
		t.Fatalf("expected *TransportError, got %T %v", err, err)
	}
}

// ===================== UploadMedia =====================

func TestUploadMedia_Multipart(t *testing.T) {
	png := []byte("\x89PNG fake")
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		verifySignature(t, r)
		if r.Header.Get("X-Original-Host") != "upload.twitter.com" || r.URL.Path != "/1.1/media/upload.json" {
			t.Errorf("unexpected upload target %s %s", r.Header.Get("X-Original-Host"), r.URL.Path)
		}
		if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
			t.Errorf("expected multipart content type, got %s", r.Header.Get("Content-Type"))
		}
		f, fh, err := r.FormFile("media")
		if err != nil {
			t.Errorf("media part: %v", err)
			return
		}
		got, _ := io.ReadAll(f)
		if string(got) != string(png) || fh.Filename != "image.png" || fh.Header.Get("Content-Type") != "image/png" {
			t.Errorf("unexpected part %q %q %q", got, fh.Filename, fh.Header.Get("Content-Type"))
		}
		json.NewEncoder(w).Encode(model.MediaUploadResp{MediaIDString: "1234567890", MediaID: 1234567890})
	})

	id, err := c.UploadMedia(context.Background(), png)
	if err != nil {
		t.Fatal(err)
	}
	if id != "1234567890" {
		t.Errorf("expected media ID 1234567890, got %s", id)
	}
}

func TestUploadMedia_NumericFallback(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(model.MediaUploadResp{MediaID: 9999999999})
	})
	id, err := c.UploadMedia(context.Background(), []byte("x"))
	if err != nil {
		t.Fatal(err)
	}
	if id != "9999999999" {
		t.Errorf("expected fallback to numeric ID, got %s", id)
	}
}

func TestUploadMedia_MissingMediaID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})
	_, err := c.UploadMedia(context.Background(), []byte("x"))
	if err == nil || !strings.Contains(err.Error(), "missing media_id") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestUploadMedia_Unauthorized(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(401)
		w.Write([]byte(`{"errors":[{"code":89,"message":"Invalid or expired token."}]}`))
	})
	_, err := c.UploadMedia(context.Background(), []byte("x"))
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != 401 {
		t.Fatalf("expected 401 APIError, got %v", err)
	}
}

// ===================== stats endpoints =====================

func TestCurrentUser(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		verifySignature(t, r)
		if r.Method != "GET" || r.URL.Path != "/2/users/me" || r.URL.RawQuery != "" {
			t.Errorf("unexpected request %s %s?%s", r.Method, r.URL.Path, r.URL.RawQuery)
		}
		w.Write([]byte(`{"data":{"id":"7","name":"Mike","username":"mikeq"}}`))
	})
	u, err := c.CurrentUser(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if u.ID != "7" || u.Username != "mikeq" {
		t.Errorf("user = %+v", u)
	}
}

func TestUserPosts_QueryInURLAndSignature(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		verifySignature(t, r)
		if r.URL.Path != "/2/users/7/tweets" {
			t.Errorf("path = %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("max_results") != "5" || q.Get("tweet.fields") != "created_at,public_metrics" {
			t.Errorf("query = %s", r.URL.RawQuery)
		}
		if strings.Contains(r.Header.Get("Authorization"), "max_results") {
			t.Error("query param leaked into Authorization header")
		}
		w.Write([]byte(`{"data":[
			{"id":"2","text":"second","created_at":"2025-01-02T10:00:00.000Z","public_metrics":{"like_count":3,"retweet_count":1,"reply_count":2,"quote_count":0,"impression_count":99}},
			{"id":"1","text":"first"}
		],"meta":{"result_count":2}}`))
	})

	posts, err := c.UserPosts(context.Background(), "7", 1) // clamped up to 5
	if err != nil {
		t.Fatal(err)
	}
	if len(posts) != 2 || posts[0].ID != "2" {
		t.Fatalf("posts = %+v", posts)
	}
	if posts[0].PublicMetrics == nil || posts[0].PublicMetrics.ImpressionCount != 99 {
		t.Errorf("metrics = %+v", posts[0].PublicMetrics)
	}
	if posts[0].CreatedAt == nil || posts[0].CreatedAt.Year() != 2025 {
		t.Errorf("created_at = %v", posts[0].CreatedAt)
	}
	if posts[1].PublicMetrics != nil {
		t.Errorf("expected nil metrics for second post")
	}
}

func TestGet_QueryMatchesSignedValues(t *testing.T) {
	params := searchParams{Query: "conversation_id:1 to:me & more", MaxResults: 10, TweetFields: "created_at"}
	want, err := query.Values(params)
	if err != nil {
		t.Fatal(err)
	}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		verifySignature(t, r)
		if r.URL.RawQuery != want.Encode() {
			t.Errorf("query = %q, want %q", r.URL.RawQuery, want.Encode())
		}
		w.Write([]byte(`{}`))
	})
	var v map[string]any
	if err := c.get(context.Background(), "GET /test", "2/test", params, &v); err != nil {
		t.Fatal(err)
	}

	c = newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		verifySignature(t, r)
		if r.URL.RawQuery != "" {
			t.Errorf("unexpected query %q", r.URL.RawQuery)
		}
		w.Write([]byte(`{}`))
	})
	if err := c.get(context.Background(), "GET /test", "2/test", nil, &v); err != nil {
		t.Fatal(err)
	}
}

func TestPostReplies_Query(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		verifySignature(t, r)
		q := r.URL.Query()
		if r.URL.Path != "/2/tweets/search/recent" || q.Get("query") != "conversation_id:42" || q.Get("max_results") != "100" {
			t.Errorf("unexpected request %s?%s", r.URL.Path, r.URL.RawQuery)
		}
		w.Write([]byte(`{"meta":{"result_count":0}}`))
	})
	replies, err := c.PostReplies(context.Background(), "42", 500)
	if err != nil {
		t.Fatal(err)
	}
	if len(replies) != 0 {
		t.Errorf("replies = %+v", replies)
	}
}

func TestClamp(t *testing.T) {
	if clamp(0, 5, 100) != 5 || clamp(50, 5, 100) != 50 || clamp(101, 5, 100) != 100 {
		t.Error("clamp out of range")
	}
}

// ===================== APIError.Detail =====================

func TestAPIErrorDetail(t *testing.T) {
	tests := []struct {
		name  string
		err   APIError
		wants []string
	}{
		{
			name:  "v2 problem",
			err:   APIError{Endpoint: "POST /2/tweets", Status: 403, Body: `{"title":"Forbidden","detail":"not allowed"}`},
			wants: []string{"403", "Forbidden", "not allowed", "permissions"},
		},
		{
			name:  "v1 errors",
			err:   APIError{Endpoint: "POST /1.1/media/upload.json", Status: 401, Body: `{"errors":[{"code":89,"message":"Invalid or expired token."}]}`},
			wants: []string{"401", "89", "Invalid or expired token"},
		},
		{
			name:  "raw body",
			err:   APIError{Endpoint: "GET /x", Status: 500, Body: "something unexpected"},
			wants: []string{"500", "something unexpected"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Detail()
			for _, w := range tt.wants {
				if !strings.Contains(msg, w) {
					t.Errorf("Detail() = %q, missing %q", msg, w)
				}
			}
		})
	}
}

// ===================== single attempt =====================

func TestNoRetryOnServerError(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(503)
	})
	if _, err := c.CreatePost(context.Background(), "x", ""); err == nil {
		t.Fatal("expected error")
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("server called %d times, want 1", n)
	}
}

// ===================== rewriteTransport =====================

// rewriteTransport redirects all HTTP requests to a local httptest server and
// records the host the client meant to reach, so signatures can be checked
// against the real base URL.
type rewriteTransport struct {
	base   http.RoundTripper
	target string // e.g., "http://127.0.0.1:PORT"
}

func (rt rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.Header.Set("X-Original-Host", req.URL.Host)
	r.URL.Scheme = "http"
	r.URL.Host = strings.TrimPrefix(rt.target, "http://")
	r.Host = ""
	return rt.base.RoundTrip(r)
}
