package model

import "time"

// --- v2 create post ---

type PostReq struct {
	Text  string     `json:"text"`
	Media *PostMedia `json:"media,omitempty"`
}
type PostMedia struct {
	MediaIDs []string `json:"media_ids"`
}
type PostResp struct {
	Data struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"data"`
}

// NewPostReq builds the create-post body. An empty mediaID leaves Media nil so
// the "media" key is dropped from the JSON entirely.
func NewPostReq(text, mediaID string) PostReq {
	req := PostReq{Text: text}
	if mediaID != "" {
		req.Media = &PostMedia{MediaIDs: []string{mediaID}}
	}
	return req
}

// --- v1.1 media/upload (simple upload) ---

type MediaUploadResp struct {
	MediaID       int64  `json:"media_id"`
	MediaIDString string `json:"media_id_string"`
}

// --- v2 users / posts (stats view) ---

type User struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
}
type UserResp struct {
	Data User `json:"data"`
}

type PublicMetrics struct {
	LikeCount       int `json:"like_count"`
	RetweetCount    int `json:"retweet_count"`
	ReplyCount      int `json:"reply_count"`
	QuoteCount      int `json:"quote_count"`
	ImpressionCount int `json:"impression_count"`
}

type Post struct {
	ID            string         `json:"id"`
	Text          string         `json:"text"`
	AuthorID      string         `json:"author_id,omitempty"`
	CreatedAt     *time.Time     `json:"created_at,omitempty"`
	PublicMetrics *PublicMetrics `json:"public_metrics,omitempty"`
}
type PostsResp struct {
	Data []Post `json:"data"`
	Meta struct {
		ResultCount int    `json:"result_count"`
		NextToken   string `json:"next_token,omitempty"`
	} `json:"meta"`
}

// --- v2 error body (problem document) ---

type Problem struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
	Type   string `json:"type"`
	Status int    `json:"status"`
}
