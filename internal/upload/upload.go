// Package upload posts captured documents to a remote HTTP endpoint.
package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
)

// ErrRejected is returned when the endpoint answers with a non-2xx status.
var ErrRejected = errors.New("upload rejected")

// Document is what gets uploaded.
type Document struct {
	ID          string
	Name        string
	ContentType string
	Mode        string
	Width       int
	Height      int
	Data        []byte
}

// Receipt is the endpoint's JSON answer, when it gives one.
type Receipt struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Config configures the uploader.
type Config struct {
	URL     string
	Timeout time.Duration
	Retries int
	Headers map[string]string
}

// Uploader sends documents as multipart/form-data with the image in the
// "file" field and its metadata in plain form fields.
type Uploader struct {
	url    string
	client *resty.Client
}

// New creates an Uploader for cfg.URL.
func New(cfg Config) *Uploader {
	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.Retries).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetRetryResetReaders(true).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= 500
		}).
		SetHeaders(cfg.Headers)

	return &Uploader{url: cfg.URL, client: client}
}

// URL returns the endpoint.
func (u *Uploader) URL() string {
	return u.url
}

// Upload posts doc and returns the endpoint's receipt. A response without a
// JSON body yields an empty receipt.
func (u *Uploader) Upload(ctx context.Context, doc Document) (*Receipt, error) {
	var receipt Receipt

	resp, err := u.client.R().
		SetContext(ctx).
		SetMultipartField("file", doc.Name, doc.ContentType, bytes.NewReader(doc.Data)).
		SetMultipartFormData(map[string]string{
			"id":     doc.ID,
			"mode":   doc.Mode,
			"width":  strconv.Itoa(doc.Width),
			"height": strconv.Itoa(doc.Height),
		}).
		SetResult(&receipt).
		Post(u.url)
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", doc.ID, err)
	}

	if resp.IsError() {
		return nil, fmt.Errorf("%w: %s: %s", ErrRejected, resp.Status(), resp.String())
	}

	return &receipt, nil
}
