package apiclient

import (
	"context"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strconv"
)

// Download is an export streamed from the backend. The caller must close
// Body.
type Download struct {
	Body          io.ReadCloser
	ContentType   string
	Filename      string
	ContentLength int64
}

// Download requests a server-generated file. The body is handed over
// unread so large exports are never buffered.
func (c *Client) Download(ctx context.Context, method, p string, query url.Values, body any) (*Download, error) {
	if method == "" {
		method = http.MethodGet
	}
	resp, err := c.send(ctx, Request{Method: method, Path: p, Query: query, Body: body})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		return nil, Classify(parseAPIError(resp.StatusCode, raw))
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	size, _ := strconv.ParseInt(resp.Header.Get("Content-Length"), 10, 64)
	if size == 0 {
		size = -1
	}
	return &Download{
		Body:          resp.Body,
		ContentType:   contentType,
		Filename:      filename(resp.Header.Get("Content-Disposition"), p, contentType),
		ContentLength: size,
	}, nil
}

func filename(disposition, p, contentType string) string {
	if disposition != "" {
		if _, params, err := mime.ParseMediaType(disposition); err == nil {
			if name := params["filename"]; name != "" {
				return path.Base(name)
			}
		}
	}
	name := path.Base(path.Clean("/" + p))
	if name == "/" || name == "." {
		name = "export"
	}
	if path.Ext(name) == "" {
		if exts, _ := mime.ExtensionsByType(contentType); len(exts) > 0 {
			name += exts[0]
		}
	}
	return name
}
