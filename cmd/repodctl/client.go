package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

// client is a thin wrapper over net/http for talking to a repod server,
// grounded on the teacher's own http.Get/http.NewRequest usage in its
// GitHub-scraping pipeline (main.go's fetchGithubReleases/processPackage).
type client struct {
	baseURL string
	token   string
	http    *http.Client
}

func newClient(baseURL, token string) *client {
	return &client{baseURL: baseURL, token: token, http: &http.Client{Timeout: 60 * time.Second}}
}

// apiError mirrors the {error, message} envelope every repod handler emits.
type apiError struct {
	Status  int
	Code    string `json:"error"`
	Message string `json:"message"`
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%s: %s (http %d)", e.Code, e.Message, e.Status)
}

func (c *client) do(method, path string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequest(method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil {
			return fmt.Errorf("%s %s: http %d", method, path, resp.StatusCode)
		}
		apiErr.Status = resp.StatusCode
		return &apiErr
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *client) getJSON(path string, out any) error {
	return c.do(http.MethodGet, path, nil, "", out)
}

func (c *client) postJSON(path string, body any, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
	}
	return c.do(http.MethodPost, path, &buf, "application/json", out)
}

// postJSONGet issues a GET carrying a JSON body, matching the index-generation
// endpoint's contract (a read-only computation parameterized by a request
// body too structured for query parameters).
func (c *client) postJSONGet(path string, body any, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
	}
	return c.do(http.MethodGet, path, &buf, "application/json", out)
}

// uploadPackage posts a .deb file as a multipart/form-data "file" field.
func (c *client) uploadPackage(path string, data []byte, out any) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "package.deb")
	if err != nil {
		return fmt.Errorf("building multipart body: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return fmt.Errorf("writing package bytes: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("closing multipart body: %w", err)
	}
	return c.do(http.MethodPost, path, &buf, mw.FormDataContentType(), out)
}
