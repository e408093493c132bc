package drive

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
)

// ErrUpload marks a rejected upload; the wrapped message carries the
// remote error payload for the logs.
var ErrUpload = errors.New("drive: upload rejected")

// UploadURL is the multipart upload endpoint of the Drive v3 API.
const UploadURL = "https://www.googleapis.com/upload/drive/v3/files?uploadType=multipart"

// Uploader sends a single binary payload to Drive as a two-part multipart
// request: a JSON metadata part naming the file and its parent folder,
// followed by the file bytes.
type Uploader struct {
	http     httpDoer
	endpoint string
}

// httpDoer is the slice of the retrying client the uploader needs.
type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

func NewUploader(hc httpDoer) *Uploader {
	return &Uploader{
		http:     hc,
		endpoint: UploadURL,
	}
}

// Upload posts data under fileName into the given parent folder using the
// supplied bearer token. On success it returns the remote file ID and the
// deterministic view link for it.
func (u *Uploader) Upload(ctx context.Context, token string, data []byte, fileName, folderID string) (fileID, webViewLink string, err error) {
	body, contentType, err := buildMultipartBody(data, fileName, folderID)
	if err != nil {
		return "", "", fmt.Errorf("drive: build upload body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", "", fmt.Errorf("drive: build upload request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := u.http.Do(req)
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", "", fmt.Errorf("%w: read response: %v", ErrUpload, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", "", fmt.Errorf("%w: HTTP %d: %s", ErrUpload, resp.StatusCode, respBody)
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", "", fmt.Errorf("%w: decode response: %v", ErrUpload, err)
	}
	if result.ID == "" {
		return "", "", fmt.Errorf("%w: response contains no file id", ErrUpload)
	}
	return result.ID, ViewLink(result.ID), nil
}

// ViewLink builds the browser link for an uploaded file.
func ViewLink(fileID string) string {
	return fmt.Sprintf("https://drive.google.com/file/d/%s/view", fileID)
}

func buildMultipartBody(data []byte, fileName, folderID string) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	metaHeader := textproto.MIMEHeader{}
	metaHeader.Set("Content-Disposition", `form-data; name="metadata"`)
	metaHeader.Set("Content-Type", "application/json")
	metaPart, err := w.CreatePart(metaHeader)
	if err != nil {
		return nil, "", err
	}
	meta := map[string]any{
		"name":    fileName,
		"parents": []string{folderID},
	}
	if err := json.NewEncoder(metaPart).Encode(meta); err != nil {
		return nil, "", err
	}

	filePart, err := w.CreateFormFile("file", fileName)
	if err != nil {
		return nil, "", err
	}
	if _, err := filePart.Write(data); err != nil {
		return nil, "", err
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}
