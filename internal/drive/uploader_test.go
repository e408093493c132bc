package drive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestUpload(t *testing.T) {
	fileBytes := []byte("%PDF-1.4 receipt")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok-123" {
			t.Errorf("Authorization = %q", got)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}

		var meta struct {
			Name    string   `json:"name"`
			Parents []string `json:"parents"`
		}
		if err := json.Unmarshal([]byte(r.MultipartForm.Value["metadata"][0]), &meta); err != nil {
			t.Fatalf("decode metadata: %v", err)
		}
		if meta.Name != "receipt1.pdf" {
			t.Errorf("metadata name = %q", meta.Name)
		}
		if len(meta.Parents) != 1 || meta.Parents[0] != "folder-1" {
			t.Errorf("metadata parents = %v", meta.Parents)
		}

		file, _, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		defer file.Close()
		got, _ := io.ReadAll(file)
		if !bytes.Equal(got, fileBytes) {
			t.Errorf("file bytes = %q", got)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"drive-id-42"}`))
	}))
	defer srv.Close()

	u := NewUploader(newTestTransport())
	u.endpoint = srv.URL

	id, link, err := u.Upload(context.Background(), "tok-123", fileBytes, "receipt1.pdf", "folder-1")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if id != "drive-id-42" {
		t.Fatalf("id = %q", id)
	}
	if link != "https://drive.google.com/file/d/drive-id-42/view" {
		t.Fatalf("link = %q", link)
	}
}

func TestUploadRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"message":"insufficient permissions"}}`))
	}))
	defer srv.Close()

	u := NewUploader(newTestTransport())
	u.endpoint = srv.URL

	_, _, err := u.Upload(context.Background(), "tok", []byte("x"), "a.jpg", "f")
	if !errors.Is(err, ErrUpload) {
		t.Fatalf("error = %v, want ErrUpload", err)
	}
}

func TestUploadTransportFailurePropagates(t *testing.T) {
	srv := httptest.NewServer(nil)
	srv.Close()

	u := NewUploader(newTestTransport())
	u.endpoint = srv.URL

	_, _, err := u.Upload(context.Background(), "tok", []byte("x"), "a.jpg", "f")
	if err == nil {
		t.Fatal("expected transport error")
	}
	if errors.Is(err, ErrUpload) {
		t.Fatalf("transport failure should not classify as ErrUpload: %v", err)
	}
}

func TestViewLink(t *testing.T) {
	if got := ViewLink("abc"); got != "https://drive.google.com/file/d/abc/view" {
		t.Fatalf("ViewLink = %q", got)
	}
}
