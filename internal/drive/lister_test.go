package drive

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"google.golang.org/api/option"
)

func TestListNames(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok-xyz" {
			t.Errorf("Authorization = %q", got)
		}
		q := r.URL.Query().Get("q")
		if !strings.Contains(q, "'dest-folder' in parents") || !strings.Contains(q, "trashed=false") {
			t.Errorf("query = %q", q)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"files":[{"id":"1","name":"receipt3.jpg"},{"id":"2","name":"receipt5.pdf"}]}`))
	}))
	defer srv.Close()

	l := NewLister("dest-folder", option.WithEndpoint(srv.URL))
	names, err := l.ListNames(context.Background(), "tok-xyz")
	if err != nil {
		t.Fatalf("ListNames: %v", err)
	}

	if len(names) != 2 {
		t.Fatalf("names = %v, want 2 entries", names)
	}
	for _, want := range []string{"receipt3.jpg", "receipt5.pdf"} {
		if _, ok := names[want]; !ok {
			t.Errorf("missing %q in index", want)
		}
	}
}

func TestListNamesFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	l := NewLister("dest-folder", option.WithEndpoint(srv.URL))
	if _, err := l.ListNames(context.Background(), "tok"); err == nil {
		t.Fatal("expected error from failing list endpoint")
	}
}
