package preview

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
)

func TestCreateAndRelease(t *testing.T) {
	store := NewMemoryStore()

	h, err := store.Create("image/png", []byte("png"))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if !IsHandle(string(h)) {
		t.Errorf("Expected handle URL, got %q", h)
	}
	if store.Len() != 1 {
		t.Fatalf("Expected one live handle, got %d", store.Len())
	}

	if err := store.Release(h); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if err := store.Release(h); !errors.Is(err, ErrUnknownHandle) {
		t.Errorf("Expected ErrUnknownHandle on double release, got %v", err)
	}
}

func TestReleaseExactlyOnceUnderContention(t *testing.T) {
	store := NewMemoryStore()
	h, _ := store.Create("image/png", nil)

	var wg sync.WaitGroup
	var succeeded atomic.Int32
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if store.Release(h) == nil {
				succeeded.Add(1)
			}
		}()
	}
	wg.Wait()

	if succeeded.Load() != 1 {
		t.Errorf("Expected exactly one successful release, got %d", succeeded.Load())
	}
}

func TestServeHTTP(t *testing.T) {
	store := NewMemoryStore()
	h, _ := store.Create("image/jpeg", []byte("jpeg-bytes"))

	mux := http.NewServeMux()
	mux.Handle("GET /previews/{handle}", store)

	t.Run("live handle", func(t *testing.T) {
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, string(h), nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rr.Code)
		}
		if rr.Header().Get("Content-Type") != "image/jpeg" {
			t.Errorf("Unexpected content type %q", rr.Header().Get("Content-Type"))
		}
		if rr.Body.String() != "jpeg-bytes" {
			t.Errorf("Unexpected body %q", rr.Body.String())
		}
	})

	t.Run("released handle", func(t *testing.T) {
		_ = store.Release(h)
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, string(h), nil))
		if rr.Code != http.StatusNotFound {
			t.Errorf("Expected 404, got %d", rr.Code)
		}
	})
}
