package blobs

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/aweris/blobs/internal/metadata"
	"github.com/aweris/blobs/internal/remote"
)

const (
	testSiteID = "9a003659-aaaa-0000-aaaa-63d3720d8621"
	testToken  = "some-token"
)

type fakeObject struct {
	data     []byte
	etag     string
	metadata string
}

// fakeBackend emulates the storage backend in both access modes. Edge
// requests land on /edge/..., management API requests on /api/v1/blobs/...
// and signed URLs on /signed/....
type fakeBackend struct {
	t   *testing.T
	srv *httptest.Server

	mu       sync.Mutex
	objects  map[string]*fakeObject
	version  int
	requests []string

	// fail, when set, can short-circuit a request with a status code.
	fail func(r *http.Request) int
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	b := &fakeBackend{t: t, objects: map[string]*fakeObject{}}
	b.srv = httptest.NewServer(http.HandlerFunc(b.serve))
	t.Cleanup(b.srv.Close)
	return b
}

func (b *fakeBackend) edgeURL() string { return b.srv.URL + "/edge" }
func (b *fakeBackend) apiURL() string  { return b.srv.URL }

func (b *fakeBackend) log() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.requests...)
}

func (b *fakeBackend) serve(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	b.requests = append(b.requests, r.Method+" "+r.URL.Path)
	fail := b.fail
	b.mu.Unlock()

	if fail != nil {
		if code := fail(r); code != 0 {
			w.WriteHeader(code)
			return
		}
	}

	switch {
	case strings.HasPrefix(r.URL.Path, "/edge/"):
		if r.Header.Get(remote.HeaderAuthorization) != "Bearer "+testToken {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		path := strings.TrimPrefix(r.URL.Path, "/edge/")
		if strings.HasPrefix(path, "region:") {
			_, path, _ = strings.Cut(path, "/")
		}
		b.storage(w, r, path, true)

	case strings.HasPrefix(r.URL.Path, "/api/v1/blobs/"):
		if r.Header.Get(remote.HeaderAuthorization) != "Bearer "+testToken {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		path := strings.TrimPrefix(r.URL.Path, "/api/v1/blobs/")
		if r.Method == http.MethodDelete || strings.Count(path, "/") < 2 {
			b.storage(w, r, path, true)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"url": b.srv.URL + "/signed/" + path + "?X-Signature=abc"})

	case strings.HasPrefix(r.URL.Path, "/signed/"):
		if r.Header.Get(remote.HeaderAuthorization) != "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		b.storage(w, r, strings.TrimPrefix(r.URL.Path, "/signed/"), false)

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// storage serves site/scope/key paths. Collection paths list their children.
func (b *fakeBackend) storage(w http.ResponseWriter, r *http.Request, path string, collections bool) {
	parts := strings.SplitN(path, "/", 3)
	if parts[0] != testSiteID {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	if len(parts) < 3 {
		if !collections || r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		b.list(w, r, parts[1:])
		return
	}
	id := parts[1] + "/" + parts[2]

	b.mu.Lock()
	defer b.mu.Unlock()
	obj := b.objects[id]

	switch r.Method {
	case http.MethodGet, http.MethodHead:
		if obj == nil {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set(remote.HeaderETag, obj.etag)
		if obj.metadata != "" {
			w.Header().Set(metadata.Header, obj.metadata)
		}
		if inm := r.Header.Get(remote.HeaderIfNoneMatch); inm != "" && inm == obj.etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodGet {
			_, _ = w.Write(obj.data)
		}

	case http.MethodPut:
		if r.Header.Get(remote.HeaderCacheControl) != cacheControl {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if r.Header.Get(remote.HeaderIfNoneMatch) == "*" && obj != nil {
			w.WriteHeader(http.StatusPreconditionFailed)
			return
		}
		if im := r.Header.Get(remote.HeaderIfMatch); im != "" && (obj == nil || obj.etag != im) {
			w.WriteHeader(http.StatusPreconditionFailed)
			return
		}
		data, err := io.ReadAll(r.Body)
		require.NoError(b.t, err)
		b.version++
		obj = &fakeObject{data: data, etag: fmt.Sprintf(`"v%d"`, b.version), metadata: r.Header.Get(metadata.Header)}
		b.objects[id] = obj
		w.Header().Set(remote.HeaderETag, obj.etag)
		w.WriteHeader(http.StatusOK)

	case http.MethodDelete:
		if obj == nil {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		delete(b.objects, id)
		w.WriteHeader(http.StatusNoContent)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// list pages through keys two at a time so pagination is exercised.
func (b *fakeBackend) list(w http.ResponseWriter, r *http.Request, scope []string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	q := r.URL.Query()
	if len(scope) == 0 || scope[0] == "" {
		var stores []string
		seen := map[string]bool{}
		for id := range b.objects {
			s, _, _ := strings.Cut(id, "/")
			if strings.HasPrefix(s, q.Get("prefix")) && !seen[s] {
				seen[s] = true
				stores = append(stores, s)
			}
		}
		sort.Strings(stores)
		_ = json.NewEncoder(w).Encode(map[string]any{"stores": stores})
		return
	}

	prefix := scope[0] + "/" + q.Get("prefix")
	var keys []string
	dirs := map[string]bool{}
	for id := range b.objects {
		rest, ok := strings.CutPrefix(id, prefix)
		if !ok {
			continue
		}
		key := strings.TrimPrefix(id, scope[0]+"/")
		if q.Get("directories") == "true" {
			if i := strings.Index(rest, "/"); i >= 0 {
				dirs[q.Get("prefix")+rest[:i]] = true
				continue
			}
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	start := 0
	if c := q.Get("cursor"); c != "" {
		_, _ = fmt.Sscanf(c, "%d", &start)
	}
	end := min(start+2, len(keys))
	page := map[string]any{}
	var blobs []map[string]string
	for _, k := range keys[start:end] {
		blobs = append(blobs, map[string]string{"key": k, "etag": b.objects[scope[0]+"/"+k].etag})
	}
	page["blobs"] = blobs
	if start == 0 {
		var d []string
		for dir := range dirs {
			d = append(d, dir)
		}
		sort.Strings(d)
		page["directories"] = d
	}
	if end < len(keys) {
		page["next_cursor"] = fmt.Sprint(end)
	}
	_ = json.NewEncoder(w).Encode(page)
}

func testRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, MinRateLimitDelay: time.Millisecond}
}

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// testOptions are the options shared by every store under test.
func testOptions(extra ...StoreOption) []StoreOption {
	return append([]StoreOption{
		WithSiteID(testSiteID),
		WithToken(testToken),
		WithLogger(quietLogger()),
		WithRetryPolicy(testRetryPolicy()),
	}, extra...)
}

// clearContext isolates a test from any context in the environment.
func clearContext(t *testing.T) {
	t.Helper()
	t.Setenv(EnvironmentVariable, "")
	SetGlobalContext("")
	t.Cleanup(func() { SetGlobalContext("") })
}
