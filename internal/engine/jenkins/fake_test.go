package jenkins

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"buildrelay/internal/engine"
)

const (
	testUser  = "relay"
	testToken = "s3cret"
)

// fakeJenkins mimics the handful of Jenkins endpoints the client uses
type fakeJenkins struct {
	t      *testing.T
	server *httptest.Server
	prefix string

	mu        sync.Mutex
	jobs      map[string]string
	builds    map[string][]url.Values
	creates   int
	updates   int
	requests  int
	crumbless bool
}

func newFakeJenkins(t *testing.T) *fakeJenkins {
	t.Helper()
	return newPrefixedFakeJenkins(t, "")
}

// newPrefixedFakeJenkins serves Jenkins under prefix, as behind a reverse proxy
func newPrefixedFakeJenkins(t *testing.T, prefix string) *fakeJenkins {
	t.Helper()
	f := &fakeJenkins{
		t:      t,
		prefix: prefix,
		jobs:   make(map[string]string),
		builds: make(map[string][]url.Values),
	}
	f.server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.server.Close)
	return f
}

// URL returns the server URL with embedded credentials
func (f *fakeJenkins) URL() string {
	u, _ := url.Parse(f.server.URL)
	u.User = url.UserPassword(testUser, testToken)
	return u.String() + f.prefix + "/"
}

func (f *fakeJenkins) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests
}

func (f *fakeJenkins) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests++

	if f.prefix != "" {
		if !strings.HasPrefix(r.URL.Path, f.prefix+"/") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		r.URL.Path = strings.TrimPrefix(r.URL.Path, f.prefix)
	}

	user, pass, ok := r.BasicAuth()
	if !ok || user != testUser || pass != testToken {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	if r.URL.Path == "/crumbIssuer/api/json" {
		if f.crumbless {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"crumb": "test-crumb", "crumbRequestField": "Jenkins-Crumb"})
		return
	}

	if r.Method == http.MethodPost && !f.crumbless && r.Header.Get("Jenkins-Crumb") != "test-crumb" {
		w.WriteHeader(http.StatusForbidden)
		return
	}

	if r.URL.Path == "/createItem" && r.Method == http.MethodPost {
		name := r.URL.Query().Get("name")
		if _, exists := f.jobs[name]; exists {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		body, _ := io.ReadAll(r.Body)
		f.jobs[name] = string(body)
		f.creates++
		return
	}

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) < 3 || parts[0] != "job" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	name := parts[1]
	if _, exists := f.jobs[name]; !exists {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	switch {
	case parts[2] == "config.xml" && r.Method == http.MethodGet:
		_, _ = w.Write([]byte(f.jobs[name]))
	case parts[2] == "config.xml" && r.Method == http.MethodPost:
		body, _ := io.ReadAll(r.Body)
		f.jobs[name] = string(body)
		f.updates++
	case parts[2] == "buildWithParameters" && r.Method == http.MethodPost:
		if err := r.ParseForm(); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.builds[name] = append(f.builds[name], r.PostForm)
		w.Header().Set("Location", fmt.Sprintf("%s%s/job/%s/%d/", f.server.URL, f.prefix, name, len(f.builds[name])))
		w.WriteHeader(http.StatusCreated)
	case len(parts) == 4 && parts[3] == "consoleText" && r.Method == http.MethodGet:
		var number int
		if _, err := fmt.Sscanf(parts[2], "%d", &number); err != nil || number < 1 || number > len(f.builds[name]) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		form := f.builds[name][number-1]
		fmt.Fprintf(w, "Started by remote host\nChecking out %s\nFinished: SUCCESS\n", form.Get(engine.ParamSHA1))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}
