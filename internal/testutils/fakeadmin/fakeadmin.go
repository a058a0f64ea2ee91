// Package fakeadmin runs an in-memory admin endpoint that answers both the
// legacy and the REST protocol.
package fakeadmin

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tpodg/fleetadmin/internal/server"
)

const requestIndexKey = "fakeadmin.request"

// Request records one call seen by the fake.
type Request struct {
	Method    string
	Path      string
	Operation string
	RequestID string
}

type app struct {
	path    string
	enabled bool
	props   map[string]string
}

// Server is a fake admin endpoint backed by in-memory state.
type Server struct {
	Version string

	mu       sync.Mutex
	clusters map[string][]string
	running  map[string]bool
	apps     map[string]map[string]*app
	props    map[string]string
	failures map[string]string
	delay    time.Duration
	requests []Request
	user     string
	password string
	httpSrv  *httptest.Server
}

// New starts a fake with one cluster "c1" of two instances.
func New(t testing.TB) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	s := &Server{
		Version:  "7.0.2",
		clusters: map[string][]string{"c1": {"c1-i1", "c1-i2"}},
		running:  map[string]bool{},
		apps:     map[string]map[string]*app{},
		props: map[string]string{
			"configs.config.server-config.http.port":  "8080",
			"configs.config.server-config.https.port": "8181",
			"domain.name":                             "domain1",
		},
		failures: map[string]string{},
	}

	engine := gin.New()
	engine.Use(s.record, s.auth, s.slow)
	engine.Any("/__asadmin/:op", s.legacy)
	s.restRoutes(engine.Group("/management/domain"))

	s.httpSrv = httptest.NewServer(engine)
	t.Cleanup(s.httpSrv.Close)
	return s
}

// Descriptor returns a descriptor pointing at the fake for gen.
func (s *Server) Descriptor(name string, gen server.Generation) server.Descriptor {
	u, _ := url.Parse(s.httpSrv.URL)
	port, _ := strconv.Atoi(u.Port())
	s.mu.Lock()
	defer s.mu.Unlock()
	return server.Descriptor{
		Name:     name,
		Host:     u.Hostname(),
		Port:     port,
		User:     s.user,
		Password: s.password,
		Protocol: gen,
	}
}

// RequireAuth makes the fake reject calls without the given basic credentials.
func (s *Server) RequireAuth(user, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user, s.password = user, password
}

// Fail makes every call of op report a body-level failure with message.
func (s *Server) Fail(op, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = message
}

// Delay holds every reply for d.
func (s *Server) Delay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.requests))
	copy(out, s.requests)
	return out
}

// Applications returns the names deployed on target.
func (s *Server) Applications(target string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appNames(target)
}

func (s *Server) Enabled(target, name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.apps[target][name]
	return ok && a.enabled
}

func (s *Server) Property(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.props[key]
}

func (s *Server) Running(cluster string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running[cluster]
}

func (s *Server) record(c *gin.Context) {
	s.mu.Lock()
	c.Set(requestIndexKey, len(s.requests))
	s.requests = append(s.requests, Request{
		Method:    c.Request.Method,
		Path:      c.Request.URL.Path,
		Operation: c.Param("op"),
		RequestID: c.GetHeader("X-Request-Id"),
	})
	s.mu.Unlock()
	c.Next()
}

func (s *Server) auth(c *gin.Context) {
	s.mu.Lock()
	user, password := s.user, s.password
	s.mu.Unlock()
	if user == "" {
		c.Next()
		return
	}
	u, p, ok := c.Request.BasicAuth()
	if !ok || u != user || p != password {
		c.String(http.StatusUnauthorized, "authentication required")
		c.Abort()
		return
	}
	c.Next()
}

func (s *Server) slow(c *gin.Context) {
	s.mu.Lock()
	d := s.delay
	s.mu.Unlock()
	if d > 0 {
		select {
		case <-time.After(d):
		case <-c.Request.Context().Done():
			c.Abort()
			return
		}
	}
	c.Next()
}

func (s *Server) failure(op string) (string, bool) {
	msg, ok := s.failures[op]
	return msg, ok
}

// appNames expects s.mu to be held.
func (s *Server) appNames(target string) []string {
	names := make([]string, 0, len(s.apps[target]))
	for name := range s.apps[target] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// matchProperties expects s.mu to be held. A trailing "*" matches any suffix.
func (s *Server) matchProperties(pattern string) map[string]string {
	out := make(map[string]string)
	prefix, wildcard := strings.CutSuffix(pattern, "*")
	for k, v := range s.props {
		if (wildcard && strings.HasPrefix(k, prefix)) || k == pattern {
			out[k] = v
		}
	}
	return out
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func errNotFound(kind, name string) string {
	return fmt.Sprintf("%s %s not found", kind, name)
}

// Deployment returns the archive path and properties of a deployed application.
func (s *Server) Deployment(target, name string) (string, map[string]string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.apps[target][name]
	if !ok {
		return "", nil, false
	}
	props := make(map[string]string, len(a.props))
	for k, v := range a.props {
		props[k] = v
	}
	return a.path, props, true
}
