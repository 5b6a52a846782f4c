// Package tempustest runs a scripted stand-in for the Tempus record endpoint.
package tempustest

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"
)

// Reply is one scripted HTTP response.
type Reply struct {
	Status int
	Body   string
	Delay  time.Duration
}

// Record replies with a personal record.
func Record(duration float64, rank int) Reply {
	return Reply{Status: http.StatusOK, Body: fmt.Sprintf(`{"result":{"duration":%v,"rank":%d}}`, duration, rank)}
}

// NoRecord replies with a well-formed "no time" body.
func NoRecord() Reply { return Reply{Status: http.StatusOK, Body: `{"result":null}`} }

// NotFound replies 404.
func NotFound() Reply { return Reply{Status: http.StatusNotFound, Body: `{"error":"not found"}`} }

// RateLimited replies 429.
func RateLimited() Reply { return Reply{Status: http.StatusTooManyRequests} }

// ServerError replies 503.
func ServerError() Reply { return Reply{Status: http.StatusServiceUnavailable} }

// Malformed replies 200 with a body that is not JSON.
func Malformed() Reply { return Reply{Status: http.StatusOK, Body: "<html>oops</html>"} }

// Hit is one request seen by the server.
type Hit struct {
	Map    string
	Player string
	Class  string
	At     time.Time
}

// Server serves scripted replies keyed by map name. Each map consumes its
// script in order and repeats the last reply once exhausted. Unscripted
// maps get Fallback.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	scripts  map[string][]Reply
	hits     []Hit
	Fallback Reply
}

// NewServer starts a server. Call Close when done.
func NewServer() *Server {
	s := &Server{
		scripts:  make(map[string][]Reply),
		Fallback: NotFound(),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// Script sets the replies for a map.
func (s *Server) Script(mapName string, replies ...Reply) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripts[mapName] = replies
}

// Hits returns a copy of every request seen so far.
func (s *Server) Hits() []Hit {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Hit, len(s.hits))
	copy(out, s.hits)
	return out
}

// HitsFor counts requests for one map.
func (s *Server) HitsFor(mapName string) int {
	n := 0
	for _, h := range s.Hits() {
		if h.Map == mapName {
			n++
		}
	}
	return n
}

// handle parses /maps/name/{map}/zones/typeindex/map/1/records/player/{player}/{class}.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) != 11 || parts[0] != "maps" || parts[1] != "name" || parts[8] != "player" {
		http.Error(w, "bad path", http.StatusBadRequest)
		return
	}
	hit := Hit{Map: parts[2], Player: parts[9], Class: parts[10], At: time.Now()}

	s.mu.Lock()
	s.hits = append(s.hits, hit)
	reply := s.Fallback
	if script := s.scripts[hit.Map]; len(script) > 0 {
		reply = script[0]
		if len(script) > 1 {
			s.scripts[hit.Map] = script[1:]
		}
	}
	s.mu.Unlock()

	if reply.Delay > 0 {
		time.Sleep(reply.Delay)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(reply.Status)
	_, _ = w.Write([]byte(reply.Body))
}
