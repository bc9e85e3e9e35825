package vcd

import (
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/imamik/edgefip/internal/config"
)

// fakeVCD is a minimal vCloud Director API: one org VDC with one edge
// gateway "edge" and a set of vApps.
type fakeVCD struct {
	server *httptest.Server

	mu          sync.Mutex
	token       string
	logins      int
	rules       []natRule
	posts       [][]byte
	busy        bool
	decline     bool
	failNext    int
	taskPolls   map[string]int
	taskError   string
	vapps       map[string]vApp
	requestIDs  map[string]bool
	lastContent string
	// spare is handed out by manageExternalIpAddresses; allocated joins
	// the uplink ranges.
	spare     []string
	allocated []string
}

func newFakeVCD(t *testing.T) *fakeVCD {
	t.Helper()
	f := &fakeVCD{
		taskPolls:  map[string]int{},
		vapps:      map[string]vApp{},
		requestIDs: map[string]bool{},
		spare:      []string{"203.0.113.30"},
	}
	f.server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeVCD) client(t *testing.T) *Client {
	t.Helper()
	c, err := NewClient(Config{URL: f.server.URL, Org: "acme", VDC: "vdc", User: "admin", Password: "pw"},
		WithHTTPClient(f.server.Client()),
		WithTimeouts(&config.Timeouts{RetryMaxAttempts: 2, RetryInitialDelay: time.Millisecond, RequestTimeout: 5 * time.Second}),
	)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func (f *fakeVCD) expireSession() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.token = "expired"
}

func writeXML(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/*+xml")
	w.WriteHeader(status)
	_ = xml.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, minor, message string) {
	writeXML(w, status, apiError{MajorErrorCode: status, MinorErrorCode: minor, Message: message})
}

func (f *fakeVCD) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if r.URL.Path == "/api/sessions" {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "admin@acme" || pass != "pw" {
			writeError(w, http.StatusUnauthorized, "", "bad credentials")
			return
		}
		f.logins++
		f.token = fmt.Sprintf("token-%d", f.logins)
		w.Header().Set(headerAuthorization, f.token)
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Header.Get(headerAuthorization) != f.token {
		writeError(w, http.StatusUnauthorized, "", "session expired")
		return
	}
	f.requestIDs[r.Header.Get(headerRequestID)] = true
	if f.failNext > 0 {
		f.failNext--
		writeError(w, http.StatusServiceUnavailable, "", "try again")
		return
	}

	switch {
	case r.URL.Path == "/api/query":
		f.serveQuery(w, r)
	case r.URL.Path == "/api/admin/edgeGateway/1" && r.Method == http.MethodGet:
		writeXML(w, http.StatusOK, f.gateway())
	case r.URL.Path == "/api/admin/edgeGateway/1/action/configureServices" && r.Method == http.MethodPost:
		f.serveConfigure(w, r)
	case r.URL.Path == "/api/admin/edgeGateway/1/action/manageExternalIpAddresses" && r.Method == http.MethodPost:
		f.serveExternalIPs(w, r)
	case strings.HasPrefix(r.URL.Path, "/api/task/"):
		id := strings.TrimPrefix(r.URL.Path, "/api/task/")
		f.taskPolls[id]++
		t := taskRecord{ID: "urn:vcloud:task:" + id, HREF: f.server.URL + r.URL.Path, Status: "running"}
		if f.taskPolls[id] > 1 {
			t.Status = "success"
			if f.taskError != "" {
				t.Status = "error"
				t.Error = &apiError{Message: f.taskError}
			}
		}
		writeXML(w, http.StatusOK, t)
	case strings.HasPrefix(r.URL.Path, "/api/vApp/"):
		app, ok := f.vapps[strings.TrimPrefix(r.URL.Path, "/api/vApp/")]
		if !ok {
			writeError(w, http.StatusNotFound, "", "no such vApp")
			return
		}
		writeXML(w, http.StatusOK, app)
	default:
		writeError(w, http.StatusNotFound, "", "not found: "+r.URL.Path)
	}
}

func (f *fakeVCD) serveQuery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := q.Get("filter")
	records := queryResultRecords{}
	switch q.Get("type") {
	case "orgVdc":
		if filter == "name==vdc" {
			records.OrgVdcs = []queryRecord{{Name: "vdc", HREF: f.server.URL + "/api/vdc/1"}}
		}
	case "edgeGateway":
		if filter == "name==edge;vdc=="+f.server.URL+"/api/vdc/1" {
			records.EdgeGateways = []queryRecord{{Name: "edge", HREF: f.server.URL + "/api/admin/edgeGateway/1"}}
		}
	case "vApp":
		for name := range f.vapps {
			if strings.HasPrefix(filter, "name=="+name+";") {
				records.VApps = append(records.VApps, queryRecord{Name: name, HREF: f.server.URL + "/api/vApp/" + name})
			}
		}
	}
	records.Total = len(records.OrgVdcs) + len(records.EdgeGateways) + len(records.VApps)
	writeXML(w, http.StatusOK, records)
}

func (f *fakeVCD) serveConfigure(w http.ResponseWriter, r *http.Request) {
	f.lastContent = r.Header.Get("Content-Type")
	if f.busy {
		writeError(w, http.StatusBadRequest, "BUSY_ENTITY",
			"The entity gateway edge (urn:vcloud:gateway:1) is busy completing an operation CONFIGURE_EDGE_GATEWAY_SERVICES.")
		return
	}
	if f.decline {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid NAT rule")
		return
	}
	body, _ := io.ReadAll(r.Body)
	f.posts = append(f.posts, body)

	var services serviceConfiguration
	if err := xml.Unmarshal(body, &services); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	f.rules = nil
	if services.Nat != nil {
		f.rules = services.Nat.Rules
	}
	id := fmt.Sprintf("%d", len(f.posts))
	writeXML(w, http.StatusAccepted, taskRecord{
		ID:     "urn:vcloud:task:" + id,
		HREF:   f.server.URL + "/api/task/" + id,
		Status: "queued",
	})
}

func (f *fakeVCD) serveExternalIPs(w http.ResponseWriter, r *http.Request) {
	f.lastContent = r.Header.Get("Content-Type")
	var actions externalIPActions
	body, _ := io.ReadAll(r.Body)
	if err := xml.Unmarshal(body, &actions); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	switch {
	case actions.Allocation != nil && len(f.spare) > 0:
		f.allocated = append(f.allocated, f.spare[0])
		f.spare = f.spare[1:]
	case actions.Release != nil && slices.Contains(f.allocated, actions.Release.Address):
		f.allocated = slices.DeleteFunc(f.allocated, func(a string) bool { return a == actions.Release.Address })
		f.spare = append(f.spare, actions.Release.Address)
	default:
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "cannot manage external ip")
		return
	}
	f.posts = append(f.posts, body)
	id := fmt.Sprintf("%d", len(f.posts))
	writeXML(w, http.StatusAccepted, taskRecord{
		ID:     "urn:vcloud:task:" + id,
		HREF:   f.server.URL + "/api/task/" + id,
		Status: "queued",
	})
}

func (f *fakeVCD) gateway() edgeGateway {
	ranges := []ipRange{
		{Start: "203.0.113.10", End: "203.0.113.12"},
		{Start: "203.0.113.20"},
	}
	for _, a := range f.allocated {
		ranges = append(ranges, ipRange{Start: a})
	}
	return edgeGateway{
		Name: "edge",
		HREF: f.server.URL + "/api/admin/edgeGateway/1",
		Links: []link{{
			Rel:  relConfigureServices,
			HREF: f.server.URL + "/api/admin/edgeGateway/1/action/configureServices",
		}},
		Configuration: gatewayConfiguration{
			Interfaces: []gatewayInterface{
				{
					Name:          "ext-net",
					Network:       reference{Name: "ext-net", HREF: f.server.URL + "/api/admin/network/ext"},
					InterfaceType: "uplink",
					Subnets: []subnetParticipation{{
						Gateway:   "203.0.113.1",
						Netmask:   "255.255.255.0",
						IPAddress: "203.0.113.2",
						IPRanges:  ranges,
					}},
				},
				{
					Name:          "tenant",
					Network:       reference{Name: "tenant", HREF: f.server.URL + "/api/admin/network/tenant"},
					InterfaceType: "internal",
					Subnets: []subnetParticipation{{
						Gateway:   "10.0.0.1",
						Netmask:   "255.255.255.0",
						IPAddress: "10.0.0.1",
					}},
				},
			},
			Services: &serviceConfiguration{
				Nat: &natService{IsEnabled: true, Rules: f.rules},
				Other: []rawXML{{
					XMLName: xml.Name{Local: "FirewallService"},
					Inner:   []byte("<IsEnabled>true</IsEnabled><DefaultAction>drop</DefaultAction>"),
				}},
			},
		},
	}
}

func (f *fakeVCD) snapshot() (rules []natRule, posts int, logins int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]natRule(nil), f.rules...), len(f.posts), f.logins
}

func (f *fakeVCD) recorded() (requestIDs map[string]bool, contentType string, bodies []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	requestIDs = make(map[string]bool, len(f.requestIDs))
	for id := range f.requestIDs {
		requestIDs[id] = true
	}
	for _, b := range f.posts {
		bodies = append(bodies, string(b))
	}
	return requestIDs, f.lastContent, bodies
}
