package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

type fakeSource struct{}

func (fakeSource) UptimeTicks() uint64            { return 500 }
func (fakeSource) ProcsTotal() int                { return 3 }
func (fakeSource) ProcsReady() int                { return 2 }
func (fakeSource) ProcsBlocked() int              { return 1 }
func (fakeSource) HeapAllocatedBytes() uint32     { return 4096 }
func (fakeSource) PagesUsed() int                 { return 10 }
func (fakeSource) PagesFree() int                 { return 100 }
func (fakeSource) TCPSocketsEstablished() int     { return 1 }

func TestCollector_ServesExpectedMetricNames(t *testing.T) {
	c := NewCollector(fakeSource{}, 100)
	h := Handler(c)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	body := rec.Body.String()
	for _, name := range []string{
		"nanosec_uptime_seconds",
		"nanosec_proc_total",
		"nanosec_proc_ready",
		"nanosec_proc_blocked",
		"nanosec_heap_allocated_bytes",
		"nanosec_pages_used",
		"nanosec_pages_free",
		"nanosec_tcp_sockets_established",
	} {
		if !strings.Contains(body, name) {
			t.Fatalf("response missing metric %q:\n%s", name, body)
		}
	}
	if !strings.Contains(body, "nanosec_uptime_seconds 5") {
		t.Fatalf("uptime seconds not computed as ticks/hz:\n%s", body)
	}
}
