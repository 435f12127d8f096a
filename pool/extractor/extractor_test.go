package extractor

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"proxynexus/internal/shared/types"
	"proxynexus/pool/model"
)

func serveBody(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestPlaintextExtract(t *testing.T) {
	body := strings.Join([]string{
		"# comment lines are skipped",
		"10.0.0.1:8080",
		"",
		"10.0.0.2:3128",
		"not-an-endpoint",
		"10.0.0.3:99999", // port out of range
	}, "\n")
	srv := serveBody(t, http.StatusOK, body)

	ext, err := NewPlaintextExtractor(&types.SourceProfile{
		Name:     "plain-list",
		URL:      srv.URL,
		Protocol: model.ProtocolSOCKS5,
	})
	if err != nil {
		t.Fatalf("new extractor: %v", err)
	}

	endpoints, err := ext.Extract(context.Background())
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(endpoints) != 2 {
		t.Fatalf("extracted %d endpoints, want 2", len(endpoints))
	}
	if endpoints[0].Host != "10.0.0.1" || endpoints[0].Port != 8080 {
		t.Fatalf("first endpoint = %s:%d, want 10.0.0.1:8080", endpoints[0].Host, endpoints[0].Port)
	}
	if endpoints[0].Protocol != model.ProtocolSOCKS5 {
		t.Fatalf("protocol = %s, want profile's socks5", endpoints[0].Protocol)
	}
	if endpoints[0].Source != "plain-list" {
		t.Fatalf("source = %s, want plain-list", endpoints[0].Source)
	}
}

func TestPlaintextNon200(t *testing.T) {
	srv := serveBody(t, http.StatusForbidden, "denied")
	ext, err := NewPlaintextExtractor(&types.SourceProfile{Name: "blocked", URL: srv.URL})
	if err != nil {
		t.Fatalf("new extractor: %v", err)
	}
	if _, err := ext.Extract(context.Background()); err == nil {
		t.Fatal("403 response must surface as an error")
	}
}

func TestHTMLTableExtract(t *testing.T) {
	body := `<html><body><table><tbody>
		<tr><td>10.0.0.1</td><td>8080</td><td>HTTPS</td><td>Germany</td></tr>
		<tr><td>10.0.0.2</td><td>3128</td><td>weird</td><td>France</td></tr>
		<tr><td>10.0.0.3</td><td>bogus</td><td></td><td></td></tr>
		<tr><td></td><td>80</td></tr>
	</tbody></table></body></html>`
	srv := serveBody(t, http.StatusOK, body)

	ext, err := NewHTMLTableExtractor(&types.SourceProfile{
		Name:     "table-site",
		URL:      srv.URL,
		Protocol: model.ProtocolHTTP,
	})
	if err != nil {
		t.Fatalf("new extractor: %v", err)
	}

	endpoints, err := ext.Extract(context.Background())
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(endpoints) != 2 {
		t.Fatalf("extracted %d endpoints, want 2", len(endpoints))
	}
	if endpoints[0].Protocol != model.ProtocolHTTPS {
		t.Fatalf("protocol = %s, want https from the table cell", endpoints[0].Protocol)
	}
	if endpoints[0].DeclaredCountry != "Germany" {
		t.Fatalf("country = %q, want Germany", endpoints[0].DeclaredCountry)
	}
	// Unrecognized protocol cell falls back to the profile default.
	if endpoints[1].Protocol != model.ProtocolHTTP {
		t.Fatalf("fallback protocol = %s, want http", endpoints[1].Protocol)
	}
}

func TestHTMLTableCustomSelector(t *testing.T) {
	body := `<html><body><div id="list">
		<tr class="row"><td>10.0.0.9</td><td>1080</td></tr>
	</div></body></html>`
	srv := serveBody(t, http.StatusOK, body)

	ext, err := NewHTMLTableExtractor(&types.SourceProfile{
		Name:         "custom",
		URL:          srv.URL,
		HostSelector: "tr.row",
	})
	if err != nil {
		t.Fatalf("new extractor: %v", err)
	}
	endpoints, err := ext.Extract(context.Background())
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(endpoints) != 1 || endpoints[0].Host != "10.0.0.9" {
		t.Fatalf("endpoints = %+v, want the one custom row", endpoints)
	}
}

func TestJSONAPIExtract(t *testing.T) {
	body := `<html><script>
		var fpsList = [{"ip":"10.0.0.1","port":"8080"},{"ip":"10.0.0.2","port":"3128"},{"ip":"10.0.0.3","port":"bad"}];
	</script></html>`
	srv := serveBody(t, http.StatusOK, body)

	ext, err := NewJSONAPIExtractor(&types.SourceProfile{
		Name: "embedded-json",
		URL:  srv.URL,
	})
	if err != nil {
		t.Fatalf("new extractor: %v", err)
	}

	endpoints, err := ext.Extract(context.Background())
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(endpoints) != 2 {
		t.Fatalf("extracted %d endpoints, want 2 (bad port skipped)", len(endpoints))
	}
	if endpoints[0].Host != "10.0.0.1" || endpoints[0].Port != 8080 {
		t.Fatalf("first endpoint = %s:%d, want 10.0.0.1:8080", endpoints[0].Host, endpoints[0].Port)
	}
}

func TestJSONAPICustomVariable(t *testing.T) {
	body := `<script>const proxyData = [{"ip":"10.0.0.7","port":"1080"}];</script>`
	srv := serveBody(t, http.StatusOK, body)

	ext, err := NewJSONAPIExtractor(&types.SourceProfile{
		Name:    "custom-var",
		URL:     srv.URL,
		JSONVar: "proxyData",
	})
	if err != nil {
		t.Fatalf("new extractor: %v", err)
	}
	endpoints, err := ext.Extract(context.Background())
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(endpoints) != 1 || endpoints[0].Port != 1080 {
		t.Fatalf("endpoints = %+v, want the one custom-var entry", endpoints)
	}
}

func TestJSONAPIRetryAfterTransientFailure(t *testing.T) {
	body := `<script>var fpsList = [{"ip":"10.0.0.1","port":"8080"}];</script>`
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)

	ext, err := NewJSONAPIExtractor(&types.SourceProfile{Name: "flaky-json", URL: srv.URL})
	if err != nil {
		t.Fatalf("new extractor: %v", err)
	}

	if _, err := ext.Extract(context.Background()); err == nil {
		t.Fatal("first attempt must surface the 500")
	}

	// The second attempt must actually re-fetch the page.
	endpoints, err := ext.Extract(context.Background())
	if err != nil {
		t.Fatalf("second attempt: %v", err)
	}
	if calls != 2 {
		t.Fatalf("server saw %d calls, want 2 (retry reached the network)", calls)
	}
	if len(endpoints) != 1 || endpoints[0].Host != "10.0.0.1" {
		t.Fatalf("endpoints = %+v, want the recovered list", endpoints)
	}
}

func TestJSONAPIMissingVariable(t *testing.T) {
	srv := serveBody(t, http.StatusOK, `<html>no data here</html>`)
	ext, err := NewJSONAPIExtractor(&types.SourceProfile{Name: "empty", URL: srv.URL})
	if err != nil {
		t.Fatalf("new extractor: %v", err)
	}
	endpoints, err := ext.Extract(context.Background())
	if err != nil {
		t.Fatalf("a missing variable is a warning, not an error: %v", err)
	}
	if len(endpoints) != 0 {
		t.Fatalf("extracted %d endpoints from empty page, want 0", len(endpoints))
	}
}

func TestRegistryUnknownStrategy(t *testing.T) {
	r := DefaultRegistry()
	_, err := r.New(&types.SourceProfile{Name: "x", Extractor: "no-such"})
	if err == nil {
		t.Fatal("unknown strategy must error")
	}
	if !strings.Contains(err.Error(), "no-such") {
		t.Fatalf("error %q should name the strategy", err)
	}
}

func TestRegistryStrategies(t *testing.T) {
	got := DefaultRegistry().Strategies()
	want := []string{"htmltable", "jsonapi", "plaintext"}
	if len(got) != len(want) {
		t.Fatalf("strategies = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("strategies = %v, want %v", got, want)
		}
	}
}
