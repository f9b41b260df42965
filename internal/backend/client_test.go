package backend

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rusenback/berrymon/internal/model"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(Config{BaseURL: srv.URL + "/", Token: "tok"})
}

func TestFetchBatchSplitsItems(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/debug/easyberry" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization = %q", got)
		}
		io.WriteString(w, `{"easyberry":[
			{"ts":1700000000.5,"endpoint":"/api/values","request":"{\"a\":1}","response":{"ok":true},"status":200},
			{"id":7,"ts":"1700000001","poller_id":"p1","request":"0103","response":null,"note":"timeout"}
		]}`)
	})

	got, err := c.FetchBatch(context.Background(), GatewayFeed())
	if err != nil {
		t.Fatalf("FetchBatch: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d records, want 3: %+v", len(got), got)
	}

	req, resp, third := got[0], got[1], got[2]
	if req.Direction != model.Request || req.Payload != `{"a":1}` || req.Channel != "/api/values" {
		t.Errorf("request record = %+v", req)
	}
	if req.Timestamp != "1700000000.5" || req.Status != "200" {
		t.Errorf("ts/status = %q/%q", req.Timestamp, req.Status)
	}
	if resp.Direction != model.Response || resp.Payload != `{"ok":true}` {
		t.Errorf("response record = %+v", resp)
	}
	if req.ID != "" || resp.ID != "" {
		t.Errorf("items without id must not get one: %q %q", req.ID, resp.ID)
	}
	if third.ID != "7/req" || third.Channel != "p1" || third.Note != "timeout" {
		t.Errorf("third record = %+v", third)
	}
}

func TestFetchBatchFallsBackToItems(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"items":[{"ts":"t1","request":"x"}]}`)
	})

	got, err := c.FetchBatch(context.Background(), PollerFeed())
	if err != nil {
		t.Fatalf("FetchBatch: %v", err)
	}
	if len(got) != 1 || got[0].Channel != "-" {
		t.Fatalf("got %+v", got)
	}
}

func TestFetchBatchEmpty(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"packets":null}`)
	})

	got, err := c.FetchBatch(context.Background(), PollerFeed())
	if err != nil || len(got) != 0 {
		t.Fatalf("got %v, %v", got, err)
	}
}

func TestRequestErrorCarriesDetail(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"detail":"Not authenticated"}`)
	})

	_, err := c.Status(context.Background(), PollerFeed())
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("err = %v, want *RequestError", err)
	}
	if reqErr.Message != "Not authenticated" || reqErr.Path != "/debug/polling/status" {
		t.Errorf("reqErr = %+v", reqErr)
	}
	if !IsUnauthorized(err) {
		t.Error("IsUnauthorized = false")
	}
}

func TestStartStatusStop(t *testing.T) {
	var (
		mu    sync.Mutex
		calls []string
	)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls = append(calls, r.Method+" "+r.URL.Path)
		mu.Unlock()
		switch r.URL.Path {
		case "/easyberry/start":
			io.WriteString(w, `{"started":false}`)
		case "/easyberry/status":
			io.WriteString(w, `{"running":true}`)
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	})
	ctx := context.Background()
	feed := GatewayFeed()

	started, err := c.Start(ctx, feed)
	if err != nil || started {
		t.Fatalf("Start = %v, %v; want refused", started, err)
	}
	running, err := c.Status(ctx, feed)
	if err != nil || !running {
		t.Fatalf("Status = %v, %v", running, err)
	}
	if err := c.Stop(ctx, feed); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := c.Send(ctx, PollerFeed()); err != nil {
		t.Fatalf("Send without path: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{"POST /easyberry/start", "GET /easyberry/status", "POST /easyberry/stop"}
	if len(calls) != len(want) {
		t.Fatalf("calls = %v", calls)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("call %d = %q, want %q", i, calls[i], want[i])
		}
	}
}

func TestLoginInstallsToken(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/login" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "" {
			t.Error("login must not send a bearer token")
		}
		var body loginRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Username != "admin" {
			t.Errorf("body = %+v, %v", body, err)
		}
		io.WriteString(w, `{"access_token":"new","token_type":"bearer"}`)
	})

	tok, err := c.Login(context.Background(), "admin", "secret")
	if err != nil || tok != "new" {
		t.Fatalf("Login = %q, %v", tok, err)
	}
	if c.Token() != "new" {
		t.Errorf("Token() = %q", c.Token())
	}
}

func TestFeedWithDefaults(t *testing.T) {
	f := Feed{Name: "modbus"}.WithDefaults()
	if f.BatchPath != "/debug/modbus" || f.ClearPath != "/debug/modbus/clear" || f.ItemsKey != "items" {
		t.Errorf("defaults = %+v", f)
	}
	g := GatewayFeed().WithDefaults()
	if g != GatewayFeed() {
		t.Errorf("WithDefaults changed a complete feed: %+v", g)
	}
}

func TestReloginOnExpiredToken(t *testing.T) {
	var (
		mu     sync.Mutex
		logins int
	)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/auth/login" {
			mu.Lock()
			logins++
			mu.Unlock()
			io.WriteString(w, `{"access_token":"fresh","token_type":"bearer"}`)
			return
		}
		if r.Header.Get("Authorization") != "Bearer fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			io.WriteString(w, `{"detail":"Token expired"}`)
			return
		}
		io.WriteString(w, `{"running":true}`)
	})

	var saved string
	c.SetCredentials("admin", "secret", func(tok string) { saved = tok })

	running, err := c.Status(context.Background(), PollerFeed())
	if err != nil || !running {
		t.Fatalf("Status = %v, %v", running, err)
	}
	if c.Token() != "fresh" || saved != "fresh" {
		t.Errorf("token = %q, saved = %q", c.Token(), saved)
	}
	if _, err := c.Status(context.Background(), PollerFeed()); err != nil {
		t.Fatalf("second Status: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if logins != 1 {
		t.Errorf("logins = %d, want 1", logins)
	}
}

func TestNoReloginWithoutCredentials(t *testing.T) {
	var logins atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/auth/login" {
			logins.Add(1)
		}
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := c.Status(context.Background(), PollerFeed())
	if !IsUnauthorized(err) {
		t.Fatalf("err = %v, want 401", err)
	}
	if logins.Load() != 0 {
		t.Errorf("login attempted without credentials")
	}
}

func TestExecuteAndCommands(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/cli/commands":
			io.WriteString(w, `[{"name":"echo","description":"Echo text back","args_schema":{"text":"str"}}]`)
		case "/cli/execute":
			var body executeRequest
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Errorf("decode: %v", err)
			}
			if body.Command != "echo" || body.Args["text"] != "hi" {
				t.Errorf("body = %+v", body)
			}
			io.WriteString(w, `{"ok":true,"output":"hi","data":"hi","logs":null,"error":null}`)
		case "/health":
			io.WriteString(w, `{"status":"ok"}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	ctx := context.Background()

	cmds, err := c.Commands(ctx)
	if err != nil || len(cmds) != 1 || cmds[0].Name != "echo" || cmds[0].ArgsSchema["text"] != "str" {
		t.Fatalf("Commands = %+v, %v", cmds, err)
	}
	res, err := c.Execute(ctx, "echo", map[string]any{"text": "hi"})
	if err != nil || !res.OK || res.Output != "hi" || res.Error != "" {
		t.Fatalf("Execute = %+v, %v", res, err)
	}
	if status, err := c.Health(ctx); err != nil || status != "ok" {
		t.Fatalf("Health = %q, %v", status, err)
	}
}
