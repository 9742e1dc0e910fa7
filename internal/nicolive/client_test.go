package nicolive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/liveinfo/internal/model"
	"github.com/hitoshi/liveinfo/internal/security"
)

const onAirResponse = `{
  "meta": {"status": 200},
  "data": {
    "programsList": [
      {
        "id": {"value": "lv345678901"},
        "program": {
          "title": "作業配信",
          "description": "今日も作業します<br>よろしく&amp;お願いします<script>alert(1)</script>",
          "schedule": {
            "status": "ON_AIR",
            "beginTime": {"seconds": 1767268800},
            "endTime": {"seconds": 1767279600}
          }
        },
        "programProvider": {
          "programProviderId": {"value": "12345"},
          "name": "テストユーザー",
          "icons": {"uri150x150": "https://secure-dcdn.cdn.nimg.jp/nicoaccount/usericon/1/12345.jpg"}
        },
        "thumbnail": {
          "listing": {"xlarge": {"value": "https://img.cdn.nimg.jp/s/nicolive/thumbnailxl.jpg"}}
        }
      }
    ],
    "totalCount": 1
  }
}`

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	c := NewClient(server.Client(), logger, security.NewContentSanitizer(), "12345", "liveinfo-test/1.0")
	c.endpoint = server.URL
	return c
}

func TestClient_Fetch_SendsExpectedRequest(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("HTTPメソッド = %s, want GET", r.Method)
		}
		if got := r.Header.Get("User-Agent"); got != "liveinfo-test/1.0" {
			t.Errorf("User-Agent = %q, want %q", got, "liveinfo-test/1.0")
		}

		q := r.URL.Query()
		want := map[string]string{
			"providerId":         "12345",
			"providerType":       "user",
			"isIncludeNonPublic": "false",
			"offset":             "0",
			"limit":              "1",
			"withTotalCount":     "true",
		}
		for k, v := range want {
			if got := q.Get(k); got != v {
				t.Errorf("query %s = %q, want %q", k, got, v)
			}
		}

		io.WriteString(w, onAirResponse)
	})

	if _, err := c.Fetch(context.Background()); err != nil {
		t.Fatalf("Fetch がエラーを返した: %v", err)
	}
}

func TestClient_Fetch_NormalizesOnAirProgram(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, onAirResponse)
	})

	live, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch がエラーを返した: %v", err)
	}

	p := live.Program
	if !p.IsOnair {
		t.Error("IsOnair = false, want true")
	}
	assertStr(t, "Title", p.Title, "作業配信")
	assertStr(t, "Description", p.Description, "今日も作業します\nよろしく&お願いします")
	assertStr(t, "URL", p.URL, "https://live.nicovideo.jp/watch/lv345678901")
	// 1767268800 = 2026-01-01T12:00:00Z
	assertStr(t, "StartTime", p.StartTime, "2026-01-01T21:00:00+09:00")
	assertStr(t, "EndTime", p.EndTime, "2026-01-02T00:00:00+09:00")
	if len(p.Thumbnails) != 1 || p.Thumbnails[0] != "https://img.cdn.nimg.jp/s/nicolive/thumbnailxl.jpg" {
		t.Errorf("Thumbnails = %v", p.Thumbnails)
	}

	u := live.User
	assertStr(t, "User.Name", u.Name, "テストユーザー")
	assertStr(t, "User.URL", u.URL, "https://www.nicovideo.jp/user/12345")
	assertStr(t, "User.IconURL", u.IconURL, "https://secure-dcdn.cdn.nimg.jp/nicoaccount/usericon/1/12345.jpg")
}

func TestClient_Fetch_EndedProgram(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"data":{"programsList":[{"id":{"value":"lv1"},"program":{"title":"終了","schedule":{"status":"ENDED"}}}]}}`)
	})

	live, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch がエラーを返した: %v", err)
	}
	if live.Program.IsOnair {
		t.Error("IsOnair = true, want false")
	}
	if live.Program.StartTime != nil || live.Program.EndTime != nil {
		t.Errorf("StartTime/EndTime should be nil, got %v/%v", live.Program.StartTime, live.Program.EndTime)
	}
	if live.User.Name != nil {
		t.Errorf("User.Name = %q, want nil", *live.User.Name)
	}
}

func TestClient_Fetch_EmptyProgramsListIsSuccess(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"data":{"programsList":[],"totalCount":0}}`)
	})

	live, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch がエラーを返した: %v", err)
	}

	data, err := json.Marshal(live)
	if err != nil {
		t.Fatalf("JSONエンコードに失敗: %v", err)
	}
	want := `{"program":{"title":null,"description":null,"url":null,"thumbnails":null,"startTime":null,"endTime":null,"isOnair":false},"user":{"name":null,"url":null,"iconUrl":null}}`
	if string(data) != want {
		t.Errorf("JSON = %s\nwant %s", data, want)
	}
}

func TestClient_Fetch_ErrorStatusIsUnavailable(t *testing.T) {
	for _, status := range []int{http.StatusBadRequest, http.StatusNotFound, http.StatusServiceUnavailable} {
		var buf bytes.Buffer
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
			io.WriteString(w, `{"meta":{"status":503}}`)
		}))

		c := NewClient(server.Client(), slog.New(slog.NewJSONHandler(&buf, nil)), security.NewContentSanitizer(), "1", "ua")
		c.endpoint = server.URL

		_, err := c.Fetch(context.Background())
		server.Close()

		if !errors.Is(err, model.ErrUpstreamUnavailable) {
			t.Errorf("status %d: err = %v, want ErrUpstreamUnavailable", status, err)
		}
		if !bytes.Contains(buf.Bytes(), []byte(`"http_status"`)) {
			t.Errorf("status %d: エラーステータスがログに記録されていない: %s", status, buf.String())
		}
	}
}

func TestClient_Fetch_InvalidJSONIsShapeMismatch(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `<html>maintenance</html>`)
	})

	_, err := c.Fetch(context.Background())
	if !errors.Is(err, model.ErrUpstreamShapeMismatch) {
		t.Errorf("err = %v, want ErrUpstreamShapeMismatch", err)
	}
}

func TestClient_Fetch_WrongTypeIsShapeMismatch(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"data":{"programsList":"not-a-list"}}`)
	})

	_, err := c.Fetch(context.Background())
	if !errors.Is(err, model.ErrUpstreamShapeMismatch) {
		t.Errorf("err = %v, want ErrUpstreamShapeMismatch", err)
	}
}

func TestClient_Fetch_NetworkErrorIsUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	endpoint := server.URL
	server.Close()

	c := NewClient(http.DefaultClient, slog.New(slog.NewJSONHandler(io.Discard, nil)), security.NewContentSanitizer(), "1", "ua")
	c.endpoint = endpoint

	_, err := c.Fetch(context.Background())
	if !errors.Is(err, model.ErrUpstreamUnavailable) {
		t.Errorf("err = %v, want ErrUpstreamUnavailable", err)
	}
}

func assertStr(t *testing.T, name string, got *string, want string) {
	t.Helper()
	if got == nil {
		t.Errorf("%s = nil, want %q", name, want)
		return
	}
	if *got != want {
		t.Errorf("%s = %q, want %q", name, *got, want)
	}
}
