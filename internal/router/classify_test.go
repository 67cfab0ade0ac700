package router

import (
	"net/http/httptest"
	"testing"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name    string
		method  string
		target  string
		headers map[string]string
		want    Strategy
	}{
		{"mutation", "POST", "/api/note", nil, StrategyPassThrough},
		{"delete", "DELETE", "/api/note/1", nil, StrategyPassThrough},
		{"cross origin", "GET", "http://elsewhere.example/page", nil, StrategyPassThrough},
		{"navigation by fetch mode", "GET", "/about", map[string]string{"Sec-Fetch-Mode": "navigate"}, StrategyNavigation},
		{"navigation by accept", "GET", "/about", map[string]string{"Accept": "text/html,application/xhtml+xml"}, StrategyNavigation},
		{"subresource with fetch mode", "GET", "/styles/main.css", map[string]string{"Sec-Fetch-Mode": "no-cors"}, StrategyNetworkFirst},
		{"jpeg", "GET", "/assets/images/photo.jpg", nil, StrategyMedia},
		{"png uppercase ext", "GET", "/assets/LOGO.PNG", nil, StrategyMedia},
		{"pdf", "GET", "/assets/docs/report.pdf", nil, StrategyMedia},
		{"webm", "GET", "/assets/video/clip.webm", nil, StrategyMedia},
		{"media with html accept", "GET", "/photo.jpg", map[string]string{"Accept": "text/html"}, StrategyNavigation},
		{"plain get", "GET", "/api/list", nil, StrategyNetworkFirst},
		{"same origin absolute", "GET", "http://origin.local/api/list", nil, StrategyNetworkFirst},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(tc.method, tc.target, nil)
			for name, value := range tc.headers {
				r.Header.Set(name, value)
			}
			if got := Classify(r, "origin.local"); got != tc.want {
				t.Fatalf("Classify(%s %s) = %s, expected %s", tc.method, tc.target, got, tc.want)
			}
		})
	}
}

func TestMediaKind(t *testing.T) {
	cases := map[string]string{
		"/a.jpg":       "image",
		"/a.jpeg":      "image",
		"/a.png":       "image",
		"/a.pdf":       "pdf",
		"/a.mp4":       "video",
		"/a.webm":      "video",
		"/a.css":       "",
		"/a":           "",
		"/dir.jpg/sub": "",
	}
	for path, want := range cases {
		if got := MediaKind(path); got != want {
			t.Errorf("MediaKind(%q) = %q, expected %q", path, got, want)
		}
	}
}

func TestIsMutating(t *testing.T) {
	for method, want := range map[string]bool{
		"POST": true, "PUT": true, "DELETE": true,
		"GET": false, "HEAD": false, "PATCH": false,
	} {
		if got := IsMutating(method); got != want {
			t.Errorf("IsMutating(%s) = %v, expected %v", method, got, want)
		}
	}
}
