package obs

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

type FetchLogEntry struct {
	Timestamp     string `json:"ts"`
	RequestID     string `json:"request_id"`
	Method        string `json:"method"`
	Path          string `json:"path"`
	Strategy      string `json:"strategy"`
	CacheStatus   string `json:"cache_status"`
	Generation    string `json:"generation,omitempty"`
	Status        int    `json:"status"`
	DurationMS    int64  `json:"duration_ms"`
	Fallback      string `json:"fallback,omitempty"`
	Queued        bool   `json:"queued"`
	QueueID       uint64 `json:"queue_id,omitempty"`
	ErrorCategory string `json:"error_category"`
}

type SyncLogEntry struct {
	Timestamp     string `json:"ts"`
	Event         string `json:"event"`
	ItemID        uint64 `json:"item_id,omitempty"`
	URL           string `json:"url,omitempty"`
	Attempts      int    `json:"attempts,omitempty"`
	Result        string `json:"result"`
	DurationMS    int64  `json:"duration_ms"`
	ErrorCategory string `json:"error_category,omitempty"`
	Detail        string `json:"detail,omitempty"`
}

var (
	logMu  sync.Mutex
	logOut io.Writer = os.Stdout
)

// SetLogOutput redirects log lines, primarily for tests. Passing nil
// restores stdout.
func SetLogOutput(w io.Writer) {
	logMu.Lock()
	if w == nil {
		w = os.Stdout
	}
	logOut = w
	logMu.Unlock()
}

func LogFetch(entry FetchLogEntry) {
	if entry.Timestamp == "" {
		entry.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	entry.RequestID = defaultString(entry.RequestID, "none")
	entry.CacheStatus = defaultString(entry.CacheStatus, "bypass")
	entry.ErrorCategory = defaultString(entry.ErrorCategory, "none")
	writeLine(entry)
}

func LogSync(entry SyncLogEntry) {
	if entry.Timestamp == "" {
		entry.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	entry.Result = defaultString(entry.Result, "none")
	writeLine(entry)
}

func writeLine(entry interface{}) {
	data, err := json.Marshal(entry)
	if err != nil {
		logMu.Lock()
		_, _ = fmt.Fprintf(logOut, "log_marshal_error error=%v\n", err)
		logMu.Unlock()
		return
	}
	logMu.Lock()
	_, _ = logOut.Write(append(data, '\n'))
	logMu.Unlock()
}

func defaultString(value string, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func RedactHeaderValue(name, value string) string {
	if name == "" {
		return value
	}
	if isSensitiveHeader(name) {
		return "[redacted]"
	}
	return value
}

func isSensitiveHeader(name string) bool {
	switch strings.ToLower(name) {
	case "authorization", "cookie", "set-cookie", "x-api-key", "proxy-authorization":
		return true
	default:
		return false
	}
}
