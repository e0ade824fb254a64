package internal

import (
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
)

//go:embed inspect.html
var templatesFS embed.FS

type InspectRow struct {
	Key       string
	Namespace string
	Timestamp string
	EntityID  string
	Detail    string
}

type RowMapper func(key string, val []byte) InspectRow
type StatsProvider func() map[string]any

type PageData struct {
	Prefix string
	Items  []InspectRow
	Stats  map[string]any
}

// StartDebugServer exposes the store content and live counters on a
// local HTTP endpoint. Reads run in a snapshot transaction, so the
// server never blocks the delivery path.
func StartDebugServer(db *badger.DB, port int, mapper RowMapper, statsProvider StatsProvider) {
	mux := http.NewServeMux()
	tmpl := template.Must(template.ParseFS(templatesFS, "inspect.html"))

	if mapper == nil {
		mapper = DefaultMapper
	}

	mux.HandleFunc("/inspect", func(w http.ResponseWriter, r *http.Request) {
		prefix := r.URL.Query().Get("prefix")
		if prefix == "" {
			prefix = "msg:"
		}

		data := PageData{
			Prefix: prefix,
			Stats:  make(map[string]any),
		}
		if statsProvider != nil {
			data.Stats = statsProvider()
		}

		_ = db.View(func(txn *badger.Txn) error {
			it := txn.NewIterator(badger.DefaultIteratorOptions)
			defer it.Close()
			for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
				item := it.Item()
				_ = item.Value(func(val []byte) error {
					data.Items = append(data.Items, mapper(string(item.Key()), val))
					return nil
				})
			}
			return nil
		})

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_ = tmpl.Execute(w, data)
	})

	go func() {
		_ = http.ListenAndServe(fmt.Sprintf("localhost:%d", port), mux)
	}()
}

// DefaultMapper flattens one key/value pair of the chat keyspace into a
// table row. Message keys carry their timestamp in the key itself; the
// other namespaces expose what their JSON value holds.
func DefaultMapper(key string, val []byte) InspectRow {
	parts := strings.Split(key, ":")
	row := InspectRow{
		Key:       key,
		Namespace: parts[0],
		Timestamp: "--:--:--",
		EntityID:  "--------",
		Detail:    "Size: " + strconv.Itoa(len(val)) + " bytes",
	}

	switch row.Namespace {
	case "msg":
		if len(parts) >= 4 {
			if tsNano, err := strconv.ParseInt(parts[2], 10, 64); err == nil {
				row.Timestamp = time.Unix(0, tsNano).Format("15:04:05")
			}
			row.EntityID = shorten(parts[3])
		}
		var msg struct {
			Sender string `json:"sender"`
			Text   string `json:"text"`
		}
		if err := json.Unmarshal(val, &msg); err == nil {
			row.Detail = fmt.Sprintf("%s: %s", msg.Sender, shorten(msg.Text))
		}
	case "conv":
		if len(parts) >= 3 {
			row.Detail = parts[1] + " <-> " + parts[2]
		}
		var conv struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(val, &conv); err == nil {
			row.EntityID = shorten(conv.ID)
		}
	case "unread":
		if len(parts) >= 4 {
			row.EntityID = shorten(parts[3])
			row.Detail = "receiver: " + parts[1]
		}
	case "presence":
		if len(parts) >= 2 {
			row.EntityID = shorten(parts[1])
			row.Detail = "online: " + string(val)
		}
	case "user":
		var user struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(val, &user); err == nil {
			row.Detail = user.Name
		}
		if len(parts) >= 2 {
			row.EntityID = shorten(parts[1])
		}
	}
	return row
}

func shorten(s string) string {
	if len(s) > 8 {
		return s[:8]
	}
	return s
}
