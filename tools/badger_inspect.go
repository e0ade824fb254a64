package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/database"
	"github.com/olekukonko/tablewriter"
)

func main() {
	dbPath := flag.String("db", database.DefaultPath, "Path to badger DB")
	// Default to the message namespace; conv:, unread:, presence: and user: also exist
	prefix := flag.String("prefix", "msg:", "Prefix to scan")
	flag.Parse()

	db, err := openDB(*dbPath)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Key", "Namespace", "Timestamp", "Entity ID", "Detail"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(*prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			item := it.Item()
			key := string(item.Key())
			err := item.Value(func(val []byte) error {
				table.Append(toRow(key, val))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Fatal("Error while scanning: ", err)
	}

	table.Render()
}

func openDB(path string) (*badger.DB, error) {
	return badger.Open(badger.DefaultOptions(path).
		WithLoggingLevel(badger.ERROR).
		WithReadOnly(true))
}

// toRow flattens one key/value pair into the table shape. Message keys
// carry their timestamp in the key itself; other namespaces expose what
// their JSON value holds.
func toRow(key string, val []byte) []string {
	parts := strings.Split(key, ":")
	namespace := parts[0]
	timestamp := "--:--:--"
	entityID := "--------"
	detail := "Size: " + strconv.Itoa(len(val)) + " bytes"

	switch namespace {
	case "msg":
		if len(parts) >= 4 {
			if tsNano, err := strconv.ParseInt(parts[2], 10, 64); err == nil {
				timestamp = time.Unix(0, tsNano).Format("15:04:05")
			}
			entityID = shorten(parts[3])
		}
		var msg struct {
			Sender string `json:"sender"`
			Text   string `json:"text"`
		}
		if err := json.Unmarshal(val, &msg); err == nil {
			detail = fmt.Sprintf("%s: %s", msg.Sender, shorten(msg.Text))
		}
	case "conv":
		if len(parts) >= 3 {
			detail = parts[1] + " <-> " + parts[2]
		}
		var conv struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(val, &conv); err == nil {
			entityID = shorten(conv.ID)
		}
	case "unread":
		if len(parts) >= 4 {
			entityID = shorten(parts[3])
			detail = "receiver: " + parts[1]
		}
	case "presence":
		if len(parts) >= 2 {
			entityID = shorten(parts[1])
			detail = "online: " + string(val)
		}
	case "user":
		var user struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(val, &user); err == nil {
			detail = user.Name
		}
		if len(parts) >= 2 {
			entityID = shorten(parts[1])
		}
	}

	return []string{key, namespace, timestamp, entityID, detail}
}

func shorten(s string) string {
	if len(s) > 8 {
		return s[:8]
	}
	return s
}
