// Package testutil has small helpers the tests lean on: JSON dumps
// for failure messages and JSON-built event fixtures.
package testutil

import (
	"encoding/json"
	"fmt"

	"github.com/groupwarden/groupwarden/chat"
)

// JS renders its argument as JSON, falling back to %#v for values
// that don't marshal.  Handy in assertion messages.
func JS(x interface{}) string {
	bs, err := json.Marshal(x)
	if err != nil {
		return fmt.Sprintf("%#v", x)
	}
	return string(bs)
}

// Dwimjs parses a string (or bytes) as JSON and passes anything else
// through unchanged.
//
// See https://en.wikipedia.org/wiki/DWIM.
func Dwimjs(x interface{}) interface{} {
	switch vv := x.(type) {
	case []byte:
		return Dwimjs(string(vv))
	case string:
		var v interface{}
		if err := json.Unmarshal([]byte(vv), &v); err != nil {
			panic(err)
		}
		return v
	default:
		return x
	}
}

// Event builds a chat.Event fixture from JSON, using the event's
// wire field names.  Panics on bad JSON so tests fail loudly.
func Event(js string) *chat.Event {
	var ev chat.Event
	if err := json.Unmarshal([]byte(js), &ev); err != nil {
		panic(fmt.Sprintf("testutil.Event: %s in %s", err, js))
	}
	return &ev
}
