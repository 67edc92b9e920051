package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/ssargent/actionkv/pkg/store"
)

// session runs store verbs for one-shot commands and the shell
type session struct {
	kv    *store.KVStore
	cache bool // flush the index cache after each change
	out   io.Writer
}

// verbs lists the shell verbs with their argument counts
var verbs = map[string]struct {
	min, max int
	usage    string
}{
	"get":         {1, 1, "get <key>"},
	"show":        {1, 1, "show <key>"},
	"insert":      {2, 2, "insert <key> <value>"},
	"update":      {2, 2, "update <key> <value>"},
	"delete":      {1, 1, "delete <key>"},
	"keys":        {0, 1, "keys [prefix]"},
	"stats":       {0, 0, "stats"},
	"flush-index": {0, 0, "flush-index"},
	"help":        {0, 0, "help"},
}

// exec dispatches one tokenised shell line
func (s *session) exec(args []string) error {
	if len(args) == 0 {
		return nil
	}
	verb, rest := strings.ToLower(args[0]), args[1:]

	arity, ok := verbs[verb]
	if !ok {
		return fmt.Errorf("unknown command %q (try help)", args[0])
	}
	if len(rest) < arity.min || len(rest) > arity.max {
		return fmt.Errorf("usage: %s", arity.usage)
	}

	switch verb {
	case "get":
		return s.get(rest[0])
	case "show":
		return s.show(rest[0])
	case "insert":
		return s.insert(rest[0], rest[1])
	case "update":
		return s.update(rest[0], rest[1])
	case "delete":
		return s.delete(rest[0])
	case "keys":
		prefix := ""
		if len(rest) == 1 {
			prefix = rest[0]
		}
		return s.keys(prefix)
	case "stats":
		return s.stats()
	case "flush-index":
		return s.flushIndex()
	default:
		return s.help()
	}
}

// get prints the raw value as a quoted Go string
func (s *session) get(key string) error {
	value, found, err := s.lookup(key)
	if err != nil || !found {
		return err
	}
	fmt.Fprintf(s.out, "%q\n", value)
	return nil
}

// show prints the value as text, replacing invalid UTF-8
func (s *session) show(key string) error {
	value, found, err := s.lookup(key)
	if err != nil || !found {
		return err
	}
	fmt.Fprintln(s.out, strings.ToValidUTF8(string(value), string(utf8.RuneError)))
	return nil
}

func (s *session) lookup(key string) ([]byte, bool, error) {
	if err := checkKey(key); err != nil {
		return nil, false, err
	}
	value, found, err := s.kv.Get([]byte(key))
	if err != nil {
		return nil, false, err
	}
	if !found {
		fmt.Fprintln(s.out, "(not found)")
	}
	return value, found, nil
}

func (s *session) insert(key, value string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	if err := s.kv.Insert([]byte(key), []byte(value)); err != nil {
		return err
	}
	return s.changed()
}

func (s *session) update(key, value string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	if err := s.kv.Update([]byte(key), []byte(value)); err != nil {
		return err
	}
	return s.changed()
}

func (s *session) delete(key string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	if err := s.kv.Delete([]byte(key)); err != nil {
		return err
	}
	return s.changed()
}

func (s *session) changed() error {
	if s.cache {
		if _, err := s.kv.Flush(); err != nil {
			return err
		}
	}
	fmt.Fprintln(s.out, "OK")
	return nil
}

func (s *session) keys(prefix string) error {
	keys, err := s.kv.ListKeys([]byte(prefix))
	if err != nil {
		return err
	}
	for _, k := range keys {
		fmt.Fprintln(s.out, k)
	}
	return nil
}

func (s *session) stats() error {
	data, err := json.MarshalIndent(s.kv.Stats(), "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(s.out, string(data))
	return nil
}

func (s *session) flushIndex() error {
	result, err := s.kv.Flush()
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "flushed %d keys at offset %d (%s)\n", result.Keys, result.Offset, result.ID)
	return nil
}

func (s *session) help() error {
	fmt.Fprintln(s.out, "commands:")
	for _, name := range []string{"get", "show", "insert", "update", "delete", "keys", "stats", "flush-index"} {
		fmt.Fprintf(s.out, "  %s\n", verbs[name].usage)
	}
	fmt.Fprintln(s.out, "  exit | quit")
	return nil
}

func checkKey(key string) error {
	if key == store.ReservedIndexKey {
		return fmt.Errorf("key %q is reserved", key)
	}
	return nil
}
