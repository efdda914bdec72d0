// Package dispatcher implements the line-oriented command protocol over a
// long-lived TCP connection (spec §4.L11, §6). Each accepted connection
// gets its own goroutine reading one command per line and writing exactly
// one response line per command.
package dispatcher

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/cuemby/jsonkv/internal/log"
	"github.com/cuemby/jsonkv/internal/metrics"
	"github.com/cuemby/jsonkv/internal/query"
	"github.com/cuemby/jsonkv/internal/store"
)

// Dispatcher owns a store.Store and serves the wire protocol over
// accepted connections.
type Dispatcher struct {
	st *store.Store
}

// New returns a Dispatcher backed by st.
func New(st *store.Store) *Dispatcher {
	return &Dispatcher{st: st}
}

// Serve accepts connections on ln until it returns an error (typically
// because ln was closed during shutdown).
func (d *Dispatcher) Serve(ln net.Listener) error {
	logger := log.WithComponent("dispatcher")
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		logger.Debug().Str("remote", conn.RemoteAddr().String()).Msg("accepted connection")
		go d.handleConn(conn)
	}
}

func (d *Dispatcher) handleConn(conn net.Conn) {
	defer conn.Close()
	metrics.ActiveConnections.Inc()
	defer metrics.ActiveConnections.Dec()

	logger := log.WithComponent("dispatcher")
	reader := bufio.NewReaderSize(conn, 64*1024)
	writer := bufio.NewWriter(conn)
	defer writer.Flush()

	for {
		line, err := readLine(reader)
		if err != nil {
			if err != io.EOF {
				logger.Debug().Err(err).Msg("connection read error")
			}
			return
		}
		if line == "" {
			continue
		}

		response, exit := d.dispatch(line)
		if _, err := writer.WriteString(response + "\n"); err != nil {
			return
		}
		if err := writer.Flush(); err != nil {
			return
		}
		if exit {
			return
		}
	}
}

// readLine reads one line, stripping the trailing newline and any
// preceding carriage return (tolerating CRLF clients).
func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		if err == io.EOF && line != "" {
			return strings.TrimRight(line, "\r\n"), nil
		}
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// dispatch parses and executes one command line, returning the response
// line to send and whether the connection should close afterward.
func (d *Dispatcher) dispatch(line string) (response string, exit bool) {
	verb, rest := splitHead(line)
	upperVerb := strings.ToUpper(verb)

	switch upperVerb {
	case "INSERT":
		return d.handleInsert(rest, false), false
	case "INSERT_OR_UPDATE":
		return d.handleInsert(rest, true), false
	case "INSERT_OR_UPDATE_MANY":
		return d.handleInsertMany(rest), false
	case "GET":
		return d.handleGet(rest), false
	case "DELETE":
		return d.handleDelete(rest), false
	case "DELETE_MANY":
		return d.handleDeleteMany(rest), false
	case "LIST":
		return d.handleList(), false
	case "QUERY":
		return d.handleQuery(rest), false
	case "EXIT":
		return "BYE", true
	case "":
		return "ERR Unknown command", false
	default:
		return "ERR Unknown command", false
	}
}

// splitHead splits line into its first whitespace-delimited token and the
// remainder (with leading whitespace trimmed once).
func splitHead(line string) (head, rest string) {
	line = strings.TrimSpace(line)
	idx := strings.IndexByte(line, ' ')
	if idx < 0 {
		return line, ""
	}
	return line[:idx], strings.TrimSpace(line[idx+1:])
}

func (d *Dispatcher) handleInsert(rest string, allowReplace bool) string {
	key, jsonTok := splitHead(rest)
	if key == "" || jsonTok == "" {
		verb := "INSERT"
		if allowReplace {
			verb = "INSERT_OR_UPDATE"
		}
		return fmt.Sprintf("ERR Usage: %s <key> <json>", verb)
	}
	if !json.Valid([]byte(jsonTok)) {
		return "ERR invalid json value"
	}
	if err := d.st.InsertOrUpdate(key, json.RawMessage(jsonTok)); err != nil {
		return "ERR " + err.Error()
	}
	return "OK"
}

func (d *Dispatcher) handleInsertMany(rest string) string {
	if rest == "" {
		return "ERR Usage: INSERT_OR_UPDATE_MANY <json-array-of-[key,value]>"
	}
	var pairs [][2]json.RawMessage
	if err := json.Unmarshal([]byte(rest), &pairs); err != nil {
		return "ERR invalid json array: " + err.Error()
	}
	items := make([]store.KV, 0, len(pairs))
	for _, p := range pairs {
		var key string
		if err := json.Unmarshal(p[0], &key); err != nil {
			return "ERR invalid key in array: " + err.Error()
		}
		items = append(items, store.KV{Key: key, Value: p[1]})
	}
	if err := d.st.InsertOrUpdateMany(items); err != nil {
		return "ERR " + err.Error()
	}
	return "OK"
}

func (d *Dispatcher) handleGet(rest string) string {
	key := strings.TrimSpace(rest)
	if key == "" {
		return "ERR Usage: GET <key>"
	}
	value, ok := d.st.Get(key)
	if !ok {
		return "NULL"
	}
	return string(value)
}

func (d *Dispatcher) handleDelete(rest string) string {
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return "ERR Usage: DELETE <key>"
	}
	if strings.EqualFold(rest, "ALL") {
		if err := d.st.DeleteAll(); err != nil {
			return "ERR " + err.Error()
		}
		return "OK"
	}
	if strings.ContainsAny(rest, " \t") {
		return "ERR Usage: DELETE <key>"
	}
	if err := d.st.Delete(rest); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "ERR not found"
		}
		return "ERR " + err.Error()
	}
	return "OK"
}

func (d *Dispatcher) handleDeleteMany(rest string) string {
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return "ERR Usage: DELETE_MANY <json-array-of-keys>"
	}
	var keys []string
	if err := json.Unmarshal([]byte(rest), &keys); err != nil {
		return "ERR invalid json array: " + err.Error()
	}
	if err := d.st.DeleteMany(keys); err != nil {
		return "ERR " + err.Error()
	}
	return "OK"
}

func (d *Dispatcher) handleList() string {
	values := d.st.List()
	out, err := json.Marshal(values)
	if err != nil {
		return "ERR " + err.Error()
	}
	return string(out)
}

func (d *Dispatcher) handleQuery(rest string) string {
	if rest == "" {
		return "ERR Usage: QUERY <expr>"
	}
	expr, err := query.Parse(rest)
	if err != nil {
		return "ERR " + err.Error()
	}
	values := d.st.Query(expr)
	out, err := json.Marshal(values)
	if err != nil {
		return "ERR " + err.Error()
	}
	return string(out)
}
