package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/goccy/go-json"
)

var asJSON bool

func init() {
	flag.BoolVar(&asJSON, "json", false, "print one json object per line")
}

// Record is one parsed access log line.
type Record struct {
	Time        string `json:"time"`
	RemoteAddr  string `json:"remote_addr"`
	RequestID   string `json:"request_id"`
	Method      string `json:"method"`
	URI         string `json:"uri"`
	Proto       string `json:"proto"`
	Status      int    `json:"status"`
	SentBytes   uint64 `json:"sent_bytes"`
	CacheStatus string `json:"cache_status,omitempty"`
	DownloadID  string `json:"download_id,omitempty"`
	DurationMS  int64  `json:"duration_ms"`
}

var errMalformed = errors.New("malformed access log line")

// parse reads
// time remote_addr request_id "method uri proto" status sent_bytes cache_status download_id duration_ms
func parse(line string) (*Record, error) {
	head, rest, ok := strings.Cut(line, ` "`)
	if !ok {
		return nil, errMalformed
	}
	request, tail, ok := strings.Cut(rest, `" `)
	if !ok {
		return nil, errMalformed
	}

	hf := strings.Fields(head)
	rf := strings.Fields(request)
	tf := strings.Fields(tail)
	if len(hf) != 3 || len(rf) != 3 || len(tf) != 5 {
		return nil, errMalformed
	}

	r := &Record{
		Time:        hf[0],
		RemoteAddr:  hf[1],
		RequestID:   hf[2],
		Method:      rf[0],
		URI:         rf[1],
		Proto:       rf[2],
		CacheStatus: undash(tf[2]),
		DownloadID:  undash(tf[3]),
	}

	var err error
	if r.Status, err = strconv.Atoi(tf[0]); err != nil {
		return nil, fmt.Errorf("%w: status %q", errMalformed, tf[0])
	}
	if r.SentBytes, err = strconv.ParseUint(tf[1], 10, 64); err != nil {
		return nil, fmt.Errorf("%w: sent bytes %q", errMalformed, tf[1])
	}
	if r.DurationMS, err = strconv.ParseInt(tf[4], 10, 64); err != nil {
		return nil, fmt.Errorf("%w: duration %q", errMalformed, tf[4])
	}
	return r, nil
}

func undash(s string) string {
	if s == "-" {
		return ""
	}
	return s
}

func (r *Record) String() string {
	sb := strings.Builder{}
	field := func(name, value string) {
		if value == "" {
			return
		}
		sb.WriteString(name)
		sb.WriteString(": ")
		sb.WriteString(value)
		sb.WriteString("\n")
	}

	field("Time", r.Time)
	field("Client", r.RemoteAddr)
	field("RequestID", r.RequestID)
	field("Request", r.Method+" "+r.URI+" "+r.Proto)
	field("Status", strconv.Itoa(r.Status))
	field("Sent", humanize.IBytes(r.SentBytes))
	field("CacheStatus", r.CacheStatus)
	field("DownloadID", r.DownloadID)
	field("ResponseTime(ms)", strconv.FormatInt(r.DurationMS, 10))
	return sb.String()
}

func main() {
	flag.Parse()

	in := bufio.NewScanner(os.Stdin)
	enc := json.NewEncoder(os.Stdout)
	for in.Scan() {
		line := strings.TrimSpace(in.Text())
		if line == "" {
			continue
		}

		r, err := parse(line)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v: %s\n", err, line)
			continue
		}

		if asJSON {
			_ = enc.Encode(r)
			continue
		}
		fmt.Println(r)
	}
}
