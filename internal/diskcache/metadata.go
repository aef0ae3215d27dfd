package diskcache

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
)

// Metadata is the decoded contents of an entry's "<key>.0" file, matching
// spec.md §6's metadata file format: url, method, vary headers captured at
// request time, response status line, response headers (plus the synthetic
// Sent/Received-Millis pair), and TLS details when the origin was HTTPS.
type Metadata struct {
	URL           string
	Method        string
	VaryHeaders   http.Header
	StatusCode    int
	StatusText    string
	Headers       http.Header
	SentMillis    int64
	ReceivedMillis int64
	TLS           bool
	CipherSuite   string
	TLSVersion    string
}

const headerPrefix = "Vortex"

// WriteTo serializes the metadata in the LF-terminated text format from
// spec.md §6.
func (m *Metadata) WriteTo(w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%s\n", m.URL)
	fmt.Fprintf(bw, "%s\n", m.Method)

	fmt.Fprintf(bw, "%d\n", len(m.VaryHeaders))
	for name, values := range m.VaryHeaders {
		for _, v := range values {
			fmt.Fprintf(bw, "%s: %s\n", name, v)
		}
	}

	fmt.Fprintf(bw, "%d %s\n", m.StatusCode, m.StatusText)

	headers := cloneHeaderWithSyntheticFields(m.Headers, m.SentMillis, m.ReceivedMillis)
	fmt.Fprintf(bw, "%d\n", len(headers))
	for name, values := range headers {
		for _, v := range values {
			fmt.Fprintf(bw, "%s: %s\n", name, v)
		}
	}

	if m.TLS {
		fmt.Fprintln(bw)
		fmt.Fprintf(bw, "%s\n", m.CipherSuite)
		fmt.Fprintf(bw, "%s\n", m.TLSVersion)
	}

	return bw.Flush()
}

func cloneHeaderWithSyntheticFields(h http.Header, sent, received int64) http.Header {
	out := make(http.Header, len(h)+2)
	for k, v := range h {
		out[k] = append([]string(nil), v...)
	}
	out.Set(headerPrefix+"-Sent-Millis", strconv.FormatInt(sent, 10))
	out.Set(headerPrefix+"-Received-Millis", strconv.FormatInt(received, 10))
	return out
}

// ReadMetadata parses a "<key>.0" file per the format WriteTo produces.
func ReadMetadata(r io.Reader) (*Metadata, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	readLine := func() (string, error) {
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return "", err
			}
			return "", io.ErrUnexpectedEOF
		}
		return scanner.Text(), nil
	}

	m := &Metadata{Headers: make(http.Header), VaryHeaders: make(http.Header)}

	url, err := readLine()
	if err != nil {
		return nil, fmt.Errorf("diskcache: reading url: %w", err)
	}
	m.URL = url

	method, err := readLine()
	if err != nil {
		return nil, fmt.Errorf("diskcache: reading method: %w", err)
	}
	m.Method = method

	varyCount, err := readCount(readLine)
	if err != nil {
		return nil, fmt.Errorf("diskcache: reading vary count: %w", err)
	}
	for i := 0; i < varyCount; i++ {
		line, err := readLine()
		if err != nil {
			return nil, fmt.Errorf("diskcache: reading vary header %d: %w", i, err)
		}
		name, value := splitHeaderLine(line)
		m.VaryHeaders.Add(name, value)
	}

	statusLine, err := readLine()
	if err != nil {
		return nil, fmt.Errorf("diskcache: reading status line: %w", err)
	}
	parts := strings.SplitN(statusLine, " ", 2)
	code, err := strconv.Atoi(parts[0])
	if err != nil {
		return nil, fmt.Errorf("diskcache: parsing status code: %w", err)
	}
	m.StatusCode = code
	if len(parts) > 1 {
		m.StatusText = parts[1]
	}

	headerCount, err := readCount(readLine)
	if err != nil {
		return nil, fmt.Errorf("diskcache: reading header count: %w", err)
	}
	for i := 0; i < headerCount; i++ {
		line, err := readLine()
		if err != nil {
			return nil, fmt.Errorf("diskcache: reading header %d: %w", i, err)
		}
		name, value := splitHeaderLine(line)
		switch name {
		case headerPrefix + "-Sent-Millis":
			m.SentMillis, _ = strconv.ParseInt(value, 10, 64)
		case headerPrefix + "-Received-Millis":
			m.ReceivedMillis, _ = strconv.ParseInt(value, 10, 64)
		default:
			m.Headers.Add(name, value)
		}
	}

	if scanner.Scan() {
		m.TLS = true
		cipher := scanner.Text()
		if scanner.Scan() {
			m.CipherSuite = cipher
			m.TLSVersion = scanner.Text()
		}
	}

	return m, nil
}

func readCount(readLine func() (string, error)) (int, error) {
	line, err := readLine()
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(line)
}

func splitHeaderLine(line string) (name, value string) {
	idx := strings.Index(line, ": ")
	if idx < 0 {
		return line, ""
	}
	return line[:idx], line[idx+2:]
}

// Matches implements spec.md's cache-get contract: a cached Metadata
// matches an incoming request when the method agrees and every header
// named by the stored Vary set agrees between the captured request and the
// new one. A literal "Vary: *" never matches (handled by the caller, which
// must refuse to store such a response in the first place).
func (m *Metadata) Matches(method string, headers http.Header) bool {
	if m.Method != method {
		return false
	}
	for name, values := range m.VaryHeaders {
		if len(values) == 0 {
			continue
		}
		if headers.Get(name) != values[0] {
			return false
		}
	}
	return true
}
