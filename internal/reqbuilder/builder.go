// Package reqbuilder implements the fluent request builder (C5): chainable
// path/query/body/file param assembly with exclusive body-selection rules,
// path-template substitution, and upload/download progress hooks.
//
// No teacher analog exists for this component; it follows the Design
// Notes' guidance (builder callback chains -> plain struct, methods return
// the same struct) and is written fresh against spec.md §4.5.
package reqbuilder

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/url"
	"strings"
)

// BodyType selects the body-type converter (spec.md §4.5).
type BodyType string

const (
	BodyTypeJSON BodyType = "json"
	BodyTypeForm BodyType = "form"
	BodyTypeRaw  BodyType = "raw"
)

// FilePart is one multipart file param.
type FilePart struct {
	FieldName   string
	FileName    string
	ContentType string
	Data        []byte
}

// ProgressFunc is invoked as the body is read; stepBytes/stepRate gate how
// often it fires (spec.md §4.5).
type ProgressFunc func(sent, total int64)

// Builder assembles one outbound request body + headers + params.
type Builder struct {
	headers       map[string][]string
	pathParams    map[string]string
	urlParams     url.Values
	bodyParams    map[string]any
	fileParts     []FilePart
	bodyObj       any
	bodyObjSet    bool
	addBodyCalled bool
	bodyType      BodyType
	charset       string
	tag           string
	rangeStart    int64
	rangeEnd      int64
	hasRange      bool
	onProgress    ProgressFunc
	stepBytes     int64
	noThrow       bool
	skipPreproc   bool
	skipSerial    bool
}

func New() *Builder {
	return &Builder{
		pathParams: make(map[string]string),
		urlParams:  url.Values{},
		bodyParams: make(map[string]any),
		bodyType:   BodyTypeJSON,
		stepBytes:  8 << 10,
	}
}

func (b *Builder) AddHeader(name, value string) *Builder {
	if b.headers == nil {
		b.headers = make(map[string][]string)
	}
	b.headers[name] = append(b.headers[name], value)
	return b
}

func (b *Builder) AddPathPara(name, value string) *Builder {
	b.pathParams[name] = value
	return b
}

func (b *Builder) AddUrlPara(name, value string) *Builder {
	b.urlParams.Add(name, value)
	return b
}

func (b *Builder) AddBodyPara(name string, value any) *Builder {
	b.addBodyCalled = true
	b.bodyParams[name] = value
	return b
}

func (b *Builder) AddFilePara(part FilePart) *Builder {
	b.addBodyCalled = true
	b.fileParts = append(b.fileParts, part)
	return b
}

// SetBodyPara sets a single body object/bytes/string, per spec.md's
// exclusive "setBodyPara" rule — conflicts with AddBodyPara/AddFilePara.
func (b *Builder) SetBodyPara(obj any) *Builder {
	b.bodyObj = obj
	b.bodyObjSet = true
	return b
}

func (b *Builder) BodyTypeOf(kind BodyType) *Builder { b.bodyType = kind; return b }
func (b *Builder) Tag(s string) *Builder             { b.tag = s; return b }
func (b *Builder) TagValue() string                  { return b.tag }
func (b *Builder) Charset(cs string) *Builder         { b.charset = cs; return b }

func (b *Builder) SetRange(start int64, end ...int64) *Builder {
	b.hasRange = true
	b.rangeStart = start
	if len(end) > 0 {
		b.rangeEnd = end[0]
	}
	return b
}

func (b *Builder) SetOnProcess(cb ProgressFunc, stepBytes int64) *Builder {
	b.onProgress = cb
	if stepBytes > 0 {
		b.stepBytes = stepBytes
	}
	return b
}

func (b *Builder) NoThrow() *Builder          { b.noThrow = true; return b }
func (b *Builder) SkipPreproc() *Builder      { b.skipPreproc = true; return b }
func (b *Builder) SkipSerialPreproc() *Builder { b.skipSerial = true; return b }
func (b *Builder) IsNoThrow() bool            { return b.noThrow }
func (b *Builder) SkipsPreproc() (skip, skipSerial bool) { return b.skipPreproc, b.skipSerial }

// SubstitutePath replaces "{name}" tokens in template with path params;
// any remaining "{...}" token after substitution is fatal (spec.md §4.5).
func SubstitutePath(template string, params map[string]string) (string, error) {
	result := template
	for name, value := range params {
		result = strings.ReplaceAll(result, "{"+name+"}", value)
	}
	if strings.Contains(result, "{") && strings.Contains(result, "}") {
		return "", fmt.Errorf("reqbuilder: unresolved path token in %q", result)
	}
	return result, nil
}

// BuiltBody is the resolved body: content type + byte reader + known length
// (-1 if unknown, forcing chunked transfer per spec.md §6).
type BuiltBody struct {
	ContentType string
	Reader      io.Reader
	Length      int64
}

// Build resolves the body per spec.md §4.5's exclusive selection rules and
// conflict checks, wrapping the reader with progress reporting if
// SetOnProcess was configured.
func (b *Builder) Build(method string) (*BuiltBody, error) {
	if b.bodyObjSet && b.addBodyCalled {
		return nil, fmt.Errorf("reqbuilder: setBodyPara conflicts with addBodyPara/addFilePara")
	}
	if (method == "GET" || method == "HEAD") && (b.bodyObjSet || b.addBodyCalled) {
		return nil, fmt.Errorf("reqbuilder: body not allowed on %s", method)
	}

	body, err := b.resolveBody()
	if err != nil {
		return nil, err
	}
	if b.onProgress != nil && body.Length >= 0 {
		body.Reader = &progressReader{r: body.Reader, total: body.Length, step: b.stepBytes, cb: b.onProgress}
	}
	return body, nil
}

func (b *Builder) resolveBody() (*BuiltBody, error) {
	switch {
	case len(b.fileParts) > 0:
		return b.buildMultipart()
	case b.bodyObjSet:
		return b.buildFromObj()
	case b.bodyType == BodyTypeForm && len(b.bodyParams) > 0:
		return b.buildForm(), nil
	case len(b.bodyParams) > 0:
		return b.buildFromParams()
	default:
		return &BuiltBody{ContentType: "", Reader: bytes.NewReader(nil), Length: 0}, nil
	}
}

func (b *Builder) buildFromObj() (*BuiltBody, error) {
	switch v := b.bodyObj.(type) {
	case []byte:
		return &BuiltBody{ContentType: mediaTypeFor(b.bodyType), Reader: bytes.NewReader(v), Length: int64(len(v))}, nil
	case string:
		return &BuiltBody{ContentType: mediaTypeFor(b.bodyType), Reader: strings.NewReader(v), Length: int64(len(v))}, nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("reqbuilder: serializing body: %w", err)
		}
		return &BuiltBody{ContentType: mediaTypeFor(b.bodyType), Reader: bytes.NewReader(data), Length: int64(len(data))}, nil
	}
}

func (b *Builder) buildFromParams() (*BuiltBody, error) {
	data, err := json.Marshal(b.bodyParams)
	if err != nil {
		return nil, fmt.Errorf("reqbuilder: serializing body params: %w", err)
	}
	return &BuiltBody{ContentType: mediaTypeFor(b.bodyType), Reader: bytes.NewReader(data), Length: int64(len(data))}, nil
}

func (b *Builder) buildForm() *BuiltBody {
	form := url.Values{}
	for k, v := range b.bodyParams {
		form.Set(k, fmt.Sprintf("%v", v))
	}
	encoded := form.Encode()
	return &BuiltBody{ContentType: "application/x-www-form-urlencoded", Reader: strings.NewReader(encoded), Length: int64(len(encoded))}
}

func (b *Builder) buildMultipart() (*BuiltBody, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for name, value := range b.bodyParams {
		if err := w.WriteField(name, fmt.Sprintf("%v", value)); err != nil {
			return nil, fmt.Errorf("reqbuilder: writing form field %q: %w", name, err)
		}
	}
	for _, part := range b.fileParts {
		header := make(map[string][]string)
		header["Content-Disposition"] = []string{fmt.Sprintf(`form-data; name=%q; filename=%q`, part.FieldName, part.FileName)}
		if part.ContentType != "" {
			header["Content-Type"] = []string{part.ContentType}
		}
		pw, err := w.CreatePart(header)
		if err != nil {
			return nil, fmt.Errorf("reqbuilder: creating file part %q: %w", part.FieldName, err)
		}
		if _, err := pw.Write(part.Data); err != nil {
			return nil, fmt.Errorf("reqbuilder: writing file part %q: %w", part.FieldName, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("reqbuilder: closing multipart writer: %w", err)
	}
	return &BuiltBody{ContentType: w.FormDataContentType(), Reader: bytes.NewReader(buf.Bytes()), Length: int64(buf.Len())}, nil
}

func mediaTypeFor(kind BodyType) string {
	switch kind {
	case BodyTypeForm:
		return "application/x-www-form-urlencoded"
	case BodyTypeRaw:
		return "application/octet-stream"
	default:
		return "application/json"
	}
}

type progressReader struct {
	r     io.Reader
	sent  int64
	total int64
	step  int64
	last  int64
	cb    ProgressFunc
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.r.Read(buf)
	if n > 0 {
		p.sent += int64(n)
		if p.sent-p.last >= p.step || p.sent == p.total {
			p.last = p.sent
			p.cb(p.sent, p.total)
		}
	}
	return n, err
}
