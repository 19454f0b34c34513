// Package format renders transcripts into the response formats offered by
// the transcription endpoints.
package format

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/loqalabs/loqa-scribe/internal/transcript"
)

// ErrUnsupportedFormat is returned for format names Render does not know.
var ErrUnsupportedFormat = errors.New("unsupported format")

// Format names a response layout.
type Format string

const (
	JSON        Format = "json"
	VerboseJSON Format = "verbose_json"
	VTTJSON     Format = "vtt_json"
	Text        Format = "text"
	SRT         Format = "srt"
	VTT         Format = "vtt"
	Audacity    Format = "aud"
	MDBasic     Format = "md_basic"
	MDList      Format = "md_list"
	MDQuote     Format = "md_quote"
	MDTable     Format = "md_table"
)

// MediaType is the response content type of a rendered transcript.
type MediaType string

const (
	MediaTypeJSON     MediaType = "application/json"
	MediaTypeText     MediaType = "text/plain"
	MediaTypeVTT      MediaType = "text/vtt"
	MediaTypeMarkdown MediaType = "text/markdown"
)

// ContentType returns the header value, adding a charset for text types.
func (m MediaType) ContentType() string {
	if strings.HasPrefix(string(m), "text/") {
		return string(m) + "; charset=utf-8"
	}
	return string(m)
}

var mediaTypes = map[Format]MediaType{
	JSON:        MediaTypeJSON,
	VerboseJSON: MediaTypeJSON,
	VTTJSON:     MediaTypeJSON,
	Text:        MediaTypeText,
	SRT:         MediaTypeText,
	VTT:         MediaTypeVTT,
	Audacity:    MediaTypeText,
	MDBasic:     MediaTypeMarkdown,
	MDList:      MediaTypeMarkdown,
	MDQuote:     MediaTypeMarkdown,
	MDTable:     MediaTypeMarkdown,
}

// All lists the supported formats in presentation order.
func All() []Format {
	return []Format{JSON, VerboseJSON, VTTJSON, Text, SRT, VTT, Audacity, MDBasic, MDList, MDQuote, MDTable}
}

// MediaTypeOf returns the media type for f.
func MediaTypeOf(f Format) (MediaType, bool) {
	m, ok := mediaTypes[f]
	return m, ok
}

// ParseFormat validates a format name.
func ParseFormat(name string) (Format, error) {
	f := Format(strings.TrimSpace(name))
	if _, ok := mediaTypes[f]; !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, name)
	}
	return f, nil
}

const defaultMaxLineWidth = 1000

// Options tunes the subtitle writers and markdown layouts. Zero MaxLineWidth
// and MaxLineCount mean "unset".
type Options struct {
	MaxLineWidth      int  `json:"max_line_width,omitempty"`
	MaxLineCount      int  `json:"max_line_count,omitempty"`
	HighlightWords    bool `json:"highlight_words,omitempty"`
	IncludeTimestamps bool `json:"include_timestamps,omitempty"`
}

func DefaultOptions() Options {
	return Options{MaxLineWidth: defaultMaxLineWidth}
}

// Result is a rendered transcript.
type Result struct {
	Body      []byte
	MediaType MediaType
}

// Render formats t as f.
func Render(t *transcript.Transcript, f Format, opts Options) (Result, error) {
	if t == nil {
		t = &transcript.Transcript{}
	}
	switch f {
	case JSON:
		body, err := encodeJSON(map[string]string{"text": t.Text})
		return Result{Body: body, MediaType: MediaTypeJSON}, err
	case VerboseJSON:
		body, err := encodeJSON(t.Fields())
		return Result{Body: body, MediaType: MediaTypeJSON}, err
	case VTTJSON:
		fields := t.Fields()
		fields["vtt_text"] = renderVTT(t, opts)
		body, err := encodeJSON(fields)
		return Result{Body: body, MediaType: MediaTypeJSON}, err
	case Text:
		return text(t.Text, MediaTypeText), nil
	case SRT:
		return text(renderSRT(t, opts), MediaTypeText), nil
	case VTT:
		return text(renderVTT(t, opts), MediaTypeVTT), nil
	case Audacity:
		return text(renderAudacity(t), MediaTypeText), nil
	case MDBasic:
		return text(renderMDBasic(t, opts.IncludeTimestamps), MediaTypeMarkdown), nil
	case MDList:
		return text(renderMDList(t, opts.IncludeTimestamps), MediaTypeMarkdown), nil
	case MDQuote:
		return text(renderMDQuote(t, opts.IncludeTimestamps), MediaTypeMarkdown), nil
	case MDTable:
		return text(renderMDTable(t, opts.IncludeTimestamps), MediaTypeMarkdown), nil
	default:
		return Result{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, f)
	}
}

func text(s string, m MediaType) Result {
	return Result{Body: []byte(s), MediaType: m}
}

func encodeJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("encode json: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
