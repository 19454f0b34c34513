package format

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/loqalabs/loqa-scribe/internal/transcript"
)

// languages whose words are concatenated without separators
var noSpaceLanguages = map[string]bool{"ja": true, "zh": true}

// long gap between timed words that forces a new cue when lines are packed
const longPauseSeconds = 3.0

type cue struct {
	start string
	end   string
	text  string
}

type subtitleStyle struct {
	alwaysIncludeHours bool
	decimalMarker      byte
}

var (
	srtStyle = subtitleStyle{alwaysIncludeHours: true, decimalMarker: ','}
	vttStyle = subtitleStyle{alwaysIncludeHours: false, decimalMarker: '.'}
)

func (s subtitleStyle) timestamp(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	ms := int64(math.RoundToEven(seconds * 1000))
	hours := ms / 3_600_000
	ms -= hours * 3_600_000
	minutes := ms / 60_000
	ms -= minutes * 60_000
	secs := ms / 1_000
	ms -= secs * 1_000

	prefix := ""
	if s.alwaysIncludeHours || hours > 0 {
		prefix = fmt.Sprintf("%02d:", hours)
	}
	return fmt.Sprintf("%s%02d:%02d%c%03d", prefix, minutes, secs, s.decimalMarker, ms)
}

func renderSRT(t *transcript.Transcript, opts Options) string {
	var b strings.Builder
	for i, c := range subtitleCues(t, srtStyle, opts) {
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n", i+1, c.start, c.end, c.text)
	}
	return b.String()
}

func renderVTT(t *transcript.Transcript, opts Options) string {
	var b strings.Builder
	b.WriteString("WEBVTT\n\n")
	for _, c := range subtitleCues(t, vttStyle, opts) {
		fmt.Fprintf(&b, "%s --> %s\n%s\n\n", c.start, c.end, c.text)
	}
	return b.String()
}

func subtitleCues(t *transcript.Transcript, style subtitleStyle, opts Options) []cue {
	if len(t.Segments) == 0 {
		return nil
	}
	if !t.HasWords() {
		cues := make([]cue, 0, len(t.Segments))
		for _, seg := range t.Segments {
			text := sanitizeArrow(strings.TrimSpace(seg.Text))
			if seg.Speaker != "" {
				text = "[" + seg.Speaker + "]: " + text
			}
			cues = append(cues, cue{start: style.timestamp(seg.Start), end: style.timestamp(seg.End), text: text})
		}
		return cues
	}

	joiner := " "
	if noSpaceLanguages[t.Language] {
		joiner = ""
	}

	var cues []cue
	for _, packed := range packWords(t.Segments, opts) {
		start := style.timestamp(packed.segment.Start)
		end := style.timestamp(packed.segment.End)
		words := make([]string, len(packed.words))
		hasTiming := false
		for i, w := range packed.words {
			words[i] = w.text
			if w.word.Timed() {
				hasTiming = true
			}
		}
		text := strings.Join(words, joiner)
		prefix := ""
		if packed.segment.Speaker != "" {
			prefix = "[" + packed.segment.Speaker + "]: "
		}

		if !opts.HighlightWords || !hasTiming {
			cues = append(cues, cue{start: start, end: end, text: prefix + text})
			continue
		}

		last := start
		for i, w := range packed.words {
			if !w.word.Timed() {
				continue
			}
			wordStart := style.timestamp(*w.word.Start)
			wordEnd := wordStart
			if w.word.End != nil {
				wordEnd = style.timestamp(*w.word.End)
			}
			if last != wordStart {
				cues = append(cues, cue{start: last, end: wordStart, text: prefix + text})
			}
			highlighted := make([]string, len(words))
			for j, word := range words {
				if j == i {
					word = underline(word)
				}
				highlighted[j] = word
			}
			cues = append(cues, cue{start: wordStart, end: wordEnd, text: prefix + strings.Join(highlighted, " ")})
			last = wordEnd
		}
	}
	return cues
}

type packedWord struct {
	text string
	word transcript.Word
}

type packedCue struct {
	words []packedWord
	// segment of the first word; it supplies the cue timing and speaker
	segment transcript.Segment
}

// packWords groups aligned words into cues of at most MaxLineCount lines
// of at most MaxLineWidth characters. Line breaks are embedded in the word
// text as a leading newline.
func packWords(segments []transcript.Segment, opts Options) []packedCue {
	width := opts.MaxLineWidth
	if width <= 0 {
		width = defaultMaxLineWidth
	}
	countSet := opts.MaxLineCount > 0
	preserveSegments := !countSet || opts.MaxLineWidth <= 0

	var (
		cues      []packedCue
		current   packedCue
		lineLen   int
		lineCount = 1
		last      = segments[0].Start
	)
	for _, seg := range segments {
		for i, w := range seg.Words {
			text := w.Word
			longPause := !preserveSegments && w.Timed() && *w.Start-last > longPauseSeconds
			hasRoom := lineLen+utf8.RuneCountInString(text) <= width
			segBreak := i == 0 && len(current.words) > 0 && preserveSegments

			if lineLen > 0 && hasRoom && !longPause && !segBreak {
				lineLen += utf8.RuneCountInString(text)
			} else {
				text = strings.TrimSpace(text)
				if (len(current.words) > 0 && countSet && (longPause || lineCount >= opts.MaxLineCount)) || segBreak {
					cues = append(cues, current)
					current = packedCue{}
					lineCount = 1
				} else if lineLen > 0 {
					lineCount++
					text = "\n" + text
				}
				lineLen = utf8.RuneCountInString(strings.TrimSpace(text))
			}

			if len(current.words) == 0 {
				current.segment = seg
			}
			current.words = append(current.words, packedWord{text: text, word: w})
			if w.Timed() {
				last = *w.Start
			}
		}
	}
	if len(current.words) > 0 {
		cues = append(cues, current)
	}
	return cues
}

// underline wraps the word in <u></u>, leaving leading whitespace outside.
func underline(word string) string {
	body := strings.TrimLeftFunc(word, unicode.IsSpace)
	lead := word[:len(word)-len(body)]
	return lead + "<u>" + body + "</u>"
}

func sanitizeArrow(s string) string {
	return strings.ReplaceAll(s, "-->", "->")
}

func renderAudacity(t *transcript.Transcript) string {
	var b strings.Builder
	for _, seg := range t.Segments {
		label := sanitizeArrow(strings.TrimSpace(seg.Text))
		if seg.Speaker != "" {
			label = "[[" + seg.Speaker + "]]" + label
		}
		b.WriteString(labelSeconds(seg.Start))
		b.WriteByte('\t')
		b.WriteString(labelSeconds(seg.End))
		b.WriteByte('\t')
		b.WriteString(label)
		b.WriteByte('\n')
	}
	return b.String()
}

// labelSeconds prints seconds in the label-file style: shortest
// round-trip digits with a ".0" suffix on integral values.
func labelSeconds(v float64) string {
	abs := math.Abs(v)
	if v != 0 && (abs < 1e-4 || abs >= 1e16) {
		return strconv.FormatFloat(v, 'e', -1, 64)
	}
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
