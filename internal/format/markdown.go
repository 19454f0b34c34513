package format

import (
	"fmt"
	"math"
	"strings"

	"github.com/loqalabs/loqa-scribe/internal/transcript"
)

// utterance is a segment with non-blank text, ready for the markdown layouts.
type utterance struct {
	speaker string
	text    string
	start   float64
}

func utterances(t *transcript.Transcript) []utterance {
	out := make([]utterance, 0, len(t.Segments))
	for _, seg := range t.Segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		out = append(out, utterance{speaker: seg.SpeakerOrDefault(), text: text, start: seg.Start})
	}
	return out
}

// clockTimestamp formats seconds as MM:SS, or HH:MM:SS past the first hour.
func clockTimestamp(seconds float64) string {
	hours := int(math.Floor(seconds / 3600))
	minutes := int(math.Floor(floorMod(seconds, 3600) / 60))
	secs := int(floorMod(seconds, 60))
	if hours > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, secs)
	}
	return fmt.Sprintf("%02d:%02d", minutes, secs)
}

func floorMod(a, b float64) float64 {
	return a - b*math.Floor(a/b)
}

func renderMDBasic(t *transcript.Transcript, timestamps bool) string {
	var lines []string
	for _, u := range utterances(t) {
		if timestamps {
			lines = append(lines, fmt.Sprintf("%s [%s]: %s", u.speaker, clockTimestamp(u.start), u.text))
		} else {
			lines = append(lines, fmt.Sprintf("%s: %s", u.speaker, u.text))
		}
		lines = append(lines, "")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func renderMDList(t *transcript.Transcript, timestamps bool) string {
	var lines []string
	for _, u := range utterances(t) {
		if timestamps {
			lines = append(lines, fmt.Sprintf("- **%s** [%s]: %s", u.speaker, clockTimestamp(u.start), u.text))
		} else {
			lines = append(lines, fmt.Sprintf("- **%s**: %s", u.speaker, u.text))
		}
	}
	return strings.Join(lines, "\n")
}

func renderMDQuote(t *transcript.Transcript, timestamps bool) string {
	var lines []string
	for _, u := range utterances(t) {
		if len(lines) > 0 {
			lines = append(lines, ">")
		}
		if timestamps {
			lines = append(lines, fmt.Sprintf("> **%s** [%s]: %s", u.speaker, clockTimestamp(u.start), u.text))
		} else {
			lines = append(lines, fmt.Sprintf("> **%s**: %s", u.speaker, u.text))
		}
	}
	return strings.Join(lines, "\n")
}

// renderMDTable lays a two-party conversation out as side-by-side columns
// and anything else as one row per utterance.
func renderMDTable(t *transcript.Transcript, timestamps bool) string {
	if speakers := t.Speakers(); len(speakers) == 2 {
		return twoSpeakerTable(utterances(t), speakers, timestamps)
	}
	return multiSpeakerTable(utterances(t), timestamps)
}

func twoSpeakerTable(us []utterance, speakers []string, timestamps bool) string {
	lines := []string{
		fmt.Sprintf("| %s | %s |", speakers[0], speakers[1]),
		"| --- | --- |",
	}
	for _, u := range us {
		text := escapePipes(u.text)
		if timestamps {
			text = fmt.Sprintf("[%s] %s", clockTimestamp(u.start), text)
		}
		left, right := "", text
		if u.speaker == speakers[0] {
			left, right = text, ""
		}
		lines = append(lines, fmt.Sprintf("| %s | %s |", left, right))
	}
	return strings.Join(lines, "\n")
}

func multiSpeakerTable(us []utterance, timestamps bool) string {
	var lines []string
	if timestamps {
		lines = []string{"| Time | Speaker | Message |", "| --- | --- | --- |"}
	} else {
		lines = []string{"| Speaker | Message |", "| --- | --- |"}
	}
	for _, u := range us {
		text := escapePipes(u.text)
		if timestamps {
			lines = append(lines, fmt.Sprintf("| %s | %s | %s |", clockTimestamp(u.start), u.speaker, text))
		} else {
			lines = append(lines, fmt.Sprintf("| %s | %s |", u.speaker, text))
		}
	}
	return strings.Join(lines, "\n")
}

func escapePipes(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
