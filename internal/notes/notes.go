// Package notes decodes and encodes contact annotations of the form
//
//	[timestamp] author: content
//
// The raw string is what the backend stores; Annotation is a view over it.
// Decoding never fails: anything that does not match the grammar becomes an
// annotation by "Unknown" stamped with the decode time.
//
// The grammar is ambiguous when author contains ": " or timestamp contains
// "]". Matching is non-greedy on both, so the first "]" ends the timestamp
// and the first ": " after the author ends the author.
package notes

import (
	"regexp"
	"time"

	"crewdesk/internal/model"
)

const UnknownAuthor = "Unknown"

// TimestampLayout is the ISO-8601 UTC form used for fallback stamps.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

var noteRE = regexp.MustCompile(`^\[(.*?)\]\s+(.*?):\s+(.*)$`)

// Codec holds the clock used for fallback timestamps.
type Codec struct {
	Now func() time.Time
}

var std = Codec{Now: time.Now}

func Decode(raw string) model.Annotation { return std.Decode(raw) }

func DecodeAll(raws []string) []model.Annotation { return std.DecodeAll(raws) }

func Encode(a model.Annotation) string { return std.Encode(a) }

func (c Codec) Decode(raw string) model.Annotation {
	if m := noteRE.FindStringSubmatch(raw); m != nil {
		return model.Annotation{Timestamp: m[1], Author: m[2], Content: m[3]}
	}
	return model.Annotation{
		Timestamp: c.now().UTC().Format(TimestampLayout),
		Author:    UnknownAuthor,
		Content:   raw,
	}
}

// DecodeAll decodes in backend order.
func (c Codec) DecodeAll(raws []string) []model.Annotation {
	out := make([]model.Annotation, 0, len(raws))
	for _, r := range raws {
		out = append(out, c.Decode(r))
	}
	return out
}

func (c Codec) Encode(a model.Annotation) string {
	return "[" + a.Timestamp + "] " + a.Author + ": " + a.Content
}

func (c Codec) now() time.Time {
	if c.Now == nil {
		return time.Now()
	}
	return c.Now()
}
