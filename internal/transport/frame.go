package transport

import (
	"errors"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/iksnae/chat-session/internal"
)

const (
	dataPrefix   = "data:"
	doneSentinel = "[DONE]"
)

// Event is one decoded step of a completion stream
type Event struct {
	Delta   string
	Sources []internal.Source
	Status  string
	IsFinal bool
}

type frameKind int

const (
	frameIgnored frameKind = iota // not a data frame, or nothing to report
	frameInvalid                  // data frame that failed to decode
	frameEvent                    // carries a delta, sources or a status
	frameDone                     // terminal sentinel
)

// envelope is the incremental-completion payload of one data frame
type envelope struct {
	Choices []struct {
		Delta struct {
			Content     *string      `json:"content"`
			Annotations []annotation `json:"annotations"`
		} `json:"delta"`
	} `json:"choices"`
	Citations []string `json:"citations"`
	Status    string   `json:"status"`
}

type annotation struct {
	Type        string `json:"type"`
	URLCitation *struct {
		URL     string `json:"url"`
		Title   string `json:"title"`
		Content string `json:"content"`
	} `json:"url_citation"`
}

var errNoChoices = errors.New("envelope has no choices, citations or status")

// decodeFrame classifies a single line of the response body
func decodeFrame(line string) (Event, frameKind, error) {
	line = strings.TrimRight(line, "\r")
	if !strings.HasPrefix(line, dataPrefix) {
		return Event{}, frameIgnored, nil
	}
	payload := strings.TrimPrefix(line[len(dataPrefix):], " ")
	if payload == doneSentinel {
		return Event{IsFinal: true}, frameDone, nil
	}

	var env envelope
	if err := sonic.UnmarshalString(payload, &env); err != nil {
		return Event{}, frameInvalid, &internal.StreamDecodeError{Frame: payload, Err: err}
	}
	if len(env.Choices) == 0 && len(env.Citations) == 0 && env.Status == "" {
		return Event{}, frameInvalid, &internal.StreamDecodeError{Frame: payload, Err: errNoChoices}
	}

	var ev Event
	ev.Status = env.Status
	if len(env.Choices) > 0 {
		delta := env.Choices[0].Delta
		if delta.Content != nil {
			ev.Delta = *delta.Content
		}
		for _, a := range delta.Annotations {
			if a.URLCitation == nil || a.URLCitation.URL == "" {
				continue
			}
			ev.Sources = append(ev.Sources, internal.NewSource(a.URLCitation.Title, a.URLCitation.URL, a.URLCitation.Content))
		}
	}
	for _, url := range env.Citations {
		if url == "" {
			continue
		}
		ev.Sources = append(ev.Sources, internal.NewSource(url, url, ""))
	}

	if ev.Delta == "" && len(ev.Sources) == 0 && ev.Status == "" {
		return Event{}, frameIgnored, nil
	}
	return ev, frameEvent, nil
}
