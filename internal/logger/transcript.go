package logger

import (
	"io"
	"log"
	"strings"
	"sync"
)

var (
	transcriptMu  sync.Mutex
	transcriptLog *log.Logger
)

// SetTranscriptWriter directs classifier request/response transcripts to w.
// Passing nil disables transcript logging.
func SetTranscriptWriter(w io.Writer) {
	transcriptMu.Lock()
	defer transcriptMu.Unlock()
	if w == nil {
		transcriptLog = nil
		return
	}
	transcriptLog = log.New(w, "", log.LstdFlags)
}

type transcriptSection struct {
	Title string
	Body  string
}

func logTranscript(kind, model string, sections []transcriptSection) {
	transcriptMu.Lock()
	logger := transcriptLog
	transcriptMu.Unlock()
	if logger == nil {
		return
	}
	var b strings.Builder
	b.WriteString("[classifier]")
	if kind != "" {
		b.WriteString("[")
		b.WriteString(kind)
		b.WriteString("]")
	}
	if model != "" {
		b.WriteString("[")
		b.WriteString(model)
		b.WriteString("]")
	}
	b.WriteString("\n")
	for _, sec := range sections {
		t := strings.TrimSpace(sec.Title)
		if t == "" {
			t = "CONTENT"
		}
		b.WriteString("--- ")
		b.WriteString(t)
		b.WriteString(" ---\n")
		body := sec.Body
		b.WriteString(body)
		if !strings.HasSuffix(body, "\n") {
			b.WriteString("\n")
		}
	}
	b.WriteString("=====\n")
	logger.Print(b.String())
}

func LogClassifierRequest(model, systemPrompt, userPrompt string) {
	logTranscript("request", model, []transcriptSection{
		{Title: "SYSTEM", Body: systemPrompt},
		{Title: "USER", Body: userPrompt},
	})
}

func LogClassifierResponse(model, raw string) {
	logTranscript("response", model, []transcriptSection{{Title: "RAW", Body: raw}})
}
