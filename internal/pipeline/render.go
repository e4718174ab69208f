package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ppiankov/claimstream/internal/model"
)

// Export is a recording with its finalized sentences
type Export struct {
	Recording  model.RecordingState `json:"recording"`
	Sentences  []model.Sentence     `json:"sentences"`
	ExportedAt time.Time            `json:"exported_at"`
}

// Export collects a recording for rendering
func (p *Pipeline) Export(ctx context.Context, recordingID string) (*Export, error) {
	rec, err := p.store.GetRecording(ctx, recordingID)
	if err != nil {
		return nil, err
	}
	sentences, err := p.Sentences(ctx, recordingID)
	if err != nil {
		return nil, err
	}
	return &Export{Recording: *rec, Sentences: sentences, ExportedAt: p.now().UTC()}, nil
}

// RenderJSON writes the export as indented JSON
func RenderJSON(w io.Writer, e *Export) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(e)
}

// RenderMarkdown writes a readable transcript with timestamps and claims
func RenderMarkdown(w io.Writer, e *Export) error {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", e.Recording.Name)
	fmt.Fprintf(&b, "- Recording: `%s`\n", e.Recording.ID)
	fmt.Fprintf(&b, "- Sentences: %d\n", len(e.Sentences))
	fmt.Fprintf(&b, "- Exported: %s\n", e.ExportedAt.Format(time.RFC3339))
	if e.Recording.Fault != "" {
		fmt.Fprintf(&b, "- **Fault:** %s\n", e.Recording.Fault)
	}
	b.WriteString("\n## Transcript\n\n")

	claimCount := 0
	for _, s := range e.Sentences {
		fmt.Fprintf(&b, "**[%s]** ", formatOffset(s.StartSeconds))
		if s.Speaker != "" {
			fmt.Fprintf(&b, "*%s:* ", s.Speaker)
		}
		b.WriteString(s.Text)
		b.WriteString("\n")
		for _, c := range s.Claims {
			fmt.Fprintf(&b, "> Claim: %s\n", c)
			claimCount++
		}
		if s.Annotation != "" {
			fmt.Fprintf(&b, "> Note: %s\n", s.Annotation)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "---\n%d claims detected.\n", claimCount)
	_, err := io.WriteString(w, b.String())
	return err
}

func formatOffset(seconds int) string {
	d := time.Duration(seconds) * time.Second
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
