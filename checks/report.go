package checks

import (
	"bytes"
	"fmt"

	"github.com/nao1215/markdown"
)

type Detail struct {
	Name  string
	Value string
}

// Report renders the markdown body shown under a check run's summary.
type Report struct {
	Heading string
	Details []Detail
	Error   string
}

func (r Report) Markdown() (string, error) {
	var buf bytes.Buffer

	md := markdown.NewMarkdown(&buf)

	if r.Heading != "" {
		md.H2(r.Heading)
	}

	if len(r.Details) > 0 {
		entries := make([]string, len(r.Details))

		for i, detail := range r.Details {
			entries[i] = fmt.Sprintf("%s: `%s`", detail.Name, detail.Value)
		}

		md.BulletList(entries...)
	}

	if r.Error != "" {
		md.HorizontalRule()
		md.H3("Error")
		md.CodeBlocks("", r.Error)
	}

	if err := md.Build(); err != nil {
		return "", err
	}

	return buf.String(), nil
}
