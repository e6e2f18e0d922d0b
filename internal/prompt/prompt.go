// Package prompt renders instruction templates into prompts for the model.
//
// Templates use text/template syntax. Two functions are available inside
// a template:
//
//	{{media .Image}}        embeds the image inline at this point of the instruction
//	{{join .Items ", "}}    joins a list with a separator
//
// Rendering is a pure function of its input.
package prompt

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"github.com/franckalain/healthwise/internal/models"
	"github.com/google/uuid"
)

// A media marker brackets a media index inside rendered text. Each render
// uses a fresh nonce so template data cannot forge a marker.
const (
	markerOpen  = "\x1emedia:"
	markerClose = "\x1f"
)

// Media is binary content sent inline with the instruction.
type Media struct {
	MIMEType string
	Data     []byte
}

// Part is one piece of a prompt: text or media, never both.
type Part struct {
	Text  string
	Media *Media
}

// Prompt is a rendered instruction.
type Prompt struct {
	Parts []Part
}

// Text returns the instruction with a placeholder at each media position.
func (p Prompt) Text() string {
	var b strings.Builder
	for _, part := range p.Parts {
		if part.Media != nil {
			fmt.Fprintf(&b, "[media:%s]", part.Media.MIMEType)
			continue
		}
		b.WriteString(part.Text)
	}
	return b.String()
}

// Media returns the media parts in order.
func (p Prompt) Media() []*Media {
	var out []*Media
	for _, part := range p.Parts {
		if part.Media != nil {
			out = append(out, part.Media)
		}
	}
	return out
}

// Template is a compiled instruction template.
type Template struct {
	name string
	tmpl *template.Template
}

var baseFuncs = template.FuncMap{
	"media": func(any) (string, error) { return "", errors.New("media used outside Render") },
	"join":  join,
}

// New compiles text into a Template.
func New(name, text string) (*Template, error) {
	t, err := template.New(name).Option("missingkey=error").Funcs(baseFuncs).Parse(text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse prompt template %s: %w", name, err)
	}
	return &Template{name: name, tmpl: t}, nil
}

// Must is like New but panics on error. It is meant for package-level templates.
func Must(name, text string) *Template {
	t, err := New(name, text)
	if err != nil {
		panic(err)
	}
	return t
}

// Name returns the template name.
func (t *Template) Name() string { return t.name }

// Render executes the template against data.
func (t *Template) Render(data any) (Prompt, error) {
	var media []*Media
	open := markerOpen + uuid.NewString() + ":"
	tmpl, err := t.tmpl.Clone()
	if err != nil {
		return Prompt{}, fmt.Errorf("failed to clone prompt template %s: %w", t.name, err)
	}
	tmpl.Funcs(template.FuncMap{
		"media": func(v any) (string, error) {
			m, err := toMedia(v)
			if err != nil {
				return "", err
			}
			media = append(media, m)
			return fmt.Sprintf("%s%d%s", open, len(media)-1, markerClose), nil
		},
	})

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return Prompt{}, fmt.Errorf("failed to render prompt %s: %w", t.name, err)
	}
	return split(buf.String(), open, media)
}

func toMedia(v any) (*Media, error) {
	switch m := v.(type) {
	case *models.ProductImage:
		if m == nil {
			return nil, errors.New("media: nil image")
		}
		return &Media{MIMEType: m.MIMEType, Data: m.Data}, nil
	case models.ProductImage:
		return &Media{MIMEType: m.MIMEType, Data: m.Data}, nil
	case *Media:
		if m == nil {
			return nil, errors.New("media: nil media")
		}
		return m, nil
	case Media:
		return &m, nil
	}
	return nil, fmt.Errorf("media: unsupported value of type %T", v)
}

// split cuts rendered text at media markers.
func split(text, open string, media []*Media) (Prompt, error) {
	var p Prompt
	for {
		i := strings.Index(text, open)
		if i < 0 {
			break
		}
		if i > 0 {
			p.Parts = append(p.Parts, Part{Text: text[:i]})
		}
		rest := text[i+len(open):]
		j := strings.Index(rest, markerClose)
		if j < 0 {
			return Prompt{}, errors.New("unterminated media marker")
		}
		var idx int
		if _, err := fmt.Sscanf(rest[:j], "%d", &idx); err != nil || idx < 0 || idx >= len(media) {
			return Prompt{}, fmt.Errorf("bad media marker %q", rest[:j])
		}
		p.Parts = append(p.Parts, Part{Media: media[idx]})
		text = rest[j+len(markerClose):]
	}
	if text != "" {
		p.Parts = append(p.Parts, Part{Text: text})
	}
	return p, nil
}

func join(items []string, sep string) string {
	return strings.Join(items, sep)
}
