package studio

import (
	"strings"

	"studio/internal/imagegen"
)

// View is a render-ready snapshot of a surface.
type View struct {
	ID      string        `json:"id"`
	Mode    imagegen.Mode `json:"mode"`
	Prompt  string        `json:"prompt"`
	Slots   []SlotView    `json:"slots"`
	Loading bool          `json:"loading"`
	Image   string        `json:"image,omitempty"`
	Error   *ErrorView    `json:"error,omitempty"`
}

type SlotView struct {
	Index    int    `json:"index"`
	Filled   bool   `json:"filled"`
	Name     string `json:"name,omitempty"`
	MIMEType string `json:"mime_type,omitempty"`
	Size     int64  `json:"size,omitempty"`
	Preview  string `json:"preview,omitempty"`
}

// ErrorView is the display form of a failed generation.
type ErrorView struct {
	Kind    imagegen.Kind `json:"kind"`
	Title   string        `json:"title"`
	Message string        `json:"message"`
}

// NewErrorView converts a classified error for display.
func NewErrorView(e *imagegen.Error) *ErrorView {
	if e == nil {
		return nil
	}
	return &ErrorView{Kind: e.Kind, Title: e.Kind.Title(), Message: e.Message}
}

// Ready reports whether the submit action should be enabled.
func (v View) Ready() bool {
	if v.Loading || strings.TrimSpace(v.Prompt) == "" {
		return false
	}
	filled := 0
	for _, s := range v.Slots {
		if s.Filled {
			filled++
		}
	}
	switch v.Mode {
	case imagegen.ModeEdit:
		return filled == 1
	case imagegen.ModeCompose:
		return filled >= imagegen.MinComposeArity
	default:
		return true
	}
}
