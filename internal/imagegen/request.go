package imagegen

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	MinPromptLength = 3
	MaxPromptLength = 1000
	MinComposeArity = 2
)

// Mode selects which of the three supported arities a request uses.
type Mode string

const (
	ModeText    Mode = "text"
	ModeEdit    Mode = "edit"
	ModeCompose Mode = "compose"
)

// ParseMode accepts the canonical mode names.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeText, ModeEdit, ModeCompose:
		return m, nil
	default:
		return "", fmt.Errorf("unsupported mode %q", s)
	}
}

// Slots is the number of upload slots a surface of this mode offers.
func (m Mode) Slots() int {
	switch m {
	case ModeEdit:
		return 1
	case ModeCompose:
		return 3
	default:
		return 0
	}
}

type promptMessages struct {
	empty, short, long string
}

var modePrompts = map[Mode]promptMessages{
	ModeText: {
		empty: "Please enter a description for the image you want to generate.",
		short: "Please provide a more detailed description (at least 3 characters).",
		long:  "Description is too long. Please keep it under 1000 characters.",
	},
	ModeEdit: {
		empty: "Please enter editing instructions for the image.",
		short: "Please provide more detailed editing instructions (at least 3 characters).",
		long:  "Editing instructions are too long. Please keep them under 1000 characters.",
	},
	ModeCompose: {
		empty: "Please enter composition instructions for combining the images.",
		short: "Please provide more detailed composition instructions (at least 3 characters).",
		long:  "Composition instructions are too long. Please keep them under 1000 characters.",
	},
}

const (
	msgEditMissing     = "Please select an image to edit first."
	msgEditTooMany     = "Please select a single image to edit."
	msgComposeArity    = "Please select at least 2 images to combine."
	msgTextWithImages  = "Text-to-image requests do not accept uploaded images."
	msgAttachmentSize  = "%s is larger than 10MB. Please choose a smaller file."
	msgAttachmentType  = "%s is not an image. Supported formats are PNG, JPG, JPEG and WebP."
	msgAttachmentRead  = "Could not read %s. Please try uploading it again."
	msgUnsupportedMode = "Unsupported generation mode."
)

func validationError(message string) *Error {
	return newError(KindValidation, message)
}

// ValidatePrompt trims the prompt and checks it against the mode's bounds.
// Length is counted in characters, not bytes.
func ValidatePrompt(mode Mode, prompt string) (string, error) {
	msgs, ok := modePrompts[mode]
	if !ok {
		return "", validationError(msgUnsupportedMode)
	}
	trimmed := strings.TrimSpace(prompt)
	if trimmed == "" {
		return "", validationError(msgs.empty)
	}
	n := utf8.RuneCountInString(trimmed)
	if n < MinPromptLength {
		return "", validationError(msgs.short)
	}
	if n > MaxPromptLength {
		return "", validationError(msgs.long)
	}
	return trimmed, nil
}

// CheckAttachment applies the per-file size and type limits. index is the
// zero-based upload position, used to name unnamed files.
func CheckAttachment(index int, a Attachment) error {
	if a.Size > MaxAttachmentBytes {
		return validationError(fmt.Sprintf(msgAttachmentSize, a.label(index)))
	}
	if !a.IsImage() {
		return validationError(fmt.Sprintf(msgAttachmentType, a.label(index)))
	}
	return nil
}

// InlineImage is a base64 encoded image carried inside a request part.
type InlineImage struct {
	MIMEType string
	Data     string
}

// Part is either a text part or an inline image part.
type Part struct {
	Text  string
	Image *InlineImage
}

// GenerationRequest is the ordered part sequence sent to the provider: the
// prompt first, then images in upload order.
type GenerationRequest struct {
	Mode  Mode
	Parts []Part
}

// Prompt returns the text of the leading part.
func (r GenerationRequest) Prompt() string {
	if len(r.Parts) == 0 {
		return ""
	}
	return r.Parts[0].Text
}

// Images returns the inline image parts in order.
func (r GenerationRequest) Images() []InlineImage {
	var out []InlineImage
	for _, p := range r.Parts {
		if p.Image != nil {
			out = append(out, *p.Image)
		}
	}
	return out
}

// BuildRequest validates user input and assembles the part sequence. Checks
// run in a fixed order and the first violation wins: prompt presence, prompt
// length, attachment presence, per-attachment size and type, then compose arity.
func BuildRequest(mode Mode, prompt string, attachments []Attachment) (GenerationRequest, error) {
	text, err := ValidatePrompt(mode, prompt)
	if err != nil {
		return GenerationRequest{}, err
	}

	switch mode {
	case ModeText:
		if len(attachments) > 0 {
			return GenerationRequest{}, validationError(msgTextWithImages)
		}
	case ModeEdit:
		if len(attachments) == 0 {
			return GenerationRequest{}, validationError(msgEditMissing)
		}
	case ModeCompose:
		if len(attachments) == 0 {
			return GenerationRequest{}, validationError(msgComposeArity)
		}
	}

	for i, a := range attachments {
		if err := CheckAttachment(i, a); err != nil {
			return GenerationRequest{}, err
		}
	}

	switch {
	case mode == ModeCompose && len(attachments) < MinComposeArity:
		return GenerationRequest{}, validationError(msgComposeArity)
	case mode == ModeEdit && len(attachments) > 1:
		return GenerationRequest{}, validationError(msgEditTooMany)
	}

	parts := make([]Part, 0, len(attachments)+1)
	parts = append(parts, Part{Text: text})
	for i, a := range attachments {
		data, err := a.Encode()
		if err != nil {
			return GenerationRequest{}, &Error{
				Kind:    KindValidation,
				Message: fmt.Sprintf(msgAttachmentRead, a.label(i)),
				Err:     err,
			}
		}
		parts = append(parts, Part{Image: &InlineImage{MIMEType: a.MIMEType, Data: data}})
	}
	return GenerationRequest{Mode: mode, Parts: parts}, nil
}
