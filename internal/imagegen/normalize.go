package imagegen

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"google.golang.org/genai"

	"studio/internal/infra"
)

// DataURIPrefix is prepended to every returned image payload.
const DataURIPrefix = "data:image/png;base64,"

const (
	msgInvalidResponse   = "Invalid response from the API. Please try again."
	msgProhibited        = "This content was blocked by Google's safety policies. This could be due to your prompt or uploaded image. Please try rephrasing your request or using different content."
	msgSafety            = "This request was blocked by Google's safety filters. Please try a different prompt or image."
	msgRecitation        = "This request was blocked by Google's content policies. Please try rephrasing your request."
	msgOther             = "This request could not be processed by Google's AI. Please try again with a different prompt or image."
	msgRefusalColor      = "Please specify the colors and details you want in your image. The AI needs more specific information."
	msgRefusalDetail     = "Please provide more details in your prompt. Be specific about what you want to see in the image."
	msgRefusalCapability = "The AI cannot generate this type of image. Please try a different description."
	msgRefusalEcho       = "The AI responded with: \"%s\". Please try rephrasing your prompt with more specific details."
	msgNoImage           = "No image was generated. Please try rephrasing your prompt with more specific details."
)

// Result is the outcome of one generation request: exactly one of DataURI or
// Err is set.
type Result struct {
	DataURI string
	Err     *Error
}

// Success wraps an image data URI.
func Success(dataURI string) Result { return Result{DataURI: dataURI} }

// Failure wraps a classified error.
func Failure(kind Kind, message string) Result { return Result{Err: newError(kind, message)} }

// FailureFrom classifies err; unclassified errors become KindUnknown.
func FailureFrom(err error) Result {
	if e, ok := AsError(err); ok {
		return Result{Err: e}
	}
	return Result{Err: &Error{Kind: KindUnknown, Message: "Something went wrong. Please try again.", Err: err}}
}

// OK reports whether the result carries an image.
func (r Result) OK() bool { return r.Err == nil && r.DataURI != "" }

// Unwrap converts the result into Go's value/error pair.
func (r Result) Unwrap() (string, error) {
	if r.Err != nil {
		return "", r.Err
	}
	return r.DataURI, nil
}

// partShape is the closed set of part layouts the provider has produced over
// time. Image shapes are listed in the order they are checked.
type partShape int

const (
	shapeUnknown partShape = iota
	shapeInlineCamel
	shapeInlineSnake
	shapeBareData
	shapeText
)

type inlineBlob struct {
	Data string `json:"data"`
}

// rawPart is decoded leniently: every field is optional and a type mismatch
// in one part never fails the whole response.
type rawPart struct {
	Text            json.RawMessage `json:"text"`
	InlineData      json.RawMessage `json:"inlineData"`
	InlineDataSnake json.RawMessage `json:"inline_data"`
	Data            json.RawMessage `json:"data"`
}

type rawCandidate struct {
	FinishReason json.RawMessage `json:"finishReason"`
	Content      json.RawMessage `json:"content"`
}

type rawContent struct {
	Parts json.RawMessage `json:"parts"`
}

type rawEnvelope struct {
	Candidates json.RawMessage `json:"candidates"`
	Data       json.RawMessage `json:"data"`
}

// Normalizer turns raw provider response bodies into Results.
type Normalizer struct {
	logger *infra.Logger
}

// NewNormalizer constructs a Normalizer. A nil logger discards output.
func NewNormalizer(logger *infra.Logger) *Normalizer {
	if logger == nil {
		logger = infra.DiscardLogger()
	}
	return &Normalizer{logger: logger}
}

// Normalize inspects a decoded-on-demand JSON body and produces exactly one
// Result. Precedence is image, then refusal text, then structural absence.
func (n *Normalizer) Normalize(body []byte) Result {
	var env rawEnvelope
	if !decodeObject(body, &env) {
		n.logger.Error().Msg("imagegen: response is not a JSON object")
		return Failure(KindInvalidResponse, msgInvalidResponse)
	}
	var candidates []json.RawMessage
	if !decodeArray(env.Candidates, &candidates) || len(candidates) == 0 {
		n.logger.Error().RawJSON("response", compact(body)).Msg("imagegen: response has no candidates")
		return Failure(KindInvalidResponse, msgInvalidResponse)
	}

	var candidate rawCandidate
	_ = decodeObject(candidates[0], &candidate)

	if reason, ok := decodeString(candidate.FinishReason); ok && reason != "" {
		if res, stop := n.checkFinishReason(genai.FinishReason(reason)); stop {
			return res
		}
	} else if !ok && !isNull(candidate.FinishReason) {
		n.logger.Warn().RawJSON("finish_reason", compact(candidate.FinishReason)).Msg("imagegen: unknown finish reason")
	}

	var content rawContent
	var parts []json.RawMessage
	if decodeObject(candidate.Content, &content) {
		_ = decodeArray(content.Parts, &parts)
	}

	var payload, refusal string
scan:
	for _, raw := range parts {
		shape, value := classifyPart(raw)
		switch shape {
		case shapeInlineCamel, shapeInlineSnake, shapeBareData:
			payload = value
			break scan
		case shapeText:
			if refusal == "" {
				refusal = value
			}
		}
	}

	if payload == "" {
		if data, ok := decodeString(env.Data); ok && data != "" {
			payload = data
		}
	}

	if payload != "" {
		return Success(DataURIPrefix + payload)
	}
	if refusal != "" {
		n.logger.Warn().Str("text", refusal).Msg("imagegen: model returned text instead of an image")
		return Failure(KindTextualRefusal, classifyRefusal(refusal))
	}
	n.logger.Error().RawJSON("response", compact(body)).Msg("imagegen: no image data in response")
	return Failure(KindNoImageProduced, msgNoImage)
}

func (n *Normalizer) checkFinishReason(reason genai.FinishReason) (Result, bool) {
	switch reason {
	case genai.FinishReasonProhibitedContent:
		return Failure(KindContentBlocked, msgProhibited), true
	case genai.FinishReasonSafety:
		return Failure(KindContentBlocked, msgSafety), true
	case genai.FinishReasonRecitation:
		return Failure(KindContentBlocked, msgRecitation), true
	case genai.FinishReasonOther:
		return Failure(KindProviderRejected, msgOther), true
	case genai.FinishReasonStop:
		return Result{}, false
	default:
		n.logger.Warn().Str("finish_reason", string(reason)).Msg("imagegen: unknown finish reason")
		return Result{}, false
	}
}

// classifyPart decodes one part into its shape. Image shapes win over text
// when a part carries both.
func classifyPart(raw json.RawMessage) (partShape, string) {
	var p rawPart
	if !decodeObject(raw, &p) {
		return shapeUnknown, ""
	}
	var blob inlineBlob
	if decodeObject(p.InlineData, &blob) && blob.Data != "" {
		return shapeInlineCamel, blob.Data
	}
	blob = inlineBlob{}
	if decodeObject(p.InlineDataSnake, &blob) && blob.Data != "" {
		return shapeInlineSnake, blob.Data
	}
	if s, ok := decodeString(p.Data); ok && s != "" {
		return shapeBareData, s
	}
	if s, ok := decodeString(p.Text); ok && s != "" {
		return shapeText, s
	}
	return shapeUnknown, ""
}

// classifyRefusal maps provider prose to an actionable message, most specific
// match first.
func classifyRefusal(text string) string {
	folded := cases.Fold().String(text)
	switch {
	case strings.Contains(folded, "color"):
		return msgRefusalColor
	case strings.Contains(folded, "describe"), strings.Contains(folded, "clarify"):
		return msgRefusalDetail
	case strings.Contains(folded, "cannot"), strings.Contains(folded, "unable"):
		return msgRefusalCapability
	default:
		return fmt.Sprintf(msgRefusalEcho, text)
	}
}

func decodeObject(raw json.RawMessage, out any) bool {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return false
	}
	return json.Unmarshal(raw, out) == nil
}

func decodeArray(raw json.RawMessage, out *[]json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '[' {
		return false
	}
	return json.Unmarshal(raw, out) == nil
}

func decodeString(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '"' {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

func isNull(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

// compact keeps logged bodies on one line; large bodies (image payloads) are elided.
func compact(body []byte) []byte {
	if len(body) > 2048 {
		return []byte(`"<truncated>"`)
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, body); err != nil {
		return []byte(`"<invalid json>"`)
	}
	return buf.Bytes()
}
