package imagegen

import (
	"context"
	"strings"

	"studio/internal/infra"
)

// CredentialSource yields the stored provider API key. ok is false when no key
// has been saved.
type CredentialSource interface {
	Get(ctx context.Context) (key string, ok bool, err error)
}

// Transport performs the single outbound provider call.
type Transport interface {
	Generate(ctx context.Context, apiKey string, req GenerationRequest) ([]byte, error)
}

// Observer receives one notification per finished pipeline run.
type Observer interface {
	ObserveResult(mode Mode, kind Kind)
}

// PipelineOptions wires the pipeline collaborators.
type PipelineOptions struct {
	Credentials CredentialSource
	Transport   Transport
	Normalizer  *Normalizer
	Observer    Observer
	Logger      *infra.Logger
}

// Pipeline runs build, credential lookup, transport and normalization in that
// order. It holds no per-request state and is safe for concurrent use.
type Pipeline struct {
	creds      CredentialSource
	transport  Transport
	normalizer *Normalizer
	observer   Observer
	logger     *infra.Logger
}

// NewPipeline constructs a Pipeline.
func NewPipeline(opts PipelineOptions) *Pipeline {
	logger := opts.Logger
	if logger == nil {
		logger = infra.DiscardLogger()
	}
	normalizer := opts.Normalizer
	if normalizer == nil {
		normalizer = NewNormalizer(logger)
	}
	return &Pipeline{
		creds:      opts.Credentials,
		transport:  opts.Transport,
		normalizer: normalizer,
		observer:   opts.Observer,
		logger:     logger,
	}
}

// Generate runs a text-to-image request.
func (p *Pipeline) Generate(ctx context.Context, prompt string) Result {
	return p.Run(ctx, ModeText, prompt, nil)
}

// Edit runs an instruction-guided edit of a single image.
func (p *Pipeline) Edit(ctx context.Context, prompt string, image Attachment) Result {
	return p.Run(ctx, ModeEdit, prompt, []Attachment{image})
}

// Compose merges two or more images under one instruction.
func (p *Pipeline) Compose(ctx context.Context, prompt string, images []Attachment) Result {
	return p.Run(ctx, ModeCompose, prompt, images)
}

// Run executes one request end to end. Validation and credential failures
// return before any network traffic.
func (p *Pipeline) Run(ctx context.Context, mode Mode, prompt string, attachments []Attachment) Result {
	res := p.run(ctx, mode, prompt, attachments)
	kind := Kind("")
	if res.Err != nil {
		kind = res.Err.Kind
	}
	if p.observer != nil {
		p.observer.ObserveResult(mode, kind)
	}
	return res
}

func (p *Pipeline) run(ctx context.Context, mode Mode, prompt string, attachments []Attachment) Result {
	req, err := BuildRequest(mode, prompt, attachments)
	if err != nil {
		p.logger.Debug().Err(err).Str("mode", string(mode)).Msg("imagegen: request rejected")
		return FailureFrom(err)
	}

	apiKey, err := p.credential(ctx)
	if err != nil {
		return FailureFrom(err)
	}

	if p.transport == nil {
		return Result{Err: &Error{Kind: KindNetwork, Message: msgNetwork}}
	}
	body, err := p.transport.Generate(ctx, apiKey, req)
	if err != nil {
		if _, ok := AsError(err); !ok {
			p.logger.Error().Err(err).Str("mode", string(mode)).Msg("imagegen: transport failed")
			return FailureFrom(transportError(err))
		}
		return FailureFrom(err)
	}

	res := p.normalizer.Normalize(body)
	if res.Err == nil {
		p.logger.Info().Str("mode", string(mode)).Int("images", len(attachments)).Msg("imagegen: image generated")
	}
	return res
}

// credential reads the key fresh on every call; it is never cached.
func (p *Pipeline) credential(ctx context.Context) (string, error) {
	if p.creds == nil {
		return "", ErrMissingCredential
	}
	key, ok, err := p.creds.Get(ctx)
	if err != nil {
		p.logger.Error().Err(err).Msg("imagegen: load credential")
		return "", &Error{Kind: KindMissingCredential, Message: msgMissingCredential, Err: err}
	}
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return "", ErrMissingCredential
	}
	return key, nil
}
