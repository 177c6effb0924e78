// Package studio holds per-surface presentation state: the prompt, upload
// slots with their previews, the loading flag and the last result. A surface
// lets at most one generation run at a time.
package studio

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"studio/internal/imagegen"
)

var (
	ErrBusy      = errors.New("studio: a generation is already in progress")
	ErrClosed    = errors.New("studio: surface is closed")
	ErrSlotRange = errors.New("studio: slot index out of range")
	ErrNoResult  = errors.New("studio: no generated image available")
	ErrNoSlots   = errors.New("studio: text surfaces have no upload slots")
)

// Runner executes one generation. *imagegen.Pipeline satisfies it.
type Runner interface {
	Run(ctx context.Context, mode imagegen.Mode, prompt string, attachments []imagegen.Attachment) imagegen.Result
}

type slot struct {
	attachment imagegen.Attachment
	preview    string
}

// Surface is the state behind one generation tab.
type Surface struct {
	id       string
	mode     imagegen.Mode
	runner   Runner
	previews *PreviewRegistry

	mu      sync.Mutex
	prompt  string
	slots   []*slot
	loading bool
	result  imagegen.Result
	// epoch advances on reset so a run that finishes afterwards is discarded.
	epoch  uint64
	closed bool

	now     func() time.Time
	touched time.Time
}

// NewSurface builds an empty surface with mode.Slots() upload slots.
func NewSurface(id string, mode imagegen.Mode, runner Runner, previews *PreviewRegistry) *Surface {
	if previews == nil {
		previews = NewPreviewRegistry()
	}
	return &Surface{
		id:       id,
		mode:     mode,
		runner:   runner,
		previews: previews,
		slots:    make([]*slot, mode.Slots()),
		now:      time.Now,
		touched:  time.Now(),
	}
}

func (s *Surface) ID() string          { return s.id }
func (s *Surface) Mode() imagegen.Mode { return s.mode }

// SetPrompt replaces the prompt text. It is refused while a run is in flight.
func (s *Surface) SetPrompt(prompt string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked()
	if err := s.mutableLocked(); err != nil {
		return err
	}
	s.prompt = prompt
	return nil
}

// Attach places an image into slot index, revoking the preview of any image
// it replaces. Non-image and oversized files are rejected up front.
func (s *Surface) Attach(index int, att imagegen.Attachment) error {
	if err := imagegen.CheckAttachment(index, att); err != nil {
		return err
	}
	s.mu.Lock()
	s.touchLocked()
	err := s.mutableLocked()
	if err == nil {
		err = s.checkIndexLocked(index)
	}
	s.mu.Unlock()
	if err != nil {
		return err
	}

	data, err := att.ReadAll()
	if err != nil {
		return fmt.Errorf("studio: read upload: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.mutableLocked(); err != nil {
		return err
	}
	if err := s.checkIndexLocked(index); err != nil {
		return err
	}
	if old := s.slots[index]; old != nil {
		s.previews.Revoke(old.preview)
	}
	att.Size = int64(len(data))
	att.Open = imagegen.NewBytesAttachment(att.Name, data, att.MIMEType).Open
	s.slots[index] = &slot{
		attachment: att,
		preview:    s.previews.Create(data, att.MIMEType),
	}
	return nil
}

// Remove clears slot index and revokes its preview.
func (s *Surface) Remove(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked()
	if err := s.mutableLocked(); err != nil {
		return err
	}
	if err := s.checkIndexLocked(index); err != nil {
		return err
	}
	if old := s.slots[index]; old != nil {
		s.previews.Revoke(old.preview)
		s.slots[index] = nil
	}
	return nil
}

// Submit runs the pipeline over the current prompt and filled slots, in slot
// order. It returns ErrBusy when another submission has not finished.
func (s *Surface) Submit(ctx context.Context) (View, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return View{}, ErrClosed
	}
	if s.loading {
		s.mu.Unlock()
		return View{}, ErrBusy
	}
	s.touchLocked()
	prompt := s.prompt
	attachments := s.attachmentsLocked()
	epoch := s.epoch
	s.loading = true
	s.result = imagegen.Result{}
	s.mu.Unlock()

	res := s.runner.Run(ctx, s.mode, prompt, attachments)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked()
	if s.epoch == epoch && !s.closed {
		if res.Err != nil && res.Err.Kind == imagegen.KindCanceled {
			res = imagegen.Result{}
		}
		s.result = res
		s.loading = false
	}
	return s.viewLocked(), nil
}

// Reset returns the surface to its initial state ("New Task"): prompt,
// uploads, result, error and loading flag are all cleared.
func (s *Surface) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked()
	s.resetLocked()
}

// Close resets the surface and refuses further use.
func (s *Surface) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
	s.closed = true
}

// Image returns the last generated data URI.
func (s *Surface) Image() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked()
	if s.result.Err != nil || s.result.DataURI == "" {
		return "", ErrNoResult
	}
	return s.result.DataURI, nil
}

// View snapshots the surface for rendering.
func (s *Surface) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked()
	return s.viewLocked()
}

// idleFor reports how long the surface has gone untouched. A surface with a
// run in flight is never idle.
func (s *Surface) idleFor(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loading {
		return 0
	}
	return now.Sub(s.touched)
}

func (s *Surface) touchLocked() {
	s.touched = s.now()
}

func (s *Surface) resetLocked() {
	for i, sl := range s.slots {
		if sl != nil {
			s.previews.Revoke(sl.preview)
			s.slots[i] = nil
		}
	}
	s.prompt = ""
	s.result = imagegen.Result{}
	s.loading = false
	s.epoch++
}

func (s *Surface) mutableLocked() error {
	if s.closed {
		return ErrClosed
	}
	if s.loading {
		return ErrBusy
	}
	return nil
}

func (s *Surface) checkIndexLocked(index int) error {
	if len(s.slots) == 0 {
		return ErrNoSlots
	}
	if index < 0 || index >= len(s.slots) {
		return fmt.Errorf("%w: %d not in [0,%d)", ErrSlotRange, index, len(s.slots))
	}
	return nil
}

func (s *Surface) attachmentsLocked() []imagegen.Attachment {
	var out []imagegen.Attachment
	for _, sl := range s.slots {
		if sl != nil {
			out = append(out, sl.attachment)
		}
	}
	return out
}

func (s *Surface) viewLocked() View {
	v := View{
		ID:      s.id,
		Mode:    s.mode,
		Prompt:  s.prompt,
		Loading: s.loading,
		Slots:   make([]SlotView, len(s.slots)),
		Image:   s.result.DataURI,
	}
	for i, sl := range s.slots {
		v.Slots[i] = SlotView{Index: i}
		if sl == nil {
			continue
		}
		v.Slots[i].Filled = true
		v.Slots[i].Name = strings.TrimSpace(sl.attachment.Name)
		v.Slots[i].MIMEType = sl.attachment.MIMEType
		v.Slots[i].Size = sl.attachment.Size
		v.Slots[i].Preview = sl.preview
	}
	v.Error = NewErrorView(s.result.Err)
	return v
}
