package archive

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jra3/agentmail/internal/model"
	"golang.org/x/sync/errgroup"
)

// ImageConverter is a pluggable hook for rewriting image attachments (e.g.
// downscaling or re-encoding) before they're written to the archive. The
// default Passthrough implementation performs no conversion.
type ImageConverter interface {
	Convert(mediaType string, data []byte) (converted []byte, newMediaType string, err error)
}

// Passthrough is the no-op ImageConverter used when conversion isn't
// enabled or the attachment isn't an image.
type Passthrough struct{}

func (Passthrough) Convert(mediaType string, data []byte) ([]byte, string, error) {
	return data, mediaType, nil
}

// AttachmentInput is one attachment as supplied by a caller, either as
// inline bytes or as a path to a file already on disk.
type AttachmentInput struct {
	Name       string
	MediaType  string
	Data       []byte // set when the caller supplied inline bytes
	SourcePath string // set when the caller supplied a path instead
}

// ResolvePolicy applies the three-tier precedence from spec §4.2, lowest
// to highest: server default, then the agent's own attachments_policy, then
// a per-call override. The highest-precedence non-empty value wins.
func ResolvePolicy(serverDefault, agentPolicy, callOverride model.AttachmentsPolicy) model.AttachmentsPolicy {
	if callOverride != "" {
		return callOverride
	}
	if agentPolicy != "" {
		return agentPolicy
	}
	if serverDefault != "" {
		return serverDefault
	}
	return model.DefaultAttachmentsPolicy
}

// Processor materializes attachments into a project's archive, either as
// "inline" entries (frontmatter metadata only: media type, hash, size; the
// bytes themselves are not embedded or written) or as hash-addressed files
// under attachments/<YYYY>/<MM>/<sha256>.<ext>.
type Processor struct {
	Layout              Layout
	InlineThresholdBytes int64
	Converter           ImageConverter
}

func NewProcessor(layout Layout, inlineThresholdBytes int64, converter ImageConverter) *Processor {
	if converter == nil {
		converter = Passthrough{}
	}
	return &Processor{Layout: layout, InlineThresholdBytes: inlineThresholdBytes, Converter: converter}
}

// Process materializes each input per the resolved policy, returning the
// metadata to embed in the message frontmatter. Attachments are independent
// of one another (each hashes and writes to its own hash-addressed path), so
// they're processed concurrently, one goroutine per attachment, in an
// errgroup. Every goroutine runs to completion; the first error is returned.
func (p *Processor) Process(now time.Time, inputs []AttachmentInput, policy model.AttachmentsPolicy, convertImages bool) ([]model.AttachmentMeta, error) {
	out := make([]model.AttachmentMeta, len(inputs))
	var eg errgroup.Group
	for i, in := range inputs {
		i, in := i, in
		eg.Go(func() error {
			meta, err := p.processOne(now, in, policy, convertImages)
			if err != nil {
				return err
			}
			out[i] = meta
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *Processor) processOne(now time.Time, in AttachmentInput, policy model.AttachmentsPolicy, convertImages bool) (model.AttachmentMeta, error) {
	data := in.Data
	mediaType := in.MediaType
	if data == nil && in.SourcePath != "" {
		b, err := os.ReadFile(in.SourcePath)
		if err != nil {
			return model.AttachmentMeta{}, fmt.Errorf("attachment %q: read source: %w", in.Name, err)
		}
		data = b
	}

	if convertImages && strings.HasPrefix(mediaType, "image/") {
		converted, newMediaType, err := p.Converter.Convert(mediaType, data)
		if err != nil {
			return model.AttachmentMeta{}, fmt.Errorf("attachment %q: convert: %w", in.Name, err)
		}
		data, mediaType = converted, newMediaType
	}

	wantInline := policy == model.AttachmentsInline
	wantFile := policy == model.AttachmentsFile
	if policy == model.AttachmentsAuto || policy == "" {
		wantInline = int64(len(data)) <= p.InlineThresholdBytes
		wantFile = !wantInline
	}

	sum := sha256.Sum256(data)
	shaHex := hex.EncodeToString(sum[:])

	if wantInline && !wantFile {
		return model.AttachmentMeta{
			Type:       "inline",
			MediaType:  mediaType,
			SHA256:     shaHex,
			SourcePath: in.SourcePath,
			Bytes:      int64(len(data)),
		}, nil
	}

	ext := filepath.Ext(in.Name)
	dest := p.Layout.AttachmentPath(now, shaHex, ext)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return model.AttachmentMeta{}, fmt.Errorf("attachment %q: mkdir: %w", in.Name, err)
	}
	if _, err := os.Stat(dest); os.IsNotExist(err) {
		if err := writeFileAtomic(dest, data, 0o644); err != nil {
			return model.AttachmentMeta{}, fmt.Errorf("attachment %q: write: %w", in.Name, err)
		}
	}
	rel, err := filepath.Rel(p.Layout.Root, dest)
	if err != nil {
		rel = dest
	}
	return model.AttachmentMeta{
		Type:       "file",
		MediaType:  mediaType,
		Path:       rel,
		SHA256:     shaHex,
		SourcePath: in.SourcePath,
		Bytes:      int64(len(data)),
	}, nil
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
