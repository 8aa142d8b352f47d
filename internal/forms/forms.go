// Package forms validates and normalizes user-submitted post and comment
// payloads before anything touches the store.
package forms

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/pulsefeed/pulse/internal/domain"
	"github.com/pulsefeed/pulse/internal/repository"
)

// MaxImageSize bounds uploaded post images.
const MaxImageSize = 10 << 20 // 10 MiB

// Validation messages keyed by field.
const (
	MsgTextRequired = "this field is required"
	MsgGroupUnknown = "group does not exist"
	MsgImageInvalid = "upload a valid image"
	MsgImageTooBig  = "image exceeds the maximum allowed size"
)

// FieldErrors maps field names to validation messages.
type FieldErrors map[string]string

// Any reports whether any field failed validation.
func (e FieldErrors) Any() bool { return len(e) > 0 }

// ImageUpload is a validated, decodable image ready for the asset store.
type ImageUpload struct {
	Data        []byte
	ContentType string
	Ext         string
}

// PostForm is the client-submitted post payload. The author is never part
// of it; the caller assigns authorship from the session.
type PostForm struct {
	Text      string `form:"text" json:"text"`
	GroupSlug string `form:"group" json:"group"`
}

// PostDraft is the normalized result of a valid PostForm. Nothing is
// persisted yet.
type PostDraft struct {
	Text  string
	Group *domain.Group
	Image *ImageUpload
}

// Validate checks the form and normalizes it into a draft. Field-level
// failures come back in FieldErrors with the non-nil error reserved for
// infrastructure faults (store lookups).
func (f *PostForm) Validate(ctx context.Context, groups repository.GroupRepository, image *multipart.FileHeader) (*PostDraft, FieldErrors, error) {
	fields := FieldErrors{}
	draft := &PostDraft{Text: strings.TrimSpace(f.Text)}

	if draft.Text == "" {
		fields["text"] = MsgTextRequired
	}

	if slug := strings.TrimSpace(f.GroupSlug); slug != "" {
		group, err := groups.GetBySlug(ctx, slug)
		if err != nil {
			if errors.Is(err, repository.ErrGroupNotFound) {
				fields["group"] = MsgGroupUnknown
			} else {
				return nil, nil, fmt.Errorf("failed to resolve group %q: %w", slug, err)
			}
		} else {
			draft.Group = group
		}
	}

	if image != nil {
		upload, msg, err := validateImage(image)
		if err != nil {
			return nil, nil, err
		}
		if msg != "" {
			fields["image"] = msg
		} else {
			draft.Image = upload
		}
	}

	if fields.Any() {
		return nil, fields, nil
	}
	return draft, nil, nil
}

// CommentForm is the client-submitted comment payload. Author and post are
// assigned by the caller, never read from the client.
type CommentForm struct {
	Text string `form:"text" json:"text"`
}

// Validate checks the comment form and returns the normalized text.
func (f *CommentForm) Validate() (string, FieldErrors) {
	text := strings.TrimSpace(f.Text)
	if text == "" {
		return "", FieldErrors{"text": MsgTextRequired}
	}
	return text, nil
}

// validateImage reads the upload and proves it decodes as an image.
// Returns a non-empty message for user-facing failures.
func validateImage(fh *multipart.FileHeader) (*ImageUpload, string, error) {
	if fh.Size > MaxImageSize {
		return nil, MsgImageTooBig, nil
	}

	file, err := fh.Open()
	if err != nil {
		return nil, "", fmt.Errorf("failed to open uploaded image: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, MaxImageSize+1))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read uploaded image: %w", err)
	}
	if len(data) > MaxImageSize {
		return nil, MsgImageTooBig, nil
	}

	if _, err := imaging.Decode(bytes.NewReader(data)); err != nil {
		return nil, MsgImageInvalid, nil
	}

	contentType := http.DetectContentType(data)
	ext := extForContentType(contentType)
	if ext == "" {
		return nil, MsgImageInvalid, nil
	}

	return &ImageUpload{
		Data:        data,
		ContentType: contentType,
		Ext:         ext,
	}, "", nil
}

// extForContentType maps the sniffed content type to a storage
// extension. The set matches the formats the decoder accepts above.
func extForContentType(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return "jpg"
	case "image/png":
		return "png"
	case "image/gif":
		return "gif"
	case "image/bmp":
		return "bmp"
	default:
		return ""
	}
}
