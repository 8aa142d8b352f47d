package forms

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsefeed/pulse/internal/domain"
	"github.com/pulsefeed/pulse/internal/repository"
)

type stubGroupRepo struct {
	groups map[string]*domain.Group
}

func (s *stubGroupRepo) Create(context.Context, *domain.Group) error { return nil }
func (s *stubGroupRepo) GetByID(context.Context, uint) (*domain.Group, error) {
	return nil, repository.ErrGroupNotFound
}
func (s *stubGroupRepo) GetBySlug(_ context.Context, slug string) (*domain.Group, error) {
	if g, ok := s.groups[slug]; ok {
		return g, nil
	}
	return nil, repository.ErrGroupNotFound
}
func (s *stubGroupRepo) List(context.Context) ([]*domain.Group, error) { return nil, nil }
func (s *stubGroupRepo) Delete(context.Context, uint) error            { return nil }

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func fileHeader(t *testing.T, name string, data []byte) *multipart.FileHeader {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile("image", name)
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	require.NoError(t, req.ParseMultipartForm(32<<20))

	return req.MultipartForm.File["image"][0]
}

func TestPostFormRequiresText(t *testing.T) {
	repo := &stubGroupRepo{}

	for _, text := range []string{"", "   ", "\n\t"} {
		form := &PostForm{Text: text}
		draft, fields, err := form.Validate(context.Background(), repo, nil)
		require.NoError(t, err)
		assert.Nil(t, draft)
		assert.Equal(t, MsgTextRequired, fields["text"])
	}
}

func TestPostFormTrimsText(t *testing.T) {
	repo := &stubGroupRepo{}
	form := &PostForm{Text: "  hello world  "}

	draft, fields, err := form.Validate(context.Background(), repo, nil)
	require.NoError(t, err)
	require.False(t, fields.Any())
	assert.Equal(t, "hello world", draft.Text)
	assert.Nil(t, draft.Group)
}

func TestPostFormResolvesGroup(t *testing.T) {
	repo := &stubGroupRepo{groups: map[string]*domain.Group{
		"cats": {ID: 7, Title: "Cats", Slug: "cats"},
	}}
	form := &PostForm{Text: "meow", GroupSlug: "cats"}

	draft, fields, err := form.Validate(context.Background(), repo, nil)
	require.NoError(t, err)
	require.False(t, fields.Any())
	require.NotNil(t, draft.Group)
	assert.Equal(t, uint(7), draft.Group.ID)
}

func TestPostFormUnknownGroup(t *testing.T) {
	repo := &stubGroupRepo{}
	form := &PostForm{Text: "meow", GroupSlug: "nope"}

	draft, fields, err := form.Validate(context.Background(), repo, nil)
	require.NoError(t, err)
	assert.Nil(t, draft)
	assert.Equal(t, MsgGroupUnknown, fields["group"])
}

func TestPostFormCollectsAllFieldErrors(t *testing.T) {
	repo := &stubGroupRepo{}
	form := &PostForm{Text: "  ", GroupSlug: "nope"}

	_, fields, err := form.Validate(context.Background(), repo, nil)
	require.NoError(t, err)
	assert.Len(t, fields, 2)
	assert.Equal(t, MsgTextRequired, fields["text"])
	assert.Equal(t, MsgGroupUnknown, fields["group"])
}

func TestPostFormAcceptsValidImage(t *testing.T) {
	repo := &stubGroupRepo{}
	form := &PostForm{Text: "with image"}
	fh := fileHeader(t, "pic.png", pngBytes(t))

	draft, fields, err := form.Validate(context.Background(), repo, fh)
	require.NoError(t, err)
	require.False(t, fields.Any())
	require.NotNil(t, draft.Image)
	assert.Equal(t, "png", draft.Image.Ext)
	assert.Equal(t, "image/png", draft.Image.ContentType)
	assert.NotEmpty(t, draft.Image.Data)
}

func TestPostFormRejectsNonImage(t *testing.T) {
	repo := &stubGroupRepo{}
	form := &PostForm{Text: "bad upload"}
	fh := fileHeader(t, "notes.txt", []byte("definitely not pixels"))

	draft, fields, err := form.Validate(context.Background(), repo, fh)
	require.NoError(t, err)
	assert.Nil(t, draft)
	assert.Equal(t, MsgImageInvalid, fields["image"])
}

func TestExtForContentTypeCoversDecodableFormats(t *testing.T) {
	assert.Equal(t, "jpg", extForContentType("image/jpeg"))
	assert.Equal(t, "png", extForContentType("image/png"))
	assert.Equal(t, "gif", extForContentType("image/gif"))
	assert.Equal(t, "bmp", extForContentType("image/bmp"))
	// No registered decoder means no extension mapping either.
	assert.Empty(t, extForContentType("image/webp"))
	assert.Empty(t, extForContentType("text/plain"))
}

func TestCommentFormValidate(t *testing.T) {
	text, fields := (&CommentForm{Text: "  nice post  "}).Validate()
	require.False(t, fields.Any())
	assert.Equal(t, "nice post", text)

	_, fields = (&CommentForm{Text: "   "}).Validate()
	assert.Equal(t, MsgTextRequired, fields["text"])
}
