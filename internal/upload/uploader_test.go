package upload

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"testing"

	"expertvakil/server/internal/apperrors"
	"expertvakil/server/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var key = models.ConversationKey{SenderID: "client-1", ReceiverID: "lawyer-1"}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// oversizedPNG returns a small valid PNG whose header claims w x h pixels.
func oversizedPNG(t *testing.T, w, h uint32) []byte {
	t.Helper()
	data := pngBytes(t, 4, 4)
	// signature(8) length(4) "IHDR"(4) width(4) height(4) ... crc after 13 data bytes
	binary.BigEndian.PutUint32(data[16:20], w)
	binary.BigEndian.PutUint32(data[20:24], h)
	binary.BigEndian.PutUint32(data[29:33], crc32.ChecksumIEEE(data[12:29]))
	return data
}

type brokenBlobs struct{}

func (brokenBlobs) Put(context.Context, string, string, io.Reader, int64) (string, error) {
	return "", errors.New("bucket unavailable")
}

func TestThumbnail(t *testing.T) {
	t.Run("happy path - longest side capped at 200", func(t *testing.T) {
		thumb, err := Thumbnail(pngBytes(t, 800, 400))
		require.NoError(t, err)

		cfg, format, err := image.DecodeConfig(bytes.NewReader(thumb))
		require.NoError(t, err)
		assert.Equal(t, "jpeg", format)
		assert.Equal(t, 200, cfg.Width)
		assert.Equal(t, 100, cfg.Height)
	})

	t.Run("happy path - small image keeps its size", func(t *testing.T) {
		thumb, err := Thumbnail(pngBytes(t, 50, 80))
		require.NoError(t, err)

		cfg, _, err := image.DecodeConfig(bytes.NewReader(thumb))
		require.NoError(t, err)
		assert.Equal(t, 50, cfg.Width)
		assert.Equal(t, 80, cfg.Height)
	})

	t.Run("error - too many pixels is refused before decoding", func(t *testing.T) {
		_, err := Thumbnail(oversizedPNG(t, 20000, 20000))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "pixel limit")
	})

	t.Run("error - not an image", func(t *testing.T) {
		_, err := Thumbnail([]byte("definitely not pixels"))
		assert.Error(t, err)
	})
}

func TestUploadWithThumbnail(t *testing.T) {
	ctx := context.Background()

	t.Run("happy path - image gets a thumbnail next to it", func(t *testing.T) {
		blobs := NewMemoryStore("https://cdn.test")
		u := NewUploader(blobs, zap.NewNop().Sugar())

		res, err := u.UploadWithThumbnail(ctx, BytesFile("scan.png", "image/png", pngBytes(t, 600, 300)), key, "m1")
		require.NoError(t, err)
		assert.Equal(t, "https://cdn.test/chat_uploads/client-1/lawyer-1/m1/scan.png", res.URL)
		assert.Equal(t, "https://cdn.test/chat_uploads/client-1/lawyer-1/m1/thumb_scan.png", res.ThumbnailURL)
		assert.Equal(t, "image/png", res.MimeType)
		assert.Equal(t, "m1", res.MessageID)

		thumb, ok := blobs.Get("chat_uploads/client-1/lawyer-1/m1/thumb_scan.png")
		require.True(t, ok)
		assert.Equal(t, "image/jpeg", thumb.ContentType)
		cfg, _, err := image.DecodeConfig(bytes.NewReader(thumb.Data))
		require.NoError(t, err)
		assert.LessOrEqual(t, cfg.Width, 200)
		assert.LessOrEqual(t, cfg.Height, 200)
	})

	t.Run("happy path - undecodable image still uploads", func(t *testing.T) {
		blobs := NewMemoryStore("https://cdn.test")
		u := NewUploader(blobs, zap.NewNop().Sugar())

		res, err := u.UploadWithThumbnail(ctx, BytesFile("broken.jpg", "image/jpeg", []byte("not a jpeg")), key, "m2")
		require.NoError(t, err)
		assert.NotEmpty(t, res.URL)
		assert.Empty(t, res.ThumbnailURL)
		assert.Len(t, blobs.Keys(), 1)
	})

	t.Run("happy path - huge dimensions upload without a thumbnail", func(t *testing.T) {
		blobs := NewMemoryStore("https://cdn.test")
		u := NewUploader(blobs, zap.NewNop().Sugar())

		res, err := u.UploadWithThumbnail(ctx, BytesFile("bomb.png", "image/png", oversizedPNG(t, 30000, 30000)), key, "m7")
		require.NoError(t, err)
		assert.NotEmpty(t, res.URL)
		assert.Empty(t, res.ThumbnailURL)
		assert.Equal(t, []string{"chat_uploads/client-1/lawyer-1/m7/bomb.png"}, blobs.Keys())
	})

	t.Run("happy path - panicking thumbnailer is contained", func(t *testing.T) {
		u := NewUploader(NewMemoryStore("https://cdn.test"), zap.NewNop().Sugar())
		u.thumbnail = func([]byte) ([]byte, error) { panic("decoder bug") }

		res, err := u.UploadWithThumbnail(ctx, BytesFile("a.png", "image/png", pngBytes(t, 10, 10)), key, "m3")
		require.NoError(t, err)
		assert.Empty(t, res.ThumbnailURL)
	})

	t.Run("happy path - documents skip the thumbnail", func(t *testing.T) {
		blobs := NewMemoryStore("https://cdn.test")
		u := NewUploader(blobs, zap.NewNop().Sugar())

		res, err := u.UploadWithThumbnail(ctx, BytesFile("contract.pdf", "application/pdf", []byte("%PDF")), key, "m4")
		require.NoError(t, err)
		assert.Empty(t, res.ThumbnailURL)
		assert.Equal(t, []string{"chat_uploads/client-1/lawyer-1/m4/contract.pdf"}, blobs.Keys())
	})

	t.Run("happy path - missing mime type defaults", func(t *testing.T) {
		u := NewUploader(NewMemoryStore("https://cdn.test"), zap.NewNop().Sugar())
		res, err := u.Upload(ctx, BytesFile("notes", "", []byte("x")), key, "m5")
		require.NoError(t, err)
		assert.Equal(t, DefaultMimeType, res.MimeType)
	})

	t.Run("error - storage failure", func(t *testing.T) {
		u := NewUploader(brokenBlobs{}, zap.NewNop().Sugar())
		_, err := u.UploadWithThumbnail(ctx, BytesFile("contract.pdf", "application/pdf", []byte("%PDF")), key, "m6")
		assert.ErrorIs(t, err, apperrors.ErrUploadFailed)
	})
}

func TestDiskStore(t *testing.T) {
	root := t.TempDir()
	d := NewDiskStore(root, "http://localhost:8080/")

	url, err := d.Put(context.Background(), "chat_uploads/a/b/m1/my file.pdf", "application/pdf", bytes.NewReader([]byte("%PDF")), 4)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/uploads/chat_uploads/a/b/m1/my%20file.pdf", url)

	data, err := os.ReadFile(filepath.Join(root, "chat_uploads", "a", "b", "m1", "my file.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(data))

	_, err = d.Put(context.Background(), "../escape.txt", "text/plain", bytes.NewReader(nil), 0)
	assert.Error(t, err)
}
