// Package attachment converts user-selected binary files into the
// transport-safe inline representation sent to the model.
package attachment

import (
	"context"
	"encoding/base64"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Attachment is an encoded file: a mime type and a base64 payload with no
// container-format prefix.
type Attachment struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

// File is a named binary source queued for encoding.
type File struct {
	Name        string
	ContentType string // sniffed when empty
	Open        func() (io.ReadCloser, error)
}

// FromPath wraps a local file.
func FromPath(path string) File {
	return File{
		Name: filepath.Base(path),
		Open: func() (io.ReadCloser, error) { return os.Open(path) },
	}
}

// FromUpload wraps a multipart form file.
func FromUpload(header *multipart.FileHeader) File {
	return File{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Open: func() (io.ReadCloser, error) {
			f, err := header.Open()
			return f, err
		},
	}
}

// Encode reads and encodes all files concurrently, resolving only once every
// file has been fully read. Output order matches input order. The first
// failure aborts the whole batch; this is a one-shot transform with no retry.
func Encode(ctx context.Context, files []File) ([]Attachment, error) {
	if len(files) == 0 {
		return nil, nil
	}
	attachments := make([]Attachment, len(files))
	group, ctx := errgroup.WithContext(ctx)
	for i, file := range files {
		i, file := i, file
		group.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			attachment, err := encode(file)
			if err != nil {
				return errors.Wrapf(err, "encoding %s", file.Name)
			}
			attachments[i] = attachment
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return attachments, nil
}

func encode(file File) (Attachment, error) {
	reader, err := file.Open()
	if err != nil {
		return Attachment{}, errors.Wrap(err, "opening")
	}
	defer reader.Close()
	bytes, err := io.ReadAll(reader)
	if err != nil {
		return Attachment{}, errors.Wrap(err, "reading")
	}
	return Attachment{
		MimeType: contentType(file, bytes),
		Data:     base64.StdEncoding.EncodeToString(bytes),
	}, nil
}

// contentType resolves a mime type: the declared one, else the file
// extension, else content sniffing.
func contentType(file File, bytes []byte) string {
	if file.ContentType != "" {
		return file.ContentType
	}
	if byExtension := mime.TypeByExtension(filepath.Ext(file.Name)); byExtension != "" {
		return byExtension
	}
	return http.DetectContentType(bytes)
}
