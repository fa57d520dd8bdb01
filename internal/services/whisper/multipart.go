package whisper

import (
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
)

type fields struct {
	model    string
	language string
}

// newMultipartBody streams the audio file and form fields through a pipe so
// the upload is never buffered whole in memory.
func newMultipartBody(path string, f fields) (io.ReadCloser, string) {
	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)

	go func() {
		pw.CloseWithError(writeForm(writer, path, f))
	}()
	return pr, writer.FormDataContentType()
}

func writeForm(writer *multipart.Writer, path string, f fields) error {
	values := [][2]string{
		{"model", f.model},
		{"response_format", "verbose_json"},
		{"timestamp_granularities[]", "segment"},
	}
	if f.language != "" {
		values = append(values, [2]string{"language", f.language})
	}
	for _, kv := range values {
		if err := writer.WriteField(kv[0], kv[1]); err != nil {
			return fmt.Errorf("write field %s: %w", kv[0], err)
		}
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open audio: %w", err)
	}
	defer file.Close()

	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return fmt.Errorf("create file part: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return fmt.Errorf("copy audio: %w", err)
	}
	return writer.Close()
}
