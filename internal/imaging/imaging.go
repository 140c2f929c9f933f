// Package imaging turns an image file or the clipboard contents into PNG
// bytes ready for upload.
package imaging

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	// decoders registered with image.Decode
	_ "image/gif"
	_ "image/jpeg"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Error is a decode or encode failure. Op is "open", "decode", "encode" or
// "clipboard".
type Error struct {
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// LoadFile decodes the image at path (png, jpeg, gif, bmp, tiff, webp) and
// re-encodes it as PNG. A leading "~/" is expanded to the home directory.
func LoadFile(path string) ([]byte, error) {
	path = expandHome(strings.TrimSpace(path))
	fi, err := os.Stat(path)
	if err != nil {
		return nil, &Error{Op: "open", Path: path, Err: err}
	}
	if fi.IsDir() {
		return nil, &Error{Op: "open", Path: path, Err: errors.New("is a directory, not a file")}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Op: "open", Path: path, Err: err}
	}
	out, err := ToPNG(data)
	if err != nil {
		var ie *Error
		if errors.As(err, &ie) {
			ie.Path = path
		}
		return nil, err
	}
	return out, nil
}

// ToPNG decodes any registered format and encodes the result as PNG.
func ToPNG(data []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &Error{Op: "decode", Err: err}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, &Error{Op: "encode", Err: err}
	}
	return buf.Bytes(), nil
}

// Clipboard reads an image from the system clipboard through the platform's
// command line tool (wl-paste, xclip or pngpaste).
type Clipboard struct {
	// Commands are tried in order; the first one found on PATH is used.
	Commands [][]string
	Timeout  time.Duration
}

func NewClipboard() *Clipboard {
	return &Clipboard{
		Commands: [][]string{
			{"wl-paste", "--no-newline", "--type", "image/png"},
			{"xclip", "-selection", "clipboard", "-t", "image/png", "-o"},
			{"pngpaste", "-"},
		},
		Timeout: 3 * time.Second,
	}
}

// Image returns the clipboard image as PNG.
func (c *Clipboard) Image() ([]byte, error) {
	for _, argv := range c.Commands {
		bin, err := exec.LookPath(argv[0])
		if err != nil {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), c.Timeout)
		out, err := exec.CommandContext(ctx, bin, argv[1:]...).Output()
		cancel()
		if err != nil || len(out) == 0 {
			return nil, &Error{Op: "clipboard", Err: fmt.Errorf("no image in clipboard (%s): %v. Try Ctrl+U to attach a file instead", argv[0], err)}
		}
		return ToPNG(out)
	}
	return nil, &Error{Op: "clipboard", Err: errors.New("no clipboard tool found (install wl-clipboard, xclip or pngpaste). Try Ctrl+U to attach a file instead")}
}

func expandHome(path string) string {
	if rest, ok := strings.CutPrefix(path, "~/"); ok {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, rest)
		}
	}
	return path
}

// Reader bundles the two image sources the compose session offers.
type Reader struct {
	Clipboard *Clipboard
}

func NewReader() *Reader { return &Reader{Clipboard: NewClipboard()} }

func (r *Reader) FromFile(path string) ([]byte, error) { return LoadFile(path) }

func (r *Reader) FromClipboard() ([]byte, error) { return r.Clipboard.Image() }
