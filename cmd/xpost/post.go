package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mikequentel/xpost/internal/config"
	"github.com/mikequentel/xpost/internal/imaging"
	"github.com/mikequentel/xpost/internal/logger"
	"github.com/mikequentel/xpost/internal/pipeline"
	"github.com/mikequentel/xpost/internal/store"
)

const maxPostLen = 280

// runPost publishes one post without the UI: xpost post [-image f] [-tags s] text...
// With no text arguments the body is read from stdin.
func runPost(ctx context.Context, cfg config.Config, args []string, stdin io.Reader, out io.Writer) error {
	fs, opts := postFlags()
	if err := fs.Parse(args); err != nil {
		return err
	}
	imagePath, tags, dryRun := opts.image, opts.tags, opts.dryRun

	body := strings.Join(fs.Args(), " ")
	if body == "" {
		b, err := io.ReadAll(stdin)
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		body = string(b)
	}
	if strings.TrimSpace(body) == "" {
		return errors.New("nothing to post")
	}

	job := pipeline.Job{Text: composeText(body, *tags, maxPostLen)}
	if *imagePath != "" {
		png, err := imaging.LoadFile(*imagePath)
		if err != nil {
			return err
		}
		job.Image = png
	}

	if *dryRun {
		fmt.Fprintln(out, "DRY RUN (no network calls)")
		fmt.Fprintf(out, "Will post:\n---\n%s\n---\n", job.Text)
		if *imagePath != "" {
			fmt.Fprintf(out, "Image: %s (%d bytes as PNG)\n", *imagePath, len(job.Image))
		}
		return nil
	}

	db, err := store.Open(cfg.DBPath())
	if err != nil {
		return err
	}
	defer db.Close()
	return postOnce(ctx, newClient(cfg), db, job, out)
}

type postOptions struct {
	image  *string
	tags   *string
	dryRun *bool
}

func postFlags() (*flag.FlagSet, postOptions) {
	fs := flag.NewFlagSet("post", flag.ContinueOnError)
	return fs, postOptions{
		image:  fs.String("image", "", "image file to attach"),
		tags:   fs.String("tags", "", "hashtags appended after the text, kept when the text is truncated"),
		dryRun: fs.Bool("dry-run", os.Getenv("DRY_RUN") == "1", "print the post instead of publishing it"),
	}
}

// dryRunRequested reports whether post args (or DRY_RUN=1) ask for a dry run.
// Bad args report false so the real parse in runPost produces the error.
func dryRunRequested(args []string) bool {
	fs, opts := postFlags()
	fs.SetOutput(io.Discard)
	if err := fs.Parse(args); err != nil {
		return false
	}
	return *opts.dryRun
}

// postOnce runs a single job through the same pipeline the UI uses.
func postOnce(ctx context.Context, poster pipeline.Poster, rec pipeline.Recorder, job pipeline.Job, out io.Writer) error {
	p := pipeline.New(poster, pipeline.WithRecorder(rec), pipeline.WithLogger(logger.Named("pipeline")))
	switch o := p.Process(ctx, job).(type) {
	case pipeline.Success:
		fmt.Fprintf(out, "Posted https://x.com/i/status/%s\n", o.RemoteID)
		return nil
	case pipeline.Failure:
		return errors.New(o.Message)
	}
	return nil
}

// composeText appends suffix to body and, when the result is longer than
// maxLen runes, cuts the body and adds an ellipsis so the suffix survives.
func composeText(body, suffix string, maxLen int) string {
	body = strings.TrimSpace(body)
	suffix = strings.TrimSpace(suffix)
	tail := ""
	if suffix != "" {
		tail = " " + suffix
	}

	text := body + tail
	if len([]rune(text)) <= maxLen {
		return text
	}

	const ellipsis = "…"
	avail := maxLen - len([]rune(tail)) - len([]rune(ellipsis))
	if avail < 20 {
		avail = 20
	}
	bodyRunes := []rune(body)
	if avail > len(bodyRunes) {
		avail = len(bodyRunes)
	}
	return strings.TrimRight(string(bodyRunes[:avail]), " ") + ellipsis + tail
}
