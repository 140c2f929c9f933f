// Package pipeline runs post jobs one at a time off the UI goroutine.
//
// The UI sends Jobs and receives Outcomes over two bounded FIFO channels and
// shares nothing else with the worker. A single consumer guarantees that at
// most one post operation is in flight.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/mikequentel/xpost/internal/logger"
)

// QueueSize bounds both channels.
const QueueSize = 10

var ErrQueueFull = errors.New("post queue is full")

// Job is one post request. The sender must not touch Image after Submit.
type Job struct {
	Text  string
	Image []byte // PNG, nil when no image is attached
}

// Outcome is either Success or Failure.
type Outcome interface{ isOutcome() }

type Success struct{ RemoteID string }

type Failure struct{ Message string }

func (Success) isOutcome() {}
func (Failure) isOutcome() {}

// Poster is the part of the API gateway the pipeline needs.
type Poster interface {
	UploadMedia(ctx context.Context, png []byte) (string, error)
	CreatePost(ctx context.Context, text, mediaID string) (string, error)
}

// Recorder keeps a local log of published posts.
type Recorder interface {
	RecordPost(ctx context.Context, remoteID, text string, hadImage bool, at time.Time) error
}

type Pipeline struct {
	jobs     chan Job
	outcomes chan Outcome
	poster   Poster
	recorder Recorder
	log      *logger.Logger
}

type Option func(*Pipeline)

func WithRecorder(r Recorder) Option { return func(p *Pipeline) { p.recorder = r } }

func WithLogger(l *logger.Logger) Option { return func(p *Pipeline) { p.log = l } }

func New(poster Poster, opts ...Option) *Pipeline {
	p := &Pipeline{
		jobs:     make(chan Job, QueueSize),
		outcomes: make(chan Outcome, QueueSize),
		poster:   poster,
		log:      logger.Nop(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Submit enqueues job without blocking.
func (p *Pipeline) Submit(job Job) error {
	select {
	case p.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Outcomes delivers exactly one Outcome per submitted job, in submission order.
// It is closed when Run returns.
func (p *Pipeline) Outcomes() <-chan Outcome { return p.outcomes }

// Run is the single consumer. Cancelling ctx stops the loop between jobs; a
// job that has started always runs to completion and its outcome is delivered
// if anyone is still receiving.
func (p *Pipeline) Run(ctx context.Context) {
	defer close(p.outcomes)
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-p.jobs:
			out := p.Process(context.WithoutCancel(ctx), job)
			select {
			case p.outcomes <- out:
			case <-ctx.Done():
				return
			}
		}
	}
}

// Process performs one job: upload the image if there is one, then create
// the post. Text is never posted when its image failed to upload.
func (p *Pipeline) Process(ctx context.Context, job Job) Outcome {
	start := time.Now()
	log := p.log.With().Int("text_len", len(job.Text)).Bool("image", job.Image != nil).Logger()

	var mediaID string
	if job.Image != nil {
		id, err := p.poster.UploadMedia(ctx, job.Image)
		if err != nil {
			log.Error().Err(err).Str("detail", detail(err)).Msg("image upload failed")
			return Failure{Message: "image upload failed: " + err.Error()}
		}
		mediaID = id
		log.Debug().Str("media_id", mediaID).Msg("image uploaded")
	}

	remoteID, err := p.poster.CreatePost(ctx, job.Text, mediaID)
	if err != nil {
		log.Error().Err(err).Str("detail", detail(err)).Msg("post failed")
		return Failure{Message: "post failed: " + err.Error()}
	}
	log.Info().Str("remote_id", remoteID).Dur("took", time.Since(start)).Msg("posted")

	if p.recorder != nil {
		if err := p.recorder.RecordPost(ctx, remoteID, job.Text, job.Image != nil, time.Now()); err != nil {
			log.Warn().Err(err).Str("remote_id", remoteID).Msg("record post history")
		}
	}
	return Success{RemoteID: remoteID}
}

// detail is the gateway's human summary of an API error, if it has one.
func detail(err error) string {
	var d interface{ Detail() string }
	if errors.As(err, &d) {
		return d.Detail()
	}
	return ""
}
