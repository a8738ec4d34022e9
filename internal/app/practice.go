package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/MrWong99/speakcheck/internal/capture"
	"github.com/MrWong99/speakcheck/internal/observe"
	"github.com/MrWong99/speakcheck/internal/report"
	"github.com/MrWong99/speakcheck/internal/scoring"
)

// ErrNoPhrase is returned by Practice when no phrase was given and none are
// configured.
var ErrNoPhrase = errors.New("app: no phrase to practise")

// PracticeOptions controls one attempt.
type PracticeOptions struct {
	// Phrase is the expected text. Empty picks the next configured phrase.
	Phrase string

	// Manual disables voice-activity auto-stop; the recording runs until
	// the session is stopped or ctx is cancelled.
	Manual bool

	// OutputPath is where the WAV is written. Empty uses
	// reports.recordings_dir/<attempt id>.wav, or no file when that is unset.
	OutputPath string

	// OnStart, if set, is called once recording has begun, with the phrase
	// to read and the session so the caller can stop it.
	OnStart func(phrase string, s *capture.Session)
}

// Attempt is the outcome of one practice attempt.
type Attempt struct {
	report.Attempt

	// Score is the full scoring result. Zero when the attempt was not scored.
	Score scoring.Result

	// Alignment is the word alignment of the transcript against the phrase.
	Alignment []scoring.Op

	// Chunks is the number of engine calls used for the transcript.
	Chunks int
}

// Practice records the user reading a phrase, transcribes it, scores it and
// stores the attempt.
//
// A recording that auto-stops without speech is stored unscored and not
// transcribed. A manual stop is scored on whatever was captured. Capture and
// engine failures are returned without storing anything.
func (a *App) Practice(ctx context.Context, opts PracticeOptions) (Attempt, error) {
	id := uuid.NewString()
	ctx, span := observe.StartAttempt(ctx, id)
	defer span.End()
	log := observe.Logger(ctx)

	text, err := a.nextPhrase(opts.Phrase)
	if err != nil {
		return Attempt{}, err
	}
	out := opts.OutputPath
	if dir := a.Config().Reports.RecordingsDir; out == "" && dir != "" {
		out = filepath.Join(dir, id+".wav")
	}

	var h capture.Handlers
	h.OnError = func(err error) {
		log.Error("capture failed", "err", err)
	}
	if !opts.Manual {
		h.OnAutoStop = func(shouldProcess bool) {
			log.Debug("recording auto-stopped", "should_process", shouldProcess)
		}
	}

	sess, err := a.recorder.Start(ctx, out, h)
	if err != nil {
		return Attempt{}, fmt.Errorf("app: start capture: %w", err)
	}
	log.Info("recording started", "phrase", text, "manual", opts.Manual, "path", out)
	if opts.OnStart != nil {
		opts.OnStart(text, sess)
	}

	// Cancelling ctx stops the session; the recorder closes the source so a
	// read blocked on a silent input returns too.
	res := sess.Result()
	if res.Err != nil {
		return Attempt{}, fmt.Errorf("app: capture: %w", res.Err)
	}

	att := Attempt{Attempt: report.Attempt{
		ID:      id,
		Phrase:  text,
		Elapsed: res.Elapsed,
		Reason:  res.Reason.String(),
		WAVPath: res.Path,
	}}

	if res.Reason != capture.ReasonAutoStopSilence {
		if ctx.Err() != nil {
			// Interrupted, not finished: nothing worth scoring.
			return Attempt{}, fmt.Errorf("app: practice: %w", ctx.Err())
		}
		tr, err := a.pool.Transcribe(ctx, res.Samples)
		if err != nil {
			return Attempt{}, fmt.Errorf("app: transcribe: %w", err)
		}
		att.Transcript = tr.Text
		att.Chunks = tr.Chunks
		att.Score = scoring.Analyze(text, tr.Text, res.Elapsed)
		att.Alignment = scoring.Align(text, tr.Text)
		att.Scored = true
		att.WPM = att.Score.WPM
		att.WER = att.Score.WER
		a.metrics.RecordScore(ctx, att.WPM, att.WER)
	}

	saved, err := a.reports.Save(ctx, att.Attempt)
	if err != nil {
		return att, fmt.Errorf("app: save attempt: %w", err)
	}
	att.Attempt = saved

	log.Info("attempt finished",
		"reason", att.Reason,
		"scored", att.Scored,
		"wpm", att.WPM,
		"wer", att.WER,
		"elapsed", att.Elapsed,
	)
	return att, nil
}

func (a *App) nextPhrase(given string) (string, error) {
	if given != "" {
		return given, nil
	}
	a.mu.RLock()
	sel := a.phrases
	a.mu.RUnlock()
	if sel == nil {
		return "", ErrNoPhrase
	}
	p, err := sel.Next()
	if err != nil {
		return "", fmt.Errorf("app: pick phrase: %w", err)
	}
	return p, nil
}
