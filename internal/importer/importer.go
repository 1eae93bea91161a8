// Package importer reads jokes from a JSONL file and publishes them to
// the submission queue, where the bot process picks them up and stores
// them as published jokes.
package importer

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"joke-bot/internal/models"
	"joke-bot/internal/queue"
	"joke-bot/pkg/logger"
)

// Publisher is the queue-facing side of the importer.
type Publisher interface {
	PublishSubmission(ctx context.Context, submission *queue.JokeSubmission) error
}

// record is one JSONL line of the import file.
type record struct {
	Content  string   `json:"content"`
	Language string   `json:"language"`
	Tags     []string `json:"tags"`
}

type Importer struct {
	publisher Publisher
}

func New(publisher Publisher) *Importer {
	return &Importer{publisher: publisher}
}

// Stats reports the outcome of one import run.
type Stats struct {
	Published int
	Skipped   int
}

// maxLineBytes caps a single JSONL record. Longer lines are counted as
// skipped rather than failing the run.
const maxLineBytes = 1 << 20

// Run reads JSONL records from r and publishes each valid one. Records
// with malformed JSON, oversized lines, or content below the minimum
// length are skipped with a warning, never aborting the run. Only a
// read or publish failure stops the import.
func (i *Importer) Run(ctx context.Context, r io.Reader) (Stats, error) {
	var stats Stats

	reader := bufio.NewReader(r)

	lineNo := 0
	for {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		default:
		}

		line, readErr := reader.ReadString('\n')
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			return stats, fmt.Errorf("failed to read import file: %w", readErr)
		}

		if line != "" {
			lineNo++
			if err := i.processLine(ctx, line, lineNo, &stats); err != nil {
				return stats, err
			}
		}

		if readErr != nil {
			return stats, nil
		}
	}
}

func (i *Importer) processLine(ctx context.Context, line string, lineNo int, stats *Stats) error {
	if len(line) > maxLineBytes {
		logger.Warn("Skipping oversized line",
			logger.Int("line", lineNo),
			logger.Int("bytes", len(line)),
		)
		stats.Skipped++
		return nil
	}

	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}

	var rec record
	if err := json.Unmarshal([]byte(line), &rec); err != nil {
		logger.Warn("Skipping malformed line",
			logger.Int("line", lineNo),
			logger.Err(err),
		)
		stats.Skipped++
		return nil
	}

	submission, err := toSubmission(rec)
	if err != nil {
		logger.Warn("Skipping invalid joke",
			logger.Int("line", lineNo),
			logger.Err(err),
		)
		stats.Skipped++
		return nil
	}

	if err := i.publisher.PublishSubmission(ctx, submission); err != nil {
		return fmt.Errorf("failed to publish line %d: %w", lineNo, err)
	}
	stats.Published++
	return nil
}

func toSubmission(rec record) (*queue.JokeSubmission, error) {
	content := strings.TrimSpace(rec.Content)
	if utf8.RuneCountInString(content) < models.MinJokeLength {
		return nil, fmt.Errorf("content is shorter than %d characters", models.MinJokeLength)
	}

	language := strings.ToLower(strings.TrimSpace(rec.Language))
	if language == "" {
		language = models.DefaultLanguage
	}

	tags := make([]string, 0, len(rec.Tags))
	for _, tag := range rec.Tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag != "" {
			tags = append(tags, tag)
		}
	}

	return &queue.JokeSubmission{
		Content:  content,
		Language: language,
		Tags:     tags,
	}, nil
}
