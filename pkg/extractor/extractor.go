// Package extractor turns rendered follower cells into FollowerRecords.
package extractor

import (
	"context"
	"strings"

	"github.com/goccy/go-json"

	"followsweep/pkg/channel"
	errs "followsweep/pkg/errors"
	"followsweep/pkg/models"
)

type cellFields struct {
	URL      string `json:"url"`
	Img      string `json:"img"`
	Username string `json:"username"`
	Account  string `json:"account"`
	Bio      string `json:"bio"`
}

// Extract reads one follower cell. It fails with ExtractionIncomplete when the
// cell has no profile link or no avatar; missing text fields become "".
func Extract(ctx context.Context, node channel.Node, subject string) (models.FollowerRecord, error) {
	raw, err := node.Eval(ctx, cellScript)
	if err != nil {
		if ctx.Err() != nil {
			return models.FollowerRecord{}, ctx.Err()
		}
		return models.FollowerRecord{}, errs.Wrap(errs.ErrorTypeExtractionIncomplete, "extract", err)
	}
	return decode(raw, subject)
}

func decode(raw, subject string) (models.FollowerRecord, error) {
	var f cellFields
	if err := json.Unmarshal([]byte(raw), &f); err != nil {
		return models.FollowerRecord{}, errs.Wrapf(errs.ErrorTypeExtractionIncomplete, "extract", err, "malformed cell payload")
	}
	f.URL = strings.TrimSpace(f.URL)
	f.Img = strings.TrimSpace(f.Img)
	if f.URL == "" {
		return models.FollowerRecord{}, errs.New(errs.ErrorTypeExtractionIncomplete, "extract", "cell has no profile link")
	}
	if f.Img == "" {
		return models.FollowerRecord{}, errs.New(errs.ErrorTypeExtractionIncomplete, "extract", "cell has no avatar")
	}

	r := models.FollowerRecord{
		SubjectAccount: subject,
		ProfileURL:     f.URL,
		AvatarURL:      f.Img,
		DisplayName:    strings.TrimSpace(f.Username),
		Handle:         strings.TrimSpace(f.Account),
		Bio:            strings.TrimSpace(f.Bio),
	}
	r.Normalize()
	if r.SourceID == "" {
		return models.FollowerRecord{}, errs.New(errs.ErrorTypeExtractionIncomplete, "extract", "profile link has no account segment")
	}
	return r, nil
}

// Batch is the outcome of extracting a pass worth of cells.
type Batch struct {
	Records []models.FollowerRecord
	// Skipped counts cells that failed extraction or repeated a key
	// already seen in this pass.
	Skipped int
}

// ExtractBatch extracts every node, dropping incomplete cells and repeated
// keys. Only cancellation aborts the batch.
func ExtractBatch(ctx context.Context, nodes []channel.Node, subject string) (Batch, error) {
	var b Batch
	seen := make(map[string]struct{}, len(nodes))
	for _, n := range nodes {
		if err := ctx.Err(); err != nil {
			return b, err
		}
		r, err := Extract(ctx, n, subject)
		if err != nil {
			if ctx.Err() != nil {
				return b, ctx.Err()
			}
			b.Skipped++
			continue
		}
		if _, dup := seen[r.RecordKey]; dup {
			b.Skipped++
			continue
		}
		seen[r.RecordKey] = struct{}{}
		b.Records = append(b.Records, r)
	}
	return b, nil
}
