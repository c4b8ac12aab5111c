// Package source reads calculator inputs (rounds, applications, votes and
// reputation scores) as JSON documents from a gocloud.dev bucket.
//
// Layout under the bucket prefix:
//
//	{chainId}/rounds.json
//	{chainId}/rounds/{roundId}/applications.json
//	{chainId}/rounds/{roundId}/votes.json
//	passport_scores.json
//
// Any document may instead be stored zstd-compressed with a ".zst" suffix.
package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob" // file:// driver
	_ "gocloud.dev/blob/gcsblob"  // gs:// driver
	_ "gocloud.dev/blob/memblob"  // mem:// driver
	_ "gocloud.dev/blob/s3blob"   // s3:// driver
	"gocloud.dev/gcerrors"

	"github.com/shuoer86/grants-stack-indexer/internal/logging"
	"github.com/shuoer86/grants-stack-indexer/internal/model"
)

const (
	roundsFile       = "rounds.json"
	applicationsFile = "applications.json"
	votesFile        = "votes.json"
	scoresFile       = "passport_scores.json"

	compressedSuffix = ".zst"
)

// BlobSource serves calculator inputs from a bucket. It is safe for
// concurrent use.
type BlobSource struct {
	bucket  *blob.Bucket
	prefix  string
	decoder *zstd.Decoder
	owned   bool
	logger  *slog.Logger
}

// Open opens the bucket at url ("file:///data", "mem://", "s3://bucket?region=..",
// "gs://bucket") and serves documents under prefix.
func Open(ctx context.Context, url, prefix string) (*BlobSource, error) {
	bucket, err := blob.OpenBucket(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("open bucket %s: %w", url, err)
	}
	s, err := New(bucket, prefix)
	if err != nil {
		bucket.Close()
		return nil, err
	}
	s.owned = true
	return s, nil
}

// New serves documents from an already opened bucket. Close does not close
// the bucket.
func New(bucket *blob.Bucket, prefix string) (*BlobSource, error) {
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &BlobSource{
		bucket:  bucket,
		prefix:  strings.Trim(prefix, "/"),
		decoder: dec,
		logger:  logging.Component("source"),
	}, nil
}

// Close releases the decoder and, when opened by Open, the bucket.
func (s *BlobSource) Close() error {
	s.decoder.Close()
	if s.owned {
		return s.bucket.Close()
	}
	return nil
}

// Round returns the round with the given id from the chain's round list.
// Ids compare case-insensitively.
func (s *BlobSource) Round(ctx context.Context, chainID int64, roundID string) (model.RoundRecord, error) {
	var rounds []model.RoundRecord
	if err := s.readJSON(ctx, s.key(chainKey(chainID), roundsFile), &rounds); err != nil {
		return model.RoundRecord{}, err
	}
	for _, r := range rounds {
		if strings.EqualFold(r.ID, roundID) {
			return r, nil
		}
	}
	return model.RoundRecord{}, model.NewNotFound("round", chainID, roundID)
}

// Applications returns every application of a round.
func (s *BlobSource) Applications(ctx context.Context, chainID int64, roundID string) ([]model.ApplicationRecord, error) {
	var apps []model.ApplicationRecord
	if err := s.readJSON(ctx, s.key(chainKey(chainID), "rounds", roundID, applicationsFile), &apps); err != nil {
		return nil, err
	}
	return apps, nil
}

// Contributions returns every vote cast in a round.
func (s *BlobSource) Contributions(ctx context.Context, chainID int64, roundID string) ([]model.ContributionRecord, error) {
	var votes []model.ContributionRecord
	if err := s.readJSON(ctx, s.key(chainKey(chainID), "rounds", roundID, votesFile), &votes); err != nil {
		return nil, err
	}
	return votes, nil
}

// ReputationScores returns the global passport score list.
func (s *BlobSource) ReputationScores(ctx context.Context) ([]model.ReputationScore, error) {
	var scores []model.ReputationScore
	if err := s.readJSON(ctx, s.key(scoresFile), &scores); err != nil {
		return nil, err
	}
	return scores, nil
}

func chainKey(chainID int64) string {
	return strconv.FormatInt(chainID, 10)
}

func (s *BlobSource) key(parts ...string) string {
	if s.prefix != "" {
		parts = append([]string{s.prefix}, parts...)
	}
	return path.Join(parts...)
}

// readJSON decodes the document at key, falling back to key+".zst". A
// document missing in both forms is a *model.NotFoundError.
func (s *BlobSource) readJSON(ctx context.Context, key string, v any) error {
	data, err := s.readObject(ctx, key)
	if gcerrors.Code(err) == gcerrors.NotFound {
		var compressed []byte
		compressed, err = s.readObject(ctx, key+compressedSuffix)
		if err == nil {
			data, err = s.decoder.DecodeAll(compressed, nil)
			if err != nil {
				return fmt.Errorf("zstd decompress %s: %w", key+compressedSuffix, err)
			}
		}
	}
	if gcerrors.Code(err) == gcerrors.NotFound {
		return model.NewNotFound("document", key)
	}
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	s.logger.Debug("document loaded", "key", key, "bytes", len(data))
	return nil
}

func (s *BlobSource) readObject(ctx context.Context, key string) ([]byte, error) {
	reader, err := s.bucket.NewReader(ctx, key, nil)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, err
		}
		return nil, fmt.Errorf("open object %s: %w", key, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", key, err)
	}
	return data, nil
}
