package storage

import (
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"
)

var pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// TranscriptKey builds the object key for one intent's attempt transcript,
// partitioned by day so archives stay browsable.
func TranscriptKey(runID string, finishedAt time.Time) (string, error) {
	if err := validatePathComponent(runID, "run id"); err != nil {
		return "", err
	}
	ts := finishedAt.UTC()
	return path.Join(
		"transcripts",
		fmt.Sprintf("date=%04d-%02d-%02d", ts.Year(), ts.Month(), ts.Day()),
		fmt.Sprintf("run-%s.parquet", runID),
	), nil
}

// ParseS3URL splits an s3://bucket/key target into bucket and key.
func ParseS3URL(raw string) (bucket, key string, err error) {
	raw = strings.TrimSpace(raw)
	rest, ok := strings.CutPrefix(raw, "s3://")
	if !ok {
		return "", "", fmt.Errorf("not an s3 URL: %q", raw)
	}
	bucket, key, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("s3 URL must name a bucket and key: %q", raw)
	}
	key = path.Clean(key)
	if key == "." || strings.HasPrefix(key, "../") {
		return "", "", fmt.Errorf("invalid s3 key: %q", raw)
	}
	return bucket, key, nil
}

// IsS3URL reports whether the database target names a remote object.
func IsS3URL(raw string) bool {
	return strings.HasPrefix(strings.TrimSpace(raw), "s3://")
}

func validatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}
