package lokalise

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/lokalise-tm/ltm/csvfile"
	"github.com/lokalise-tm/ltm/progress"
	"github.com/lokalise-tm/ltm/retry"
)

const (
	FinalReportFile  = "final_report.csv"
	FailedUpdateFile = "failed_update.csv"

	// DefaultRequestsPerSecond matches the free plan limit.
	DefaultRequestsPerSecond = 6
)

var (
	ReportHeader = []string{"key_id", "key_name", "language_iso", "translation_id", "new_translation", "modified_at"}
	FailedHeader = []string{"key_id", "key_name", "language_iso", "translation_id", "new_translation", "status_code", "error"}
)

// Updater updates a single translation.
type Updater interface {
	UpdateTranslation(ctx context.Context, translationID, text string) (string, error)
}

// Uploader pushes an output store to Lokalise.
type Uploader struct {
	Client            Updater
	RequestsPerSecond int
	// Retry applies to rate limiting and server errors only.
	Retry    retry.Policy
	Sleep    retry.Sleeper
	Progress progress.Starter
	Logger   *slog.Logger
}

// Result counts what Upload did.
type Result struct {
	Keys       int
	Requests   int
	Succeeded  int
	Failed     int
	ReportPath string
	FailedPath string
}

func (u *Uploader) log() *slog.Logger {
	if u.Logger == nil {
		return slog.Default()
	}
	return u.Logger
}

func (u *Uploader) sleep() retry.Sleeper {
	if u.Sleep == nil {
		return retry.Sleep
	}
	return u.Sleep
}

func (u *Uploader) retryPolicy() retry.Policy {
	if u.Retry.MaxAttempts == 0 {
		return retry.Policy{MaxAttempts: 3, InitialDelay: time.Second}
	}
	return u.Retry
}

func temporary(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// splitRaw keeps empty items so positions stay aligned across columns.
func splitRaw(s, sep string) []string {
	parts := strings.Split(s, sep)
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// Upload sends every translation of outputPath and writes the success and
// failure reports into reportsDir. Rows whose languages, translation ids
// and translations differ in length count as failed for every language.
// Empty translation ids and blank translations are skipped as failed.
func (u *Uploader) Upload(ctx context.Context, outputPath, reportsDir string) (Result, error) {
	var res Result

	table, err := csvfile.ReadFile(outputPath)
	if err != nil {
		return res, fmt.Errorf("reading %s: %w", outputPath, err)
	}
	res.Keys = len(table.Rows)
	if len(table.Rows) == 0 {
		u.log().Info("nothing to upload", "path", outputPath)
		return res, nil
	}

	rps := u.RequestsPerSecond
	if rps <= 0 {
		rps = DefaultRequestsPerSecond
	}

	var report, failed []map[string]string
	sincePause := 0
	fail := func(row map[string]string, status int, reason string) {
		res.Failed++
		row["status_code"] = ""
		if status > 0 {
			row["status_code"] = strconv.Itoa(status)
		}
		row["error"] = reason
		failed = append(failed, row)
	}

	starter := u.Progress
	if starter == nil {
		starter = progress.Nop
	}
	bar := starter(len(table.Rows), "uploading")
	defer bar.Close()

	for _, row := range table.Rows {
		keyID := row.Value(csvfile.ColKeyID)
		keyName := row.Value(csvfile.ColKeyName)
		langs := splitRaw(row.Value(csvfile.ColLanguages), ",")
		ids := splitRaw(row.Value(csvfile.ColTranslationID), ",")
		texts := splitRaw(row.Value(csvfile.ColTranslated), "|")

		if len(langs) != len(ids) || len(langs) != len(texts) {
			u.log().Error("data mismatch, skipping key",
				"key", keyName, "key_id", keyID,
				"languages", len(langs), "ids", len(ids), "translations", len(texts))
			for _, lang := range langs {
				fail(map[string]string{
					"key_id": keyID, "key_name": keyName, "language_iso": lang,
				}, 0, "languages, translation ids and translations differ in length")
			}
			bar.Add(1)
			continue
		}

		for i, lang := range langs {
			entry := map[string]string{
				"key_id": keyID, "key_name": keyName, "language_iso": lang,
				"translation_id": ids[i], "new_translation": texts[i],
			}
			if ids[i] == "" {
				u.log().Warn("translation id missing, skipping", "key", keyName, "lang", lang)
				fail(entry, 0, "missing translation id")
				continue
			}
			if texts[i] == "" {
				u.log().Warn("blank translation, skipping", "key", keyName, "lang", lang)
				fail(entry, 0, "blank translation")
				continue
			}
			if err := ctx.Err(); err != nil {
				return res, err
			}

			modified, attempts, err := retry.Do(ctx, u.retryPolicy(),
				func(ctx context.Context) (string, error) {
					return u.Client.UpdateTranslation(ctx, ids[i], texts[i])
				},
				temporary,
				retry.Options{Sleep: u.sleep()})
			res.Requests += attempts
			sincePause += attempts

			if err != nil {
				if ctx.Err() != nil {
					return res, ctx.Err()
				}
				status := 0
				var apiErr *APIError
				if errors.As(err, &apiErr) {
					status = apiErr.StatusCode
				}
				u.log().Error("update failed", "key", keyName, "lang", lang, "status", status, "error", err)
				fail(entry, status, err.Error())
			} else {
				res.Succeeded++
				entry["modified_at"] = modified
				report = append(report, entry)
				u.log().Debug("updated", "key", keyName, "lang", lang)
			}

			if sincePause >= rps {
				sincePause = 0
				if err := u.sleep()(ctx, time.Second); err != nil {
					return res, err
				}
			}
		}
		bar.Add(1)
	}

	if len(report) > 0 {
		res.ReportPath = filepath.Join(reportsDir, FinalReportFile)
		if err := csvfile.WriteFile(res.ReportPath, ReportHeader, report); err != nil {
			return res, err
		}
	}
	failedPath := filepath.Join(reportsDir, FailedUpdateFile)
	if len(failed) > 0 {
		res.FailedPath = failedPath
		if err := csvfile.WriteFile(failedPath, FailedHeader, failed); err != nil {
			return res, err
		}
	} else if err := os.Remove(failedPath); err != nil && !os.IsNotExist(err) {
		u.log().Warn("could not remove stale failure report", "path", failedPath, "error", err)
	}

	u.log().Info("upload finished", "requests", res.Requests, "succeeded", res.Succeeded, "failed", res.Failed)
	return res, nil
}
