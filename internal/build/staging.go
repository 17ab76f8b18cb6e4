package build

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// staging is a sibling of the output directory that a build writes into
// before it replaces the output in one rename.
type staging struct {
	dir    string
	output string
}

func beginStaging(output string) (*staging, error) {
	parent := filepath.Dir(output)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", parent, err)
	}

	dir := filepath.Join(parent, "."+filepath.Base(output)+".staging-"+uuid.NewString())
	if err := os.Mkdir(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}

	log.Debug().Str("staging", dir).Str("output", output).Msg("initialized staging directory")
	return &staging{dir: dir, output: output}, nil
}

// writeFiles writes slash separated relative paths into the staging directory.
func (s *staging) writeFiles(files map[string][]byte) error {
	for name, data := range files {
		path := filepath.Join(s.dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(path, data, 0o644); err != nil { //nolint:gosec
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
	}
	return nil
}

// promote replaces the output directory with the staging directory. The
// previous output is moved aside first and restored if the swap fails.
// Renames are retried because another process may briefly hold the
// directory open.
func (s *staging) promote(ctx context.Context) error {
	prev := s.output + ".prev-" + uuid.NewString()

	hadOutput := false
	if _, err := os.Stat(s.output); err == nil {
		hadOutput = true
		if err := rename(ctx, s.output, prev); err != nil {
			return fmt.Errorf("backup existing output: %w", err)
		}
	}

	if err := rename(ctx, s.dir, s.output); err != nil {
		if hadOutput {
			if restoreErr := os.Rename(prev, s.output); restoreErr != nil {
				log.Error().Err(restoreErr).Str("backup", prev).Msg("failed to restore previous output")
			}
		}
		return fmt.Errorf("promote staging: %w", err)
	}

	if hadOutput {
		if err := os.RemoveAll(prev); err != nil {
			log.Warn().Err(err).Str("backup", prev).Msg("failed to remove previous output")
		}
	}

	log.Debug().Str("output", s.output).Msg("promoted staging directory")
	return nil
}

// abort removes the staging directory after a failed build.
func (s *staging) abort() {
	if err := os.RemoveAll(s.dir); err != nil {
		log.Warn().Err(err).Str("staging", s.dir).Msg("failed to remove staging directory")
	}
}

func rename(ctx context.Context, from, to string) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = time.Second

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := os.Rename(from, to)
		if errors.Is(err, fs.ErrNotExist) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(5),
	)
	return err
}

// copyPublic copies the public directory into dst, following symlinks and
// skipping the html template, which the engine renders itself.
func copyPublic(src, dst, template string) (int, error) {
	info, err := os.Stat(src)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("public path %s is not a directory", src)
	}

	return copyDir(src, dst, filepath.Clean(template))
}

func copyDir(src, dst, skip string) (int, error) {
	entries, err := os.ReadDir(src)
	if err != nil {
		return 0, err
	}

	copied := 0
	for _, entry := range entries {
		from := filepath.Join(src, entry.Name())
		to := filepath.Join(dst, entry.Name())

		if from == skip {
			continue
		}

		// stat follows symlinks so linked files and directories are copied as content
		info, err := os.Stat(from)
		if err != nil {
			return copied, err
		}

		if info.IsDir() {
			if err := os.MkdirAll(to, 0o755); err != nil {
				return copied, err
			}
			n, err := copyDir(from, to, skip)
			copied += n
			if err != nil {
				return copied, err
			}
			continue
		}

		if err := copyFile(from, to, info.Mode().Perm()); err != nil {
			return copied, err
		}
		copied++
	}
	return copied, nil
}

func copyFile(from, to string, perm fs.FileMode) error {
	in, err := os.Open(from)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(to, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("failed to copy %s: %w", from, err)
	}
	return out.Close()
}
