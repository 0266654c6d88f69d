package importer

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"
)

// archiveLimits bound what one archive may expand to in memory.
type archiveLimits struct {
	members     int
	memberBytes int64
	totalBytes  int64
}

var defaultArchiveLimits = archiveLimits{
	members:     200,
	memberBytes: 32 << 20,
	totalBytes:  256 << 20,
}

// ReadArchive unpacks a zip of workbooks into batch inputs. A member named
// "<authorID>_<name>.xlsx" is attributed to that author, any other member to
// defaultAuthor. Directories and OS metadata files are skipped; every other
// member becomes an input so unsupported files still reach the ledger.
// Archives with too many members or too many decompressed bytes are
// rejected with ErrInvalidInput.
func ReadArchive(data []byte, courseID, quizID, defaultAuthor int64) ([]ParseInput, error) {
	return readArchive(data, courseID, quizID, defaultAuthor, defaultArchiveLimits)
}

func readArchive(data []byte, courseID, quizID, defaultAuthor int64, limits archiveLimits) ([]ParseInput, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: open archive: %v", ErrInvalidInput, err)
	}

	members := make([]*zip.File, 0, len(zr.File))
	for _, zf := range zr.File {
		if zf.FileInfo().IsDir() || skipArchiveMember(zf.Name) {
			continue
		}
		members = append(members, zf)
	}
	if len(members) > limits.members {
		return nil, fmt.Errorf("%w: archive has %d workbooks, at most %d allowed", ErrInvalidInput, len(members), limits.members)
	}

	budget := limits.totalBytes
	inputs := make([]ParseInput, 0, len(members))
	for _, zf := range members {
		limit := limits.memberBytes
		if budget < limit {
			limit = budget
		}
		body, err := readArchiveMember(zf, limit)
		if err != nil {
			if errors.Is(err, errMemberTooLarge) && limit < limits.memberBytes {
				return nil, fmt.Errorf("%w: archive expands beyond %d bytes", ErrInvalidInput, limits.totalBytes)
			}
			return nil, err
		}
		budget -= int64(len(body))
		name := path.Base(zf.Name)
		inputs = append(inputs, ParseInput{
			CourseID: courseID,
			AuthorID: authorFromName(name, defaultAuthor),
			QuizID:   quizID,
			Filename: name,
			Data:     body,
		})
	}
	return inputs, nil
}

func skipArchiveMember(name string) bool {
	base := path.Base(name)
	return strings.HasPrefix(name, "__MACOSX/") || strings.HasPrefix(base, ".") || strings.HasPrefix(base, "~$")
}

var errMemberTooLarge = errors.New("archive member too large")

// readArchiveMember reads at most limit bytes of zf.
func readArchiveMember(zf *zip.File, limit int64) ([]byte, error) {
	rc, err := zf.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", zf.Name, err)
	}
	defer rc.Close()
	body, err := io.ReadAll(io.LimitReader(rc, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", zf.Name, err)
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("%w: %w: %s exceeds %d bytes", ErrInvalidInput, errMemberTooLarge, zf.Name, limit)
	}
	return body, nil
}

func authorFromName(name string, fallback int64) int64 {
	prefix, _, ok := strings.Cut(name, "_")
	if !ok {
		return fallback
	}
	id, err := strconv.ParseInt(prefix, 10, 64)
	if err != nil || id <= 0 {
		return fallback
	}
	return id
}
