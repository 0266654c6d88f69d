package importer

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildArchive(t *testing.T, members map[string][]byte, order ...string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range order {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write(members[name])
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestReadArchive(t *testing.T) {
	wb := mcWorkbook(t, mcRows("zip", 15))
	members := map[string][]byte{
		"42_biologie.xlsx":            wb,
		"sub/quiz.xlsx":               wb,
		"notes.txt":                   []byte("hello"),
		"__MACOSX/._42_biologie.xlsx": []byte("meta"),
		".DS_Store":                   []byte("meta"),
		"~$42_biologie.xlsx":          []byte("lock"),
		"abc_name.xlsx":               wb,
	}
	data := buildArchive(t, members,
		"42_biologie.xlsx", "sub/quiz.xlsx", "notes.txt", "__MACOSX/._42_biologie.xlsx",
		".DS_Store", "~$42_biologie.xlsx", "abc_name.xlsx")

	inputs, err := ReadArchive(data, 3, 300, 9)
	require.NoError(t, err)
	require.Len(t, inputs, 4)

	assert.Equal(t, "42_biologie.xlsx", inputs[0].Filename)
	assert.Equal(t, int64(42), inputs[0].AuthorID)
	assert.Equal(t, int64(3), inputs[0].CourseID)
	assert.Equal(t, int64(300), inputs[0].QuizID)
	assert.Equal(t, "quiz.xlsx", inputs[1].Filename)
	assert.Equal(t, int64(9), inputs[1].AuthorID)
	assert.Equal(t, "notes.txt", inputs[2].Filename)
	assert.Equal(t, int64(9), inputs[3].AuthorID)
}

func TestReadArchiveRejectsNonZip(t *testing.T) {
	_, err := ReadArchive([]byte("plain text"), 1, 1, 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestReadArchiveLimits(t *testing.T) {
	kib := bytes.Repeat([]byte{0}, 1024)
	members := map[string][]byte{}
	order := make([]string, 0, 5)
	for i := 1; i <= 5; i++ {
		name := fmt.Sprintf("%d_quiz.xlsx", i)
		members[name] = kib
		order = append(order, name)
	}
	members[".DS_Store"] = kib
	order = append(order, ".DS_Store")
	data := buildArchive(t, members, order...)

	tests := []struct {
		name    string
		limits  archiveLimits
		wantErr bool
	}{
		{name: "within limits", limits: archiveLimits{members: 5, memberBytes: 1024, totalBytes: 5 * 1024}},
		{name: "too many members", limits: archiveLimits{members: 4, memberBytes: 1024, totalBytes: 1 << 20}, wantErr: true},
		{name: "member too large", limits: archiveLimits{members: 5, memberBytes: 1023, totalBytes: 1 << 20}, wantErr: true},
		{name: "total too large", limits: archiveLimits{members: 5, memberBytes: 1024, totalBytes: 4*1024 + 512}, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			inputs, err := readArchive(data, 1, 1, 1, tc.limits)
			if tc.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidInput))
				assert.Nil(t, inputs)
				return
			}
			require.NoError(t, err)
			assert.Len(t, inputs, 5)
		})
	}
}

func TestReadArchiveDefaultMemberCap(t *testing.T) {
	members := map[string][]byte{}
	order := make([]string, 0, defaultArchiveLimits.members+1)
	for i := 0; i <= defaultArchiveLimits.members; i++ {
		name := fmt.Sprintf("quiz-%03d.xlsx", i)
		members[name] = []byte("x")
		order = append(order, name)
	}
	data := buildArchive(t, members, order...)

	_, err := ReadArchive(data, 1, 1, 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestArchiveThroughBatch(t *testing.T) {
	members := map[string][]byte{
		"1_first.xlsx":  mcWorkbook(t, mcRows("first", 15)),
		"2_second.xlsx": mcWorkbook(t, mcRows("second", 10)),
		"readme.pdf":    []byte("%PDF-1.4"),
	}
	data := buildArchive(t, members, "1_first.xlsx", "2_second.xlsx", "readme.pdf")

	inputs, err := ReadArchive(data, 1, 1, 99)
	require.NoError(t, err)
	outcomes, err := NewEngine(NewMemoryCorpus()).ParseBatch(context.Background(), inputs, 2)
	require.NoError(t, err)
	require.Len(t, outcomes, 3)

	assert.Len(t, outcomes[0].Records, 15)
	assert.Equal(t, CatIncompleteAssignment, outcomes[1].Errors[0].Category)
	assert.Equal(t, int64(2), outcomes[1].Errors[0].AuthorID)
	assert.Equal(t, CatUnsupportedFileType, outcomes[2].Errors[0].Category)
}
