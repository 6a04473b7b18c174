package fs

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/sirupsen/logrus"
	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"

	"github.com/falk/agbsave-go/internal/agbtest"
	"github.com/falk/agbsave-go/pkg/agbsave"
)

func writeContainer(t *testing.T, m *agbtest.Mem) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "00000001.sav")
	assert.NilError(t, os.WriteFile(path, m.Buf, 0o644))
	return path
}

func TestFileContainerRoundTrip(t *testing.T) {
	const size = agbsave.SizeFlash64K
	path := writeContainer(t, agbtest.Fresh(size))

	l := logrus.New()
	l.SetOutput(io.Discard)
	codec := agbsave.NewCodec(&agbtest.Oracle{}, agbsave.WithLogger(l))

	ct, err := OpenContainer(path, true)
	assert.NilError(t, err)
	assert.Check(t, is.Equal(ct.Size(), int64(2*(agbsave.HeaderSize+size))))

	data := bytes.Repeat([]byte{0x5A}, size)
	assert.NilError(t, codec.Inject(ct, data, nil))
	assert.NilError(t, ct.Close())

	ro, err := OpenContainer(path, false)
	assert.NilError(t, err)
	defer ro.Close()
	flat, err := codec.Extract(ro)
	assert.NilError(t, err)
	assert.Check(t, bytes.Equal(flat.Data, data))

	info, err := os.Stat(path)
	assert.NilError(t, err)
	assert.Check(t, is.Equal(info.Size(), int64(2*(agbsave.HeaderSize+size))))
}

func TestFileContainerRejectsWrites(t *testing.T) {
	path := writeContainer(t, agbtest.Fresh(agbsave.SizeEEPROM512))

	ro, err := OpenContainer(path, false)
	assert.NilError(t, err)
	defer ro.Close()
	_, err = ro.WriteAt([]byte{1}, 0)
	assert.ErrorContains(t, err, "read-only")

	rw, err := OpenContainer(path, true)
	assert.NilError(t, err)
	defer rw.Close()
	_, err = rw.WriteAt([]byte{1, 2}, rw.Size()-1)
	assert.ErrorContains(t, err, "exceeds container size")
}

func TestSidecar(t *testing.T) {
	dir := t.TempDir()
	savePath := filepath.Join(dir, "game.sav")
	path := SidecarPath(savePath, "")
	assert.Check(t, is.Equal(path, savePath+".arm7"))

	snap, err := ReadSidecar(path)
	assert.NilError(t, err)
	assert.Check(t, is.Nil(snap))

	want := agbsave.RegisterSnapshot{9, 8, 7, 6, 5, 4, 3, 2}
	assert.NilError(t, WriteSidecar(path, want))
	snap, err = ReadSidecar(path)
	assert.NilError(t, err)
	assert.Check(t, is.Equal(*snap, want))

	assert.NilError(t, os.WriteFile(path, []byte{1, 2, 3}, 0o644))
	_, err = ReadSidecar(path)
	assert.ErrorContains(t, err, "expected 8 bytes")
}

func testFlat() *agbsave.FlatSave {
	h := agbsave.NewHeader(agbtest.TitleID, agbsave.SizeSRAM32K)
	h.Generation = 17
	data := make([]byte, agbsave.SizeSRAM32K)
	for i := range data {
		data[i] = byte(i / 64)
	}
	return &agbsave.FlatSave{
		Data:     data,
		Snapshot: agbsave.RegisterSnapshot{1, 1, 2, 3, 5, 8, 13, 21},
		Slot:     2,
		Header:   h,
	}
}

func TestBackupRoundTrip(t *testing.T) {
	for _, tc := range []struct {
		method string
		level  int
	}{
		{MethodDeflate, 6},
		{MethodZstd, 3},
	} {
		t.Run(tc.method, func(t *testing.T) {
			flat := testFlat()
			path := filepath.Join(t.TempDir(), "backup.zip")
			assert.NilError(t, WriteBackupFile(path, flat, tc.method, tc.level))

			b, err := ReadBackupFile(path)
			assert.NilError(t, err)
			assert.Check(t, bytes.Equal(b.Data, flat.Data))
			assert.Check(t, is.Equal(*b.Snapshot, flat.Snapshot))
			assert.Check(t, is.Equal(b.Manifest.TitleID, "0004000000AB1200"))
			assert.Check(t, is.Equal(b.Manifest.SaveType, "SRAM 32KiB"))
			assert.Check(t, is.Equal(b.Manifest.Generation, uint32(17)))
			assert.Check(t, is.Equal(b.Manifest.Slot, 2))
		})
	}
}

func TestBackupUnknownMethod(t *testing.T) {
	_, err := NewBackupWriter(io.Discard, "lzma", 1)
	assert.ErrorContains(t, err, "unknown archive method")
}

func TestReadBackupDetectsTampering(t *testing.T) {
	flat := testFlat()
	var buf bytes.Buffer
	w, err := NewBackupWriter(&buf, MethodDeflate, 6)
	assert.NilError(t, err)
	assert.NilError(t, w.AddSave(flat))
	assert.NilError(t, w.Close())

	// Rebuild the archive with one byte of the save changed.
	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	assert.NilError(t, err)
	var out bytes.Buffer
	zw := zip.NewWriter(&out)
	for _, f := range zr.File {
		rc, err := f.Open()
		assert.NilError(t, err)
		data, err := io.ReadAll(rc)
		assert.NilError(t, err)
		rc.Close()
		if f.Name == SaveEntry {
			data[0] ^= 0xFF
		}
		fw, err := zw.Create(f.Name)
		assert.NilError(t, err)
		_, err = fw.Write(data)
		assert.NilError(t, err)
	}
	assert.NilError(t, zw.Close())

	_, err = ReadBackup(bytes.NewReader(out.Bytes()), int64(out.Len()))
	assert.ErrorContains(t, err, "digest mismatch")
}

func TestBackupKeepsZeroSnapshot(t *testing.T) {
	flat := testFlat()
	flat.Snapshot = agbsave.RegisterSnapshot{}
	var buf bytes.Buffer
	w, err := NewBackupWriter(&buf, MethodDeflate, 6)
	assert.NilError(t, err)
	assert.NilError(t, w.AddSave(flat))
	assert.NilError(t, w.Close())

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	assert.NilError(t, err)
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.Check(t, is.DeepEqual(names, []string{SaveEntry, SidecarEntry, ManifestEntry}))

	b, err := ReadBackup(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	assert.NilError(t, err)
	assert.Assert(t, b.Snapshot != nil)
	assert.Check(t, is.Equal(*b.Snapshot, agbsave.RegisterSnapshot{}))
}
