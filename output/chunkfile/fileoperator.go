package chunkfile

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ooici/mi-agent/base"
	"github.com/ooici/mi-agent/output/shared"
	"github.com/ooici/mi-agent/util"
	"github.com/pkg/xattr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/relex/gotils/logger"
	"github.com/samber/lo"
	"golang.org/x/exp/slices"
)

// XattrInstruments is the extended attribute of chunk files listing the instruments inside, separated by comma
const XattrInstruments = "user.mi.instruments"

// FileSuffix is the extension of all chunk files
const FileSuffix = ".mpk.gz"

const tempSuffix = ".tmp"

type fileOperator struct {
	logger logger.Logger
	path   string
	dir    *os.File
	idGen  *shared.ChunkIDGenerator
	buffer bytes.Buffer // reused for compressed file contents

	writtenFilesTotal  prometheus.Counter
	writtenBytesTotal  prometheus.Counter
	writtenChunksTotal prometheus.Counter
	ioErrorsTotal      prometheus.Counter
}

func newFileOperator(parentLogger logger.Logger, path string, metricFactory *base.MetricFactory) (*fileOperator, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create dir: %w", err)
	}
	dir, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dir: %w", err)
	}
	return &fileOperator{
		logger: parentLogger,
		path:   path,
		dir:    dir,
		idGen:  shared.NewChunkIDGenerator(FileSuffix),
		buffer: bytes.Buffer{},

		writtenFilesTotal:  metricFactory.AddOrGetCounter("written_files_total", "Numbers of chunk files written", nil, nil),
		writtenBytesTotal:  metricFactory.AddOrGetCounter("written_bytes_total", "Total size in bytes of chunk files written, after compression", nil, nil),
		writtenChunksTotal: metricFactory.AddOrGetCounter("written_chunks_total", "Numbers of instrument chunks written", nil, nil),
		ioErrorsTotal:      metricFactory.AddOrGetCounter("io_errors_total", "Numbers of I/O errors for chunk file operations", nil, nil),
	}, nil
}

// WriteChunks writes chunks into a new file and returns the filename
//
// The file is written under a temporary name first, so that no partial file is visible under the final name
func (op *fileOperator) WriteChunks(chunks []base.InstrumentChunk) (string, error) {
	op.buffer.Reset()
	gz := shared.NewGzipWriter(&op.buffer)
	if err := shared.EncodeChunkRecords(gz, chunks); err != nil {
		return "", fmt.Errorf("failed to encode: %w", err)
	}
	if err := gz.Close(); err != nil {
		return "", fmt.Errorf("failed to compress: %w", err)
	}

	name := op.idGen.Generate()
	if err := util.WriteFileAt(op.dir, name+tempSuffix, op.buffer.Bytes(), 0o644); err != nil {
		op.ioErrorsTotal.Inc()
		return "", fmt.Errorf("failed to write %s: %w", name, err)
	}
	op.labelInstruments(name+tempSuffix, chunks)
	if err := util.RenameFileAt(op.dir, name+tempSuffix, name); err != nil {
		op.ioErrorsTotal.Inc()
		if uerr := util.UnlinkFileAt(op.dir, name+tempSuffix); uerr != nil {
			op.logger.Warnf("error deleting temp file %s: %s", name+tempSuffix, uerr.Error())
		}
		return "", fmt.Errorf("failed to rename %s: %w", name, err)
	}

	op.writtenFilesTotal.Inc()
	op.writtenBytesTotal.Add(float64(op.buffer.Len()))
	op.writtenChunksTotal.Add(float64(len(chunks)))
	return name, nil
}

// labelInstruments attaches the sorted unique instrument names to the file. Failure is only logged.
func (op *fileOperator) labelInstruments(filename string, chunks []base.InstrumentChunk) {
	instruments := lo.Uniq(lo.Map(chunks, func(c base.InstrumentChunk, _ int) string { return c.Instrument }))
	slices.Sort(instruments)
	path := filepath.Join(op.path, filename)
	if err := xattr.Set(path, XattrInstruments, []byte(strings.Join(instruments, ","))); err != nil {
		op.logger.Warnf("error labelling instruments on path='%s': %s", path, err)
	}
}

func (op *fileOperator) Close() {
	if err := op.dir.Close(); err != nil {
		op.ioErrorsTotal.Inc()
		op.logger.Warnf("error closing dir: %s", err.Error())
	}
}

// ReadFile reads all chunks from a chunk file
func ReadFile(path string) ([]base.InstrumentChunk, error) {
	compressed, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	data, err := shared.GunzipBytes(compressed)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress %s: %w", path, err)
	}
	chunks, err := shared.DecodeChunkRecords(bytes.NewReader(data))
	if err != nil {
		return chunks, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return chunks, nil
}

// ReadInstruments reads the instrument names labelled on a chunk file
func ReadInstruments(path string) ([]string, error) {
	value, err := xattr.Get(path, XattrInstruments)
	if err != nil {
		return nil, err
	}
	if len(value) == 0 {
		return nil, nil
	}
	return strings.Split(string(value), ","), nil
}
