package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
)

// OutputFile is a target location that produces a write stream.
type OutputFile interface {
	Location() string
	CreateOrOverwrite(ctx context.Context) (PositionWriteCloser, error)
}

// PositionWriteCloser is a write stream that reports how much was written.
type PositionWriteCloser interface {
	io.WriteCloser
	Length() int64
}

// EncryptedOutputFile pairs the stream to write with its key metadata.
type EncryptedOutputFile interface {
	EncryptingOutputFile() OutputFile
	KeyMetadata() []byte
}

// StorageOutputFile buffers writes in memory and stores the object on Close.
type StorageOutputFile struct {
	storage  Storage
	location string
}

// NewOutputFile returns an OutputFile at location backed by s.
func NewOutputFile(s Storage, location string) *StorageOutputFile {
	return &StorageOutputFile{storage: s, location: location}
}

func (f *StorageOutputFile) Location() string { return f.location }

// CreateOrOverwrite returns a stream; any existing object is replaced when
// the stream is closed.
func (f *StorageOutputFile) CreateOrOverwrite(ctx context.Context) (PositionWriteCloser, error) {
	if f.storage == nil {
		return nil, fmt.Errorf("create %s: no storage", f.location)
	}
	return &bufferedStream{ctx: ctx, storage: f.storage, location: f.location}, nil
}

var errStreamClosed = errors.New("stream closed")

type bufferedStream struct {
	ctx      context.Context
	storage  Storage
	location string
	buf      bytes.Buffer
	closed   bool
}

func (s *bufferedStream) Write(p []byte) (int, error) {
	if s.closed {
		return 0, errStreamClosed
	}
	return s.buf.Write(p)
}

func (s *bufferedStream) Length() int64 { return int64(s.buf.Len()) }

func (s *bufferedStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.storage.Write(s.ctx, s.location, s.buf.Bytes())
}

// PlainEncryptedOutputFile is an EncryptedOutputFile without encryption.
type PlainEncryptedOutputFile struct {
	file OutputFile
}

// Plain wraps an OutputFile with empty key metadata.
func Plain(f OutputFile) *PlainEncryptedOutputFile {
	return &PlainEncryptedOutputFile{file: f}
}

func (p *PlainEncryptedOutputFile) EncryptingOutputFile() OutputFile { return p.file }

func (p *PlainEncryptedOutputFile) KeyMetadata() []byte { return nil }
