package sandbox

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/kapsel-run/kapsel/internal/docker"
)

func TestWriteFile_MkdirCopyVerify(t *testing.T) {
	rt := &MockRuntime{}
	s := newAttachedSandbox(t, rt)

	rt.On("Exec", mock.Anything, "p-1", []string{"sh", "-c", "mkdir -p '/data/sub'"}).
		Return(&docker.ExecOutput{ExitCode: 0}, nil).Once()
	rt.On("CopyFileTo", mock.Anything, "p-1", "/data/sub/out.txt", []byte("hello")).
		Return(nil).Once()
	rt.On("Exec", mock.Anything, "p-1", []string{"sh", "-c", "test -f '/data/sub/out.txt'"}).
		Return(&docker.ExecOutput{ExitCode: 0}, nil).Once()

	err := s.WriteFile(context.Background(), "/data/sub/out.txt", []byte("hello"))
	require.NoError(t, err)
	rt.AssertExpectations(t)
}

func TestWriteFile_RootLevelSkipsMkdir(t *testing.T) {
	rt := &MockRuntime{}
	s := newAttachedSandbox(t, rt)

	rt.On("CopyFileTo", mock.Anything, "p-1", "/out.txt", mock.Anything).Return(nil).Once()
	rt.On("Exec", mock.Anything, "p-1", []string{"sh", "-c", "test -f '/out.txt'"}).
		Return(&docker.ExecOutput{ExitCode: 0}, nil).Once()

	err := s.WriteFile(context.Background(), "/out.txt", []byte("x"))
	require.NoError(t, err)
	rt.AssertExpectations(t)
}

func TestWriteFile_MkdirFailure(t *testing.T) {
	rt := &MockRuntime{}
	s := newAttachedSandbox(t, rt)

	rt.On("Exec", mock.Anything, "p-1", mock.Anything).
		Return(&docker.ExecOutput{ExitCode: 1, Stderr: []byte("read-only fs")}, nil)

	err := s.WriteFile(context.Background(), "/data/out.txt", []byte("x"))
	assert.ErrorIs(t, err, ErrFileWrite)
	assert.Contains(t, err.Error(), "read-only fs")
}

func TestWriteFile_TransferFailure(t *testing.T) {
	rt := &MockRuntime{}
	s := newAttachedSandbox(t, rt)

	rt.On("Exec", mock.Anything, "p-1", mock.Anything).Return(&docker.ExecOutput{ExitCode: 0}, nil)
	rt.On("CopyFileTo", mock.Anything, "p-1", mock.Anything, mock.Anything).
		Return(errors.New("archive rejected"))

	err := s.WriteFile(context.Background(), "/data/out.txt", []byte("x"))
	assert.ErrorIs(t, err, ErrFileWrite)
}

func TestWriteFile_VerificationFailure(t *testing.T) {
	rt := &MockRuntime{}
	s := newAttachedSandbox(t, rt)

	rt.On("Exec", mock.Anything, "p-1", []string{"sh", "-c", "mkdir -p '/data'"}).
		Return(&docker.ExecOutput{ExitCode: 0}, nil)
	rt.On("CopyFileTo", mock.Anything, "p-1", mock.Anything, mock.Anything).Return(nil)
	rt.On("Exec", mock.Anything, "p-1", []string{"sh", "-c", "test -f '/data/out.txt'"}).
		Return(&docker.ExecOutput{ExitCode: 1}, nil)

	err := s.WriteFile(context.Background(), "/data/out.txt", []byte("x"))
	assert.ErrorIs(t, err, ErrFileWrite)
}

func TestReadFile(t *testing.T) {
	rt := &MockRuntime{}
	s := newAttachedSandbox(t, rt)

	rt.On("Exec", mock.Anything, "p-1", []string{"cat", "/data/out.txt"}).
		Return(&docker.ExecOutput{Stdout: []byte("content with 'quotes'\nand lines"), ExitCode: 0}, nil)

	content, err := s.ReadFile(context.Background(), "/data/out.txt")
	require.NoError(t, err)
	assert.Equal(t, "content with 'quotes'\nand lines", content)
}

func TestReadFile_MissingFileCarriesStderr(t *testing.T) {
	rt := &MockRuntime{}
	s := newAttachedSandbox(t, rt)

	rt.On("Exec", mock.Anything, "p-1", mock.Anything).
		Return(&docker.ExecOutput{Stderr: []byte("cat: /nope: No such file or directory"), ExitCode: 1}, nil)

	_, err := s.ReadFile(context.Background(), "/nope")
	assert.ErrorIs(t, err, ErrFileRead)
	assert.Contains(t, err.Error(), "No such file")
}
