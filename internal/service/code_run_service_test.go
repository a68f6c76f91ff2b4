package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/interview-prep-api/internal/dto"
	"github.com/noah-isme/interview-prep-api/internal/interview"
	dockerexec "github.com/noah-isme/interview-prep-api/pkg/docker"
)

type stubExecutor struct {
	requests []dockerexec.ExecutionRequest
	result   dockerexec.ExecutionResult
	err      error
}

func (s *stubExecutor) Run(_ context.Context, req dockerexec.ExecutionRequest) (dockerexec.ExecutionResult, error) {
	s.requests = append(s.requests, req)
	return s.result, s.err
}

func TestCodeRunServiceRunsInSandbox(t *testing.T) {
	f := newInterviewFixture(t)
	generated := f.createGenerated(t, 1)

	executor := &stubExecutor{result: dockerexec.ExecutionResult{Stdout: "42\n", ExitCode: 0, Duration: 1500 * time.Millisecond}}
	svc := NewCodeRunService(f.repo, executor, validator.New(), zerolog.Nop(), CodeRunConfig{Timeout: 5 * time.Second, MemoryLimitMB: 128})

	result, err := svc.Run(context.Background(), 1, generated.ID, 0, dto.CodeRunRequest{Language: " Python ", Source: "print(42)"})
	require.NoError(t, err)
	require.Equal(t, "42\n", result.Stdout)
	require.Equal(t, "python", result.Language)
	require.Equal(t, int64(1500), result.DurationMs)

	require.Len(t, executor.requests, 1)
	request := executor.requests[0]
	require.Equal(t, "print(42)", request.Source)
	require.Equal(t, 5*time.Second, request.Timeout)
	require.Equal(t, int64(128), request.MemoryLimitMB)
	require.True(t, strings.Contains(request.Cmd[len(request.Cmd)-1], "$"+dockerexec.SourceEnv))

	stored, err := f.service.Get(context.Background(), 1, generated.ID)
	require.NoError(t, err)
	require.Empty(t, stored.Answers[0])
}

func TestCodeRunServiceReportsTimeoutAsResult(t *testing.T) {
	f := newInterviewFixture(t)
	generated := f.createGenerated(t, 1)

	executor := &stubExecutor{result: dockerexec.ExecutionResult{TimedOut: true}, err: errors.New("execution timed out after 5s")}
	svc := NewCodeRunService(f.repo, executor, validator.New(), zerolog.Nop(), CodeRunConfig{})

	result, err := svc.Run(context.Background(), 1, generated.ID, 1, dto.CodeRunRequest{Language: "go", Source: "package main"})
	require.NoError(t, err)
	require.True(t, result.TimedOut)
}

func TestCodeRunServiceRejections(t *testing.T) {
	f := newInterviewFixture(t)
	generated := f.createGenerated(t, 1)
	ctx := context.Background()

	unavailable := NewCodeRunService(f.repo, nil, validator.New(), zerolog.Nop(), CodeRunConfig{})
	_, err := unavailable.Run(ctx, 1, generated.ID, 0, dto.CodeRunRequest{Language: "python", Source: "x"})
	require.ErrorIs(t, err, ErrCodeRunnerUnavailable)

	executor := &stubExecutor{}
	svc := NewCodeRunService(f.repo, executor, validator.New(), zerolog.Nop(), CodeRunConfig{})

	_, err = svc.Run(ctx, 1, generated.ID, 0, dto.CodeRunRequest{Language: "cobol", Source: "x"})
	require.ErrorIs(t, err, ErrUnsupportedLanguage)

	_, err = svc.Run(ctx, 1, generated.ID, interview.QuestionCount, dto.CodeRunRequest{Language: "python", Source: "x"})
	require.ErrorIs(t, err, interview.ErrInvalidQuestionIndex)

	_, err = svc.Run(ctx, 2, generated.ID, 0, dto.CodeRunRequest{Language: "python", Source: "x"})
	require.ErrorIs(t, err, ErrInterviewForbidden)

	executor.err = errors.New("docker daemon gone")
	_, err = svc.Run(ctx, 1, generated.ID, 0, dto.CodeRunRequest{Language: "python", Source: "x"})
	require.Error(t, err)
}
