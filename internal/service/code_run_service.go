package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/noah-isme/interview-prep-api/internal/dto"
	"github.com/noah-isme/interview-prep-api/internal/repository"
	dockerexec "github.com/noah-isme/interview-prep-api/pkg/docker"
)

var (
	// ErrCodeRunnerUnavailable indicates no sandbox executor is configured.
	ErrCodeRunnerUnavailable = errors.New("code runner unavailable")
	// ErrUnsupportedLanguage indicates the requested language is not allowed.
	ErrUnsupportedLanguage = errors.New("unsupported language")
)

// CodeRunService runs candidate code for a coding question. Runs never touch stored answers.
type CodeRunService interface {
	Run(ctx context.Context, userID uint, id string, index int, payload dto.CodeRunRequest) (dto.CodeRunResponse, error)
}

// CodeRunConfig describes sandbox limits.
type CodeRunConfig struct {
	Timeout       time.Duration
	MemoryLimitMB int64
	CPUShares     int64
}

type languageConfig struct {
	Image   string
	Command []string
}

type codeRunService struct {
	repo      repository.InterviewRepository
	executor  dockerexec.Executor
	validator *validator.Validate
	logger    zerolog.Logger
	config    CodeRunConfig
	languages map[string]languageConfig
}

// NewCodeRunService constructs the code run service. executor may be nil when Docker is not
// reachable, in which case every run fails with ErrCodeRunnerUnavailable.
func NewCodeRunService(repo repository.InterviewRepository, executor dockerexec.Executor, validate *validator.Validate, logger zerolog.Logger, cfg CodeRunConfig) CodeRunService {
	return &codeRunService{
		repo:      repo,
		executor:  executor,
		validator: validate,
		logger:    logger.With().Str("component", "code_run_service").Logger(),
		config:    cfg,
		languages: map[string]languageConfig{
			"python": {
				Image:   "python:3.12-alpine",
				Command: sourceCommand("main.py", "python main.py"),
			},
			"javascript": {
				Image:   "node:20-alpine",
				Command: sourceCommand("main.js", "node main.js"),
			},
			"go": {
				Image:   "golang:1.22-alpine",
				Command: sourceCommand("main.go", "GOCACHE=/tmp/.cache GOPATH=/tmp/go go run main.go"),
			},
		},
	}
}

// sourceCommand writes the program from the environment into the scratch directory and runs it.
func sourceCommand(file, run string) []string {
	script := fmt.Sprintf(`printf '%%s' "$%s" > %s && %s`, dockerexec.SourceEnv, file, run)
	return []string{"sh", "-c", script}
}

func (s *codeRunService) Run(ctx context.Context, userID uint, id string, index int, payload dto.CodeRunRequest) (dto.CodeRunResponse, error) {
	if s.executor == nil {
		return dto.CodeRunResponse{}, ErrCodeRunnerUnavailable
	}

	if err := s.validator.Struct(payload); err != nil {
		return dto.CodeRunResponse{}, err
	}

	language := strings.ToLower(strings.TrimSpace(payload.Language))
	langCfg, ok := s.languages[language]
	if !ok {
		return dto.CodeRunResponse{}, ErrUnsupportedLanguage
	}

	item, err := loadOwnedInterview(ctx, s.repo, userID, id)
	if err != nil {
		return dto.CodeRunResponse{}, err
	}
	if err := checkQuestionIndex(item, index); err != nil {
		return dto.CodeRunResponse{}, err
	}

	result, err := s.executor.Run(ctx, dockerexec.ExecutionRequest{
		Image:         langCfg.Image,
		Cmd:           langCfg.Command,
		Source:        payload.Source,
		Timeout:       s.config.Timeout,
		MemoryLimitMB: s.config.MemoryLimitMB,
		CPUShares:     s.config.CPUShares,
	})
	if err != nil && !result.TimedOut {
		s.logger.Error().Err(err).Str("interview_id", id).Str("language", language).Msg("sandbox run failed")
		return dto.CodeRunResponse{}, fmt.Errorf("run code: %w", err)
	}

	s.logger.Info().
		Str("interview_id", id).
		Int("question_index", index).
		Str("language", language).
		Int("exit_code", result.ExitCode).
		Bool("timed_out", result.TimedOut).
		Msg("sandbox run finished")

	return dto.CodeRunResponse{
		QuestionIndex:    index,
		Language:         language,
		Stdout:           result.Stdout,
		Stderr:           result.Stderr,
		ExitCode:         result.ExitCode,
		TimedOut:         result.TimedOut,
		DurationMs:       result.Duration.Milliseconds(),
		MemoryUsageBytes: result.MemoryUsageBytes,
	}, nil
}
