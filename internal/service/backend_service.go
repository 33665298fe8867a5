package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"compliance-agent-be/internal/pkg/logger"
	"compliance-agent-be/pkg/agent"
)

// BackendUser, BackendOrg and BackendProject mirror the collaborator's
// response shapes; only the fields this service reads are mapped.
type BackendUser struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type BackendOrg struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Credits float64 `json:"credits"`
}

type BackendProject struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Documents []string `json:"documents"`
	Codebases []string `json:"codebases"`
}

type IBackendService interface {
	FetchUser(ctx context.Context, userJWT, userID string) (*BackendUser, error)
	FetchOrg(ctx context.Context, userJWT, orgID string) (*BackendOrg, error)
	FetchProject(ctx context.Context, userJWT, projectID string) (*BackendProject, error)
	SaveChatMemory(ctx context.Context, userJWT, userID string, messages []agent.Message) error
	PatchOrgProfile(ctx context.Context, userJWT, orgID string, fields map[string]string) error
	SubtractCredits(ctx context.Context, orgID string, amount int) error
}

// BackendService is the REST client for the main application backend.
// Every call except SubtractCredits authenticates as the end user;
// SubtractCredits is the single place the internal key is used.
type BackendService struct {
	baseURL     string
	internalKey string
	client      *http.Client
	logger      logger.ILogger
}

var _ IBackendService = &BackendService{}

func NewBackendService(baseURL, internalKey string, log logger.ILogger) *BackendService {
	return &BackendService{
		baseURL:     baseURL,
		internalKey: internalKey,
		client:      &http.Client{Timeout: 15 * time.Second},
		logger:      log,
	}
}

func (s *BackendService) FetchUser(ctx context.Context, userJWT, userID string) (*BackendUser, error) {
	var user BackendUser
	if err := s.getJSON(ctx, userJWT, fmt.Sprintf("/api/v1/users/%s", userID), &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *BackendService) FetchOrg(ctx context.Context, userJWT, orgID string) (*BackendOrg, error) {
	var org BackendOrg
	if err := s.getJSON(ctx, userJWT, fmt.Sprintf("/api/v1/org/%s", orgID), &org); err != nil {
		return nil, err
	}
	return &org, nil
}

func (s *BackendService) FetchProject(ctx context.Context, userJWT, projectID string) (*BackendProject, error) {
	var project BackendProject
	if err := s.getJSON(ctx, userJWT, fmt.Sprintf("/api/v1/projects/%s", projectID), &project); err != nil {
		return nil, err
	}
	return &project, nil
}

func (s *BackendService) SaveChatMemory(ctx context.Context, userJWT, userID string, messages []agent.Message) error {
	body := map[string]any{"messages": messages}
	return s.send(ctx, http.MethodPost, fmt.Sprintf("/api/v1/users/%s/chat-memory", userID), "Bearer "+userJWT, body, nil)
}

func (s *BackendService) PatchOrgProfile(ctx context.Context, userJWT, orgID string, fields map[string]string) error {
	return s.send(ctx, http.MethodPatch, fmt.Sprintf("/api/v1/org/%s", orgID), "Bearer "+userJWT, fields, nil)
}

// SubtractCredits debits the organization's balance. Amount is already
// ceiling-rounded by the caller and must be positive.
func (s *BackendService) SubtractCredits(ctx context.Context, orgID string, amount int) error {
	if amount < 1 {
		return fmt.Errorf("subtraction amount must be positive, got %d", amount)
	}
	body := map[string]any{"amount": amount}
	path := fmt.Sprintf("/api/v1/org/%s/credits/subtract", orgID)
	return s.sendInternal(ctx, http.MethodPatch, path, body)
}

func (s *BackendService) getJSON(ctx context.Context, userJWT, path string, out any) error {
	return s.send(ctx, http.MethodGet, path, "Bearer "+userJWT, nil, out)
}

func (s *BackendService) sendInternal(ctx context.Context, method, path string, body any) error {
	req, err := s.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	req.Header.Set("X-Internal-Api-Key", s.internalKey)
	return s.do(req, nil)
}

func (s *BackendService) send(ctx context.Context, method, path, authorization string, body, out any) error {
	req, err := s.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	return s.do(req, out)
}

func (s *BackendService) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (s *BackendService) do(req *http.Request, out any) error {
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("backend request failed: %w", err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("backend error (status %d): %s", resp.StatusCode, string(data))
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode backend response: %w", err)
		}
	}
	return nil
}
