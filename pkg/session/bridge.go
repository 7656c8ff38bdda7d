package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// BridgeManager implements Manager against the session sidecar's REST API.
// The sidecar owns browser profiles, cookies and selectors; this client only
// forwards the engine's three primitives: auth probe, navigate, run script.
type BridgeManager struct {
	baseURL string
	client  *http.Client
}

func NewBridgeManager(baseURL string) *BridgeManager {
	return &BridgeManager{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

func (m *BridgeManager) HasAuthSignal(ctx context.Context, accountID string) (bool, error) {
	var response struct {
		Authenticated bool `json:"authenticated"`
	}

	err := m.call(ctx, http.MethodGet,
		fmt.Sprintf("%s/sessions/%s/auth", m.baseURL, accountID), nil, &response)
	if err != nil {
		return false, err
	}

	return response.Authenticated, nil
}

// WithSurface opens a sidecar surface for the account, hands it to fn and
// always closes it afterwards.
func (m *BridgeManager) WithSurface(ctx context.Context, accountID string, fn func(Surface) error) error {
	var opened struct {
		SurfaceID string `json:"surface_id"`
	}

	err := m.call(ctx, http.MethodPost,
		fmt.Sprintf("%s/sessions/%s/surfaces", m.baseURL, accountID), nil, &opened)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNoSession, err)
	}

	surface := &bridgeSurface{manager: m, id: opened.SurfaceID}

	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()

		_ = m.call(closeCtx, http.MethodDelete,
			fmt.Sprintf("%s/surfaces/%s", m.baseURL, opened.SurfaceID), nil, nil)
	}()

	return fn(surface)
}

type bridgeSurface struct {
	manager *BridgeManager
	id      string
}

func (s *bridgeSurface) Navigate(ctx context.Context, url string) error {
	payload := map[string]string{"url": url}

	return s.manager.call(ctx, http.MethodPost,
		fmt.Sprintf("%s/surfaces/%s/navigate", s.manager.baseURL, s.id), payload, nil)
}

func (s *bridgeSurface) Run(ctx context.Context, script string, timeout time.Duration) (ScriptResult, error) {
	payload := map[string]any{
		"script":     script,
		"timeout_ms": timeout.Milliseconds(),
	}

	var result ScriptResult

	err := s.manager.call(ctx, http.MethodPost,
		fmt.Sprintf("%s/surfaces/%s/run", s.manager.baseURL, s.id), payload, &result)
	if err != nil {
		return ScriptResult{}, err
	}

	return result, nil
}

func (m *BridgeManager) call(ctx context.Context, method, url string, payload, out any) error {
	var body *bytes.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}

		body = bytes.NewReader(data)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent:
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNoSession, url)
	case http.StatusGone:
		return ErrSurfaceClosed
	default:
		return fmt.Errorf("session bridge answered %d for %s %s", resp.StatusCode, method, url)
	}

	if out == nil {
		return nil
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
