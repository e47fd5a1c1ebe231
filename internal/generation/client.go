package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/yungbote/courseforge-backend/internal/config"
	"github.com/yungbote/courseforge-backend/internal/outline"
	"github.com/yungbote/courseforge-backend/internal/pkg/logger"
	"github.com/yungbote/courseforge-backend/internal/stream"
	"github.com/yungbote/courseforge-backend/internal/transport"
)

// Client talks to the generation backend: opens preview/edit packet streams
// and submits finalize requests.
type Client struct {
	baseURL string
	apiKey  string

	previewPath  string
	editPath     string
	finalizePath string

	timeout       time.Duration
	streamTimeout time.Duration

	streamExec   *transport.Executor
	finalizeExec *transport.Executor

	log *logger.Logger
}

type ClientOptions struct {
	BaseURL string
	APIKey  string

	PreviewPath  string
	EditPath     string
	FinalizePath string

	// Timeout bounds finalize requests; StreamTimeout bounds a whole stream
	// (zero relies on caller cancellation).
	Timeout       time.Duration
	StreamTimeout time.Duration

	// Opening a stream retries only gateway timeouts; finalize retries 5xx.
	StreamPolicy   transport.Policy
	FinalizePolicy transport.Policy

	HTTPClient *http.Client
}

func NewClient(opts ClientOptions, log *logger.Logger) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("baseURL required")
	}
	if log == nil {
		return nil, errors.New("logger required")
	}

	previewPath := strings.TrimSpace(opts.PreviewPath)
	if previewPath == "" {
		previewPath = "/v1/outlines/preview"
	}
	editPath := strings.TrimSpace(opts.EditPath)
	if editPath == "" {
		editPath = "/v1/outlines/edit"
	}
	finalizePath := strings.TrimSpace(opts.FinalizePath)
	if finalizePath == "" {
		finalizePath = "/v1/outlines/finalize"
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	streamPolicy := opts.StreamPolicy
	if streamPolicy.MaxAttempts == 0 {
		streamPolicy = transport.GatewayTimeoutPolicy()
	}
	finalizePolicy := opts.FinalizePolicy
	if finalizePolicy.MaxAttempts == 0 {
		finalizePolicy = transport.TransientPolicy(0, 0, timeout)
	}

	return &Client{
		baseURL:       baseURL,
		apiKey:        strings.TrimSpace(opts.APIKey),
		previewPath:   previewPath,
		editPath:      editPath,
		finalizePath:  finalizePath,
		timeout:       timeout,
		streamTimeout: opts.StreamTimeout,
		streamExec:    transport.NewExecutor(opts.HTTPClient, streamPolicy),
		finalizeExec:  transport.NewExecutor(opts.HTTPClient, finalizePolicy),
		log:           log.With("service", "GenerationClient"),
	}, nil
}

func NewClientFromConfig(bcfg config.BackendConfig, rcfg config.RetryConfig, log *logger.Logger) (*Client, error) {
	finalizePolicy := transport.TransientPolicy(
		rcfg.BackoffBase.Duration,
		rcfg.BackoffCap.Duration,
		rcfg.AttemptTimeout.Duration,
	)
	if rcfg.MaxAttempts > 0 {
		finalizePolicy.MaxAttempts = rcfg.MaxAttempts
	}
	return NewClient(ClientOptions{
		BaseURL:        bcfg.BaseURL,
		APIKey:         bcfg.APIKey,
		PreviewPath:    bcfg.PreviewPath,
		EditPath:       bcfg.EditPath,
		FinalizePath:   bcfg.FinalizePath,
		Timeout:        bcfg.Timeout.Duration,
		StreamTimeout:  bcfg.StreamTimeout.Duration,
		FinalizePolicy: finalizePolicy,
	}, log)
}

type streamRequest struct {
	Params
	// OriginalOutline carries the current raw text on the edit path so the
	// backend can diff instead of regenerating from scratch.
	OriginalOutline string `json:"originalOutline,omitempty"`
}

// OpenStream posts a preview or edit request and hands back a packet reader
// over the response body. The caller owns the closer.
func (c *Client) OpenStream(ctx context.Context, slot Slot, p Params, originalOutline string) (*stream.Reader, io.Closer, error) {
	path := c.previewPath
	if slot == SlotEdit {
		path = c.editPath
	}

	payload, err := json.Marshal(streamRequest{Params: p, OriginalOutline: originalOutline})
	if err != nil {
		return nil, nil, err
	}

	ctx2 := ctx
	cancel := context.CancelFunc(func() {})
	if c.streamTimeout > 0 {
		ctx2, cancel = context.WithTimeout(ctx, c.streamTimeout)
	}

	resp, err := c.streamExec.Do(ctx2, func(attemptCtx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		c.setHeaders(req, "application/x-ndjson")
		return req, nil
	})
	if err != nil {
		cancel()
		return nil, nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		_ = resp.Body.Close()
		cancel()
		return nil, nil, &transport.HTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	body := &closeFuncs{ReadCloser: resp.Body, also: cancel}
	return stream.NewReader(body), body, nil
}

type finalizeRequest struct {
	Params
	Modules []outline.Module `json:"modules"`
	Raw     string           `json:"raw"`
}

type FinalizeResult struct {
	ID string `json:"id"`
}

// Finalize submits the fully-edited outline. The backend answers either with
// a plain JSON object carrying the created-resource ID, or with a packet
// stream whose done packet carries it; both shapes are handled here so
// callers have one code path.
func (c *Client) Finalize(ctx context.Context, o outline.Outline, p Params) (FinalizeResult, error) {
	payload, err := json.Marshal(finalizeRequest{Params: p, Modules: o.Modules, Raw: o.Render()})
	if err != nil {
		return FinalizeResult{}, err
	}

	resp, err := c.finalizeExec.Do(ctx, func(attemptCtx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, c.baseURL+c.finalizePath, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		c.setHeaders(req, "application/json")
		return req, nil
	})
	if err != nil {
		return FinalizeResult{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return FinalizeResult{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return FinalizeResult{}, &transport.HTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	return decodeFinalizeBody(raw)
}

func decodeFinalizeBody(raw []byte) (FinalizeResult, error) {
	// Plain JSON object shape first.
	var direct FinalizeResult
	if err := json.Unmarshal(bytes.TrimSpace(raw), &direct); err == nil && direct.ID != "" {
		return direct, nil
	}

	// Otherwise a packet stream terminating in a done packet.
	r := stream.NewReader(bytes.NewReader(raw))
	for {
		pkt, err := r.Next()
		if err == io.EOF {
			return FinalizeResult{}, errors.New("finalize response missing done packet")
		}
		if err != nil {
			return FinalizeResult{}, err
		}
		switch pkt.Type {
		case stream.TypeDone:
			if strings.TrimSpace(pkt.ID) == "" {
				return FinalizeResult{}, errors.New("finalize done packet missing id")
			}
			return FinalizeResult{ID: pkt.ID}, nil
		case stream.TypeError:
			msg := strings.TrimSpace(pkt.Message)
			if msg == "" {
				msg = "finalize failed"
			}
			return FinalizeResult{}, fmt.Errorf("finalize: %s", msg)
		}
	}
}

func (c *Client) setHeaders(req *http.Request, accept string) {
	req.Header.Set("Content-Type", "application/json")
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

type closeFuncs struct {
	io.ReadCloser
	also context.CancelFunc
}

func (c *closeFuncs) Close() error {
	err := c.ReadCloser.Close()
	c.also()
	return err
}
