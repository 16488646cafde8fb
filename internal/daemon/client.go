package daemon

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
	"time"

	"github.com/npratt/pipedeck/internal/uistore"
	"github.com/npratt/pipedeck/internal/viewmodel"
)

// DefaultClientTimeout bounds dialing plus one request/response exchange.
const DefaultClientTimeout = 5 * time.Second

// ErrNotRunning is returned when no daemon listens on the socket.
var ErrNotRunning = errors.New("daemon not running")

// Client talks to a running daemon. Each call uses its own connection.
type Client struct {
	sockPath string
	timeout  time.Duration
}

func NewClient(sockPath string) *Client {
	return &Client{sockPath: sockPath, timeout: DefaultClientTimeout}
}

func (c *Client) SetTimeout(d time.Duration) {
	c.timeout = d
}

// IsRunning reports whether something accepts connections on the socket.
func (c *Client) IsRunning() bool {
	conn, err := net.DialTimeout("unix", c.sockPath, time.Second)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// do sends one request and decodes its result into out. A nil out
// discards the result.
func (c *Client) do(method string, params, out any) error {
	conn, err := net.DialTimeout("unix", c.sockPath, c.timeout)
	if err != nil {
		return dialError(err)
	}
	defer func() { _ = conn.Close() }()

	if err := conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
		return fmt.Errorf("set deadline: %w", err)
	}
	if err := json.NewEncoder(conn).Encode(Request{Method: method, Params: params}); err != nil {
		return fmt.Errorf("send request: %w", err)
	}

	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return errors.New("daemon request timed out")
		}
		return fmt.Errorf("read response: %w", err)
	}
	if resp.Error != "" {
		return fmt.Errorf("daemon error: %s", resp.Error)
	}
	if out == nil {
		return nil
	}
	if err := convert(resp.Result, out); err != nil {
		return fmt.Errorf("decode %s result: %w", method, err)
	}
	return nil
}

// dialError maps a missing or refused socket onto ErrNotRunning.
func dialError(err error) error {
	switch {
	case errors.Is(err, syscall.ENOENT), errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("%w (socket not found)", ErrNotRunning)
	case errors.Is(err, syscall.ECONNREFUSED):
		return fmt.Errorf("%w (connection refused)", ErrNotRunning)
	case errors.Is(err, os.ErrDeadlineExceeded):
		return errors.New("daemon request timed out")
	}
	return fmt.Errorf("connect to daemon: %w", err)
}

func (c *Client) Status() (*StatusResponse, error) {
	var st StatusResponse
	if err := c.do(MethodStatus, nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Stop asks the daemon to exit. Force skips waiting for in-flight work.
func (c *Client) Stop(force bool) error {
	return c.do(MethodStop, StopParams{Force: force}, nil)
}

func (c *Client) Campaigns() ([]string, error) {
	var ids []string
	if err := c.do(MethodCampaigns, nil, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// Overview returns the derived overview of one campaign.
func (c *Client) Overview(campaignID string) (*viewmodel.Overview, error) {
	var ov viewmodel.Overview
	if err := c.do(MethodOverview, CampaignParams{CampaignID: campaignID}, &ov); err != nil {
		return nil, err
	}
	return &ov, nil
}

func (c *Client) SetFullSequence(campaignID string, on bool) error {
	return c.do(MethodSetFullSequence, FullSequenceParams{CampaignID: campaignID, On: on}, nil)
}

// SelectPhase selects a phase; an empty phase clears the selection.
func (c *Client) SelectPhase(campaignID, phase string) error {
	return c.do(MethodSelectPhase, PhaseParams{CampaignID: campaignID, Phase: phase}, nil)
}

func (c *Client) SetPreflight(campaignID string, open bool) error {
	return c.do(MethodSetPreflight, PreflightParams{CampaignID: campaignID, Open: open}, nil)
}

// PushGuidance enqueues a message and returns it as stored, with its
// assigned ID.
func (c *Client) PushGuidance(p GuidanceParams) (*uistore.GuidanceMessage, error) {
	var msg uistore.GuidanceMessage
	if err := c.do(MethodPushGuidance, p, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (c *Client) DismissGuidance(campaignID, id string) error {
	return c.do(MethodDismissGuidance, DismissGuidanceParams{CampaignID: campaignID, ID: id}, nil)
}

func (c *Client) ClearGuidance(campaignID string) error {
	return c.do(MethodClearGuidance, CampaignParams{CampaignID: campaignID}, nil)
}

func (c *Client) SetLastFailed(campaignID, phase string) error {
	return c.do(MethodSetLastFailed, PhaseParams{CampaignID: campaignID, Phase: phase}, nil)
}

func (c *Client) DismissFailure(campaignID string) error {
	return c.do(MethodDismissFailure, CampaignParams{CampaignID: campaignID}, nil)
}

func (c *Client) ResetUI(campaignID string) error {
	return c.do(MethodResetUI, CampaignParams{CampaignID: campaignID}, nil)
}

// ResetExec drops the campaign's execution records. UI state is kept.
func (c *Client) ResetExec(campaignID string) error {
	return c.do(MethodResetExec, CampaignParams{CampaignID: campaignID}, nil)
}

// PhaseEvent submits a phase transition as if it came from the push feed.
func (c *Client) PhaseEvent(p PhaseEventParams) error {
	return c.do(MethodPhaseEvent, p, nil)
}
