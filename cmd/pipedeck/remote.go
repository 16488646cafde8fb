package main

import (
	"context"

	"github.com/npratt/pipedeck/internal/daemon"
	"github.com/npratt/pipedeck/internal/pipeline"
	"github.com/npratt/pipedeck/internal/viewmodel"
)

// clientBackend drives the watch view through a running daemon.
// Each call is a single socket round trip bounded by the client timeout.
type clientBackend struct {
	client *daemon.Client
}

func (b clientBackend) Overview(ctx context.Context, campaignID string) (*viewmodel.Overview, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return b.client.Overview(campaignID)
}

func (b clientBackend) SetFullSequenceMode(ctx context.Context, campaignID string, on bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.client.SetFullSequence(campaignID, on)
}

func (b clientBackend) SetSelectedPhase(ctx context.Context, campaignID string, k pipeline.PhaseKey) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	// PhaseNone renders as "", which the daemon reads as a clear.
	return b.client.SelectPhase(campaignID, k.String())
}

func (b clientBackend) SetPreflightOpen(ctx context.Context, campaignID string, open bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.client.SetPreflight(campaignID, open)
}

func (b clientBackend) DismissGuidance(ctx context.Context, campaignID, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.client.DismissGuidance(campaignID, id)
}

func (b clientBackend) DismissFailure(ctx context.Context, campaignID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.client.DismissFailure(campaignID)
}
