// Package steps expands high-level intents into primitive step sequences,
// validates caller-supplied step lists, and executes steps against a
// device control client.
package steps

import (
	"context"
	"fmt"
	"log"
	"time"

	"phonefleet/orchestrator/internal/models"
)

// Android keycodes used as defaults when the caller supplies no tap
// coordinates: TAB moves focus to the next field, ENTER confirms.
const (
	keycodeNextField = 61
	keycodeConfirm   = 66
)

// Defaults applied to steps that omit a field.
const (
	defaultKeycode   = keycodeConfirm
	defaultTapCoord  = 500
	defaultSleepMs   = 500
	loginSettleMs    = 800
	loginFieldWaitMs = 300
)

// ValidationError reports a malformed operation payload or step list.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// UnsupportedActionError reports an unrecognized action reaching
// execution. Normalize should have rejected it earlier; this is defense in
// depth.
type UnsupportedActionError struct {
	Action models.Action
}

func (e *UnsupportedActionError) Error() string {
	return fmt.Sprintf("unsupported action: %s", e.Action)
}

// Normalize validates a caller-supplied step list: every action must be a
// recognized kind and start_app steps must name a package. The input is
// returned unchanged on success.
func Normalize(in []models.Step) ([]models.Step, error) {
	for _, step := range in {
		if !step.Action.Valid() {
			return nil, &ValidationError{Reason: fmt.Sprintf("unsupported action: %s", step.Action)}
		}
		if step.Action == models.ActionStartApp && step.Package == "" {
			return nil, &ValidationError{Reason: "start_app requires package"}
		}
	}
	return in, nil
}

// BuildLogin expands a login request into a fixed step sequence: start the
// app, settle, type the username, reach the password field (tap when a
// coordinate is given, TAB otherwise), type the password, then submit (tap
// or ENTER). The sequence is fully determined by the payload; no UI state
// is inspected.
func BuildLogin(req models.OperationRequest) []models.Step {
	login := req.Login
	if login == nil {
		login = &models.LoginSpec{}
	}

	out := []models.Step{
		{Action: models.ActionStartApp, Package: req.AppPackage},
		{Action: models.ActionSleepMs, Duration: models.Int(loginSettleMs)},
		{Action: models.ActionInputText, Text: login.Username},
		{Action: models.ActionSleepMs, Duration: models.Int(loginFieldWaitMs)},
	}
	if t := login.PasswordTap; t != nil {
		out = append(out, models.Step{Action: models.ActionTap, X: models.Int(t.X), Y: models.Int(t.Y)})
	} else {
		out = append(out, models.Step{Action: models.ActionKey, Keycode: models.Int(keycodeNextField)})
	}
	out = append(out, models.Step{Action: models.ActionInputText, Text: login.Password})
	if t := login.SubmitTap; t != nil {
		out = append(out, models.Step{Action: models.ActionTap, X: models.Int(t.X), Y: models.Int(t.Y)})
	} else {
		out = append(out, models.Step{Action: models.ActionKey, Keycode: models.Int(keycodeConfirm)})
	}

	log.Printf("Built login steps for package=%s count=%d", req.AppPackage, len(out))
	return out
}

// Device is the subset of the control client the interpreter drives.
type Device interface {
	StartApp(ctx context.Context, pkg string) (map[string]interface{}, error)
	SendInput(ctx context.Context, payload map[string]interface{}) (map[string]interface{}, error)
}

// Run executes steps in order against dev, accumulating one result per
// step. The first failing step aborts the rest.
func Run(ctx context.Context, dev Device, plan []models.Step) ([]models.StepResult, error) {
	results := make([]models.StepResult, 0, len(plan))
	for _, step := range plan {
		log.Printf("Executing step action=%s", step.Action)
		res, err := runStep(ctx, dev, step)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

func runStep(ctx context.Context, dev Device, step models.Step) (models.StepResult, error) {
	switch step.Action {
	case models.ActionStartApp:
		if step.Package == "" {
			return nil, &ValidationError{Reason: "start_app requires package"}
		}
		res, err := dev.StartApp(ctx, step.Package)
		return models.StepResult(res), err

	case models.ActionInputText:
		res, err := dev.SendInput(ctx, map[string]interface{}{
			"type": "text",
			"text": step.Text,
		})
		return models.StepResult(res), err

	case models.ActionKey:
		keycode := defaultKeycode
		if step.Keycode != nil {
			keycode = *step.Keycode
		}
		res, err := dev.SendInput(ctx, map[string]interface{}{
			"type":    "key",
			"keycode": keycode,
		})
		return models.StepResult(res), err

	case models.ActionTap:
		x, y := defaultTapCoord, defaultTapCoord
		if step.X != nil {
			x = *step.X
		}
		if step.Y != nil {
			y = *step.Y
		}
		res, err := dev.SendInput(ctx, map[string]interface{}{
			"type": "tap",
			"x":    x,
			"y":    y,
		})
		return models.StepResult(res), err

	case models.ActionSleepMs:
		ms := defaultSleepMs
		if step.Duration != nil {
			ms = *step.Duration
		}
		select {
		case <-time.After(time.Duration(ms) * time.Millisecond):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return models.StepResult{"success": true, "sleep_ms": ms}, nil

	default:
		return nil, &UnsupportedActionError{Action: step.Action}
	}
}
