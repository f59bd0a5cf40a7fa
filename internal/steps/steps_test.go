package steps

import (
	"context"
	"errors"
	"testing"
	"time"

	"phonefleet/orchestrator/internal/models"

	"github.com/google/go-cmp/cmp"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name    string
		in      []models.Step
		wantErr bool
	}{
		{
			name:    "unknown action",
			in:      []models.Step{{Action: "unknown"}},
			wantErr: true,
		},
		{
			name:    "start_app without package",
			in:      []models.Step{{Action: models.ActionStartApp}},
			wantErr: true,
		},
		{
			name: "valid list",
			in: []models.Step{
				{Action: models.ActionStartApp, Package: "com.example.app"},
				{Action: models.ActionTap, X: models.Int(10), Y: models.Int(20)},
				{Action: models.ActionSleepMs, Duration: models.Int(100)},
			},
		},
		{
			name: "empty list",
			in:   []models.Step{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Normalize(tt.in)
			if tt.wantErr {
				var verr *ValidationError
				if !errors.As(err, &verr) {
					t.Fatalf("expected ValidationError, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.in, out); diff != "" {
				t.Fatalf("normalize mutated its input (-want +got):\n%s", diff)
			}
		})
	}
}

func TestBuildLoginDefaults(t *testing.T) {
	req := models.OperationRequest{
		Operation:  "login",
		AppPackage: "com.example.app",
		Login:      &models.LoginSpec{Username: "u", Password: "p"},
	}

	want := []models.Step{
		{Action: models.ActionStartApp, Package: "com.example.app"},
		{Action: models.ActionSleepMs, Duration: models.Int(800)},
		{Action: models.ActionInputText, Text: "u"},
		{Action: models.ActionSleepMs, Duration: models.Int(300)},
		{Action: models.ActionKey, Keycode: models.Int(61)},
		{Action: models.ActionInputText, Text: "p"},
		{Action: models.ActionKey, Keycode: models.Int(66)},
	}
	if diff := cmp.Diff(want, BuildLogin(req)); diff != "" {
		t.Fatalf("unexpected login steps (-want +got):\n%s", diff)
	}
}

func TestBuildLoginWithTaps(t *testing.T) {
	req := models.OperationRequest{
		Operation:  "login",
		AppPackage: "com.example.app",
		Login: &models.LoginSpec{
			Username:    "u",
			Password:    "p",
			PasswordTap: &models.Point{X: 100, Y: 200},
			SubmitTap:   &models.Point{X: 300, Y: 400},
		},
	}

	got := BuildLogin(req)
	if got[4].Action != models.ActionTap || *got[4].X != 100 || *got[4].Y != 200 {
		t.Fatalf("password tap step wrong: %+v", got[4])
	}
	last := got[len(got)-1]
	if last.Action != models.ActionTap || *last.X != 300 || *last.Y != 400 {
		t.Fatalf("submit tap step wrong: %+v", last)
	}
	for _, s := range got {
		if s.Action == models.ActionKey {
			t.Fatalf("tap coordinates should replace key events, found %+v", s)
		}
	}
}

type call struct {
	kind    string
	payload map[string]interface{}
}

type stubDevice struct {
	calls []call
	err   error
}

func (d *stubDevice) StartApp(ctx context.Context, pkg string) (map[string]interface{}, error) {
	d.calls = append(d.calls, call{kind: "start_app", payload: map[string]interface{}{"package": pkg}})
	return map[string]interface{}{"success": true}, d.err
}

func (d *stubDevice) SendInput(ctx context.Context, payload map[string]interface{}) (map[string]interface{}, error) {
	d.calls = append(d.calls, call{kind: "input", payload: payload})
	return map[string]interface{}{"success": true}, d.err
}

func TestRunDispatchesByAction(t *testing.T) {
	dev := &stubDevice{}
	plan := []models.Step{
		{Action: models.ActionStartApp, Package: "com.example.app"},
		{Action: models.ActionInputText, Text: "hi"},
		{Action: models.ActionKey, Keycode: models.Int(66)},
		{Action: models.ActionTap, X: models.Int(10), Y: models.Int(20)},
		{Action: models.ActionSleepMs, Duration: models.Int(1)},
	}

	results, err := Run(context.Background(), dev, plan)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(results) != len(plan) {
		t.Fatalf("expected %d results, got %d", len(plan), len(results))
	}
	if len(dev.calls) != 4 {
		t.Fatalf("expected 4 device calls, got %d", len(dev.calls))
	}
	if dev.calls[0].kind != "start_app" || dev.calls[0].payload["package"] != "com.example.app" {
		t.Fatalf("unexpected first call: %+v", dev.calls[0])
	}
	if dev.calls[3].payload["type"] != "tap" || dev.calls[3].payload["x"] != 10 {
		t.Fatalf("unexpected tap call: %+v", dev.calls[3])
	}
	if results[4]["sleep_ms"] != 1 {
		t.Fatalf("unexpected sleep result: %+v", results[4])
	}
}

func TestRunDefaultsOnlyAbsentFields(t *testing.T) {
	dev := &stubDevice{}
	plan := []models.Step{
		{Action: models.ActionKey},
		{Action: models.ActionKey, Keycode: models.Int(0)},
		{Action: models.ActionTap},
		{Action: models.ActionTap, X: models.Int(0), Y: models.Int(0)},
	}

	if _, err := Run(context.Background(), dev, plan); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(dev.calls) != 4 {
		t.Fatalf("expected 4 device calls, got %d", len(dev.calls))
	}
	if dev.calls[0].payload["keycode"] != 66 {
		t.Fatalf("absent keycode should default to 66, got %+v", dev.calls[0])
	}
	if dev.calls[1].payload["keycode"] != 0 {
		t.Fatalf("explicit keycode 0 must be sent as-is, got %+v", dev.calls[1])
	}
	if dev.calls[2].payload["x"] != 500 || dev.calls[2].payload["y"] != 500 {
		t.Fatalf("absent tap coordinates should default to 500, got %+v", dev.calls[2])
	}
	if dev.calls[3].payload["x"] != 0 || dev.calls[3].payload["y"] != 0 {
		t.Fatalf("explicit tap at 0,0 must be sent as-is, got %+v", dev.calls[3])
	}
}

func TestRunRejectsUnknownAction(t *testing.T) {
	dev := &stubDevice{}
	_, err := Run(context.Background(), dev, []models.Step{{Action: "unknown"}})

	var uerr *UnsupportedActionError
	if !errors.As(err, &uerr) {
		t.Fatalf("expected UnsupportedActionError, got %v", err)
	}
	if len(dev.calls) != 0 {
		t.Fatalf("no device calls expected, got %d", len(dev.calls))
	}
}

func TestRunAbortsOnFirstFailure(t *testing.T) {
	dev := &stubDevice{err: errors.New("device unreachable")}
	plan := []models.Step{
		{Action: models.ActionInputText, Text: "a"},
		{Action: models.ActionInputText, Text: "b"},
	}

	results, err := Run(context.Background(), dev, plan)
	if err == nil {
		t.Fatal("expected error")
	}
	if len(results) != 0 {
		t.Fatalf("no results expected before the failing step, got %d", len(results))
	}
	if len(dev.calls) != 1 {
		t.Fatalf("remaining steps should be aborted, got %d calls", len(dev.calls))
	}
}

func TestRunSleepHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	_, err := Run(ctx, &stubDevice{}, []models.Step{{Action: models.ActionSleepMs, Duration: models.Int(5000)}})
	if err == nil {
		t.Fatal("expected context error")
	}
	if time.Since(start) > time.Second {
		t.Fatal("cancelled sleep should return promptly")
	}
}
