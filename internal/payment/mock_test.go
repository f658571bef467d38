package payment

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestMockGateway(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	method := Method{Type: "card", Token: "tok_visa", Label: MaskPAN("4242")}

	t.Run("authorizes and captures", func(t *testing.T) {
		g := NewMockGateway()
		auth, err := g.Authorize(ctx, 1000, "USD", method, nil)
		if err != nil {
			t.Fatalf("authorize: %v", err)
		}
		if auth.Status != StatusAuthorized || !strings.HasPrefix(auth.AuthorizationID, "auth_") {
			t.Fatalf("unexpected authorization: %+v", auth)
		}
		res, err := g.Capture(ctx, auth.AuthorizationID)
		if err != nil {
			t.Fatalf("capture: %v", err)
		}
		if res.Status != StatusCaptured || !strings.HasPrefix(res.PaymentID, "pay_") {
			t.Fatalf("unexpected capture: %+v", res)
		}
		if res.AuthorizationID != auth.AuthorizationID {
			t.Fatalf("expected authorization id %s, got %s", auth.AuthorizationID, res.AuthorizationID)
		}
		if g.AuthorizeCalls() != 1 || g.CaptureCalls() != 1 {
			t.Fatalf("expected one call each, got %d/%d", g.AuthorizeCalls(), g.CaptureCalls())
		}
	})

	t.Run("declines above limit", func(t *testing.T) {
		g := NewMockGateway()
		g.DeclineAboveMinor = 500
		auth, err := g.Authorize(ctx, 501, "USD", method, nil)
		if err != nil {
			t.Fatalf("authorize: %v", err)
		}
		if auth.Status != StatusDeclined || auth.AuthorizationID != "" {
			t.Fatalf("expected decline, got %+v", auth)
		}
	})

	t.Run("fail next applies once", func(t *testing.T) {
		g := &MockGateway{}
		g.FailNext("capture", StatusError)
		first, _ := g.Capture(ctx, "auth_1")
		second, _ := g.Capture(ctx, "auth_1")
		if first.Status != StatusError {
			t.Fatalf("expected error status, got %s", first.Status)
		}
		if second.Status != StatusCaptured {
			t.Fatalf("expected captured status, got %s", second.Status)
		}
	})
}

func TestProcessorDoesNotLogToken(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	p := NewProcessor(NewMockGateway(), logger)

	_, err := p.Authorize(context.Background(), 1000, "USD", Method{Type: "card", Token: "tok_secret", Label: "**** **** **** 4242"}, nil)
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	out := buf.String()
	if strings.Contains(out, "tok_secret") {
		t.Fatalf("token leaked into logs: %s", out)
	}
	if !strings.Contains(out, `"msg":"payment authorize"`) {
		t.Fatalf("expected authorize log line, got %s", out)
	}
}

func TestMaskPAN(t *testing.T) {
	if got := MaskPAN("4111111111111111"); got != "**** **** **** 1111" {
		t.Fatalf("unexpected mask: %s", got)
	}
	if got := MaskPAN("4242"); got != "**** **** **** 4242" {
		t.Fatalf("unexpected mask: %s", got)
	}
}
