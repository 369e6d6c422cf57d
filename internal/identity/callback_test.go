package identity_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"codearena/internal/identity"
	"codearena/internal/testutil"
	pkgerrors "codearena/pkg/errors"
	"codearena/pkg/utils/contextkey"
)

type callbackFunc func(ctx context.Context, state, code string) error

func (f callbackFunc) HandleCallback(ctx context.Context, state, code string) error {
	return f(ctx, state, code)
}

func TestCallbackServer(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		result     error
		wantStatus int
		wantBody   string
	}{
		{name: "success", query: "state=s1&code=c1", wantStatus: http.StatusOK, wantBody: "Signed in"},
		{name: "provider error", query: "error=access_denied", wantStatus: http.StatusBadRequest, wantBody: "access_denied"},
		{name: "state mismatch", query: "state=x&code=c1", result: pkgerrors.New(pkgerrors.SignInStateMismatch), wantStatus: http.StatusBadRequest},
		{name: "exchange failure", query: "state=s1&code=c1", result: pkgerrors.New(pkgerrors.IdentityProviderFailed), wantStatus: http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotState, gotCode, gotRequestID string
			srv := identity.NewCallbackServer(callbackFunc(func(ctx context.Context, state, code string) error {
				gotState, gotCode = state, code
				if v, ok := ctx.Value(contextkey.RequestID).(string); ok {
					gotRequestID = v
				}
				return tt.result
			}))

			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/callback?"+tt.query, nil)
			srv.Handler().ServeHTTP(w, req)

			testutil.AssertEqual(t, w.Code, tt.wantStatus)
			if tt.wantBody != "" {
				testutil.AssertTrue(t, strings.Contains(w.Body.String(), tt.wantBody), "body: "+w.Body.String())
			}
			testutil.AssertTrue(t, w.Header().Get("X-Request-Id") != "", "request id header missing")
			if tt.name == "success" {
				testutil.AssertEqual(t, gotState, "s1")
				testutil.AssertEqual(t, gotCode, "c1")
				testutil.AssertEqual(t, gotRequestID, w.Header().Get("X-Request-Id"))
			}
		})
	}
}
