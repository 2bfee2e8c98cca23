package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/chenjf2025/BookQuoteApp/internal/auth"
	"github.com/chenjf2025/BookQuoteApp/internal/handler/dto"
	"github.com/chenjf2025/BookQuoteApp/internal/model"
	"github.com/chenjf2025/BookQuoteApp/internal/quota"
	"github.com/chenjf2025/BookQuoteApp/internal/service"
)

type fakeAccounts struct {
	session     *service.Session
	profile     *service.Profile
	balance     int
	err         error
	loggedOut   string
	meIdentity  string
	paidAccount string
}

func (f *fakeAccounts) Register(ctx context.Context, username, password string) (*service.Session, error) {
	return f.session, f.err
}

func (f *fakeAccounts) Login(ctx context.Context, username, password string) (*service.Session, error) {
	return f.session, f.err
}

func (f *fakeAccounts) Logout(ctx context.Context, token string, authCtx *model.AuthContext) error {
	f.loggedOut = token
	return f.err
}

func (f *fakeAccounts) Me(ctx context.Context, accountID, identity string) (*service.Profile, error) {
	f.meIdentity = identity
	return f.profile, f.err
}

func (f *fakeAccounts) Pay(ctx context.Context, accountID string, amountRMB int) (int, error) {
	f.paidAccount = accountID
	return f.balance, f.err
}

func (f *fakeAccounts) Package() model.PaymentPackage {
	return model.PaymentPackage{AmountRMB: 5, Quota: 10}
}

type fakeWorkflow struct {
	result  service.Result
	err     error
	subject string
	ident   string
	account string
}

func (f *fakeWorkflow) Submit(ctx context.Context, identity, accountID, subject string) (service.Result, error) {
	f.ident, f.account, f.subject = identity, accountID, subject
	return f.result, f.err
}

// withCaller attaches what the Identity and Auth middleware would.
func withCaller(r *http.Request, accountID, identity string) *http.Request {
	ctx := auth.ContextWithIdentity(r.Context(), identity)
	ctx = auth.ContextWithAuth(ctx, &model.AuthContext{AccountID: accountID, Username: "reader", SessionID: "sess-1"})
	return r.WithContext(ctx)
}

func TestH5Handler_RegisterAndLogin(t *testing.T) {
	accounts := &fakeAccounts{session: &service.Session{
		Token:   "bqs_abcdefgh_secret",
		Account: &model.Account{ID: "acct-1", Username: "reader"},
	}}
	h := NewH5Handler(accounts, &fakeWorkflow{}, discardLogger())

	tests := []struct {
		name        string
		serve       http.HandlerFunc
		wantMessage string
	}{
		{"register", h.Register, "Registered successfully"},
		{"login", h.Login, "Logged in successfully"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.serve(rec, postJSON("/api/h5/"+tt.name, `{"username":"reader","password":"secret1"}`))

			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
			}
			var resp dto.TokenResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.AccessToken != "bqs_abcdefgh_secret" || resp.TokenType != "bearer" || resp.Message != tt.wantMessage {
				t.Errorf("unexpected response: %+v", resp)
			}
		})
	}
}

func TestH5Handler_ErrorMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"username taken", service.ErrUsernameTaken, http.StatusBadRequest, "username_taken"},
		{"invalid username", model.ErrInvalidUsername, http.StatusBadRequest, "invalid_username"},
		{"invalid password", model.ErrInvalidPassword, http.StatusBadRequest, "invalid_password"},
		{"bad credentials", service.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials"},
		{"unsupported package", service.ErrUnsupportedPackage, http.StatusBadRequest, "unsupported_package"},
		{"quota exhausted", quota.ErrQuotaExhausted, http.StatusForbidden, "quota_exhausted"},
		{"generation failed", fmt.Errorf("%w: timeout", service.ErrGenerationFailed), http.StatusInternalServerError, "generation_failed"},
		{"unexpected", fmt.Errorf("pool closed"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := NewH5Handler(&fakeAccounts{}, &fakeWorkflow{}, discardLogger())
			rec := httptest.NewRecorder()
			h.handleServiceError(rec, httptest.NewRequest(http.MethodPost, "/api/h5/x", nil), tt.err)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if got := decodeError(t, rec); got.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", got.Code, tt.wantCode)
			}
		})
	}
}

func TestH5Handler_Me(t *testing.T) {
	accounts := &fakeAccounts{profile: &service.Profile{
		Username:       "reader",
		GenerateQuota:  10,
		DailyFreeUsed:  2,
		DailyFreeTotal: 5,
	}}
	h := NewH5Handler(accounts, &fakeWorkflow{}, discardLogger())

	rec := httptest.NewRecorder()
	req := withCaller(httptest.NewRequest(http.MethodGet, "/api/h5/me", nil), "acct-1", "203.0.113.9")
	h.Me(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if accounts.meIdentity != "203.0.113.9" {
		t.Errorf("identity = %q", accounts.meIdentity)
	}
	var resp dto.ProfileResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp != (dto.ProfileResponse{Username: "reader", GenerateQuota: 10, DailyFreeUsed: 2, DailyFreeTotal: 5}) {
		t.Errorf("unexpected profile: %+v", resp)
	}
}

func TestH5Handler_Pay(t *testing.T) {
	accounts := &fakeAccounts{balance: 20}
	h := NewH5Handler(accounts, &fakeWorkflow{}, discardLogger())

	rec := httptest.NewRecorder()
	h.Pay(rec, withCaller(postJSON("/api/h5/pay", `{"amount_rmb":5}`), "acct-1", "203.0.113.9"))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if accounts.paidAccount != "acct-1" {
		t.Errorf("paid account = %q", accounts.paidAccount)
	}
	var resp dto.PayResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Message != "Payment successful. Added 10 to quota." || resp.NewQuota != 20 {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestH5Handler_GenerateMindmap(t *testing.T) {
	wf := &fakeWorkflow{result: service.Result{
		Status:      service.StatusSuccess,
		ArtifactURL: "/static/活着_mindmap.pdf",
		ChargedFrom: model.SourcePaid,
	}}
	h := NewH5Handler(&fakeAccounts{}, wf, discardLogger())

	rec := httptest.NewRecorder()
	h.GenerateMindmap(rec, withCaller(postJSON("/api/h5/generate_mindmap", `{"book_title":" 活着 "}`), "acct-1", "203.0.113.9"))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if wf.subject != "活着" || wf.account != "acct-1" || wf.ident != "203.0.113.9" {
		t.Errorf("submit got subject=%q account=%q identity=%q", wf.subject, wf.account, wf.ident)
	}
	var resp dto.GatedMindmapResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := dto.GatedMindmapResponse{PDFURL: "/static/活着_mindmap.pdf", Message: "Success", QuotaUsed: "paid_quota"}
	if resp != want {
		t.Errorf("response = %+v, want %+v", resp, want)
	}
}

func TestH5Handler_Logout(t *testing.T) {
	accounts := &fakeAccounts{}
	h := NewH5Handler(accounts, &fakeWorkflow{}, discardLogger())

	req := withCaller(httptest.NewRequest(http.MethodPost, "/api/h5/logout", nil), "acct-1", "203.0.113.9")
	req.Header.Set("Authorization", "Bearer bqs_abcdefgh_secret")
	rec := httptest.NewRecorder()
	h.Logout(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rec.Code)
	}
	if accounts.loggedOut != "bqs_abcdefgh_secret" {
		t.Errorf("logged out token = %q", accounts.loggedOut)
	}
}
