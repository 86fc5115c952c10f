package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/example/teesched/internal/secrets"
	"github.com/example/teesched/internal/task"
)

func newSealer(t *testing.T) *secrets.Sealer {
	t.Helper()
	s, err := secrets.NewSealerFromB64(secrets.GenerateKey(), secrets.GenerateKey())
	if err != nil {
		t.Fatalf("NewSealerFromB64: %v", err)
	}
	return s
}

func sampleTask(opening time.Time) task.Task {
	return task.Task{
		Credentials: task.Credentials{Username: "golfer", Password: "secret-pw"},
		Params: task.Parameters{
			Course:    3,
			Players:   4,
			Holes:     18,
			TimeStart: "07:00",
			TimeEnd:   "10:00",
		},
		TargetDate:     "2026-09-05",
		OpeningInstant: opening,
	}
}

func TestMemStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore(newSealer(t))
	opening := time.Date(2026, 9, 3, 12, 0, 0, 0, time.UTC)

	created, err := store.Create(ctx, sampleTask(opening))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.ID == "" {
		t.Fatal("Create did not assign an ID")
	}
	if created.Status != task.StatusPending {
		t.Fatalf("new task status = %s, want pending", created.Status)
	}
	if created.Credentials != (task.Credentials{}) {
		t.Fatal("Create returned credentials in the plain record")
	}

	got, err := store.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Credentials != (task.Credentials{}) {
		t.Fatal("Get returned credentials")
	}

	sec, err := store.SecureConfig(ctx, created.ID)
	if err != nil {
		t.Fatalf("SecureConfig: %v", err)
	}
	if sec.Credentials.Username != "golfer" || sec.Credentials.Password != "secret-pw" {
		t.Fatalf("SecureConfig credentials = %+v", sec.Credentials)
	}

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get missing = %v, want ErrNotFound", err)
	}
}

func TestMemStoreStatusTransitions(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore(newSealer(t))
	created, err := store.Create(ctx, sampleTask(time.Now().Add(time.Hour)))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	id := created.ID

	// pending -> succeeded skips running.
	if err := store.UpdateStatus(ctx, id, task.StatusSucceeded, ""); !errors.Is(err, task.ErrBadTransition) {
		t.Fatalf("pending->succeeded = %v, want ErrBadTransition", err)
	}

	if err := store.UpdateStatus(ctx, id, task.StatusRunning, ""); err != nil {
		t.Fatalf("pending->running: %v", err)
	}
	if err := store.UpdateStatus(ctx, id, task.StatusFailed, "no slots"); err != nil {
		t.Fatalf("running->failed: %v", err)
	}

	got, _ := store.Get(ctx, id)
	if got.LastError != "no slots" {
		t.Fatalf("LastError = %q, want %q", got.LastError, "no slots")
	}

	// Repeating the identical terminal write is idempotent.
	if err := store.UpdateStatus(ctx, id, task.StatusFailed, "no slots"); err != nil {
		t.Fatalf("repeated terminal write: %v", err)
	}
	// Leaving a terminal state is not.
	if err := store.UpdateStatus(ctx, id, task.StatusRunning, ""); !errors.Is(err, task.ErrBadTransition) {
		t.Fatalf("failed->running = %v, want ErrBadTransition", err)
	}
}

func TestMemStoreDeleteWhileRunning(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore(newSealer(t))
	created, _ := store.Create(ctx, sampleTask(time.Now().Add(time.Hour)))

	if err := store.UpdateStatus(ctx, created.ID, task.StatusRunning, ""); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if err := store.Delete(ctx, created.ID); !errors.Is(err, ErrRunning) {
		t.Fatalf("Delete while running = %v, want ErrRunning", err)
	}

	if err := store.UpdateStatus(ctx, created.ID, task.StatusSucceeded, ""); err != nil {
		t.Fatalf("running->succeeded: %v", err)
	}
	if err := store.Delete(ctx, created.ID); err != nil {
		t.Fatalf("Delete after finish: %v", err)
	}
	if _, err := store.Get(ctx, created.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get after delete = %v, want ErrNotFound", err)
	}
}

func TestDeriveOpening(t *testing.T) {
	now := time.Date(2026, 7, 10, 11, 0, 0, 0, time.UTC) // 06:00 in Chicago (CDT)

	// Explicit date in the future stays put.
	got, err := DeriveOpening("America/Chicago", "2026-07-11", 7, 30, now, 5*time.Minute)
	if err != nil {
		t.Fatalf("DeriveOpening: %v", err)
	}
	want := time.Date(2026, 7, 11, 12, 30, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("opening = %v, want %v", got, want)
	}

	// Today's opening already more than the tolerance in the past rolls to
	// tomorrow at the same wall time.
	got, err = DeriveOpening("America/Chicago", "", 5, 0, now, 5*time.Minute)
	if err != nil {
		t.Fatalf("DeriveOpening: %v", err)
	}
	want = time.Date(2026, 7, 11, 10, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("rolled opening = %v, want %v", got, want)
	}

	// A near-miss inside the tolerance fires now instead of rolling.
	got, err = DeriveOpening("America/Chicago", "", 5, 57, now, 5*time.Minute)
	if err != nil {
		t.Fatalf("DeriveOpening: %v", err)
	}
	if !got.Equal(now) {
		t.Fatalf("near-miss opening = %v, want %v", got, now)
	}

	if _, err := DeriveOpening("No/Such-Zone", "", 7, 0, now, 5*time.Minute); err == nil {
		t.Fatal("expected error for unknown zone")
	}
}

func TestDeriveOpeningUsesGivenClock(t *testing.T) {
	// "Today" must be read from the now argument, never the wall clock: the
	// derivation is a pure function of its inputs. 00:30 UTC is still the
	// previous civil day in Chicago, so an 06:00 opening lands on that day.
	now := time.Date(2026, 7, 11, 0, 30, 0, 0, time.UTC) // 2026-07-10 19:30 CDT

	got, err := DeriveOpening("America/Chicago", "", 6, 0, now, 5*time.Minute)
	if err != nil {
		t.Fatalf("DeriveOpening: %v", err)
	}
	// 06:00 on 2026-07-10 is past; rolls to 06:00 CDT on 2026-07-11.
	want := time.Date(2026, 7, 11, 11, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("opening = %v, want %v", got.UTC(), want)
	}

	again, err := DeriveOpening("America/Chicago", "", 6, 0, now, 5*time.Minute)
	if err != nil {
		t.Fatalf("DeriveOpening: %v", err)
	}
	if !again.Equal(got) {
		t.Fatalf("same inputs gave %v then %v", got.UTC(), again.UTC())
	}
}

const testToken = "operator-token"

func testServer(t *testing.T) (*Server, *MemStore) {
	t.Helper()
	store := NewMemStore(newSealer(t))
	hash, err := bcrypt.GenerateFromPassword([]byte(testToken), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	srv := &Server{
		Store:     store,
		Log:       zap.NewNop().Sugar(),
		Zone:      "America/Chicago",
		TokenHash: string(hash),
		Now:       func() time.Time { return time.Date(2026, 7, 10, 11, 0, 0, 0, time.UTC) },
	}
	return srv, store
}

func jsonReq(method, path string, body any) *http.Request {
	var rd io.Reader
	if body != nil {
		buf, _ := json.Marshal(body)
		rd = bytes.NewReader(buf)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

func createBody() map[string]any {
	return map[string]any{
		"username":   "golfer",
		"password":   "secret-pw",
		"course":     3,
		"players":    2,
		"holes":      9,
		"timeStart":  "08:00",
		"timeEnd":    "11:00",
		"targetDate": "2026-07-12",
		"opensDate":  "2026-07-11",
		"openHour":   7,
		"openMinute": 30,
	}
}

func TestHTTPCreateAndList(t *testing.T) {
	srv, _ := testServer(t)
	app := srv.App()

	resp, err := app.Test(jsonReq(http.MethodPost, "/api/tasks", createBody()))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
	var created task.Task
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.ID == "" || created.Status != task.StatusPending {
		t.Fatalf("created = %+v", created)
	}
	wantOpening := time.Date(2026, 7, 11, 12, 30, 0, 0, time.UTC)
	if !created.OpeningInstant.Equal(wantOpening) {
		t.Fatalf("opening = %v, want %v", created.OpeningInstant, wantOpening)
	}

	resp, err = app.Test(jsonReq(http.MethodGet, "/api/tasks", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list status = %d", resp.StatusCode)
	}
	body := string(raw)
	if strings.Contains(body, "golfer") || strings.Contains(body, "secret-pw") {
		t.Fatalf("list response leaks credentials: %s", body)
	}
}

func TestHTTPCreateValidation(t *testing.T) {
	srv, _ := testServer(t)
	app := srv.App()

	body := createBody()
	delete(body, "openHour")
	resp, err := app.Test(jsonReq(http.MethodPost, "/api/tasks", body))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing openHour status = %d, want 400", resp.StatusCode)
	}

	body = createBody()
	body["password"] = ""
	resp, _ = app.Test(jsonReq(http.MethodPost, "/api/tasks", body))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing password status = %d, want 400", resp.StatusCode)
	}

	body = createBody()
	body["holes"] = 12
	resp, _ = app.Test(jsonReq(http.MethodPost, "/api/tasks", body))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("12 holes status = %d, want 400", resp.StatusCode)
	}
}

func TestHTTPSecureConfigGuard(t *testing.T) {
	srv, store := testServer(t)
	app := srv.App()
	created, _ := store.Create(context.Background(), sampleTask(time.Now().Add(time.Hour)))

	// No token.
	resp, err := app.Test(jsonReq(http.MethodGet, "/api/tasks/"+created.ID+"/secure-config", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("no-token status = %d, want 401", resp.StatusCode)
	}

	// Wrong token.
	req := jsonReq(http.MethodGet, "/api/tasks/"+created.ID+"/secure-config", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	resp, _ = app.Test(req)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad-token status = %d, want 401", resp.StatusCode)
	}

	// Valid token gets the credentials back.
	req = jsonReq(http.MethodGet, "/api/tasks/"+created.ID+"/secure-config", nil)
	req.Header.Set("Authorization", "Bearer "+testToken)
	resp, _ = app.Test(req)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("secure-config status = %d", resp.StatusCode)
	}
	var sec SecureTask
	if err := json.NewDecoder(resp.Body).Decode(&sec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sec.Credentials.Username != "golfer" || sec.Credentials.Password != "secret-pw" {
		t.Fatalf("secure-config credentials = %+v", sec.Credentials)
	}
}

func TestHTTPStatusAndDelete(t *testing.T) {
	srv, store := testServer(t)
	app := srv.App()
	created, _ := store.Create(context.Background(), sampleTask(time.Now().Add(time.Hour)))

	put := func(status, msg string) *http.Response {
		req := jsonReq(http.MethodPut, "/api/tasks/"+created.ID+"/status",
			map[string]string{"status": status, "error": msg})
		req.Header.Set("Authorization", "Bearer "+testToken)
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("app.Test: %v", err)
		}
		return resp
	}

	if resp := put("running", ""); resp.StatusCode != http.StatusOK {
		t.Fatalf("pending->running status = %d", resp.StatusCode)
	}

	// Deleting a running task conflicts.
	resp, err := app.Test(jsonReq(http.MethodDelete, "/api/tasks/"+created.ID, nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("delete-while-running status = %d, want 409", resp.StatusCode)
	}

	// Illegal transition conflicts.
	if resp := put("pending", ""); resp.StatusCode != http.StatusConflict {
		t.Fatalf("running->pending status = %d, want 409", resp.StatusCode)
	}

	if resp := put("failed", "login timed out"); resp.StatusCode != http.StatusOK {
		t.Fatalf("running->failed status = %d", resp.StatusCode)
	}
	got, _ := store.Get(context.Background(), created.ID)
	if got.LastError != "login timed out" {
		t.Fatalf("LastError = %q", got.LastError)
	}

	resp, _ = app.Test(jsonReq(http.MethodDelete, "/api/tasks/"+created.ID, nil))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}
	resp, _ = app.Test(jsonReq(http.MethodGet, "/api/tasks/"+created.ID, nil))
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("get-after-delete status = %d, want 404", resp.StatusCode)
	}
}
