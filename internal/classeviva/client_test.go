package classeviva

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const loginOK = `{"token":"tok123","ident":"S12345","firstName":"Mario","lastName":"Rossi"}`

// testServer routes /auth/login/ to loginBody and everything else to handler.
func testServer(t *testing.T, loginBody func() string, handler http.HandlerFunc) (*Client, *int) {
	t.Helper()
	logins := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/auth/login/") {
			logins++
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(loginBody()))
			return
		}
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return New(srv.URL, "user", "secret"), &logins
}

func jsonBody(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}
}

func TestLoginSuccess(t *testing.T) {
	c, _ := testServer(t, func() string { return loginOK }, jsonBody(`{}`))

	s, err := c.Login(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if s.Token != "tok123" {
		t.Fatalf("token = %q", s.Token)
	}
	if s.StudentID != "12345" {
		t.Fatalf("student id = %q, want digits only", s.StudentID)
	}
	if s.FirstName != "Mario" || s.LastName != "Rossi" {
		t.Fatalf("names = %q %q", s.FirstName, s.LastName)
	}
}

func TestLoginFailure(t *testing.T) {
	// Substring match must be case-insensitive.
	c, _ := testServer(t, func() string { return `{"error":"Error: Authentication Failed"}` }, jsonBody(`{}`))

	_, err := c.Login(context.Background())
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("err = %v, want AuthError", err)
	}
	if c.Session() != nil {
		t.Fatal("session established despite failed login")
	}
}

func TestGrades(t *testing.T) {
	c, _ := testServer(t, func() string { return loginOK },
		jsonBody(`{"grades":[{"evtId":1,"subjectDesc":"Math","decimalValue":8.0,"displayValue":"8","evtDate":"2026-03-02"}]}`))
	if _, err := c.Login(context.Background()); err != nil {
		t.Fatal(err)
	}

	grades, err := c.Grades(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(grades) != 1 || grades[0].Subject != "Math" || grades[0].DecimalValue != 8.0 {
		t.Fatalf("grades = %+v", grades)
	}
}

func TestDidacticsTypoKey(t *testing.T) {
	c, _ := testServer(t, func() string { return loginOK },
		jsonBody(`{"didacticts":[{"teacherName":"Prof. Bianchi","folders":[]}]}`))
	if _, err := c.Login(context.Background()); err != nil {
		t.Fatal(err)
	}

	teachers, err := c.Didactics(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(teachers) != 1 || teachers[0].Name != "Prof. Bianchi" {
		t.Fatalf("teachers = %+v", teachers)
	}
}

func TestDidacticsCorrectKeyWins(t *testing.T) {
	c, _ := testServer(t, func() string { return loginOK },
		jsonBody(`{"didactics":[{"teacherName":"Right"}],"didacticts":[{"teacherName":"Wrong"}]}`))
	if _, err := c.Login(context.Background()); err != nil {
		t.Fatal(err)
	}

	teachers, err := c.Didactics(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(teachers) != 1 || teachers[0].Name != "Right" {
		t.Fatalf("teachers = %+v", teachers)
	}
}

func TestTokenExpiredRetriesOnce(t *testing.T) {
	calls := 0
	c, logins := testServer(t, func() string { return loginOK },
		func(w http.ResponseWriter, r *http.Request) {
			calls++
			w.Header().Set("Content-Type", "application/json")
			if calls == 1 {
				_, _ = w.Write([]byte(`{"error":"Auth Token Expired"}`))
				return
			}
			_, _ = w.Write([]byte(`{"items":[{"pubId":10,"cntTitle":"Avviso"}]}`))
		})
	if _, err := c.Login(context.Background()); err != nil {
		t.Fatal(err)
	}

	items, err := c.Noticeboard(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || items[0].Title != "Avviso" {
		t.Fatalf("items = %+v", items)
	}
	if calls != 2 {
		t.Fatalf("request count = %d, want 2", calls)
	}
	if *logins != 2 {
		t.Fatalf("login count = %d, want 2 (initial + refresh)", *logins)
	}
}

func TestTokenExpiredTwiceFails(t *testing.T) {
	calls := 0
	c, logins := testServer(t, func() string { return loginOK },
		func(w http.ResponseWriter, r *http.Request) {
			calls++
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"error":"auth token expired"}`))
		})
	if _, err := c.Login(context.Background()); err != nil {
		t.Fatal(err)
	}

	_, err := c.Noticeboard(context.Background())
	if err == nil {
		t.Fatal("expected error after second expiry")
	}
	if calls != 2 {
		t.Fatalf("request count = %d, want exactly 2 (no third attempt)", calls)
	}
	if *logins != 2 {
		t.Fatalf("login count = %d, want 2", *logins)
	}
}

func TestDownloadContent(t *testing.T) {
	c, _ := testServer(t, func() string { return loginOK },
		func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/pdf")
			_, _ = w.Write([]byte("%PDF-1.4 raw bytes"))
		})
	if _, err := c.Login(context.Background()); err != nil {
		t.Fatal(err)
	}

	data, err := c.DownloadContent(context.Background(), 99)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "%PDF-1.4 raw bytes" {
		t.Fatalf("data = %q", data)
	}
}

func TestDownloadContentAbsentOnErrorEnvelope(t *testing.T) {
	c, _ := testServer(t, func() string { return loginOK },
		jsonBody(`{"error":"content not found"}`))
	if _, err := c.Login(context.Background()); err != nil {
		t.Fatal(err)
	}

	data, err := c.DownloadContent(context.Background(), 99)
	if err != nil {
		t.Fatalf("absent content must not be an error, got %v", err)
	}
	if data != nil {
		t.Fatalf("data = %q, want nil", data)
	}
}

func TestDownloadContentRetriesAfterExpiry(t *testing.T) {
	calls := 0
	c, logins := testServer(t, func() string { return loginOK },
		func(w http.ResponseWriter, r *http.Request) {
			calls++
			if calls == 1 {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{"error":"auth token expired"}`))
				return
			}
			w.Header().Set("Content-Type", "application/octet-stream")
			_, _ = w.Write([]byte("bytes"))
		})
	if _, err := c.Login(context.Background()); err != nil {
		t.Fatal(err)
	}

	data, err := c.DownloadContent(context.Background(), 5)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "bytes" {
		t.Fatalf("data = %q", data)
	}
	if *logins != 2 {
		t.Fatalf("login count = %d, want 2", *logins)
	}
}
